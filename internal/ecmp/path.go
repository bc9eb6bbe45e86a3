// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ecmp holds the data model shared by the ECMP/UCMP topology
// generator, the next-hop helper and the load-balance verifier.
package ecmp

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PathKind distinguishes a physical port from a link aggregate.
type PathKind uint8

const (
	// PortPath is a single physical port.
	PortPath PathKind = iota
	// TrunkPath is a link aggregation group.
	TrunkPath
)

func (k PathKind) String() string {
	switch k {
	case PortPath:
		return "port"
	case TrunkPath:
		return "trunk"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// PathHandle identifies one egress path, either a port or a trunk.
type PathHandle struct {
	Kind PathKind
	ID   uint32
}

// Port returns the handle of physical port id.
func Port(id uint32) PathHandle {
	return PathHandle{Kind: PortPath, ID: id}
}

// Trunk returns the handle of aggregate id.
func Trunk(id uint32) PathHandle {
	return PathHandle{Kind: TrunkPath, ID: id}
}

// Ports returns port handles for ids first..first+n-1.
func Ports(first uint32, n int) []PathHandle {
	out := make([]PathHandle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Port(first+uint32(i)))
	}
	return out
}

func (p PathHandle) String() string {
	return p.Kind.String() + ":" + strconv.FormatUint(uint64(p.ID), 10)
}

// Compare orders handles by kind and then by ID.
func (p PathHandle) Compare(o PathHandle) int {
	if p.Kind != o.Kind {
		if p.Kind < o.Kind {
			return -1
		}
		return 1
	}
	switch {
	case p.ID < o.ID:
		return -1
	case p.ID > o.ID:
		return 1
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (p PathHandle) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PathHandle) UnmarshalText(b []byte) error {
	h, err := ParsePathHandle(string(b))
	if err != nil {
		return err
	}
	*p = h
	return nil
}

// ParsePathHandle parses "port:N" or "trunk:N". A bare number is a port.
func ParsePathHandle(s string) (PathHandle, error) {
	kind, id, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		id, kind = kind, "port"
	}
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return PathHandle{}, fmt.Errorf("invalid path id in %q: %w", s, err)
	}
	switch kind {
	case "port":
		return Port(uint32(n)), nil
	case "trunk":
		return Trunk(uint32(n)), nil
	}
	return PathHandle{}, fmt.Errorf("invalid path kind %q in %q", kind, s)
}

// ParsePathList parses a comma separated list of handles where each
// element may be a range, e.g. "port:1-4,trunk:2". Order is preserved.
func ParsePathList(s string) ([]PathHandle, error) {
	var out []PathHandle
	for _, elem := range strings.Split(s, ",") {
		elem = strings.TrimSpace(elem)
		if elem == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(elem, "-")
		first, err := ParsePathHandle(lo)
		if err != nil {
			return nil, err
		}
		if !isRange {
			out = append(out, first)
			continue
		}
		last, err := strconv.ParseUint(hi, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid range end in %q: %w", elem, err)
		}
		if last < uint64(first.ID) {
			return nil, fmt.Errorf("invalid range %q", elem)
		}
		for id := uint64(first.ID); id <= last; id++ {
			out = append(out, PathHandle{Kind: first.Kind, ID: uint32(id)})
		}
	}
	return out, nil
}

// SortPaths sorts handles in place.
func SortPaths(paths []PathHandle) {
	slices.SortFunc(paths, PathHandle.Compare)
}

// PathSet is an immutable ordered set of unique handles.
type PathSet struct {
	paths []PathHandle
}

// NewPathSet returns the set holding paths, sorted and deduplicated.
func NewPathSet(paths ...PathHandle) PathSet {
	s := slices.Clone(paths)
	SortPaths(s)
	return PathSet{paths: slices.Compact(s)}
}

// Len returns the number of members.
func (s PathSet) Len() int { return len(s.paths) }

// Contains reports whether p is a member.
func (s PathSet) Contains(p PathHandle) bool {
	_, found := slices.BinarySearchFunc(s.paths, p, PathHandle.Compare)
	return found
}

// Slice returns the members in order.
func (s PathSet) Slice() []PathHandle { return slices.Clone(s.paths) }

// With returns a set that also holds p.
func (s PathSet) With(p PathHandle) PathSet {
	return NewPathSet(append(s.Slice(), p)...)
}

// Without returns a set that does not hold p.
func (s PathSet) Without(p PathHandle) PathSet {
	out := make([]PathHandle, 0, len(s.paths))
	for _, q := range s.paths {
		if q != p {
			out = append(out, q)
		}
	}
	return PathSet{paths: out}
}

func (s PathSet) String() string {
	parts := make([]string, len(s.paths))
	for i, p := range s.paths {
		parts[i] = p.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
