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

package ecmp

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// Combination is one candidate ECMP group: an ordered list of unique paths.
type Combination []PathHandle

func (c Combination) String() string {
	parts := make([]string, len(c))
	for i, p := range c {
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Set returns the members of c as a PathSet.
func (c Combination) Set() PathSet { return NewPathSet(c...) }

// WeightedCombination is a Combination with one weight per member.
type WeightedCombination struct {
	Paths   Combination `yaml:"paths"`
	Weights []uint64    `yaml:"weights"`
}

// Validate checks that every member carries a non-zero weight.
func (w WeightedCombination) Validate() error {
	if len(w.Paths) != len(w.Weights) {
		return fmt.Errorf("combination %v has %d weights for %d paths", w.Paths, len(w.Weights), len(w.Paths))
	}
	for i, wt := range w.Weights {
		if wt == 0 {
			return fmt.Errorf("combination %v: path %v has weight 0", w.Paths, w.Paths[i])
		}
	}
	return nil
}

// CounterSample maps each path to its egress byte counter at one instant.
type CounterSample map[PathHandle]uint64

// RouteNextHop is one member of a route's next-hop set.
type RouteNextHop struct {
	Addr      netip.Addr `yaml:"addr"`
	Interface string     `yaml:"interface"`
	Weight    uint64     `yaml:"weight"`
}

func (n RouteNextHop) String() string {
	return fmt.Sprintf("%s@%s*%d", n.Addr, n.Interface, n.Weight)
}

// NextHopSet is the set of next hops a route forwards over.
type NextHopSet []RouteNextHop

// Members returns the number of next hops in the set.
func (s NextHopSet) Members() int { return len(s) }

// Sorted returns a copy of s ordered by address and interface.
func (s NextHopSet) Sorted() NextHopSet {
	out := slices.Clone(s)
	slices.SortFunc(out, func(a, b RouteNextHop) int {
		if c := a.Addr.Compare(b.Addr); c != 0 {
			return c
		}
		if c := strings.Compare(a.Interface, b.Interface); c != 0 {
			return c
		}
		switch {
		case a.Weight < b.Weight:
			return -1
		case a.Weight > b.Weight:
			return 1
		}
		return 0
	})
	return out
}

// Key returns a canonical form of s that does not depend on member order.
// Two routes with equal keys share a hardware next-hop group.
func (s NextHopSet) Key() string {
	sorted := s.Sorted()
	parts := make([]string, len(sorted))
	for i, n := range sorted {
		parts[i] = n.String()
	}
	return strings.Join(parts, ",")
}

// Route is one programmed route.
type Route struct {
	VRF      string       `yaml:"vrf"`
	Prefix   netip.Prefix `yaml:"prefix"`
	ClientID int          `yaml:"client-id"`
	NextHops NextHopSet   `yaml:"next-hops"`
}
