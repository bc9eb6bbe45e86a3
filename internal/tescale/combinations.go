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

package tescale

import (
	"errors"
	"fmt"
	"math/big"

	log "github.com/golang/glog"
	"github.com/openconfig/ecmpharness/internal/ecmp"
)

// MinGroupWidth is the narrowest ECMP group the generators emit.
const MinGroupWidth = 2

var (
	// ErrInsufficientCombinations is returned when the candidate paths
	// cannot yield the requested number of groups or members.
	ErrInsufficientCombinations = errors.New("insufficient combinations")
	// ErrWidthBounds is returned for malformed generator arguments.
	ErrWidthBounds = errors.New("invalid width bounds")
)

// GroupScale returns exactly maxGroups distinct combinations of paths.
//
// Widths are visited from minWidth up to maxWidth. Within one width the
// subsets are visited in lexicographic order of their index tuples, which
// is the order of a present/absent selector stepped through its decreasing
// permutations. maxWidth is capped at len(paths).
func GroupScale(paths []ecmp.PathHandle, maxGroups, maxWidth, minWidth int) ([]ecmp.Combination, error) {
	if err := checkPaths(paths); err != nil {
		return nil, err
	}
	if minWidth < MinGroupWidth || maxWidth < minWidth || maxGroups < 1 {
		return nil, fmt.Errorf("%w: groups %d, width %d..%d", ErrWidthBounds, maxGroups, minWidth, maxWidth)
	}
	n := len(paths)
	if n < minWidth {
		return nil, fmt.Errorf("%w: %d paths, minimum width %d", ErrInsufficientCombinations, n, minWidth)
	}
	maxWidth = min(maxWidth, n)

	available := new(big.Int)
	for k := minWidth; k <= maxWidth; k++ {
		available.Add(available, new(big.Int).Binomial(int64(n), int64(k)))
	}
	if available.Cmp(big.NewInt(int64(maxGroups))) < 0 {
		return nil, fmt.Errorf("%w: %v groups of width %d..%d from %d paths, want %d",
			ErrInsufficientCombinations, available, minWidth, maxWidth, n, maxGroups)
	}

	out := make([]ecmp.Combination, 0, maxGroups)
	for k := minWidth; k <= maxWidth && len(out) < maxGroups; k++ {
		forEachSubset(n, k, func(idx []int) bool {
			out = append(out, pick(paths, idx))
			return len(out) < maxGroups
		})
	}
	log.V(1).Infof("Generated %d ECMP groups of width %d..%d from %d paths", len(out), minWidth, maxWidth, n)
	return out, nil
}

// MemberScale returns combinations whose sizes add up to exactly maxMembers.
//
// Widths are visited from len(paths) down to 2. Whole combinations are taken
// while they fit. The candidate that would overflow the budget is cut to its
// first remaining paths and closes the list.
func MemberScale(paths []ecmp.PathHandle, maxMembers int) ([]ecmp.Combination, error) {
	if err := checkPaths(paths); err != nil {
		return nil, err
	}
	if maxMembers < 1 {
		return nil, fmt.Errorf("%w: members %d", ErrWidthBounds, maxMembers)
	}
	n := len(paths)
	if n < MinGroupWidth {
		return nil, fmt.Errorf("%w: %d paths, minimum width %d", ErrInsufficientCombinations, n, MinGroupWidth)
	}

	var (
		out   []ecmp.Combination
		total int
	)
	for k := n; k >= MinGroupWidth && total < maxMembers; k-- {
		forEachSubset(n, k, func(idx []int) bool {
			c := pick(paths, idx)
			if remaining := maxMembers - total; len(c) > remaining {
				c = c[:remaining]
			}
			out = append(out, c)
			total += len(c)
			return total < maxMembers
		})
	}
	if total < maxMembers {
		return nil, fmt.Errorf("%w: %d members available from %d paths, want %d",
			ErrInsufficientCombinations, total, n, maxMembers)
	}
	log.V(1).Infof("Generated %d ECMP groups holding %d members from %d paths", len(out), total, n)
	return out, nil
}

// MemberCount returns the total number of members across combos.
func MemberCount(combos []ecmp.Combination) int {
	n := 0
	for _, c := range combos {
		n += len(c)
	}
	return n
}

func checkPaths(paths []ecmp.PathHandle) error {
	seen := make(map[ecmp.PathHandle]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			return fmt.Errorf("%w: duplicate path %v", ErrWidthBounds, p)
		}
		seen[p] = true
	}
	return nil
}

func pick(paths []ecmp.PathHandle, idx []int) ecmp.Combination {
	c := make(ecmp.Combination, len(idx))
	for i, j := range idx {
		c[i] = paths[j]
	}
	return c
}

// forEachSubset calls fn with the index tuples of every k-subset of n
// elements in lexicographic order until fn returns false.
func forEachSubset(n, k int, fn func(idx []int) bool) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if !fn(idx) {
			return
		}
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
