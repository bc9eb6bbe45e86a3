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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openconfig/ecmpharness/internal/ecmp"
)

func checkDistinct(t *testing.T, combos []ecmp.Combination, minWidth, maxWidth int) {
	t.Helper()
	seen := map[string]bool{}
	for _, c := range combos {
		if len(c) < minWidth || len(c) > maxWidth {
			t.Errorf("combination %v has width %d, want %d..%d", c, len(c), minWidth, maxWidth)
		}
		if c.Set().Len() != len(c) {
			t.Errorf("combination %v repeats a path", c)
		}
		key := c.Set().String()
		if seen[key] {
			t.Errorf("combination %v generated twice", c)
		}
		seen[key] = true
	}
}

func TestGroupScale(t *testing.T) {
	paths := ecmp.Ports(1, 4)
	got, err := GroupScale(paths, 6, 4, 2)
	if err != nil {
		t.Fatalf("GroupScale() unexpected error: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("GroupScale() returned %d groups, want 6", len(got))
	}
	checkDistinct(t, got, 2, 4)
	want := []ecmp.Combination{
		{ecmp.Port(1), ecmp.Port(2)},
		{ecmp.Port(1), ecmp.Port(3)},
		{ecmp.Port(1), ecmp.Port(4)},
		{ecmp.Port(2), ecmp.Port(3)},
		{ecmp.Port(2), ecmp.Port(4)},
		{ecmp.Port(3), ecmp.Port(4)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GroupScale() returned diff (-want +got):\n%s", diff)
	}
}

func TestGroupScaleSpansWidths(t *testing.T) {
	paths := ecmp.Ports(1, 5)
	for groups := 1; groups <= 26; groups++ {
		got, err := GroupScale(paths, groups, 5, 2)
		if err != nil {
			t.Fatalf("GroupScale(%d) unexpected error: %v", groups, err)
		}
		if len(got) != groups {
			t.Errorf("GroupScale(%d) returned %d groups", groups, len(got))
		}
		checkDistinct(t, got, 2, 5)
	}
	got, err := GroupScale(paths, 11, 5, 2)
	if err != nil {
		t.Fatalf("GroupScale() unexpected error: %v", err)
	}
	if diff := cmp.Diff(ecmp.Combination{ecmp.Port(1), ecmp.Port(2), ecmp.Port(3)}, got[10]); diff != "" {
		t.Errorf("first width-3 group returned diff (-want +got):\n%s", diff)
	}
}

func TestGroupScaleErrors(t *testing.T) {
	tests := []struct {
		desc               string
		paths              []ecmp.PathHandle
		groups, maxW, minW int
		wantErr            error
	}{
		{desc: "too many groups", paths: ecmp.Ports(1, 4), groups: 12, maxW: 4, minW: 2, wantErr: ErrInsufficientCombinations},
		{desc: "width capped by paths", paths: ecmp.Ports(1, 3), groups: 5, maxW: 8, minW: 2, wantErr: ErrInsufficientCombinations},
		{desc: "too few paths", paths: ecmp.Ports(1, 1), groups: 1, maxW: 2, minW: 2, wantErr: ErrInsufficientCombinations},
		{desc: "min width below two", paths: ecmp.Ports(1, 4), groups: 1, maxW: 4, minW: 1, wantErr: ErrWidthBounds},
		{desc: "inverted widths", paths: ecmp.Ports(1, 4), groups: 1, maxW: 2, minW: 3, wantErr: ErrWidthBounds},
		{desc: "duplicate path", paths: []ecmp.PathHandle{ecmp.Port(1), ecmp.Port(1)}, groups: 1, maxW: 2, minW: 2, wantErr: ErrWidthBounds},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := GroupScale(tt.paths, tt.groups, tt.maxW, tt.minW)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GroupScale() error = %v, want %v", err, tt.wantErr)
			}
			if got != nil {
				t.Errorf("GroupScale() returned partial result %v", got)
			}
		})
	}
}

func TestMemberScale(t *testing.T) {
	paths := ecmp.Ports(1, 4)
	for members := 1; members <= 4+12+12; members++ {
		got, err := MemberScale(paths, members)
		if err != nil {
			t.Fatalf("MemberScale(%d) unexpected error: %v", members, err)
		}
		if n := MemberCount(got); n != members {
			t.Errorf("MemberScale(%d) holds %d members", members, n)
		}
		checkDistinct(t, got[:len(got)-1], 2, 4)
	}

	got, err := MemberScale(paths, 9)
	if err != nil {
		t.Fatalf("MemberScale() unexpected error: %v", err)
	}
	want := []ecmp.Combination{
		{ecmp.Port(1), ecmp.Port(2), ecmp.Port(3), ecmp.Port(4)},
		{ecmp.Port(1), ecmp.Port(2), ecmp.Port(3)},
		{ecmp.Port(1), ecmp.Port(2)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MemberScale() returned diff (-want +got):\n%s", diff)
	}
}

func TestMemberScaleInsufficient(t *testing.T) {
	if _, err := MemberScale(ecmp.Ports(1, 3), 10); !errors.Is(err, ErrInsufficientCombinations) {
		t.Errorf("MemberScale() error = %v, want %v", err, ErrInsufficientCombinations)
	}
	if _, err := MemberScale(ecmp.Ports(1, 3), 0); !errors.Is(err, ErrWidthBounds) {
		t.Errorf("MemberScale(0) error = %v, want %v", err, ErrWidthBounds)
	}
}

func TestEcmpGroupBudget(t *testing.T) {
	tests := []struct {
		max, pct, reserved, want int
	}{
		{max: 4096, pct: 100, reserved: 10, want: 4086},
		{max: 4096, pct: 75, reserved: 10, want: 3062},
		{max: 5, pct: 50, reserved: 10, want: 0},
	}
	for _, tt := range tests {
		if got := EcmpGroupBudget(tt.max, tt.pct, tt.reserved); got != tt.want {
			t.Errorf("EcmpGroupBudget(%d, %d, %d) = %d, want %d", tt.max, tt.pct, tt.reserved, got, tt.want)
		}
	}
}

func TestIDPool(t *testing.T) {
	p := NewIDPool(100)
	if got := []uint64{p.NextNHID(), p.NextNHID(), p.NextNHGID()}; !cmp.Equal(got, []uint64{101, 102, 101}) {
		t.Errorf("IDPool allocated %v", got)
	}
}
