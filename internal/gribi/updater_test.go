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

package gribi

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/routes"
	"github.com/openconfig/gribigo/client"
	"github.com/openconfig/gribigo/fluent"

	spb "github.com/openconfig/gribi/v1/proto/service"
)

var (
	nh1 = ecmp.RouteNextHop{Addr: netip.MustParseAddr("10.0.1.1"), Interface: "eth1", Weight: 1}
	nh2 = ecmp.RouteNextHop{Addr: netip.MustParseAddr("10.0.2.1"), Interface: "eth2", Weight: 1}
	nh3 = ecmp.RouteNextHop{Addr: netip.MustParseAddr("10.0.3.1"), Interface: "eth3", Weight: 1}

	pfx1 = netip.MustParsePrefix("2401::/128")
	pfx2 = netip.MustParsePrefix("2401::1/128")
)

var (
	addrCmp   = cmp.Comparer(func(a, b netip.Addr) bool { return a == b })
	prefixCmp = cmp.Comparer(func(a, b netip.Prefix) bool { return a == b })
)

func planOf(t *testing.T, u *Updater) batch {
	t.Helper()
	ops := u.pending
	u.pending = nil
	return u.plan(ops)
}

func TestPlanSharesGroups(t *testing.T) {
	u := NewUpdater(t, nil)
	set := ecmp.NextHopSet{nh1, nh2}
	u.AddRoute("default", pfx1, 0, set)
	u.AddRoute("default", pfx2, 0, ecmp.NextHopSet{nh2, nh1})

	got := planOf(t, u)
	want := batch{
		AddNHs: []nhEntry{
			{ID: 1, Addr: nh1.Addr, Interface: "eth1"},
			{ID: 2, Addr: nh2.Addr, Interface: "eth2"},
		},
		AddNHGs: []nhgEntry{{ID: 1, Members: []nhgMember{{NH: 1, Weight: 1}, {NH: 2, Weight: 1}}}},
		AddRoutes: []ipEntry{
			{Instance: DefaultNetworkInstance, Prefix: pfx1, NHG: 1},
			{Instance: DefaultNetworkInstance, Prefix: pfx2, NHG: 1},
		},
	}
	if diff := cmp.Diff(want, got, addrCmp, prefixCmp); diff != "" {
		t.Errorf("plan() returned diff (-want +got):\n%s", diff)
	}
	if g := u.nhgs[set.Key()]; g.Refs != 2 {
		t.Errorf("group refs = %d, want 2", g.Refs)
	}
}

func TestPlanMoveAndDelete(t *testing.T) {
	u := NewUpdater(t, nil)
	u.AddRoute("default", pfx1, 0, ecmp.NextHopSet{nh1, nh2})
	planOf(t, u)

	// Moving the only route off a group frees the group and the next hop
	// no other group uses.
	u.AddRoute("default", pfx1, 0, ecmp.NextHopSet{nh2, nh3})
	got := planOf(t, u)
	want := batch{
		AddNHs:    []nhEntry{{ID: 3, Addr: nh3.Addr, Interface: "eth3"}},
		AddNHGs:   []nhgEntry{{ID: 2, Members: []nhgMember{{NH: 2, Weight: 1}, {NH: 3, Weight: 1}}}},
		AddRoutes: []ipEntry{{Instance: DefaultNetworkInstance, Prefix: pfx1, NHG: 2}},
		DelNHGs:   []uint64{1},
		DelNHs:    []uint64{1},
	}
	if diff := cmp.Diff(want, got, addrCmp, prefixCmp); diff != "" {
		t.Errorf("plan() after move returned diff (-want +got):\n%s", diff)
	}

	u.DelRoute("default", pfx1, 0)
	u.DelRoute("default", pfx2, 0)
	got = planOf(t, u)
	want = batch{
		DelRoutes: []ipEntry{{Instance: DefaultNetworkInstance, Prefix: pfx1}},
		DelNHGs:   []uint64{2},
		DelNHs:    []uint64{2, 3},
	}
	if diff := cmp.Diff(want, got, addrCmp, prefixCmp); diff != "" {
		t.Errorf("plan() after delete returned diff (-want +got):\n%s", diff)
	}
	if len(u.nhs) != 0 || len(u.nhgs) != 0 || len(u.routes) != 0 {
		t.Errorf("bookkeeping not empty: nhs=%v nhgs=%v routes=%v", u.nhs, u.nhgs, u.routes)
	}
}

func TestPlanLastOperationWins(t *testing.T) {
	u := NewUpdater(t, nil)
	u.AddRoute("vrf1", pfx1, 0, ecmp.NextHopSet{nh1})
	u.DelRoute("vrf1", pfx1, 0)
	if got := planOf(t, u); !got.empty() {
		t.Errorf("plan() = %+v, want empty batch", got)
	}

	u.AddRoute("vrf1", pfx1, 0, ecmp.NextHopSet{nh1})
	u.AddRoute("vrf1", pfx1, 0, ecmp.NextHopSet{nh1})
	got := planOf(t, u)
	if len(got.AddRoutes) != 1 || got.AddRoutes[0].Instance != "vrf1" {
		t.Errorf("plan() routes = %+v, want one route in vrf1", got.AddRoutes)
	}
	if got := planOf(t, u); !got.empty() {
		t.Errorf("plan() of empty queue = %+v", got)
	}
}

func TestAddRouteRejectsEmptySet(t *testing.T) {
	u := NewUpdater(t, nil)
	if err := u.AddRoute("default", pfx1, 0, nil); err == nil {
		t.Errorf("AddRoute() with no next hops succeeded, want error")
	}
}

func TestProgramFailure(t *testing.T) {
	errFull := errors.New("table full")
	oldSet := ecmp.NextHopSet{nh1, nh2}
	newSet := ecmp.NextHopSet{nh3}
	tests := []struct {
		desc      string
		failAdd   bool
		failDel   bool
		wantGroup string
	}{
		{desc: "additions fail", failAdd: true, wantGroup: oldSet.Key()},
		{desc: "deletions fail", failDel: true, wantGroup: newSet.Key()},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			u := NewUpdater(t, nil)
			u.write = func([]fluent.GRIBIEntry, bool) error { return nil }
			u.AddRoute("default", pfx1, 0, oldSet)
			if err := u.Program(); err != nil {
				t.Fatalf("Program() unexpected error: %v", err)
			}

			u.write = func(_ []fluent.GRIBIEntry, add bool) error {
				if (add && tt.failAdd) || (!add && tt.failDel) {
					return errFull
				}
				return nil
			}
			u.AddRoute("default", pfx1, 0, newSet)
			if err := u.Program(); !errors.Is(err, errFull) {
				t.Fatalf("Program() error = %v, want %v", err, errFull)
			}
			if got := u.routes[routeKey{VRF: "default", Prefix: pfx1}]; got != tt.wantGroup {
				t.Errorf("route group after failure = %q, want %q", got, tt.wantGroup)
			}
			if _, ok := u.nhgs[tt.wantGroup]; !ok {
				t.Errorf("group %q not tracked after failure", tt.wantGroup)
			}
			if len(u.pending) != 0 {
				t.Errorf("Program() left %d queued operations", len(u.pending))
			}
		})
	}
}

func TestDiscard(t *testing.T) {
	u := NewUpdater(t, nil)
	u.write = func([]fluent.GRIBIEntry, bool) error {
		t.Errorf("write called after Discard")
		return nil
	}
	u.AddRoute("default", pfx1, 0, ecmp.NextHopSet{nh1})
	u.DelRoute("default", pfx2, 0)
	u.Discard()
	if err := u.Program(); err != nil {
		t.Errorf("Program() after Discard unexpected error: %v", err)
	}
	if len(u.routes) != 0 {
		t.Errorf("routes after Discard = %v, want none", u.routes)
	}
}

func TestCheckResults(t *testing.T) {
	tests := []struct {
		desc         string
		in           []*client.OpResult
		wantResource string
		wantErr      bool
	}{{
		desc: "all programmed",
		in: []*client.OpResult{
			{OperationID: 0},
			{OperationID: 1, ProgrammingResult: spb.AFTResult_FIB_PROGRAMMED},
			{OperationID: 2, ProgrammingResult: spb.AFTResult_RIB_PROGRAMMED},
		},
	}, {
		desc: "group table full",
		in: []*client.OpResult{
			{OperationID: 3, ProgrammingResult: spb.AFTResult_FAILED, Details: &client.OpDetailsResults{NextHopGroupID: 7}},
		},
		wantResource: routes.EcmpGroups,
		wantErr:      true,
	}, {
		desc: "route rejected in fib",
		in: []*client.OpResult{
			{OperationID: 4, ProgrammingResult: spb.AFTResult_FIB_FAILED, Details: &client.OpDetailsResults{IPv4Prefix: "201.0.0.0/32"}},
		},
		wantResource: routes.Routes,
		wantErr:      true,
	}, {
		desc:    "client error",
		in:      []*client.OpResult{{ClientError: "stream closed"}},
		wantErr: true,
	}}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			err := checkResults(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkResults() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantResource == "" {
				return
			}
			re, ok := err.(*routes.ResourceExhaustedError)
			if !ok {
				t.Fatalf("checkResults() error %T, want *routes.ResourceExhaustedError", err)
			}
			if re.Resource != tt.wantResource {
				t.Errorf("checkResults() resource = %q, want %q", re.Resource, tt.wantResource)
			}
		})
	}
}
