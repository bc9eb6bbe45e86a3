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

package dataplane

import (
	"context"
	"fmt"
	"testing"

	log "github.com/golang/glog"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/iputil"
	"github.com/openconfig/ecmpharness/internal/loadbalancer"
	"github.com/openconfig/ecmpharness/internal/statetree"
	"github.com/openconfig/ecmpharness/internal/tescale"
	"github.com/openconfig/ecmpharness/internal/ucmp"
)

// minShrinkWidth is the narrowest group the shrink phase goes down to.
const minShrinkWidth = 1

// setLink changes the link of the path at index i when a link controller
// is configured.
func (r *Runner[A]) setLink(t testing.TB, i int, up bool) ecmp.PathHandle {
	t.Helper()
	p, err := r.Helper.EcmpPathAt(i)
	if err != nil {
		t.Fatalf("Path %d: %v", i, err)
	}
	if r.Links == nil {
		return p
	}
	if err := r.Links.SetLinkState(context.Background(), p, up); err != nil {
		t.Fatalf("Setting link of %v up=%v: %v", p, up, err)
	}
	return p
}

func (r *Runner[A]) reroute(t testing.TB, width int) {
	t.Helper()
	paths, err := r.Helper.EcmpPaths(width)
	if err != nil {
		t.Fatalf("ECMP paths: %v", err)
	}
	if err := r.Helper.SetupForwarding(r.State.Current(), r.updater, paths, nil); err != nil {
		t.Fatalf("Routing over %d paths: %v", width, err)
	}
}

// ShrinkECMP takes down the path at index width and unresolves its next
// hop, leaving the first width paths in the group.
func (r *Runner[A]) ShrinkECMP(t testing.TB, width int) {
	t.Helper()
	p := r.setLink(t, width, false)
	log.Infof("[%s] Shrinking ECMP to %d paths, removing %v", r.runID, width, p)
	if _, err := r.State.Apply(fmt.Sprintf("unresolve %v", p), func(cur *statetree.Tree) (*statetree.Tree, error) {
		return r.Helper.UnresolveNextHops(cur, ecmp.NewPathSet(p))
	}); err != nil {
		t.Fatalf("Unresolving %v: %v", p, err)
	}
	r.reroute(t, width)
}

// ExpandECMP brings the path at index width back and resolves it, growing
// the group to width+1 paths.
func (r *Runner[A]) ExpandECMP(t testing.TB, width int) {
	t.Helper()
	p := r.setLink(t, width, true)
	log.Infof("[%s] Expanding ECMP to %d paths, adding %v", r.runID, width+1, p)
	if err := r.resolveFirst(width + 1); err != nil {
		t.Fatalf("Resolving %d next hops: %v", width+1, err)
	}
	r.reroute(t, width+1)
}

// LoadBalanceTest describes one load-balance run.
type LoadBalanceTest struct {
	Width         int
	LoadBalancers []loadbalancer.LoadBalancer
	// Weights are per path UCMP weights. Nil means ECMP.
	Weights []uint64
	// MaxDeviationPct falls back to the runner config when 0.
	MaxDeviationPct float64
	// ExpectImbalance makes the run pass only when traffic is not spread.
	ExpectImbalance bool
}

// RunLoadBalanceTest programs the group and hash settings, then checks the
// spread before and after a warm boot.
func (r *Runner[A]) RunLoadBalanceTest(t testing.TB, tc LoadBalanceTest) {
	t.Helper()
	dev := tc.MaxDeviationPct
	if dev == 0 {
		dev = r.Config.MaxDeviationPct
	}
	verify := func(t testing.TB, r *Runner[A]) {
		t.Helper()
		if err := r.PumpTrafficAndVerifyLoadBalanced(t, tc.Width, tc.Weights, dev, !tc.ExpectImbalance); err != nil {
			t.Fatalf("Load balance over %d paths: %v", tc.Width, err)
		}
	}
	r.RunAcrossWarmBoots(t, Hooks[A]{
		Setup: func(t testing.TB, r *Runner[A]) {
			t.Helper()
			if err := r.ProgramRoutesAndLoadBalancer(tc.Width, tc.Weights, tc.LoadBalancers); err != nil {
				t.Fatalf("Programming %d paths: %v", tc.Width, err)
			}
		},
		Verify: verify,
	})
}

// RunShrinkExpandTest programs an ECMP group of width paths, then removes
// paths one at a time down to one path and adds them back, checking the
// spread after every step.
func (r *Runner[A]) RunShrinkExpandTest(t testing.TB, width int, lbs []loadbalancer.LoadBalancer, maxDeviationPct float64) {
	t.Helper()
	if maxDeviationPct == 0 {
		maxDeviationPct = r.Config.MaxDeviationPct
	}
	if err := r.ProgramRoutesAndLoadBalancer(width, nil, lbs); err != nil {
		t.Fatalf("Programming %d paths: %v", width, err)
	}
	check := func(w int) {
		t.Helper()
		if err := r.PumpTrafficAndVerifyLoadBalanced(t, w, nil, maxDeviationPct, true); err != nil {
			t.Fatalf("Load balance over %d paths: %v", w, err)
		}
	}
	w := width
	for w > minShrinkWidth {
		w--
		r.ShrinkECMP(t, w)
		check(w)
	}
	for w < width {
		r.ExpandECMP(t, w)
		w++
		check(w)
	}
}

// resolveAll resolves every next hop and returns their paths in order.
func (r *Runner[A]) resolveAll(t testing.TB) []ecmp.PathHandle {
	t.Helper()
	n := len(r.Helper.NextHops())
	if err := r.resolveFirst(n); err != nil {
		t.Fatalf("Resolving %d next hops: %v", n, err)
	}
	paths, err := r.Helper.EcmpPaths(n)
	if err != nil {
		t.Fatalf("ECMP paths: %v", err)
	}
	return paths
}

func scalePrefixes[A iputil.Addr](t testing.TB, n int) []iputil.Prefix[A] {
	t.Helper()
	start := tescale.V4ScalePrefixStart
	if iputil.IsV6[A]() {
		start = tescale.V6ScalePrefixStart
	}
	prefixes, err := iputil.HostPrefixes[A](start, n)
	if err != nil {
		t.Fatalf("Scale prefixes: %v", err)
	}
	return prefixes
}

// ProgramEcmpGroupScale programs groups distinct ECMP groups of up to
// maxWidth paths, one host route each. An error from the route updater,
// such as resource exhaustion, is returned as is.
func (r *Runner[A]) ProgramEcmpGroupScale(t testing.TB, groups, maxWidth int) error {
	t.Helper()
	paths := r.resolveAll(t)
	combos, err := tescale.GroupScale(paths, groups, maxWidth, tescale.MinGroupWidth)
	if err != nil {
		t.Fatalf("Generating %d groups: %v", groups, err)
	}
	if limit := r.Config.EcmpGroupLimit(); limit > 0 && groups > limit {
		log.Warningf("[%s] Programming %d ECMP groups, above the limit of %d", r.runID, groups, limit)
	}
	log.Infof("[%s] Programming %d ECMP groups of up to %d paths", r.runID, len(combos), maxWidth)
	return r.Helper.ProgramRoutes(r.updater, combos, scalePrefixes[A](t, len(combos)))
}

// ProgramEcmpMemberScale programs groups holding members next hops in
// total. An error from the route updater is returned as is.
func (r *Runner[A]) ProgramEcmpMemberScale(t testing.TB, members int) error {
	t.Helper()
	paths := r.resolveAll(t)
	combos, err := tescale.MemberScale(paths, members)
	if err != nil {
		t.Fatalf("Generating %d members: %v", members, err)
	}
	log.Infof("[%s] Programming %d ECMP members in %d groups", r.runID, tescale.MemberCount(combos), len(combos))
	return r.Helper.ProgramRoutes(r.updater, combos, scalePrefixes[A](t, len(combos)))
}

// ProgramUcmpScale programs groups UCMP groups of up to maxWidth paths with
// the configured weight pattern and weight ceiling. An error from the route
// updater is returned as is.
func (r *Runner[A]) ProgramUcmpScale(t testing.TB, groups, maxWidth int) error {
	t.Helper()
	paths := r.resolveAll(t)
	combos, err := tescale.GroupScale(paths, groups, maxWidth, tescale.MinGroupWidth)
	if err != nil {
		t.Fatalf("Generating %d groups: %v", groups, err)
	}
	pattern := ucmp.Pattern{Even: r.Config.UcmpEvenWeight, Odd: r.Config.UcmpOddWeight}
	weighted, err := ucmp.AssignWeights(combos, r.Config.UcmpWeightCeiling, pattern)
	if err != nil {
		t.Fatalf("Assigning weights: %v", err)
	}
	log.Infof("[%s] Programming %d UCMP groups with total weight %d", r.runID, len(weighted), ucmp.TotalWeight(weighted))
	return r.Helper.ProgramWeightedRoutes(r.updater, weighted, scalePrefixes[A](t, len(weighted)))
}
