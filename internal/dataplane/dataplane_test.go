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
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/openconfig/ecmpharness/internal/args"
	"github.com/openconfig/ecmpharness/internal/attrs"
	"github.com/openconfig/ecmpharness/internal/counters"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/iputil"
	"github.com/openconfig/ecmpharness/internal/loadbalancer"
	"github.com/openconfig/ecmpharness/internal/nexthop"
	"github.com/openconfig/ecmpharness/internal/routes"
	"github.com/openconfig/ecmpharness/internal/statetree"
	"github.com/openconfig/ecmpharness/internal/traffic"
	"github.com/openconfig/testt"
)

// fakeNetwork forwards every burst over the route of the helper prefix in
// the current state and counts the bytes per egress path.
type fakeNetwork struct {
	state  *statetree.Accessor
	vrf    string
	prefix netip.Prefix

	bytes map[ecmp.PathHandle]uint64
	// skew multiplies the bytes sent over a path.
	skew map[ecmp.PathHandle]uint64
	// lag is the number of reads after a burst that still return the
	// counters from before it.
	lag    int
	stale  int
	before map[ecmp.PathHandle]uint64
	sends  int
}

func newFakeNetwork(state *statetree.Accessor, prefix netip.Prefix) *fakeNetwork {
	return &fakeNetwork{state: state, vrf: nexthop.DefaultVRF, prefix: prefix, bytes: map[ecmp.PathHandle]uint64{}}
}

func (f *fakeNetwork) SendTraffic(t testing.TB, cfg traffic.Config) {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("SendTraffic(): %v", err)
	}
	f.sends++
	f.before = clone(f.bytes)
	f.stale = f.lag
	tree := f.state.Current()
	r, ok := tree.Route(f.vrf, f.prefix)
	if !ok {
		return
	}
	var total uint64
	for _, nh := range r.NextHops {
		total += nh.Weight
	}
	bytes := cfg.Packets * uint64(cfg.FrameSize)
	for _, nh := range r.NextHops {
		p, ok := tree.PathForInterface(nh.Interface)
		if !ok {
			t.Fatalf("SendTraffic(): no path for %s", nh.Interface)
		}
		share := bytes * nh.Weight / total
		if m, ok := f.skew[p]; ok {
			share *= m
		}
		f.bytes[p] += share
	}
}

func (f *fakeNetwork) PortStats(_ context.Context, paths []ecmp.PathHandle) (map[ecmp.PathHandle]counters.PortStats, error) {
	src := f.bytes
	if f.stale > 0 {
		f.stale--
		src = f.before
	}
	out := map[ecmp.PathHandle]counters.PortStats{}
	for _, p := range paths {
		out[p] = counters.PortStats{OutOctets: src[p]}
	}
	return out, nil
}

func clone(m map[ecmp.PathHandle]uint64) map[ecmp.PathHandle]uint64 {
	out := make(map[ecmp.PathHandle]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clearingNetwork is a fakeNetwork whose counters can be zeroed.
type clearingNetwork struct {
	*fakeNetwork
	clears int
}

func (c *clearingNetwork) ClearCounters(_ context.Context, paths []ecmp.PathHandle) error {
	c.clears++
	for _, p := range paths {
		delete(c.bytes, p)
	}
	return nil
}

type linkEvent struct {
	Path ecmp.PathHandle
	Up   bool
}

type fakeLinks struct {
	events []linkEvent
}

func (f *fakeLinks) SetLinkState(_ context.Context, p ecmp.PathHandle, up bool) error {
	f.events = append(f.events, linkEvent{Path: p, Up: up})
	return nil
}

// fakeRestarter loses all state on warm boot.
type fakeRestarter struct {
	state *statetree.Accessor
	boots int
	err   error
}

func (f *fakeRestarter) WarmBoot(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.boots++
	f.state.Replace(statetree.New())
	return nil
}

// countingUpdater counts routes added through it.
type countingUpdater struct {
	routes.Updater
	adds int
}

func (c *countingUpdater) AddRoute(vrf string, prefix netip.Prefix, clientID int, nhops ecmp.NextHopSet) error {
	c.adds++
	return c.Updater.AddRoute(vrf, prefix, clientID, nhops)
}

// failingUpdater rejects the AddRoute call numbered failAt, counting from 1.
type failingUpdater struct {
	routes.Updater
	failAt int
	calls  int
}

var errRejected = errors.New("route rejected")

func (f *failingUpdater) AddRoute(vrf string, prefix netip.Prefix, clientID int, nhops ecmp.NextHopSet) error {
	f.calls++
	if f.calls == f.failAt {
		return errRejected
	}
	return f.Updater.AddRoute(vrf, prefix, clientID, nhops)
}

type fixture[A iputil.Addr] struct {
	runner  *Runner[A]
	state   *statetree.Accessor
	mem     *routes.Memory
	updater *countingUpdater
	net     *fakeNetwork
	links   *fakeLinks
}

func testConfig() args.Config {
	cfg := args.Default()
	cfg.RetryAttempts = 3
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = time.Millisecond
	cfg.TrafficPackets = 1000
	return cfg
}

func newFixture[A iputil.Addr](t *testing.T, paths int) *fixture[A] {
	t.Helper()
	as, err := attrs.ForPaths(paths)
	if err != nil {
		t.Fatalf("attrs.ForPaths() unexpected error: %v", err)
	}
	tree, err := statetree.New().Modify(func(m *statetree.Mutable) error {
		for i, a := range as {
			if err := m.AddPort(ecmp.Port(uint32(i+1)), fmt.Sprintf("eth%d", i+1), a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Modify() unexpected error: %v", err)
	}
	state := statetree.NewAccessor(tree)
	h, err := nexthop.New[A](tree, nexthop.Options{})
	if err != nil {
		t.Fatalf("nexthop.New() unexpected error: %v", err)
	}
	mem := routes.NewMemory(state)
	u := &countingUpdater{Updater: mem}
	net := newFakeNetwork(state, h.Prefix().Netip())
	r := New(testConfig(), h, state, u, net, net)
	links := &fakeLinks{}
	r.Links = links
	return &fixture[A]{runner: r, state: state, mem: mem, updater: u, net: net, links: links}
}

func TestProgramRoutesAndLoadBalancer(t *testing.T) {
	f := newFixture[iputil.V6](t, 4)
	lbs := loadbalancer.EcmpFullTrunkHalfHash()
	if err := f.runner.ProgramRoutesAndLoadBalancer(3, []uint64{3, 2, 3}, lbs); err != nil {
		t.Fatalf("ProgramRoutesAndLoadBalancer() unexpected error: %v", err)
	}
	tree := f.state.Current()
	if diff := cmp.Diff(lbs, tree.LoadBalancers()); diff != "" {
		t.Errorf("LoadBalancers() returned diff (-want +got):\n%s", diff)
	}
	r, ok := tree.Route(nexthop.DefaultVRF, netip.MustParsePrefix("::/0"))
	if !ok {
		t.Fatalf("Route(::/0) not programmed")
	}
	var weights []uint64
	for _, nh := range r.NextHops {
		weights = append(weights, nh.Weight)
	}
	if diff := cmp.Diff([]uint64{3, 2, 3}, weights); diff != "" {
		t.Errorf("route weights returned diff (-want +got):\n%s", diff)
	}
	if got := len(tree.Neighbors("eth4")); got != 0 {
		t.Errorf("Neighbors(eth4) = %d entries, want unresolved", got)
	}
	if got := len(tree.Neighbors("eth3")); got == 0 {
		t.Errorf("Neighbors(eth3) is empty, want resolved")
	}
}

func TestPumpTrafficAndVerifyLoadBalanced(t *testing.T) {
	tests := []struct {
		desc     string
		weights  []uint64
		skew     map[ecmp.PathHandle]uint64
		expected bool
		wantErr  string
	}{{
		desc:     "ecmp balanced",
		expected: true,
	}, {
		desc:     "ucmp balanced",
		weights:  []uint64{3, 2, 3, 2},
		expected: true,
	}, {
		desc:     "skewed path",
		skew:     map[ecmp.PathHandle]uint64{ecmp.Port(2): 3},
		expected: true,
		wantErr:  "not load balanced",
	}, {
		desc:     "imbalance expected",
		skew:     map[ecmp.PathHandle]uint64{ecmp.Port(2): 3},
		expected: false,
	}, {
		desc:     "balanced when imbalance expected",
		expected: false,
		wantErr:  "want imbalance",
	}}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			f := newFixture[iputil.V4](t, 4)
			if err := f.runner.ProgramRoutesAndLoadBalancer(4, tt.weights, nil); err != nil {
				t.Fatalf("ProgramRoutesAndLoadBalancer() unexpected error: %v", err)
			}
			f.net.skew = tt.skew
			err := f.runner.PumpTrafficAndVerifyLoadBalanced(t, 4, tt.weights, 5, tt.expected)
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("PumpTrafficAndVerifyLoadBalanced() unexpected error: %v", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Errorf("PumpTrafficAndVerifyLoadBalanced() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPumpTrafficPollsLaggingCounters(t *testing.T) {
	f := newFixture[iputil.V4](t, 4)
	if err := f.runner.ProgramRoutesAndLoadBalancer(4, nil, nil); err != nil {
		t.Fatalf("ProgramRoutesAndLoadBalancer() unexpected error: %v", err)
	}
	// A first burst leaves counters that only the baseline hides.
	if err := f.runner.PumpTrafficAndVerifyLoadBalanced(t, 4, nil, 5, true); err != nil {
		t.Fatalf("first burst: %v", err)
	}
	f.net.lag = 2
	if err := f.runner.PumpTrafficAndVerifyLoadBalanced(t, 4, nil, 5, true); err != nil {
		t.Errorf("PumpTrafficAndVerifyLoadBalanced() with lagging counters: %v", err)
	}
	f.net.lag = 5
	if err := f.runner.PumpTrafficAndVerifyLoadBalanced(t, 4, nil, 5, true); !errors.Is(err, errNotBalanced) {
		t.Errorf("PumpTrafficAndVerifyLoadBalanced() past retry budget = %v, want %v", err, errNotBalanced)
	}
}

func TestClearCounters(t *testing.T) {
	f := newFixture[iputil.V4](t, 2)
	cn := &clearingNetwork{fakeNetwork: f.net}
	f.runner.Counters = cn
	f.net.bytes[ecmp.Port(1)] = 100
	paths := ecmp.Ports(1, 2)
	if err := f.runner.ClearCounters(context.Background(), paths); err != nil {
		t.Fatalf("ClearCounters() unexpected error: %v", err)
	}
	if cn.clears != 1 || f.runner.baseline != nil {
		t.Errorf("ClearCounters() clears = %d, baseline = %v; want 1 clear and no baseline", cn.clears, f.runner.baseline)
	}

	f.runner.Counters = f.net
	f.net.bytes[ecmp.Port(1)] = 500
	if err := f.runner.ClearCounters(context.Background(), paths); err != nil {
		t.Fatalf("ClearCounters() unexpected error: %v", err)
	}
	f.net.bytes[ecmp.Port(1)] = 700
	got, err := f.runner.sinceClear(context.Background(), paths)
	if err != nil {
		t.Fatalf("sinceClear() unexpected error: %v", err)
	}
	if diff := cmp.Diff(ecmp.CounterSample{ecmp.Port(1): 200, ecmp.Port(2): 0}, got); diff != "" {
		t.Errorf("sinceClear() returned diff (-want +got):\n%s", diff)
	}
}

func TestRunShrinkExpandTest(t *testing.T) {
	f := newFixture[iputil.V6](t, 4)
	f.runner.RunShrinkExpandTest(t, 4, []loadbalancer.LoadBalancer{loadbalancer.EcmpFullHash()}, 0)

	want := []linkEvent{
		{ecmp.Port(4), false}, {ecmp.Port(3), false}, {ecmp.Port(2), false},
		{ecmp.Port(2), true}, {ecmp.Port(3), true}, {ecmp.Port(4), true},
	}
	if diff := cmp.Diff(want, f.links.events); diff != "" {
		t.Errorf("link events returned diff (-want +got):\n%s", diff)
	}
	r, ok := f.state.Current().Route(nexthop.DefaultVRF, netip.MustParsePrefix("::/0"))
	if !ok || r.NextHops.Members() != 4 {
		t.Errorf("Route(::/0) = %v, %v after expand, want 4 next hops", r, ok)
	}
	if f.net.sends != 6 {
		t.Errorf("bursts sent = %d, want 6", f.net.sends)
	}
}

func TestShrinkECMPUnresolves(t *testing.T) {
	f := newFixture[iputil.V4](t, 3)
	if err := f.runner.ProgramRoutesAndLoadBalancer(3, nil, nil); err != nil {
		t.Fatalf("ProgramRoutesAndLoadBalancer() unexpected error: %v", err)
	}
	f.runner.ShrinkECMP(t, 2)
	tree := f.state.Current()
	if got := len(tree.Neighbors("eth3")); got != 0 {
		t.Errorf("Neighbors(eth3) = %d entries after shrink, want 0", got)
	}
	r, _ := tree.Route(nexthop.DefaultVRF, netip.MustParsePrefix("0.0.0.0/0"))
	if r.NextHops.Members() != 2 {
		t.Errorf("route members after shrink = %d, want 2", r.NextHops.Members())
	}
}

func TestShrinkECMPBadWidth(t *testing.T) {
	f := newFixture[iputil.V4](t, 2)
	msg := testt.ExpectFatal(t, func(t testing.TB) {
		f.runner.ShrinkECMP(t, 5)
	})
	if !strings.Contains(msg, "Path 5") {
		t.Errorf("ShrinkECMP(5) fatal = %q, want path error", msg)
	}
}

func TestRunLoadBalanceTestAcrossWarmBoot(t *testing.T) {
	f := newFixture[iputil.V6](t, 4)
	rs := &fakeRestarter{state: f.state}
	f.runner.Restarter = rs
	f.runner.RunLoadBalanceTest(t, LoadBalanceTest{
		Width:         4,
		LoadBalancers: loadbalancer.EcmpFullTrunkFullHash(),
		Weights:       []uint64{3, 2, 3, 2},
	})
	if rs.boots != 1 {
		t.Errorf("warm boots = %d, want 1", rs.boots)
	}
	if f.net.sends != 2 {
		t.Errorf("bursts sent = %d, want one before and one after warm boot", f.net.sends)
	}
	// One route before warm boot, the same route replayed after.
	if f.updater.adds != 2 {
		t.Errorf("routes added = %d, want 2", f.updater.adds)
	}
	if diff := cmp.Diff(loadbalancer.EcmpFullTrunkFullHash(), f.state.Current().LoadBalancers()); diff != "" {
		t.Errorf("LoadBalancers() after warm boot returned diff (-want +got):\n%s", diff)
	}
}

func TestRunLoadBalanceTestExpectImbalance(t *testing.T) {
	f := newFixture[iputil.V4](t, 4)
	f.net.skew = map[ecmp.PathHandle]uint64{ecmp.Port(1): 4}
	f.runner.RunLoadBalanceTest(t, LoadBalanceTest{Width: 4, ExpectImbalance: true})

	msg := testt.ExpectFatal(t, func(t testing.TB) {
		f.runner.RunLoadBalanceTest(t, LoadBalanceTest{Width: 4})
	})
	if !strings.Contains(msg, "Load balance over 4 paths") {
		t.Errorf("RunLoadBalanceTest() fatal = %q", msg)
	}
}

func TestRunAcrossWarmBootsFailure(t *testing.T) {
	f := newFixture[iputil.V4](t, 2)
	f.runner.Restarter = &fakeRestarter{state: f.state, err: errors.New("agent did not come back")}
	var postRan bool
	msg := testt.ExpectFatal(t, func(t testing.TB) {
		f.runner.RunAcrossWarmBoots(t, Hooks[iputil.V4]{
			SetupPostWarmboot: func(testing.TB, *Runner[iputil.V4]) { postRan = true },
		})
	})
	if !strings.Contains(msg, "agent did not come back") {
		t.Errorf("RunAcrossWarmBoots() fatal = %q", msg)
	}
	if postRan {
		t.Errorf("RunAcrossWarmBoots() ran post warm boot hooks after a failed boot")
	}
}

func TestProgramEcmpGroupScale(t *testing.T) {
	f := newFixture[iputil.V6](t, 4)
	if err := f.runner.ProgramEcmpGroupScale(t, 6, 4); err != nil {
		t.Fatalf("ProgramEcmpGroupScale() unexpected error: %v", err)
	}
	tree := f.state.Current()
	groups, _ := routes.Usage(tree, nexthop.DefaultVRF)
	if groups != 6 {
		t.Errorf("ECMP groups = %d, want 6", groups)
	}
	if _, ok := tree.Route(nexthop.DefaultVRF, netip.MustParsePrefix("2401::5/128")); !ok {
		t.Errorf("Route(2401::5/128) not programmed")
	}

	f.mem.MaxEcmpGroups = 8
	err := f.runner.ProgramEcmpGroupScale(t, 11, 4)
	var re *routes.ResourceExhaustedError
	if !errors.As(err, &re) || re.Resource != routes.EcmpGroups {
		t.Errorf("ProgramEcmpGroupScale(11) = %v, want ECMP group exhaustion", err)
	}
}

func TestProgramEcmpMemberScale(t *testing.T) {
	f := newFixture[iputil.V4](t, 4)
	if err := f.runner.ProgramEcmpMemberScale(t, 10); err != nil {
		t.Fatalf("ProgramEcmpMemberScale() unexpected error: %v", err)
	}
	if _, members := routes.Usage(f.state.Current(), nexthop.DefaultVRF); members != 10 {
		t.Errorf("ECMP members = %d, want 10", members)
	}

	f.mem.MaxEcmpMembers = 12
	if err := f.runner.ProgramEcmpMemberScale(t, 16); !routes.IsResourceExhausted(err) {
		t.Errorf("ProgramEcmpMemberScale(16) = %v, want resource exhaustion", err)
	}
}

func TestProgramEcmpGroupScaleInsufficientPaths(t *testing.T) {
	f := newFixture[iputil.V4](t, 3)
	msg := testt.ExpectFatal(t, func(t testing.TB) {
		f.runner.ProgramEcmpGroupScale(t, 10, 3)
	})
	if !strings.Contains(msg, "insufficient combinations") {
		t.Errorf("ProgramEcmpGroupScale() fatal = %q", msg)
	}
}

func TestProgramUcmpScale(t *testing.T) {
	f := newFixture[iputil.V4](t, 4)
	f.runner.Config.UcmpWeightCeiling = 20
	if err := f.runner.ProgramUcmpScale(t, 6, 4); err != nil {
		t.Fatalf("ProgramUcmpScale() unexpected error: %v", err)
	}
	var total uint64
	for _, r := range f.state.Current().Routes(nexthop.DefaultVRF) {
		for _, nh := range r.NextHops {
			total += nh.Weight
		}
	}
	if total > 20 {
		t.Errorf("total weight = %d, want at most 20", total)
	}
}

func TestJournalDropsFailedBatch(t *testing.T) {
	f := newFixture[iputil.V4](t, 3)
	if err := f.runner.ProgramRoutesAndLoadBalancer(2, nil, nil); err != nil {
		t.Fatalf("ProgramRoutesAndLoadBalancer() unexpected error: %v", err)
	}
	j := f.runner.updater
	want := j.Routes()
	if len(want) != 1 {
		t.Fatalf("Routes() = %v, want the default route", want)
	}
	prefixes, err := iputil.HostPrefixes[iputil.V4]("201.0.0.0", 2)
	if err != nil {
		t.Fatalf("HostPrefixes() unexpected error: %v", err)
	}
	h := f.runner.Helper
	p1, p2, p3 := ecmp.Port(1), ecmp.Port(2), ecmp.Port(3)

	bad := []ecmp.Combination{{p1, p2}, {p1, ecmp.Port(9)}}
	if err := h.ProgramRoutes(j, bad, prefixes); err == nil {
		t.Fatalf("ProgramRoutes(unknown path) succeeded, want error")
	}

	failing := &failingUpdater{Updater: f.mem, failAt: 2}
	j.inner = failing
	if err := h.ProgramRoutesTo(j, ecmp.NewPathSet(p1, p2), prefixes, nil); !errors.Is(err, errRejected) {
		t.Fatalf("ProgramRoutesTo() error = %v, want %v", err, errRejected)
	}
	if got := f.mem.Pending(); got != 0 {
		t.Errorf("Pending() after failed batch = %d, want 0", got)
	}
	routeCmp := cmp.Comparer(func(a, b ecmp.Route) bool { return fmt.Sprint(a) == fmt.Sprint(b) })
	if diff := cmp.Diff(want, j.Routes(), routeCmp); diff != "" {
		t.Errorf("Routes() after failed batch returned diff (-want +got):\n%s", diff)
	}

	j.inner = f.mem
	if err := h.SetupForwarding(f.state.Current(), j, []ecmp.PathHandle{p1, p3}, nil); err != nil {
		t.Fatalf("SetupForwarding() unexpected error: %v", err)
	}
	for _, r := range j.Routes() {
		if r.Prefix != h.Prefix().Netip() {
			t.Errorf("route %v from a failed batch was committed", r)
		}
	}
}
