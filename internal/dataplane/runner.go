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

// Package dataplane drives ECMP load-balance tests: it resolves next hops,
// programs routes and hash settings, pumps traffic and checks how the
// traffic spread over the group.
package dataplane

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/openconfig/ecmpharness/internal/args"
	"github.com/openconfig/ecmpharness/internal/counters"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/iputil"
	"github.com/openconfig/ecmpharness/internal/lbverify"
	"github.com/openconfig/ecmpharness/internal/loadbalancer"
	"github.com/openconfig/ecmpharness/internal/nexthop"
	"github.com/openconfig/ecmpharness/internal/routes"
	"github.com/openconfig/ecmpharness/internal/statestore"
	"github.com/openconfig/ecmpharness/internal/statetree"
	"github.com/openconfig/ecmpharness/internal/traffic"
)

// LinkController brings the link of a path up or down.
type LinkController interface {
	SetLinkState(ctx context.Context, p ecmp.PathHandle, up bool) error
}

// WarmBooter restarts the switch agent while forwarding state is kept.
type WarmBooter interface {
	WarmBoot(ctx context.Context) error
}

// Runner drives the test cycle for next hops of family A.
type Runner[A iputil.Addr] struct {
	Config   args.Config
	Helper   *nexthop.Helper[A]
	State    *statetree.Accessor
	Injector traffic.Injector
	Counters counters.Source
	// Traffic supplies ports and MACs of every burst. Addresses, ports and
	// sizes default from Config when unset.
	Traffic traffic.Config

	Links     LinkController
	Restarter WarmBooter
	Store     statestore.Store

	updater  *journal
	runID    string
	baseline ecmp.CounterSample
}

// New returns a runner. Routes programmed through it are recorded so they
// can be replayed after a warm boot.
func New[A iputil.Addr](cfg args.Config, h *nexthop.Helper[A], state *statetree.Accessor, u routes.Updater, inj traffic.Injector, src counters.Source) *Runner[A] {
	return &Runner[A]{
		Config:   cfg,
		Helper:   h,
		State:    state,
		Injector: inj,
		Counters: src,
		updater:  newJournal(u),
		runID:    uuid.NewString(),
	}
}

// Updater returns the route updater the runner programs through.
func (r *Runner[A]) Updater() routes.Updater { return r.updater }

// RunID identifies this runner in logs and snapshots.
func (r *Runner[A]) RunID() string { return r.runID }

// ProgramRoutesAndLoadBalancer applies lbs, resolves the first width next
// hops and routes the helper's prefix over them.
func (r *Runner[A]) ProgramRoutesAndLoadBalancer(width int, weights []uint64, lbs []loadbalancer.LoadBalancer) error {
	if len(lbs) > 0 {
		if _, err := r.State.Apply("load balancers", func(cur *statetree.Tree) (*statetree.Tree, error) {
			return cur.Modify(func(m *statetree.Mutable) error {
				m.SetLoadBalancers(lbs)
				return nil
			})
		}); err != nil {
			return err
		}
	}
	if err := r.resolveFirst(width); err != nil {
		return err
	}
	paths, err := r.Helper.EcmpPaths(width)
	if err != nil {
		return err
	}
	log.Infof("[%s] Programming %s ECMP over %d paths", r.runID, iputil.Family[A](), width)
	return r.Helper.SetupForwarding(r.State.Current(), r.updater, paths, weights)
}

func (r *Runner[A]) resolveFirst(n int) error {
	_, err := r.State.Apply(fmt.Sprintf("resolve %d next hops", n), func(cur *statetree.Tree) (*statetree.Tree, error) {
		return r.Helper.ResolveFirst(cur, n)
	})
	return err
}

// ClearCounters zeroes the counters of paths. Sources that cannot clear
// are sampled instead and later samples are taken relative to it.
func (r *Runner[A]) ClearCounters(ctx context.Context, paths []ecmp.PathHandle) error {
	if c, ok := r.Counters.(counters.Clearer); ok {
		if err := c.ClearCounters(ctx, paths); err != nil {
			return err
		}
		r.baseline = nil
		return nil
	}
	s, err := counters.Sample(ctx, r.Counters, paths)
	if err != nil {
		return err
	}
	r.baseline = s
	return nil
}

// sinceClear returns the bytes each path sent since ClearCounters.
func (r *Runner[A]) sinceClear(ctx context.Context, paths []ecmp.PathHandle) (ecmp.CounterSample, error) {
	s, err := counters.Sample(ctx, r.Counters, paths)
	if err != nil {
		return nil, err
	}
	out := make(ecmp.CounterSample, len(paths))
	for _, p := range paths {
		var d uint64
		if s[p] > r.baseline[p] {
			d = s[p] - r.baseline[p]
		}
		out[p] = d
	}
	return out, nil
}

func (r *Runner[A]) trafficConfig() traffic.Config {
	cfg := traffic.NewConfig("ecmp-"+r.runID[:8], iputil.IsV6[A](), r.Config.TrafficPackets)
	if r.Config.FrameSize != 0 {
		cfg.FrameSize = r.Config.FrameSize
	}
	cfg.Duration = r.Config.TrafficDuration
	t := r.Traffic
	if t.SrcIP != "" {
		cfg = t
	}
	if t.TxPort != "" {
		cfg.TxPort, cfg.RxPorts = t.TxPort, t.RxPorts
	}
	if t.SrcMAC != "" {
		cfg.SrcMAC = t.SrcMAC
	}
	if t.DstMAC != "" {
		cfg.DstMAC = t.DstMAC
	}
	return cfg
}

// errNotBalanced is returned while polling for a balanced spread.
var errNotBalanced = errors.New("traffic not load balanced")

// PumpTrafficAndVerifyLoadBalanced clears the counters of the first width
// paths, sends a burst and checks the spread. A balanced spread is polled
// for until the retry budget runs out, since counters lag the traffic. An
// unbalanced spread is checked once.
func (r *Runner[A]) PumpTrafficAndVerifyLoadBalanced(t testing.TB, width int, weights []uint64, maxDeviationPct float64, loadBalanceExpected bool) error {
	t.Helper()
	ctx := context.Background()
	paths, err := r.Helper.EcmpPaths(width)
	if err != nil {
		return err
	}
	if err := r.ClearCounters(ctx, paths); err != nil {
		return fmt.Errorf("clearing counters: %w", err)
	}
	r.Injector.SendTraffic(t, r.trafficConfig())

	zero := ecmp.CounterSample{}
	check := func() error {
		after, err := r.sinceClear(ctx, paths)
		if err != nil {
			return err
		}
		log.V(2).Infof("[%s] %v", r.runID, lbverify.Summarize(zero, after, paths))
		if !lbverify.IsLoadBalanced(zero, after, paths, weights, maxDeviationPct, r.Config.NoTrafficOK) {
			return errNotBalanced
		}
		return nil
	}

	if !loadBalanceExpected {
		switch err := check(); {
		case err == nil:
			return fmt.Errorf("traffic over %d paths is load balanced, want imbalance", width)
		case errors.Is(err, errNotBalanced):
			return nil
		default:
			return err
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.Config.RetryInitialInterval
	b.MaxInterval = r.Config.RetryMaxInterval
	b.MaxElapsedTime = 0
	attempts := max(r.Config.RetryAttempts, 1)
	err = backoff.RetryNotify(check, backoff.WithMaxRetries(b, uint64(attempts-1)), func(err error, next time.Duration) {
		log.V(1).Infof("[%s] %v, retrying in %v", r.runID, err, next)
	})
	if err != nil {
		return fmt.Errorf("after %d attempts over %d paths: %w", attempts, width, err)
	}
	return nil
}
