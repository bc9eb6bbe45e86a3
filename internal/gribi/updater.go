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
	"context"
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"testing"

	log "github.com/golang/glog"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/routes"
	"github.com/openconfig/ecmpharness/internal/tescale"
	"github.com/openconfig/gribigo/client"
	"github.com/openconfig/gribigo/fluent"

	spb "github.com/openconfig/gribi/v1/proto/service"
)

// DefaultNetworkInstance holds next hops, next-hop groups and routes of
// the default VRF.
const DefaultNetworkInstance = "DEFAULT"

type nhKey struct {
	Addr      netip.Addr
	Interface string
}

type nhRef struct {
	ID   uint64
	Refs int
}

type nhgRef struct {
	ID      uint64
	Refs    int
	Members []nhKey
}

type routeKey struct {
	VRF    string
	Prefix netip.Prefix
}

type pendingOp struct {
	del   bool
	route ecmp.Route
}

type nhEntry struct {
	ID        uint64
	Addr      netip.Addr
	Interface string
}

type nhgMember struct {
	NH     uint64
	Weight uint64
}

type nhgEntry struct {
	ID      uint64
	Members []nhgMember
}

type ipEntry struct {
	Instance string
	Prefix   netip.Prefix
	NHG      uint64
}

// batch is one Program call translated into gRIBI entries.
type batch struct {
	AddNHs    []nhEntry
	AddNHGs   []nhgEntry
	AddRoutes []ipEntry
	DelRoutes []ipEntry
	DelNHGs   []uint64
	DelNHs    []uint64
}

func (b batch) empty() bool {
	return len(b.AddRoutes) == 0 && len(b.DelRoutes) == 0
}

// Updater implements routes.Updater over a gRIBI session. Routes with the
// same next-hop set share one next-hop group. The client ID of a route is
// not carried; the session's election ID identifies the writer.
type Updater struct {
	C *Client
	T testing.TB
	// NetworkInstance holds all next hops and next-hop groups.
	NetworkInstance string

	ids     *tescale.IDPool
	nhs     map[nhKey]nhRef
	nhgs    map[string]nhgRef
	routes  map[routeKey]string
	pending []pendingOp
	seen    int
	// write sends entries and waits for their results.
	write func(entries []fluent.GRIBIEntry, add bool) error
}

// NewUpdater returns an updater writing through c, which must already be
// the leader.
func NewUpdater(t testing.TB, c *Client) *Updater {
	u := &Updater{
		C:               c,
		T:               t,
		NetworkInstance: DefaultNetworkInstance,
		ids:             tescale.NewIDPool(0),
		nhs:             map[nhKey]nhRef{},
		nhgs:            map[string]nhgRef{},
		routes:          map[routeKey]string{},
	}
	u.write = u.modify
	return u
}

// AddRoute queues prefix in vrf towards nhops.
func (u *Updater) AddRoute(vrf string, prefix netip.Prefix, clientID int, nhops ecmp.NextHopSet) error {
	if len(nhops) == 0 {
		return fmt.Errorf("route %v in %s has no next hops", prefix, vrf)
	}
	u.pending = append(u.pending, pendingOp{route: ecmp.Route{
		VRF: vrf, Prefix: prefix.Masked(), ClientID: clientID, NextHops: slices.Clone(nhops),
	}})
	return nil
}

// DelRoute queues removal of prefix from vrf.
func (u *Updater) DelRoute(vrf string, prefix netip.Prefix, clientID int) error {
	u.pending = append(u.pending, pendingOp{del: true, route: ecmp.Route{VRF: vrf, Prefix: prefix.Masked(), ClientID: clientID}})
	return nil
}

// Discard drops the queued operations.
func (u *Updater) Discard() { u.pending = nil }

// Program sends the queued operations and waits for the switch to
// acknowledge them. A failed entry is reported as a
// *routes.ResourceExhaustedError. The bookkeeping is rolled back when the
// additions fail. Once the additions are acknowledged they are kept, and
// entries whose deletion failed stay on the switch under IDs that are not
// reused.
func (u *Updater) Program() error {
	ops := u.pending
	u.pending = nil
	nhs, nhgs, rts := maps.Clone(u.nhs), maps.Clone(u.nhgs), maps.Clone(u.routes)

	b := u.plan(ops)
	if b.empty() {
		return nil
	}
	log.V(1).Infof("gRIBI batch: +%d nh, +%d nhg, +%d route, -%d route, -%d nhg, -%d nh",
		len(b.AddNHs), len(b.AddNHGs), len(b.AddRoutes), len(b.DelRoutes), len(b.DelNHGs), len(b.DelNHs))
	added, err := u.send(b)
	if err != nil {
		if !added {
			u.nhs, u.nhgs, u.routes = nhs, nhgs, rts
		} else {
			log.Warningf("gRIBI deletes failed after additions were acknowledged; %d routes, %d groups and %d next hops left on the switch",
				len(b.DelRoutes), len(b.DelNHGs), len(b.DelNHs))
		}
		return err
	}
	return nil
}

// plan coalesces ops so that the last operation on a route wins and
// updates the reference counts.
func (u *Updater) plan(ops []pendingOp) batch {
	final := map[routeKey]pendingOp{}
	var order []routeKey
	for _, op := range ops {
		k := routeKey{VRF: op.route.VRF, Prefix: op.route.Prefix}
		if _, ok := final[k]; !ok {
			order = append(order, k)
		}
		final[k] = op
	}

	var b batch
	for _, k := range order {
		op := final[k]
		oldKey, installed := u.routes[k]
		if op.del {
			if !installed {
				continue
			}
			b.DelRoutes = append(b.DelRoutes, ipEntry{Instance: u.instance(k.VRF), Prefix: k.Prefix})
			delete(u.routes, k)
			u.releaseGroup(&b, oldKey)
			continue
		}
		key := op.route.NextHops.Key()
		if installed && oldKey == key {
			continue
		}
		id := u.acquireGroup(&b, op.route.NextHops)
		b.AddRoutes = append(b.AddRoutes, ipEntry{Instance: u.instance(k.VRF), Prefix: k.Prefix, NHG: id})
		u.routes[k] = key
		if installed {
			u.releaseGroup(&b, oldKey)
		}
	}
	return b
}

func (u *Updater) acquireGroup(b *batch, set ecmp.NextHopSet) uint64 {
	key := set.Key()
	if g, ok := u.nhgs[key]; ok {
		g.Refs++
		u.nhgs[key] = g
		return g.ID
	}
	g := nhgRef{ID: u.ids.NextNHGID(), Refs: 1}
	entry := nhgEntry{ID: g.ID}
	for _, nh := range set.Sorted() {
		k := nhKey{Addr: nh.Addr, Interface: nh.Interface}
		ref, ok := u.nhs[k]
		if !ok {
			ref = nhRef{ID: u.ids.NextNHID()}
			b.AddNHs = append(b.AddNHs, nhEntry{ID: ref.ID, Addr: nh.Addr, Interface: nh.Interface})
		}
		ref.Refs++
		u.nhs[k] = ref
		g.Members = append(g.Members, k)
		entry.Members = append(entry.Members, nhgMember{NH: ref.ID, Weight: max(nh.Weight, 1)})
	}
	u.nhgs[key] = g
	b.AddNHGs = append(b.AddNHGs, entry)
	return g.ID
}

func (u *Updater) releaseGroup(b *batch, key string) {
	g, ok := u.nhgs[key]
	if !ok {
		return
	}
	g.Refs--
	if g.Refs > 0 {
		u.nhgs[key] = g
		return
	}
	delete(u.nhgs, key)
	b.DelNHGs = append(b.DelNHGs, g.ID)
	for _, k := range g.Members {
		ref := u.nhs[k]
		ref.Refs--
		if ref.Refs > 0 {
			u.nhs[k] = ref
			continue
		}
		delete(u.nhs, k)
		b.DelNHs = append(b.DelNHs, ref.ID)
	}
}

func (u *Updater) instance(vrf string) string {
	if vrf == "" || vrf == "default" {
		return u.NetworkInstance
	}
	return vrf
}

// send writes additions before deletions so a route moving between
// groups is never left without one. added reports whether the additions
// were acknowledged.
func (u *Updater) send(b batch) (added bool, err error) {
	var adds, dels []fluent.GRIBIEntry
	for _, nh := range b.AddNHs {
		e := fluent.NextHopEntry().WithNetworkInstance(u.NetworkInstance).
			WithIndex(nh.ID).WithIPAddress(nh.Addr.String())
		if nh.Interface != "" {
			e.WithInterfaceRef(nh.Interface)
		}
		adds = append(adds, e)
	}
	for _, g := range b.AddNHGs {
		e := fluent.NextHopGroupEntry().WithNetworkInstance(u.NetworkInstance).WithID(g.ID)
		for _, m := range g.Members {
			e.AddNextHop(m.NH, m.Weight)
		}
		adds = append(adds, e)
	}
	for _, r := range b.AddRoutes {
		adds = append(adds, u.routeEntry(r, true))
	}
	for _, r := range b.DelRoutes {
		dels = append(dels, u.routeEntry(r, false))
	}
	for _, id := range b.DelNHGs {
		dels = append(dels, fluent.NextHopGroupEntry().WithNetworkInstance(u.NetworkInstance).WithID(id))
	}
	for _, id := range b.DelNHs {
		dels = append(dels, fluent.NextHopEntry().WithNetworkInstance(u.NetworkInstance).WithIndex(id))
	}

	if len(adds) > 0 {
		if err := u.write(adds, true); err != nil {
			return false, err
		}
	}
	if len(dels) > 0 {
		if err := u.write(dels, false); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (u *Updater) modify(entries []fluent.GRIBIEntry, add bool) error {
	if add {
		u.C.Fluent().Modify().AddEntry(u.T, entries...)
	} else {
		u.C.Fluent().Modify().DeleteEntry(u.T, entries...)
	}
	return u.await()
}

func (u *Updater) routeEntry(r ipEntry, withNHG bool) fluent.GRIBIEntry {
	if r.Prefix.Addr().Is4() {
		e := fluent.IPv4Entry().WithPrefix(r.Prefix.String()).WithNetworkInstance(r.Instance)
		if withNHG {
			e.WithNextHopGroup(r.NHG)
			if r.Instance != u.NetworkInstance {
				e.WithNextHopGroupNetworkInstance(u.NetworkInstance)
			}
		}
		return e
	}
	e := fluent.IPv6Entry().WithPrefix(r.Prefix.String()).WithNetworkInstance(r.Instance)
	if withNHG {
		e.WithNextHopGroup(r.NHG)
		if r.Instance != u.NetworkInstance {
			e.WithNextHopGroupNetworkInstance(u.NetworkInstance)
		}
	}
	return e
}

func (u *Updater) await() error {
	if err := u.C.AwaitTimeout(context.Background(), u.T, timeout); err != nil {
		return fmt.Errorf("waiting for gRIBI results: %w", err)
	}
	results := u.C.Fluent().Results(u.T)
	fresh := results[min(u.seen, len(results)):]
	u.seen = len(results)
	return checkResults(fresh)
}

// checkResults returns the first failed operation in results. The switch
// reports a full forwarding table as FAILED or FIB_FAILED.
func checkResults(results []*client.OpResult) error {
	for _, r := range results {
		if r.ClientError != "" {
			return fmt.Errorf("gRIBI client error: %s", r.ClientError)
		}
		if r.OperationID == 0 {
			continue
		}
		switch r.ProgrammingResult {
		case spb.AFTResult_FAILED, spb.AFTResult_FIB_FAILED:
			return &routes.ResourceExhaustedError{
				Resource: resourceOf(r.Details),
				Detail:   fmt.Sprintf("operation %d: %s", r.OperationID, r.ProgrammingResult),
			}
		}
	}
	return nil
}

func resourceOf(d *client.OpDetailsResults) string {
	switch {
	case d == nil:
		return routes.Routes
	case d.NextHopGroupID != 0:
		return routes.EcmpGroups
	case d.NextHopIndex != 0:
		return routes.EcmpMembers
	}
	return routes.Routes
}

var _ routes.Updater = (*Updater)(nil)
