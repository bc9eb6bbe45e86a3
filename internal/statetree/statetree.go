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

// Package statetree models the switch state the harness reads and writes:
// egress paths, interface addresses, neighbor tables, routes and load
// balancer settings. A Tree is immutable. Every change goes through Modify
// and yields a new version, leaving the old one readable.
package statetree

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strings"

	"github.com/openconfig/ecmpharness/internal/attrs"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/loadbalancer"
	"github.com/openconfig/ondatra/gnmi/oc"
	"github.com/openconfig/ygot/ygot"

	gpb "github.com/openconfig/gnmi/proto/gnmi"
)

type routeKey struct {
	vrf    string
	prefix netip.Prefix
}

// Tree is one version of the switch state.
type Tree struct {
	version uint64
	root    *oc.Root
	paths   map[ecmp.PathHandle]string
	routes  map[routeKey]ecmp.Route
	lbs     []loadbalancer.LoadBalancer
}

// New returns an empty tree at version 0.
func New() *Tree {
	return &Tree{
		root:   &oc.Root{},
		paths:  map[ecmp.PathHandle]string{},
		routes: map[routeKey]ecmp.Route{},
	}
}

// Version returns the version of t. Each Modify increments it.
func (t *Tree) Version() uint64 { return t.version }

// Clone returns an independent copy of t with the same version.
func (t *Tree) Clone() (*Tree, error) {
	gs, err := ygot.DeepCopy(t.root)
	if err != nil {
		return nil, fmt.Errorf("cannot copy state version %d: %w", t.version, err)
	}
	routes := make(map[routeKey]ecmp.Route, len(t.routes))
	for k, r := range t.routes {
		r.NextHops = slices.Clone(r.NextHops)
		routes[k] = r
	}
	return &Tree{
		version: t.version,
		root:    gs.(*oc.Root),
		paths:   maps.Clone(t.paths),
		routes:  routes,
		lbs:     slices.Clone(t.lbs),
	}, nil
}

// Modify applies fn to a copy of t and returns the copy as the next
// version. t itself never changes. If fn fails the copy is discarded.
func (t *Tree) Modify(fn func(m *Mutable) error) (*Tree, error) {
	next, err := t.Clone()
	if err != nil {
		return nil, err
	}
	if err := fn(&Mutable{t: next}); err != nil {
		return nil, err
	}
	next.version = t.version + 1
	return next, nil
}

// Paths returns the known egress paths in order.
func (t *Tree) Paths() []ecmp.PathHandle {
	out := slices.Collect(maps.Keys(t.paths))
	ecmp.SortPaths(out)
	return out
}

// Interface returns the interface backing path p.
func (t *Tree) Interface(p ecmp.PathHandle) (string, bool) {
	name, ok := t.paths[p]
	return name, ok
}

// PathForInterface returns the path backed by interface name.
func (t *Tree) PathForInterface(name string) (ecmp.PathHandle, bool) {
	for p, n := range t.paths {
		if n == name {
			return p, true
		}
	}
	return ecmp.PathHandle{}, false
}

// InterfaceAddresses returns the addresses configured on subinterface 0 of
// name, IPv4 first.
func (t *Tree) InterfaceAddresses(name string) []netip.Prefix {
	sub := t.root.GetInterface(name).GetSubinterface(0)
	var out []netip.Prefix
	add := func(ip string, plen uint8) {
		if p, err := netip.ParsePrefix(fmt.Sprintf("%s/%d", ip, plen)); err == nil {
			out = append(out, p)
		}
	}
	if v4 := sub.GetIpv4(); v4 != nil {
		for ip, a := range v4.Address {
			add(ip, a.GetPrefixLength())
		}
	}
	if v6 := sub.GetIpv6(); v6 != nil {
		for ip, a := range v6.Address {
			add(ip, a.GetPrefixLength())
		}
	}
	slices.SortFunc(out, func(a, b netip.Prefix) int {
		if c := a.Addr().Compare(b.Addr()); c != 0 {
			return c
		}
		return a.Bits() - b.Bits()
	})
	return out
}

// Neighbor returns the link layer address of neighbor ip on interface name.
func (t *Tree) Neighbor(name string, ip netip.Addr) (string, bool) {
	sub := t.root.GetInterface(name).GetSubinterface(0)
	if ip.Is4() {
		n := sub.GetIpv4().GetNeighbor(ip.String())
		return n.GetLinkLayerAddress(), n != nil
	}
	n := sub.GetIpv6().GetNeighbor(ip.String())
	return n.GetLinkLayerAddress(), n != nil
}

// Neighbors returns the neighbor table of interface name keyed by IP.
func (t *Tree) Neighbors(name string) map[string]string {
	sub := t.root.GetInterface(name).GetSubinterface(0)
	out := map[string]string{}
	if v4 := sub.GetIpv4(); v4 != nil {
		for ip, n := range v4.Neighbor {
			out[ip] = n.GetLinkLayerAddress()
		}
	}
	if v6 := sub.GetIpv6(); v6 != nil {
		for ip, n := range v6.Neighbor {
			out[ip] = n.GetLinkLayerAddress()
		}
	}
	return out
}

// AdjacencyTable returns the neighbor tables of the interfaces behind paths.
func (t *Tree) AdjacencyTable(paths []ecmp.PathHandle) map[ecmp.PathHandle]map[string]string {
	out := make(map[ecmp.PathHandle]map[string]string, len(paths))
	for _, p := range paths {
		name, ok := t.paths[p]
		if !ok {
			continue
		}
		out[p] = t.Neighbors(name)
	}
	return out
}

// Route returns the route for prefix in vrf.
func (t *Tree) Route(vrf string, prefix netip.Prefix) (ecmp.Route, bool) {
	r, ok := t.routes[routeKey{vrf: vrf, prefix: prefix.Masked()}]
	r.NextHops = slices.Clone(r.NextHops)
	return r, ok
}

// Routes returns the routes of vrf ordered by prefix.
func (t *Tree) Routes(vrf string) []ecmp.Route {
	var out []ecmp.Route
	for k, r := range t.routes {
		if k.vrf == vrf {
			r.NextHops = slices.Clone(r.NextHops)
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b ecmp.Route) int {
		return strings.Compare(a.Prefix.String(), b.Prefix.String())
	})
	return out
}

// VRFs returns the VRFs holding routes.
func (t *Tree) VRFs() []string {
	seen := map[string]bool{}
	var out []string
	for k := range t.routes {
		if !seen[k.vrf] {
			seen[k.vrf] = true
			out = append(out, k.vrf)
		}
	}
	slices.Sort(out)
	return out
}

// LoadBalancers returns the configured load balancers.
func (t *Tree) LoadBalancers() []loadbalancer.LoadBalancer {
	return slices.Clone(t.lbs)
}

// Equivalent reports whether a and b hold the same neighbor tables for
// paths.
func Equivalent(a, b *Tree, paths []ecmp.PathHandle) bool {
	ta, tb := a.AdjacencyTable(paths), b.AdjacencyTable(paths)
	return maps.EqualFunc(ta, tb, func(x, y map[string]string) bool {
		return maps.Equal(x, y)
	})
}

// Diff returns the OpenConfig leaves that differ between a and b.
func Diff(a, b *Tree) (*gpb.Notification, error) {
	return ygot.Diff(a.root, b.root)
}

// Mutable is the writable view of a tree handed to Modify callbacks.
type Mutable struct {
	t *Tree
}

// AddPort adds a physical port path backed by interface name.
func (m *Mutable) AddPort(p ecmp.PathHandle, name string, a attrs.Attributes) error {
	if err := m.checkNewPath(p, name); err != nil {
		return err
	}
	a.ConfigInterface(m.t.root.GetOrCreateInterface(name))
	m.t.paths[p] = name
	return nil
}

// AddTrunk adds an aggregate path backed by interface name with the given
// member ports.
func (m *Mutable) AddTrunk(p ecmp.PathHandle, name string, members []string, a attrs.Attributes) error {
	if err := m.checkNewPath(p, name); err != nil {
		return err
	}
	lag := m.t.root.GetOrCreateInterface(name)
	lag.Type = oc.IETFInterfaces_InterfaceType_ieee8023adLag
	lag.GetOrCreateAggregation().LagType = oc.IfAggregate_AggregationType_STATIC
	a.ConfigInterface(lag)
	for _, member := range members {
		mi := m.t.root.GetOrCreateInterface(member)
		mi.Type = oc.IETFInterfaces_InterfaceType_ethernetCsmacd
		mi.GetOrCreateEthernet().AggregateId = ygot.String(name)
	}
	m.t.paths[p] = name
	return nil
}

func (m *Mutable) checkNewPath(p ecmp.PathHandle, name string) error {
	if old, ok := m.t.paths[p]; ok {
		return fmt.Errorf("path %v already backed by %s", p, old)
	}
	if _, ok := m.t.root.Interface[name]; ok {
		return fmt.Errorf("interface %s already exists", name)
	}
	return nil
}

// SetNeighbor resolves neighbor ip on interface name to mac.
func (m *Mutable) SetNeighbor(name string, ip netip.Addr, mac string) error {
	intf := m.t.root.GetInterface(name)
	if intf == nil {
		return fmt.Errorf("interface %s not found", name)
	}
	sub := intf.GetOrCreateSubinterface(0)
	if ip.Is4() {
		sub.GetOrCreateIpv4().GetOrCreateNeighbor(ip.String()).LinkLayerAddress = ygot.String(mac)
		return nil
	}
	sub.GetOrCreateIpv6().GetOrCreateNeighbor(ip.String()).LinkLayerAddress = ygot.String(mac)
	return nil
}

// DeleteNeighbor removes neighbor ip from interface name. Removing an absent
// neighbor is not an error.
func (m *Mutable) DeleteNeighbor(name string, ip netip.Addr) {
	sub := m.t.root.GetInterface(name).GetSubinterface(0)
	if ip.Is4() {
		if v4 := sub.GetIpv4(); v4 != nil {
			v4.DeleteNeighbor(ip.String())
		}
		return
	}
	if v6 := sub.GetIpv6(); v6 != nil {
		v6.DeleteNeighbor(ip.String())
	}
}

// AddRoute adds or replaces r.
func (m *Mutable) AddRoute(r ecmp.Route) {
	r.Prefix = r.Prefix.Masked()
	r.NextHops = slices.Clone(r.NextHops)
	m.t.routes[routeKey{vrf: r.VRF, prefix: r.Prefix}] = r
}

// DelRoute removes the route for prefix in vrf and reports whether it
// existed.
func (m *Mutable) DelRoute(vrf string, prefix netip.Prefix) bool {
	k := routeKey{vrf: vrf, prefix: prefix.Masked()}
	_, ok := m.t.routes[k]
	delete(m.t.routes, k)
	return ok
}

// SetLoadBalancers replaces the load balancer config.
func (m *Mutable) SetLoadBalancers(lbs []loadbalancer.LoadBalancer) {
	m.t.lbs = slices.Clone(lbs)
}

// Tree returns the tree being modified for reads within a callback.
func (m *Mutable) Tree() *Tree { return m.t }
