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

// Package nexthop derives next hops for the egress paths of a topology,
// resolves and unresolves them in the switch state, and programs routes
// over them.
package nexthop

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	log "github.com/golang/glog"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/iputil"
	"github.com/openconfig/ecmpharness/internal/statetree"
)

const (
	// DefaultNextHopMAC is the neighbor MAC used when none is supplied.
	DefaultNextHopMAC = "02:00:00:00:0f:0b"
	// DefaultVRF is the VRF routes are programmed in when none is supplied.
	DefaultVRF = "default"
)

var (
	// ErrUnknownPath is returned for a path the helper has no next hop for.
	ErrUnknownPath = errors.New("unknown path")
	// ErrPrefixMismatch is returned when combinations and prefixes cannot be
	// paired one to one.
	ErrPrefixMismatch = errors.New("combination and prefix counts differ")
)

// NextHop is the neighbor reached over one egress path.
type NextHop[A iputil.Addr] struct {
	IP        A
	Path      ecmp.PathHandle
	MAC       net.HardwareAddr
	Interface string
	// LinkLocal is set when routes use the link-local neighbor instead of IP.
	LinkLocal *A
}

// RouteAddr returns the address routes forward to.
func (n NextHop[A]) RouteAddr() netip.Addr {
	if n.LinkLocal != nil {
		return (*n.LinkLocal).Netip()
	}
	return n.IP.Netip()
}

func (n NextHop[A]) String() string {
	return fmt.Sprintf("%v via %s (%s) mac %v", n.IP, n.Interface, n.Path, n.MAC)
}

// Options configure a Helper.
type Options struct {
	// MAC is the neighbor MAC. DefaultNextHopMAC when empty.
	MAC string
	// VRF routes are programmed in. DefaultVRF when empty.
	VRF      string
	ClientID int
	// Prefix routed by SetupForwarding. The default route when invalid.
	Prefix netip.Prefix
	// UseLinkLocal makes IPv6 routes point at the link-local neighbor.
	UseLinkLocal bool
}

// Helper holds the next hops of one address family.
type Helper[A iputil.Addr] struct {
	opts   Options
	mac    net.HardwareAddr
	prefix iputil.Prefix[A]
	nhops  []NextHop[A]
	index  map[ecmp.PathHandle]int
}

// New returns a helper with next hops computed from tree.
func New[A iputil.Addr](tree *statetree.Tree, opts Options) (*Helper[A], error) {
	if opts.MAC == "" {
		opts.MAC = DefaultNextHopMAC
	}
	if opts.VRF == "" {
		opts.VRF = DefaultVRF
	}
	mac, err := net.ParseMAC(opts.MAC)
	if err != nil {
		return nil, fmt.Errorf("invalid next hop MAC: %w", err)
	}
	prefix := iputil.DefaultRoute[A]()
	if opts.Prefix.IsValid() {
		if prefix, err = iputil.PrefixFromNetip[A](opts.Prefix); err != nil {
			return nil, fmt.Errorf("invalid %s prefix: %w", iputil.Family[A](), err)
		}
	}
	h := &Helper[A]{opts: opts, mac: mac, prefix: prefix}
	if err := h.Recompute(tree); err != nil {
		return nil, err
	}
	return h, nil
}

// ComputeNextHops derives one next hop per path of tree whose interface
// carries an address of family A. The next hop IP is the address after the
// interface address. Paths without such an address are skipped.
func (h *Helper[A]) ComputeNextHops(tree *statetree.Tree) ([]NextHop[A], error) {
	var out []NextHop[A]
	for _, p := range tree.Paths() {
		name, _ := tree.Interface(p)
		var local *A
		for _, pfx := range tree.InterfaceAddresses(name) {
			if a, err := iputil.FromNetip[A](pfx.Addr()); err == nil {
				local = &a
				break
			}
		}
		if local == nil {
			log.V(1).Infof("Path %v (%s) has no %s address, skipping", p, name, iputil.Family[A]())
			continue
		}
		nh := NextHop[A]{
			IP:        iputil.Next(*local),
			Path:      p,
			MAC:       h.mac,
			Interface: name,
		}
		if h.opts.UseLinkLocal {
			if ll, ok := iputil.LinkLocalNextHop[A](); ok {
				nh.LinkLocal = &ll
			}
		}
		out = append(out, nh)
	}
	return out, nil
}

// Recompute refreshes the next hops from tree.
func (h *Helper[A]) Recompute(tree *statetree.Tree) error {
	nhops, err := h.ComputeNextHops(tree)
	if err != nil {
		return err
	}
	h.nhops = nhops
	h.index = make(map[ecmp.PathHandle]int, len(nhops))
	for i, nh := range nhops {
		h.index[nh.Path] = i
	}
	return nil
}

// NextHops returns all next hops in path order.
func (h *Helper[A]) NextHops() []NextHop[A] {
	return append([]NextHop[A](nil), h.nhops...)
}

// NextHop returns the next hop of path p.
func (h *Helper[A]) NextHop(p ecmp.PathHandle) (NextHop[A], error) {
	i, ok := h.index[p]
	if !ok {
		return NextHop[A]{}, fmt.Errorf("%w: %v has no %s next hop", ErrUnknownPath, p, iputil.Family[A]())
	}
	return h.nhops[i], nil
}

// IP returns the next hop IP of path p.
func (h *Helper[A]) IP(p ecmp.PathHandle) (A, error) {
	nh, err := h.NextHop(p)
	return nh.IP, err
}

// EcmpPathAt returns the path of the i-th next hop.
func (h *Helper[A]) EcmpPathAt(i int) (ecmp.PathHandle, error) {
	if i < 0 || i >= len(h.nhops) {
		return ecmp.PathHandle{}, fmt.Errorf("%w: index %d of %d next hops", ErrUnknownPath, i, len(h.nhops))
	}
	return h.nhops[i].Path, nil
}

// EcmpPaths returns the paths of the first width next hops.
func (h *Helper[A]) EcmpPaths(width int) ([]ecmp.PathHandle, error) {
	if width < 0 || width > len(h.nhops) {
		return nil, fmt.Errorf("ECMP width %d exceeds %d %s next hops", width, len(h.nhops), iputil.Family[A]())
	}
	out := make([]ecmp.PathHandle, width)
	for i := range out {
		out[i] = h.nhops[i].Path
	}
	return out, nil
}

// Prefix returns the prefix routed by SetupForwarding.
func (h *Helper[A]) Prefix() iputil.Prefix[A] { return h.prefix }

// VRF returns the VRF routes are programmed in.
func (h *Helper[A]) VRF() string { return h.opts.VRF }
