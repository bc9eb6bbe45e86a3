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

package routes

import (
	"fmt"
	"net/netip"
	"slices"

	log "github.com/golang/glog"
	"github.com/kr/pretty"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/statetree"
)

type pendingOp struct {
	del   bool
	route ecmp.Route
}

// Memory applies routes to an in-memory state tree. It enforces optional
// ECMP group and member ceilings the way a switch would, rejecting a whole
// batch that does not fit. A zero ceiling means unlimited.
type Memory struct {
	MaxEcmpGroups  int
	MaxEcmpMembers int

	state   *statetree.Accessor
	pending []pendingOp
}

// NewMemory returns an updater writing to state.
func NewMemory(state *statetree.Accessor) *Memory {
	return &Memory{state: state}
}

// AddRoute queues prefix in vrf towards nhops.
func (m *Memory) AddRoute(vrf string, prefix netip.Prefix, clientID int, nhops ecmp.NextHopSet) error {
	if len(nhops) == 0 {
		return fmt.Errorf("route %v in %s has no next hops", prefix, vrf)
	}
	m.pending = append(m.pending, pendingOp{route: ecmp.Route{
		VRF: vrf, Prefix: prefix, ClientID: clientID, NextHops: slices.Clone(nhops),
	}})
	return nil
}

// DelRoute queues removal of prefix from vrf.
func (m *Memory) DelRoute(vrf string, prefix netip.Prefix, clientID int) error {
	m.pending = append(m.pending, pendingOp{del: true, route: ecmp.Route{VRF: vrf, Prefix: prefix, ClientID: clientID}})
	return nil
}

// Pending returns the number of queued operations.
func (m *Memory) Pending() int { return len(m.pending) }

// Discard drops the queued operations.
func (m *Memory) Discard() { m.pending = nil }

// Program commits the queued operations as one state version.
func (m *Memory) Program() error {
	ops := m.pending
	m.pending = nil
	if len(ops) == 0 {
		return nil
	}
	_, err := m.state.Apply("program routes", func(cur *statetree.Tree) (*statetree.Tree, error) {
		next, err := cur.Modify(func(mt *statetree.Mutable) error {
			for _, op := range ops {
				if op.del {
					mt.DelRoute(op.route.VRF, op.route.Prefix)
					continue
				}
				log.V(1).Infof("Adding route %v in %s: %# v", op.route.Prefix, op.route.VRF, pretty.Formatter(op.route.NextHops))
				mt.AddRoute(op.route)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if err := m.checkCeilings(next); err != nil {
			return nil, err
		}
		return next, nil
	})
	return err
}

// Usage returns the distinct ECMP groups and their total members across
// all VRFs of t. Routes with a single next hop do not use a group.
func Usage(t *statetree.Tree, vrfs ...string) (groups, members int) {
	seen := map[string]bool{}
	for _, vrf := range vrfs {
		for _, r := range t.Routes(vrf) {
			if r.NextHops.Members() < 2 {
				continue
			}
			k := r.NextHops.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			groups++
			members += r.NextHops.Members()
		}
	}
	return groups, members
}

func (m *Memory) checkCeilings(t *statetree.Tree) error {
	if m.MaxEcmpGroups == 0 && m.MaxEcmpMembers == 0 {
		return nil
	}
	groups, members := Usage(t, t.VRFs()...)
	if m.MaxEcmpGroups > 0 && groups > m.MaxEcmpGroups {
		return &ResourceExhaustedError{Resource: EcmpGroups, Limit: m.MaxEcmpGroups, Requested: groups}
	}
	if m.MaxEcmpMembers > 0 && members > m.MaxEcmpMembers {
		return &ResourceExhaustedError{Resource: EcmpMembers, Limit: m.MaxEcmpMembers, Requested: members}
	}
	return nil
}
