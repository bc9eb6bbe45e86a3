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

package nexthop

import (
	log "github.com/golang/glog"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/statetree"
)

// ResolveNextHops returns a version of tree where the neighbors of every
// path in set are resolved. Resolving a resolved path changes nothing.
func (h *Helper[A]) ResolveNextHops(tree *statetree.Tree, set ecmp.PathSet) (*statetree.Tree, error) {
	return h.modifyNeighbors(tree, set, true)
}

// UnresolveNextHops returns a version of tree where the neighbors of every
// path in set are removed. Unresolving an unresolved path changes nothing.
func (h *Helper[A]) UnresolveNextHops(tree *statetree.Tree, set ecmp.PathSet) (*statetree.Tree, error) {
	return h.modifyNeighbors(tree, set, false)
}

// ResolveFirst resolves the first n next hops.
func (h *Helper[A]) ResolveFirst(tree *statetree.Tree, n int) (*statetree.Tree, error) {
	paths, err := h.EcmpPaths(n)
	if err != nil {
		return nil, err
	}
	return h.ResolveNextHops(tree, ecmp.NewPathSet(paths...))
}

// UnresolveFirst unresolves the first n next hops.
func (h *Helper[A]) UnresolveFirst(tree *statetree.Tree, n int) (*statetree.Tree, error) {
	paths, err := h.EcmpPaths(n)
	if err != nil {
		return nil, err
	}
	return h.UnresolveNextHops(tree, ecmp.NewPathSet(paths...))
}

func (h *Helper[A]) modifyNeighbors(tree *statetree.Tree, set ecmp.PathSet, resolve bool) (*statetree.Tree, error) {
	nhops := make([]NextHop[A], 0, set.Len())
	for _, p := range set.Slice() {
		nh, err := h.NextHop(p)
		if err != nil {
			return nil, err
		}
		nhops = append(nhops, nh)
	}
	return tree.Modify(func(m *statetree.Mutable) error {
		for _, nh := range nhops {
			if !resolve {
				log.V(1).Infof("Unresolving %v", nh)
				m.DeleteNeighbor(nh.Interface, nh.IP.Netip())
				if nh.LinkLocal != nil {
					m.DeleteNeighbor(nh.Interface, (*nh.LinkLocal).Netip())
				}
				continue
			}
			log.V(1).Infof("Resolving %v", nh)
			if err := m.SetNeighbor(nh.Interface, nh.IP.Netip(), nh.MAC.String()); err != nil {
				return err
			}
			if nh.LinkLocal != nil {
				if err := m.SetNeighbor(nh.Interface, (*nh.LinkLocal).Netip(), nh.MAC.String()); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
