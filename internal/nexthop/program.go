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
	"fmt"

	log "github.com/golang/glog"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/iputil"
	"github.com/openconfig/ecmpharness/internal/routes"
	"github.com/openconfig/ecmpharness/internal/statetree"
)

// Errors from the route updater are returned unwrapped.

// discard drops a batch that failed before Program so none of it reaches a
// later commit.
func discard(u routes.Updater, err error) error {
	u.Discard()
	return err
}

// NextHopSet returns the route next hops for paths. A nil weights slice
// means equal cost.
func (h *Helper[A]) NextHopSet(paths []ecmp.PathHandle, weights []uint64) (ecmp.NextHopSet, error) {
	if weights != nil && len(weights) != len(paths) {
		return nil, fmt.Errorf("%d weights for %d paths", len(weights), len(paths))
	}
	out := make(ecmp.NextHopSet, 0, len(paths))
	for i, p := range paths {
		nh, err := h.NextHop(p)
		if err != nil {
			return nil, err
		}
		w := uint64(1)
		if weights != nil {
			w = weights[i]
		}
		out = append(out, ecmp.RouteNextHop{Addr: nh.RouteAddr(), Interface: nh.Interface, Weight: w})
	}
	return out, nil
}

// SetupForwarding routes the helper's prefix over paths and commits it.
// weights[i] is the weight of paths[i].
func (h *Helper[A]) SetupForwarding(tree *statetree.Tree, u routes.Updater, paths []ecmp.PathHandle, weights []uint64) error {
	if n := ecmp.NewPathSet(paths...).Len(); n != len(paths) {
		return fmt.Errorf("%d paths with %d distinct", len(paths), n)
	}
	for _, p := range paths {
		if _, ok := tree.Interface(p); !ok {
			return fmt.Errorf("%w: %v is not in state version %d", ErrUnknownPath, p, tree.Version())
		}
	}
	nhs, err := h.NextHopSet(paths, weights)
	if err != nil {
		return err
	}
	log.Infof("Routing %v in %s over %d paths", h.prefix, h.opts.VRF, len(nhs))
	if err := u.AddRoute(h.opts.VRF, h.prefix.Netip(), h.opts.ClientID, nhs); err != nil {
		return discard(u, err)
	}
	return u.Program()
}

// ProgramRoutes routes prefixes[i] over combos[i] with equal cost and
// commits the batch.
func (h *Helper[A]) ProgramRoutes(u routes.Updater, combos []ecmp.Combination, prefixes []iputil.Prefix[A]) error {
	weighted := make([]ecmp.WeightedCombination, len(combos))
	for i, c := range combos {
		weighted[i] = ecmp.WeightedCombination{Paths: c}
	}
	return h.ProgramWeightedRoutes(u, weighted, prefixes)
}

// ProgramWeightedRoutes routes prefixes[i] over combos[i] with its weights
// and commits the batch. Combinations without weights are equal cost.
func (h *Helper[A]) ProgramWeightedRoutes(u routes.Updater, combos []ecmp.WeightedCombination, prefixes []iputil.Prefix[A]) error {
	if len(combos) != len(prefixes) {
		return fmt.Errorf("%w: %d combinations, %d prefixes", ErrPrefixMismatch, len(combos), len(prefixes))
	}
	sets := make([]ecmp.NextHopSet, len(combos))
	for i, c := range combos {
		nhs, err := h.NextHopSet(c.Paths, c.Weights)
		if err != nil {
			return err
		}
		sets[i] = nhs
	}
	for i, nhs := range sets {
		log.V(1).Infof("Routing %v over %v", prefixes[i], combos[i].Paths)
		if err := u.AddRoute(h.opts.VRF, prefixes[i].Netip(), h.opts.ClientID, nhs); err != nil {
			return discard(u, err)
		}
	}
	log.Infof("Programming %d %s routes", len(prefixes), iputil.Family[A]())
	return u.Program()
}

// ProgramRoutesTo routes every prefix over the same paths.
func (h *Helper[A]) ProgramRoutesTo(u routes.Updater, set ecmp.PathSet, prefixes []iputil.Prefix[A], weights []uint64) error {
	nhs, err := h.NextHopSet(set.Slice(), weights)
	if err != nil {
		return err
	}
	for _, p := range prefixes {
		if err := u.AddRoute(h.opts.VRF, p.Netip(), h.opts.ClientID, nhs); err != nil {
			return discard(u, err)
		}
	}
	return u.Program()
}

// UnprogramRoutes removes prefixes and commits the batch.
func (h *Helper[A]) UnprogramRoutes(u routes.Updater, prefixes []iputil.Prefix[A]) error {
	for _, p := range prefixes {
		if err := u.DelRoute(h.opts.VRF, p.Netip(), h.opts.ClientID); err != nil {
			return discard(u, err)
		}
	}
	log.Infof("Removing %d %s routes", len(prefixes), iputil.Family[A]())
	return u.Program()
}
