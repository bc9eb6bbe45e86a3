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
	"cmp"
	"net/netip"
	"slices"

	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/routes"
)

type routeKey struct {
	vrf    string
	prefix netip.Prefix
}

// journal passes route changes to an updater and remembers the routes of
// every batch the updater accepted.
type journal struct {
	inner     routes.Updater
	pending   []ecmp.Route
	deletes   []bool
	committed map[routeKey]ecmp.Route
}

func newJournal(u routes.Updater) *journal {
	return &journal{inner: u, committed: map[routeKey]ecmp.Route{}}
}

func (j *journal) AddRoute(vrf string, prefix netip.Prefix, clientID int, nhops ecmp.NextHopSet) error {
	if err := j.inner.AddRoute(vrf, prefix, clientID, nhops); err != nil {
		return err
	}
	j.pending = append(j.pending, ecmp.Route{VRF: vrf, Prefix: prefix, ClientID: clientID, NextHops: slices.Clone(nhops)})
	j.deletes = append(j.deletes, false)
	return nil
}

func (j *journal) DelRoute(vrf string, prefix netip.Prefix, clientID int) error {
	if err := j.inner.DelRoute(vrf, prefix, clientID); err != nil {
		return err
	}
	j.pending = append(j.pending, ecmp.Route{VRF: vrf, Prefix: prefix, ClientID: clientID})
	j.deletes = append(j.deletes, true)
	return nil
}

func (j *journal) Discard() {
	j.pending, j.deletes = nil, nil
	j.inner.Discard()
}

// Program commits the batch. Errors are returned as the updater produced
// them.
func (j *journal) Program() error {
	pending, deletes := j.pending, j.deletes
	j.pending, j.deletes = nil, nil
	if err := j.inner.Program(); err != nil {
		return err
	}
	for i, r := range pending {
		k := routeKey{vrf: r.VRF, prefix: r.Prefix}
		if deletes[i] {
			delete(j.committed, k)
			continue
		}
		j.committed[k] = r
	}
	return nil
}

// Routes returns the committed routes ordered by VRF and prefix.
func (j *journal) Routes() []ecmp.Route {
	out := make([]ecmp.Route, 0, len(j.committed))
	for _, r := range j.committed {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b ecmp.Route) int {
		if c := cmp.Compare(a.VRF, b.VRF); c != 0 {
			return c
		}
		if c := a.Prefix.Addr().Compare(b.Prefix.Addr()); c != 0 {
			return c
		}
		return cmp.Compare(a.Prefix.Bits(), b.Prefix.Bits())
	})
	return out
}

// restore replaces the committed routes with rs.
func (j *journal) restore(rs []ecmp.Route) {
	j.committed = make(map[routeKey]ecmp.Route, len(rs))
	for _, r := range rs {
		j.committed[routeKey{vrf: r.VRF, prefix: r.Prefix}] = r
	}
}

// replay re-adds every committed route and programs them as one batch.
func (j *journal) replay() error {
	rs := j.Routes()
	if len(rs) == 0 {
		return nil
	}
	for _, r := range rs {
		if err := j.AddRoute(r.VRF, r.Prefix, r.ClientID, r.NextHops); err != nil {
			j.Discard()
			return err
		}
	}
	return j.Program()
}

var _ routes.Updater = (*journal)(nil)
