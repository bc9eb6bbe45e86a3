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
	"github.com/openconfig/ecmpharness/internal/statestore"
	"github.com/openconfig/ecmpharness/internal/statetree"
	"gopkg.in/yaml.v3"
)

// Hooks are the phases of a test run across a warm boot. Nil hooks are
// skipped; a nil VerifyPostWarmboot falls back to Verify.
type Hooks[A iputil.Addr] struct {
	Setup              func(t testing.TB, r *Runner[A])
	Verify             func(t testing.TB, r *Runner[A])
	SetupPostWarmboot  func(t testing.TB, r *Runner[A])
	VerifyPostWarmboot func(t testing.TB, r *Runner[A])
}

type snapshot struct {
	RunID  string       `yaml:"run-id"`
	State  string       `yaml:"state"`
	Routes []ecmp.Route `yaml:"routes"`
}

func (r *Runner[A]) snapshotKey() string { return "warmboot-" + r.runID }

// SaveSnapshot writes the current state and committed routes to the
// store.
func (r *Runner[A]) SaveSnapshot(ctx context.Context) error {
	state, err := r.State.Current().Marshal()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(snapshot{RunID: r.runID, State: string(state), Routes: r.updater.Routes()})
	if err != nil {
		return err
	}
	return r.store().Save(ctx, r.snapshotKey(), data)
}

// RestoreSnapshot loads the saved state, recomputes the next hops from it
// and replays the committed routes to the updater.
func (r *Runner[A]) RestoreSnapshot(ctx context.Context) error {
	data, err := r.store().Load(ctx, r.snapshotKey())
	if err != nil {
		return err
	}
	var s snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	tree, err := statetree.Unmarshal([]byte(s.State))
	if err != nil {
		return err
	}
	r.State.Replace(tree)
	if err := r.Helper.Recompute(tree); err != nil {
		return err
	}
	r.updater.restore(s.Routes)
	log.Infof("[%s] Replaying %d routes onto state version %d", r.runID, len(s.Routes), tree.Version())
	return r.updater.replay()
}

// store returns the configured store, opening Config.StateStore or
// falling back to memory.
func (r *Runner[A]) store() statestore.Store {
	if r.Store != nil {
		return r.Store
	}
	if r.Config.StateStore != "" {
		s, err := statestore.Open(r.Config.StateStore)
		if err == nil {
			r.Store = s
			return s
		}
		log.Warningf("Opening state store %q: %v, keeping snapshots in memory", r.Config.StateStore, err)
	}
	r.Store = &memStore{data: map[string][]byte{}}
	return r.Store
}

// RunAcrossWarmBoots runs setup and verify, warm boots the switch with
// the state saved, restores it and runs the post warm boot hooks. Without
// a Restarter only setup and verify run.
func (r *Runner[A]) RunAcrossWarmBoots(t testing.TB, h Hooks[A]) {
	t.Helper()
	ctx := context.Background()
	if h.Setup != nil {
		h.Setup(t, r)
	}
	if h.Verify != nil {
		h.Verify(t, r)
	}
	if r.Restarter == nil {
		return
	}

	if err := r.SaveSnapshot(ctx); err != nil {
		t.Fatalf("Saving state before warm boot: %v", err)
	}
	log.Infof("[%s] Warm booting at state version %d", r.runID, r.State.Current().Version())
	if err := r.Restarter.WarmBoot(ctx); err != nil {
		t.Fatalf("Warm boot: %v", err)
	}
	if err := r.RestoreSnapshot(ctx); err != nil {
		t.Fatalf("Restoring state after warm boot: %v", err)
	}

	if h.SetupPostWarmboot != nil {
		h.SetupPostWarmboot(t, r)
	}
	switch {
	case h.VerifyPostWarmboot != nil:
		h.VerifyPostWarmboot(t, r)
	case h.Verify != nil:
		h.Verify(t, r)
	}
}

type memStore struct {
	data map[string][]byte
}

func (m *memStore) Save(_ context.Context, key string, data []byte) error {
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Load(_ context.Context, key string) ([]byte, error) {
	d, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, statestore.ErrNotFound)
	}
	return d, nil
}
