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

package statetree

import (
	"fmt"

	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/loadbalancer"
	"github.com/openconfig/ondatra/gnmi/oc"
	"github.com/openconfig/ygot/ygot"
	"gopkg.in/yaml.v3"
)

type pathEntry struct {
	Path      ecmp.PathHandle `yaml:"path"`
	Interface string          `yaml:"interface"`
}

// snapshot is the persisted form of a Tree. The OpenConfig part is kept as
// RFC7951 JSON.
type snapshot struct {
	Version       uint64                      `yaml:"version"`
	Paths         []pathEntry                 `yaml:"paths"`
	Routes        []ecmp.Route                `yaml:"routes,omitempty"`
	LoadBalancers []loadbalancer.LoadBalancer `yaml:"load-balancers,omitempty"`
	Interfaces    string                      `yaml:"interfaces"`
}

// Marshal serializes t for storage across a warm boot.
func (t *Tree) Marshal() ([]byte, error) {
	js, err := ygot.EmitJSON(t.root, &ygot.EmitJSONConfig{
		Format:         ygot.RFC7951,
		SkipValidation: true,
		RFC7951Config:  &ygot.RFC7951JSONConfig{AppendModuleName: true},
	})
	if err != nil {
		return nil, fmt.Errorf("cannot emit state version %d: %v", t.version, err)
	}
	s := snapshot{
		Version:       t.version,
		LoadBalancers: t.lbs,
		Interfaces:    js,
	}
	for _, p := range t.Paths() {
		s.Paths = append(s.Paths, pathEntry{Path: p, Interface: t.paths[p]})
	}
	for _, k := range t.routeKeys() {
		s.Routes = append(s.Routes, t.routes[k])
	}
	return yaml.Marshal(&s)
}

// Unmarshal restores a tree written by Marshal.
func Unmarshal(data []byte) (*Tree, error) {
	var s snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("cannot decode state snapshot: %w", err)
	}
	t := New()
	t.version = s.Version
	if s.Interfaces != "" {
		if err := oc.Unmarshal([]byte(s.Interfaces), t.root); err != nil {
			return nil, fmt.Errorf("cannot decode interfaces of state version %d: %w", s.Version, err)
		}
	}
	for _, e := range s.Paths {
		t.paths[e.Path] = e.Interface
	}
	for _, r := range s.Routes {
		t.routes[routeKey{vrf: r.VRF, prefix: r.Prefix.Masked()}] = r
	}
	t.lbs = s.LoadBalancers
	return t, nil
}

func (t *Tree) routeKeys() []routeKey {
	var keys []routeKey
	for _, vrf := range t.VRFs() {
		for _, r := range t.Routes(vrf) {
			keys = append(keys, routeKey{vrf: vrf, prefix: r.Prefix})
		}
	}
	return keys
}
