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
	log "github.com/golang/glog"
	"google.golang.org/protobuf/encoding/prototext"
)

// Accessor holds the current version of the state and swaps in new ones.
type Accessor struct {
	cur *Tree
}

// NewAccessor returns an accessor starting at t.
func NewAccessor(t *Tree) *Accessor {
	return &Accessor{cur: t}
}

// Current returns the current version.
func (a *Accessor) Current() *Tree { return a.cur }

// Replace makes t the current version, e.g. after a warm boot restore.
func (a *Accessor) Replace(t *Tree) { a.cur = t }

// Apply runs fn against the current version and installs the result. On
// error the current version is kept.
func (a *Accessor) Apply(name string, fn func(*Tree) (*Tree, error)) (*Tree, error) {
	old := a.cur
	next, err := fn(old)
	if err != nil {
		return nil, err
	}
	a.cur = next
	log.V(1).Infof("%s: state version %d -> %d", name, old.Version(), next.Version())
	if log.V(2) {
		if n, err := Diff(old, next); err == nil {
			log.Infof("%s: state diff:\n%s", name, prototext.Format(n))
		}
	}
	return next, nil
}
