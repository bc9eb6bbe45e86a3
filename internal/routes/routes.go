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

// Package routes defines how routes reach the switch and the errors the
// switch reports when it runs out of forwarding resources.
package routes

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/openconfig/ecmpharness/internal/ecmp"
)

// Updater batches route changes and commits them with Program.
type Updater interface {
	AddRoute(vrf string, prefix netip.Prefix, clientID int, nhops ecmp.NextHopSet) error
	DelRoute(vrf string, prefix netip.Prefix, clientID int) error
	Program() error
	// Discard drops the queued changes without committing them.
	Discard()
}

// Resource names reported in ResourceExhaustedError.
const (
	EcmpGroups  = "ecmp-groups"
	EcmpMembers = "ecmp-members"
	Routes      = "routes"
)

// ResourceExhaustedError is returned by Program when the switch cannot hold
// the requested routes or next-hop groups.
type ResourceExhaustedError struct {
	Resource  string
	Limit     int
	Requested int
	// Detail carries any extra text the switch returned.
	Detail string
}

func (e *ResourceExhaustedError) Error() string {
	msg := fmt.Sprintf("%s exhausted", e.Resource)
	if e.Limit > 0 || e.Requested > 0 {
		msg += fmt.Sprintf(": requested %d, limit %d", e.Requested, e.Limit)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsResourceExhausted reports whether err is or wraps a
// ResourceExhaustedError.
func IsResourceExhausted(err error) bool {
	var re *ResourceExhaustedError
	return errors.As(err, &re)
}
