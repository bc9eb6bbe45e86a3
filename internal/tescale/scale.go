// Copyright 2024 Google LLC
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

// Package tescale generates ECMP group and member scale topologies.
package tescale

import (
	"sync"
)

const (
	// V6ScalePrefixStart is the first host route used by scale tests.
	V6ScalePrefixStart = "2401::"
	// V4ScalePrefixStart is the first IPv4 host route used by scale tests.
	V4ScalePrefixStart = "201.0.0.0"
)

// IDPool for NH and NHG IDs
type IDPool struct {
	nhIndex  uint64
	nhgIndex uint64
	rw       sync.RWMutex
}

// NewIDPool creates a new IDPool
func NewIDPool(base uint64) *IDPool {
	return &IDPool{
		nhIndex:  base,
		nhgIndex: base,
	}
}

// NextNHID returns the next NHID
func (p *IDPool) NextNHID() uint64 {
	p.rw.Lock()
	defer p.rw.Unlock()

	p.nhIndex++
	return p.nhIndex
}

// NextNHGID returns the next NHGID
func (p *IDPool) NextNHGID() uint64 {
	p.rw.Lock()
	defer p.rw.Unlock()

	p.nhgIndex++
	return p.nhgIndex
}

// EcmpGroupBudget returns how many ECMP groups a test may program when the
// ECMP resource manager holds back a share of the hardware table. percentage
// is the share usable by tests and reserved is kept aside for the agent.
func EcmpGroupBudget(maxGroups, percentage, reserved int) int {
	n := maxGroups*percentage/100 - reserved
	if n < 0 {
		return 0
	}
	return n
}
