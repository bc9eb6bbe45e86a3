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

// Package traffic describes the test traffic pumped through an ECMP group
// and the injector contract implementations satisfy.
package traffic

import (
	"errors"
	"fmt"
	"net/netip"
	"testing"
	"time"
)

// Default values used when a Config field is left unset.
const (
	DefaultFrameSize = 512
	DefaultPackets   = 10000
	DefaultPPS       = 1000
	DefaultSrcPort   = 10000
	DefaultDstPort   = 20000
	DefaultHopLimit  = 255
)

// Config describes one burst of test traffic. Source and destination
// addresses and L4 ports each walk an increment pattern so that the burst
// carries enough distinct 5-tuples to spread over an ECMP group.
type Config struct {
	Name string
	V6   bool

	SrcMAC string
	DstMAC string

	SrcIP    string
	SrcCount uint32
	DstIP    string
	DstCount uint32

	SrcPort      uint32
	SrcPortCount uint32
	DstPort      uint32
	DstPortCount uint32

	FrameSize uint32
	HopLimit  uint32
	Packets   uint64
	PPS       uint64
	// Duration bounds the burst when Packets is 0.
	Duration time.Duration

	TxPort  string
	RxPorts []string
}

// NewConfig returns a config with the default source and destination
// ranges of the given family. Roughly sqrt(packets) sources are paired
// with as many destinations.
func NewConfig(name string, v6 bool, packets uint64) Config {
	flows := uint32(1)
	for uint64(flows+1)*uint64(flows+1) <= packets {
		flows++
	}
	c := Config{
		Name:         name,
		V6:           v6,
		SrcMAC:       "02:00:00:00:0f:0c",
		DstMAC:       "02:00:00:00:0f:0b",
		SrcIP:        "100.0.0.1",
		SrcCount:     flows,
		DstIP:        "201.0.0.1",
		DstCount:     flows,
		SrcPort:      DefaultSrcPort,
		SrcPortCount: flows,
		DstPort:      DefaultDstPort,
		DstPortCount: flows,
		FrameSize:    DefaultFrameSize,
		HopLimit:     DefaultHopLimit,
		Packets:      packets,
		PPS:          DefaultPPS,
	}
	if v6 {
		c.SrcIP = "1001::1"
		c.DstIP = "2001::1"
	}
	return c
}

// Validate checks that the addresses match the family and the burst is
// bounded.
func (c Config) Validate() error {
	for _, s := range []string{c.SrcIP, c.DstIP} {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return fmt.Errorf("traffic %q: %w", c.Name, err)
		}
		if a.Is6() != c.V6 {
			return fmt.Errorf("traffic %q: address %s does not match family (v6=%t)", c.Name, s, c.V6)
		}
	}
	if c.Packets == 0 && c.Duration <= 0 {
		return fmt.Errorf("traffic %q: neither packets nor duration set", c.Name)
	}
	if c.PPS == 0 {
		return errors.New("traffic rate must be positive")
	}
	return nil
}

// Period returns how long the burst runs at the configured rate.
func (c Config) Period() time.Duration {
	if c.Packets == 0 {
		return c.Duration
	}
	return time.Duration(c.Packets) * time.Second / time.Duration(c.PPS)
}

// Injector sends a burst of traffic. It does not wait for the traffic to
// be forwarded and reports failure through t.
type Injector interface {
	SendTraffic(t testing.TB, cfg Config)
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(t testing.TB, cfg Config)

// SendTraffic calls f.
func (f InjectorFunc) SendTraffic(t testing.TB, cfg Config) { f(t, cfg) }
