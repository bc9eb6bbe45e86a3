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

// Package otgutils drives ECMP test traffic from an Open Traffic Generator.
package otgutils

import (
	"github.com/google/uuid"
	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/ecmpharness/internal/traffic"
)

// AddFlow appends a flow described by cfg to top and returns it. The
// flow is Ethernet, then IPv4 or IPv6, then UDP. Addresses and ports
// increment so the flow hashes over every member of an ECMP group.
func AddFlow(top gosnappi.Config, cfg traffic.Config) gosnappi.Flow {
	name := cfg.Name
	if name == "" {
		name = "ecmp-" + uuid.NewString()
	}
	flow := top.Flows().Add().SetName(name)
	flow.Metrics().SetEnable(true)
	flow.TxRx().Port().SetTxName(cfg.TxPort).SetRxNames(cfg.RxPorts)

	frameSize := cfg.FrameSize
	if frameSize == 0 {
		frameSize = traffic.DefaultFrameSize
	}
	flow.Size().SetFixed(frameSize)
	if cfg.PPS > 0 {
		flow.Rate().SetPps(cfg.PPS)
	}
	if cfg.Packets > 0 {
		flow.Duration().FixedPackets().SetPackets(uint32(cfg.Packets))
	} else {
		flow.Duration().FixedSeconds().SetSeconds(float32(cfg.Duration.Seconds()))
	}

	eth := flow.Packet().Add().Ethernet()
	eth.Src().SetValue(cfg.SrcMAC)
	if cfg.DstMAC != "" {
		eth.Dst().SetValue(cfg.DstMAC)
	}

	hopLimit := cfg.HopLimit
	if hopLimit == 0 {
		hopLimit = traffic.DefaultHopLimit
	}
	if cfg.V6 {
		ip := flow.Packet().Add().Ipv6()
		ip.Src().Increment().SetStart(cfg.SrcIP).SetStep("::1").SetCount(count(cfg.SrcCount))
		ip.Dst().Increment().SetStart(cfg.DstIP).SetStep("::1").SetCount(count(cfg.DstCount))
		ip.HopLimit().SetValue(hopLimit)
	} else {
		ip := flow.Packet().Add().Ipv4()
		ip.Src().Increment().SetStart(cfg.SrcIP).SetStep("0.0.0.1").SetCount(count(cfg.SrcCount))
		ip.Dst().Increment().SetStart(cfg.DstIP).SetStep("0.0.0.1").SetCount(count(cfg.DstCount))
		ip.TimeToLive().SetValue(hopLimit)
	}

	udp := flow.Packet().Add().Udp()
	udp.SrcPort().Increment().SetStart(cfg.SrcPort).SetStep(1).SetCount(count(cfg.SrcPortCount))
	udp.DstPort().Increment().SetStart(cfg.DstPort).SetStep(1).SetCount(count(cfg.DstPortCount))
	return flow
}

func count(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}
