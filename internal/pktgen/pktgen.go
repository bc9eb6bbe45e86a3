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

// Package pktgen builds ECMP test frames on the host CPU and sends them
// through a packet-out channel.
package pktgen

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	log "github.com/golang/glog"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/openconfig/ecmpharness/internal/iputil"
	"github.com/openconfig/ecmpharness/internal/traffic"
)

const (
	ethHeaderLen  = 14
	ipv4HeaderLen = 20
	ipv6HeaderLen = 40
	udpHeaderLen  = 8
)

// Frames returns the frames of cfg. Frame i pairs source i/DstCount with
// destination i%DstCount, and each L4 port walks its own range, so the
// output is the same on every call.
func Frames(cfg traffic.Config) ([][]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	srcMAC, err := net.ParseMAC(cfg.SrcMAC)
	if err != nil {
		return nil, fmt.Errorf("invalid source MAC: %w", err)
	}
	dstMAC, err := net.ParseMAC(cfg.DstMAC)
	if err != nil {
		return nil, fmt.Errorf("invalid destination MAC: %w", err)
	}
	srcs, err := addresses(cfg.SrcIP, atLeastOne(cfg.SrcCount), cfg.V6)
	if err != nil {
		return nil, err
	}
	dsts, err := addresses(cfg.DstIP, atLeastOne(cfg.DstCount), cfg.V6)
	if err != nil {
		return nil, err
	}

	n := cfg.Packets
	if n == 0 {
		n = uint64(len(srcs) * len(dsts))
	}
	hopLimit := uint8(traffic.DefaultHopLimit)
	if cfg.HopLimit != 0 && cfg.HopLimit <= 255 {
		hopLimit = uint8(cfg.HopLimit)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	payload := make([]byte, payloadLen(cfg))

	frames := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		src := srcs[(i/uint64(len(dsts)))%uint64(len(srcs))]
		dst := dsts[i%uint64(len(dsts))]

		eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC}
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(cfg.SrcPort + uint32(i%uint64(atLeastOne(cfg.SrcPortCount)))),
			DstPort: layers.UDPPort(cfg.DstPort + uint32(i%uint64(atLeastOne(cfg.DstPortCount)))),
		}
		var ip gopacket.SerializableLayer
		if cfg.V6 {
			eth.EthernetType = layers.EthernetTypeIPv6
			v6 := &layers.IPv6{
				Version:    6,
				HopLimit:   hopLimit,
				NextHeader: layers.IPProtocolUDP,
				SrcIP:      src.AsSlice(),
				DstIP:      dst.AsSlice(),
			}
			if err := udp.SetNetworkLayerForChecksum(v6); err != nil {
				return nil, err
			}
			ip = v6
		} else {
			eth.EthernetType = layers.EthernetTypeIPv4
			v4 := &layers.IPv4{
				Version:  4,
				IHL:      5,
				TTL:      hopLimit,
				Protocol: layers.IPProtocolUDP,
				SrcIP:    src.AsSlice(),
				DstIP:    dst.AsSlice(),
			}
			if err := udp.SetNetworkLayerForChecksum(v4); err != nil {
				return nil, err
			}
			ip = v4
		}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
			return nil, fmt.Errorf("serializing frame %d: %w", i, err)
		}
		frame := make([]byte, len(buf.Bytes()))
		copy(frame, buf.Bytes())
		frames = append(frames, frame)
	}
	return frames, nil
}

func payloadLen(cfg traffic.Config) int {
	size := int(cfg.FrameSize)
	if size == 0 {
		size = traffic.DefaultFrameSize
	}
	hdr := ethHeaderLen + ipv4HeaderLen + udpHeaderLen
	if cfg.V6 {
		hdr = ethHeaderLen + ipv6HeaderLen + udpHeaderLen
	}
	return max(size-hdr, 0)
}

func addresses(start string, n uint32, v6 bool) ([]netip.Addr, error) {
	var (
		ips []string
		err error
	)
	if v6 {
		ips, err = iputil.GenerateIPv6sWithStep(start, int(n), "::1")
	} else {
		ips, err = iputil.GenerateIPsWithStep(start, int(n), "0.0.0.1")
	}
	if err != nil {
		return nil, err
	}
	out := make([]netip.Addr, len(ips))
	for i, s := range ips {
		out[i] = netip.MustParseAddr(s)
	}
	return out, nil
}

func atLeastOne(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}

// WritePcap writes frames to w as an Ethernet pcap capture.
func WritePcap(w io.Writer, frames [][]byte) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("writing pcap header: %w", err)
	}
	start := time.Unix(0, 0)
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Microsecond),
			CaptureLength: len(f),
			Length:        len(f),
		}
		if err := pw.WritePacket(ci, f); err != nil {
			return fmt.Errorf("writing frame %d: %w", i, err)
		}
	}
	return nil
}

// Sender transmits one frame out of a port, e.g. over a P4Runtime or
// CPU packet-out channel.
type Sender interface {
	SendPacket(ctx context.Context, port string, frame []byte) error
}

// Injector sends CPU-generated frames through a Sender.
type Injector struct {
	Sender Sender
}

// SendTraffic builds the frames of cfg and sends them out of cfg.TxPort,
// paced at cfg.PPS.
func (i *Injector) SendTraffic(t testing.TB, cfg traffic.Config) {
	t.Helper()
	frames, err := Frames(cfg)
	if err != nil {
		t.Fatalf("SendTraffic: %v", err)
	}
	log.V(1).Infof("Sending %d frames out of %s", len(frames), cfg.TxPort)

	ctx := context.Background()
	var tick <-chan time.Time
	if interval := time.Second / time.Duration(max(cfg.PPS, 1)); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for n, f := range frames {
		if tick != nil && n > 0 {
			<-tick
		}
		if err := i.Sender.SendPacket(ctx, cfg.TxPort, f); err != nil {
			t.Fatalf("SendTraffic: frame %d: %v", n, err)
		}
	}
}

var _ traffic.Injector = (*Injector)(nil)
