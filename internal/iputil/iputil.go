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

// Package iputil provides utilities for IPv4/IPv6 related utils
package iputil

import (
	"fmt"
	"math/big"
	"net"
	"net/netip"
)

// GenerateIPs creates list of n IPs using ipBlock
func GenerateIPs(ipBlock string, n int) []string {
	var entries []string
	p, err := netip.ParsePrefix(ipBlock)
	if err != nil || !p.Addr().Is4() {
		return entries
	}
	for ip := p.Masked().Addr(); ip.IsValid() && p.Contains(ip) && n > 0; ip = ip.Next() {
		entries = append(entries, ip.String())
		n--
	}
	return entries
}

// GenerateIPsWithStep returns count IPv4 addresses starting at startIP,
// each stepIP apart.
func GenerateIPsWithStep(startIP string, count int, stepIP string) ([]string, error) {
	start, err := netip.ParseAddr(startIP)
	if err != nil || !start.Is4() {
		return nil, fmt.Errorf("invalid start IPv4 address %q", startIP)
	}
	step, err := netip.ParseAddr(stepIP)
	if err != nil || !step.Is4() {
		return nil, fmt.Errorf("invalid step IPv4 address %q", stepIP)
	}
	return generateWithStep(start, count, step), nil
}

// GenerateIPv6sWithStep returns count IPv6 addresses starting at startIP,
// each stepIP apart.
func GenerateIPv6sWithStep(startIP string, count int, stepIP string) ([]string, error) {
	start, err := netip.ParseAddr(startIP)
	if err != nil || !start.Is6() || start.Is4In6() {
		return nil, fmt.Errorf("invalid start IPv6 address %q", startIP)
	}
	step, err := netip.ParseAddr(stepIP)
	if err != nil || !step.Is6() || step.Is4In6() {
		return nil, fmt.Errorf("invalid step IPv6 address %q", stepIP)
	}
	return generateWithStep(start, count, step), nil
}

// generateWithStep adds multiples of step to start, wrapping within the
// address width.
func generateWithStep(start netip.Addr, count int, step netip.Addr) []string {
	width := uint(start.BitLen())
	limit := new(big.Int).Lsh(big.NewInt(1), width)
	base := new(big.Int).SetBytes(start.AsSlice())
	inc := new(big.Int).SetBytes(step.AsSlice())

	var ips []string
	for i := 0; i < count; i++ {
		v := new(big.Int).Mul(inc, big.NewInt(int64(i)))
		v.Add(v, base).Mod(v, limit)
		ips = append(ips, addrFromInt(v, start.Is4()).String())
	}
	return ips
}

func addrFromInt(v *big.Int, is4 bool) netip.Addr {
	n := 16
	if is4 {
		n = 4
	}
	b := make([]byte, n)
	v.FillBytes(b)
	a, _ := netip.AddrFromSlice(b)
	return a
}

// incrementMAC increments the MAC address by the given step.
func incrementMAC(mac net.HardwareAddr, step int) {
	for i := len(mac) - 1; i >= 0 && step > 0; i-- {
		sum := int(mac[i]) + step
		mac[i] = byte(sum % 256)
		step = sum / 256
	}
}

func macToInt(mac net.HardwareAddr) int {
	result := 0
	for _, b := range mac {
		result = result<<8 + int(b)
	}
	return result
}

// GenerateMACs returns count MAC addresses starting at mac, each
// stepMACStr apart. An unparsable base MAC yields nil.
func GenerateMACs(mac string, count int, stepMACStr string) []string {
	baseMAC, err := net.ParseMAC(mac)
	if err != nil {
		return nil
	}
	stepMAC, _ := net.ParseMAC(stepMACStr)
	step := macToInt(stepMAC)

	macs := make([]string, count)
	current := make(net.HardwareAddr, len(baseMAC))
	copy(current, baseMAC)

	for i := range count {
		macs[i] = current.String()
		incrementMAC(current, step)
	}
	return macs
}
