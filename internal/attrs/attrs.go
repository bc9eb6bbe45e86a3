// Copyright 2022 Google LLC
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

// Package attrs bundles some common interface attributes and provides
// helpers to generate the appropriate OpenConfig for the egress paths of a
// generated topology.
package attrs

import (
	"fmt"

	"github.com/openconfig/ecmpharness/internal/iputil"
	"github.com/openconfig/ondatra/gnmi/oc"
	"github.com/openconfig/ygot/ygot"
)

const (
	pathV4Start = "10.0.0.0"
	pathV4Step  = "0.0.1.0"
	pathV6Start = "2400::"
	pathV6Step  = "0:0:0:1::"
	pathMACBase = "02:00:00:00:01:00"
	pathMACStep = "00:00:00:00:00:01"
)

// Attributes bundles some common attributes for interfaces. All fields are
// optional; only those that are non-empty will be set when configuring an
// interface.
type Attributes struct {
	IPv4    string
	IPv6    string
	MAC     string
	Name    string // Interface name.
	Desc    string // Description.
	IPv4Len uint8  // Prefix length for IPv4.
	IPv6Len uint8  // Prefix length for IPv6.
	MTU     uint16
}

// IPv4CIDR constructs the IPv4 CIDR notation with the given prefix
// length, e.g. "192.0.2.1/30".
func (a *Attributes) IPv4CIDR() string {
	return fmt.Sprintf("%s/%d", a.IPv4, a.IPv4Len)
}

// IPv6CIDR constructs the IPv6 CIDR notation with the given prefix
// length, e.g. "2001:db8::1/126".
func (a *Attributes) IPv6CIDR() string {
	return fmt.Sprintf("%s/%d", a.IPv6, a.IPv6Len)
}

// ConfigInterface configures an OpenConfig interface with these attributes.
// The interface type is left alone if already set, so aggregates keep
// theirs.
func (a *Attributes) ConfigInterface(intf *oc.Interface) *oc.Interface {
	if a.Desc != "" {
		intf.Description = ygot.String(a.Desc)
	}
	if intf.Type == oc.IETFInterfaces_InterfaceType_UNSET {
		intf.Type = oc.IETFInterfaces_InterfaceType_ethernetCsmacd
	}
	intf.Enabled = ygot.Bool(true)
	if a.MTU > 0 {
		intf.Mtu = ygot.Uint16(a.MTU + 14)
	}
	if a.MAC != "" {
		intf.GetOrCreateEthernet().MacAddress = ygot.String(a.MAC)
	}

	s := intf.GetOrCreateSubinterface(0)
	if a.IPv4 != "" {
		s4 := s.GetOrCreateIpv4()
		s4.Enabled = ygot.Bool(true)
		if a.MTU > 0 {
			s4.Mtu = ygot.Uint16(a.MTU)
		}
		a4 := s4.GetOrCreateAddress(a.IPv4)
		if a.IPv4Len > 0 {
			a4.PrefixLength = ygot.Uint8(a.IPv4Len)
		}
	}

	if a.IPv6 != "" {
		s6 := s.GetOrCreateIpv6()
		s6.Enabled = ygot.Bool(true)
		if a.MTU > 0 {
			s6.Mtu = ygot.Uint32(uint32(a.MTU))
		}
		a6 := s6.GetOrCreateAddress(a.IPv6)
		if a.IPv6Len > 0 {
			a6.PrefixLength = ygot.Uint8(a.IPv6Len)
		}
	}
	return intf
}

// NewInterface returns a new *oc.Interface configured with these attributes
func (a *Attributes) NewInterface(name string) *oc.Interface {
	return a.ConfigInterface(&oc.Interface{Name: ygot.String(name)})
}

// NewAggregate returns a LAG interface configured with these attributes.
func (a *Attributes) NewAggregate(name string) *oc.Interface {
	intf := &oc.Interface{Name: ygot.String(name)}
	intf.Type = oc.IETFInterfaces_InterfaceType_ieee8023adLag
	intf.GetOrCreateAggregation().LagType = oc.IfAggregate_AggregationType_STATIC
	return a.ConfigInterface(intf)
}

// ForPaths returns attributes for n egress paths. Path i gets the i-th
// /24 of 10.0.0.0/8, the i-th /64 of 2400::/16 and a locally administered
// MAC. Addresses are the first of each subnet, so the neighbor of path i
// is the address that follows.
func ForPaths(n int) ([]Attributes, error) {
	v4, err := iputil.GenerateIPsWithStep(pathV4Start, n, pathV4Step)
	if err != nil {
		return nil, err
	}
	v6, err := iputil.GenerateIPv6sWithStep(pathV6Start, n, pathV6Step)
	if err != nil {
		return nil, err
	}
	macs := iputil.GenerateMACs(pathMACBase, n, pathMACStep)
	out := make([]Attributes, n)
	for i := range out {
		out[i] = Attributes{
			IPv4:    v4[i],
			IPv4Len: 24,
			IPv6:    v6[i],
			IPv6Len: 64,
			MAC:     macs[i],
			Desc:    fmt.Sprintf("ecmp path %d", i),
		}
	}
	return out, nil
}
