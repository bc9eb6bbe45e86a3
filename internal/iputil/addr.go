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

package iputil

import (
	"fmt"
	"net/netip"
)

// Addr is an address of one family. V4 and V6 are the only implementations.
type Addr interface {
	comparable
	Netip() netip.Addr
	String() string
}

// V4 is an IPv4 address.
type V4 struct{ ip netip.Addr }

// Netip returns the address as a netip.Addr.
func (a V4) Netip() netip.Addr { return a.ip }

func (a V4) String() string { return a.ip.String() }

// V6 is an IPv6 address.
type V6 struct{ ip netip.Addr }

// Netip returns the address as a netip.Addr.
func (a V6) Netip() netip.Addr { return a.ip }

func (a V6) String() string { return a.ip.String() }

// linkLocalNextHop is the neighbor used for link-local IPv6 next hops.
var linkLocalNextHop = netip.MustParseAddr("fe80:face:b11c::1")

// FromNetip converts ip to family A.
func FromNetip[A Addr](ip netip.Addr) (A, error) {
	var a A
	switch p := any(&a).(type) {
	case *V4:
		if !ip.Is4() {
			return a, fmt.Errorf("%v is not an IPv4 address", ip)
		}
		*p = V4{ip: ip}
	case *V6:
		if !ip.Is6() || ip.Is4In6() {
			return a, fmt.Errorf("%v is not an IPv6 address", ip)
		}
		*p = V6{ip: ip.WithZone("")}
	default:
		return a, fmt.Errorf("unsupported address type %T", a)
	}
	return a, nil
}

// MustFromNetip is FromNetip that panics on a family mismatch.
func MustFromNetip[A Addr](ip netip.Addr) A {
	a, err := FromNetip[A](ip)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseAddr parses s as an address of family A.
func ParseAddr[A Addr](s string) (A, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		var zero A
		return zero, err
	}
	return FromNetip[A](ip)
}

// IsV6 reports whether A is the IPv6 family.
func IsV6[A Addr]() bool {
	var a A
	_, ok := any(a).(V6)
	return ok
}

// Family returns "IPv4" or "IPv6".
func Family[A Addr]() string {
	if IsV6[A]() {
		return "IPv6"
	}
	return "IPv4"
}

// BitLen returns the address width of family A.
func BitLen[A Addr]() int {
	if IsV6[A]() {
		return 128
	}
	return 32
}

// Next returns the address following a. The all-ones address wraps to
// the zero address of the family.
func Next[A Addr](a A) A {
	n := a.Netip().Next()
	if !n.IsValid() {
		n = unspecified[A]()
	}
	return MustFromNetip[A](n)
}

// LinkLocalNextHop returns the link-local neighbor address used for
// IPv6 next hops. IPv4 has none.
func LinkLocalNextHop[A Addr]() (A, bool) {
	if !IsV6[A]() {
		var zero A
		return zero, false
	}
	return MustFromNetip[A](linkLocalNextHop), true
}

func unspecified[A Addr]() netip.Addr {
	if IsV6[A]() {
		return netip.IPv6Unspecified()
	}
	return netip.IPv4Unspecified()
}

// Prefix is a route prefix of family A.
type Prefix[A Addr] struct {
	Network A
	Len     int
}

// Netip returns p as a netip.Prefix.
func (p Prefix[A]) Netip() netip.Prefix {
	return netip.PrefixFrom(p.Network.Netip(), p.Len)
}

func (p Prefix[A]) String() string { return p.Netip().String() }

// ParsePrefix parses s as a prefix of family A. Host bits are cleared.
func ParsePrefix[A Addr](s string) (Prefix[A], error) {
	np, err := netip.ParsePrefix(s)
	if err != nil {
		return Prefix[A]{}, err
	}
	return PrefixFromNetip[A](np)
}

// PrefixFromNetip converts np to family A. Host bits are cleared.
func PrefixFromNetip[A Addr](np netip.Prefix) (Prefix[A], error) {
	np = np.Masked()
	a, err := FromNetip[A](np.Addr())
	if err != nil {
		return Prefix[A]{}, err
	}
	return Prefix[A]{Network: a, Len: np.Bits()}, nil
}

// DefaultRoute returns 0.0.0.0/0 or ::/0.
func DefaultRoute[A Addr]() Prefix[A] {
	return Prefix[A]{Network: MustFromNetip[A](unspecified[A]()), Len: 0}
}

// HostPrefixes returns n consecutive host routes starting at start, e.g.
// 2401::/128, 2401::1/128 and so on.
func HostPrefixes[A Addr](start string, n int) ([]Prefix[A], error) {
	var (
		ips []string
		err error
	)
	if IsV6[A]() {
		ips, err = GenerateIPv6sWithStep(start, n, "::1")
	} else {
		ips, err = GenerateIPsWithStep(start, n, "0.0.0.1")
	}
	if err != nil {
		return nil, err
	}
	out := make([]Prefix[A], 0, n)
	for _, s := range ips {
		a, err := ParseAddr[A](s)
		if err != nil {
			return nil, err
		}
		out = append(out, Prefix[A]{Network: a, Len: BitLen[A]()})
	}
	return out, nil
}
