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

// Package loadbalancer provides the hashing presets applied to ECMP groups
// and aggregate ports during load-balance tests.
package loadbalancer

// ID names the forwarding stage a load balancer hashes for.
type ID string

const (
	// ECMP hashes across next hops of a route.
	ECMP ID = "ecmp"
	// AggregatePort hashes across members of a trunk.
	AggregatePort ID = "aggregate-port"
)

// Field is one packet field fed into the hash.
type Field string

// Hash fields.
const (
	SrcIPv4   Field = "src-ipv4"
	DstIPv4   Field = "dst-ipv4"
	SrcIPv6   Field = "src-ipv6"
	DstIPv6   Field = "dst-ipv6"
	SrcL4Port Field = "src-l4-port"
	DstL4Port Field = "dst-l4-port"
	// RoCEDstQP is the user defined field carrying the RoCE destination
	// queue pair.
	RoCEDstQP Field = "udf:roce-dst-qp"
)

// Algorithm is the hash function.
type Algorithm string

// Hash algorithms.
const (
	CRC16CCITT Algorithm = "crc16-ccitt"
	CRC32LO    Algorithm = "crc32-lo"
	CRC32HI    Algorithm = "crc32-hi"
)

// LoadBalancer is the hashing config of one stage.
type LoadBalancer struct {
	ID        ID        `yaml:"id"`
	Fields    []Field   `yaml:"fields"`
	Algorithm Algorithm `yaml:"algorithm"`
	// Seed is left to the agent when zero.
	Seed uint32 `yaml:"seed,omitempty"`
}

// HalfHashFields hashes on source and destination addresses only.
func HalfHashFields() []Field {
	return []Field{SrcIPv4, DstIPv4, SrcIPv6, DstIPv6}
}

// FullHashFields adds L4 ports to HalfHashFields.
func FullHashFields() []Field {
	return append(HalfHashFields(), SrcL4Port, DstL4Port)
}

// FullHashUDFFields adds the RoCE queue pair to FullHashFields.
func FullHashUDFFields() []Field {
	return append(FullHashFields(), RoCEDstQP)
}

func newLB(id ID, fields []Field) LoadBalancer {
	return LoadBalancer{ID: id, Fields: fields, Algorithm: CRC16CCITT}
}

// EcmpHalfHash returns the ECMP half hash config.
func EcmpHalfHash() LoadBalancer { return newLB(ECMP, HalfHashFields()) }

// EcmpFullHash returns the ECMP full hash config.
func EcmpFullHash() LoadBalancer { return newLB(ECMP, FullHashFields()) }

// EcmpFullUDFHash returns the ECMP full hash config with the RoCE UDF.
func EcmpFullUDFHash() LoadBalancer { return newLB(ECMP, FullHashUDFFields()) }

// TrunkHalfHash returns the aggregate port half hash config.
func TrunkHalfHash() LoadBalancer { return newLB(AggregatePort, HalfHashFields()) }

// TrunkFullHash returns the aggregate port full hash config.
func TrunkFullHash() LoadBalancer { return newLB(AggregatePort, FullHashFields()) }

// EcmpFullTrunkHalfHash configures both stages with different inputs so
// that the two hashes stay uncorrelated.
func EcmpFullTrunkHalfHash() []LoadBalancer {
	return []LoadBalancer{EcmpFullHash(), TrunkHalfHash()}
}

// EcmpHalfTrunkFullHash is the mirror of EcmpFullTrunkHalfHash.
func EcmpHalfTrunkFullHash() []LoadBalancer {
	return []LoadBalancer{EcmpHalfHash(), TrunkFullHash()}
}

// EcmpFullTrunkFullHash hashes on the full 5-tuple at both stages.
func EcmpFullTrunkFullHash() []LoadBalancer {
	return []LoadBalancer{EcmpFullHash(), TrunkFullHash()}
}

// Customize drops field selection when hash customization is unsupported,
// leaving only the algorithm.
func Customize(lbs []LoadBalancer, hashCustomization bool) []LoadBalancer {
	out := make([]LoadBalancer, len(lbs))
	for i, lb := range lbs {
		out[i] = lb
		if !hashCustomization {
			out[i].Fields = nil
		}
	}
	return out
}

// Find returns the config for id.
func Find(lbs []LoadBalancer, id ID) (LoadBalancer, bool) {
	for _, lb := range lbs {
		if lb.ID == id {
			return lb, true
		}
	}
	return LoadBalancer{}, false
}
