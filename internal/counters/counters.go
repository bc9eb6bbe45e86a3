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

// Package counters reads per-path traffic counters from the switch.
package counters

import (
	"context"
	"fmt"

	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ondatra/gnmi/oc"
)

// PortStats are the counters of one egress path.
type PortStats struct {
	OutOctets uint64
	OutPkts   uint64
	InOctets  uint64
	InPkts    uint64
}

// Source reads counters for a set of paths.
type Source interface {
	PortStats(ctx context.Context, paths []ecmp.PathHandle) (map[ecmp.PathHandle]PortStats, error)
}

// Clearer is implemented by sources that can zero their counters.
type Clearer interface {
	ClearCounters(ctx context.Context, paths []ecmp.PathHandle) error
}

// InterfaceNamer maps a path to the interface carrying it. *statetree.Tree
// implements it.
type InterfaceNamer interface {
	Interface(p ecmp.PathHandle) (string, bool)
}

// OutBytes keeps the egress byte counters of stats.
func OutBytes(stats map[ecmp.PathHandle]PortStats) ecmp.CounterSample {
	out := make(ecmp.CounterSample, len(stats))
	for p, s := range stats {
		out[p] = s.OutOctets
	}
	return out
}

// Sample returns the egress byte counters of paths.
func Sample(ctx context.Context, src Source, paths []ecmp.PathHandle) (ecmp.CounterSample, error) {
	stats, err := src.PortStats(ctx, paths)
	if err != nil {
		return nil, err
	}
	return OutBytes(stats), nil
}

func interfaceName(names InterfaceNamer, p ecmp.PathHandle) (string, error) {
	name, ok := names.Interface(p)
	if !ok {
		return "", fmt.Errorf("no interface for path %v", p)
	}
	return name, nil
}

func fromOC(c *oc.Interface_Counters) PortStats {
	return PortStats{
		OutOctets: c.GetOutOctets(),
		OutPkts:   c.GetOutUnicastPkts() + c.GetOutMulticastPkts() + c.GetOutBroadcastPkts(),
		InOctets:  c.GetInOctets(),
		InPkts:    c.GetInUnicastPkts() + c.GetInMulticastPkts() + c.GetInBroadcastPkts(),
	}
}
