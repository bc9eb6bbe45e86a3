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

// Package lbverify decides whether traffic observed on a set of egress
// paths is spread the way an ECMP or UCMP group should spread it.
package lbverify

import (
	"math"
	"slices"

	log "github.com/golang/glog"
	"github.com/openconfig/ecmpharness/internal/ecmp"
)

// DefaultMaxDeviationPct is the tolerance used when a test does not pick one.
const DefaultMaxDeviationPct = 25

// Deltas returns after minus before for every path. A counter that went
// backwards, e.g. because it was cleared in between, counts as zero.
func Deltas(before, after ecmp.CounterSample, paths []ecmp.PathHandle) []uint64 {
	out := make([]uint64, len(paths))
	for i, p := range paths {
		b, a := before[p], after[p]
		if a < b {
			log.Warningf("Counter of %v went backwards: %d -> %d", p, b, a)
			continue
		}
		out[i] = a - b
	}
	return out
}

// HighestAndLowest returns the largest and smallest of counts.
func HighestAndLowest(counts []uint64) (highest, lowest uint64) {
	if len(counts) == 0 {
		return 0, 0
	}
	highest, lowest = slices.Max(counts), slices.Min(counts)
	log.V(1).Infof("Highest bytes increment: %d, lowest bytes increment: %d", highest, lowest)
	return highest, lowest
}

// DeviationWithinThreshold reports whether highest is within maxDeviationPct
// of lowest. A zero lowest passes only if nothing was seen at all and
// noTrafficOk is set.
func DeviationWithinThreshold(lowest, highest uint64, maxDeviationPct float64, noTrafficOk bool) bool {
	if lowest == 0 {
		return highest == 0 && noTrafficOk
	}
	dev := float64(highest-lowest) / float64(lowest) * 100
	log.V(2).Infof("Percent deviation: %.2f, maximum deviation: %.2f", dev, maxDeviationPct)
	return dev <= maxDeviationPct
}

// IsLoadBalanced reports whether the traffic that hit paths between before
// and after is balanced.
//
// Without weights every path should carry about the same load; the spread
// between the busiest and the idlest counter must stay within
// maxDeviationPct of the idlest. The spread is taken on the after counters,
// which equal the deltas when counters are cleared before traffic is sent.
// Callers holding counters that were never cleared must pass the deltas as
// after and a zero before; otherwise a large history on every path masks
// an uneven split of the new traffic.
//
// With weights, each path's share of the heaviest weight is compared to its
// share of the largest delta, and every path must be within
// maxDeviationPct.
func IsLoadBalanced(before, after ecmp.CounterSample, paths []ecmp.PathHandle, weights []uint64, maxDeviationPct float64, noTrafficOk bool) bool {
	deltas := Deltas(before, after, paths)
	highest, lowest := HighestAndLowest(deltas)
	if lowest == 0 {
		return highest == 0 && noTrafficOk
	}

	if len(weights) == 0 {
		totals := make([]uint64, len(paths))
		for i, p := range paths {
			totals[i] = after[p]
		}
		hi, lo := HighestAndLowest(totals)
		return DeviationWithinThreshold(lo, hi, maxDeviationPct, noTrafficOk)
	}

	if len(weights) != len(paths) {
		log.Errorf("Got %d weights for %d paths", len(weights), len(paths))
		return false
	}
	maxWeight := slices.Max(weights)
	if maxWeight == 0 {
		log.Errorf("All weights are zero for %v", paths)
		return false
	}
	for i, p := range paths {
		weightPct := float64(weights[i]) / float64(maxWeight) * 100
		deltaPct := float64(deltas[i]) / float64(highest) * 100
		dev := math.Abs(weightPct - deltaPct)
		log.V(2).Infof("Path %v: weight %.2f%%, bytes %.2f%%, deviation %.2f, maximum deviation: %.2f", p, weightPct, deltaPct, dev, maxDeviationPct)
		if dev > maxDeviationPct {
			return false
		}
	}
	return true
}
