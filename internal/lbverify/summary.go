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

package lbverify

import (
	"fmt"
	"strings"

	"github.com/openconfig/ecmpharness/internal/ecmp"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes how traffic spread across a group of paths.
type Summary struct {
	Paths  []ecmp.PathHandle
	Deltas []uint64
	// Shares are the fraction of all bytes each path carried.
	Shares []float64
	Mean   float64
	StdDev float64
}

// CoefficientOfVariation is StdDev relative to Mean, 0 when idle.
func (s Summary) CoefficientOfVariation() float64 {
	if s.Mean == 0 {
		return 0
	}
	return s.StdDev / s.Mean
}

func (s Summary) String() string {
	var b strings.Builder
	for i, p := range s.Paths {
		fmt.Fprintf(&b, "%v: %d bytes (%.1f%%)\n", p, s.Deltas[i], s.Shares[i]*100)
	}
	fmt.Fprintf(&b, "mean %.1f, stddev %.1f, cv %.3f", s.Mean, s.StdDev, s.CoefficientOfVariation())
	return b.String()
}

// Summarize reports the per-path deltas between before and after.
func Summarize(before, after ecmp.CounterSample, paths []ecmp.PathHandle) Summary {
	deltas := Deltas(before, after, paths)
	xs := make([]float64, len(deltas))
	for i, d := range deltas {
		xs[i] = float64(d)
	}
	s := Summary{Paths: paths, Deltas: deltas, Shares: make([]float64, len(xs))}
	if len(xs) == 0 {
		return s
	}
	if total := floats.Sum(xs); total > 0 {
		floats.ScaleTo(s.Shares, 1/total, xs)
	}
	s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	return s
}
