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

// Package ucmp assigns unequal-cost weights to generated ECMP groups.
package ucmp

import (
	"fmt"

	log "github.com/golang/glog"
	"github.com/openconfig/ecmpharness/internal/ecmp"
)

// Pattern holds the weights given to members at even and odd positions
// within a combination.
type Pattern struct {
	Even uint64 `yaml:"even"`
	Odd  uint64 `yaml:"odd"`
}

// DefaultPattern alternates 3 and 2.
var DefaultPattern = Pattern{Even: 3, Odd: 2}

func (p Pattern) weight(i int) uint64 {
	if i%2 == 1 {
		return p.Odd
	}
	return p.Even
}

// AssignWeights walks combos in order and gives every member the weight of
// its position. A member whose weight would push the running total past
// ceiling gets weight 1 instead. Assignment stops as soon as the total hits
// ceiling, and the combination in progress is cut to its weighted members.
func AssignWeights(combos []ecmp.Combination, ceiling uint64, p Pattern) ([]ecmp.WeightedCombination, error) {
	if ceiling < 1 {
		return nil, fmt.Errorf("invalid weight ceiling %d", ceiling)
	}
	if p.Even == 0 || p.Odd == 0 {
		return nil, fmt.Errorf("invalid weight pattern %+v", p)
	}

	var (
		out []ecmp.WeightedCombination
		sum uint64
	)
	for _, c := range combos {
		wc := ecmp.WeightedCombination{}
		for i, path := range c {
			w := p.weight(i)
			if sum+w > ceiling {
				w = 1
			}
			sum += w
			wc.Paths = append(wc.Paths, path)
			wc.Weights = append(wc.Weights, w)
			if sum == ceiling {
				out = append(out, wc)
				log.V(1).Infof("Weight ceiling %d reached after %d groups", ceiling, len(out))
				return out, nil
			}
		}
		out = append(out, wc)
	}
	return out, nil
}

// TotalWeight returns the sum of all weights in combos.
func TotalWeight(combos []ecmp.WeightedCombination) uint64 {
	var sum uint64
	for _, c := range combos {
		for _, w := range c.Weights {
			sum += w
		}
	}
	return sum
}
