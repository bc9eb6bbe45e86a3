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

package cmd

import (
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/tescale"
	"github.com/openconfig/ecmpharness/internal/ucmp"
	"github.com/spf13/cobra"
)

type groupsOutput struct {
	Groups  int                `yaml:"groups"`
	Members int                `yaml:"members"`
	Paths   []ecmp.Combination `yaml:"combinations"`
}

func newGroupScaleCmd(o *options) *cobra.Command {
	var groups, maxWidth, minWidth int
	c := &cobra.Command{
		Use:   "group-scale",
		Short: "Print the ECMP groups of a group scale test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			combos, err := tescale.GroupScale(o.paths, groups, maxWidth, minWidth)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), groupsOutput{
				Groups:  len(combos),
				Members: tescale.MemberCount(combos),
				Paths:   combos,
			})
		},
	}
	c.Flags().IntVar(&groups, "groups", 16, "Number of ECMP groups.")
	c.Flags().IntVar(&maxWidth, "max-width", 4, "Widest group.")
	c.Flags().IntVar(&minWidth, "min-width", tescale.MinGroupWidth, "Narrowest group.")
	return c
}

func newMemberScaleCmd(o *options) *cobra.Command {
	var members int
	c := &cobra.Command{
		Use:   "member-scale",
		Short: "Print the ECMP groups of a member scale test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			combos, err := tescale.MemberScale(o.paths, members)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), groupsOutput{
				Groups:  len(combos),
				Members: tescale.MemberCount(combos),
				Paths:   combos,
			})
		},
	}
	c.Flags().IntVar(&members, "members", 64, "Total ECMP members.")
	return c
}

type ucmpOutput struct {
	Groups      int                        `yaml:"groups"`
	TotalWeight uint64                     `yaml:"total-weight"`
	Ceiling     uint64                     `yaml:"ceiling"`
	Weighted    []ecmp.WeightedCombination `yaml:"combinations"`
}

func newUcmpCmd(o *options) *cobra.Command {
	var groups, maxWidth int
	c := &cobra.Command{
		Use:   "ucmp",
		Short: "Print UCMP groups with weights assigned under the weight ceiling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			combos, err := tescale.GroupScale(o.paths, groups, maxWidth, tescale.MinGroupWidth)
			if err != nil {
				return err
			}
			p := ucmp.Pattern{Even: o.cfg.UcmpEvenWeight, Odd: o.cfg.UcmpOddWeight}
			weighted, err := ucmp.AssignWeights(combos, o.cfg.UcmpWeightCeiling, p)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), ucmpOutput{
				Groups:      len(weighted),
				TotalWeight: ucmp.TotalWeight(weighted),
				Ceiling:     o.cfg.UcmpWeightCeiling,
				Weighted:    weighted,
			})
		},
	}
	c.Flags().IntVar(&groups, "groups", 16, "Number of UCMP groups.")
	c.Flags().IntVar(&maxWidth, "max-width", 4, "Widest group.")
	return c
}
