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
	"errors"
	"fmt"

	log "github.com/golang/glog"
	"github.com/openconfig/ecmpharness/internal/attrs"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/iputil"
	"github.com/openconfig/ecmpharness/internal/nexthop"
	"github.com/openconfig/ecmpharness/internal/routes"
	"github.com/openconfig/ecmpharness/internal/statetree"
	"github.com/openconfig/ecmpharness/internal/tescale"
	"github.com/spf13/cobra"
)

// planReport is the outcome of programming a group scale run into the
// modeled switch.
type planReport struct {
	Family       string       `yaml:"family"`
	Paths        int          `yaml:"paths"`
	Requested    int          `yaml:"requested-groups"`
	GroupLimit   int          `yaml:"group-limit"`
	MemberLimit  int          `yaml:"member-limit"`
	Groups       int          `yaml:"groups"`
	Members      int          `yaml:"members"`
	Exhausted    string       `yaml:"resource-exhausted,omitempty"`
	StateVersion uint64       `yaml:"state-version"`
	Routes       []ecmp.Route `yaml:"routes,omitempty"`
}

// syntheticTree returns a state with one interface per path. Ports are
// named ethN and trunks aeN.
func syntheticTree(paths []ecmp.PathHandle) (*statetree.Tree, error) {
	as, err := attrs.ForPaths(len(paths))
	if err != nil {
		return nil, err
	}
	return statetree.New().Modify(func(m *statetree.Mutable) error {
		for i, p := range paths {
			if p.Kind == ecmp.TrunkPath {
				if err := m.AddTrunk(p, fmt.Sprintf("ae%d", p.ID), nil, as[i]); err != nil {
					return err
				}
				continue
			}
			if err := m.AddPort(p, fmt.Sprintf("eth%d", p.ID), as[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func plan[A iputil.Addr](o *options, groups, maxWidth int, verbose bool) (planReport, error) {
	tree, err := syntheticTree(o.paths)
	if err != nil {
		return planReport{}, err
	}
	state := statetree.NewAccessor(tree)
	h, err := nexthop.New[A](tree, nexthop.Options{VRF: o.cfg.VRF, ClientID: o.cfg.ClientID})
	if err != nil {
		return planReport{}, err
	}
	n := len(h.NextHops())
	if _, err := state.Apply("resolve", func(cur *statetree.Tree) (*statetree.Tree, error) {
		return h.ResolveFirst(cur, n)
	}); err != nil {
		return planReport{}, err
	}
	paths, err := h.EcmpPaths(n)
	if err != nil {
		return planReport{}, err
	}
	combos, err := tescale.GroupScale(paths, groups, maxWidth, tescale.MinGroupWidth)
	if err != nil {
		return planReport{}, err
	}
	start := tescale.V4ScalePrefixStart
	if iputil.IsV6[A]() {
		start = tescale.V6ScalePrefixStart
	}
	prefixes, err := iputil.HostPrefixes[A](start, len(combos))
	if err != nil {
		return planReport{}, err
	}

	mem := routes.NewMemory(state)
	mem.MaxEcmpGroups = o.cfg.EcmpGroupLimit()
	mem.MaxEcmpMembers = o.cfg.MaxEcmpMembers
	rep := planReport{
		Family:      iputil.Family[A](),
		Paths:       len(paths),
		Requested:   groups,
		GroupLimit:  mem.MaxEcmpGroups,
		MemberLimit: mem.MaxEcmpMembers,
	}
	err = h.ProgramRoutes(mem, combos, prefixes)
	var re *routes.ResourceExhaustedError
	switch {
	case errors.As(err, &re):
		log.Warningf("Plan does not fit: %v", re)
		rep.Exhausted = re.Error()
	case err != nil:
		return planReport{}, err
	}
	cur := state.Current()
	rep.Groups, rep.Members = routes.Usage(cur, h.VRF())
	rep.StateVersion = cur.Version()
	if verbose {
		rep.Routes = cur.Routes(h.VRF())
	}
	return rep, nil
}

func newPlanCmd(o *options) *cobra.Command {
	var (
		groups, maxWidth int
		v6, verbose      bool
	)
	c := &cobra.Command{
		Use:   "plan",
		Short: "Program a group scale run into a modeled switch and report what fits",
		Long: `plan resolves one next hop per path of a synthetic topology, programs the
group scale routes into an in-memory switch that enforces the configured
ECMP group and member limits, and reports the resulting usage. A run that
does not fit is reported, not treated as a failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				rep planReport
				err error
			)
			if v6 {
				rep, err = plan[iputil.V6](o, groups, maxWidth, verbose)
			} else {
				rep, err = plan[iputil.V4](o, groups, maxWidth, verbose)
			}
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), rep)
		},
	}
	c.Flags().IntVar(&groups, "groups", 16, "Number of ECMP groups.")
	c.Flags().IntVar(&maxWidth, "max-width", 4, "Widest group.")
	c.Flags().BoolVar(&v6, "v6", true, "Use IPv6 next hops and prefixes.")
	c.Flags().BoolVarP(&verbose, "verbose", "v", false, "Include the programmed routes.")
	return c
}
