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

// Package cmd holds the ecmpgen commands.
package cmd

import (
	"fmt"
	"io"

	"github.com/openconfig/ecmpharness/internal/args"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// options shared by every command.
type options struct {
	v     *viper.Viper
	cfg   args.Config
	paths []ecmp.PathHandle
}

// NewRootCmd returns the ecmpgen command tree.
func NewRootCmd() *cobra.Command {
	o := &options{v: viper.New()}
	root := &cobra.Command{
		Use:   "ecmpgen",
		Short: "Generate and dry-run ECMP/UCMP scale topologies",
		Long: `ecmpgen prints the ECMP groups, member sets and UCMP weights that the
scale tests program, checks them against modeled hardware limits and reads
per path egress counters from a switch over gNMI.

Settings come from flags, ECMP_* environment variables and an optional
config file, in that order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if f := o.v.GetString("config"); f != "" {
				o.v.SetConfigFile(f)
			}
			cfg, err := args.Load(o.v)
			if err != nil {
				return err
			}
			o.cfg = cfg
			if o.paths, err = ecmp.ParsePathList(o.v.GetString("paths")); err != nil {
				return fmt.Errorf("--paths: %w", err)
			}
			return nil
		},
	}
	pf := root.PersistentFlags()
	args.RegisterFlags(pf)
	pf.String("config", "", "Config file with the same keys as the flags.")
	pf.String("paths", "port:1-8", "Egress paths, e.g. port:1-8,trunk:1-2.")
	o.v.BindPFlags(pf)

	root.AddCommand(
		newGroupScaleCmd(o),
		newMemberScaleCmd(o),
		newUcmpCmd(o),
		newPlanCmd(o),
		newCountersCmd(o),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
