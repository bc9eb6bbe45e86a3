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
	"context"
	"fmt"
	"time"

	grpc_retry "github.com/grpc-ecosystem/go-grpc-middleware/retry"
	"github.com/openconfig/ecmpharness/internal/counters"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ecmpharness/internal/rpctiming"
	gpb "github.com/openconfig/gnmi/proto/gnmi"
	closer "github.com/openconfig/gocloser"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// interfaceMap names the interface of each path.
type interfaceMap map[ecmp.PathHandle]string

func (m interfaceMap) Interface(p ecmp.PathHandle) (string, bool) {
	n, ok := m[p]
	return n, ok
}

func parseInterfaces(in map[string]string) (interfaceMap, error) {
	out := interfaceMap{}
	for k, name := range in {
		p, err := ecmp.ParsePathHandle(k)
		if err != nil {
			return nil, err
		}
		out[p] = name
	}
	return out, nil
}

type counterRow struct {
	Path      ecmp.PathHandle `yaml:"path"`
	Interface string          `yaml:"interface"`
	OutOctets uint64          `yaml:"out-octets"`
	OutPkts   uint64          `yaml:"out-pkts"`
}

func newCountersCmd(o *options) *cobra.Command {
	var (
		target  string
		timeout time.Duration
		intfs   map[string]string
		timing  bool
	)
	c := &cobra.Command{
		Use:   "counters",
		Short: "Read egress counters of the paths from a gNMI target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (rerr error) {
			names, err := parseInterfaces(intfs)
			if err != nil {
				return fmt.Errorf("--interfaces: %w", err)
			}
			rec := rpctiming.NewRecorder()
			rec.Slow = timeout / 2
			retryOpt := grpc_retry.WithPerRetryTimeout(timeout)
			opts := append([]grpc.DialOption{
				grpc.WithTransportCredentials(insecure.NewCredentials()),
				grpc.WithStreamInterceptor(grpc_retry.StreamClientInterceptor(retryOpt)),
				grpc.WithUnaryInterceptor(grpc_retry.UnaryClientInterceptor(retryOpt)),
			}, rec.DialOptions()...)
			conn, err := grpc.NewClient(target, opts...)
			if err != nil {
				return fmt.Errorf("dialing %s: %w", target, err)
			}
			defer closer.Close(&rerr, conn.Close, "error closing gNMI connection")
			src, err := counters.NewGNMISource(gpb.NewGNMIClient(conn), names)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			stats, err := src.PortStats(ctx, o.paths)
			if err != nil {
				return err
			}
			rows := make([]counterRow, 0, len(o.paths))
			for _, p := range o.paths {
				s := stats[p]
				rows = append(rows, counterRow{Path: p, Interface: names[p], OutOctets: s.OutOctets, OutPkts: s.OutPkts})
			}
			if timing {
				if err := writeYAML(cmd.ErrOrStderr(), rec.Stats()); err != nil {
					return err
				}
			}
			return writeYAML(cmd.OutOrStdout(), rows)
		},
	}
	c.Flags().StringVar(&target, "target", "localhost:9339", "gNMI target address.")
	c.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Deadline for the counter query.")
	c.Flags().BoolVar(&timing, "rpc-timing", false, "Print gNMI call durations to stderr.")
	c.Flags().StringToStringVar(&intfs, "interfaces", map[string]string{"port:1": "Ethernet1"}, "Interface of each path, e.g. port:1=Ethernet1,port:2=Ethernet2.")
	return c
}
