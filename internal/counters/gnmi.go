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

package counters

import (
	"context"
	"fmt"
	"testing"

	log "github.com/golang/glog"
	"github.com/openconfig/ecmpharness/internal/ecmp"
	"github.com/openconfig/ondatra"
	"github.com/openconfig/ondatra/gnmi"
	"github.com/openconfig/ondatra/gnmi/oc/ocpath"
	"github.com/openconfig/ygnmi/ygnmi"

	gpb "github.com/openconfig/gnmi/proto/gnmi"
)

// GNMISource reads interface counters over gNMI.
type GNMISource struct {
	client *ygnmi.Client
	names  InterfaceNamer
}

// NewGNMISource returns a source reading from c.
func NewGNMISource(c gpb.GNMIClient, names InterfaceNamer, opts ...ygnmi.ClientOption) (*GNMISource, error) {
	yc, err := ygnmi.NewClient(c, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create ygnmi.Client: %w", err)
	}
	return &GNMISource{client: yc, names: names}, nil
}

// PortStats implements Source.
func (s *GNMISource) PortStats(ctx context.Context, paths []ecmp.PathHandle) (map[ecmp.PathHandle]PortStats, error) {
	out := make(map[ecmp.PathHandle]PortStats, len(paths))
	for _, p := range paths {
		name, err := interfaceName(s.names, p)
		if err != nil {
			return nil, err
		}
		c, err := ygnmi.Get(ctx, s.client, ocpath.Root().Interface(name).Counters().State())
		if err != nil {
			return nil, fmt.Errorf("could not get counters of %s: %w", name, err)
		}
		out[p] = fromOC(c)
		log.V(2).Infof("Counters of %v (%s): %+v", p, name, out[p])
	}
	return out, nil
}

// DUTSource reads interface counters from an ondatra DUT.
type DUTSource struct {
	t     testing.TB
	dut   *ondatra.DUTDevice
	names InterfaceNamer
}

// NewDUTSource returns a source reading from dut. Failures end the test.
func NewDUTSource(t testing.TB, dut *ondatra.DUTDevice, names InterfaceNamer) *DUTSource {
	return &DUTSource{t: t, dut: dut, names: names}
}

// PortStats implements Source.
func (s *DUTSource) PortStats(_ context.Context, paths []ecmp.PathHandle) (map[ecmp.PathHandle]PortStats, error) {
	out := make(map[ecmp.PathHandle]PortStats, len(paths))
	for _, p := range paths {
		name, err := interfaceName(s.names, p)
		if err != nil {
			return nil, err
		}
		out[p] = fromOC(gnmi.Get(s.t, s.dut, gnmi.OC().Interface(name).Counters().State()))
	}
	return out, nil
}
