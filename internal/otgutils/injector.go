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

package otgutils

import (
	"testing"
	"time"

	log "github.com/golang/glog"
	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/ecmpharness/internal/traffic"
	"github.com/openconfig/ondatra/otg"
)

// Injector sends traffic bursts from an ATE. Top holds the ports and
// devices; its flows are replaced on every burst.
type Injector struct {
	OTG *otg.OTG
	Top gosnappi.Config
	// Settle is how long to wait after the burst before stopping traffic.
	Settle time.Duration
}

// NewInjector returns an Injector for top on ate.
func NewInjector(ate *otg.OTG, top gosnappi.Config) *Injector {
	return &Injector{OTG: ate, Top: top, Settle: time.Second}
}

// SendTraffic pushes a single flow built from cfg, runs it for its
// period and stops it.
func (i *Injector) SendTraffic(t testing.TB, cfg traffic.Config) {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("SendTraffic: %v", err)
	}
	i.Top.Flows().Clear()
	flow := AddFlow(i.Top, cfg)
	i.OTG.PushConfig(t, i.Top)

	log.V(1).Infof("Starting flow %s for %v", flow.Name(), cfg.Period())
	i.OTG.StartTraffic(t)
	time.Sleep(cfg.Period() + i.Settle)
	i.OTG.StopTraffic(t)
}

var _ traffic.Injector = (*Injector)(nil)
