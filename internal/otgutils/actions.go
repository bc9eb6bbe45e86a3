// Copyright 2022 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package otgutils

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/ondatra/gnmi"
	"github.com/openconfig/ondatra/otg"
	"github.com/openconfig/ygnmi/ygnmi"
)

// FlowStats waits for flowName to stop transmitting and returns its tx
// and rx packet counts. rx is read once it matches tx or timeout expires.
func FlowStats(t testing.TB, ate *otg.OTG, flowName string, timeout time.Duration) (txPackets, rxPackets uint64) {
	t.Helper()
	flow := gnmi.OTG().Flow(flowName)

	_, stopped := gnmi.Watch(t, ate, flow.Transmit().State(), timeout, func(val *ygnmi.Value[bool]) bool {
		transmitting, ok := val.Val()
		return ok && !transmitting
	}).Await(t)
	if !stopped {
		t.Logf("Flow %s still transmitting after %v, stats may be inconsistent", flowName, timeout)
	}
	tx := gnmi.Get(t, ate, flow.Counters().OutPkts().State())

	rxVal, _ := gnmi.Watch(t, ate, flow.Counters().InPkts().State(), timeout, func(val *ygnmi.Value[uint64]) bool {
		rx, ok := val.Val()
		return ok && rx == tx
	}).Await(t)
	rx, _ := rxVal.Val()
	return tx, rx
}

// LogFlowMetrics logs a table of tx/rx counters for every flow in top.
func LogFlowMetrics(t testing.TB, ate *otg.OTG, top gosnappi.Config) {
	t.Helper()
	var out strings.Builder
	out.WriteString("\nFlow Metrics\n")
	out.WriteString(strings.Repeat("-", 55) + "\n")
	fmt.Fprintf(&out, "%-25v%-15v%-15v\n", "Name", "Frames Tx", "Frames Rx")
	for _, f := range top.Flows().Items() {
		counters := gnmi.Get(t, ate, gnmi.OTG().Flow(f.Name()).Counters().State())
		fmt.Fprintf(&out, "%-25v%-15v%-15v\n", f.Name(), counters.GetOutPkts(), counters.GetInPkts())
	}
	out.WriteString(strings.Repeat("-", 55) + "\n")
	t.Log(out.String())
}
