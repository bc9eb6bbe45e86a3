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

// Package gribi programs ECMP routes through gRIBI. Client manages the
// session and leadership; Updater batches route changes into next-hop,
// next-hop-group and prefix entries.
package gribi

import (
	"context"
	"testing"
	"time"

	log "github.com/golang/glog"
	"github.com/openconfig/gribigo/chk"
	"github.com/openconfig/gribigo/fluent"
	"github.com/openconfig/ondatra"

	spb "github.com/openconfig/gribi/v1/proto/service"
)

const (
	timeout = time.Minute
)

// Client provides access to the gRIBI service of a switch.
//
// Usage:
//
//	c := NewDUTClient(t, ondatra.DUT(t, "dut"))
//	c.FibACK = true
//	defer c.Close(t)
//	if err := c.Start(t); err != nil {
//	  t.Fatalf("Could not initialize gRIBI: %v", err)
//	}
//	c.BecomeLeader(t)
type Client struct {
	Stub                  spb.GRIBIClient
	Name                  string
	FibACK                bool
	Persistence           bool
	InitialElectionIDLow  uint64
	InitialElectionIDHigh uint64

	fluentC *fluent.GRIBIClient
}

// NewDUTClient returns a client for the default gRIBI stub of dut.
func NewDUTClient(t testing.TB, dut *ondatra.DUTDevice) *Client {
	return &Client{Stub: dut.RawAPIs().GRIBI(t), Name: dut.Name()}
}

// Fluent returns the underlying fluent client.
func (c *Client) Fluent() *fluent.GRIBIClient {
	return c.fluentC
}

// Start establishes the session. The client is not the leader until
// BecomeLeader is called.
func (c *Client) Start(t testing.TB) error {
	t.Helper()
	log.Infof("Starting gRIBI connection for %s", c.Name)
	c.fluentC = fluent.NewClient()
	conn := c.fluentC.Connection().WithStub(c.Stub).
		WithInitialElectionID(c.InitialElectionIDLow, c.InitialElectionIDHigh).
		WithRedundancyMode(fluent.ElectedPrimaryClient)
	if c.Persistence {
		conn.WithPersistence()
	}
	if c.FibACK {
		conn.WithFIBACK()
	}
	ctx := context.Background()
	c.fluentC.Start(ctx, t)
	c.fluentC.StartSending(ctx, t)
	return c.AwaitTimeout(ctx, t, timeout)
}

// Close stops the fluent client.
func (c *Client) Close(t testing.TB) {
	t.Helper()
	log.Infof("Closing gRIBI connection for %s", c.Name)
	if c.fluentC != nil {
		c.fluentC.Stop(t)
		c.fluentC = nil
	}
}

// AwaitTimeout waits for pending operations to complete or timeout.
func (c *Client) AwaitTimeout(ctx context.Context, t testing.TB, timeout time.Duration) error {
	subctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.fluentC.Await(subctx, t)
}

// learnElectionID learns the server election id by sending a request
// with election id 1.
func (c *Client) learnElectionID(t testing.TB) (low, high uint64) {
	t.Helper()
	c.fluentC.Modify().UpdateElectionID(t, 1, 0)
	if err := c.AwaitTimeout(context.Background(), t, timeout); err != nil {
		t.Fatalf("Error waiting to update election ID: %v", err)
	}
	results := c.fluentC.Results(t)
	electionID := results[len(results)-1].CurrentServerElectionID
	return electionID.Low, electionID.High
}

// UpdateElectionID sets the election id. It fails if the id is lower
// than the server's.
func (c *Client) UpdateElectionID(t testing.TB, lowElecID, highElecID uint64) {
	t.Helper()
	log.V(1).Infof("Setting gRIBI election ID for %s to low=%d, high=%d", c.Name, lowElecID, highElecID)
	c.fluentC.Modify().UpdateElectionID(t, lowElecID, highElecID)
	if err := c.AwaitTimeout(context.Background(), t, timeout); err != nil {
		t.Fatalf("Error waiting to update election ID: %v", err)
	}
	chk.HasResult(t, c.fluentC.Results(t),
		fluent.OperationResult().
			WithCurrentServerElectionID(lowElecID, highElecID).
			AsResult(),
	)
}

// BecomeLeader learns the election id and increases it by one.
func (c *Client) BecomeLeader(t testing.TB) {
	t.Helper()
	low, high := c.learnElectionID(t)
	newLow := low + 1
	if newLow < low {
		high++ // Carry to high.
	}
	c.UpdateElectionID(t, newLow, high)
}

// Flush removes all entries in all network instances.
func (c *Client) Flush(t testing.TB) {
	t.Helper()
	log.Infof("Flushing gRIBI entries on %s", c.Name)
	if _, err := c.fluentC.Flush().
		WithElectionOverride().
		WithAllNetworkInstances().
		Send(); err != nil {
		t.Fatalf("Could not remove all gRIBI entries from %s: %v", c.Name, err)
	}
}
