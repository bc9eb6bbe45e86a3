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
package rpctiming

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
)

// fakeClock advances by step on every reading.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestRecorder(step time.Duration) *Recorder {
	r := NewRecorder()
	r.now = (&fakeClock{step: step}).now
	return r
}

func TestUnaryClientInterceptor(t *testing.T) {
	r := newTestRecorder(10 * time.Millisecond)
	intercept := r.UnaryClientInterceptor()
	ok := func(context.Context, string, any, any, *grpc.ClientConn, ...grpc.CallOption) error { return nil }
	fail := func(context.Context, string, any, any, *grpc.ClientConn, ...grpc.CallOption) error {
		return errors.New("unavailable")
	}
	for _, inv := range []grpc.UnaryInvoker{ok, ok, fail} {
		intercept(context.Background(), "/gnmi.gNMI/Get", nil, nil, nil, inv)
	}
	want := []Stats{{Method: "/gnmi.gNMI/Get", Calls: 3, Errors: 1, Total: 30 * time.Millisecond, Max: 10 * time.Millisecond}}
	if diff := cmp.Diff(want, r.Stats()); diff != "" {
		t.Errorf("Stats() returned diff (-want +got):\n%s", diff)
	}
	if got := r.Stats()[0].Mean(); got != 10*time.Millisecond {
		t.Errorf("Mean() = %v, want 10ms", got)
	}
}

type fakeStream struct {
	grpc.ClientStream
	recvs int
}

func (f *fakeStream) RecvMsg(any) error {
	f.recvs++
	return nil
}

func TestStreamClientInterceptor(t *testing.T) {
	r := newTestRecorder(time.Second)
	fs := &fakeStream{}
	streamer := func(context.Context, *grpc.StreamDesc, *grpc.ClientConn, string, ...grpc.CallOption) (grpc.ClientStream, error) {
		return fs, nil
	}
	cs, err := r.StreamClientInterceptor()(context.Background(), &grpc.StreamDesc{}, nil, "/gnmi.gNMI/Subscribe", streamer)
	if err != nil {
		t.Fatalf("StreamClientInterceptor() unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := cs.RecvMsg(nil); err != nil {
			t.Fatalf("RecvMsg() unexpected error: %v", err)
		}
	}
	got := r.Stats()
	if len(got) != 1 || got[0].Calls != 1 || got[0].Total != time.Second {
		t.Errorf("Stats() = %+v, want one call of 1s", got)
	}
	if fs.recvs != 3 {
		t.Errorf("RecvMsg() reached the stream %d times, want 3", fs.recvs)
	}
}

func TestStreamOpenFailure(t *testing.T) {
	r := newTestRecorder(time.Millisecond)
	streamer := func(context.Context, *grpc.StreamDesc, *grpc.ClientConn, string, ...grpc.CallOption) (grpc.ClientStream, error) {
		return nil, errors.New("refused")
	}
	if _, err := r.StreamClientInterceptor()(context.Background(), &grpc.StreamDesc{}, nil, "/m", streamer); err == nil {
		t.Fatalf("StreamClientInterceptor() succeeded with failing streamer")
	}
	if got := r.Stats(); len(got) != 1 || got[0].Errors != 1 {
		t.Errorf("Stats() = %+v, want one failed call", got)
	}
}
