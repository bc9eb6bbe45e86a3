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
// Package rpctiming provides gRPC client interceptors that record how long
// calls to a switch take, so slow counter reads can be told apart from
// counters that lag the traffic.
package rpctiming

import (
	"context"
	"slices"
	"sync"
	"time"

	log "github.com/golang/glog"
	"google.golang.org/grpc"
)

// Stats summarize the calls of one method.
type Stats struct {
	Method string        `yaml:"method"`
	Calls  int           `yaml:"calls"`
	Errors int           `yaml:"errors"`
	Total  time.Duration `yaml:"total"`
	Max    time.Duration `yaml:"max"`
}

// Mean returns the average call duration.
func (s Stats) Mean() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Calls)
}

// Recorder accumulates call durations per method. It is safe for
// concurrent use.
type Recorder struct {
	// Slow calls at or above this duration are logged. Zero disables it.
	Slow time.Duration

	mu    sync.Mutex
	stats map[string]*Stats
	now   func() time.Time
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{stats: map[string]*Stats{}, now: time.Now}
}

func (r *Recorder) record(method string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[method]
	if !ok {
		s = &Stats{Method: method}
		r.stats[method] = s
	}
	s.Calls++
	s.Total += d
	s.Max = max(s.Max, d)
	if err != nil {
		s.Errors++
	}
	if r.Slow > 0 && d >= r.Slow {
		log.Warningf("%s took %v", method, d)
	}
}

// Stats returns the recorded methods sorted by name.
func (r *Recorder) Stats() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stats, 0, len(r.stats))
	for _, s := range r.stats {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b Stats) int {
		switch {
		case a.Method < b.Method:
			return -1
		case a.Method > b.Method:
			return 1
		}
		return 0
	})
	return out
}

// UnaryClientInterceptor times every unary call.
func (r *Recorder) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := r.now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		r.record(method, r.now().Sub(start), err)
		return err
	}
}

// StreamClientInterceptor times streams from open to the first response,
// which for a gNMI ONCE subscription is the time to the first counter
// update.
func (r *Recorder) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		start := r.now()
		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			r.record(method, r.now().Sub(start), err)
			return nil, err
		}
		return &timedStream{ClientStream: cs, r: r, method: method, start: start}, nil
	}
}

type timedStream struct {
	grpc.ClientStream
	r      *Recorder
	method string
	start  time.Time
	once   sync.Once
}

func (s *timedStream) RecvMsg(m any) error {
	err := s.ClientStream.RecvMsg(m)
	s.once.Do(func() { s.r.record(s.method, s.r.now().Sub(s.start), err) })
	return err
}

// DialOptions returns the options installing both interceptors.
func (r *Recorder) DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithChainUnaryInterceptor(r.UnaryClientInterceptor()),
		grpc.WithChainStreamInterceptor(r.StreamClientInterceptor()),
	}
}
