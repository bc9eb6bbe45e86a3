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

// Package statestore persists state snapshots across a warm boot.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-redis/redis/v8"
)

// ErrNotFound is returned by Load when no snapshot exists for the key.
var ErrNotFound = errors.New("snapshot not found")

// Store saves and loads opaque snapshots by key.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// File stores each snapshot as Dir/<key>.yaml.
type File struct {
	Dir string
}

func (f File) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid snapshot key %q", key)
	}
	return filepath.Join(f.Dir, key+".yaml"), nil
}

// Save writes data to a temporary file and renames it into place.
func (f File) Save(_ context.Context, key string, data []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.Dir, "."+key+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Load reads the snapshot saved under key.
func (f File) Load(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, err
}

// Redis stores snapshots as plain string values under Prefix+key.
type Redis struct {
	Client *redis.Client
	Prefix string
}

// Save sets the value with no expiry.
func (r Redis) Save(ctx context.Context, key string, data []byte) error {
	return r.Client.Set(ctx, r.Prefix+key, data, 0).Err()
}

// Load gets the value saved under key.
func (r Redis) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.Client.Get(ctx, r.Prefix+key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, err
}

// Open returns the store named by rawURL: file:///some/dir or
// redis://host:port/db. Redis keys are prefixed with "ecmpharness:".
func Open(rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid store URL %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "file":
		if u.Path == "" {
			return nil, fmt.Errorf("store URL %q has no directory", rawURL)
		}
		return File{Dir: u.Path}, nil
	case "redis", "rediss":
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, err
		}
		return Redis{Client: redis.NewClient(opts), Prefix: "ecmpharness:"}, nil
	}
	return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
}
