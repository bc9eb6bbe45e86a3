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

// Package args defines the settings of an ECMP load-balance run. Values
// come from defaults, an optional config file, ECMP_* environment
// variables and command line flags, in increasing precedence.
package args

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openconfig/ecmpharness/internal/tescale"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every tunable of a run. Keys match the flag names.
type Config struct {
	VRF       string `mapstructure:"vrf"`
	ClientID  int    `mapstructure:"client-id"`
	EcmpWidth int    `mapstructure:"ecmp-width"`

	MaxDeviationPct float64 `mapstructure:"max-deviation-pct"`
	NoTrafficOK     bool    `mapstructure:"no-traffic-ok"`

	EcmpResourceManager    bool `mapstructure:"ecmp-resource-manager"`
	EcmpResourcePercentage int  `mapstructure:"ecmp-resource-percentage"`
	ReservedEcmpGroups     int  `mapstructure:"reserved-ecmp-groups"`
	MaxEcmpGroups          int  `mapstructure:"max-ecmp-groups"`
	MaxEcmpMembers         int  `mapstructure:"max-ecmp-members"`

	UcmpEvenWeight    uint64 `mapstructure:"ucmp-even-weight"`
	UcmpOddWeight     uint64 `mapstructure:"ucmp-odd-weight"`
	UcmpWeightCeiling uint64 `mapstructure:"ucmp-weight-ceiling"`

	RetryAttempts        int           `mapstructure:"retry-attempts"`
	RetryInitialInterval time.Duration `mapstructure:"retry-initial-interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry-max-interval"`

	TrafficPackets  uint64        `mapstructure:"traffic-packets"`
	FrameSize       uint32        `mapstructure:"frame-size"`
	TrafficDuration time.Duration `mapstructure:"traffic-duration"`

	StateStore string `mapstructure:"state-store"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		VRF:                    "default",
		EcmpWidth:              4,
		MaxDeviationPct:        25,
		EcmpResourcePercentage: 75,
		MaxEcmpGroups:          128,
		MaxEcmpMembers:         4096,
		UcmpEvenWeight:         3,
		UcmpOddWeight:          2,
		UcmpWeightCeiling:      128,
		RetryAttempts:          10,
		RetryInitialInterval:   time.Second,
		RetryMaxInterval:       10 * time.Second,
		TrafficPackets:         10000,
		FrameSize:              512,
	}
}

// RegisterFlags adds one flag per Config field to fs, defaulted from
// Default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("vrf", d.VRF, "VRF the test routes are programmed in.")
	fs.Int("client-id", d.ClientID, "Client ID that owns the programmed routes.")
	fs.Int("ecmp-width", d.EcmpWidth, "Number of paths in the ECMP group under test.")
	fs.Float64("max-deviation-pct", d.MaxDeviationPct, "Maximum allowed deviation, in percent, between the most and least loaded paths.")
	fs.Bool("no-traffic-ok", d.NoTrafficOK, "Treat a run where no path forwarded traffic as balanced.")
	fs.Bool("ecmp-resource-manager", d.EcmpResourceManager, "Whether the switch holds back part of the ECMP table.")
	fs.Int("ecmp-resource-percentage", d.EcmpResourcePercentage, "Share of the ECMP table usable when the resource manager is enabled.")
	fs.Int("reserved-ecmp-groups", d.ReservedEcmpGroups, "ECMP groups kept aside for the agent.")
	fs.Int("max-ecmp-groups", d.MaxEcmpGroups, "Hardware ECMP group limit. 0 means unlimited.")
	fs.Int("max-ecmp-members", d.MaxEcmpMembers, "Hardware ECMP member limit. 0 means unlimited.")
	fs.Uint64("ucmp-even-weight", d.UcmpEvenWeight, "UCMP weight of even positions in a group.")
	fs.Uint64("ucmp-odd-weight", d.UcmpOddWeight, "UCMP weight of odd positions in a group.")
	fs.Uint64("ucmp-weight-ceiling", d.UcmpWeightCeiling, "Total UCMP weight the switch accepts across all groups.")
	fs.Int("retry-attempts", d.RetryAttempts, "Attempts when waiting for traffic to balance.")
	fs.Duration("retry-initial-interval", d.RetryInitialInterval, "First wait between balance checks.")
	fs.Duration("retry-max-interval", d.RetryMaxInterval, "Longest wait between balance checks.")
	fs.Uint64("traffic-packets", d.TrafficPackets, "Packets per burst. 0 runs for traffic-duration instead.")
	fs.Uint32("frame-size", d.FrameSize, "Frame size in bytes.")
	fs.Duration("traffic-duration", d.TrafficDuration, "Burst duration when traffic-packets is 0.")
	fs.String("state-store", d.StateStore, "Where state is kept across a warm boot, e.g. file:///tmp/ecmp or redis://host:6379/0.")
}

// Load merges defaults, the config file set on v (if any), ECMP_*
// environment variables and flags bound to v, then validates the result.
func Load(v *viper.Viper) (Config, error) {
	d := Default()
	for k, val := range map[string]any{
		"vrf":                      d.VRF,
		"client-id":                d.ClientID,
		"ecmp-width":               d.EcmpWidth,
		"max-deviation-pct":        d.MaxDeviationPct,
		"no-traffic-ok":            d.NoTrafficOK,
		"ecmp-resource-manager":    d.EcmpResourceManager,
		"ecmp-resource-percentage": d.EcmpResourcePercentage,
		"reserved-ecmp-groups":     d.ReservedEcmpGroups,
		"max-ecmp-groups":          d.MaxEcmpGroups,
		"max-ecmp-members":         d.MaxEcmpMembers,
		"ucmp-even-weight":         d.UcmpEvenWeight,
		"ucmp-odd-weight":          d.UcmpOddWeight,
		"ucmp-weight-ceiling":      d.UcmpWeightCeiling,
		"retry-attempts":           d.RetryAttempts,
		"retry-initial-interval":   d.RetryInitialInterval,
		"retry-max-interval":       d.RetryMaxInterval,
		"traffic-packets":          d.TrafficPackets,
		"frame-size":               d.FrameSize,
		"traffic-duration":         d.TrafficDuration,
		"state-store":              d.StateStore,
	} {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("ECMP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", v.ConfigFileUsed(), err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return c, c.Validate()
}

// Validate checks the values are usable together.
func (c Config) Validate() error {
	var errs []error
	if c.EcmpWidth < 1 {
		errs = append(errs, fmt.Errorf("ecmp-width must be at least 1, got %d", c.EcmpWidth))
	}
	if c.MaxDeviationPct < 0 {
		errs = append(errs, fmt.Errorf("max-deviation-pct must not be negative, got %v", c.MaxDeviationPct))
	}
	if c.EcmpResourcePercentage < 0 || c.EcmpResourcePercentage > 100 {
		errs = append(errs, fmt.Errorf("ecmp-resource-percentage must be within [0, 100], got %d", c.EcmpResourcePercentage))
	}
	if c.UcmpEvenWeight == 0 || c.UcmpOddWeight == 0 {
		errs = append(errs, errors.New("ucmp weights must be positive"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry-attempts must be at least 1, got %d", c.RetryAttempts))
	}
	if c.RetryMaxInterval < c.RetryInitialInterval {
		errs = append(errs, fmt.Errorf("retry-max-interval %v is below retry-initial-interval %v", c.RetryMaxInterval, c.RetryInitialInterval))
	}
	if c.TrafficPackets == 0 && c.TrafficDuration <= 0 {
		errs = append(errs, errors.New("one of traffic-packets or traffic-duration must be set"))
	}
	return errors.Join(errs...)
}

// EcmpGroupLimit returns the ECMP groups a test may program: the
// hardware limit, reduced by the resource manager share when enabled.
func (c Config) EcmpGroupLimit() int {
	if !c.EcmpResourceManager || c.MaxEcmpGroups == 0 {
		return c.MaxEcmpGroups
	}
	return tescale.EcmpGroupBudget(c.MaxEcmpGroups, c.EcmpResourcePercentage, c.ReservedEcmpGroups)
}
