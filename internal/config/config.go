// Package config loads this module's runtime configuration: struct
// defaults, overlaid by an optional YAML file, overlaid by environment
// variables.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Config is the full configuration surface: committee size, slot and
// phase durations, channel capacities, and which Hub transport to wire
// up in cmd/unit.
type Config struct {
	Committee CommitteeConfig `koanf:"committee"`
	Channels  ChannelConfig   `koanf:"channels"`
	Hub       HubConfig       `koanf:"hub"`
}

type CommitteeConfig struct {
	NumUnits              int `koanf:"num_units"`
	SlotDurationSeconds   int `koanf:"slot_duration_seconds"`
	Phase1DurationSeconds int `koanf:"phase1_duration_seconds"`
	Phase2DurationSeconds int `koanf:"phase2_duration_seconds"`
}

type ChannelConfig struct {
	InboundCapacity  int `koanf:"inbound_capacity"`
	OutboundCapacity int `koanf:"outbound_capacity"`
	ControlCapacity  int `koanf:"control_capacity"`
}

type HubConfig struct {
	// Transport selects the Hub implementation: "memory" (default, for
	// a single process) or "nats" (embedded JetStream server).
	Transport string    `koanf:"transport"`
	Nats      NatsConfig `koanf:"nats"`
}

type NatsConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Default returns the configuration defaults layered beneath any file or
// environment overrides.
func Default() Config {
	return Config{
		Committee: CommitteeConfig{
			NumUnits:              4,
			SlotDurationSeconds:   12,
			Phase1DurationSeconds: 4,
			Phase2DurationSeconds: 4,
		},
		Channels: ChannelConfig{
			InboundCapacity:  64,
			OutboundCapacity: 64,
			ControlCapacity:  1,
		},
		Hub: HubConfig{
			Transport: "memory",
			Nats: NatsConfig{
				Host: "127.0.0.1",
				Port: 4222,
			},
		},
	}
}

// Load layers defaults -> optional YAML file -> environment variables
// prefixed SIGNER_ (nested fields separated by "__", matching koanf's
// env provider convention), highest priority last.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, errors.Wrap(err, "failed to load config defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, errors.Wrapf(err, "failed to load config file %q", path)
		}
	}

	envProvider := env.Provider("SIGNER_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "SIGNER_")), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, errors.Wrap(err, "failed to load config from environment")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal config")
	}
	return cfg, nil
}

// Validate rejects a committee size of zero, non-positive durations, and
// phase1+phase2 >= slot_duration. All are fatal at construction time.
func (c Config) Validate() error {
	if c.Committee.NumUnits < 1 {
		return errors.New("num_units must be >= 1")
	}
	if c.Committee.SlotDurationSeconds <= 0 {
		return errors.New("slot_duration_seconds must be > 0")
	}
	if c.Committee.Phase1DurationSeconds <= 0 || c.Committee.Phase2DurationSeconds <= 0 {
		return errors.New("phase1_duration_seconds and phase2_duration_seconds must be > 0")
	}
	if c.Committee.Phase1DurationSeconds+c.Committee.Phase2DurationSeconds >= c.Committee.SlotDurationSeconds {
		return errors.New("phase1_duration_seconds + phase2_duration_seconds must be < slot_duration_seconds")
	}
	return nil
}
