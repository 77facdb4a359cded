// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads simcore settings from defaults, an optional YAML file
// and command-line flags, in that order of precedence (flags win).
package config

import (
	"slices"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// CodeInvalidConfig is returned for unreadable or invalid configuration.
const CodeInvalidConfig = "CONFIG_INVALID"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config is the complete runtime configuration.
type Config struct {
	Log     Log     `koanf:"log"`
	Store   Store   `koanf:"store"`
	Bundles Bundles `koanf:"bundles"`
	Effects Effects `koanf:"effects"`
	Metrics Metrics `koanf:"metrics"`
	Access  Access  `koanf:"access"`
}

// Log configures the slog handler.
type Log struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Store selects the world store.
type Store struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
}

// Bundles configures which bundles boot and where on-disk bundles live.
type Bundles struct {
	Dir   string   `koanf:"dir"`
	Order []string `koanf:"order"`
}

// Effects configures the effect scheduler.
type Effects struct {
	Resolution    time.Duration `koanf:"resolution"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// Metrics configures the observability server. An empty Addr disables it.
type Metrics struct {
	Addr string `koanf:"addr"`
}

// Access holds capability grants by caller id. The caller "*" applies to all.
type Access struct {
	Grants map[string][]string `koanf:"grants"`
}

// Defaults.
const (
	DefaultLogFormat     = "json"
	DefaultLogLevel      = "info"
	DefaultStorePath     = "simcore.db"
	DefaultBundlesDir    = "bundles"
	DefaultResolution    = 100 * time.Millisecond
	DefaultSweepInterval = 5 * time.Second
	DefaultMetricsAddr   = "127.0.0.1:9100"
)

// DefaultOrder is the built-in bundle boot order.
var DefaultOrder = []string{"core", "survival", "access"}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"log-format":         "log.format",
	"log-level":          "log.level",
	"store":              "store.driver",
	"store-path":         "store.path",
	"bundles-dir":        "bundles.dir",
	"bundles":            "bundles.order",
	"effects-resolution": "effects.resolution",
	"effects-sweep":      "effects.sweep_interval",
	"metrics-addr":       "metrics.addr",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
	fs.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("store", DriverMemory, "world store driver (memory or sqlite)")
	fs.String("store-path", DefaultStorePath, "sqlite database path")
	fs.String("bundles-dir", DefaultBundlesDir, "directory searched for on-disk bundles")
	fs.StringSlice("bundles", DefaultOrder, "bundles to load, in order")
	fs.Duration("effects-resolution", DefaultResolution, "effect tick resolution")
	fs.Duration("effects-sweep", DefaultSweepInterval, "expired effect sweep interval")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
}

// Load reads path (skipped when empty) and then fs. Flags the user did not
// set fill only keys the file left out.
func Load(fs *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalidConfig).With("path", path).Wrapf(err, "read config file")
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeInvalidConfig).Wrapf(err, "read flags")
		}
	}

	cfg := &Config{
		Log:     Log{Format: DefaultLogFormat, Level: DefaultLogLevel},
		Store:   Store{Driver: DriverMemory, Path: DefaultStorePath},
		Bundles: Bundles{Dir: DefaultBundlesDir},
		Effects: Effects{Resolution: DefaultResolution, SweepInterval: DefaultSweepInterval},
		Metrics: Metrics{Addr: DefaultMetricsAddr},
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code(CodeInvalidConfig).Wrapf(err, "decode config")
	}
	if cfg.Bundles.Order == nil {
		cfg.Bundles.Order = slices.Clone(DefaultOrder)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerations and intervals.
func (c *Config) Validate() error {
	invalid := func(key string, value any, format string, args ...any) error {
		return oops.Code(CodeInvalidConfig).With("key", key).With("value", value).Errorf(format, args...)
	}
	switch {
	case c.Log.Format != "json" && c.Log.Format != "text":
		return invalid("log.format", c.Log.Format, "log.format must be 'json' or 'text', got %q", c.Log.Format)
	case c.Store.Driver != DriverMemory && c.Store.Driver != DriverSQLite:
		return invalid("store.driver", c.Store.Driver, "store.driver must be %q or %q, got %q", DriverMemory, DriverSQLite, c.Store.Driver)
	case c.Store.Driver == DriverSQLite && c.Store.Path == "":
		return invalid("store.path", c.Store.Path, "store.path is required for the sqlite driver")
	case c.Effects.Resolution <= 0:
		return invalid("effects.resolution", c.Effects.Resolution, "effects.resolution must be positive")
	case c.Effects.SweepInterval <= 0:
		return invalid("effects.sweep_interval", c.Effects.SweepInterval, "effects.sweep_interval must be positive")
	}
	for caller := range c.Access.Grants {
		if caller == "" {
			return invalid("access.grants", caller, "access.grants has an empty caller id")
		}
	}
	return nil
}
