package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override the config file.
// Nested keys use a double underscore: RFNOC_LOG__LEVEL sets log.level.
const EnvPrefix = "RFNOC_"

// DefaultConfigFile is read when no config file is named and it exists.
const DefaultConfigFile = "rfnoc.hcl"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// GraphPath is a description file or a directory of them.
	GraphPath string `koanf:"graph"`

	Log LogConfig `koanf:"log"`

	HealthcheckPort int `koanf:"healthcheck_port"`
	// MaxIterations bounds graph resolution sweeps.
	MaxIterations int `koanf:"max_iterations"`
	// SnapshotPath is the property store directory. Empty disables it.
	SnapshotPath string `koanf:"snapshot_path"`

	Relay  RelayConfig  `koanf:"relay"`
	Watch  WatchConfig  `koanf:"watch"`
	Device DeviceConfig `koanf:"device"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// RelayConfig selects the socket.io monitor for async events. An empty URL
// disables the relay.
type RelayConfig struct {
	URL                string `koanf:"url"`
	Namespace          string `koanf:"namespace"`
	Event              string `koanf:"event"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify"`
}

type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
}

// DeviceConfig points at the device firmware RPC server. Without an address
// the graph runs against in-memory registers and no device clock.
type DeviceConfig struct {
	MPMAddress string        `koanf:"mpm_address"`
	RPCTimeout time.Duration `koanf:"rpc_timeout"`
}

// DefaultConfig returns the values used for everything not configured.
func DefaultConfig() Config {
	return Config{
		Log:           LogConfig{Level: "info", Format: "text"},
		MaxIterations: 2,
		Relay:         RelayConfig{Namespace: "/", Event: "async_event"},
		Watch:         WatchConfig{Debounce: 500 * time.Millisecond},
		Device:        DeviceConfig{RPCTimeout: 2 * time.Second},
	}
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	var errs []error
	if cfg.GraphPath == "" {
		errs = append(errs, errors.New("graph is a required configuration field and cannot be empty"))
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", cfg.Log.Level))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q, expected text or json", cfg.Log.Format))
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		errs = append(errs, fmt.Errorf("healthcheck port %d is out of range", cfg.HealthcheckPort))
	}
	if cfg.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("max_iterations must be at least 1, got %d", cfg.MaxIterations))
	}
	if cfg.Watch.Debounce < 0 {
		errs = append(errs, errors.New("watch debounce cannot be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig layers the defaults, the HCL config file and the environment.
// An empty path reads DefaultConfigFile if it exists. The result is not
// validated, since command line flags may still fill it in.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), hcl.Parser(true)); err != nil {
			return Config{}, fmt.Errorf("could not read config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(k, v string) (string, any) {
			key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
			return strings.ReplaceAll(key, "__", "."), v
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("could not read environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("could not decode configuration: %w", err)
	}
	return cfg, nil
}
