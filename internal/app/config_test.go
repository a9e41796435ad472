package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.GraphPath = "graph.hcl"
		return cfg
	}

	t.Run("defaults are valid", func(t *testing.T) {
		cfg, err := NewConfig(valid())
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.MaxIterations)
		assert.Equal(t, "/", cfg.Relay.Namespace)
	})

	cases := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{name: "missing graph", modify: func(c *Config) { c.GraphPath = "" }, errMsg: "graph is a required configuration field"},
		{name: "bad level", modify: func(c *Config) { c.Log.Level = "loud" }, errMsg: `unknown log level "loud"`},
		{name: "bad format", modify: func(c *Config) { c.Log.Format = "xml" }, errMsg: "unknown log format"},
		{name: "port out of range", modify: func(c *Config) { c.HealthcheckPort = 70000 }, errMsg: "out of range"},
		{name: "zero iterations", modify: func(c *Config) { c.MaxIterations = 0 }, errMsg: "max_iterations must be at least 1"},
		{name: "negative debounce", modify: func(c *Config) { c.Watch.Debounce = -time.Second }, errMsg: "debounce cannot be negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.modify(&cfg)
			_, err := NewConfig(cfg)
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}

	t.Run("errors are collected", func(t *testing.T) {
		cfg := valid()
		cfg.GraphPath = ""
		cfg.MaxIterations = 0
		_, err := NewConfig(cfg)
		assert.ErrorContains(t, err, "graph is a required")
		assert.ErrorContains(t, err, "max_iterations")
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file then environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rfnoc.hcl")
		require.NoError(t, os.WriteFile(path, []byte(`
graph            = "graphs/x310.hcl"
healthcheck_port = 8080
snapshot_path    = "/var/lib/rfnoc"

log {
  level  = "warn"
  format = "json"
}

relay {
  url = "http://monitor:3000"
}

watch {
  debounce = "250ms"
}
`), 0o644))

		t.Setenv("RFNOC_LOG__LEVEL", "debug")
		t.Setenv("RFNOC_MAX_ITERATIONS", "5")
		t.Setenv("RFNOC_DEVICE__MPM_ADDRESS", "192.168.10.2:49601")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "graphs/x310.hcl", cfg.GraphPath)
		assert.Equal(t, 8080, cfg.HealthcheckPort)
		assert.Equal(t, "/var/lib/rfnoc", cfg.SnapshotPath)
		assert.Equal(t, "debug", cfg.Log.Level, "environment wins over the file")
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, 5, cfg.MaxIterations)
		assert.Equal(t, "http://monitor:3000", cfg.Relay.URL)
		assert.Equal(t, "/", cfg.Relay.Namespace, "unset keys keep their default")
		assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
		assert.Equal(t, "192.168.10.2:49601", cfg.Device.MPMAddress)
		assert.Equal(t, 2*time.Second, cfg.Device.RPCTimeout)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
		assert.ErrorContains(t, err, "could not read config file")
	})
}
