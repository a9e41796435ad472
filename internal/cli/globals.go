package cli

import (
	"time"

	"github.com/vk/rfnocgo/internal/app"
)

// Globals are the flags shared by every command. Set flags win over the
// config file and the environment.
type Globals struct {
	Config string `short:"c" type:"path" placeholder:"FILE" help:"HCL config file. Defaults to ./rfnoc.hcl when present."`

	LogLevel        string        `help:"Log level: debug, info, warn or error."`
	LogFormat       string        `help:"Log format: text or json."`
	HealthcheckPort int           `help:"Port for the HTTP health check server. 0 is disabled."`
	MaxIterations   int           `help:"Resolution sweeps per pass."`
	SnapshotPath    string        `type:"path" help:"Directory of the property snapshot store."`
	RelayURL        string        `name:"relay-url" help:"Socket.io monitor that receives async events."`
	MPMAddress      string        `name:"mpm-address" help:"Device RPC server (host:port) that sets the master clock."`
	Debounce        time.Duration `help:"Quiet period before a description change is reapplied."`
	NoColor         bool          `help:"Disable coloured output."`
}

// config builds the app configuration for graphPath. An empty graphPath
// keeps the configured one.
func (g *Globals) config(graphPath string) (*app.Config, error) {
	cfg, err := app.LoadConfig(g.Config)
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}

	if graphPath != "" {
		cfg.GraphPath = graphPath
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	if g.HealthcheckPort != 0 {
		cfg.HealthcheckPort = g.HealthcheckPort
	}
	if g.MaxIterations != 0 {
		cfg.MaxIterations = g.MaxIterations
	}
	if g.SnapshotPath != "" {
		cfg.SnapshotPath = g.SnapshotPath
	}
	if g.RelayURL != "" {
		cfg.Relay.URL = g.RelayURL
	}
	if g.MPMAddress != "" {
		cfg.Device.MPMAddress = g.MPMAddress
	}
	if g.Debounce != 0 {
		cfg.Watch.Debounce = g.Debounce
	}

	valid, err := app.NewConfig(cfg)
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return valid, nil
}

// newApp validates the configuration and creates the app. The caller
// closes it.
func (g *Globals) newApp(env *Env, graphPath string) (*app.App, error) {
	cfg, err := g.config(graphPath)
	if err != nil {
		return nil, err
	}
	return app.NewApp(env.Out, cfg), nil
}
