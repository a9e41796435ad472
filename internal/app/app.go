package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vk/rfnocgo/internal/blocks"
	"github.com/vk/rfnocgo/internal/builder"
	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/mpmrpc"
	"github.com/vk/rfnocgo/internal/propstore"
	"github.com/vk/rfnocgo/internal/registry"
)

// coreModules are registered when NewApp is given no modules.
var coreModules = []registry.Module{
	blocks.Module{},
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	ctx      context.Context

	mu         sync.Mutex
	graph      *builder.Graph
	device     *mpmrpc.Client
	store      *propstore.Store
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "types", reg.Types())

	if err := reg.ValidateRegistry(ctx); err != nil {
		// A block module registered something unusable, so we panic.
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		ctx:      ctx,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Graph returns the graph from the last successful Build, or nil.
func (a *App) Graph() *builder.Graph {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.graph
}

// Close shuts the graph down and releases the device connection, the
// property store and the health check server. It is safe to call more than
// once.
func (a *App) Close() error {
	var errs []error
	errs = append(errs, a.closeHealthCheckServer())

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.graph != nil {
		a.graph.Shutdown()
		a.graph = nil
	}
	if a.device != nil {
		errs = append(errs, a.device.Close())
		a.device = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	a.logger.Debug("App closed.")
	return errors.Join(errs...)
}

// withLogger attaches the app logger to ctx.
func (a *App) withLogger(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
