package app

import (
	"context"
	"fmt"

	"github.com/vk/rfnocgo/internal/builder"
	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/model"
	"github.com/vk/rfnocgo/internal/mpmrpc"
	"github.com/vk/rfnocgo/internal/propstore"
)

// Load reads the graph description named by the config.
func (a *App) Load(ctx context.Context) (*model.Description, error) {
	ctx = a.withLogger(ctx)
	desc, err := model.LoadRecursively(ctx, a.config.GraphPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph description: %w", err)
	}
	a.logger.Debug("Graph description loaded.",
		"blocks", len(desc.Blocks), "connections", len(desc.Connections), "streamers", len(desc.Streamers))
	return desc, nil
}

// Build loads the description and builds, commits and configures the graph.
// A previously built graph is shut down first. When a device address is
// configured the firmware RPC server becomes the master clock controller.
func (a *App) Build(ctx context.Context) (*builder.Graph, error) {
	ctx = a.withLogger(ctx)
	desc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}

	opts := []builder.Option{builder.WithMaxIterations(a.config.MaxIterations)}
	device, err := a.connectDevice(ctx)
	if err != nil {
		return nil, err
	}
	if device != nil {
		opts = append(opts, builder.WithClock(device))
	}

	g, err := builder.New(a.registry, opts...).Build(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}

	a.mu.Lock()
	if a.graph != nil {
		a.graph.Shutdown()
	}
	a.graph = g
	a.mu.Unlock()
	return g, nil
}

// connectDevice dials the firmware RPC server once and reuses the
// connection for later builds. It returns nil without a configured address.
func (a *App) connectDevice(ctx context.Context) (*mpmrpc.Client, error) {
	addr := a.config.Device.MPMAddress
	if addr == "" {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device != nil {
		return a.device, nil
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Connecting to device RPC server...", "address", addr)
	c, err := mpmrpc.Dial(ctx, addr, mpmrpc.WithTimeout(a.config.Device.RPCTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device at %s: %w", addr, err)
	}
	logger.Info("🔌 Connected to device.", "address", addr)
	a.device = c
	return c, nil
}

// openStore opens the property store on first use. It returns nil when no
// snapshot path is configured.
func (a *App) openStore(ctx context.Context) (*propstore.Store, error) {
	if a.config.SnapshotPath == "" {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return a.store, nil
	}
	s, err := propstore.Open(ctx, a.config.SnapshotPath)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}
