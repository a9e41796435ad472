package app

import (
	"context"
	"errors"
	"sync"

	"github.com/vk/rfnocgo/internal/builder"
	"github.com/vk/rfnocgo/internal/eventrelay"
)

// RunOptions select what Run does after the graph is built.
type RunOptions struct {
	// Restore writes saved property values over the description's.
	Restore bool
	// Hold keeps the graph alive until ctx is done, relaying async events
	// when a relay URL is configured.
	Hold bool
	// Watch reapplies properties whenever the description changes. It
	// implies Hold.
	Watch bool
	// Report is called with the graph after it is built and after every
	// reapply.
	Report func(g *builder.Graph)
}

// Run builds the graph and, depending on opts, keeps it running. With a
// snapshot path configured the property values are saved after every
// successful build or reapply.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx = a.withLogger(ctx)
	a.logger.Debug("App.Run method started.")

	if _, err := a.startHealthCheckServer(); err != nil {
		return err
	}

	g, err := a.Build(ctx)
	if err != nil {
		return err
	}

	if opts.Restore {
		n, err := a.RestoreSnapshot(ctx, g)
		switch {
		case errors.Is(err, ErrNoSnapshotStore):
			a.logger.Warn("Restore requested but no snapshot path is configured.")
		case err != nil:
			return err
		default:
			a.logger.Debug("Snapshot restored.", "count", n)
		}
	}
	a.persist(ctx, g)

	if opts.Report != nil {
		opts.Report(g)
	}

	if !opts.Hold && !opts.Watch {
		a.logger.Debug("App.Run method finished.")
		return nil
	}

	var wg sync.WaitGroup
	if a.config.Relay.URL != "" {
		client, err := eventrelay.Dial(ctx, eventrelay.ClientConfig{
			URL:                a.config.Relay.URL,
			Namespace:          a.config.Relay.Namespace,
			InsecureSkipVerify: a.config.Relay.InsecureSkipVerify,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			a.relay(ctx, client, g)
		}()
	}

	a.logger.Info("🚀 Graph is live.", "edges", len(g.EnumerateEdges()))
	if opts.Watch {
		err = a.Watch(ctx, g, opts.Report)
	} else {
		<-ctx.Done()
	}
	wg.Wait()

	a.logger.Info("🏁 Graph stopped.")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// relay forwards the async events of every streamer queue until ctx is done.
func (a *App) relay(ctx context.Context, e eventrelay.Emitter, g *builder.Graph) int {
	var sources []eventrelay.Source
	for name, rx := range g.Rx {
		sources = append(sources, eventrelay.Source{Name: name, Queue: rx.Queue()})
	}
	for name, tx := range g.Tx {
		sources = append(sources, eventrelay.Source{Name: name, Queue: tx.Queue()})
	}
	if len(sources) == 0 {
		a.logger.Warn("No streamers to relay events from.")
		<-ctx.Done()
		return 0
	}

	var opts []eventrelay.Option
	if a.config.Relay.Event != "" {
		opts = append(opts, eventrelay.WithEvent(a.config.Relay.Event))
	}
	return eventrelay.New(e, opts...).Run(ctx, sources)
}

// persist saves a snapshot when a store is configured. Failures are logged,
// the graph keeps running.
func (a *App) persist(ctx context.Context, g *builder.Graph) {
	if a.config.SnapshotPath == "" {
		return
	}
	if _, err := a.SaveSnapshot(ctx, g); err != nil {
		a.logger.Error("Failed to save property snapshot.", "error", err)
	}
}
