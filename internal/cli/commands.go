package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/rfnocgo/internal/app"
	"github.com/vk/rfnocgo/internal/builder"
)

// GraphArg is the positional description path every graph command takes.
type GraphArg struct {
	Graph string `arg:"" optional:"" type:"path" help:"Description file or directory. Defaults to the configured graph."`
}

type RunCmd struct {
	GraphArg
	Hold    bool `help:"Keep the graph alive and relay async events until interrupted."`
	Restore bool `help:"Write stored property values over the description's."`
}

func (c *RunCmd) Run(ctx context.Context, g *Globals, env *Env) error {
	a, err := g.newApp(env, c.Graph)
	if err != nil {
		return err
	}
	defer a.Close()

	p := newPrinter(env.Out, g.NoColor)
	return a.Run(ctx, app.RunOptions{
		Hold:    c.Hold,
		Restore: c.Restore,
		Report: func(gr *builder.Graph) {
			p.Edges(gr)
			p.Properties(gr)
		},
	})
}

type EdgesCmd struct {
	GraphArg
}

func (c *EdgesCmd) Run(ctx context.Context, g *Globals, env *Env) error {
	a, err := g.newApp(env, c.Graph)
	if err != nil {
		return err
	}
	defer a.Close()

	gr, err := a.Build(ctx)
	if err != nil {
		return err
	}
	newPrinter(env.Out, g.NoColor).Edges(gr)
	return nil
}

type WatchCmd struct {
	GraphArg
	Restore bool `help:"Write stored property values over the description's before watching."`
}

func (c *WatchCmd) Run(ctx context.Context, g *Globals, env *Env) error {
	a, err := g.newApp(env, c.Graph)
	if err != nil {
		return err
	}
	defer a.Close()

	p := newPrinter(env.Out, g.NoColor)
	return a.Run(ctx, app.RunOptions{
		Watch:   true,
		Restore: c.Restore,
		Report:  p.Properties,
	})
}

type SnapshotCmd struct {
	Save    SnapshotSaveCmd    `cmd:"" help:"Build the graph and store its user property values."`
	Restore SnapshotRestoreCmd `cmd:"" help:"Build the graph, apply stored values and print the result."`
	List    SnapshotListCmd    `cmd:"" help:"List stored property values."`
}

type SnapshotSaveCmd struct {
	GraphArg
}

func (c *SnapshotSaveCmd) Run(ctx context.Context, g *Globals, env *Env) error {
	a, err := g.newApp(env, c.Graph)
	if err != nil {
		return err
	}
	defer a.Close()

	gr, err := a.Build(ctx)
	if err != nil {
		return err
	}
	info, err := a.SaveSnapshot(ctx, gr)
	if err != nil {
		return snapshotError(err)
	}
	newPrinter(env.Out, g.NoColor).Success("Saved %d property values.", info.Count)
	return nil
}

type SnapshotRestoreCmd struct {
	GraphArg
}

func (c *SnapshotRestoreCmd) Run(ctx context.Context, g *Globals, env *Env) error {
	a, err := g.newApp(env, c.Graph)
	if err != nil {
		return err
	}
	defer a.Close()

	gr, err := a.Build(ctx)
	if err != nil {
		return err
	}
	n, err := a.RestoreSnapshot(ctx, gr)
	if err != nil {
		return snapshotError(err)
	}
	p := newPrinter(env.Out, g.NoColor)
	p.Success("Restored %d property values.", n)
	p.Properties(gr)
	return nil
}

type SnapshotListCmd struct {
	GraphArg
}

func (c *SnapshotListCmd) Run(ctx context.Context, g *Globals, env *Env) error {
	a, err := g.newApp(env, c.Graph)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, info, err := a.SnapshotEntries(ctx)
	if err != nil {
		return snapshotError(err)
	}
	newPrinter(env.Out, g.NoColor).Entries(entries, info)
	return nil
}

func snapshotError(err error) error {
	if errors.Is(err, app.ErrNoSnapshotStore) {
		return &ExitError{Code: 2, Message: "no snapshot store: set --snapshot-path or snapshot_path in the config file"}
	}
	return err
}

type VersionCmd struct{}

func (c *VersionCmd) Run(env *Env) error {
	fmt.Fprintf(env.Out, "rfnoc %s\n", Version)
	return nil
}
