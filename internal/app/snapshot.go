package app

import (
	"context"
	"errors"

	"github.com/vk/rfnocgo/internal/builder"
	"github.com/vk/rfnocgo/internal/propstore"
)

// ErrNoSnapshotStore is returned by the snapshot operations when no
// snapshot path is configured.
var ErrNoSnapshotStore = errors.New("no snapshot path configured")

// SaveSnapshot stores the USER property values of g.
func (a *App) SaveSnapshot(ctx context.Context, g *builder.Graph) (propstore.Info, error) {
	ctx = a.withLogger(ctx)
	store, err := a.openStore(ctx)
	if err != nil {
		return propstore.Info{}, err
	}
	if store == nil {
		return propstore.Info{}, ErrNoSnapshotStore
	}
	return store.Save(ctx, g.PropertySnapshot())
}

// RestoreSnapshot writes the saved property values back into g and returns
// how many were applied. An empty store restores nothing.
func (a *App) RestoreSnapshot(ctx context.Context, g *builder.Graph) (int, error) {
	ctx = a.withLogger(ctx)
	store, err := a.openStore(ctx)
	if err != nil {
		return 0, err
	}
	if store == nil {
		return 0, ErrNoSnapshotStore
	}
	if _, ok, err := store.Info(); err != nil || !ok {
		return 0, err
	}
	return store.Restore(ctx, g)
}

// SnapshotEntries lists what the store holds.
func (a *App) SnapshotEntries(ctx context.Context) ([]propstore.Entry, propstore.Info, error) {
	store, err := a.openStore(a.withLogger(ctx))
	if err != nil {
		return nil, propstore.Info{}, err
	}
	if store == nil {
		return nil, propstore.Info{}, ErrNoSnapshotStore
	}
	info, _, err := store.Info()
	if err != nil {
		return nil, propstore.Info{}, err
	}
	entries, err := store.Entries()
	return entries, info, err
}
