package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/rfnocgo/internal/builder"
)

// Watch reloads the description whenever a file under the graph path
// changes and reapplies its properties to g. Topology changes are not
// picked up; they need a rebuild. Bursts of events within the configured
// debounce window cause a single reapply. Blocks until ctx is done.
func (a *App) Watch(ctx context.Context, g *builder.Graph, report func(*builder.Graph)) error {
	ctx = a.withLogger(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	root, err := filepath.Abs(a.config.GraphPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}
	watchesFile := !info.IsDir()

	if watchesFile {
		// Editors replace files on save, so watch the directory.
		err = watcher.Add(filepath.Dir(root))
	} else {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return watcher.Add(path)
			}
			return nil
		})
	}
	if err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	relevant := func(name string) bool {
		if watchesFile {
			return filepath.Clean(name) == root
		}
		return strings.HasSuffix(name, ".hcl")
	}

	debounce := a.config.Watch.Debounce
	timer := time.NewTimer(debounce)
	timer.Stop()
	pending := false

	a.logger.Info("👀 Watching graph description for changes.", "path", a.config.GraphPath, "debounce", debounce)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) && !watchesFile {
				if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if !relevant(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			a.logger.Debug("Description change seen.", "file", event.Name, "op", event.Op.String())
			pending = true
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("Watch error.", "error", err)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			if err := a.reapply(ctx, g); err != nil {
				a.logger.Error("Failed to reapply properties.", "error", err)
				continue
			}
			if report != nil {
				report(g)
			}
		}
	}
}

// reapply loads the description again and writes its properties into g.
func (a *App) reapply(ctx context.Context, g *builder.Graph) error {
	desc, err := a.Load(ctx)
	if err != nil {
		return err
	}
	if err := g.ApplyProperties(ctx, desc); err != nil {
		return err
	}
	a.logger.Info("🔁 Reapplied properties from description.", "blocks", len(desc.Blocks))
	a.persist(ctx, g)
	return nil
}
