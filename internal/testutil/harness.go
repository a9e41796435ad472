package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/rfnocgo/internal/app"
	"github.com/vk/rfnocgo/internal/builder"
	"github.com/vk/rfnocgo/internal/registry"
)

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	Graph     *builder.Graph
}

// RunIntegrationTest provides a standardized harness for running integration tests
// using a default background context.
func RunIntegrationTest(t *testing.T, files map[string]string, modules ...registry.Module) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, files, modules...)
}

// RunIntegrationTestWithContext writes files under a temp graph directory,
// starts an app on it and builds the graph once. Without modules the app
// registers the core blocks.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, files map[string]string, modules ...registry.Module) *HarnessResult {
	t.Helper()

	graphDir := filepath.Join(t.TempDir(), "graph")
	require.NoError(t, os.Mkdir(graphDir, 0o755))

	// Relative names like "radio/chain.hcl" create subdirectories.
	for name, content := range files {
		filePath := filepath.Join(graphDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	}

	cfg := app.DefaultConfig()
	cfg.GraphPath = graphDir
	cfg.Log.Level = "debug"
	cfg.Log.Format = "text"

	logBuffer := &app.SafeBuffer{}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, &cfg, modules...)
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
		}
	}
	t.Cleanup(func() { _ = testApp.Close() })

	g, err := testApp.Build(ctx)

	if os.Getenv("RFNOC_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       err,
		App:       testApp,
		Graph:     g,
	}
}
