// Package testutil provides test utilities for integration tests
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/cache"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/remote"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/runtime"
)

// DefaultPreviewHost is the host reported by DevServerReady.
const DefaultPreviewHost = "https://1-2-3.example.com"

// TestEnv holds the test environment
type TestEnv struct {
	T       *testing.T
	TmpDir  string
	Config  *config.Config
	Source  *remote.MockSource
	Runtime *runtime.MockRuntime
	Cache   *cache.Cache
	App     *app.App
	cleanup func()
}

// NewTestEnv creates a new test environment with a mock source and runtime
// and installs it as app.Default.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := config.Default()
	cfg.Cache.Dir = filepath.Join(tmpDir, "cache")
	cfg.Sandbox.WorkDir = filepath.Join(tmpDir, "sandboxes")

	src := remote.NewMockSource()
	mockRuntime := runtime.NewMockRuntime()
	treeCache := cache.New(cfg.Cache.Dir)

	testApp := app.New(
		app.WithConfig(cfg),
		app.WithSource(src),
		app.WithRuntime(mockRuntime),
		app.WithCache(treeCache),
	)

	// Save original default and set test app
	originalDefault := app.Default
	app.SetDefault(testApp)

	env := &TestEnv{
		T:       t,
		TmpDir:  tmpDir,
		Config:  cfg,
		Source:  src,
		Runtime: mockRuntime,
		Cache:   treeCache,
		App:     testApp,
		cleanup: func() {
			app.SetDefault(originalDefault)
		},
	}
	t.Cleanup(env.Cleanup)

	return env
}

// Cleanup restores the original app default
func (e *TestEnv) Cleanup() {
	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}
}

// AddRepo serves tree from the mock source. Files without content are
// registered with empty content.
func (e *TestEnv) AddRepo(tree []*repo.RepoNode) {
	e.T.Helper()

	err := repo.Walk(tree, func(n *repo.RepoNode, _ int) error {
		if n.IsDir() {
			e.Source.AddDir(n.Path)
			return nil
		}
		content := ""
		if n.Content != nil {
			content = *n.Content
		}
		e.Source.AddFile(n.Path, content)
		return nil
	})
	if err != nil {
		e.T.Fatalf("Failed to add repo: %v", err)
	}
}

// AddSampleRepo serves the sample tree fixture.
func (e *TestEnv) AddSampleRepo() []*repo.RepoNode {
	e.T.Helper()

	tree, err := SampleTree()
	if err != nil {
		e.T.Fatalf("Failed to load sample tree: %v", err)
	}
	e.AddRepo(tree)
	return tree
}

// DevCommandLine returns the configured dev server command line.
func (e *TestEnv) DevCommandLine() string {
	e.T.Helper()

	argv, err := e.Config.Sandbox.DevArgv()
	if err != nil {
		e.T.Fatalf("Failed to split dev command: %v", err)
	}
	line := argv[0]
	for _, a := range argv[1:] {
		line += " " + a
	}
	return line
}

// DevServerReady scripts the dev server to keep running and report
// readiness on the configured port behind host.
func (e *TestEnv) DevServerReady(host string) {
	e.T.Helper()

	e.Runtime.SetCommand(e.DevCommandLine(), &runtime.MockCommand{
		Block:     true,
		ReadyPort: e.Config.Sandbox.DevPort,
		ReadyHost: host,
	})
}
