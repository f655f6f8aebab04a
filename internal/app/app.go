// Package app provides the application context for forage-preview.
// It allows dependency injection for testing.
package app

import (
	"context"
	"errors"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/cache"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/fetcher"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/process"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/remote"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/runtime"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/session"
)

// App holds the application dependencies
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Source is the remote repository host
	Source remote.Source

	// Runtime is the sandbox runtime
	Runtime runtime.Runtime

	// Cache is the tree cache; nil when caching is disabled
	Cache *cache.Cache
}

// Option is a function that configures the App
type Option func(*App)

// WithConfig sets a custom configuration
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.Config = cfg
	}
}

// WithSource sets a custom repository source
func WithSource(src remote.Source) Option {
	return func(a *App) {
		a.Source = src
	}
}

// WithRuntime sets a custom runtime
func WithRuntime(r runtime.Runtime) Option {
	return func(a *App) {
		a.Runtime = r
	}
}

// WithCache sets a custom tree cache
func WithCache(c *cache.Cache) Option {
	return func(a *App) {
		a.Cache = c
	}
}

// New creates a new App with the given options.
// Dependencies not provided are built from the configuration.
func New(opts ...Option) *App {
	app := &App{}

	for _, opt := range opts {
		opt(app)
	}

	if app.Config == nil {
		app.Config = config.Default()
	}

	if app.Source == nil {
		src, err := remote.NewGitHubSource(remote.GitHubOptions{
			Token:   app.Config.GitHub.Token,
			BaseURL: app.Config.GitHub.BaseURL,
		})
		if err != nil {
			logging.Debug("failed to initialize GitHub source", "error", err)
		} else {
			app.Source = src
		}
	}

	if app.Runtime == nil {
		rt, err := runtime.New(app.Config.Sandbox)
		if err != nil {
			logging.Debug("failed to initialize runtime", "error", err)
		} else {
			app.Runtime = rt
		}
	}

	if app.Cache == nil && app.Config.Cache.Enabled && app.Config.Cache.Dir != "" {
		app.Cache = cache.New(app.Config.Cache.Dir)
	}

	return app
}

// Fetcher returns a tree fetcher over the app's source
func (a *App) Fetcher() *fetcher.Fetcher {
	return fetcher.New(a.Source, fetcher.Options{
		Concurrency: a.Config.Fetch.Concurrency,
		MaxDepth:    a.Config.Fetch.MaxDepth,
		MaxFileSize: a.Config.Fetch.MaxFileSize,
	})
}

// FetchTree returns the tree of owner/name, from the cache when present
// unless refresh is set. Fetched trees are stored in the cache.
func (a *App) FetchTree(ctx context.Context, owner, name string, refresh bool) (tree []*repo.RepoNode, cached bool, err error) {
	if a.Source == nil {
		return nil, false, errors.New("no repository source configured")
	}
	if a.Cache != nil && !refresh {
		tree, ok, err := a.Cache.Load(owner, name)
		if err != nil {
			logging.Warn("tree cache unavailable", "error", err)
		} else if ok {
			return tree, true, nil
		}
	}

	tree, err = a.Fetcher().FetchTree(ctx, owner, name, "")
	if err != nil {
		return nil, false, err
	}
	if a.Cache != nil {
		if err := a.Cache.Store(owner, name, tree); err != nil {
			logging.Warn("failed to cache tree", "error", err)
		}
	}
	return tree, false, nil
}

// CheckRepo reports whether owner/name exists and is readable
func (a *App) CheckRepo(ctx context.Context, owner, name string) error {
	if a.Source == nil {
		return errors.New("no repository source configured")
	}
	return a.Source.CheckRepo(ctx, owner, name)
}

// RateLimit returns the source's request quota
func (a *App) RateLimit(ctx context.Context) (*remote.RateLimit, error) {
	rl, ok := a.Source.(remote.RateLimiter)
	if !ok {
		return nil, remote.ErrNoRateLimit
	}
	return rl.RateLimit(ctx)
}

// SessionOptions returns session options for owner/name built from the
// configuration.
func (a *App) SessionOptions(owner, name string) (session.Options, error) {
	cmds, err := process.CommandsFromConfig(a.Config.Sandbox)
	if err != nil {
		return session.Options{}, err
	}
	opts := session.Options{
		Owner:            owner,
		Repo:             name,
		Runtime:          a.Runtime,
		Commands:         &cmds,
		FilterInstall:    a.Config.Sandbox.QuietInstall,
		MountConcurrency: a.Config.Sandbox.MountConcurrency,
		ReadyTimeout:     a.Config.Sandbox.ReadyTimeout.Duration,
	}
	if a.Source != nil {
		opts.Fetcher = a.Fetcher()
	}
	if a.Cache != nil {
		opts.Cache = a.Cache
	}
	return opts, nil
}

// NewManager returns a session manager using the app's dependencies
func (a *App) NewManager() (*session.Manager, error) {
	if a.Runtime == nil {
		return nil, errors.New("no sandbox runtime available")
	}
	opts, err := a.SessionOptions("", "")
	if err != nil {
		return nil, err
	}
	return session.NewManager(opts), nil
}

// Default is the default application instance
var Default = New()

// SetDefault sets the default application instance (used for testing)
func SetDefault(app *App) {
	Default = app
}

// ResetDefault resets to the default application instance
func ResetDefault() {
	Default = New()
}
