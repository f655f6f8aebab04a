// Package app provides the application context for forage-preview.
//
// This package manages application-wide dependencies using the functional
// options pattern, enabling easy testing through dependency injection.
//
// # App Context
//
// The App struct holds core dependencies:
//
//	type App struct {
//	    Config  *config.Config  // Loaded configuration
//	    Source  remote.Source   // Repository host
//	    Runtime runtime.Runtime // Sandbox runtime
//	    Cache   *cache.Cache    // Tree cache, nil when disabled
//	}
//
// # Creating an App
//
// Use New with functional options:
//
//	// Production usage
//	a := app.New(app.WithConfig(cfg))
//
//	// Testing with custom dependencies
//	a := app.New(
//	    app.WithSource(remote.NewMockSource()),
//	    app.WithRuntime(runtime.NewMockRuntime()),
//	    app.WithCache(cache.New(t.TempDir())),
//	)
//
// # Available Options
//
//	WithConfig(cfg)     // Custom configuration
//	WithSource(src)     // Custom repository source
//	WithRuntime(rt)     // Custom sandbox runtime
//	WithCache(c)        // Custom tree cache
package app
