// Package runtime defines the sandbox runtime interface for forage-preview.
// This abstraction allows for multiple backend implementations and enables
// comprehensive testing through mocking.
package runtime

import (
	"context"
	"errors"
	"io"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/manifest"
)

// ErrNoTerminal is returned by Resize on a process spawned without a terminal.
var ErrNoTerminal = errors.New("process has no terminal")

// TerminalSize is a terminal's dimensions in character cells.
type TerminalSize struct {
	Cols int
	Rows int
}

// SpawnOptions holds options for spawning a process in a sandbox
type SpawnOptions struct {
	Terminal *TerminalSize // Allocate a terminal of this size
	Env      []string      // Extra environment variables
}

// ReadyFunc receives server-ready notifications. host may carry a scheme.
type ReadyFunc func(port int, host string)

// Process is a process running inside a sandbox.
type Process interface {
	// Output streams combined stdout and stderr until the process exits.
	Output() io.Reader

	// Input is the process's stdin.
	Input() io.WriteCloser

	// Wait blocks until the process exits and returns its exit code.
	Wait(ctx context.Context) (int, error)

	// Resize changes the terminal size of a process spawned with one.
	Resize(size TerminalSize) error
}

// FileSystem reads and writes files inside a sandbox. Paths are relative to
// the sandbox root.
type FileSystem interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
}

// Instance is one booted sandbox.
// All methods should be safe for concurrent use.
type Instance interface {
	// ID identifies the instance for logs.
	ID() string

	// Mount materializes manifest entries. Entries whose parent directory is
	// not mounted yet fail.
	Mount(ctx context.Context, m manifest.Manifest) error

	// Spawn starts a process in the sandbox root.
	Spawn(ctx context.Context, command string, args []string, opts SpawnOptions) (Process, error)

	// FS returns the sandbox file system.
	FS() FileSystem

	// OnServerReady registers fn for server-ready notifications and returns
	// a function that unregisters it.
	OnServerReady(fn ReadyFunc) (unsubscribe func())

	// Teardown releases the sandbox and everything running in it.
	Teardown(ctx context.Context) error
}

// Runtime boots sandbox instances.
type Runtime interface {
	// Name returns the runtime identifier (e.g., "local", "mock")
	Name() string

	// Boot creates a fresh, empty sandbox.
	Boot(ctx context.Context) (Instance, error)
}
