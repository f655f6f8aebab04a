// Package runtime provides a unified interface for preview sandboxes.
//
// A Runtime boots an Instance: an isolated, ephemeral file system plus a
// process space in which a mounted project can be installed and served.
//
// Supported runtimes:
//   - local: materializes the project under a temporary directory on the
//     host, spawns processes with os/exec (or a pty for interactive shells)
//     and detects a running dev server by probing its port
//
// Use New() to construct the runtime selected in configuration, or
// construct specific implementations directly for testing.
//
// # Instance Interface
//
// The Instance interface defines operations used by the mount orchestrator
// and the process supervisor:
//   - Mount: Write a manifest into the sandbox, parents before children
//   - Spawn: Start a command, returning its output, input and exit code
//   - FS: Read and write single files after mounting
//   - OnServerReady: Register for dev-server ready notifications
//   - Teardown: Stop all processes and release the sandbox
//
// # Mock Runtime
//
// For testing, use NewMockRuntime() to create a mock implementation that can
// be configured with scripted commands and injected errors, and used to
// verify mount order and spawned command lines.
package runtime
