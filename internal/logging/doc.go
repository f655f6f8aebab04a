// Package logging provides logging utilities for forage-preview.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written using slog and controlled by verbosity settings:
//
//	logging.Debug("listing directory", "repo", ref, "path", path)
//	logging.Warn("fetch failed", "path", path, "error", err)
//
// SetupFile additionally tees the structured log into a rotated file
// (lumberjack), configured from the [log] section of the config file.
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("Fetching %s/%s...", owner, repo)
//	logging.UserSuccess("Preview ready at %s", url)
//	logging.UserWarning("npm install exited with code %d", code)
//	logging.UserError("Failed to fetch repository: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
//
// # Status Indicators
//
// User functions prepend status indicators:
//   - ℹ (info)
//   - ✓ (success)
//   - ⚠ (warning)
//   - ✗ (error)
package logging
