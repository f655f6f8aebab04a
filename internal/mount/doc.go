// Package mount materializes a converted project inside a sandbox instance.
//
// The Orchestrator converts a repository tree into a manifest (falling back
// to a minimal scaffold when conversion fails or leaves no files), mounts it
// level by level, verifies the result and makes sure a package descriptor
// exists before dependencies are installed.
//
// # Mount Order
//
// PlanOrder groups manifest keys into levels:
//   - root directories
//   - root files
//   - one level per depth, ascending, keys sorted within a level
//
// Levels run one after another so a parent is always mounted before its
// children. Entries within a level may be mounted concurrently. Every entry
// is mounted with its own call; a failure is recorded in the Result and the
// remaining entries are still mounted.
package mount
