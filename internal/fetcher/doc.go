// Package fetcher walks a remote repository into an in-memory tree.
//
// # Walk
//
// FetchTree lists a directory, recurses into subdirectories, and fetches
// every file's raw content with a separate request:
//
//	f := fetcher.New(source, fetcher.Options{Concurrency: 4})
//	tree, err := f.FetchTree(ctx, "octo", "app", ".")
//
// Children appear in the order the host listed them. Requests run
// concurrently, bounded by Options.Concurrency across the whole walk.
//
// # Failures
//
// A node that cannot be listed or read is kept in the tree with its
// children or content omitted, and the error is passed to Options.OnError.
// Directories deeper than MaxDepth and files larger than MaxFileSize are
// treated the same way. When the host reports rate-limit exhaustion the walk
// stops issuing requests and the remaining nodes are reported as failed.
// Only a failure listing the starting path is returned as an error.
package fetcher
