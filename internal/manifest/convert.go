package manifest

import (
	"strings"

	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
)

// Names the file pass never mounts.
const (
	DependencyDir   = "node_modules"
	LockfileName    = "package-lock.json"
	maxConvertDepth = 256
)

// forbidden lists characters the sandbox filesystem rejects in paths.
var forbidden = strings.NewReplacer(
	`\`, "_",
	":", "_",
	"*", "_",
	"?", "_",
	`"`, "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// Sanitize strips leading slashes and replaces \ : * ? " < > | with _.
// It is idempotent.
func Sanitize(p string) string {
	return forbidden.Replace(strings.TrimLeft(p, "/"))
}

func join(parent, name string) string {
	name = Sanitize(name)
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Excluded reports whether the file pass skips a tree node: anything under a
// node_modules segment, hidden names, and the npm lockfile.
func Excluded(n *repo.RepoNode) bool {
	if strings.HasPrefix(n.Name, ".") || n.Name == LockfileName {
		return true
	}
	for _, seg := range strings.Split(n.Path, "/") {
		if seg == DependencyDir {
			return true
		}
	}
	return false
}

// FromTree converts a fetched tree into a manifest in two passes. The
// directory pass emits every directory, empty ones included, at its
// sanitized cumulative path. The file pass emits every file that is not
// Excluded, with empty contents when the content fetch failed.
//
// Keys are built from node names, so both passes sanitize identically and
// every file's ancestors are already present. A file whose key is already
// taken, by a directory or by an earlier file, is skipped. A directory whose
// name sanitizes to nothing aborts the conversion with a ConversionError.
func FromTree(tree []*repo.RepoNode) (Manifest, error) {
	m := make(Manifest)
	if err := addDirectories(m, tree, "", 0); err != nil {
		return nil, err
	}
	addFiles(m, tree, "")
	return m, nil
}

func addDirectories(m Manifest, nodes []*repo.RepoNode, parent string, depth int) error {
	if depth > maxConvertDepth {
		return ferrors.ConversionError(parent, "tree is too deep")
	}
	for _, n := range nodes {
		if n == nil || !n.IsDir() {
			continue
		}
		if Sanitize(n.Name) == "" {
			return ferrors.ConversionError(n.Path, "directory name is empty after sanitizing")
		}
		key := join(parent, n.Name)
		m[key] = Directory{}
		if err := addDirectories(m, n.Children, key, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func addFiles(m Manifest, nodes []*repo.RepoNode, parent string) {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if n.IsDir() {
			addFiles(m, n.Children, join(parent, n.Name))
			continue
		}
		if Excluded(n) || Sanitize(n.Name) == "" {
			continue
		}
		key := join(parent, n.Name)
		if prev, taken := m[key]; taken {
			logging.Warn("skipping file with colliding path", "path", n.Path, "key", key, "taken_by", prev.Kind().String())
			continue
		}
		contents := []byte{}
		if n.Content != nil {
			contents = []byte(*n.Content)
		}
		m[key] = File{Contents: contents}
	}
}
