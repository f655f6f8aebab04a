// Package cache stores fetched repository trees on disk.
//
// A tree is stored verbatim as JSON under <dir>/<owner>/<repo>.json and
// served until it is removed explicitly with Invalidate or Clear.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
)

// Cache is a directory of cached trees.
type Cache struct {
	dir string
}

// New creates a cache rooted at dir.
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) path(owner, name string) (string, error) {
	if err := config.ValidateRepoRef(owner, name); err != nil {
		return "", err
	}
	return securejoin.SecureJoin(c.dir, filepath.Join(owner, name+".json"))
}

// Load returns the cached tree for owner/name. ok is false on a miss.
func (c *Cache) Load(owner, name string) (tree []*repo.RepoNode, ok bool, err error) {
	p, err := c.path(owner, name)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		metrics.RecordCacheLookup(false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached tree: %w", err)
	}

	if err := json.Unmarshal(data, &tree); err != nil {
		logging.Warn("discarding corrupt cache entry", "path", p, "error", err)
		metrics.RecordCacheLookup(false)
		return nil, false, nil
	}
	metrics.RecordCacheLookup(true)
	return tree, true, nil
}

// Store writes tree for owner/name, replacing any previous entry.
func (c *Cache) Store(owner, name string, tree []*repo.RepoNode) error {
	p, err := c.path(owner, name)
	if err != nil {
		return err
	}
	if tree == nil {
		tree = []*repo.RepoNode{}
	}

	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tree-*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	logging.Debug("cached tree", "repo", owner+"/"+name, "path", p)
	return nil
}

// Invalidate removes the entry for owner/name. A missing entry is not an
// error.
func (c *Cache) Invalidate(owner, name string) error {
	p, err := c.path(owner, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache entry: %w", err)
	}
	return nil
}

// Clear removes every cached tree and returns how many were removed. Owner
// directories left empty are removed too; anything else under the cache
// directory is kept.
func (c *Cache) Clear() (int, error) {
	files, err := c.files()
	if err != nil {
		return 0, err
	}

	removed := 0
	owners := make(map[string]struct{})
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to clear cache: %w", err)
		}
		removed++
		owners[filepath.Dir(f)] = struct{}{}
	}
	for dir := range owners {
		// Fails while the directory still holds other files.
		_ = os.Remove(dir)
	}
	return removed, nil
}

// List returns the cached repositories as "owner/repo".
func (c *Cache) List() ([]string, error) {
	files, err := c.files()
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(files))
	for _, f := range files {
		owner := filepath.Base(filepath.Dir(f))
		name := filepath.Base(f)
		refs = append(refs, owner+"/"+name[:len(name)-len(".json")])
	}
	return refs, nil
}

func (c *Cache) files() ([]string, error) {
	return filepath.Glob(filepath.Join(c.dir, "*", "*.json"))
}
