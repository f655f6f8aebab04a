package testutil

import (
	"embed"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
)

//go:embed fixtures/*.json fixtures/*.toml
var fixturesFS embed.FS

// LoadFixture loads a fixture file by name.
func LoadFixture(name string) ([]byte, error) {
	return fixturesFS.ReadFile("fixtures/" + name)
}

// LoadTreeFixture loads a repository tree fixture.
func LoadTreeFixture(name string) ([]*repo.RepoNode, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	var tree []*repo.RepoNode
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// SampleTree returns the sample project tree fixture. It contains excluded
// entries (node_modules, dot files, the lockfile) and one file whose content
// fetch failed.
func SampleTree() ([]*repo.RepoNode, error) {
	return LoadTreeFixture("sample_tree.json")
}

// InvalidTree returns a tree fixture that fails repo.Validate.
func InvalidTree() ([]*repo.RepoNode, error) {
	return LoadTreeFixture("invalid_tree.json")
}

// LoadConfigFixture writes a TOML fixture into a temp dir and loads it.
func LoadConfigFixture(t *testing.T, name string) (*config.Config, error) {
	t.Helper()
	return config.Load(WriteFixture(t, name))
}

// WriteFixture copies a fixture into a temp dir and returns its path.
func WriteFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := LoadFixture(name)
	if err != nil {
		t.Fatalf("Failed to load fixture %s: %v", name, err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", name, err)
	}
	return path
}

// ValidConfig loads the valid configuration fixture.
func ValidConfig(t *testing.T) (*config.Config, error) {
	return LoadConfigFixture(t, "valid_config.toml")
}

// InvalidConfig loads the invalid configuration fixture. Load reports the
// validation error.
func InvalidConfig(t *testing.T) (*config.Config, error) {
	return LoadConfigFixture(t, "invalid_config.toml")
}
