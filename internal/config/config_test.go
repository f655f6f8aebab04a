package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestValidateRepoRef(t *testing.T) {
	tests := []struct {
		owner   string
		repo    string
		wantErr bool
	}{
		{"octo", "app", false},
		{"octo-org", "my.app_v2", false},
		{"a", "b", false},
		{"", "app", true},
		{"octo", "", true},
		{"-octo", "app", true},
		{"octo", "..", true},
		{"octo", ".", true},
		{"octo", "app/extra", true},
		{"oc/to", "app", true},
		{"octo", "a b", true},
		{"octoooooooooooooooooooooooooooooooooooooo", "app", true},
	}

	for _, tt := range tests {
		t.Run(tt.owner+"/"+tt.repo, func(t *testing.T) {
			err := ValidateRepoRef(tt.owner, tt.repo)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRepoRef(%q, %q) error = %v, wantErr %v", tt.owner, tt.repo, err, tt.wantErr)
			}
		})
	}
}

func TestParseRepoRef(t *testing.T) {
	tests := []struct {
		ref       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{"octo/app", "octo", "app", false},
		{" octo/app.git ", "octo", "app", false},
		{"octo", "", "", true},
		{"octo/app/tree", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			owner, repo, err := ParseRepoRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRepoRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("ParseRepoRef(%q) = %q, %q, want %q, %q", tt.ref, owner, repo, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Sandbox.DevPort != 3000 {
		t.Errorf("DevPort = %d, want 3000", cfg.Sandbox.DevPort)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should be enabled by default")
	}
}

func TestDevArgv(t *testing.T) {
	cfg := Default()

	got, err := cfg.Sandbox.DevArgv()
	if err != nil {
		t.Fatalf("DevArgv() error: %v", err)
	}
	want := []string{"npx", "next", "dev", "--hostname", "0.0.0.0", "--port", "3000"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DevArgv() = %v, want %v", got, want)
	}

	cfg.Sandbox.DevPort = 4000
	cfg.Sandbox.DevCommand = `npm run dev -- --port ${PORT} --title "my app" ${OTHER}`
	got, err = cfg.Sandbox.DevArgv()
	if err != nil {
		t.Fatalf("DevArgv() error: %v", err)
	}
	want = []string{"npm", "run", "dev", "--", "--port", "4000", "--title", "my app", "${OTHER}"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DevArgv() = %v, want %v", got, want)
	}
}

func TestCommandArgv_Invalid(t *testing.T) {
	cfg := Default()

	cfg.Sandbox.InstallCommand = `npm "install`
	if _, err := cfg.Sandbox.InstallArgv(); err == nil {
		t.Error("expected error for unterminated quote")
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject an unparseable command")
	}

	cfg = Default()
	cfg.Sandbox.ShellCommand = "   "
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject an empty command")
	}

	cfg = Default()
	cfg.Sandbox.ShellDevCommand = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject an empty shell dev command")
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	data := `
[github]
token = "file-token"

[fetch]
concurrency = 8

[sandbox]
dev_port = 4321
ready_timeout = "90s"
shell_dev_command = "pnpm dev"

[log]
file = "/tmp/forage-preview.log"
`
	if err := os.WriteFile(configPath, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv(EnvGitHubToken, "")
	t.Setenv(EnvCacheDir, "")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GitHub.Token != "file-token" {
		t.Errorf("Token = %q, want %q", cfg.GitHub.Token, "file-token")
	}
	if cfg.Fetch.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Fetch.Concurrency)
	}
	if cfg.Fetch.MaxDepth != DefaultMaxDepth {
		t.Errorf("MaxDepth = %d, want default %d", cfg.Fetch.MaxDepth, DefaultMaxDepth)
	}
	if cfg.Sandbox.DevPort != 4321 {
		t.Errorf("DevPort = %d, want 4321", cfg.Sandbox.DevPort)
	}
	if cfg.Sandbox.ShellDevCommand != "pnpm dev" {
		t.Errorf("ShellDevCommand = %q, want %q", cfg.Sandbox.ShellDevCommand, "pnpm dev")
	}
	if cfg.Sandbox.ShellCommand != "sh" {
		t.Errorf("ShellCommand = %q, want default sh", cfg.Sandbox.ShellCommand)
	}
	if cfg.Sandbox.ReadyTimeout.Duration != 90*time.Second {
		t.Errorf("ReadyTimeout = %v, want 90s", cfg.Sandbox.ReadyTimeout.Duration)
	}
	if cfg.Log.File != "/tmp/forage-preview.log" {
		t.Errorf("Log.File = %q", cfg.Log.File)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)
	if err := os.WriteFile(configPath, []byte("[github]\ntoken = \"file-token\"\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv(EnvGitHubToken, "env-token")
	t.Setenv(EnvCacheDir, "/var/cache/preview")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GitHub.Token != "env-token" {
		t.Errorf("Token = %q, want %q", cfg.GitHub.Token, "env-token")
	}
	if cfg.Cache.Dir != "/var/cache/preview" {
		t.Errorf("Cache.Dir = %q, want %q", cfg.Cache.Dir, "/var/cache/preview")
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("Expected error for explicit nonexistent config, got nil")
	}
}

func TestLoad_DefaultPathMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") with no file should succeed, got %v", err)
	}
	if cfg.Fetch.Concurrency != DefaultConcurrency {
		t.Errorf("Concurrency = %d, want %d", cfg.Fetch.Concurrency, DefaultConcurrency)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not toml", "not valid toml ==="},
		{"bad duration", "[sandbox]\nready_timeout = \"soon\"\n"},
		{"zero concurrency", "[fetch]\nconcurrency = 0\n"},
		{"bad runtime", "[sandbox]\nruntime = \"webcontainer\"\n"},
		{"bad port", "[sandbox]\ndev_port = 70000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigFileName)
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
