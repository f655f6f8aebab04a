package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kballard/go-shellquote"
)

// ownerRegex follows GitHub's login rules: alphanumerics and single hyphens,
// at most 39 characters, not starting with a hyphen.
var ownerRegex = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)

// repoRegex follows GitHub's repository name rules.
var repoRegex = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)

// ValidateRepoRef checks that owner and repo form a valid repository reference.
// Both parts become path segments of API requests and cache files, so
// anything that could traverse or inject is rejected.
func ValidateRepoRef(owner, repo string) error {
	if owner == "" {
		return fmt.Errorf("repository owner cannot be empty")
	}
	if repo == "" {
		return fmt.Errorf("repository name cannot be empty")
	}
	if !ownerRegex.MatchString(owner) {
		return fmt.Errorf("invalid repository owner %q: must contain only letters, digits, or hyphens and be at most 39 characters", owner)
	}
	if !repoRegex.MatchString(repo) || repo == "." || repo == ".." {
		return fmt.Errorf("invalid repository name %q: must contain only letters, digits, '.', '_', or '-' and be at most 100 characters", repo)
	}
	return nil
}

// ParseRepoRef splits "owner/repo" and validates both halves.
func ParseRepoRef(ref string) (owner, repo string, err error) {
	ref = strings.TrimSuffix(strings.TrimSpace(ref), ".git")
	owner, repo, ok := strings.Cut(ref, "/")
	if !ok {
		return "", "", fmt.Errorf("invalid repository reference %q: expected owner/repo", ref)
	}
	if err := ValidateRepoRef(owner, repo); err != nil {
		return "", "", err
	}
	return owner, repo, nil
}

const (
	AppName            = "forage-preview"
	ConfigFileName     = "config.toml"
	EnvGitHubToken     = "GITHUB_TOKEN"
	EnvCacheDir        = "FORAGE_PREVIEW_CACHE_DIR"
	RuntimeLocal       = "local"
	DefaultDevHost     = "0.0.0.0"
	DefaultDevPort     = 3000
	DefaultListenAddr  = "127.0.0.1:8080"
	DefaultConcurrency = 4
	DefaultMaxDepth    = 32
	DefaultMaxFileSize = 1 << 20
)

// Duration is a time.Duration that decodes from TOML strings like "90s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full forage-preview configuration.
type Config struct {
	GitHub  GitHubConfig  `toml:"github"`
	Fetch   FetchConfig   `toml:"fetch"`
	Cache   CacheConfig   `toml:"cache"`
	Sandbox SandboxConfig `toml:"sandbox"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
}

// GitHubConfig configures the repository host client.
type GitHubConfig struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`
}

// FetchConfig bounds the remote tree walk.
type FetchConfig struct {
	Concurrency int   `toml:"concurrency"`
	MaxDepth    int   `toml:"max_depth"`
	MaxFileSize int64 `toml:"max_file_size"`
}

// CacheConfig configures the on-disk tree cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// SandboxConfig configures the execution sandbox and the commands run in it.
type SandboxConfig struct {
	Runtime          string   `toml:"runtime"`
	WorkDir          string   `toml:"work_dir"`
	KeepWorkDir      bool     `toml:"keep_work_dir"`
	DevHost          string   `toml:"dev_host"`
	DevPort          int      `toml:"dev_port"`
	InstallCommand   string   `toml:"install_command"`
	DevCommand       string   `toml:"dev_command"`
	VerifyCommand    string   `toml:"verify_command"`
	ShellCommand     string   `toml:"shell_command"`
	ShellDevCommand  string   `toml:"shell_dev_command"`
	MountConcurrency int      `toml:"mount_concurrency"`
	QuietInstall     bool     `toml:"quiet_install"`
	ReadyTimeout     Duration `toml:"ready_timeout"`
	ProbeInterval    Duration `toml:"probe_interval"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// LogConfig configures the optional rotated log file.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Fetch: FetchConfig{
			Concurrency: DefaultConcurrency,
			MaxDepth:    DefaultMaxDepth,
			MaxFileSize: DefaultMaxFileSize,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     defaultCacheDir(),
		},
		Sandbox: SandboxConfig{
			Runtime:          RuntimeLocal,
			DevHost:          DefaultDevHost,
			DevPort:          DefaultDevPort,
			InstallCommand:   "npm install",
			DevCommand:       "npx next dev --hostname ${HOST} --port ${PORT}",
			VerifyCommand:    "ls -la",
			ShellCommand:     "sh",
			ShellDevCommand:  "npm run dev",
			MountConcurrency: 1,
			ReadyTimeout:     Duration{5 * time.Minute},
			ProbeInterval:    Duration{500 * time.Millisecond},
		},
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/forage-preview/config.toml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ConfigFileName)
	}
	return filepath.Join(dir, AppName, ConfigFileName)
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(dir, AppName)
}

// Load reads the configuration at path on top of the defaults.
// An empty path means DefaultPath, where a missing file is not an error.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			cfg.applyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if token := os.Getenv(EnvGitHubToken); token != "" {
		c.GitHub.Token = token
	}
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		c.Cache.Dir = dir
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be at least 1, got %d", c.Fetch.Concurrency)
	}
	if c.Fetch.MaxDepth < 1 {
		return fmt.Errorf("fetch.max_depth must be at least 1, got %d", c.Fetch.MaxDepth)
	}
	if c.Fetch.MaxFileSize < 0 {
		return fmt.Errorf("fetch.max_file_size cannot be negative")
	}
	if c.Sandbox.Runtime != RuntimeLocal {
		return fmt.Errorf("unsupported sandbox.runtime %q", c.Sandbox.Runtime)
	}
	if c.Sandbox.DevPort < 1 || c.Sandbox.DevPort > 65535 {
		return fmt.Errorf("sandbox.dev_port out of range: %d", c.Sandbox.DevPort)
	}
	if c.Sandbox.MountConcurrency < 1 {
		return fmt.Errorf("sandbox.mount_concurrency must be at least 1, got %d", c.Sandbox.MountConcurrency)
	}
	for name, command := range map[string]string{
		"install_command":   c.Sandbox.InstallCommand,
		"dev_command":       c.Sandbox.DevCommand,
		"verify_command":    c.Sandbox.VerifyCommand,
		"shell_command":     c.Sandbox.ShellCommand,
		"shell_dev_command": c.Sandbox.ShellDevCommand,
	} {
		if _, err := c.Sandbox.commandLine(command); err != nil {
			return fmt.Errorf("sandbox.%s: %w", name, err)
		}
	}
	return nil
}

// InstallArgv returns the install command split into argv.
func (s SandboxConfig) InstallArgv() ([]string, error) {
	return s.commandLine(s.InstallCommand)
}

// DevArgv returns the dev server command split into argv with ${HOST} and
// ${PORT} expanded.
func (s SandboxConfig) DevArgv() ([]string, error) {
	return s.commandLine(s.DevCommand)
}

// VerifyArgv returns the post-mount verification command split into argv.
func (s SandboxConfig) VerifyArgv() ([]string, error) {
	return s.commandLine(s.VerifyCommand)
}

// ShellArgv returns the interactive shell command split into argv.
func (s SandboxConfig) ShellArgv() ([]string, error) {
	return s.commandLine(s.ShellCommand)
}

func (s SandboxConfig) commandLine(command string) ([]string, error) {
	words, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", command, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("command cannot be empty")
	}
	for i, w := range words {
		words[i] = os.Expand(w, func(key string) string {
			switch key {
			case "HOST":
				return s.DevHost
			case "PORT":
				return strconv.Itoa(s.DevPort)
			}
			return "${" + key + "}"
		})
	}
	return words, nil
}
