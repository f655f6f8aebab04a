// Package config provides configuration types and loading for forage-preview.
//
// # Configuration File
//
// Configuration is TOML, read from $XDG_CONFIG_HOME/forage-preview/config.toml
// or the path given with --config. Every key is optional; missing keys keep
// the values from Default:
//
//	[github]
//	token = ""                 # GITHUB_TOKEN overrides
//	base_url = ""              # GitHub Enterprise or a test server
//
//	[fetch]
//	concurrency = 4
//	max_depth = 32
//	max_file_size = 1048576
//
//	[cache]
//	enabled = true
//	dir = "~/.cache/forage-preview"   # FORAGE_PREVIEW_CACHE_DIR overrides
//
//	[sandbox]
//	runtime = "local"
//	dev_host = "0.0.0.0"
//	dev_port = 3000
//	install_command = "npm install"
//	dev_command = "npx next dev --hostname ${HOST} --port ${PORT}"
//	verify_command = "ls -la"
//	shell_command = "sh"
//	ready_timeout = "5m"
//
//	[server]
//	listen_addr = "127.0.0.1:8080"
//
//	[log]
//	file = ""                  # enables rotated file logging
//
// # Commands
//
// Command strings are split with shell quoting rules, then ${HOST} and
// ${PORT} are expanded from the sandbox section.
//
// # Repository References
//
// ValidateRepoRef and ParseRepoRef check owner/repo pairs before they are
// used to build API paths or cache file names.
package config
