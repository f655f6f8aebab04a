package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
	configPath string

	logFile io.Closer
)

// loadApp is replaced in tests.
var loadApp = loadConfiguredApp

// loadConfiguredApp builds the application from the configuration at path.
func loadConfiguredApp(path string) (*app.App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.ConfigError("failed to load configuration", err)
	}
	return app.New(app.WithConfig(cfg)), nil
}

var rootCmd = &cobra.Command{
	Use:   "forage-preview",
	Short: "Live preview of remote repositories in a local sandbox",
	Long: `forage-preview fetches a repository tree from GitHub, mounts it into a
sandbox, installs its dependencies and starts its dev server.

Each session:
  - Fetches the tree once and caches it on disk
  - Mounts directories before files, shallow before deep
  - Reports install failures as warnings and still starts the dev server
  - Prints the preview URL once the dev server listens`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(verbose, jsonOutput, os.Stderr)

		a, err := loadApp(configPath)
		if err != nil {
			return err
		}
		if path := a.Config.Log.File; path != "" {
			logFile = logging.SetupFile(path, logging.Rotation{
				MaxSizeMB:  a.Config.Log.MaxSizeMB,
				MaxBackups: a.Config.Log.MaxBackups,
				MaxAgeDays: a.Config.Log.MaxAgeDays,
				Compress:   a.Config.Log.Compress,
			}, verbose, jsonOutput, os.Stderr)
		}
		app.SetDefault(a)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
			logFile = nil
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file (default "+config.DefaultPath()+")")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
	logError   = logging.UserError
)
