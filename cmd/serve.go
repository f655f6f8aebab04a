package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve repository trees over HTTP",
	Long: `Serve repository trees over HTTP.

Routes:
  GET /repo/{owner}/{repo}        repository tree as JSON
  GET /repo/{owner}/{repo}/check  repository existence
  GET /ratelimit                  repository host API quota
  GET /healthz                    liveness
  GET /metrics                    Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from configuration)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a := getApp()

	addr := serveAddr
	if addr == "" {
		addr = a.Config.Server.ListenAddr
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	logInfo("Listening on http://%s", addr)
	return api.NewServer(a, addr).ListenAndServe(ctx)
}
