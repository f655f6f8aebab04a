package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Show the repository host API quota",
	Args:  cobra.NoArgs,
	RunE:  runRateLimit,
}

func init() {
	rootCmd.AddCommand(ratelimitCmd)
}

func runRateLimit(cmd *cobra.Command, args []string) error {
	rl, err := getApp().RateLimit(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]any{
			"limit":     rl.Limit,
			"remaining": rl.Remaining,
			"reset":     rl.Reset.UTC().Format(time.RFC3339),
		})
	}

	fmt.Fprintf(out, "Remaining: %d of %d\n", rl.Remaining, rl.Limit)
	if !rl.Reset.IsZero() {
		fmt.Fprintf(out, "Resets: %s (in %s)\n", rl.Reset.Local().Format(time.RFC1123), time.Until(rl.Reset).Round(time.Second))
	}
	return nil
}
