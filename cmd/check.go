package cmd

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <owner>/<repo>",
	Short: "Check that a repository exists and is readable",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	owner, name, err := parseRef(args[0])
	if err != nil {
		return err
	}

	if err := getApp().CheckRepo(cmd.Context(), owner, name); err != nil {
		return err
	}

	logSuccess("%s/%s exists", owner, name)
	return nil
}
