package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/cache"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/tui"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the repository tree cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached repositories",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [owner/repo]",
	Short: "Remove cached trees",
	Long: `Remove cached trees.

With a repository argument only that repository is removed; otherwise the
whole cache is cleared.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// getCache returns the configured cache or an error when caching is off.
func getCache() (*cache.Cache, error) {
	c := getApp().Cache
	if c == nil {
		return nil, errors.New(errors.ExitConfigError, "tree cache is disabled")
	}
	return c, nil
}

func runCacheList(cmd *cobra.Command, args []string) error {
	c, err := getCache()
	if err != nil {
		return err
	}

	refs, err := c.List()
	if err != nil {
		return err
	}

	if jsonOutput {
		if refs == nil {
			refs = []string{}
		}
		return printJSON(cmd.OutOrStdout(), refs)
	}
	fmt.Fprint(cmd.OutOrStdout(), tui.SimplePicker(refs))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c, err := getCache()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		owner, name, err := parseRef(args[0])
		if err != nil {
			return err
		}
		if err := c.Invalidate(owner, name); err != nil {
			return err
		}
		logSuccess("Removed %s/%s from the cache", owner, name)
		return nil
	}

	n, err := c.Clear()
	if err != nil {
		return err
	}
	logSuccess("Removed %d cached trees from %s", n, c.Dir())
	return nil
}
