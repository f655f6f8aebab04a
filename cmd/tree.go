package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/manifest"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
)

var (
	treeRefresh bool
	treeStats   bool
)

var treeCmd = &cobra.Command{
	Use:   "tree <owner>/<repo>",
	Short: "Print a repository tree as JSON",
	Long: `Print the repository tree as JSON.

The tree is served from the cache when present. Use --refresh to fetch it
again, and --stats to print counts instead of the tree.`,
	Args: cobra.ExactArgs(1),
	RunE: runTree,
}

func init() {
	treeCmd.Flags().BoolVar(&treeRefresh, "refresh", false, "Ignore the cached tree")
	treeCmd.Flags().BoolVar(&treeStats, "stats", false, "Print file and directory counts")
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
	owner, name, err := parseRef(args[0])
	if err != nil {
		return err
	}

	tree, cached, err := getApp().FetchTree(cmd.Context(), owner, name, treeRefresh)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !treeStats {
		return printJSON(out, tree)
	}

	files, dirs := repo.Count(tree)
	source := "remote"
	if cached {
		source = "cache"
	}
	fmt.Fprintf(out, "Repository: %s/%s\n", owner, name)
	fmt.Fprintf(out, "Source: %s\n", source)
	fmt.Fprintf(out, "Files: %d\n", files)
	fmt.Fprintf(out, "Directories: %d\n", dirs)

	m, err := manifest.FromTree(tree)
	if err != nil {
		fmt.Fprintf(out, "Manifest: conversion failed: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "Manifest: %d files, %d directories\n", m.FileCount(), len(m)-m.FileCount())
	return nil
}
