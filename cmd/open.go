package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/events"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/session"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/tui"
)

var (
	openTUI     bool
	openShell   bool
	openRefresh bool
	openDetach  bool
)

var openCmd = &cobra.Command{
	Use:   "open [owner/repo]",
	Short: "Preview a repository in a sandbox",
	Long: `Fetch the repository, mount it into a fresh sandbox, install dependencies
and start the dev server. The session log is printed as it happens and the
preview URL is shown once the dev server listens.

Without an argument a picker over cached repositories is shown.

The session runs until interrupted. Use --shell to attach an interactive
shell in the sandbox, or --tui for the full-screen session viewer.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOpen,
}

func init() {
	openCmd.Flags().BoolVar(&openTUI, "tui", false, "Show the interactive session viewer")
	openCmd.Flags().BoolVar(&openShell, "shell", false, "Attach a shell once the preview is ready")
	openCmd.Flags().BoolVar(&openRefresh, "refresh", false, "Drop the cached tree before opening")
	openCmd.Flags().BoolVar(&openDetach, "exit-when-ready", false, "Exit once the preview URL is known")
	openCmd.MarkFlagsMutuallyExclusive("tui", "shell")
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	ref, err := openRef(args)
	if err != nil || ref == "" {
		return err
	}
	owner, name, err := parseRef(ref)
	if err != nil {
		return err
	}

	a := getApp()
	if openRefresh && a.Cache != nil {
		if err := a.Cache.Invalidate(owner, name); err != nil {
			logWarning("Failed to drop cached tree: %v", err)
		}
	}

	mgr, err := a.NewManager()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	sess, err := mgr.Open(ctx, owner, name)
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Close(context.WithoutCancel(ctx)); err != nil {
			logWarning("Failed to tear down sandbox: %v", err)
		}
	}()

	if openTUI {
		return tui.RunViewer(ctx, mgr, sess)
	}

	return followSession(ctx, cmd.OutOrStdout(), sess)
}

// openRef returns the repository argument, or asks the picker for one. An
// empty ref means there is nothing to open.
func openRef(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	c := getApp().Cache
	if c == nil {
		return "", errors.ValidationError("a repository argument is required when the cache is disabled")
	}
	refs, err := c.List()
	if err != nil {
		return "", err
	}
	if len(refs) == 0 {
		return "", errors.ValidationError("no cached repositories; pass owner/repo")
	}

	result, err := tui.RunPicker(refs)
	if err != nil {
		return "", err
	}
	switch result.Action {
	case tui.ActionOpen:
		return result.Ref, nil
	case tui.ActionForget:
		owner, name, err := parseRef(result.Ref)
		if err != nil {
			return "", err
		}
		if err := c.Invalidate(owner, name); err != nil {
			return "", err
		}
		logSuccess("Removed %s from the cache", result.Ref)
	}
	return "", nil
}

// followSession prints the session log to w while the session runs, then
// waits for ctx unless the session is detached or a shell is requested. The
// session is closed before it returns, so the printed log is complete.
func followSession(ctx context.Context, w io.Writer, sess *session.Session) error {
	sub := sess.Bus().Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(w, sub.C())
	}()

	url, err := sess.Run(ctx)
	if err == nil {
		logSuccess("Preview ready at %s", url)

		switch {
		case openShell:
			err = attachShell(ctx, sess)
		case openDetach:
		default:
			logInfo("Press Ctrl-C to stop")
			<-ctx.Done()
		}
	}

	closeErr := sess.Close(context.WithoutCancel(ctx))
	<-printed
	if err != nil {
		return err
	}
	return closeErr
}

func printEvents(w io.Writer, ch <-chan events.Event) {
	for ev := range ch {
		fmt.Fprintln(w, ev.String())
	}
}
