package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/runtime"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/session"
)

// attachShell opens a sandbox shell on the controlling terminal and blocks
// until it exits or ctx is done. The terminal is in raw mode meanwhile and
// window size changes are forwarded.
func attachShell(ctx context.Context, sess *session.Session) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New(errors.ExitGeneralError, "--shell requires an interactive terminal")
	}

	size := terminalSize(fd)
	sh, err := sess.OpenShell(ctx, size, os.Stdout)
	if err != nil {
		return err
	}
	defer sh.Close()

	state, err := term.MakeRaw(fd)
	if err != nil {
		return errors.Wrap(errors.ExitGeneralError, "failed to set raw terminal mode", err)
	}
	defer func() {
		if err := term.Restore(fd, state); err != nil {
			logging.Debug("failed to restore terminal", "error", err)
		}
	}()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			s := terminalSize(fd)
			_ = sh.Resize(s.Cols, s.Rows)
		}
	}()

	go func() {
		_, _ = io.Copy(sh, os.Stdin)
	}()

	_, err = sh.Wait(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// terminalSize returns the size of the terminal on fd, or 80x24.
func terminalSize(fd int) runtime.TerminalSize {
	cols, rows, err := term.GetSize(fd)
	if err != nil || cols <= 0 || rows <= 0 {
		return runtime.TerminalSize{Cols: 80, Rows: 24}
	}
	return runtime.TerminalSize{Cols: cols, Rows: rows}
}
