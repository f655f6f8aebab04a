// Package tui provides terminal user interface components for forage-preview.
//
// This package uses the Bubble Tea framework for two interactive screens:
// the session viewer shown while a preview runs, and a picker over cached
// repositories.
//
// # Session Viewer
//
// The viewer runs a session and follows its log:
//
//	mgr, _ := app.Default.NewManager()
//	sess, _ := mgr.Open(ctx, "octo", "app")
//	defer mgr.Close(ctx)
//	err := tui.RunViewer(ctx, mgr, sess)
//
// It shows the session status with a spinner until the preview is ready,
// the preview URL, and the session log in a scrollable viewport. Keys:
//
//   - i: type the install command into a sandbox shell
//   - d: type the dev command into a sandbox shell
//   - r: restart the session from a fresh sandbox
//   - q: quit
//
// Shell output is written to the session log. Results from a session that
// was replaced by a restart are ignored.
//
// # Repository Picker
//
// The picker lists cached repositories grouped by owner:
//
//	result, err := tui.RunPicker(refs)
//	switch result.Action {
//	case tui.ActionOpen:
//	    // Open result.Ref
//	case tui.ActionForget:
//	    // Drop result.Ref from the cache
//	case tui.ActionQuit:
//	    // Exit
//	}
//
// SimplePicker renders the same listing without a terminal.
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - UI components
//   - github.com/charmbracelet/lipgloss - Styling
package tui
