package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/events"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/process"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/runtime"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/session"
)

// maxLogLines bounds the log kept in the viewer.
const maxLogLines = 2000

// chrome is the number of rows used around the log viewport.
const chrome = 6

var (
	readyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	urlStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func statusStyle(st session.Status) lipgloss.Style {
	switch st {
	case session.StatusReady:
		return readyStyle
	case session.StatusFailed:
		return failedStyle
	default:
		return pendingStyle
	}
}

// Messages carry the generation of the session they belong to so that
// results from a session replaced by a restart are dropped.
type (
	eventMsg struct {
		gen   int
		event events.Event
	}
	eventsDoneMsg struct{ gen int }
	runDoneMsg    struct {
		gen int
		url string
		err error
	}
	restartMsg struct {
		sess *session.Session
		err  error
	}
	shellMsg struct {
		gen   int
		shell *process.Shell
		err   error
	}
)

// Viewer is the bubbletea model for a running preview session. It shows
// the status, the preview URL and the session log, and drives the shell
// and restart actions.
type Viewer struct {
	ctx  context.Context
	mgr  *session.Manager
	sess *session.Session
	sub  *events.Subscription
	gen  int

	lines    []string
	viewport viewport.Model
	spinner  spinner.Model

	status session.Status
	reason string
	url    string
	shell  *process.Shell
	err    error

	width    int
	height   int
	quitting bool
}

// NewViewer creates a viewer for sess, which must be the current session
// of mgr. The viewer runs the session from Init.
func NewViewer(ctx context.Context, mgr *session.Manager, sess *session.Session) Viewer {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = pendingStyle

	v := Viewer{
		ctx:      ctx,
		mgr:      mgr,
		viewport: viewport.New(80, 20),
		spinner:  sp,
	}
	v.attach(sess)
	return v
}

func (v *Viewer) attach(sess *session.Session) {
	if v.sub != nil {
		v.sub.Close()
	}
	v.gen++
	v.sess = sess
	v.sub = sess.Bus().Subscribe()
	v.lines = nil
	v.url = ""
	v.err = nil
	v.shell = nil
	v.status, v.reason = sess.Status()
	v.viewport.SetContent("")
}

// Session returns the session being viewed.
func (v Viewer) Session() *session.Session {
	return v.sess
}

// Lines returns the log lines received so far.
func (v Viewer) Lines() []string {
	return v.lines
}

func (v Viewer) Init() tea.Cmd {
	return tea.Batch(v.spinner.Tick, v.waitEvent(), v.run())
}

func (v Viewer) waitEvent() tea.Cmd {
	sub, gen := v.sub, v.gen
	return func() tea.Msg {
		ev, ok := <-sub.C()
		if !ok {
			return eventsDoneMsg{gen: gen}
		}
		return eventMsg{gen: gen, event: ev}
	}
}

func (v Viewer) run() tea.Cmd {
	ctx, sess, gen := v.ctx, v.sess, v.gen
	return func() tea.Msg {
		url, err := sess.Run(ctx)
		return runDoneMsg{gen: gen, url: url, err: err}
	}
}

func (v Viewer) restart() tea.Cmd {
	ctx, mgr := v.ctx, v.mgr
	return func() tea.Msg {
		sess, err := mgr.Restart(ctx)
		return restartMsg{sess: sess, err: err}
	}
}

// shellAction opens a shell when none is open yet and applies fn to it.
// Shell output goes to the session log.
func (v Viewer) shellAction(fn func(*process.Shell) error) tea.Cmd {
	ctx, sess, sh, gen := v.ctx, v.sess, v.shell, v.gen
	size := runtime.TerminalSize{Cols: v.viewport.Width, Rows: v.viewport.Height}
	return func() tea.Msg {
		if sh == nil {
			var err error
			sh, err = sess.OpenShell(ctx, size, sess.Bus().Writer(process.TagShell))
			if err != nil {
				return shellMsg{gen: gen, err: err}
			}
		}
		return shellMsg{gen: gen, shell: sh, err: fn(sh)}
	}
}

func (v Viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		v.viewport.Width = msg.Width
		v.viewport.Height = max(msg.Height-chrome, 1)
		if v.shell != nil {
			_ = v.shell.Resize(v.viewport.Width, v.viewport.Height)
		}
		return v, nil

	case eventMsg:
		if msg.gen != v.gen {
			return v, nil
		}
		v.appendLine(msg.event.String())
		switch msg.event.Kind {
		case events.KindServerReady:
			v.url = msg.event.URL
		case events.KindStatus:
			v.status, v.reason = v.sess.Status()
		}
		return v, v.waitEvent()

	case eventsDoneMsg:
		return v, nil

	case runDoneMsg:
		if msg.gen != v.gen {
			return v, nil
		}
		if msg.url != "" {
			v.url = msg.url
		}
		v.err = msg.err
		v.status, v.reason = v.sess.Status()
		return v, nil

	case restartMsg:
		if msg.err != nil {
			v.err = msg.err
			return v, nil
		}
		if msg.sess == nil {
			return v, nil
		}
		v.attach(msg.sess)
		return v, tea.Batch(v.waitEvent(), v.run())

	case shellMsg:
		if msg.gen != v.gen {
			return v, nil
		}
		if msg.shell != nil {
			v.shell = msg.shell
		}
		if msg.err != nil {
			v.err = msg.err
		}
		return v, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			v.quitting = true
			v.sub.Close()
			return v, tea.Quit

		case "r":
			return v, v.restart()

		case "i":
			return v, v.shellAction((*process.Shell).InstallDependencies)

		case "d":
			return v, v.shellAction((*process.Shell).StartDev)
		}
	}

	var cmd tea.Cmd
	v.viewport, cmd = v.viewport.Update(msg)
	return v, cmd
}

func (v *Viewer) appendLine(line string) {
	for _, l := range strings.Split(strings.TrimRight(line, "\n"), "\n") {
		v.lines = append(v.lines, strings.TrimRight(l, "\r"))
	}
	if over := len(v.lines) - maxLogLines; over > 0 {
		v.lines = v.lines[over:]
	}

	atBottom := v.viewport.AtBottom()
	v.viewport.SetContent(strings.Join(v.lines, "\n"))
	if atBottom {
		v.viewport.GotoBottom()
	}
}

func (v Viewer) View() string {
	if v.quitting {
		return ""
	}

	var b strings.Builder
	uptime := dimStyle.Render("up " + health.Uptime(v.sess.Created))
	b.WriteString(titleStyle.Render("Forage Preview - " + v.sess.Ref() + "  " + uptime))
	b.WriteString("\n")

	status := statusStyle(v.status).Render(v.status.String())
	if v.status != session.StatusReady && v.status != session.StatusFailed {
		status = v.spinner.View() + " " + status
	}
	if v.reason != "" {
		status += " " + v.reason
	}
	b.WriteString(status + "\n")

	if v.url != "" {
		b.WriteString("Preview: " + urlStyle.Render(v.url) + "\n")
	} else {
		b.WriteString("Preview: waiting for dev server\n")
	}
	if v.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", v.err)) + "\n")
	}

	b.WriteString(v.viewport.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("[i] Install  [d] Dev  [r] Restart  [↑/↓] Scroll  [q] Quit"))
	return b.String()
}

// RunViewer runs the session viewer until the user quits or ctx is done.
// The caller closes the manager afterwards.
func RunViewer(ctx context.Context, mgr *session.Manager, sess *session.Session) error {
	p := tea.NewProgram(NewViewer(ctx, mgr, sess), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
