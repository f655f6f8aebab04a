package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Action represents the action to take after picker selection
type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionForget
	ActionQuit
)

// PickerResult holds the result of the picker
type PickerResult struct {
	Action Action
	Ref    string
}

// repoItem implements list.Item for a cached repository.
type repoItem struct {
	owner string
	name  string
}

func (i repoItem) Ref() string {
	if i.owner == "" {
		return i.name
	}
	return i.owner + "/" + i.name
}

func (i repoItem) Title() string {
	return i.name
}

func (i repoItem) Description() string {
	return "● " + i.Ref()
}

func (i repoItem) FilterValue() string {
	return i.Ref()
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// Model is the bubbletea model for the repository picker
type Model struct {
	list     list.Model
	result   PickerResult
	quitting bool
	width    int
	height   int
}

// NewPicker creates a picker over refs of the form "owner/name".
func NewPicker(refs []string) Model {
	items := buildGroupedItems(refs)

	l := list.New(items, newGroupedDelegate(), 80, 20)
	l.Title = "Forage Preview - Open Repository"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetStatusBarItemName("repository", "repositories")
	l.Styles.Title = titleStyle

	m := Model{list: l}
	skipHeaders(&m.list, 1)
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(repoItem); ok {
				m.result = PickerResult{Action: ActionOpen, Ref: item.Ref()}
				m.quitting = true
				return m, tea.Quit
			}

		case "d":
			if item, ok := m.list.SelectedItem().(repoItem); ok {
				m.result = PickerResult{Action: ActionForget, Ref: item.Ref()}
				m.quitting = true
				return m, tea.Quit
			}

		case "q", "esc":
			m.result = PickerResult{Action: ActionQuit}
			m.quitting = true
			return m, tea.Quit
		}

		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		if isHeaderSelected(&m.list) {
			skipHeaders(&m.list, navigationDirection(msg))
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	help := helpStyle.Render("[enter] Open  [d] Forget  [/] Filter  [q] Quit")

	return m.list.View() + "\n" + help
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive repository picker. With no refs there is
// nothing to pick and it returns ActionQuit.
func RunPicker(refs []string) (PickerResult, error) {
	if len(refs) == 0 {
		return PickerResult{Action: ActionQuit}, nil
	}

	p := tea.NewProgram(NewPicker(refs), tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}

	return finalModel.(Model).Result(), nil
}

// SimplePicker is a non-interactive listing of refs grouped by owner.
func SimplePicker(refs []string) string {
	var sb strings.Builder

	sb.WriteString("Forage Preview - Cached Repositories\n")
	sb.WriteString(strings.Repeat("─", 60) + "\n\n")

	if len(refs) == 0 {
		sb.WriteString("No cached repositories.\n")
		sb.WriteString("Open one with: forage-preview open <owner>/<repo>\n")
		return sb.String()
	}

	n := 0
	for _, item := range buildGroupedItems(refs) {
		switch it := item.(type) {
		case headerItem:
			sb.WriteString(it.label + "\n")
		case repoItem:
			n++
			sb.WriteString(fmt.Sprintf("  %d. %s\n", n, it.Ref()))
		}
	}

	return sb.String()
}
