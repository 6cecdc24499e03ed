// Package console renders a single interactive operation in the terminal.
package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Shailesh-Murmu/AutoMpp/internal/interactive"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFB454"))
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	stoppedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AAAAAA"))
)

// ProgressMsg carries per-unit progress from the running operation.
type ProgressMsg struct {
	Current int
	Total   int
}

// CompletionMsg is sent once when the operation returns.
type CompletionMsg interactive.Completion

// Model shows a spinner and a progress bar while one operation runs.
// Quitting while it runs asks for confirmation first.
type Model struct {
	title      string
	cancel     func() bool
	spinner    spinner.Model
	bar        progress.Model
	current    int
	total      int
	confirming bool
	stopping   bool
	finished   bool
	completion interactive.Completion
}

func NewModel(title string, cancel func() bool) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = titleStyle
	return Model{
		title:   title,
		cancel:  cancel,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ProgressMsg:
		m.current, m.total = msg.Current, msg.Total
		return m, nil

	case CompletionMsg:
		m.finished = true
		m.confirming = false
		m.completion = interactive.Completion(msg)
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(60, msg.Width-10))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	if m.finished {
		return m, tea.Quit
	}
	if m.confirming {
		switch key {
		case "y", "Y", "ctrl+c":
			m.confirming = false
			m.stopping = true
			if m.cancel != nil {
				m.cancel()
			}
		case "n", "N", "esc":
			m.confirming = false
		}
		return m, nil
	}
	switch key {
	case "ctrl+c", "q", "esc":
		if !m.stopping {
			m.confirming = true
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.finished {
		return Summary(m.completion) + "\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), titleStyle.Render(m.title))
	if m.total > 0 {
		fmt.Fprintf(&b, "%s  %d/%d\n\n", m.bar.ViewAs(float64(m.current)/float64(m.total)), m.current, m.total)
	}
	switch {
	case m.stopping:
		b.WriteString(warnStyle.Render("Stopping, waiting for the current unit to finish...") + "\n")
	case m.confirming:
		b.WriteString(warnStyle.Render("An operation is running. Stop it? (y/n)") + "\n")
	default:
		b.WriteString(hintStyle.Render("ctrl+c to stop") + "\n")
	}
	return b.String()
}

// Completion returns the finished operation, if any.
func (m Model) Completion() (interactive.Completion, bool) {
	return m.completion, m.finished
}

// Summary renders a one-line, human readable account of a completion.
// A user stop is reported distinctly from a failure.
func Summary(c interactive.Completion) string {
	r := c.Result
	label := c.Name
	if label == "" {
		label = r.Task
	}
	switch {
	case c.Stopped:
		return stoppedStyle.Render("stopped by user") + "  " + label + progressSuffix(r)
	case c.Err != nil:
		return failStyle.Render("failed") + "  " + label + ": " + c.Err.Error()
	}
	detail := r.Detail
	if r.Error != "" {
		if detail != "" {
			detail += ": "
		}
		detail += r.Error
	}
	if detail != "" {
		detail = " (" + detail + ")"
	}
	switch r.Status {
	case outcome.Success, outcome.Skipped:
		return okStyle.Render(string(r.Status)) + "  " + label + detail
	case outcome.Partial:
		return warnStyle.Render(string(r.Status)) + "  " + label + detail
	default:
		return failStyle.Render(string(r.Status)) + "  " + label + detail
	}
}

func progressSuffix(r outcome.Result) string {
	if r.Succeeded == 0 && r.Failed == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d done, %d failed before stopping)", r.Succeeded, r.Failed)
}
