// Package tui renders a small progress display for long-running install
// operations. Commands fall back to plain log lines when stdout is not a
// terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// StageMsg advances the display to the named stage.
type StageMsg string

// DoneMsg stops the program; Err is shown when the work failed.
type DoneMsg struct {
	Err error
}

// InstallModel is a bubbletea model showing install pipeline stages.
type InstallModel struct {
	title   string
	stages  []string
	current int
	done    bool
	err     error
	spin    spinner.Model
}

// NewInstallModel creates a model for the given title and ordered stages.
func NewInstallModel(title string, stages []string) InstallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return InstallModel{
		title:   title,
		stages:  stages,
		current: -1,
		spin:    s,
	}
}

// Init satisfies the tea.Model interface.
func (m InstallModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update satisfies the tea.Model interface.
func (m InstallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StageMsg:
		for i, stage := range m.stages {
			if stage == string(msg) {
				m.current = i
				break
			}
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View satisfies the tea.Model interface.
func (m InstallModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	for i, stage := range m.stages {
		switch {
		case m.done && m.err == nil, i < m.current:
			fmt.Fprintf(&b, "  %s %s\n", doneStyle.Render("✓"), stage)
		case i == m.current:
			fmt.Fprintf(&b, "  %s %s\n", activeStyle.Render(m.spin.View()), stage)
		default:
			fmt.Fprintf(&b, "  %s %s\n", pendingStyle.Render("·"), stage)
		}
	}

	if m.done && m.err != nil {
		fmt.Fprintf(&b, "\nerror: %v\n", m.err)
	}
	return b.String()
}

// RunInstall displays the stage list while work runs. The work function
// receives a callback that advances the display; its error is returned
// after the program exits.
func RunInstall(title string, stages []string, work func(report func(stage string)) error) error {
	program := tea.NewProgram(NewInstallModel(title, stages))

	errCh := make(chan error, 1)
	go func() {
		err := work(func(stage string) {
			program.Send(StageMsg(stage))
		})
		program.Send(DoneMsg{Err: err})
		errCh <- err
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("progress display: %w", err)
	}
	return <-errCh
}
