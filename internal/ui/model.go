package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/spboyer/taskwatch/internal/events"
	"github.com/spboyer/taskwatch/internal/monitor"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	lineStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	badgeBase    = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("0"))
	successBadge = badgeBase.Background(lipgloss.Color("42"))
	errorBadge   = badgeBase.Background(lipgloss.Color("196"))
	activeBadge  = badgeBase.Background(lipgloss.Color("220"))
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	// chromeHeight is the rows used by everything but the transcript.
	chromeHeight = 6
)

// stateMsg carries a new snapshot into the model.
type stateMsg monitor.State

// feedClosedMsg is sent if the feed channel is closed.
type feedClosedMsg struct{}

// Model is the live view of one task.
type Model struct {
	state   monitor.State
	updates <-chan monitor.State
	stop    func()

	spinner  spinner.Model
	bar      progress.Model
	viewport viewport.Model
	width    int
	height   int
}

// NewModel builds the view. updates delivers monitor snapshots; stop is
// called when the user quits before the stream closes.
func NewModel(initial monitor.State, updates <-chan monitor.State, stop func()) Model {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	m := Model{
		state:    initial,
		updates:  updates,
		stop:     stop,
		spinner:  s,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(defaultWidth-12)),
		viewport: viewport.New(defaultWidth, defaultHeight-chromeHeight),
		width:    defaultWidth,
		height:   defaultHeight,
	}
	m.refreshTranscript()
	return m
}

// State returns the last snapshot the model saw.
func (m Model) State() monitor.State { return m.state }

// listenForState returns a tea.Cmd that blocks until a snapshot arrives on
// the channel, then delivers it as a stateMsg.
func listenForState(ch <-chan monitor.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return stateMsg(s)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, listenForState(m.updates))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.state = monitor.State(msg)
		m.refreshTranscript()
		if m.state.Connection == monitor.Closed {
			return m, tea.Quit
		}
		return m, listenForState(m.updates)

	case feedClosedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.stop != nil {
				m.stop()
			}
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-chromeHeight-len(m.resultLines()))
		m.bar.Width = max(10, msg.Width-12)
		m.refreshTranscript()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) refreshTranscript() {
	lines := make([]string, len(m.state.Transcript))
	for i, l := range m.state.Transcript {
		lines[i] = lineStyle.Render("> " + l)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) resultLines() []string {
	if m.state.Result == nil {
		return nil
	}
	return ResultLines(*m.state.Result)
}

func (m Model) View() string {
	var b strings.Builder

	header := titleStyle.Render("Task "+m.state.TaskID) + "  " + Badge(m.state.Status)
	if m.state.Connection != monitor.Closed && !m.state.Terminal() {
		header += " " + m.spinner.View()
	}
	b.WriteString(header + "\n")
	b.WriteString(mutedStyle.Render("connection: "+m.state.Connection.String()) + "\n")

	if m.state.Status == "processing" {
		b.WriteString(m.bar.ViewAs(clampUnit(m.state.Percent/100)) + " " + FormatPercent(m.state.Percent) + "\n")
	}

	b.WriteString(m.viewport.View() + "\n")

	if lines := m.resultLines(); len(lines) > 0 {
		b.WriteString(labelStyle.Render("Result") + "\n")
		for _, l := range lines {
			b.WriteString("  " + l + "\n")
		}
	}

	b.WriteString(mutedStyle.Render("q: quit  ↑/↓: scroll"))
	return b.String()
}

// Badge renders a status label colored by outcome.
func Badge(status string) string {
	switch status {
	case events.StatusCompleted:
		return successBadge.Render(status)
	case events.StatusError:
		return errorBadge.Render(status)
	}
	return activeBadge.Render(status)
}

// clampUnit bounds the bar fill; the numeric label shows the raw value.
func clampUnit(f float64) float64 {
	return min(max(f, 0), 1)
}
