package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/okdomo/catapult/types"
	"github.com/okdomo/catapult/uploader"
)

// BatchDoneMsg tells the model the batch has finished.
type BatchDoneMsg struct{}

// Model is a Bubble Tea model tracking batch upload progress.
type Model struct {
	total      int
	done       int
	succeeded  int
	duplicates int
	failed     int
	lastPath   string
	lastStatus types.UploadStatus

	bar      progress.Model
	width    int
	finished bool
	quitting bool
}

// NewModel creates a progress model for a batch of total files.
func NewModel(total int) Model {
	return Model{
		total: total,
		bar:   progress.New(progress.WithDefaultGradient()),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 8
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case uploader.ProgressEvent:
		m.done = msg.Done
		m.lastPath = msg.Response.Path
		m.lastStatus = msg.Response.Status
		switch msg.Response.Status {
		case types.StatusSuccess:
			m.succeeded++
		case types.StatusDuplicate:
			m.duplicates++
		default:
			m.failed++
		}
		return m, m.bar.SetPercent(m.percent())

	case BatchDoneMsg:
		m.finished = true
		return m, tea.Sequence(m.bar.SetPercent(1), tea.Quit)

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Uploading %d archives", m.total)))
	b.WriteString("\n\n")
	b.WriteString(m.bar.View())
	b.WriteString(fmt.Sprintf("  %d/%d\n\n", m.done, m.total))

	boxes := []string{
		m.renderStatBox("Succeeded", m.succeeded, successColor),
		m.renderStatBox("Duplicates", m.duplicates, warningColor),
		m.renderStatBox("Failed", m.failed, errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	if m.lastPath != "" {
		b.WriteString("\n")
		b.WriteString(PathStyle.Render(fmt.Sprintf("%s (%s)", m.lastPath, m.lastStatus)))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to abort the view"))
	return b.String()
}

func (m Model) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

func (m Model) percent() float64 {
	if m.total == 0 {
		return 1
	}
	return float64(m.done) / float64(m.total)
}

// Runner drives the progress TUI alongside a running batch.
type Runner struct {
	program *tea.Program
	errc    chan error
}

// Start launches the TUI for a batch of total files. The returned Runner's
// Hook feeds it coordinator progress events.
func Start(total int) *Runner {
	r := &Runner{
		program: tea.NewProgram(NewModel(total)),
		errc:    make(chan error, 1),
	}
	go func() {
		_, err := r.program.Run()
		r.errc <- err
	}()
	return r
}

// Hook returns a progress callback that forwards events to the TUI.
// Safe to call from worker goroutines.
func (r *Runner) Hook() func(uploader.ProgressEvent) {
	return func(ev uploader.ProgressEvent) {
		r.program.Send(ev)
	}
}

// Finish signals completion and waits for the TUI to exit.
func (r *Runner) Finish() error {
	r.program.Send(BatchDoneMsg{})
	return <-r.errc
}
