package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	progressbar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"discflow/internal/pipeline"
	"discflow/internal/progress"
)

var (
	tuiTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	tuiMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tuiErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	tuiOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	tuiPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type eventMsg pipeline.Event

type stageDoneMsg struct{}

// stageModel renders one stage: the active plugin's bar, the stage bar and
// the finished plugins.
type stageModel struct {
	title  string
	cancel context.CancelFunc

	current    pipeline.Event
	finished   []pipeline.Event
	stageState pipeline.State
	canceling  bool

	pluginBar progressbar.Model
	stageBar  progressbar.Model
}

func newStageModel(title string, cancel context.CancelFunc) stageModel {
	return stageModel{
		title:     title,
		cancel:    cancel,
		pluginBar: progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithWidth(40)),
		stageBar:  progressbar.New(progressbar.WithSolidFill("62"), progressbar.WithWidth(40)),
	}
}

func (m stageModel) Init() tea.Cmd {
	return nil
}

func (m stageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		width := min(max(msg.Width-24, 20), 60)
		m.pluginBar.Width = width
		m.stageBar.Width = width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.canceling && m.cancel != nil {
				m.canceling = true
				m.cancel()
			}
		}
		return m, nil
	case eventMsg:
		e := pipeline.Event(msg)
		switch e.Kind {
		case pipeline.EventPluginStarted, pipeline.EventProgress:
			m.current = e
		case pipeline.EventPluginFinished:
			m.finished = append(m.finished, e)
			m.current = pipeline.Event{Aggregate: e.Aggregate, Total: e.Total}
		case pipeline.EventStageFinished:
			m.stageState = e.State
			m.current.Aggregate = e.Aggregate
		}
		return m, nil
	case stageDoneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m stageModel) View() string {
	var b strings.Builder
	b.WriteString(tuiTitleStyle.Render("discflow · "+m.title) + "\n\n")

	for _, e := range m.finished {
		b.WriteString(finishedLine(e) + "\n")
	}
	if m.current.Plugin != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", tuiMutedStyle.Render(fmt.Sprintf("[%d/%d]", m.current.Index, m.current.Total)), m.current.Plugin))
		b.WriteString(m.pluginBar.ViewAs(m.current.Percent/100) + "\n")
		status := strings.TrimSpace(m.current.Status)
		if m.current.RemainingKnown {
			if eta := progress.FormatETA(m.current.Remaining); eta != "" {
				status = strings.TrimSpace(status + "  ETA " + eta)
			}
		}
		b.WriteString(tuiMutedStyle.Render(status) + "\n")
	}
	b.WriteString("\nStage\n" + m.stageBar.ViewAs(m.current.Aggregate/100) + "\n")

	footer := tuiMutedStyle.Render("ctrl+c to cancel")
	switch {
	case m.canceling:
		footer = tuiErrorStyle.Render("Canceling…")
	case m.stageState == pipeline.StateSucceeded:
		footer = tuiOKStyle.Render("Done")
	case m.stageState == pipeline.StateFailed:
		footer = tuiErrorStyle.Render("Failed")
	}
	b.WriteString("\n" + footer)
	return tuiPanelStyle.Render(b.String()) + "\n"
}

func finishedLine(e pipeline.Event) string {
	switch e.PluginState {
	case progress.StateFailed:
		return tuiErrorStyle.Render("✗ " + e.Plugin)
	case progress.StateCanceled:
		return tuiMutedStyle.Render("- " + e.Plugin)
	default:
		return tuiOKStyle.Render("✓ ") + e.Plugin
	}
}

// runWithTUI runs fn under a Bubble Tea program that renders its events and
// returns once both have finished. Cancel keys cancel the context passed to fn.
func runWithTUI(ctx context.Context, in io.Reader, out io.Writer, title string, fn func(context.Context, pipeline.Listener)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newStageModel(title, cancel), tea.WithInput(in), tea.WithOutput(out))
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx, pipeline.ListenerFunc(func(e pipeline.Event) {
			program.Send(eventMsg(e))
		}))
		program.Send(stageDoneMsg{})
	}()
	_, err := program.Run()
	if err != nil {
		cancel()
	}
	<-done
	if err != nil {
		return fmt.Errorf("run progress view: %w", err)
	}
	return nil
}
