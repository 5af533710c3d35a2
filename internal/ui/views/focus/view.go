package focus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	focusdto "pledge/internal/modules/focus/dto"
	"pledge/internal/platform/timefmt"
	"pledge/internal/ui/theme"
)

// ─── port ────────────────────────────────────────────────────────────────────

type FocusPort interface {
	Status(ctx context.Context) (focusdto.StatusOutput, error)
	Start(ctx context.Context, promiseID string, minutes int) (focusdto.StatusOutput, error)
	Pause(ctx context.Context) (focusdto.StatusOutput, error)
	Resume(ctx context.Context) (focusdto.StatusOutput, error)
	Stop(ctx context.Context) (focusdto.StatusOutput, error)
	Watch(ctx context.Context, onUpdate func(focusdto.StatusOutput)) (focusdto.StatusOutput, error)
}

// ─── messages ────────────────────────────────────────────────────────────────

// ActionMsg carries the result of a user action or a refresh.
type ActionMsg struct {
	Action string
	Out    focusdto.StatusOutput
	Err    error
}

type updateMsg focusdto.StatusOutput

type watchEndedMsg struct {
	out focusdto.StatusOutput
	err error
}

// ─── model ───────────────────────────────────────────────────────────────────

type Model struct {
	port     FocusPort
	updates  chan focusdto.StatusOutput
	bar      progress.Model
	out      focusdto.StatusOutput
	errText  string
	watching bool
	width    int
}

func New(port FocusPort) Model {
	return Model{
		port:    port,
		updates: make(chan focusdto.StatusOutput, 16),
		bar:     progress.New(progress.WithGradient(string(theme.Sapphire), string(theme.Green))),
		out:     focusdto.StatusOutput{Status: "no_session"},
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.actionCmd("refresh"), m.waitForUpdate())
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, min(msg.Width-12, 60))

	case ActionMsg:
		m.out = msg.Out
		m.errText = msg.Out.Error
		if msg.Err == nil {
			m.errText = ""
		}
		cmd := m.maybeWatch()
		return m, cmd

	case updateMsg:
		m.out = focusdto.StatusOutput(msg)
		return m, m.waitForUpdate()

	case watchEndedMsg:
		m.watching = false
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.errText = msg.out.Error
			return m, nil
		}
		m.out = msg.out
		return m, nil
	}
	return m, nil
}

// Active reports whether a session is running or paused.
func (m Model) Active() bool {
	return m.out.Status == "running" || m.out.Status == "paused"
}

func (m Model) Status() focusdto.StatusOutput { return m.out }

func (m Model) Start(promiseID string, minutes int) tea.Cmd {
	return m.run("start", func(ctx context.Context) (focusdto.StatusOutput, error) {
		return m.port.Start(ctx, promiseID, minutes)
	})
}

// TogglePause pauses a running session and resumes a paused one.
func (m Model) TogglePause() tea.Cmd {
	switch m.out.Status {
	case "running":
		return m.actionCmd("pause")
	case "paused":
		return m.actionCmd("resume")
	}
	return nil
}

func (m Model) Stop() tea.Cmd    { return m.actionCmd("stop") }
func (m Model) Refresh() tea.Cmd { return m.actionCmd("refresh") }
func (m Model) Pause() tea.Cmd   { return m.actionCmd("pause") }
func (m Model) Resume() tea.Cmd  { return m.actionCmd("resume") }

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(theme.Title.Render("Focus") + "\n\n")
	status := m.out.Status
	sb.WriteString(theme.StatusStyle(status).Render(strings.ReplaceAll(status, "_", " ")) + "\n\n")

	if m.out.SessionID != "" {
		sb.WriteString(theme.Timer.Render(timefmt.Clock(m.out.RemainingSeconds)) + "\n\n")
		sb.WriteString(m.bar.ViewAs(m.out.Progress) + "\n\n")
		sb.WriteString(theme.Muted.Render(fmt.Sprintf("promise %s · %d min · session %s", m.out.PromiseID, m.out.PlannedMinutes, m.out.SessionID)) + "\n")
	} else {
		sb.WriteString(theme.Muted.Render("No focus session. Press s to start one.") + "\n")
	}
	if m.errText != "" {
		sb.WriteString("\n" + theme.Error.Render(m.errText) + "\n")
	}
	sb.WriteString("\n" + theme.Muted.Render("s start · p pause/resume · x stop · r refresh"))

	w := m.width - 4
	if w < 20 {
		w = 64
	}
	return theme.PaneActive.Width(w).Render(lipgloss.NewStyle().Render(sb.String()))
}

// ─── commands ────────────────────────────────────────────────────────────────

func (m Model) actionCmd(action string) tea.Cmd {
	if m.port == nil {
		return nil
	}
	call := map[string]func(context.Context) (focusdto.StatusOutput, error){
		"refresh": m.port.Status,
		"pause":   m.port.Pause,
		"resume":  m.port.Resume,
		"stop":    m.port.Stop,
	}[action]
	return m.run(action, call)
}

func (m Model) run(action string, call func(context.Context) (focusdto.StatusOutput, error)) tea.Cmd {
	if m.port == nil || call == nil {
		return nil
	}
	return func() tea.Msg {
		out, err := call(context.Background())
		return ActionMsg{Action: action, Out: out, Err: err}
	}
}

// maybeWatch starts streaming countdown updates once a session is active.
func (m *Model) maybeWatch() tea.Cmd {
	if m.watching || !m.Active() || m.port == nil {
		return nil
	}
	m.watching = true
	port, updates := m.port, m.updates
	return func() tea.Msg {
		out, err := port.Watch(context.Background(), func(o focusdto.StatusOutput) {
			select {
			case updates <- o:
			default:
			}
		})
		return watchEndedMsg{out: out, err: err}
	}
}

func (m Model) waitForUpdate() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		return updateMsg(<-updates)
	}
}
