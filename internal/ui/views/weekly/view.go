package weekly

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	weeklydto "pledge/internal/modules/weekly/dto"
	"pledge/internal/platform/timefmt"
	"pledge/internal/ui/theme"
)

type WeeklyPort interface {
	Weekly(ctx context.Context, weekOf time.Time) (weeklydto.WeeklyOutput, error)
	Export(ctx context.Context, weekOf time.Time, format, dir string) (weeklydto.ExportOutput, error)
}

type LoadedMsg struct {
	Out weeklydto.WeeklyOutput
	Err error
}

type ExportedMsg struct {
	Out weeklydto.ExportOutput
	Err error
}

type Model struct {
	port    WeeklyPort
	weekOf  time.Time
	out     weeklydto.WeeklyOutput
	loaded  bool
	errText string
	body    viewport.Model
	width   int
}

// New shows the current week; weekOf zero means the week containing now.
func New(port WeeklyPort) Model {
	vp := viewport.New(0, 0)
	vp.Style = lipgloss.NewStyle().Foreground(theme.Text)
	return Model{port: port, body: vp}
}

func (m Model) Init() tea.Cmd {
	return m.Reload()
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.body.Width = max(20, msg.Width-8)
		m.body.Height = max(5, msg.Height-8)
		m.body.SetContent(m.render())
		return m, nil

	case LoadedMsg:
		if msg.Err != nil {
			m.errText = msg.Err.Error()
			return m, nil
		}
		m.errText = ""
		m.out = msg.Out
		m.loaded = true
		m.body.SetContent(m.render())
		m.body.GotoTop()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "left", "h":
			cmd := m.shift(-7)
			return m, cmd
		case "right", "l":
			cmd := m.shift(7)
			return m, cmd
		case "r":
			return m, m.Reload()
		}
	}
	var cmd tea.Cmd
	m.body, cmd = m.body.Update(msg)
	return m, cmd
}

// Reload fetches the selected week again.
func (m Model) Reload() tea.Cmd {
	if m.port == nil {
		return nil
	}
	port, weekOf := m.port, m.weekOf
	return func() tea.Msg {
		out, err := port.Weekly(context.Background(), weekOf)
		return LoadedMsg{Out: out, Err: err}
	}
}

// SetWeek selects the week containing t and reloads it.
func (m *Model) SetWeek(t time.Time) tea.Cmd {
	m.weekOf = t
	return m.Reload()
}

func (m Model) Export(format, dir string) tea.Cmd {
	if m.port == nil {
		return nil
	}
	port, weekOf := m.port, m.weekOf
	return func() tea.Msg {
		out, err := port.Export(context.Background(), weekOf, format, dir)
		return ExportedMsg{Out: out, Err: err}
	}
}

func (m *Model) shift(days int) tea.Cmd {
	base := m.weekOf
	if base.IsZero() {
		base = time.Now()
	}
	return m.SetWeek(base.AddDate(0, 0, days))
}

func (m Model) View() string {
	var sb strings.Builder
	title := "Weekly report"
	if m.loaded {
		title = fmt.Sprintf("Weekly report %s  %s..%s", m.out.Label, m.out.WeekStart, m.out.WeekEnd)
	}
	sb.WriteString(theme.Title.Render(title) + "\n\n")
	if m.errText != "" {
		sb.WriteString(theme.Error.Render(m.errText) + "\n\n")
	}
	sb.WriteString(m.body.View() + "\n")
	sb.WriteString(theme.Muted.Render("←/→ week · r reload · e export md · E export pdf"))
	w := m.width - 4
	if w < 20 {
		w = 64
	}
	return theme.PaneActive.Width(w).Render(sb.String())
}

func (m Model) render() string {
	if !m.loaded {
		return theme.Muted.Render("loading…")
	}
	sections := []struct {
		title  string
		bucket *weeklydto.BucketView
	}{
		{"Promises", m.out.Promises},
		{"Tasks", m.out.Tasks},
		{"Distractions", m.out.Distractions},
	}
	var sb strings.Builder
	for _, s := range sections {
		if s.bucket == nil {
			continue
		}
		sb.WriteString(theme.Hot.Render(s.title) + "  " + theme.Muted.Render(timefmt.Hours(s.bucket.TotalSpent)+" / "+timefmt.Hours(s.bucket.TotalPromised)) + "\n")
		for _, r := range s.bucket.Records {
			style := theme.Good
			if r.HoursSpent < r.HoursPromised {
				style = theme.Warn
			}
			if s.bucket.Kind == "distractions" && r.HoursSpent > r.HoursPromised {
				style = theme.Error
			}
			sb.WriteString(fmt.Sprintf("  %-30s %s\n", truncate(r.Text, 30), style.Render(timefmt.Hours(r.HoursSpent)+" / "+timefmt.Hours(r.HoursPromised))))
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return theme.Muted.Render("Nothing tracked this week.")
	}
	sb.WriteString(theme.Title.Render("Total") + "  " + timefmt.Hours(m.out.TotalSpent) + " / " + timefmt.Hours(m.out.TotalPromised))
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
