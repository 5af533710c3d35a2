package app

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	apperrors "pledge/internal/platform/errors"
	"pledge/internal/platform/timefmt"
	"pledge/internal/ui/components"
	"pledge/internal/ui/theme"
	focusview "pledge/internal/ui/views/focus"
	weeklyview "pledge/internal/ui/views/weekly"
)

const defaultFocusMinutes = 25

// ─── tab index ───────────────────────────────────────────────────────────────

type tabID int

const (
	tabFocus tabID = iota
	tabWeekly
	tabCount
)

var tabLabels = [tabCount]string{"Focus", "Weekly"}

// FocusCompletedMsg is sent from the focus completion callback.
type FocusCompletedMsg struct{ SessionID string }

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	Tab     key.Binding
	Help    key.Binding
	Palette key.Binding
	Quit    key.Binding
	Start   key.Binding
	Pause   key.Binding
	Stop    key.Binding
	Refresh key.Binding
	Week    key.Binding
	Export  key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Tab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Palette: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "palette")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
		Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start session")),
		Pause:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause/resume")),
		Stop:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop session")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Week:    key.NewBinding(key.WithKeys("left", "right"), key.WithHelp("←/→", "change week")),
		Export:  key.NewBinding(key.WithKeys("e", "E"), key.WithHelp("e/E", "export md/pdf")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Help, k.Palette, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Pause, k.Stop, k.Refresh},
		{k.Week, k.Export},
		{k.Tab, k.Help, k.Palette, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model. It owns tab routing, the help overlay
// and the command palette; rendering and port calls live in the sub-views.
type Model struct {
	focusView  focusview.Model
	weeklyView weeklyview.Model

	activeTab tabID
	keys      keyMap
	help      help.Model
	showHelp  bool
	palette   components.Palette
	status    string
	width     int
	height    int
}

func NewModel(focus focusview.FocusPort, weekly weeklyview.WeeklyPort) Model {
	return Model{
		focusView:  focusview.New(focus),
		weeklyView: weeklyview.New(weekly),
		activeTab:  tabFocus,
		keys:       defaultKeys(),
		help:       help.New(),
		palette:    components.NewPalette(),
		status:     "ready",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.focusView.Init(), m.weeklyView.Init())
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The palette intercepts all input while open.
	if m.palette.Visible() {
		if _, ok := msg.(tea.KeyMsg); ok {
			var cmd tea.Cmd
			m.palette, cmd = m.palette.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 80))
		m.help.Width = m.width
		sz := tea.WindowSizeMsg{Width: m.width, Height: m.height - 3}
		m.focusView, _ = m.focusView.Update(sz)
		m.weeklyView, _ = m.weeklyView.Update(sz)
		return m, nil

	case FocusCompletedMsg:
		m.status = "focus session complete"
		return m, m.weeklyView.Reload()

	case focusview.ActionMsg:
		m.status = actionStatus(msg)
		m.focusView, cmd = m.focusView.Update(msg)
		return m, cmd

	case weeklyview.ExportedMsg:
		if msg.Err != nil {
			m.status = "export failed: " + apperrors.Message(msg.Err)
		} else {
			m.status = "exported " + msg.Out.Path
		}
		return m, nil

	case weeklyview.LoadedMsg:
		if msg.Err != nil {
			m.status = "weekly report: " + apperrors.Message(msg.Err)
		}
		m.weeklyView, cmd = m.weeklyView.Update(msg)
		return m, cmd

	case components.PaletteSubmitMsg:
		return m.executePalette(msg.Input)

	case components.PaletteCancelMsg:
		m.status = "ready"
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	// Async results that belong to the focus view.
	m.focusView, cmd = m.focusView.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		if msg.String() == "?" || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
		return m, nil
	case "shift+tab":
		m.activeTab = (m.activeTab + tabCount - 1) % tabCount
		return m, nil
	case "?":
		m.showHelp = true
		return m, nil
	case ":":
		cmd := m.palette.Open("")
		return m, cmd
	}

	if m.activeTab == tabFocus {
		switch msg.String() {
		case "s":
			cmd := m.palette.Open("focus:start ")
			return m, cmd
		case "p":
			return m, m.focusView.TogglePause()
		case "x":
			return m, m.focusView.Stop()
		case "r":
			return m, m.focusView.Refresh()
		}
		return m, nil
	}

	switch msg.String() {
	case "e":
		return m, m.weeklyView.Export("md", ".")
	case "E":
		return m, m.weeklyView.Export("pdf", ".")
	}
	var cmd tea.Cmd
	m.weeklyView, cmd = m.weeklyView.Update(msg)
	return m, cmd
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	tabBar := m.renderTabBar()
	statusBar := m.renderStatusBar()
	contentH := max(1, m.height-lipgloss.Height(tabBar)-lipgloss.Height(statusBar))

	var content string
	switch {
	case m.showHelp:
		content = lipgloss.NewStyle().Width(m.width).Height(contentH).Render(m.help.View(m.keys))
	case m.palette.Visible():
		content = lipgloss.Place(m.width, contentH, lipgloss.Center, lipgloss.Center, m.palette.View())
	case m.activeTab == tabWeekly:
		content = m.weeklyView.View()
	default:
		content = m.focusView.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, tabBar, content, statusBar)
}

func (m Model) renderTabBar() string {
	parts := make([]string, tabCount)
	for i := tabID(0); i < tabCount; i++ {
		if i == m.activeTab {
			parts[i] = theme.Hot.Render(" " + tabLabels[i] + " ")
		} else {
			parts[i] = theme.Muted.Render(" " + tabLabels[i] + " ")
		}
	}
	bar := "pledge  " + strings.Join(parts, theme.Muted.Render(" │ "))
	return lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar) + "\n"
}

func (m Model) renderStatusBar() string {
	left := m.status
	if out := m.focusView.Status(); m.focusView.Active() {
		left = theme.StatusStyle(out.Status).Render("● "+timefmt.Clock(out.RemainingSeconds)) + "  " + left
	}
	right := theme.Muted.Render("?:help  tab:switch  :::palette  q:quit")
	gap := max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	bar := left + strings.Repeat(" ", gap) + right
	return "\n" + lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar)
}

// ─── palette execution ────────────────────────────────────────────────────────

func (m Model) executePalette(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}
	switch parts[0] {
	case "focus:start":
		if len(parts) < 2 {
			m.status = "usage: focus:start <promise-id> [minutes]"
			return m, nil
		}
		minutes := defaultFocusMinutes
		if len(parts) >= 3 {
			n, err := strconv.Atoi(parts[2])
			if err != nil {
				m.status = "minutes must be a number"
				return m, nil
			}
			minutes = n
		}
		m.activeTab = tabFocus
		return m, m.focusView.Start(parts[1], minutes)

	case "focus:pause":
		return m, m.focusView.Pause()

	case "focus:resume":
		return m, m.focusView.Resume()

	case "focus:stop":
		return m, m.focusView.Stop()

	case "focus:refresh":
		return m, m.focusView.Refresh()

	case "report:week":
		if len(parts) < 2 {
			m.status = "usage: report:week <YYYY-MM-DD>"
			return m, nil
		}
		day, err := time.ParseInLocation(time.DateOnly, parts[1], time.Local)
		if err != nil {
			m.status = "date must be YYYY-MM-DD"
			return m, nil
		}
		m.activeTab = tabWeekly
		cmd := m.weeklyView.SetWeek(day)
		return m, cmd

	case "report:export":
		if len(parts) < 2 {
			m.status = "usage: report:export <md|pdf> [dir]"
			return m, nil
		}
		dir := "."
		if len(parts) >= 3 {
			dir = parts[2]
		}
		return m, m.weeklyView.Export(parts[1], dir)

	default:
		m.status = "unknown command: " + parts[0]
	}
	return m, nil
}

func actionStatus(msg focusview.ActionMsg) string {
	if msg.Err == nil {
		if msg.Action == "refresh" {
			return "ready"
		}
		return msg.Action + ": " + strings.ReplaceAll(msg.Out.Status, "_", " ")
	}
	if errors.Is(msg.Err, apperrors.ErrUnauthorized) {
		return "signed out: " + msg.Out.Error
	}
	return msg.Action + " failed: " + msg.Out.Error
}
