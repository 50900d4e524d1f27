package tui

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/sigslot/internal/events"
	"github.com/mattjoyce/sigslot/internal/pool"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const (
	maxEventLog  = 50
	pollInterval = 2 * time.Second
)

// Model is the bubbletea model of `sigslot watch`.
type Model struct {
	apiURL string
	client *http.Client

	width  int
	height int

	snap      snapshotMsg
	connected bool
	lastErr   error

	eventLog  []events.Event
	hubEvents chan events.Event

	poolTable  table.Model
	probeTable table.Model
}

// NewMonitor builds a monitor polling the diagnostics API at apiURL.
func NewMonitor(apiURL string) Model {
	return Model{
		apiURL:    strings.TrimRight(apiURL, "/"),
		client:    &http.Client{},
		hubEvents: make(chan events.Event, 100),
		poolTable: newTable([]table.Column{
			{Title: "Pool", Width: 16},
			{Title: "Use", Width: 9},
			{Title: "Peak", Width: 6},
			{Title: "Fail", Width: 6},
			{Title: "Load", Width: 12},
		}, true),
		probeTable: newTable([]table.Column{
			{Title: "Probe", Width: 16},
			{Title: "Mode", Width: 9},
			{Title: "Sent", Width: 8},
			{Title: "Recv", Width: 8},
			{Title: "Fail", Width: 6},
			{Title: "Latency", Width: 10},
		}, false),
	}
}

func newTable(cols []table.Column, focused bool) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(focused),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.client, m.apiURL, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		m.poll(),
		tea.EnterAltScreen,
	)
}

func (m Model) poll() tea.Cmd {
	client, url := m.client, m.apiURL
	return func() tea.Msg { return fetchSnapshot(client, url) }
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.poolTable.SetWidth(m.width - 6)
		m.probeTable.SetWidth(m.width - 6)

	case eventMsg:
		m.eventLog = append([]events.Event{events.Event(msg)}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		return m, receiveNextEvent(m.hubEvents)

	case snapshotMsg:
		m.snap = msg
		m.connected = true
		m.lastErr = nil
		m.poolTable.SetRows(poolRows(msg.Stats.Pools))
		m.probeTable.SetRows(probeRows(msg.Probes))
		return m, schedulePoll(pollInterval)

	case errMsg:
		m.connected = false
		m.lastErr = msg.err
		return m, schedulePoll(pollInterval)

	case pollMsg:
		return m, m.poll()

	case sseDisconnectedMsg:
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.client, m.apiURL, m.hubEvents)
	}

	m.poolTable, cmd = m.poolTable.Update(msg)
	return m, cmd
}

func poolRows(pools []pool.Stats) []table.Row {
	rows := make([]table.Row, 0, len(pools))
	for _, p := range pools {
		rows = append(rows, table.Row{
			p.Name,
			fmt.Sprintf("%d/%d", p.InUse, p.Capacity),
			fmt.Sprintf("%d", p.Peak),
			fmt.Sprintf("%d", p.Failures),
			loadBar(p.InUse, p.Capacity, 10),
		})
	}
	return rows
}

func probeRows(probes []probeRow) []table.Row {
	rows := make([]table.Row, 0, len(probes))
	for _, p := range probes {
		rows = append(rows, table.Row{
			p.Name,
			p.Mode,
			fmt.Sprintf("%d", p.Sent),
			fmt.Sprintf("%d", p.Delivered),
			fmt.Sprintf("%d", p.Failures),
			fmt.Sprintf("%.2fms", p.LatencyMS),
		})
	}
	return rows
}

// loadBar renders used/capacity as a fixed-width bar.
func loadBar(used, capacity, width int) string {
	if capacity <= 0 {
		return strings.Repeat("·", width)
	}
	filled := used * width / capacity
	if used > 0 && filled == 0 {
		filled = 1
	}
	return strings.Repeat("█", filled) + strings.Repeat("·", width-filled)
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	pools := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Pools"),
			m.poolTable.View(),
		),
	)
	probes := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Probes"),
			m.probeTable.View(),
		),
	)
	eventsView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Fault Stream"),
			m.renderEvents(),
		),
	)

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			m.renderHeader(),
			pools,
			probes,
			eventsView,
			helpStyle.Render(" [q] Quit • [↑/↓] Scroll Pools"),
		),
	)
}

func (m Model) renderHeader() string {
	h := m.snap.Health
	var status string
	switch {
	case !m.connected:
		status = statusFailed.Render("DISCONNECTED")
	case h.Status == "ok":
		status = statusOK.Render("RUNNING")
	default:
		status = statusWarn.Render(strings.ToUpper(h.Status))
	}

	reg := m.snap.Stats.Registry
	items := []string{
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Uptime: %s", (time.Duration(h.UptimeSeconds) * time.Second).String()),
		fmt.Sprintf("Threads: %d/%d", h.ThreadsRunning, h.Threads),
		fmt.Sprintf("Signals: %d  Slots: %d", reg.Groups, reg.Nodes),
	}
	if m.lastErr != nil {
		items[3] = statusFailed.Render(truncate(m.lastErr.Error(), (m.width-4)/4))
	}

	cols := make([]string, len(items))
	for i, it := range items {
		cols[i] = lipgloss.NewStyle().Width((m.width - 4) / len(items)).Render(it)
	}
	return borderStyle.Width(m.width - 4).Render(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 10 {
			break
		}
		ts := e.At.Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s | %-15s | %s", ts, e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func truncate(s string, n int) string {
	if n <= 1 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
