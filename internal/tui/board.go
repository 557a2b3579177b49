// internal/tui/board.go
//
// This is the status board behind `relay status`. It uses bubbletea,
// which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen
//
// The board is strictly read-only: it lists agents with their storage
// counters and shows recent workflow runs, refreshing on a timer. It
// never mutates the namespace.

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kingrea/The-Relay/internal/diskguard"
	"github.com/kingrea/The-Relay/internal/layout"
	"github.com/kingrea/The-Relay/internal/workflow/engine"
)

const (
	boardRefreshInterval = 3 * time.Second
	recentRunLimit       = 8
)

// statusRefreshMsg carries one snapshot of the storage root.
type statusRefreshMsg struct {
	agents   []layout.AgentInfo
	runs     []engine.Run
	usage    diskguard.Report
	hasUsage bool
	err      error
}

// agentItem adapts layout.AgentInfo to the bubbles list.
type agentItem struct {
	info layout.AgentInfo
}

func (i agentItem) Title() string { return i.info.Name }

func (i agentItem) Description() string {
	state := "no state"
	if i.info.HasState {
		state = fmt.Sprintf("state %s old", humanizeDuration(i.info.StateAge))
	}
	return fmt.Sprintf("%s · %d inbox · %d cached", state, i.info.InboxCount, i.info.CacheCount)
}

func (i agentItem) FilterValue() string { return i.info.Name }

// Board is the bubbletea model for the status dashboard. It holds ALL
// the screen state.
type Board struct {
	ns        *layout.Namespace
	runs      *engine.RunStore
	guard     *diskguard.Guard
	threshold float64

	agentList  list.Model
	agentInfos []layout.AgentInfo
	recentRuns []engine.Run
	usage      diskguard.Report
	hasUsage   bool

	boardErr  string
	statusMsg string

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// BoardOption customizes Board construction.
type BoardOption func(*Board)

// WithDiskGuard adds a utilization line to the summary panel.
func WithDiskGuard(guard *diskguard.Guard, thresholdPercent float64) BoardOption {
	return func(b *Board) {
		b.guard = guard
		b.threshold = thresholdPercent
	}
}

// NewBoard builds the status board over a storage root.
func NewBoard(ns *layout.Namespace, runs *engine.RunStore, opts ...BoardOption) *Board {
	agentList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	agentList.Title = "Agents"
	agentList.SetShowStatusBar(false)
	agentList.SetFilteringEnabled(false)

	b := &Board{
		ns:        ns,
		runs:      runs,
		agentList: agentList,
		statusMsg: "q → quit    r → refresh",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Init is called once when the program starts.
func (b *Board) Init() tea.Cmd {
	return b.fetchStatusSnapshot()
}

// Update is called when a message is received.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		b.agentList.SetSize(max(0, msg.Width/2-6), max(0, msg.Height-12))
		return b, nil

	case statusRefreshMsg:
		b.applySnapshot(msg)
		return b, b.scheduleStatusRefresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return b, tea.Quit
		case "r":
			b.statusMsg = "Refreshing status board..."
			return b, b.fetchStatusSnapshot()
		}
	}

	var cmd tea.Cmd
	b.agentList, cmd = b.agentList.Update(msg)
	return b, cmd
}

func (b *Board) applySnapshot(msg statusRefreshMsg) {
	if msg.err != nil {
		b.boardErr = msg.err.Error()
		return
	}
	b.boardErr = ""
	b.agentInfos = msg.agents
	b.recentRuns = msg.runs
	b.usage = msg.usage
	b.hasUsage = msg.hasUsage
	b.statusMsg = "q → quit    r → refresh"

	items := make([]list.Item, len(msg.agents))
	for i := range msg.agents {
		items[i] = agentItem{info: msg.agents[i]}
	}
	b.agentList.SetItems(items)
}

// View renders the current state to a string.
func (b *Board) View() string {
	width := b.width
	if width <= 0 {
		width = 100
	}
	rightWidth := max(32, width/2)
	leftWidth := width - rightWidth - 4
	if leftWidth < 30 {
		leftWidth = width - 4
		rightWidth = 0
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⇄ RELAY")
	left := lipgloss.JoinVertical(lipgloss.Left,
		b.renderSummaryPanel(leftWidth-4),
		"",
		b.agentList.View(),
	)
	leftBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, leftWidth)).
		Render(left)
	var body string
	if rightWidth > 0 {
		rightBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1).
			Width(max(20, rightWidth)).
			Render(b.renderRunsPanel(rightWidth - 4))
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	} else {
		body = leftBox
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(b.statusMsg)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (b *Board) renderSummaryPanel(width int) string {
	lines := []string{
		fmt.Sprintf("Root: %s", b.ns.Root()),
		fmt.Sprintf("Agents: %d", len(b.agentInfos)),
	}
	if b.hasUsage {
		usageLine := fmt.Sprintf("Disk: %.1f%% used (threshold %.0f%%)", b.usage.UsedPercent, b.usage.Threshold)
		if b.usage.Warning {
			usageLine = "⚠ " + usageLine
		}
		lines = append(lines, usageLine)
	}
	if b.boardErr != "" {
		lines = append(lines, fmt.Sprintf("⚠ %s", b.boardErr))
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (b *Board) renderRunsPanel(width int) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("Recent Runs (%d)", len(b.recentRuns)))
	if len(b.recentRuns) == 0 {
		note := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Render("No workflow runs recorded yet.")
		return lipgloss.JoinVertical(lipgloss.Left, title, note)
	}
	var rows []string
	for _, run := range b.recentRuns {
		rows = append(rows, b.renderRunItem(run, width))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(rows, "\n"))
}

func (b *Board) renderRunItem(run engine.Run, width int) string {
	status := runStatusStyle(run.Status).Render(string(run.Status))
	line1 := fmt.Sprintf("%s · %s", run.Workflow, shortRunID(run.ID))
	line2 := fmt.Sprintf("%s · %d step(s)", status, len(run.Steps))
	if !run.StartedAt.IsZero() {
		line2 += fmt.Sprintf(" · started %s ago", humanizeDuration(time.Since(run.StartedAt)))
	}
	if run.Error != "" {
		line2 += fmt.Sprintf(" · %s", run.Error)
	}
	content := strings.Join([]string{line1, line2}, "\n")
	return lipgloss.NewStyle().Width(max(20, width)).Padding(0, 0, 1, 0).Render(content)
}

func runStatusStyle(status engine.Status) lipgloss.Style {
	switch status {
	case engine.StatusSucceeded:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	case engine.StatusFailed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	case engine.StatusRunning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	}
}

func (b *Board) fetchStatusSnapshot() tea.Cmd {
	return func() tea.Msg {
		return b.buildStatusSnapshot()
	}
}

func (b *Board) scheduleStatusRefresh() tea.Cmd {
	return tea.Tick(boardRefreshInterval, func(time.Time) tea.Msg {
		return b.buildStatusSnapshot()
	})
}

func (b *Board) buildStatusSnapshot() statusRefreshMsg {
	names, err := b.ns.Agents()
	if err != nil {
		return statusRefreshMsg{err: err}
	}
	infos := make([]layout.AgentInfo, 0, len(names))
	for _, name := range names {
		info, err := b.ns.Describe(name)
		if err != nil {
			return statusRefreshMsg{err: err}
		}
		infos = append(infos, info)
	}
	msg := statusRefreshMsg{agents: infos}
	if b.runs != nil {
		runs, err := b.runs.List()
		if err != nil {
			return statusRefreshMsg{err: err}
		}
		if len(runs) > recentRunLimit {
			runs = runs[:recentRunLimit]
		}
		msg.runs = runs
	}
	// Disk pressure is advisory on the board: a failed probe hides the
	// line instead of replacing the whole snapshot.
	if b.guard != nil {
		if report, err := b.guard.Check(b.ns.Root(), b.threshold); err == nil {
			msg.usage = report
			msg.hasUsage = true
		}
	}
	return msg
}

// shortRunID keeps the random tail of a run ID; the workflow name is
// already shown alongside it.
func shortRunID(id string) string {
	parts := strings.Split(id, "-")
	if len(parts) < 2 {
		return id
	}
	return parts[len(parts)-1]
}

func humanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
