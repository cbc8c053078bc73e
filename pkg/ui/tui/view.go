package tui

import (
	"fmt"
	"strings"
	"time"

	"dyscraper/pkg/metadata"
	"dyscraper/pkg/models"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var sections []string
	sections = append(sections, m.renderLogo())

	width := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(width),
		m.renderAccountsPanel(width),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderRecentPanel(width),
		m.renderLogsPanel(width),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help, q to quit"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderLogo() string {
	logo := `
╔═════════════════════════════════════════════════╗
║  ██████╗ ██╗   ██╗███████╗ ██████╗██████╗  █████╗ ║
║  ██╔══██╗╚██╗ ██╔╝██╔════╝██╔════╝██╔══██╗██╔══██╗║
║  ██║  ██║ ╚████╔╝ ███████╗██║     ██████╔╝███████║║
║  ██║  ██║  ╚██╔╝  ╚════██║██║     ██╔══██╗██╔══██║║
║  ██████╔╝   ██║   ███████║╚██████╗██║  ██║██║  ██║║
║  ╚═════╝    ╚═╝   ╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝║
║           CREATOR VIDEO HARVESTER               ║
╚═════════════════════════════════════════════════╝`

	return logoStyle.Width(m.width).Render(logo)
}

func (m *Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(" BATCH ")
	s := m.statsLocked()

	status := m.spinner.View() + " running"
	if m.finished {
		status = successStyle.Render("✓ finished")
	}

	stats := []string{
		status,
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(s.Elapsed))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Accounts:"), statsValueStyle.Render(
			fmt.Sprintf("%d active / %d done / %d aborted (workers %d)", s.Active, s.Finished-s.Aborted, s.Aborted, m.workers))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Videos:"), statsValueStyle.Render(
			fmt.Sprintf("%d downloaded, %d skipped, %d failed", s.Counts.Success, s.Counts.Skipped, s.Counts.Failed))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Total Size:"), statsValueStyle.Render(FormatBytes(s.Bytes))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Average Speed:"), speedStyle.Render(FormatSpeed(s.Rate))),
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

func (m *Model) renderAccountsPanel(width int) string {
	title := titleStyle.Render(" ACCOUNTS ")

	if len(m.order) == 0 {
		return panelStyle.Width(width).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, dimStyle.Render("Waiting for the first run")),
		)
	}

	var rows []string
	for _, a := range m.activeLocked() {
		rows = append(rows, m.renderAccount(a, width-6))
	}
	for _, ref := range m.order {
		a := m.accounts[ref]
		if !a.Finished() {
			continue
		}
		line := fmt.Sprintf("%s %s  %d/%d", StateStyle(a.State).Render(string(a.State)), metadata.Shorten(a.Name, 24), a.Done(), a.Listed)
		rows = append(rows, accountDoneStyle.Render(line))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, rows...)),
	)
}

func (m *Model) renderAccount(a *AccountState, width int) string {
	name := metadata.Shorten(a.Name, 24)
	if a.Degraded {
		name += warningStyle.Render(" (partial profile)")
	}

	info := fmt.Sprintf("%s %s  %s",
		accountStyle.Render(name),
		StateStyle(a.State).Render(string(a.State)),
		dimStyle.Render(fmt.Sprintf("page %d, %d/%d, %s", a.Pages, a.Done(), a.Listed, FormatBytes(a.Bytes))),
	)

	ratio := 0.0
	if a.Listed > 0 {
		ratio = float64(a.Done()) / float64(a.Listed)
	}
	bar := m.progress
	bar.Width = width
	if bar.Width < 10 {
		bar.Width = 10
	}
	return lipgloss.JoinVertical(lipgloss.Left, info, bar.ViewAs(ratio))
}

func (m *Model) renderRecentPanel(width int) string {
	title := titleStyle.Render(" RECENT ")

	if len(m.recent) == 0 {
		return panelStyle.Width(width).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, dimStyle.Render("No videos yet")),
		)
	}

	var rows []string
	for i := len(m.recent) - 1; i >= 0; i-- {
		r := m.recent[i]
		style, marker := OutcomeStyle(r.Outcome.Status)
		label := r.Outcome.ItemID
		if t := metadata.Shorten(r.Outcome.Title, width-30); t != "" {
			label = t
		}
		line := fmt.Sprintf("%s %s", style.Render(marker), label)
		if r.Outcome.Status == models.StatusSuccess {
			line += " " + speedStyle.Render(FormatBytes(r.Outcome.Bytes))
		}
		rows = append(rows, line)
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(rows, "\n")),
	)
}

func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOGS ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for i := start; i < len(m.logMessages); i++ {
		log := m.logMessages[i]
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		message := logMessageStyle.Render(metadata.Shorten(log.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = dimStyle.Render("No logs yet...")
	}

	logsHeight := m.height - 30
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Quit and cancel running accounts
    ctrl+l   - Clear logs
    ?        - Toggle this help

  Outcomes:
    ` + successStyle.Render("✓") + `        - Downloaded
    ` + dimStyle.Render("=") + `        - Already on disk
    ` + errorStyle.Render("✗") + `        - Failed
`

	return panelStyle.Width(m.width).Render(help)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
