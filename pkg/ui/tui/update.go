package tui

import (
	"fmt"
	"time"

	"dyscraper/pkg/models"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Message types for the TUI

// StateMsg is sent when a run changes state
type StateMsg struct {
	Reference string
	State     models.State
}

// AccountMsg is sent when a run has extracted its profile
type AccountMsg struct {
	Reference string
	Account   *models.Account
}

// PageMsg is sent for every listing page
type PageMsg struct {
	Reference string
	Page      int
	Items     int
}

// OutcomeMsg is sent when an item finishes
type OutcomeMsg struct {
	Reference string
	Outcome   models.Outcome
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// DoneMsg is sent once every run has finished
type DoneMsg struct{}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case StateMsg:
		m.SetState(msg.Reference, msg.State)
		switch msg.State {
		case models.StateResolving:
			m.AddLogMessage("INFO", "Started "+msg.Reference)
		case models.StateDone:
			m.AddLogMessage("SUCCESS", "Finished "+m.nameOf(msg.Reference))
		case models.StateAborted:
			m.AddLogMessage("ERROR", "Aborted "+m.nameOf(msg.Reference))
		}
		return m, nil

	case AccountMsg:
		m.SetAccount(msg.Reference, msg.Account)
		if msg.Account != nil && msg.Account.Degraded {
			m.AddLogMessage("WARN", "Profile incomplete for "+m.nameOf(msg.Reference))
		}
		return m, nil

	case PageMsg:
		m.AddPage(msg.Reference, msg.Page, msg.Items)
		return m, nil

	case OutcomeMsg:
		m.AddOutcome(msg.Reference, msg.Outcome)
		if msg.Outcome.Status == models.StatusFailed {
			m.AddLogMessage("ERROR", fmt.Sprintf("Failed %s: %s", msg.Outcome.ItemID, msg.Outcome.Error))
		}
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil

	case DoneMsg:
		m.SetFinished()
		m.AddLogMessage("SUCCESS", "All runs finished, press q to exit")
		return m, nil
	}

	return m, nil
}

func (m *Model) nameOf(reference string) string {
	if a, ok := m.Account(reference); ok {
		return a.Name
	}
	return reference
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = nil
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
