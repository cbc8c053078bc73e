package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"dyscraper/pkg/models"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI is a full screen dashboard for a batch of runs. It receives pipeline
// events through the scraper observer methods.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a new TUI instance. onQuit runs when the user quits and
// should cancel the batch.
func NewTUI(workers int, onQuit func(), opts ...tea.ProgramOption) *TUI {
	model := NewModel(workers, onQuit)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)

	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

// Start runs the TUI until the user quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Model returns the dashboard model
func (t *TUI) Model() *Model {
	return t.model
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// StateChanged forwards a run state change
func (t *TUI) StateChanged(reference string, state models.State) {
	t.Send(StateMsg{Reference: reference, State: state})
}

// AccountResolved forwards an extracted profile
func (t *TUI) AccountResolved(reference string, account *models.Account) {
	t.Send(AccountMsg{Reference: reference, Account: account})
}

// PageFetched forwards a listing page
func (t *TUI) PageFetched(reference string, page, items int) {
	t.Send(PageMsg{Reference: reference, Page: page, Items: items})
}

// ItemFinished forwards an item outcome
func (t *TUI) ItemFinished(reference string, outcome models.Outcome) {
	t.Send(OutcomeMsg{Reference: reference, Outcome: outcome})
}

// Finish tells the dashboard that every run has ended
func (t *TUI) Finish() {
	t.Send(DoneMsg{})
}

// Write forwards JSON log events into the logs panel, so the TUI can serve
// as a logger output
func (t *TUI) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimSpace(p), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		level, msg := parseLogLine(line)
		t.Send(LogMsg{Level: level, Message: msg})
	}
	return len(p), nil
}

// parseLogLine extracts level and message from a JSON log event. Lines that
// are not JSON pass through as info.
func parseLogLine(line []byte) (string, string) {
	var event struct {
		Level     string `json:"level"`
		Message   string `json:"message"`
		Component string `json:"component"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(line, &event); err != nil {
		return "INFO", string(line)
	}

	msg := event.Message
	if event.Component != "" {
		msg = event.Component + ": " + msg
	}
	if event.Error != "" {
		msg += ": " + event.Error
	}

	level := strings.ToUpper(event.Level)
	switch level {
	case "":
		level = "INFO"
	case "FATAL", "PANIC":
		level = "ERROR"
	}
	return level, msg
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}
