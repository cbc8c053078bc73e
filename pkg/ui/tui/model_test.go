package tui

import (
	"strings"
	"testing"

	"dyscraper/pkg/models"

	tea "github.com/charmbracelet/bubbletea"
)

func TestModel(t *testing.T) {
	model := NewModel(2, nil)

	model.SetState("ref-a", models.StateResolving)
	model.SetAccount("ref-a", &models.Account{ID: "42", DisplayName: "Creator"})
	model.SetState("ref-a", models.StatePaginating)
	model.AddPage("ref-a", 1, 3)
	model.AddOutcome("ref-a", models.Outcome{ItemID: "1", Status: models.StatusSuccess, Bytes: 2048})
	model.AddOutcome("ref-a", models.Outcome{ItemID: "2", Status: models.StatusSkipped})
	model.AddOutcome("ref-a", models.Outcome{ItemID: "3", Status: models.StatusFailed, Error: "boom"})

	model.SetState("ref-b", models.StateResolving)
	model.SetState("ref-b", models.StateAborted)

	a, ok := model.Account("ref-a")
	if !ok {
		t.Fatal("Expected account ref-a")
	}
	if a.Name != "Creator" {
		t.Errorf("Expected name Creator, got %s", a.Name)
	}
	if a.Listed != 3 || a.Done() != 3 {
		t.Errorf("Expected 3 listed and done, got %d and %d", a.Listed, a.Done())
	}
	if a.Bytes != 2048 {
		t.Errorf("Expected 2048 bytes, got %d", a.Bytes)
	}

	accounts := model.Accounts()
	if len(accounts) != 2 || accounts[0].Reference != "ref-a" || accounts[1].Reference != "ref-b" {
		t.Errorf("Expected accounts in arrival order, got %+v", accounts)
	}

	stats := model.GetStats()
	if stats.Runs != 2 || stats.Active != 1 || stats.Aborted != 1 {
		t.Errorf("Unexpected run stats %+v", stats)
	}
	want := models.Counts{Total: 3, Success: 1, Failed: 1, Skipped: 1}
	if stats.Counts != want {
		t.Errorf("Expected counts %+v, got %+v", want, stats.Counts)
	}
}

func TestModelAccountFallbackName(t *testing.T) {
	model := NewModel(1, nil)
	model.SetAccount("ref", &models.Account{ID: "ABC", Degraded: true})

	a, _ := model.Account("ref")
	if a.Name != "ABC" || !a.Degraded {
		t.Errorf("Expected degraded account named by id, got %+v", a)
	}

	model.SetAccount("other", nil)
	if b, _ := model.Account("other"); b.Name != "other" {
		t.Errorf("Expected reference as name, got %s", b.Name)
	}
}

func TestRecentOutcomesBounded(t *testing.T) {
	model := NewModel(1, nil)
	for i := 0; i < 20; i++ {
		model.AddOutcome("ref", models.Outcome{ItemID: "x", Status: models.StatusSuccess})
	}
	if len(model.recent) != model.maxRecent {
		t.Errorf("Expected %d recent outcomes, got %d", model.maxRecent, len(model.recent))
	}
}

func TestLogMessagesBounded(t *testing.T) {
	model := NewModel(1, nil)
	for i := 0; i < 60; i++ {
		model.AddLogMessage("INFO", "Test message")
	}
	if len(model.logMessages) != model.maxLogMessages {
		t.Errorf("Expected %d log messages, got %d", model.maxLogMessages, len(model.logMessages))
	}
	if model.logMessages[0].Color != accentCyan {
		t.Errorf("Expected info color")
	}
}

func TestUpdateMessages(t *testing.T) {
	model := NewModel(1, nil)

	model.Update(StateMsg{Reference: "ref", State: models.StateResolving})
	model.Update(AccountMsg{Reference: "ref", Account: &models.Account{ID: "1", DisplayName: "Name", Degraded: true}})
	model.Update(PageMsg{Reference: "ref", Page: 1, Items: 2})
	model.Update(OutcomeMsg{Reference: "ref", Outcome: models.Outcome{ItemID: "9", Status: models.StatusFailed, Error: "gone"}})
	model.Update(StateMsg{Reference: "ref", State: models.StateDone})
	model.Update(DoneMsg{})

	if !model.IsFinished() {
		t.Error("Expected batch to be finished")
	}

	var levels []string
	for _, l := range model.logMessages {
		levels = append(levels, l.Level)
	}
	got := strings.Join(levels, ",")
	if got != "INFO,WARN,ERROR,SUCCESS,SUCCESS" {
		t.Errorf("Unexpected log levels %s", got)
	}
	if !strings.Contains(model.logMessages[2].Message, "gone") {
		t.Errorf("Expected failure reason in log, got %s", model.logMessages[2].Message)
	}
}

func TestQuitCallsOnQuit(t *testing.T) {
	called := false
	model := NewModel(1, func() { called = true })

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !called {
		t.Error("Expected onQuit to be called")
	}
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestViewRenders(t *testing.T) {
	model := NewModel(1, nil)
	if model.View() != "Initializing..." {
		t.Error("Expected placeholder before the first resize")
	}

	model.Update(tea.WindowSizeMsg{Width: 160, Height: 50})
	model.Update(StateMsg{Reference: "ref", State: models.StatePaginating})
	model.Update(AccountMsg{Reference: "ref", Account: &models.Account{ID: "1", DisplayName: "Creator"}})
	model.Update(OutcomeMsg{Reference: "ref", Outcome: models.Outcome{ItemID: "1", Title: "clip title", Status: models.StatusSuccess}})

	view := model.View()
	for _, want := range []string{"ACCOUNTS", "Creator", "clip title"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}

func TestParseLogLine(t *testing.T) {
	level, msg := parseLogLine([]byte(`{"level":"warn","component":"session","message":"Retrying","error":"timeout"}`))
	if level != "WARN" || msg != "session: Retrying: timeout" {
		t.Errorf("Unexpected parse %s %q", level, msg)
	}

	level, msg = parseLogLine([]byte("plain text"))
	if level != "INFO" || msg != "plain text" {
		t.Errorf("Unexpected parse %s %q", level, msg)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{500, "500 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}

	for _, test := range tests {
		result := FormatBytes(test.bytes)
		if result != test.expected {
			t.Errorf("FormatBytes(%d) = %s, expected %s", test.bytes, result, test.expected)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		speed    float64
		expected string
	}{
		{1024, "1.0 KB/s"},
		{1024 * 1024, "1.0 MB/s"},
		{512 * 1024, "512.0 KB/s"},
	}

	for _, test := range tests {
		result := FormatSpeed(test.speed)
		if result != test.expected {
			t.Errorf("FormatSpeed(%f) = %s, expected %s", test.speed, result, test.expected)
		}
	}
}
