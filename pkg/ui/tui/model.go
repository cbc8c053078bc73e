package tui

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"dyscraper/pkg/models"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AccountState is the dashboard view of one run
type AccountState struct {
	Reference string
	Name      string
	State     models.State
	Degraded  bool
	StartTime time.Time

	Pages   int
	Listed  int
	Success int
	Failed  int
	Skipped int
	Bytes   int64
}

// Done returns the number of items with an outcome
func (a *AccountState) Done() int {
	return a.Success + a.Failed + a.Skipped
}

// Finished reports whether the run reached a terminal state
func (a *AccountState) Finished() bool {
	return a.State == models.StateDone || a.State == models.StateAborted
}

// RecentOutcome is an item outcome tagged with its run
type RecentOutcome struct {
	Reference string
	Outcome   models.Outcome
	Time      time.Time
}

// Model represents the TUI model
type Model struct {
	// UI components
	spinner  spinner.Model
	progress progress.Model

	// Run state
	accounts  map[string]*AccountState
	order     []string
	recent    []RecentOutcome
	maxRecent int
	workers   int
	finished  bool

	sessionStartTime time.Time

	// UI state
	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int
	onQuit         func()

	mu sync.RWMutex
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a new TUI model. onQuit runs when the user quits.
func NewModel(workers int, onQuit func()) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accentCyan)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 30

	if workers < 1 {
		workers = 1
	}

	return &Model{
		spinner:          s,
		progress:         p,
		accounts:         make(map[string]*AccountState),
		maxRecent:        8,
		workers:          workers,
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
		onQuit:           onQuit,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// account returns the entry for reference, creating it in arrival order.
// Callers hold the write lock.
func (m *Model) account(reference string) *AccountState {
	a, ok := m.accounts[reference]
	if !ok {
		a = &AccountState{Reference: reference, Name: reference, StartTime: time.Now()}
		m.accounts[reference] = a
		m.order = append(m.order, reference)
	}
	return a
}

// SetState records a pipeline state change
func (m *Model) SetState(reference string, state models.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(reference).State = state
}

// SetAccount records the extracted profile of a run
func (m *Model) SetAccount(reference string, acct *models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.account(reference)
	if acct == nil {
		return
	}
	a.Degraded = acct.Degraded
	switch {
	case acct.DisplayName != "":
		a.Name = acct.DisplayName
	case acct.ID != "":
		a.Name = acct.ID
	}
}

// AddPage records a fetched listing page
func (m *Model) AddPage(reference string, page, items int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.account(reference)
	a.Pages = page
	a.Listed += items
}

// AddOutcome records the outcome of one item
func (m *Model) AddOutcome(reference string, o models.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.account(reference)
	switch o.Status {
	case models.StatusSuccess:
		a.Success++
		a.Bytes += o.Bytes
	case models.StatusFailed:
		a.Failed++
	case models.StatusSkipped:
		a.Skipped++
	}

	m.recent = append(m.recent, RecentOutcome{Reference: reference, Outcome: o, Time: time.Now()})
	if len(m.recent) > m.maxRecent {
		m.recent = m.recent[len(m.recent)-m.maxRecent:]
	}
}

// SetFinished marks the whole batch as finished
func (m *Model) SetFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true
}

// IsFinished reports whether the batch finished
func (m *Model) IsFinished() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finished
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	color := dimWhite
	switch level {
	case "ERROR":
		color = alertRed
	case "WARN":
		color = accentOrange
	case "SUCCESS":
		color = accentGreen
	case "INFO":
		color = accentCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	// Keep only the last N messages
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Accounts returns copies of all runs in arrival order
func (m *Model) Accounts() []AccountState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountsLocked()
}

func (m *Model) accountsLocked() []AccountState {
	out := make([]AccountState, 0, len(m.order))
	for _, ref := range m.order {
		out = append(out, *m.accounts[ref])
	}
	return out
}

// Account returns a copy of the run for reference
func (m *Model) Account(reference string) (AccountState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[reference]
	if !ok {
		return AccountState{}, false
	}
	return *a, true
}

// Stats aggregates every run
type Stats struct {
	Runs     int
	Active   int
	Finished int
	Aborted  int
	Counts   models.Counts
	Bytes    int64
	Rate     float64
	Elapsed  time.Duration
}

// GetStats returns the batch statistics
func (m *Model) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statsLocked()
}

func (m *Model) statsLocked() Stats {
	s := Stats{Runs: len(m.accounts), Elapsed: time.Since(m.sessionStartTime)}
	for _, a := range m.accounts {
		switch {
		case a.State == models.StateAborted:
			s.Aborted++
			s.Finished++
		case a.State == models.StateDone:
			s.Finished++
		default:
			s.Active++
		}
		s.Counts.Success += a.Success
		s.Counts.Failed += a.Failed
		s.Counts.Skipped += a.Skipped
		s.Bytes += a.Bytes
	}
	s.Counts.Total = s.Counts.Success + s.Counts.Failed + s.Counts.Skipped
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.Rate = float64(s.Bytes) / secs
	}
	return s
}

// activeLocked returns unfinished runs ordered by start time
func (m *Model) activeLocked() []*AccountState {
	var active []*AccountState
	for _, ref := range m.order {
		if a := m.accounts[ref]; !a.Finished() {
			active = append(active, a)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].StartTime.Before(active[j].StartTime)
	})
	return active
}

// FormatBytes formats bytes to human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed formats speed in bytes per second
func FormatSpeed(bytesPerSecond float64) string {
	return fmt.Sprintf("%s/s", FormatBytes(int64(bytesPerSecond)))
}
