package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"dyscraper/pkg/metadata"
	"dyscraper/pkg/models"
)

// accountProgress is the running tally of one reference
type accountProgress struct {
	name      string
	state     models.State
	pages     int
	listed    int
	success   int
	failed    int
	skipped   int
	bytes     int64
	current   string
	startTime time.Time
}

func (a *accountProgress) done() int {
	return a.success + a.failed + a.skipped
}

// ProgressDisplay prints a one-line progress view per run. It satisfies
// scraper.Observer and is safe for concurrent runs.
type ProgressDisplay struct {
	mu       sync.Mutex
	out      io.Writer
	accounts map[string]*accountProgress
	isDebug  bool
}

// NewProgressDisplay creates a display writing to out. In debug mode every
// event gets its own line instead of a redrawn progress line.
func NewProgressDisplay(out io.Writer, debug bool) *ProgressDisplay {
	if out == nil {
		out = Output
	}
	return &ProgressDisplay{
		out:      out,
		accounts: make(map[string]*accountProgress),
		isDebug:  debug,
	}
}

func (p *ProgressDisplay) account(reference string) *accountProgress {
	a, ok := p.accounts[reference]
	if !ok {
		a = &accountProgress{name: reference, startTime: time.Now()}
		p.accounts[reference] = a
	}
	return a
}

// StateChanged records the pipeline state of reference
func (p *ProgressDisplay) StateChanged(reference string, state models.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.account(reference)
	a.state = state
	if p.isDebug {
		fmt.Fprintf(p.out, "%s %s %s\n", Magenta("→"), a.name, Dim(string(state)))
	}
}

// AccountResolved prints the identity behind reference
func (p *ProgressDisplay) AccountResolved(reference string, account *models.Account) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.account(reference)
	if account == nil {
		return
	}
	a.name = account.DisplayName
	if a.name == "" {
		a.name = account.ID
	}

	line := fmt.Sprintf("%s %s", Cyan("►"), Cyan(a.name))
	if account.Verified {
		line += Dim(fmt.Sprintf(" • %s followers • %s likes",
			formatCount(account.FollowerCount), formatCount(account.LikedCount)))
	} else {
		line += " " + Yellow("(profile data unavailable)")
	}
	fmt.Fprintf(p.out, "\n%s\n", line)
}

// PageFetched records a listing page
func (p *ProgressDisplay) PageFetched(reference string, page, items int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.account(reference)
	a.pages = page
	a.listed += items
	if p.isDebug {
		fmt.Fprintf(p.out, "%s Scanning page %d (%d items)\n", Magenta("→"), page, items)
		return
	}
	p.printProgress(a)
}

// ItemFinished records one item outcome
func (p *ProgressDisplay) ItemFinished(reference string, outcome models.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.account(reference)
	a.current = outcome.ItemID
	switch outcome.Status {
	case models.StatusSuccess:
		a.success++
		a.bytes += outcome.Bytes
	case models.StatusFailed:
		a.failed++
	case models.StatusSkipped:
		a.skipped++
	}

	if !p.isDebug {
		p.printProgress(a)
		return
	}
	p.printDebugOutcome(outcome)
}

// printProgress redraws the progress line of a
func (p *ProgressDisplay) printProgress(a *accountProgress) {
	elapsed := time.Since(a.startTime)
	rate := 0.0
	if elapsed.Minutes() > 0 {
		rate = float64(a.success) / elapsed.Minutes()
	}

	barWidth := 20
	filled := 0
	if a.listed > 0 {
		filled = a.done() * barWidth / a.listed
	}
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s [%s] %d/%d • page %d • %.1f/min • %s",
		Cyan(metadata.Shorten(a.name, 24)),
		bar,
		a.done(),
		a.listed,
		a.pages,
		rate,
		FormatBytes(a.bytes),
	)
	if a.skipped > 0 {
		line += fmt.Sprintf(" • %s", Dim(fmt.Sprintf("%d skipped", a.skipped)))
	}
	if a.failed > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d failed", a.failed)))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

// printDebugOutcome prints one outcome on its own line
func (p *ProgressDisplay) printDebugOutcome(o models.Outcome) {
	switch o.Status {
	case models.StatusSuccess:
		fmt.Fprintf(p.out, "%s %s • %s", Green("✓"), o.ItemID, FormatBytes(o.Bytes))
	case models.StatusSkipped:
		fmt.Fprintf(p.out, "%s %s • %s", Dim("="), o.ItemID, Dim("exists"))
	default:
		fmt.Fprintf(p.out, "%s %s • %s", Red("✗"), o.ItemID, Red(o.Error))
	}
	if o.Title != "" {
		fmt.Fprintf(p.out, " • %s", Dim(metadata.Shorten(o.Title, 50)))
	}
	fmt.Fprintln(p.out)
}

// Complete ends the progress line of reference
func (p *ProgressDisplay) Complete(reference string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.accounts[reference]; ok && !p.isDebug {
		fmt.Fprintln(p.out)
	}
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// FormatBytes formats bytes in a human-readable way
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

// formatCount shortens large counters: 1234 -> 1.2K
func formatCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	}
	return fmt.Sprintf("%d", n)
}
