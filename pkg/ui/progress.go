package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"dyscraper/pkg/models"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// StatusTracker aggregates the reports of a batch of runs
type StatusTracker struct {
	mu        sync.Mutex
	reports   []*models.Report
	counts    models.Counts
	bytes     int64
	aborted   int
	StartTime time.Time
}

// NewStatusTracker creates a new status tracker
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		StartTime: time.Now(),
	}
}

// Add folds a finished report into the totals
func (st *StatusTracker) Add(report *models.Report) {
	if report == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	st.reports = append(st.reports, report)
	if report.Aborted() {
		st.aborted++
	}
	c := report.Counts()
	st.counts.Total += c.Total
	st.counts.Success += c.Success
	st.counts.Failed += c.Failed
	st.counts.Skipped += c.Skipped
	for _, o := range report.Outcomes {
		if o.Status == models.StatusSuccess {
			st.bytes += o.Bytes
		}
	}
}

// Counts returns the outcome totals over all runs
func (st *StatusTracker) Counts() models.Counts {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.counts
}

// Runs returns how many reports were added and how many of them aborted
func (st *StatusTracker) Runs() (total, aborted int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.reports), st.aborted
}

// Bytes returns the bytes downloaded over all runs
func (st *StatusTracker) Bytes() int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.bytes
}

// GetBatchProgress returns a progress bar of handled items against total
func (st *StatusTracker) GetBatchProgress() string {
	c := st.Counts()
	const width = 20
	filled := 0
	if c.Total > 0 {
		filled = (c.Success + c.Skipped) * width / c.Total
	}

	bar := strings.Repeat(ProgressBar, filled) +
		strings.Repeat(ProgressEmpty, width-filled)

	return fmt.Sprintf("[%s] %d/%d", bar, c.Success+c.Skipped, c.Total)
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// GetDownloadRate returns the average download rate (items per minute)
func (st *StatusTracker) GetDownloadRate() float64 {
	elapsed := st.GetElapsedTime().Minutes()
	if elapsed == 0 {
		return 0
	}
	return float64(st.Counts().Success) / elapsed
}

// HasFailures reports whether any run aborted or any item failed
func (st *StatusTracker) HasFailures() bool {
	_, aborted := st.Runs()
	return aborted > 0 || st.Counts().Failed > 0
}

// PrintSummary writes the batch totals to w
func (st *StatusTracker) PrintSummary(w io.Writer) {
	total, aborted := st.Runs()
	c := st.Counts()

	fmt.Fprintf(w, "\n%s %d accounts • %s\n", Magenta("[BATCH]"), total, st.GetBatchProgress())
	fmt.Fprintf(w, "  %s %d downloaded, %d skipped, %d failed\n", Dim("•"), c.Success, c.Skipped, c.Failed)
	fmt.Fprintf(w, "  %s %s in %s (%.1f videos/min)\n",
		Dim("•"),
		FormatBytes(st.Bytes()),
		FormatDuration(st.GetElapsedTime()),
		st.GetDownloadRate(),
	)
	if aborted > 0 {
		fmt.Fprintf(w, "  %s %s\n", Dim("•"), Red(fmt.Sprintf("%d runs aborted", aborted)))
	}
}
