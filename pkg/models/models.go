package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is the canonical identity of one creator
type Account struct {
	ID             string `json:"id"`
	SecUID         string `json:"sec_uid,omitempty"`
	DisplayName    string `json:"display_name"`
	Signature      string `json:"signature"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
	LikedCount     int64  `json:"liked_count"`
	// Verified is true when the counts came from parsed page data. When
	// false every numeric field is a placeholder, not a true zero.
	Verified bool `json:"verified"`
	// Degraded marks identities reconstructed from the URL alone
	Degraded bool   `json:"degraded"`
	Source   string `json:"source"`
}

// Stats are engagement counters; missing values stay zero
type Stats struct {
	Comments int64 `json:"comments"`
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`
}

// ContentItem is one video in an account's catalog
type ContentItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
	PlayURL      string `json:"play_url"`
	// CreatedAt is a unix timestamp in seconds
	CreatedAt int64 `json:"created_at"`
	Stats     Stats `json:"stats"`
}

// Cursor is the opaque listing position. "" and "0" both mean the start.
type Cursor string

// IsZero reports whether c is the initial position
func (c Cursor) IsZero() bool {
	return c == "" || c == "0"
}

// Param renders the cursor as a query value
func (c Cursor) Param() string {
	if c.IsZero() {
		return "0"
	}
	return string(c)
}

// Status of a single download
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome records what happened to one item
type Outcome struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
	// Path is set for success and skipped
	Path string `json:"path,omitempty"`
	// Error is set for failed
	Error string `json:"error,omitempty"`
	Bytes int64  `json:"bytes,omitempty"`
}

// State of a pipeline run
type State string

const (
	StateResolving         State = "resolving"
	StateExtractingProfile State = "extracting_profile"
	StatePaginating        State = "paginating"
	StateDone              State = "done"
	StateAborted           State = "aborted"
)

// Counts tallies outcomes by status
type Counts struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Report is the result of one run. It is returned even when the run aborts.
type Report struct {
	RunID        uuid.UUID `json:"run_id"`
	Reference    string    `json:"reference"`
	CanonicalURL string    `json:"canonical_url,omitempty"`
	Account      *Account  `json:"account,omitempty"`
	State        State     `json:"state"`
	Outcomes     []Outcome `json:"outcomes"`
	// ListingErr is the error that ended pagination early, if any
	ListingErr string `json:"listing_error,omitempty"`
	// Err is the error that aborted the run, if any
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewReport starts a report for reference
func NewReport(reference string) *Report {
	return &Report{
		RunID:     uuid.New(),
		Reference: reference,
		State:     StateResolving,
		Outcomes:  []Outcome{},
		StartedAt: time.Now(),
	}
}

// Add appends an outcome
func (r *Report) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Counts tallies the outcomes
func (r *Report) Counts() Counts {
	c := Counts{Total: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusSuccess:
			c.Success++
		case StatusFailed:
			c.Failed++
		case StatusSkipped:
			c.Skipped++
		}
	}
	return c
}

// Duration is the wall time of the run
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Aborted reports whether the run ended before pagination
func (r *Report) Aborted() bool {
	return r.State == StateAborted
}
