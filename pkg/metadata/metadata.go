package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"dyscraper/pkg/models"
)

const (
	// FileName is the manifest written into each account directory
	FileName = "metadata.json"

	// Version of the manifest format
	Version = 1
)

// ItemRecord is everything known about one content item after a run
type ItemRecord struct {
	// Core identifiers
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`

	// Upstream addresses
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	PlayURL      string `json:"play_url,omitempty"`

	// Timestamps
	CreatedAt  time.Time `json:"created_at"`
	RecordedAt time.Time `json:"recorded_at"`

	// Engagement
	Stats models.Stats `json:"stats"`

	// Outcome of the latest attempt
	Status models.Status `json:"status"`
	File   string        `json:"file,omitempty"`
	Bytes  int64         `json:"bytes,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Manifest describes an account directory
type Manifest struct {
	Version      int            `json:"version"`
	RunID        string         `json:"run_id"`
	Reference    string         `json:"reference"`
	CanonicalURL string         `json:"canonical_url"`
	Account      models.Account `json:"account"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Counts       models.Counts  `json:"counts"`
	Items        []ItemRecord   `json:"items"`
}

// FromItem combines a listed item with its download outcome
func FromItem(item models.ContentItem, outcome models.Outcome, now time.Time) ItemRecord {
	rec := ItemRecord{
		ID:           item.ID,
		Title:        item.Title,
		ThumbnailURL: item.ThumbnailURL,
		PlayURL:      item.PlayURL,
		RecordedAt:   now,
		Stats:        item.Stats,
		Status:       outcome.Status,
		Bytes:        outcome.Bytes,
		Error:        outcome.Error,
	}
	if item.CreatedAt > 0 {
		rec.CreatedAt = time.Unix(item.CreatedAt, 0).UTC()
	}
	if outcome.Path != "" {
		rec.File = filepath.Base(outcome.Path)
	}
	return rec
}

// Build assembles the manifest of a finished run. items are the listed
// content items in listing order; outcomes are matched to them by id.
func Build(report *models.Report, items []models.ContentItem) *Manifest {
	now := time.Now().UTC()
	if !report.FinishedAt.IsZero() {
		now = report.FinishedAt.UTC()
	}

	byID := make(map[string]models.Outcome, len(report.Outcomes))
	for _, o := range report.Outcomes {
		byID[o.ItemID] = o
	}

	m := &Manifest{
		Version:      Version,
		RunID:        report.RunID.String(),
		Reference:    report.Reference,
		CanonicalURL: report.CanonicalURL,
		UpdatedAt:    now,
		Items:        make([]ItemRecord, 0, len(items)),
	}
	if report.Account != nil {
		m.Account = *report.Account
	}
	for _, item := range items {
		o, ok := byID[item.ID]
		if !ok {
			continue
		}
		m.Items = append(m.Items, FromItem(item, o, now))
	}
	m.recount()
	return m
}

// Merge keeps records from prev for items this run did not see. Records of
// the current run win.
func (m *Manifest) Merge(prev *Manifest) {
	if prev == nil {
		return
	}
	seen := make(map[string]bool, len(m.Items))
	for _, rec := range m.Items {
		seen[rec.ID] = true
	}
	for _, rec := range prev.Items {
		if !seen[rec.ID] {
			m.Items = append(m.Items, rec)
			seen[rec.ID] = true
		}
	}
	if !m.Account.Verified && prev.Account.Verified && prev.Account.ID == m.Account.ID {
		source := m.Account.Source
		m.Account = prev.Account
		m.Account.Source = source
	}
	m.recount()
}

func (m *Manifest) recount() {
	c := models.Counts{Total: len(m.Items)}
	for _, rec := range m.Items {
		switch rec.Status {
		case models.StatusSuccess:
			c.Success++
		case models.StatusFailed:
			c.Failed++
		case models.StatusSkipped:
			c.Skipped++
		}
	}
	m.Counts = c
}

// Save writes the manifest into dir, replacing any previous one atomically
func (m *Manifest) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, FileName)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads the manifest in dir. A missing manifest returns nil, nil.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &m, nil
}

// Exists checks if a manifest exists in dir
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}

// ShortTitle returns the title on one line, cut to max runes for display
func (r ItemRecord) ShortTitle(max int) string {
	return Shorten(r.Title, max)
}

// Shorten flattens s to one line and cuts it to max runes with an ellipsis
func Shorten(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
