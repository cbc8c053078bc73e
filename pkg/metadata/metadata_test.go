package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dyscraper/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() (*models.Report, []models.ContentItem) {
	r := models.NewReport("https://v.site/abc/")
	r.CanonicalURL = "https://site/user/ABC"
	r.Account = &models.Account{ID: "42", DisplayName: "Creator", Verified: true, Source: "render-data"}
	r.FinishedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.Add(models.Outcome{ItemID: "1", Title: "one", Status: models.StatusSuccess, Path: "/out/Creator/one_1.mp4", Bytes: 10})
	r.Add(models.Outcome{ItemID: "2", Title: "two", Status: models.StatusFailed, Error: "asset returned status 403 (bad_status)"})

	items := []models.ContentItem{
		{ID: "1", Title: "one", PlayURL: "https://cdn/1", CreatedAt: 1700000000, Stats: models.Stats{Likes: 3}},
		{ID: "2", Title: "two", PlayURL: "https://cdn/2"},
		{ID: "3", Title: "never attempted"},
	}
	return r, items
}

func TestBuild(t *testing.T) {
	r, items := sampleReport()
	m := Build(r, items)

	assert.Equal(t, Version, m.Version)
	assert.Equal(t, r.RunID.String(), m.RunID)
	assert.Equal(t, "Creator", m.Account.DisplayName)
	assert.Equal(t, models.Counts{Total: 2, Success: 1, Failed: 1}, m.Counts)
	require.Len(t, m.Items, 2)

	assert.Equal(t, "one_1.mp4", m.Items[0].File)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), m.Items[0].CreatedAt)
	assert.EqualValues(t, 3, m.Items[0].Stats.Likes)
	assert.Equal(t, r.FinishedAt, m.Items[0].RecordedAt)

	assert.Equal(t, models.StatusFailed, m.Items[1].Status)
	assert.Empty(t, m.Items[1].File)
	assert.NotEmpty(t, m.Items[1].Error)
	assert.True(t, m.Items[1].CreatedAt.IsZero())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Exists(dir))

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Nil(t, m)

	r, items := sampleReport()
	built := Build(r, items)
	require.NoError(t, built.Save(dir))
	assert.True(t, Exists(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, built, loaded)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0644))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	prev := &Manifest{
		Account: models.Account{ID: "42", DisplayName: "Creator", FollowerCount: 9, Verified: true, Source: "render-data"},
		Items: []ItemRecord{
			{ID: "1", Status: models.StatusFailed, Error: "old failure"},
			{ID: "9", Status: models.StatusSuccess, File: "old_9.mp4"},
		},
	}
	cur := &Manifest{
		Account: models.Account{ID: "42", Degraded: true, Source: "url-only"},
		Items: []ItemRecord{
			{ID: "1", Status: models.StatusSuccess, File: "one_1.mp4"},
		},
	}

	cur.Merge(prev)
	require.Len(t, cur.Items, 2)
	assert.Equal(t, models.StatusSuccess, cur.Items[0].Status)
	assert.Equal(t, "9", cur.Items[1].ID)
	assert.Equal(t, models.Counts{Total: 2, Success: 2}, cur.Counts)

	assert.Equal(t, "Creator", cur.Account.DisplayName)
	assert.EqualValues(t, 9, cur.Account.FollowerCount)
	assert.Equal(t, "url-only", cur.Account.Source)

	cur.Merge(nil)
	assert.Len(t, cur.Items, 2)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", Shorten("short", 10))
	assert.Equal(t, "multi line title", Shorten("multi\nline   title", 0))
	assert.Equal(t, "абвгд...", Shorten("абвгдежзий", 8))
	assert.Equal(t, "ab", Shorten("abcdef", 2))
	assert.Equal(t, "one", ItemRecord{Title: "one"}.ShortTitle(10))
}
