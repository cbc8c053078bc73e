package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"dyscraper/pkg/config"
	"dyscraper/pkg/models"
)

const (
	// DefaultTitleMaxLength caps the title part of a filename, in runes
	DefaultTitleMaxLength = 50

	// maxDirNameLength caps account directory names, in runes
	maxDirNameLength = 80

	// LockFileName marks an account directory as in use by a run
	LockFileName = ".dyscraper.lock"

	// PartialSuffix is appended to files still being written
	PartialSuffix = ".part"

	// Placeholder replaces characters that are not allowed in filenames
	Placeholder = "_"
)

// ErrLocked is returned when another run holds an account directory
var ErrLocked = errors.New("account directory is locked by another run")

// Manager lays out downloads on disk: one directory per account, one file
// per content item
type Manager struct {
	baseDir  string
	titleMax int
	ext      string

	mu    sync.RWMutex
	known map[string]string
}

// NewManager creates a storage manager rooted at the configured output
// directory
func NewManager(output config.OutputConfig, download config.DownloadConfig) (*Manager, error) {
	if output.BaseDirectory == "" {
		return nil, errors.New("output directory is required")
	}
	if err := os.MkdirAll(output.BaseDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	titleMax := output.TitleMaxLength
	if titleMax <= 0 {
		titleMax = DefaultTitleMaxLength
	}
	ext := strings.TrimPrefix(download.Extension, ".")
	if ext == "" {
		ext = "mp4"
	}

	return &Manager{
		baseDir:  output.BaseDirectory,
		titleMax: titleMax,
		ext:      ext,
		known:    make(map[string]string),
	}, nil
}

// BaseDir returns the output root
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// AccountDir returns the directory for an account, creating it. It is named
// after the display name, or the account id when the name is unknown.
func (m *Manager) AccountDir(acct *models.Account) (string, error) {
	if acct == nil || acct.ID == "" {
		return "", errors.New("account id is required")
	}
	dir := filepath.Join(m.baseDir, DirName(acct.DisplayName, acct.ID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create account directory: %w", err)
	}
	return dir, nil
}

// PathFor returns the destination of item inside dir
func (m *Manager) PathFor(dir string, item models.ContentItem) string {
	return filepath.Join(dir, SanitizeFilename(item.Title, item.ID, m.ext, m.titleMax))
}

// Exists reports whether a complete file is present at path. Downloads are
// renamed into place only once verified, so presence means complete.
func (m *Manager) Exists(path string) bool {
	m.mu.RLock()
	_, ok := m.known[path]
	m.mu.RUnlock()
	if ok {
		return true
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	m.MarkDownloaded(path)
	return true
}

// MarkDownloaded records path as complete
func (m *Manager) MarkDownloaded(path string) {
	m.mu.Lock()
	m.known[path] = filepath.Base(path)
	m.mu.Unlock()
}

// DownloadedCount returns how many complete files have been seen
func (m *Manager) DownloadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.known)
}

// ScanExisting maps item ids to the completed files already in dir
func (m *Manager) ScanExisting(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	suffix := "." + m.ext
	found := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		stem := strings.TrimSuffix(name, suffix)
		id := stem
		if i := strings.LastIndex(stem, "_"); i >= 0 {
			id = stem[i+1:]
		}
		if id == "" {
			continue
		}
		path := filepath.Join(dir, name)
		found[id] = path
		m.MarkDownloaded(path)
	}
	return found, nil
}

// RemovePartials deletes leftover partial files in dir and returns how many
// were removed
func (m *Manager) RemovePartials(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+PartialSuffix))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Lock is an exclusive claim on an account directory
type Lock struct {
	path string
	once sync.Once
}

// Lock claims dir for one run. A second claim fails with ErrLocked until the
// first is released.
func (m *Manager) Lock(dir, owner string) (*Lock, error) {
	path := filepath.Join(dir, LockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	fmt.Fprintf(f, "pid=%d\nowner=%s\nacquired=%s\n", os.Getpid(), owner, time.Now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return &Lock{path: path}, nil
}

// Path returns the lock file location
func (l *Lock) Path() string { return l.path }

// Release removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	var err error
	l.once.Do(func() {
		if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
	})
	return err
}

// SanitizeFilename builds "{title}_{id}.{ext}". The title is cut to max
// runes before illegal and control characters become "_". An empty title
// yields "{id}.{ext}".
func SanitizeFilename(title, id, ext string, max int) string {
	if max <= 0 {
		max = DefaultTitleMaxLength
	}
	ext = strings.TrimPrefix(ext, ".")
	id = sanitize(id)

	t := strings.TrimSpace(title)
	t = truncateRunes(t, max)
	t = strings.TrimRight(sanitize(t), " .")

	name := id
	if t != "" {
		name = t + "_" + id
	}
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// DirName returns a safe directory name for an account
func DirName(displayName, id string) string {
	name := strings.TrimSpace(displayName)
	name = strings.Trim(sanitize(truncateRunes(name, maxDirNameLength)), " .")
	if name == "" || strings.Trim(name, Placeholder) == "" {
		name = sanitize(id)
	}
	return name
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			b.WriteString(Placeholder)
		case strings.ContainsRune(`\/:*?"<>|`, r):
			b.WriteString(Placeholder)
		case unicode.IsControl(r):
			b.WriteString(Placeholder)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
