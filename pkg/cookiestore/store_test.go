package cookiestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dyscraper/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func sampleCookies() []Cookie {
	return []Cookie{
		{Name: "ttwid", Value: "1%7Cabc", Domain: ".douyin.com", Path: "/", Expires: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), HttpOnly: true},
		{Name: "msToken", Value: "tok", Domain: "www.douyin.com", Path: "/", HostOnly: true, Secure: true},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "cookies.json")
	store := NewFileStore(path)

	cookies, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cookies)

	require.NoError(t, store.Save(sampleCookies()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, sampleCookies(), loaded)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "cookies.json"))
	require.NoError(t, store.Save(sampleCookies()))
	require.NoError(t, store.Save(nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cookies.json", entries[0].Name())
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	_, err := NewFileStore(path).Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.enc")

	_, err := NewEncryptedFileStore(path, "")
	require.Error(t, err)

	store, err := NewEncryptedFileStore(path, "correct horse")
	require.NoError(t, err)
	require.NoError(t, store.Save(sampleCookies()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "ttwid")

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleCookies(), loaded)

	wrong, err := NewEncryptedFileStore(path, "battery staple")
	require.NoError(t, err)
	_, err = wrong.Load()
	assert.Error(t, err)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	store := NewKeyringStore("")

	cookies, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cookies)

	require.NoError(t, store.Save(sampleCookies()))
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleCookies(), loaded)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore(".douyin.com")
	store.getenv = func(string) string { return "ttwid=abc; odin_tt=xyz" }

	cookies, err := store.Load()
	require.NoError(t, err)
	require.Len(t, cookies, 2)
	assert.Equal(t, "ttwid", cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.Equal(t, ".douyin.com", cookies[0].Domain)
	assert.Equal(t, "/", cookies[0].Path)

	assert.ErrorIs(t, store.Save(cookies), ErrStoreUnavailable)

	store.getenv = func(string) string { return "" }
	cookies, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, cookies)
}

func TestChainFallsBack(t *testing.T) {
	empty := NewMemoryStore()
	seeded := NewMemoryStore(sampleCookies()...)
	broken := NewMemoryStore()
	broken.LoadError = errors.New("disk on fire")
	broken.SaveError = errors.New("disk on fire")

	chain := Chain{broken, empty, seeded}
	loaded, err := chain.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	require.NoError(t, chain.Save(sampleCookies()[:1]))
	assert.Equal(t, 1, empty.Saves())
	assert.Equal(t, 0, seeded.Saves())
	assert.Equal(t, "memory,memory,memory", chain.Name())
}

func TestChainAllEmptyReportsErrors(t *testing.T) {
	broken := NewMemoryStore()
	broken.LoadError = errors.New("unreadable")

	loaded, err := Chain{broken, NewMemoryStore()}.Load()
	assert.Nil(t, loaded)
	assert.ErrorContains(t, err, "unreadable")

	loaded, err = Chain{NewMemoryStore()}.Load()
	assert.Nil(t, loaded)
	assert.NoError(t, err)
}

func TestChainClearSkipsReadOnly(t *testing.T) {
	mem := NewMemoryStore(sampleCookies()...)
	env := NewEnvironmentStore(".douyin.com")

	require.NoError(t, Chain{mem, env}.Clear())
	loaded, _ := mem.Load()
	assert.Nil(t, loaded)

	assert.ErrorIs(t, Chain{env}.Clear(), ErrStoreUnavailable)
}

func TestNewFactory(t *testing.T) {
	dir := t.TempDir()

	store, err := New(config.SessionConfig{CookieStore: "file", CookieFile: filepath.Join(dir, "c.json")}, ".douyin.com")
	require.NoError(t, err)
	assert.Equal(t, "file,environment", store.Name())

	_, err = New(config.SessionConfig{CookieStore: "encrypted", CookieFile: filepath.Join(dir, "c.enc")}, ".douyin.com")
	if os.Getenv(EnvPassphrase) == "" {
		assert.Error(t, err)
	}

	store, err = New(config.SessionConfig{CookieStore: "memory"}, ".douyin.com")
	require.NoError(t, err)
	assert.Equal(t, "memory,environment", store.Name())

	_, err = New(config.SessionConfig{CookieStore: "s3"}, ".douyin.com")
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********", Mask("short"))
	assert.Equal(t, "abcd...wxyz", Mask("abcdefghijklmnopqrstuvwxyz"))
}
