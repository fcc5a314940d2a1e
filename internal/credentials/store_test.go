package credentials

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldworks/postwatch/internal/crawl"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cookies.json"))

	cookies := []crawl.Cookie{
		{Name: "li_at", Value: "token", Domain: ".example.com", Path: "/", Secure: true, HTTPOnly: true},
		{Name: "JSESSIONID", Value: "abc", Domain: ".example.com"},
	}
	require.NoError(t, store.Save(cookies))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, cookies, loaded)
}

func TestLoadMissingFileReturnsNoCredentials(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	_, err := store.Load()
	require.ErrorIs(t, err, crawl.ErrNoCredentials)
}

func TestLoadEmptySetReturnsNoCredentials(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, store.Save(nil))
	_, err := store.Load()
	require.ErrorIs(t, err, crawl.ErrNoCredentials)
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)
	require.NotErrorIs(t, err, crawl.ErrNoCredentials)
}

func TestSaveCreatesParentDirAndRestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "cookies.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save([]crawl.Cookie{{Name: "li_at", Value: "t"}}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}
