// Package credentials persists agent cookies between runs so a fresh agent
// can resume an authenticated session without manual sign-in.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fieldworks/postwatch/internal/crawl"
)

// FileStore keeps the cookie set in one JSON file. Writes go through a temp
// file and rename so a crash never leaves a truncated store.
type FileStore struct {
	path string
}

// NewFileStore builds a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Save atomically replaces the persisted cookie set. The file is written
// with owner-only permissions since cookies are live credentials.
func (s *FileStore) Save(cookies []crawl.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp credentials file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp credentials file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}

// Load returns the persisted cookie set. A missing or empty store returns
// crawl.ErrNoCredentials, routing the caller to manual sign-in.
func (s *FileStore) Load() ([]crawl.Cookie, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, crawl.ErrNoCredentials
		}
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	var cookies []crawl.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("decode credentials file: %w", err)
	}
	if len(cookies) == 0 {
		return nil, crawl.ErrNoCredentials
	}
	return cookies, nil
}
