// Package checkpoint durably persists per-target record lists. The
// controller checkpoints after every extracted page, so a crash or abandoned
// target loses at most the page in flight.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/fieldworks/postwatch/internal/crawl"
)

// Store writes one JSON file per target under a run directory, plus an
// optional run summary. Every write is temp-file-then-rename; readers never
// observe a partially written checkpoint.
type Store struct {
	dir string
}

// NewStore builds a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the checkpoint directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the checkpoint file path for a target.
func (s *Store) Path(target string) string {
	return filepath.Join(s.dir, SafeName(target)+".json")
}

// Persist atomically replaces the target's checkpoint with records.
func (s *Store) Persist(target string, records []crawl.Record) error {
	if records == nil {
		records = []crawl.Record{}
	}
	return s.writeJSON(s.Path(target), records)
}

// Load returns the persisted records for a target. A missing checkpoint
// returns an empty slice, not an error.
func (s *Store) Load(target string) ([]crawl.Record, error) {
	data, err := os.ReadFile(s.Path(target))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var records []crawl.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return records, nil
}

// WriteSummary atomically writes the run summary document.
func (s *Store) WriteSummary(summary any) error {
	return s.writeJSON(filepath.Join(s.dir, "summary.json"), summary)
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// SafeName turns a target name into a filesystem-safe file stem: lowercase,
// with every non-alphanumeric run collapsed to one underscore.
func SafeName(target string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(target)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	name := strings.TrimSuffix(b.String(), "_")
	if name == "" {
		return "target"
	}
	return name
}
