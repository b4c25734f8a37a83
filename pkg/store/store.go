// Package store persists digest outputs: the JSON envelope and markdown
// view on disk with a rebuild window, per-folder fetch watermarks, a
// retention sweeper, and optional Postgres run history.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Store writes and reads digest outputs under one directory.
type Store struct {
	dir           string
	rebuildWindow time.Duration
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string, rebuildWindow time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Store{dir: dir, rebuildWindow: rebuildWindow}, nil
}

// JSONPath returns the envelope path for a digest date.
func (s *Store) JSONPath(digestDate string) string {
	return filepath.Join(s.dir, "digest-"+digestDate+".json")
}

// MarkdownPath returns the rendered-view path for a digest date.
func (s *Store) MarkdownPath(digestDate string) string {
	return filepath.Join(s.dir, "digest-"+digestDate+".md")
}

// Existing returns the raw envelope bytes for a digest date when a rerun
// should reuse them: the file exists and was written within the rebuild
// window. force bypasses the window.
func (s *Store) Existing(digestDate string, now time.Time, force bool) ([]byte, bool) {
	if force {
		return nil, false
	}
	path := s.JSONPath(digestDate)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if now.Sub(info.ModTime()) > s.rebuildWindow {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("existing digest unreadable, rebuilding", "path", path, "error", err)
		return nil, false
	}
	return data, true
}

// Save writes the envelope and the markdown view. Both writes go through
// a temp file and rename so a crash never leaves a half-written digest.
func (s *Store) Save(digest []byte, rendered string, digestDate string) error {
	if err := writeAtomic(s.JSONPath(digestDate), digest); err != nil {
		return fmt.Errorf("write digest json: %w", err)
	}
	if err := writeAtomic(s.MarkdownPath(digestDate), []byte(rendered)); err != nil {
		return fmt.Errorf("write digest markdown: %w", err)
	}
	return nil
}

// MarshalDigest renders the envelope deterministically: stable key order
// and indentation, so identical digests produce identical bytes.
func MarshalDigest(d any) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal digest: %w", err)
	}
	return append(data, '\n'), nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-digest-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Sweep removes digest outputs older than outputDays and watermarks older
// than watermarkDays. Missing directories are fine; the sweep is
// idempotent.
func (s *Store) Sweep(now time.Time, outputDays, watermarkDays int) (removed int, err error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read output dir: %w", err)
	}

	outputCutoff := now.AddDate(0, 0, -outputDays)
	watermarkCutoff := now.AddDate(0, 0, -watermarkDays)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var cutoff time.Time
		switch {
		case isDigestFile(e.Name()):
			cutoff = outputCutoff
		case isWatermarkFile(e.Name()):
			cutoff = watermarkCutoff
		default:
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				slog.Warn("retention sweep failed to remove file", "file", e.Name(), "error", err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

func isDigestFile(name string) bool {
	return len(name) > len("digest-") && name[:len("digest-")] == "digest-" &&
		(filepath.Ext(name) == ".json" || filepath.Ext(name) == ".md")
}

func isWatermarkFile(name string) bool {
	return len(name) > len("watermark-") && name[:len("watermark-")] == "watermark-" &&
		filepath.Ext(name) == ".txt"
}
