package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Watermark returns the last successfully fetched instant for a folder.
// Missing or corrupt files return ok=false; the caller falls back to its
// lookback window. A corrupt watermark is never fatal.
func (s *Store) Watermark(folder string) (time.Time, bool) {
	path := s.watermarkPath(folder)
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		slog.Warn("corrupt watermark, falling back to lookback window",
			"folder", folder, "path", path, "error", err)
		return time.Time{}, false
	}
	return t, true
}

// SetWatermark records the last fetched instant for a folder.
func (s *Store) SetWatermark(folder string, t time.Time) error {
	data := []byte(t.Format(time.RFC3339) + "\n")
	if err := writeAtomic(s.watermarkPath(folder), data); err != nil {
		return fmt.Errorf("write watermark for %s: %w", folder, err)
	}
	return nil
}

func (s *Store) watermarkPath(folder string) string {
	return filepath.Join(s.dir, "watermark-"+sanitizeFolder(folder)+".txt")
}

// sanitizeFolder makes a folder name filesystem-safe.
func sanitizeFolder(folder string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(folder) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
