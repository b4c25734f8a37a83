package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxly/maildigest/pkg/config"
	"github.com/inboxly/maildigest/pkg/models"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), 48*time.Hour)
	require.NoError(t, err)
	return s
}

func TestSaveAndExisting(t *testing.T) {
	s := newStore(t)
	d := models.Digest{
		SchemaVersion: models.SchemaVersion,
		DigestDate:    "2024-01-15",
		TraceID:       "trace-1",
	}
	data, err := MarshalDigest(d)
	require.NoError(t, err)
	require.NoError(t, s.Save(data, "# Email digest 2024-01-15\n", "2024-01-15"))

	now := time.Now()
	got, ok := s.Existing("2024-01-15", now, false)
	require.True(t, ok)
	// Rerun within the window reuses the output byte for byte.
	assert.Equal(t, data, got)

	md, err := os.ReadFile(s.MarkdownPath("2024-01-15"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Email digest")
}

func TestExisting_ForceBypasses(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save([]byte(`{}`), "", "2024-01-15"))

	_, ok := s.Existing("2024-01-15", time.Now(), true)
	assert.False(t, ok)
}

func TestExisting_OutsideWindow(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save([]byte(`{}`), "", "2024-01-15"))

	_, ok := s.Existing("2024-01-15", time.Now().Add(72*time.Hour), false)
	assert.False(t, ok)
}

func TestExisting_Missing(t *testing.T) {
	s := newStore(t)
	_, ok := s.Existing("2024-01-15", time.Now(), false)
	assert.False(t, ok)
}

func TestMarshalDigest_Deterministic(t *testing.T) {
	d := models.Digest{DigestDate: "2024-01-15", TraceID: "t"}
	a, err := MarshalDigest(d)
	require.NoError(t, err)
	b, err := MarshalDigest(d)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWatermark_RoundTrip(t *testing.T) {
	s := newStore(t)
	mark := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.SetWatermark("Inbox", mark))

	got, ok := s.Watermark("Inbox")
	require.True(t, ok)
	assert.True(t, mark.Equal(got))
}

func TestWatermark_MissingAndCorrupt(t *testing.T) {
	s := newStore(t)

	_, ok := s.Watermark("Inbox")
	assert.False(t, ok, "missing watermark falls back")

	// Corrupt content is a lookback fallback, never an error.
	path := s.watermarkPath("Inbox")
	require.NoError(t, os.WriteFile(path, []byte("not a timestamp"), 0o644))
	_, ok = s.Watermark("Inbox")
	assert.False(t, ok)
}

func TestSanitizeFolder(t *testing.T) {
	assert.Equal(t, "inbox", sanitizeFolder("Inbox"))
	assert.Equal(t, "sent_items", sanitizeFolder("Sent Items"))
	assert.Equal(t, "in_out", sanitizeFolder("In/Out"))
}

func TestSweep_RemovesOldFiles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save([]byte(`{}`), "old", "2023-11-01"))
	require.NoError(t, s.Save([]byte(`{}`), "new", "2024-01-14"))
	require.NoError(t, s.SetWatermark("Inbox", time.Now()))

	// Age the old digest past the output retention.
	old := time.Now().AddDate(0, 0, -40)
	for _, p := range []string{s.JSONPath("2023-11-01"), s.MarkdownPath("2023-11-01")} {
		require.NoError(t, os.Chtimes(p, old, old))
	}

	removed, err := s.Sweep(time.Now(), 30, 90)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = os.Stat(s.JSONPath("2023-11-01"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.JSONPath("2024-01-14"))
	assert.NoError(t, err)
	_, ok := s.Watermark("Inbox")
	assert.True(t, ok, "fresh watermark survives")
}

func TestSweep_IgnoresForeignFiles(t *testing.T) {
	s := newStore(t)
	foreign := filepath.Join(s.dir, "notes.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0o644))
	old := time.Now().AddDate(0, 0, -365)
	require.NoError(t, os.Chtimes(foreign, old, old))

	removed, err := s.Sweep(time.Now(), 30, 90)
	require.NoError(t, err)
	assert.Zero(t, removed)
	_, err = os.Stat(foreign)
	assert.NoError(t, err)
}

func TestSweeper_StartStop(t *testing.T) {
	s := newStore(t)
	cfg := config.RetentionConfig{OutputDays: 30, WatermarkDays: 90, SweepInterval: time.Hour}
	sw := NewSweeper(cfg, s)

	sw.Start(t.Context())
	sw.Stop()

	// Stop is idempotent and Start after Stop is a no-op guard path.
	sw.Stop()
}
