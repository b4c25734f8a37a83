package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/inboxly/maildigest/pkg/cleaner"
	"github.com/inboxly/maildigest/pkg/mailbox"
	"github.com/inboxly/maildigest/pkg/metrics"
	"github.com/inboxly/maildigest/pkg/models"
)

// ErrNaiveTimestamp is returned when a record carries no timezone and the
// fail_on_naive policy is active. Fatal for the run.
var ErrNaiveTimestamp = errors.New("received_at has no timezone")

// SkipReason explains why a record produced no Message.
type SkipReason string

// Skip reasons reported on the ingest_skipped counter.
const (
	SkipAutoresponse  SkipReason = "autoresponse"
	SkipMissingFields SkipReason = "missing_fields"
	SkipEmptyBody     SkipReason = "empty_body"
)

// Config controls normalization policy.
type Config struct {
	Location    *time.Location
	FailOnNaive bool

	HTML    HTMLOptions
	Cleaner cleaner.Config
}

// Normalizer converts raw driver records into Messages. Safe for
// concurrent use; all state is configuration.
type Normalizer struct {
	cfg     Config
	cleaner *cleaner.Cleaner
	reg     *metrics.Registry
}

// New creates a Normalizer. reg may be nil (counters discarded).
func New(cfg Config, reg *metrics.Registry) *Normalizer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Normalizer{
		cfg:     cfg,
		cleaner: cleaner.New(cfg.Cleaner),
		reg:     reg,
	}
}

// Normalize converts one raw record. A zero-valued skip reason means the
// message was produced; otherwise the record is dropped for that reason.
// Only the tz-invariant error is returned as err.
func (n *Normalizer) Normalize(rec mailbox.Record) (models.Message, SkipReason, error) {
	if rec.ItemID == "" && rec.InternetMessageID == "" {
		return models.Message{}, SkipMissingFields, nil
	}

	receivedAt, err := n.resolveTimezone(rec)
	if err != nil {
		return models.Message{}, "", err
	}

	body := n.extractBody(rec)
	body = FoldText(body)

	cleaned := n.cleaner.Clean(body, rec.Subject, rec.Headers)
	for typ, chars := range cleaned.RemovedChars() {
		n.reg.Add(metrics.CleanerRemovedCharsTotal, metrics.Labels{"type": string(typ)}, float64(chars))
	}
	if cleaned.IsAutoresponse {
		return models.Message{}, SkipAutoresponse, nil
	}

	text, truncated := truncateBody(cleaned.Text)
	if strings.TrimSpace(text) == "" {
		return models.Message{}, SkipEmptyBody, nil
	}

	sum := sha256.Sum256([]byte(text))

	msg := models.Message{
		MessageID:       normalizeMessageID(rec.InternetMessageID, rec.ItemID),
		ConversationID:  strings.TrimSpace(rec.ConversationID),
		ReceivedAt:      receivedAt,
		FromEmail:       strings.ToLower(rec.From.Email),
		FromName:        rec.From.Name,
		ToEmails:        lowerEmails(rec.To),
		CcEmails:        lowerEmails(rec.Cc),
		Subject:         rec.Subject,
		BodyNormalized:  text,
		Truncated:       truncated,
		Importance:      parseImportance(rec.Importance),
		IsFlagged:       rec.IsFlagged,
		HasAttachments:  len(rec.Attachments) > 0,
		AttachmentTypes: attachmentTypes(rec.Attachments),
		InReplyTo:       normalizeMessageID(rec.InReplyTo, ""),
		References:      normalizeReferences(rec.References),
		BodyChecksum:    hex.EncodeToString(sum[:]),
	}
	return msg, "", nil
}

// extractBody prefers HTML conversion, then the provided plain body, then
// regex tag stripping. Parse failures degrade locally and are counted.
func (n *Normalizer) extractBody(rec mailbox.Record) string {
	if rec.BodyHTML != "" {
		text, err := HTMLToText(rec.BodyHTML, n.cfg.HTML)
		if err == nil {
			return text
		}
		slog.Warn("HTML conversion failed, falling back", "item_id", rec.ItemID, "error", err)
		n.reg.Inc(metrics.CleanerErrorTotal, nil)
		if rec.BodyText != "" {
			return rec.BodyText
		}
		return StripTags(rec.BodyHTML)
	}
	return rec.BodyText
}

func (n *Normalizer) resolveTimezone(rec mailbox.Record) (time.Time, error) {
	if rec.TimezoneKnown {
		return rec.ReceivedAt.In(n.cfg.Location), nil
	}
	if n.cfg.FailOnNaive {
		return time.Time{}, fmt.Errorf("%w: item %s", ErrNaiveTimestamp, rec.ItemID)
	}
	// Assume the clock fields are mailbox-local.
	n.reg.Inc(metrics.TZNaiveTotal, nil)
	t := rec.ReceivedAt
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), n.cfg.Location), nil
}

// truncateBody enforces the 200 KiB cap, cutting at the last paragraph or
// sentence boundary before the limit and appending the sentinel.
func truncateBody(text string) (string, bool) {
	if len(text) <= models.MaxBodyBytes {
		return text, false
	}

	budget := models.MaxBodyBytes - len(models.TruncationSentinel) - 1
	cut := safeTruncate(text, budget)

	if idx := strings.LastIndex(cut, "\n\n"); idx > budget/2 {
		cut = cut[:idx]
	} else if idx := strings.LastIndex(cut, ". "); idx > budget/2 {
		cut = cut[:idx+1]
	}

	return strings.TrimRight(cut, " \t\n") + "\n" + models.TruncationSentinel, true
}

// normalizeMessageID lower-cases and strips angle brackets; fallback is
// used when the preferred id is empty.
func normalizeMessageID(preferred, fallback string) string {
	id := strings.TrimSpace(preferred)
	if id == "" {
		id = strings.TrimSpace(fallback)
	}
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.ToLower(id)
}

func normalizeReferences(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if id := normalizeMessageID(r, ""); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func lowerEmails(addrs []mailbox.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Email != "" {
			out = append(out, strings.ToLower(a.Email))
		}
	}
	return out
}

func parseImportance(s string) models.Importance {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return models.ImportanceHigh
	case "low":
		return models.ImportanceLow
	default:
		return models.ImportanceNormal
	}
}

// attachmentTypes returns the ordered file extensions of attachment names.
func attachmentTypes(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		if ext != "" {
			out = append(out, ext)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
