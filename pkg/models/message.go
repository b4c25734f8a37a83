// Package models defines the value records that flow through the digest
// pipeline: normalized messages, threads, evidence chunks, extracted
// actions, and the digest envelope itself. Records are immutable after the
// stage that produces them; mutation happens only by replacement.
package models

import "time"

// Importance is the sender-declared importance of a message.
type Importance string

// Importance levels as reported by the mailbox.
const (
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
)

// Message is one email after normalization. Created by the normalize stage
// from a raw driver record; immutable afterwards.
type Message struct {
	// MessageID is the stable message identity: internet-message-id when
	// present (lower-cased, angle brackets stripped), otherwise the mailbox
	// item id.
	MessageID string `json:"message_id"`

	// ConversationID is the mailbox-reported conversation id, normalized.
	// May be empty when the mailbox does not thread.
	ConversationID string `json:"conversation_id"`

	// ReceivedAt is always timezone-aware, expressed in the mailbox timezone.
	ReceivedAt time.Time `json:"received_at"`

	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`

	ToEmails []string `json:"to_emails"`
	CcEmails []string `json:"cc_emails"`

	// Subject is the original subject line, untouched.
	Subject string `json:"subject"`

	// BodyNormalized is plain text: no HTML tags, no zero-width characters,
	// no tracking pixels. Capped at MaxBodyBytes; truncation is marked with
	// the TruncationSentinel and the Truncated flag.
	BodyNormalized string `json:"body_normalized"`
	Truncated      bool   `json:"truncated,omitempty"`

	Importance      Importance `json:"importance"`
	IsFlagged       bool       `json:"is_flagged"`
	HasAttachments  bool       `json:"has_attachments"`
	AttachmentTypes []string   `json:"attachment_types,omitempty"`

	// InReplyTo and References come from the message headers and drive
	// reply-chain threading.
	InReplyTo  string   `json:"in_reply_to,omitempty"`
	References []string `json:"references,omitempty"`

	// BodyChecksum is the SHA-256 of BodyNormalized, hex-encoded. Messages
	// sharing a checksum are duplicates and collapse into one primary.
	BodyChecksum string `json:"body_checksum"`
}

// TruncationSentinel marks a body cut at MaxBodyBytes.
const TruncationSentinel = "[TRUNCATED]"

// MaxBodyBytes is the normalized body size cap (200 KiB).
const MaxBodyBytes = 200 * 1024

// Addressed reports whether any of the given aliases appears in the To list.
func (m *Message) Addressed(aliases []string) bool {
	return containsAny(m.ToEmails, aliases)
}

// Copied reports whether any of the given aliases appears in the Cc list.
func (m *Message) Copied(aliases []string) bool {
	return containsAny(m.CcEmails, aliases)
}

func containsAny(haystack, needles []string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if equalFold(h, n) {
				return true
			}
		}
	}
	return false
}

// equalFold is an ASCII-only case-insensitive compare; email addresses are
// compared case-insensitively throughout the pipeline.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
