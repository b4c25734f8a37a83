// Package mailbox defines the mailbox driver contract and the drivers that
// satisfy it. The driver owns authentication, paging, and transient retries;
// the core consumes a flat sequence of raw records for a date window.
package mailbox

import (
	"context"
	"errors"
	"time"
)

// ErrAuth is returned when the mailbox rejects credentials (401/403).
// Fatal: the run terminates without retries.
var ErrAuth = errors.New("mailbox authentication failed")

// Window is the fetch date window, half-open [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Address is one sender or recipient identity.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Record is one raw message as exposed by the driver, before normalization.
type Record struct {
	// ItemID is the mailbox item id, always present.
	ItemID string `json:"item_id"`

	// InternetMessageID is the RFC 5322 message id when the mailbox exposes
	// it; preferred over ItemID as the stable identity.
	InternetMessageID string `json:"internet_message_id,omitempty"`

	ConversationID string `json:"conversation_id,omitempty"`

	ReceivedAt time.Time `json:"received_at"`

	// TimezoneKnown is false when the mailbox reported a naive instant; the
	// normalize stage then applies the tz policy.
	TimezoneKnown bool `json:"timezone_known"`

	From Address   `json:"from"`
	To   []Address `json:"to,omitempty"`
	Cc   []Address `json:"cc,omitempty"`

	Subject string `json:"subject"`

	// BodyHTML and BodyText are the raw bodies; either may be empty.
	BodyHTML string `json:"body_html,omitempty"`
	BodyText string `json:"body_text,omitempty"`

	Importance string `json:"importance,omitempty"`
	IsFlagged  bool   `json:"is_flagged,omitempty"`

	// Headers carries the subset of transport headers the core inspects
	// (Auto-Submitted, X-Autoreply, Precedence, ...), lower-cased keys.
	Headers map[string]string `json:"headers,omitempty"`

	InReplyTo  string   `json:"in_reply_to,omitempty"`
	References []string `json:"references,omitempty"`

	// Attachments are file names only; contents are never fetched.
	Attachments []string `json:"attachments,omitempty"`
}

// Fetcher is the driver contract: retrieve raw records for a window.
type Fetcher interface {
	Fetch(ctx context.Context, window Window, folders []string) ([]Record, error)
}
