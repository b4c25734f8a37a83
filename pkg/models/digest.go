package models

// SchemaVersion is the digest envelope schema marked on every output.
const SchemaVersion = "3.0"

// Confidence is the model- or rule-assigned confidence of a digest item.
type Confidence string

// Item confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// DueLabel marks items due within the 48-hour horizon of the digest date.
type DueLabel string

// Due labels. Empty means outside the horizon.
const (
	DueToday    DueLabel = "today"
	DueTomorrow DueLabel = "tomorrow"
	DueNone     DueLabel = ""
)

// Item is the capability set shared by all digest item variants. Rendering
// and citation validation work through this interface instead of switching
// on concrete types.
type Item interface {
	// AsTitle returns the item's one-line title.
	AsTitle() string
	// AsCitationTargets returns the citations backing the item.
	AsCitationTargets() []Citation
	// AsRenderedLine returns the short human-readable form of the item.
	AsRenderedLine() string
}

// ItemCore carries the fields common to every digest item variant.
type ItemCore struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Quote is an extractive span from evidence, at least 10 characters.
	Quote string `json:"quote"`

	// Owners and Participants are plain strings; no masking is applied.
	Owners       []string `json:"owners,omitempty"`
	Participants []string `json:"participants,omitempty"`

	// DueDate is an ISO date (YYYY-MM-DD); DueDateNormalized is an ISO
	// datetime carrying the mailbox timezone offset. Both optional.
	DueDate           string   `json:"due_date,omitempty"`
	DueDateNormalized string   `json:"due_date_normalized,omitempty"`
	DueDateLabel      DueLabel `json:"due_date_label,omitempty"`

	Confidence   Confidence `json:"confidence"`
	EmailSubject string     `json:"email_subject,omitempty"`
	RankScore    float64    `json:"rank_score"`

	EvidenceID string     `json:"evidence_id"`
	Citations  []Citation `json:"citations"`
}

// AsTitle implements Item.
func (c *ItemCore) AsTitle() string { return c.Title }

// AsCitationTargets implements Item.
func (c *ItemCore) AsCitationTargets() []Citation { return c.Citations }

// ActionItem is a digest item asking someone to do something.
type ActionItem struct {
	ItemCore
	// Mine is true when the action is addressed to the digest user.
	Mine bool `json:"mine,omitempty"`
}

// DeadlineItem is a dated commitment or meeting.
type DeadlineItem struct {
	ItemCore
}

// RiskItem is a risk or blocker surfaced in the mail.
type RiskItem struct {
	ItemCore
}

// FYIItem is informational; no action expected.
type FYIItem struct {
	ItemCore
}

// Sections are the five typed digest sections.
type Sections struct {
	MyActions         []ActionItem   `json:"my_actions"`
	OthersActions     []ActionItem   `json:"others_actions"`
	DeadlinesMeetings []DeadlineItem `json:"deadlines_meetings"`
	RisksBlockers     []RiskItem     `json:"risks_blockers"`
	FYI               []FYIItem      `json:"fyi"`
}

// Empty reports whether no section carries any item.
func (s *Sections) Empty() bool {
	return len(s.MyActions) == 0 && len(s.OthersActions) == 0 &&
		len(s.DeadlinesMeetings) == 0 && len(s.RisksBlockers) == 0 && len(s.FYI) == 0
}

// ItemCount returns the total number of items across sections.
func (s *Sections) ItemCount() int {
	return len(s.MyActions) + len(s.OthersActions) +
		len(s.DeadlinesMeetings) + len(s.RisksBlockers) + len(s.FYI)
}

// Digest is the envelope written to disk for one (user, date) pair.
type Digest struct {
	SchemaVersion string `json:"schema_version"`
	PromptVersion string `json:"prompt_version"`

	// DigestDate is the covered date, YYYY-MM-DD.
	DigestDate string `json:"digest_date"`

	TraceID  string `json:"trace_id"`
	Timezone string `json:"timezone"`

	Sections Sections `json:"sections"`

	// RenderedSummary is the optional short human-readable view, also
	// written separately as the markdown document.
	RenderedSummary string `json:"rendered_summary,omitempty"`

	TotalMessagesProcessed int `json:"total_messages_processed"`
	MessagesWithActions    int `json:"messages_with_actions"`

	// Partial is set when any degrade path fired; DegradeReason names the
	// strongest reason.
	Partial       bool   `json:"partial"`
	DegradeReason string `json:"degrade_reason,omitempty"`
}

// AllItems returns every item in the envelope through the Item capability
// set, in section order.
func (d *Digest) AllItems() []Item {
	items := make([]Item, 0, d.Sections.ItemCount())
	for i := range d.Sections.MyActions {
		items = append(items, &d.Sections.MyActions[i])
	}
	for i := range d.Sections.OthersActions {
		items = append(items, &d.Sections.OthersActions[i])
	}
	for i := range d.Sections.DeadlinesMeetings {
		items = append(items, &d.Sections.DeadlinesMeetings[i])
	}
	for i := range d.Sections.RisksBlockers {
		items = append(items, &d.Sections.RisksBlockers[i])
	}
	for i := range d.Sections.FYI {
		items = append(items, &d.Sections.FYI[i])
	}
	return items
}
