package models

import "time"

// ActionKind classifies a rule-extracted candidate.
type ActionKind string

// Candidate kinds emitted by the rule-based extractor.
const (
	KindAction   ActionKind = "action"
	KindQuestion ActionKind = "question"
	KindMention  ActionKind = "mention"
)

// ExtractedAction is a candidate item discovered by language rules,
// independent of anything the language model produces.
type ExtractedAction struct {
	Kind ActionKind `json:"kind"`

	// Who is the identity the item is addressed to. For "my actions" this
	// is the digest user.
	Who string `json:"who"`

	// Verb is the trigger verb or phrase that fired.
	Verb string `json:"verb"`

	// Text is the sentence-sized span, capped near 500 characters.
	Text string `json:"text"`

	// Deadline is the normalized deadline in the mailbox timezone, nil when
	// no deadline expression was found.
	Deadline *time.Time `json:"deadline,omitempty"`

	// Confidence is the logistic score over the rule features, in [0,1].
	Confidence float64 `json:"confidence"`

	EvidenceID string     `json:"evidence_id"`
	MessageID  string     `json:"message_id"`
	Citations  []Citation `json:"citations,omitempty"`
}
