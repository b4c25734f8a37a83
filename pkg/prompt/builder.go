// Package prompt builds the language-model prompts: flat digest, per-thread
// summary, final aggregation, and the schema-repair retry. Prompt text is
// versioned; the version is stamped on every digest envelope.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/inboxly/maildigest/pkg/models"
)

// ChunkContext pairs an evidence chunk with its message metadata for
// prompt headers.
type ChunkContext struct {
	Chunk models.Chunk
	Msg   *models.Message

	AddressedToMe bool
}

// Builder constructs prompts. Stateless; all methods are safe for
// concurrent use.
type Builder struct {
	version   string
	userEmail string
}

// NewBuilder creates a Builder. Panics on empty inputs: a builder without
// an identity or version is a programming error, not a runtime condition.
func NewBuilder(version, userEmail string) *Builder {
	if version == "" {
		panic("prompt: empty version")
	}
	if userEmail == "" {
		panic("prompt: empty user email")
	}
	return &Builder{version: version, userEmail: userEmail}
}

// Version returns the prompt version string.
func (b *Builder) Version() string { return b.version }

// digestSchema is the output contract shared by the flat and final prompts.
const digestSchema = `Respond with a single JSON object and nothing before it:
{
  "my_actions": [...], "others_actions": [...],
  "deadlines_meetings": [...], "risks_blockers": [...], "fyi": [...]
}
Every item must have:
- "title": short imperative title
- "quote": verbatim quote from the evidence, at least 10 characters
- "evidence_id": the id of the supporting evidence chunk
- "confidence": one of "high", "medium", "low"
Optional fields: "description", "owners", "participants", "due_date"
(YYYY-MM-DD), "due_date_normalized" (ISO-8601 with timezone offset).
Never invent evidence ids and never paraphrase quotes.
You may append a short prose summary after the JSON object.`

// Flat builds the single-call prompt over the selected evidence.
func (b *Builder) Flat(digestDate, timezone string, chunks []ChunkContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are building a daily email digest for %s (date %s, timezone %s).\n",
		b.userEmail, digestDate, timezone)
	sb.WriteString("Classify the evidence below into actions addressed to the user, actions for others, deadlines and meetings, risks and blockers, and FYI items.\n\n")
	sb.WriteString(digestSchema)
	sb.WriteString("\n\n=== EVIDENCE ===\n")
	for _, cc := range chunks {
		sb.WriteString(b.chunkHeader(cc))
		sb.WriteString(cc.Chunk.Content)
		sb.WriteString("\n---\n")
	}
	return sb.String()
}

// PerThread builds the per-thread summarization prompt of hierarchical mode.
func (b *Builder) PerThread(subject string, chunks []ChunkContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize one email thread (subject: %q) for %s.\n", subject, b.userEmail)
	sb.WriteString(`Respond with a single JSON object:
{
  "title": "thread title, at most 90 tokens",
  "key_citations": [{"evidence_id": "...", "snippet": "verbatim, at most 150 chars"}],
  "pending_actions": [{"title": "...", "evidence_id": "...", "quote": "verbatim, at least 10 chars"}],
  "deadlines": [{"title": "...", "evidence_id": "...", "quote": "...", "due_date": "YYYY-MM-DD"}],
  "open_questions": [{"title": "...", "evidence_id": "...", "quote": "..."}]
}
Use 3 to 5 key citations. Quotes must be verbatim spans of the evidence.
`)
	sb.WriteString("\n=== THREAD EVIDENCE ===\n")
	for _, cc := range chunks {
		sb.WriteString(b.chunkHeader(cc))
		sb.WriteString(cc.Chunk.Content)
		sb.WriteString("\n---\n")
	}
	return sb.String()
}

// Final builds the aggregation prompt over per-thread summaries and the raw
// chunks of bypassed small threads.
func (b *Builder) Final(digestDate, timezone string, sections []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are building a daily email digest for %s (date %s, timezone %s) from pre-summarized threads.\n\n",
		b.userEmail, digestDate, timezone)
	sb.WriteString(digestSchema)
	sb.WriteString("\n\n=== THREAD SUMMARIES ===\n")
	for _, s := range sections {
		sb.WriteString(s)
		sb.WriteString("\n---\n")
	}
	return sb.String()
}

// Repair builds the one-shot retry prompt after a schema failure.
func (b *Builder) Repair(original, response string, schemaErr error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your previous response failed validation: %v\n", schemaErr)
	sb.WriteString("Return ONLY the corrected JSON object, matching the schema exactly. Do not add commentary before the JSON.\n\n")
	sb.WriteString("=== PREVIOUS RESPONSE ===\n")
	sb.WriteString(response)
	sb.WriteString("\n\n=== ORIGINAL REQUEST ===\n")
	sb.WriteString(original)
	return sb.String()
}

// chunkHeader renders the per-chunk metadata block.
func (b *Builder) chunkHeader(cc ChunkContext) string {
	ch := cc.Chunk
	var sb strings.Builder
	fmt.Fprintf(&sb, "[evidence %s | message %s | thread %s]\n", ch.EvidenceID, ch.MessageID, ch.ThreadID)
	if m := cc.Msg; m != nil {
		fmt.Fprintf(&sb, "from: %s | to: %s | cc: %s\n",
			m.FromEmail, strings.Join(m.ToEmails, ","), strings.Join(m.CcEmails, ","))
		fmt.Fprintf(&sb, "subject: %s | received: %s | importance: %s",
			m.Subject, m.ReceivedAt.Format(time.RFC3339), m.Importance)
		if m.IsFlagged {
			sb.WriteString(" | flagged")
		}
		if m.HasAttachments {
			fmt.Fprintf(&sb, " | attachments: %s", strings.Join(m.AttachmentTypes, ","))
		}
		sb.WriteString("\n")
	}
	if cc.AddressedToMe {
		sb.WriteString("addressed-to-me: yes\n")
	}
	sb.WriteString(signalLine(ch.Signals))
	return sb.String()
}

func signalLine(s models.ChunkSignals) string {
	var tags []string
	if s.HasImperative {
		tags = append(tags, "imperative")
	}
	if s.HasQuestion {
		tags = append(tags, "question")
	}
	if s.HasDeadline {
		tags = append(tags, "deadline")
	}
	if s.MentionsUser {
		tags = append(tags, "mentions-user")
	}
	if s.IsLastUpdate {
		tags = append(tags, "last-update")
	}
	if len(tags) == 0 {
		return ""
	}
	return "signals: " + strings.Join(tags, ",") + "\n"
}
