// Package extract is the rule-based action extractor: per-sentence language
// features aggregated through a fixed-weight logistic score, independent of
// anything the language model produces.
package extract

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/inboxly/maildigest/pkg/models"
)

// Logistic feature weights. Fixed by contract with the evaluation set; the
// only tunable is the confidence threshold.
const (
	wUserMention  = 1.5
	wImperative   = 1.2
	wActionMarker = 1.0
	wQuestion     = 0.8
	wDeadline     = 0.6
	wSenderRank   = 0.5
	bias          = 1.5
)

// maxItemText caps the emitted sentence span.
const maxItemText = 500

// Features is the per-sentence rule feature vector.
type Features struct {
	Mention      bool
	Imperative   bool
	ActionMarker bool
	Question     bool
	Deadline     bool

	// SenderTier is 2 high, 1 normal, 0 low.
	SenderTier int
}

// Score maps a feature vector through the fixed-weight logistic into [0,1].
// Chunk priority scoring uses the same mapping as candidate confidence.
func Score(f Features) float64 {
	score := 0.0
	if f.Mention {
		score += wUserMention
	}
	if f.Imperative {
		score += wImperative
	}
	if f.ActionMarker {
		score += wActionMarker
	}
	if f.Question {
		score += wQuestion
	}
	if f.Deadline {
		score += wDeadline
	}
	score += wSenderRank * float64(f.SenderTier) / 2
	return sigmoid(score - bias)
}

// Extractor scans evidence chunks for action candidates. Stateless and safe
// for concurrent use.
type Extractor struct {
	aliases   []string
	userEmail string
	threshold float64
	loc       *time.Location
}

// New creates an Extractor. aliases should include the user's email, full
// name, and short names; threshold is the minimum confidence for emitting.
func New(userEmail string, aliases []string, threshold float64, loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{
		aliases:   aliases,
		userEmail: strings.ToLower(userEmail),
		threshold: threshold,
		loc:       loc,
	}
}

// sentenceBoundaryPattern splits on terminal punctuation followed by space,
// and on newlines.
var sentenceBoundaryPattern = regexp.MustCompile(`(?:[.!?]+[\s\n]+|\n+)`)

// Sentences splits text into trimmed sentences, keeping terminal "?" so
// question detection still works.
func Sentences(text string) []string {
	bounds := sentenceBoundaryPattern.FindAllStringIndex(text, -1)
	var out []string
	start := 0
	emit := func(end int) {
		s := strings.TrimSpace(text[start:end])
		if s != "" {
			out = append(out, s)
		}
	}
	for _, b := range bounds {
		// Keep the punctuation, drop the separator whitespace.
		end := b[0]
		for end < b[1] && !isSpaceByte(text[end]) {
			end++
		}
		emit(end)
		start = b[1]
	}
	emit(len(text))
	return out
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Extract scans one chunk's sentences and emits candidates scoring at or
// above the threshold. now anchors relative deadline expressions.
func (e *Extractor) Extract(chunk models.Chunk, msg *models.Message, now time.Time) []models.ExtractedAction {
	var out []models.ExtractedAction
	for _, sentence := range Sentences(chunk.Content) {
		verb, imperative := HasImperative(sentence)
		marker, hasMarker := HasActionMarker(sentence)
		question := IsQuestion(sentence)
		mention := MentionsAny(sentence, e.aliases)
		deadline, hasDeadline := FindDeadline(sentence, now, e.loc)

		confidence := Score(Features{
			Mention:      mention,
			Imperative:   imperative,
			ActionMarker: hasMarker,
			Question:     question,
			Deadline:     hasDeadline,
			SenderTier:   chunk.Signals.SenderTier,
		})
		if confidence < e.threshold {
			continue
		}

		item := models.ExtractedAction{
			Kind:       classify(imperative || hasMarker, question, mention),
			Who:        e.resolveWho(msg, mention),
			Verb:       firstNonEmpty(verb, marker),
			Text:       capText(sentence),
			Confidence: confidence,
			EvidenceID: chunk.EvidenceID,
			MessageID:  chunk.MessageID,
		}
		if hasDeadline {
			d := deadline
			item.Deadline = &d
		}
		out = append(out, item)
	}
	return out
}

// classify picks the candidate kind: explicit requests beat questions beat
// bare mentions.
func classify(actionable, question, mention bool) models.ActionKind {
	switch {
	case actionable:
		return models.KindAction
	case question:
		return models.KindQuestion
	case mention:
		return models.KindMention
	default:
		return models.KindAction
	}
}

// resolveWho picks the addressee: the digest user when mentioned or directly
// addressed, otherwise the first To recipient.
func (e *Extractor) resolveWho(msg *models.Message, mentioned bool) string {
	if msg == nil {
		return e.userEmail
	}
	if mentioned || msg.Addressed([]string{e.userEmail}) {
		return e.userEmail
	}
	if len(msg.ToEmails) > 0 {
		return msg.ToEmails[0]
	}
	return ""
}

func capText(s string) string {
	if len(s) <= maxItemText {
		return s
	}
	cut := maxItemText
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
