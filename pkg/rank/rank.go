// Package rank scores evidence chunks and greedily selects the summarizer
// input under a token budget.
package rank

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/inboxly/maildigest/pkg/config"
	"github.com/inboxly/maildigest/pkg/extract"
	"github.com/inboxly/maildigest/pkg/models"
)

// recencyWindow is the span over which the recency feature decays to zero.
const recencyWindow = 48 * time.Hour

// threadLengthCap bounds the thread-length feature.
const threadLengthCap = 10

// projectTagPattern matches bracketed ticket/project tags in subjects.
var projectTagPattern = regexp.MustCompile(`\[[A-ZА-ЯЁ][A-ZА-ЯЁ0-9]*-?\d*\]`)

// servicePrefixes are sender local-part prefixes that mark machine mail.
var servicePrefixes = []string{
	"postmaster@", "mailer-daemon@", "no-reply@", "noreply@", "do-not-reply@",
	"notifications@", "bounce@",
}

// serviceSubjectPattern catches delivery and autoresponse subjects that
// slipped past normalization.
var serviceSubjectPattern = regexp.MustCompile(`(?i)(?:undeliverable|delivery status notification|\[автоответ\])`)

// Scored pairs a chunk with its rank score.
type Scored struct {
	Chunk models.Chunk
	Score float64
}

// Stats summarizes one selection run.
type Stats struct {
	Considered     int
	DroppedService int
	Selected       int
	SelectedTokens int

	// Top10ActionableShare is the fraction of the ten best-ranked chunks
	// carrying an actionable signal; the ranker's acceptance metric.
	Top10ActionableShare float64
}

// Ranker scores chunks with normalized feature weights.
type Ranker struct {
	weights config.RankWeights
	aliases []string
}

// New creates a Ranker. Weights are normalized to sum to 1; a zero weight
// set falls back to the defaults.
func New(weights config.RankWeights, aliases []string) *Ranker {
	sum := weights.Sum()
	if sum <= 0 {
		weights = config.DefaultConfig().Rank.Weights
		sum = weights.Sum()
	}
	norm := func(w float64) float64 { return w / sum }
	weights = config.RankWeights{
		UserInTo:         norm(weights.UserInTo),
		UserInCc:         norm(weights.UserInCc),
		HasActionMarker:  norm(weights.HasActionMarker),
		HasMention:       norm(weights.HasMention),
		HasDueDate:       norm(weights.HasDueDate),
		SenderImportance: norm(weights.SenderImportance),
		ThreadLength:     norm(weights.ThreadLength),
		Recency:          norm(weights.Recency),
		HasAttachments:   norm(weights.HasAttachments),
		HasProjectTag:    norm(weights.HasProjectTag),
	}
	return &Ranker{weights: weights, aliases: aliases}
}

// Score computes the weighted feature sum for one chunk, in [0,1].
func (r *Ranker) Score(chunk models.Chunk, msg *models.Message, thread *models.Thread, now time.Time) float64 {
	w := r.weights
	score := 0.0

	if msg != nil {
		if msg.Addressed(r.aliases) {
			score += w.UserInTo
		}
		if msg.Copied(r.aliases) {
			score += w.UserInCc
		}
		score += w.SenderImportance * float64(chunk.Signals.SenderTier) / 2
		if msg.HasAttachments {
			score += w.HasAttachments
		}
		if projectTagPattern.MatchString(msg.Subject) {
			score += w.HasProjectTag
		}
		age := now.Sub(msg.ReceivedAt)
		if age < 0 {
			age = 0
		}
		if age < recencyWindow {
			score += w.Recency * (1 - float64(age)/float64(recencyWindow))
		}
	}

	if chunk.Signals.HasImperative || hasActionMarker(chunk.Content) {
		score += w.HasActionMarker
	}
	if chunk.Signals.MentionsUser {
		score += w.HasMention
	}
	if chunk.Signals.HasDeadline {
		score += w.HasDueDate
	}

	if thread != nil {
		n := len(thread.MessageIDs)
		if n > threadLengthCap {
			n = threadLengthCap
		}
		score += w.ThreadLength * float64(n) / threadLengthCap
	}

	return score
}

// Select drops service senders, ranks the rest, and greedily fills the
// token budget in score order. Returned chunks are sorted by score
// descending; ties break on evidence id for determinism.
func (r *Ranker) Select(chunks []models.Chunk, corpus *models.Corpus, threads map[string]*models.Thread, now time.Time, budget int) ([]Scored, Stats) {
	stats := Stats{Considered: len(chunks)}

	scored := make([]Scored, 0, len(chunks))
	for _, ch := range chunks {
		msg := corpus.Get(ch.MessageID)
		if msg != nil && isServiceSender(msg) {
			stats.DroppedService++
			continue
		}
		scored = append(scored, Scored{
			Chunk: ch,
			Score: r.Score(ch, msg, threads[ch.ThreadID], now),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.EvidenceID < scored[j].Chunk.EvidenceID
	})

	stats.Top10ActionableShare = actionableShare(scored)

	var out []Scored
	total := 0
	for _, s := range scored {
		if total+s.Chunk.TokenCount > budget {
			continue
		}
		total += s.Chunk.TokenCount
		out = append(out, s)
	}
	stats.Selected = len(out)
	stats.SelectedTokens = total
	return out, stats
}

func actionableShare(scored []Scored) float64 {
	n := len(scored)
	if n > 10 {
		n = 10
	}
	if n == 0 {
		return 0
	}
	actionable := 0
	for _, s := range scored[:n] {
		sig := s.Chunk.Signals
		if sig.HasImperative || sig.HasDeadline || hasActionMarker(s.Chunk.Content) {
			actionable++
		}
	}
	return float64(actionable) / float64(n)
}

func hasActionMarker(content string) bool {
	_, ok := extract.HasActionMarker(content)
	return ok
}

// isServiceSender flags machine senders and delivery notifications.
func isServiceSender(msg *models.Message) bool {
	from := strings.ToLower(msg.FromEmail)
	for _, p := range servicePrefixes {
		if strings.HasPrefix(from, p) {
			return true
		}
	}
	return serviceSubjectPattern.MatchString(msg.Subject)
}
