package digest

import (
	"regexp"
	"strings"

	"github.com/inboxly/maildigest/pkg/metrics"
	"github.com/inboxly/maildigest/pkg/models"
)

// Citation failure types reported on the validation counter.
const (
	FailUnknownEvidence = "unknown_evidence"
	FailQuoteNotFound   = "quote_not_found"
	FailMissingMessage  = "missing_message"
)

// Citer proves digest items against the corpus by attaching citations with
// exact byte offsets.
type Citer struct {
	corpus *models.Corpus
	byEvID map[string]models.Chunk
	reg    *metrics.Registry
}

// NewCiter builds a Citer over the run's corpus and chunk index.
func NewCiter(corpus *models.Corpus, chunks []models.Chunk, reg *metrics.Registry) *Citer {
	byEvID := make(map[string]models.Chunk, len(chunks))
	for _, ch := range chunks {
		byEvID[ch.EvidenceID] = ch
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Citer{corpus: corpus, byEvID: byEvID, reg: reg}
}

// Attach locates each item's quote in the source body and installs a
// Citation proving preview == body[start:end]. Quotes are matched exactly
// first, then with whitespace tolerance. Returns the number of items that
// could not be cited; failures are also counted per type.
func (c *Citer) Attach(sections *models.Sections) int {
	failures := 0
	for _, item := range allCores(sections) {
		if ok := c.cite(item); !ok {
			failures++
		}
	}
	return failures
}

func (c *Citer) cite(item *models.ItemCore) bool {
	chunk, ok := c.byEvID[item.EvidenceID]
	if !ok {
		c.fail(FailUnknownEvidence)
		return false
	}
	msg := c.corpus.Get(chunk.MessageID)
	if msg == nil {
		c.fail(FailMissingMessage)
		return false
	}

	start, end, ok := locateQuote(msg.BodyNormalized, item.Quote, chunk)
	if !ok {
		c.fail(FailQuoteNotFound)
		return false
	}

	item.Citations = append(item.Citations, models.Citation{
		MessageID: msg.MessageID,
		Start:     start,
		End:       end,
		Preview:   msg.BodyNormalized[start:end],
		Checksum:  msg.BodyChecksum,
	})
	if item.EmailSubject == "" {
		item.EmailSubject = msg.Subject
	}
	c.reg.Observe(metrics.CitationsPerItemHistogram, nil, float64(len(item.Citations)))
	return true
}

func (c *Citer) fail(failType string) {
	c.reg.Inc(metrics.CitationValidationFailures, metrics.Labels{"type": failType})
}

// locateQuote finds the quote in the body, preferring the chunk's own span.
// The fuzzy pass tolerates whitespace differences only; any other mismatch
// is a failure.
func locateQuote(body, quote string, chunk models.Chunk) (int, int, bool) {
	quote = strings.TrimSpace(quote)
	if quote == "" {
		return 0, 0, false
	}

	// Exact match inside the chunk span, then anywhere in the body.
	if chunk.EndOffset <= len(body) && chunk.StartOffset < chunk.EndOffset {
		if idx := strings.Index(body[chunk.StartOffset:chunk.EndOffset], quote); idx >= 0 {
			start := chunk.StartOffset + idx
			return start, start + len(quote), true
		}
	}
	if idx := strings.Index(body, quote); idx >= 0 {
		return idx, idx + len(quote), true
	}

	// Whitespace-tolerant match: words joined by arbitrary whitespace.
	fields := strings.Fields(quote)
	if len(fields) == 0 {
		return 0, 0, false
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = regexp.QuoteMeta(f)
	}
	pattern, err := regexp.Compile(strings.Join(parts, `\s+`))
	if err != nil {
		return 0, 0, false
	}
	if loc := pattern.FindStringIndex(body); loc != nil {
		return loc[0], loc[1], true
	}
	return 0, 0, false
}

// allCores flattens the typed sections into their shared cores.
func allCores(s *models.Sections) []*models.ItemCore {
	out := make([]*models.ItemCore, 0, s.ItemCount())
	for i := range s.MyActions {
		out = append(out, &s.MyActions[i].ItemCore)
	}
	for i := range s.OthersActions {
		out = append(out, &s.OthersActions[i].ItemCore)
	}
	for i := range s.DeadlinesMeetings {
		out = append(out, &s.DeadlinesMeetings[i].ItemCore)
	}
	for i := range s.RisksBlockers {
		out = append(out, &s.RisksBlockers[i].ItemCore)
	}
	for i := range s.FYI {
		out = append(out, &s.FYI[i].ItemCore)
	}
	return out
}
