// Package evidence splits normalized message bodies into verbatim chunks
// with exact byte offsets and deterministic ids. Chunks are what citations
// point at; Content always equals the body slice [StartOffset:EndOffset].
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/inboxly/maildigest/pkg/extract"
	"github.com/inboxly/maildigest/pkg/models"
)

// Chunk size targets, in estimated tokens.
const (
	minChunkTokens = 256
	maxChunkTokens = 512
)

// Chunker splits message bodies into evidence chunks. Stateless and safe
// for concurrent use.
type Chunker struct {
	aliases []string
}

// NewChunker creates a Chunker; aliases feed the mention signal.
func NewChunker(aliases []string) *Chunker {
	return &Chunker{aliases: aliases}
}

// Split chunks one message body. Adjacent small paragraphs coalesce toward
// the target size; oversized paragraphs split on sentence boundaries. At
// most MaxChunksPerMessage chunks are emitted, in body order.
func (c *Chunker) Split(msg *models.Message, threadID string) []models.Chunk {
	body := msg.BodyNormalized
	spans := chunkSpans(body)

	if len(spans) > models.MaxChunksPerMessage {
		spans = spans[:models.MaxChunksPerMessage]
	}

	tier := senderTier(msg.Importance)

	out := make([]models.Chunk, 0, len(spans))
	for _, sp := range spans {
		content := body[sp[0]:sp[1]]
		chunk := models.Chunk{
			EvidenceID:  EvidenceID(msg.MessageID, sp[0], sp[1]),
			MessageID:   msg.MessageID,
			ThreadID:    threadID,
			StartOffset: sp[0],
			EndOffset:   sp[1],
			Content:     content,
			TokenCount:  TokenEstimate(content),
		}
		chunk.Signals = c.signals(content, tier)
		chunk.PriorityScore = extract.Score(extract.Features{
			Mention:    chunk.Signals.MentionsUser,
			Imperative: chunk.Signals.HasImperative,
			Question:   chunk.Signals.HasQuestion,
			Deadline:   chunk.Signals.HasDeadline,
			SenderTier: tier,
		})
		out = append(out, chunk)
	}
	return out
}

// signals scans chunk sentences once for the compact rule feature set.
// MentionsUser is a content property of the chunk text; To-addressing is a
// message-level fact and scored separately.
func (c *Chunker) signals(content string, tier int) models.ChunkSignals {
	s := models.ChunkSignals{SenderTier: tier}
	for _, sentence := range extract.Sentences(content) {
		if extract.IsQuestion(sentence) {
			s.HasQuestion = true
		}
		if _, ok := extract.HasImperative(sentence); ok {
			s.HasImperative = true
		}
		if extract.HasDeadline(sentence) {
			s.HasDeadline = true
		}
		if extract.MentionsAny(sentence, c.aliases) {
			s.MentionsUser = true
		}
	}
	return s
}

// chunkSpans returns contiguous [start, end) byte ranges covering the body:
// paragraphs coalesced up to the token target, oversized paragraphs split
// on sentence boundaries.
func chunkSpans(body string) [][2]int {
	var out [][2]int
	curStart, curEnd := -1, -1
	curTokens := 0

	flush := func() {
		if curStart >= 0 {
			out = append(out, [2]int{curStart, curEnd})
			curStart, curEnd, curTokens = -1, -1, 0
		}
	}

	for _, para := range paragraphSpans(body) {
		tokens := TokenEstimate(body[para[0]:para[1]])

		if tokens > maxChunkTokens {
			flush()
			out = append(out, splitOversized(body, para)...)
			continue
		}
		if curStart >= 0 && curTokens+tokens > maxChunkTokens {
			flush()
		}
		if curStart < 0 {
			curStart = para[0]
		}
		curEnd = para[1]
		curTokens += tokens
		if curTokens >= minChunkTokens {
			flush()
		}
	}
	flush()
	return out
}

// splitOversized cuts one huge paragraph at sentence boundaries, each piece
// at most maxChunkTokens.
func splitOversized(body string, para [2]int) [][2]int {
	text := body[para[0]:para[1]]
	var out [][2]int
	start := para[0]
	pos := para[0]
	tokens := 0

	for _, b := range sentenceEnds(text) {
		end := para[0] + b
		t := TokenEstimate(body[pos:end])
		if tokens+t > maxChunkTokens && pos > start {
			out = append(out, [2]int{start, pos})
			start = pos
			tokens = 0
		}
		tokens += t
		pos = end
	}
	if pos < para[1] {
		t := TokenEstimate(body[pos:para[1]])
		if tokens+t > maxChunkTokens && pos > start {
			out = append(out, [2]int{start, pos})
			start = pos
		}
		pos = para[1]
	}
	if pos > start {
		out = append(out, [2]int{start, pos})
	}
	return out
}

// sentenceEnds returns byte positions just after each sentence terminator
// inside text.
func sentenceEnds(text string) []int {
	var out []int
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		j := i + 1
		for j < len(text) && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
			j++
		}
		if j < len(text) && (text[j] == ' ' || text[j] == '\n') {
			out = append(out, j+1)
		}
		i = j - 1
	}
	return out
}

// paragraphSpans returns [start, end) ranges of blank-line separated
// paragraphs, skipping empty ones.
func paragraphSpans(body string) [][2]int {
	var out [][2]int
	start := 0
	for start < len(body) {
		idx := strings.Index(body[start:], "\n\n")
		end := len(body)
		next := len(body)
		if idx >= 0 {
			end = start + idx
			next = end + 2
			for next < len(body) && body[next] == '\n' {
				next++
			}
		}
		if strings.TrimSpace(body[start:end]) != "" {
			out = append(out, [2]int{start, end})
		}
		start = next
	}
	return out
}

// TokenEstimate approximates token count as 1.3 times the word count.
func TokenEstimate(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(1.3 * float64(words)))
}

// EvidenceID derives the deterministic chunk id from the message id and the
// exact byte offsets. Identical inputs yield identical ids across runs.
func EvidenceID(messageID string, start, end int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", messageID, start, end)))
	return hex.EncodeToString(sum[:16])
}

func senderTier(imp models.Importance) int {
	switch imp {
	case models.ImportanceHigh:
		return 2
	case models.ImportanceLow:
		return 0
	default:
		return 1
	}
}

// MarkLastUpdates sets IsLastUpdate on the final chunk of each thread's
// newest message. chunks must be grouped per message in body order.
func MarkLastUpdates(threads []models.Thread, byMessage map[string][]models.Chunk) {
	for _, t := range threads {
		if len(t.MessageIDs) == 0 {
			continue
		}
		// MessageIDs are ordered by received-at ascending.
		for i := len(t.MessageIDs) - 1; i >= 0; i-- {
			chunks := byMessage[t.MessageIDs[i]]
			if len(chunks) == 0 {
				continue
			}
			chunks[len(chunks)-1].Signals.IsLastUpdate = true
			break
		}
	}
}
