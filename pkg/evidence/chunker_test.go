package evidence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxly/maildigest/pkg/models"
)

func testMessage(body string) *models.Message {
	return &models.Message{
		MessageID:      "m-1",
		Subject:        "s",
		BodyNormalized: body,
		Importance:     models.ImportanceNormal,
		ToEmails:       []string{"bob@corp.example"},
	}
}

func TestSplit_OffsetsAreExact(t *testing.T) {
	c := NewChunker([]string{"alice@corp.example"})
	body := "First paragraph with some words.\n\nSecond paragraph here.\n\nThird block of text."
	msg := testMessage(body)

	chunks := c.Split(msg, "t-1")

	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, body[ch.StartOffset:ch.EndOffset], ch.Content)
		assert.Equal(t, "t-1", ch.ThreadID)
		assert.Equal(t, "m-1", ch.MessageID)
	}
}

func TestSplit_CoalescesSmallParagraphs(t *testing.T) {
	c := NewChunker(nil)
	body := strings.TrimRight(strings.Repeat("Short paragraph of five words.\n\n", 10), "\n")

	chunks := c.Split(testMessage(body), "t")

	// 10 tiny paragraphs stay under the token floor, so they coalesce.
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(body), chunks[0].EndOffset)
}

func TestSplit_OversizedParagraphSplitsOnSentences(t *testing.T) {
	c := NewChunker(nil)
	// One paragraph of ~900 estimated tokens.
	body := strings.TrimSpace(strings.Repeat("This sentence is exactly seven words long. ", 100))

	chunks := c.Split(testMessage(body), "t")

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, maxChunkTokens)
		assert.Equal(t, body[ch.StartOffset:ch.EndOffset], ch.Content)
	}
}

func TestSplit_CapsChunksPerMessage(t *testing.T) {
	c := NewChunker(nil)
	para := strings.Repeat("A paragraph long enough to stand on its own as an evidence chunk. ", 30)
	body := strings.TrimRight(strings.Repeat(para+"\n\n", 20), "\n")

	chunks := c.Split(testMessage(body), "t")

	assert.LessOrEqual(t, len(chunks), models.MaxChunksPerMessage)
}

func TestEvidenceID_Deterministic(t *testing.T) {
	a := EvidenceID("m-1", 0, 100)
	b := EvidenceID("m-1", 0, 100)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, EvidenceID("m-1", 0, 101))
	assert.NotEqual(t, a, EvidenceID("m-2", 0, 100))
	assert.Len(t, a, 32)
}

func TestTokenEstimate(t *testing.T) {
	assert.Equal(t, 0, TokenEstimate(""))
	assert.Equal(t, 13, TokenEstimate(strings.Repeat("word ", 10)))
}

func TestSplit_Signals(t *testing.T) {
	c := NewChunker([]string{"alice@corp.example", "Alice"})
	msg := testMessage("Alice, please review the budget by Friday. Can you also check the forecast?")
	msg.Importance = models.ImportanceHigh
	msg.ToEmails = []string{"alice@corp.example"}

	chunks := c.Split(msg, "t")

	require.Len(t, chunks, 1)
	s := chunks[0].Signals
	assert.True(t, s.MentionsUser)
	assert.True(t, s.HasQuestion)
	assert.True(t, s.HasDeadline)
	assert.Equal(t, 2, s.SenderTier)
	assert.Greater(t, chunks[0].PriorityScore, 0.5)
}

func TestSplit_MentionSignalIsContentBased(t *testing.T) {
	c := NewChunker([]string{"alice@corp.example", "Alice"})

	// Being in To: does not make every chunk a mention.
	msg := testMessage("The Q3 numbers are attached.\n\nReview them before the planning call.")
	msg.ToEmails = []string{"alice@corp.example"}
	for _, ch := range c.Split(msg, "t") {
		assert.False(t, ch.Signals.MentionsUser, "evidence %s", ch.EvidenceID)
	}

	// Only the chunk whose text names an alias carries the signal.
	para := strings.Repeat("Background on the vendor selection and the open contract items. ", 20)
	msg = testMessage(para + "\n\nAlice, please sign off on the shortlist.")
	msg.ToEmails = []string{"alice@corp.example"}
	chunks := c.Split(msg, "t")
	require.Len(t, chunks, 2)
	assert.False(t, chunks[0].Signals.MentionsUser)
	assert.True(t, chunks[1].Signals.MentionsUser)
}

func TestMarkLastUpdates(t *testing.T) {
	threads := []models.Thread{{
		ThreadID:   "t",
		MessageIDs: []string{"m-old", "m-new"},
	}}
	byMessage := map[string][]models.Chunk{
		"m-old": {{EvidenceID: "a"}},
		"m-new": {{EvidenceID: "b"}, {EvidenceID: "c"}},
	}

	MarkLastUpdates(threads, byMessage)

	assert.False(t, byMessage["m-old"][0].Signals.IsLastUpdate)
	assert.False(t, byMessage["m-new"][0].Signals.IsLastUpdate)
	assert.True(t, byMessage["m-new"][1].Signals.IsLastUpdate)
}
