package rank

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxly/maildigest/pkg/config"
	"github.com/inboxly/maildigest/pkg/models"
)

var rankNow = time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)

func newTestRanker() *Ranker {
	return New(config.DefaultConfig().Rank.Weights, []string{"alice@corp.example"})
}

func actionChunk(id string, tokens int) models.Chunk {
	return models.Chunk{
		EvidenceID: id,
		MessageID:  "m-" + id,
		ThreadID:   "t-" + id,
		Content:    "Please review the plan.",
		TokenCount: tokens,
		Signals:    models.ChunkSignals{HasImperative: true, SenderTier: 1},
	}
}

func corpusWith(msgs ...models.Message) *models.Corpus {
	return models.NewCorpus(msgs)
}

func TestScore_WithinUnitInterval(t *testing.T) {
	r := newTestRanker()
	msg := &models.Message{
		MessageID:      "m",
		ReceivedAt:     rankNow.Add(-time.Hour),
		ToEmails:       []string{"alice@corp.example"},
		Subject:        "[JIRA-42] release",
		HasAttachments: true,
	}
	thread := &models.Thread{MessageIDs: make([]string, 12)}
	chunk := models.Chunk{
		Content: "Please review and confirm by tomorrow.",
		Signals: models.ChunkSignals{
			HasImperative: true, HasDeadline: true, MentionsUser: true, SenderTier: 2,
		},
	}

	score := r.Score(chunk, msg, thread, rankNow)
	assert.Greater(t, score, 0.9)
	assert.LessOrEqual(t, score, 1.0)

	// A stale FYI chunk scores near zero.
	low := r.Score(models.Chunk{Content: "status note"},
		&models.Message{ReceivedAt: rankNow.Add(-72 * time.Hour)}, nil, rankNow)
	assert.Less(t, low, 0.1)
}

func TestSelect_GreedyBudget(t *testing.T) {
	r := newTestRanker()

	var chunks []models.Chunk
	var msgs []models.Message
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("c%02d", i)
		ch := actionChunk(id, 400)
		chunks = append(chunks, ch)
		msgs = append(msgs, models.Message{
			MessageID:  ch.MessageID,
			ReceivedAt: rankNow.Add(-time.Duration(i) * time.Hour),
		})
	}

	selected, stats := r.Select(chunks, corpusWith(msgs...), nil, rankNow, 3000)

	// 400-token chunks into a 3000 budget: at most 7 fit.
	assert.Len(t, selected, 7)
	assert.Equal(t, 2800, stats.SelectedTokens)
	assert.LessOrEqual(t, stats.SelectedTokens, 3000)
	// Most recent (highest recency) first.
	assert.Equal(t, "c00", selected[0].Chunk.EvidenceID)
}

func TestSelect_DropsServiceSenders(t *testing.T) {
	r := newTestRanker()
	chunks := []models.Chunk{actionChunk("a", 10), actionChunk("b", 10)}
	msgs := []models.Message{
		{MessageID: "m-a", FromEmail: "postmaster@corp.example", ReceivedAt: rankNow},
		{MessageID: "m-b", FromEmail: "bob@corp.example", ReceivedAt: rankNow},
	}

	selected, stats := r.Select(chunks, corpusWith(msgs...), nil, rankNow, 1000)

	require.Len(t, selected, 1)
	assert.Equal(t, "b", selected[0].Chunk.EvidenceID)
	assert.Equal(t, 1, stats.DroppedService)
}

func TestSelect_DropsUndeliverableSubject(t *testing.T) {
	r := newTestRanker()
	chunks := []models.Chunk{actionChunk("a", 10)}
	msgs := []models.Message{{
		MessageID: "m-a", FromEmail: "exchange@corp.example",
		Subject: "Undeliverable: weekly report", ReceivedAt: rankNow,
	}}

	selected, stats := r.Select(chunks, corpusWith(msgs...), nil, rankNow, 1000)
	assert.Empty(t, selected)
	assert.Equal(t, 1, stats.DroppedService)
}

func TestSelect_ActionableShare(t *testing.T) {
	r := newTestRanker()
	var chunks []models.Chunk
	var msgs []models.Message
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("a%d", i)
		chunks = append(chunks, actionChunk(id, 50))
		msgs = append(msgs, models.Message{MessageID: "m-" + id, ReceivedAt: rankNow})
	}
	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("f%d", i)
		chunks = append(chunks, models.Chunk{
			EvidenceID: id, MessageID: "m-" + id, Content: "plain status", TokenCount: 50,
		})
		msgs = append(msgs, models.Message{MessageID: "m-" + id, ReceivedAt: rankNow})
	}

	_, stats := r.Select(chunks, corpusWith(msgs...), nil, rankNow, 10000)
	assert.GreaterOrEqual(t, stats.Top10ActionableShare, 0.70)
}

func TestNew_NormalizesWeights(t *testing.T) {
	r := New(config.RankWeights{HasActionMarker: 2, HasDueDate: 2}, nil)
	assert.InDelta(t, 0.5, r.weights.HasActionMarker, 1e-9)
	assert.InDelta(t, 0.5, r.weights.HasDueDate, 1e-9)
}
