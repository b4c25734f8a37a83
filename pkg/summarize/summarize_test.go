package summarize

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxly/maildigest/pkg/config"
	"github.com/inboxly/maildigest/pkg/llm"
	"github.com/inboxly/maildigest/pkg/metrics"
	"github.com/inboxly/maildigest/pkg/models"
	"github.com/inboxly/maildigest/pkg/prompt"
	"github.com/inboxly/maildigest/pkg/rank"
)

// digestJSON is a minimal valid digest response.
const digestJSON = `{
  "my_actions": [{
    "title": "Approve Q3 budget",
    "quote": "please approve the Q3 budget",
    "evidence_id": "ev-0-0",
    "confidence": "high"
  }],
  "others_actions": [], "deadlines_meetings": [], "risks_blockers": [], "fyi": []
}`

// combinedJSON satisfies both the per-thread and the final digest contract,
// so one scripted response serves every call of a hierarchical run.
const combinedJSON = `{
  "title": "Budget approval thread",
  "key_citations": [{"evidence_id": "ev-0-0", "snippet": "please approve"}],
  "pending_actions": [],
  "my_actions": [{
    "title": "Approve Q3 budget",
    "quote": "please approve the Q3 budget",
    "evidence_id": "ev-0-0",
    "confidence": "high"
  }],
  "others_actions": [], "deadlines_meetings": [], "risks_blockers": [], "fyi": []
}`

func boolPtr(v bool) *bool { return &v }

func newOrchestrator(t *testing.T, client llm.Client, mutate func(*config.SummarizeConfig)) (*Orchestrator, *metrics.Registry) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(&cfg.Summarize)
	}
	reg := metrics.NewRegistry()
	builder := prompt.NewBuilder("v3", "alice@corp.example")
	o := New(cfg.Summarize, cfg.LLM, client, builder, "alice@corp.example",
		[]string{"alice@corp.example", "Alice"}, reg)
	return o, reg
}

// makeInput builds a corpus of nThreads single-message threads with
// chunksPerThread chunks each.
func makeInput(nThreads, chunksPerThread int) Input {
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	var messages []models.Message
	var threads []models.Thread
	var chunks []models.Chunk
	for i := 0; i < nThreads; i++ {
		msgID := fmt.Sprintf("m-%d", i)
		received := base.Add(time.Duration(i) * time.Minute)
		messages = append(messages, models.Message{
			MessageID:  msgID,
			Subject:    fmt.Sprintf("Project update %d", i),
			FromEmail:  "bob@corp.example",
			ToEmails:   []string{"alice@corp.example"},
			ReceivedAt: received,
		})
		threads = append(threads, models.Thread{
			ThreadID:         fmt.Sprintf("t-%d", i),
			MessageIDs:       []string{msgID},
			LatestReceivedAt: received,
		})
		for j := 0; j < chunksPerThread; j++ {
			chunks = append(chunks, models.Chunk{
				EvidenceID:    fmt.Sprintf("ev-%d-%d", i, j),
				MessageID:     msgID,
				ThreadID:      fmt.Sprintf("t-%d", i),
				Content:       fmt.Sprintf("Please review the quarterly report, part %d of thread %d.", j, i),
				TokenCount:    12,
				PriorityScore: 0.5,
			})
		}
	}

	var selected []rank.Scored
	for _, ch := range chunks {
		selected = append(selected, rank.Scored{Chunk: ch, Score: ch.PriorityScore})
	}

	return Input{
		DigestDate: "2024-01-15",
		Timezone:   "UTC",
		Corpus:     models.NewCorpus(messages),
		Threads:    threads,
		Chunks:     chunks,
		Selected:   selected,
		Ranked:     selected,
		Actions: []models.ExtractedAction{{
			Kind: models.KindAction, Who: "alice@corp.example",
			Text: "Please approve the budget.", Confidence: 0.9, EvidenceID: "ev-0-0",
		}},
	}
}

func TestSelectMode(t *testing.T) {
	o, _ := newOrchestrator(t, &llm.FakeClient{}, nil)

	tests := []struct {
		name       string
		threads    int
		messages   int
		force      bool
		wantMode   Mode
		wantReason TriggerReason
	}{
		{"small day", 10, 10, false, ModeFlat, TriggerManual},
		{"below both thresholds", 59, 299, false, ModeFlat, TriggerManual},
		{"thread threshold", 60, 60, false, ModeHierarchical, TriggerAutoThreads},
		{"message threshold", 10, 300, false, ModeHierarchical, TriggerAutoMessages},
		{"forced", 5, 5, true, ModeHierarchical, TriggerManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := makeInput(tt.threads, 1)
			// Pad the corpus to the desired message count.
			for len(in.Corpus.Messages) < tt.messages {
				in.Corpus.Messages = append(in.Corpus.Messages, models.Message{})
			}
			in.ForceHierarchical = tt.force

			mode, reason := o.selectMode(in)
			assert.Equal(t, tt.wantMode, mode)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestSelectMode_Disabled(t *testing.T) {
	o, _ := newOrchestrator(t, &llm.FakeClient{}, func(c *config.SummarizeConfig) {
		c.Enable = boolPtr(false)
	})
	mode, reason := o.selectMode(makeInput(100, 1))
	assert.Equal(t, ModeExtractive, mode)
	assert.Equal(t, TriggerDisabled, reason)
}

func TestRun_Disabled_Extractive(t *testing.T) {
	fake := &llm.FakeClient{}
	o, _ := newOrchestrator(t, fake, func(c *config.SummarizeConfig) {
		c.Enable = boolPtr(false)
	})

	out := o.Run(context.Background(), makeInput(3, 1))

	assert.Equal(t, ModeExtractive, out.Mode)
	assert.Equal(t, ReasonDisabled, out.DegradeReason)
	assert.False(t, out.Partial)
	assert.Zero(t, fake.Calls())
	require.Len(t, out.Sections.MyActions, 1)
}

func TestRun_FlatSuccess(t *testing.T) {
	fake := &llm.FakeClient{Responses: []llm.Response{{Text: digestJSON}}}
	o, _ := newOrchestrator(t, fake, nil)

	out := o.Run(context.Background(), makeInput(3, 1))

	assert.Equal(t, ModeFlat, out.Mode)
	assert.False(t, out.Partial)
	assert.Equal(t, 1, fake.Calls())
	require.Len(t, out.Sections.MyActions, 1)
	assert.Equal(t, "Approve Q3 budget", out.Sections.MyActions[0].Title)

	// The prompt carries the evidence and its headers.
	assert.Contains(t, fake.Prompts[0], "ev-0-0")
	assert.Contains(t, fake.Prompts[0], "alice@corp.example")
}

func TestRun_FlatRepairRetry(t *testing.T) {
	fake := &llm.FakeClient{Responses: []llm.Response{
		{Text: "sorry, something went sideways"},
		{Text: digestJSON},
	}}
	o, reg := newOrchestrator(t, fake, nil)

	out := o.Run(context.Background(), makeInput(3, 1))

	assert.Equal(t, ModeFlat, out.Mode)
	assert.False(t, out.Partial)
	assert.Equal(t, 2, fake.Calls())
	assert.Contains(t, fake.Prompts[1], "failed validation")
	assert.Equal(t, float64(1), reg.CounterValue(metrics.LLMJSONErrorsTotal, nil))
}

func TestRun_FlatTerminalFallback(t *testing.T) {
	fake := &llm.FakeClient{Responses: []llm.Response{
		{Text: "not json"},
		{Text: "still not json"},
	}}
	o, reg := newOrchestrator(t, fake, nil)
	in := makeInput(3, 1)

	out := o.Run(context.Background(), in)

	assert.Equal(t, ModeExtractive, out.Mode)
	assert.True(t, out.Partial)
	assert.Equal(t, ReasonLLMSchema, out.DegradeReason)
	// Fallback sections come from the rule extractor output.
	require.Len(t, out.Sections.MyActions, 1)
	assert.Equal(t, float64(1),
		reg.CounterValue(metrics.DegradeActivatedTotal, metrics.Labels{"reason": ReasonLLMSchema}))
}

func TestRun_FlatBudgetExhausted(t *testing.T) {
	fake := &llm.FakeClient{Errors: []error{llm.ErrBudgetExhausted}}
	o, _ := newOrchestrator(t, fake, nil)

	out := o.Run(context.Background(), makeInput(3, 1))

	assert.Equal(t, ModeExtractive, out.Mode)
	assert.True(t, out.Partial)
	assert.Equal(t, ReasonBudgetExhausted, out.DegradeReason)
}

func TestRun_HierarchicalTrigger(t *testing.T) {
	fake := &llm.FakeClient{Responses: []llm.Response{{Text: combinedJSON}}}
	o, reg := newOrchestrator(t, fake, func(c *config.SummarizeConfig) {
		c.SmallThreadChunks = 1 // every thread goes through per-thread summarization
		c.ParallelPool = 4
		c.FinalInputTokenCap = 0
	})

	out := o.Run(context.Background(), makeInput(60, 1))

	assert.Equal(t, ModeHierarchical, out.Mode)
	assert.Equal(t, TriggerAutoThreads, out.TriggerReason)
	assert.False(t, out.Partial)
	// 60 per-thread calls plus the final aggregation.
	assert.Equal(t, 61, fake.Calls())
	require.Len(t, out.Sections.MyActions, 1)
	assert.Equal(t, float64(1),
		reg.CounterValue(metrics.HierarchicalRunsTotal, metrics.Labels{"trigger_reason": "auto_threads"}))
	assert.Equal(t, float64(1), reg.GaugeValue(metrics.AvgSubsummaryChunks, nil))
}

func TestRun_HierarchicalSmallThreadBypass(t *testing.T) {
	fake := &llm.FakeClient{Responses: []llm.Response{{Text: digestJSON}}}
	o, reg := newOrchestrator(t, fake, func(c *config.SummarizeConfig) {
		c.FinalInputTokenCap = 0
	})
	in := makeInput(60, 1) // one chunk per thread, below SmallThreadChunks

	out := o.Run(context.Background(), in)

	assert.Equal(t, ModeHierarchical, out.Mode)
	// Only the final aggregation call; every thread bypassed.
	assert.Equal(t, 1, fake.Calls())
	assert.Contains(t, fake.Prompts[0], "raw evidence")
	assert.Greater(t,
		reg.CounterValue(metrics.SavedTokensTotal, metrics.Labels{"skip_reason": "small_thread"}),
		float64(0))
	assert.False(t, out.Partial)
}

func TestRun_HierarchicalEmptyThreadSavedTokens(t *testing.T) {
	fake := &llm.FakeClient{Responses: []llm.Response{{Text: digestJSON}}}
	o, reg := newOrchestrator(t, fake, func(c *config.SummarizeConfig) {
		c.FinalInputTokenCap = 0
	})
	in := makeInput(2, 1)
	in.ForceHierarchical = true
	in.Corpus.Get("m-0").BodyNormalized = "Routine status update with no action items for anyone today."

	// Thread t-0 keeps no chunks; it is skipped and its body estimate
	// lands on the saved-tokens counter.
	var kept []models.Chunk
	for _, ch := range in.Chunks {
		if ch.ThreadID != "t-0" {
			kept = append(kept, ch)
		}
	}
	in.Chunks = kept

	o.Run(context.Background(), in)

	assert.Equal(t, float64(13),
		reg.CounterValue(metrics.SavedTokensTotal, metrics.Labels{"skip_reason": "empty_thread"}))
}

func TestRun_HierarchicalPerThreadDegrade(t *testing.T) {
	fake := &llm.FakeClient{
		Errors:    []error{llm.ErrTimeout},
		Responses: []llm.Response{{}, {Text: digestJSON}},
	}
	o, reg := newOrchestrator(t, fake, func(c *config.SummarizeConfig) {
		c.SmallThreadChunks = 1
		c.ParallelPool = 1
	})
	in := makeInput(1, 3)
	in.ForceHierarchical = true

	out := o.Run(context.Background(), in)

	assert.Equal(t, ModeHierarchical, out.Mode)
	assert.True(t, out.Partial)
	assert.Equal(t, ReasonLLMTimeout, out.DegradeReason)
	// The degraded thread still reaches the final prompt as a stub.
	assert.Equal(t, 2, fake.Calls())
	assert.Contains(t, fake.Prompts[1], "summary degraded")
	assert.Equal(t, float64(1),
		reg.CounterValue(metrics.DegradeActivatedTotal, metrics.Labels{"reason": ReasonLLMTimeout}))
	require.Len(t, out.Sections.MyActions, 1)
}

func TestSelectThreadChunks_MustInclude(t *testing.T) {
	o, reg := newOrchestrator(t, &llm.FakeClient{}, nil)

	mk := func(i int, mention, last bool, score float64) models.Chunk {
		return models.Chunk{
			EvidenceID:    fmt.Sprintf("ev-%02d", i),
			PriorityScore: score,
			Signals:       models.ChunkSignals{MentionsUser: mention, IsLastUpdate: last},
		}
	}

	t.Run("under cap untouched", func(t *testing.T) {
		chunks := []models.Chunk{mk(0, false, false, 0.1), mk(1, true, false, 0.2)}
		assert.Equal(t, chunks, o.selectThreadChunks(chunks))
	})

	t.Run("mentions and last update always kept", func(t *testing.T) {
		var chunks []models.Chunk
		for i := 0; i < 20; i++ {
			chunks = append(chunks, mk(i, i == 17, i == 19, float64(20-i)/20))
		}
		got := o.selectThreadChunks(chunks)

		require.Len(t, got, 8)
		ids := make(map[string]bool)
		for _, ch := range got {
			ids[ch.EvidenceID] = true
		}
		assert.True(t, ids["ev-17"], "mention chunk must survive")
		assert.True(t, ids["ev-19"], "last-update chunk must survive")
		// Document order preserved.
		for i := 1; i < len(got); i++ {
			assert.Less(t, got[i-1].EvidenceID, got[i].EvidenceID)
		}
	})

	t.Run("cap raised for many must-include", func(t *testing.T) {
		var chunks []models.Chunk
		for i := 0; i < 20; i++ {
			chunks = append(chunks, mk(i, i < 10, false, 0.5))
		}
		got := o.selectThreadChunks(chunks)
		assert.Len(t, got, 10)
	})

	t.Run("never above the exception cap", func(t *testing.T) {
		var chunks []models.Chunk
		for i := 0; i < 20; i++ {
			chunks = append(chunks, mk(i, true, false, 0.5))
		}
		got := o.selectThreadChunks(chunks)
		assert.Len(t, got, 12)
	})

	assert.Greater(t,
		reg.CounterValue(metrics.MustIncludeChunksTotal, metrics.Labels{"chunk_type": "mention"}),
		float64(0))
}

func TestFinalBlocks_TokenCapPrefersCommitments(t *testing.T) {
	o, _ := newOrchestrator(t, &llm.FakeClient{}, func(c *config.SummarizeConfig) {
		c.FinalInputTokenCap = 60
	})

	longText := "the quarterly planning review covered many informational topics without any decisions or follow-ups for the team to track going forward"
	withAction := &threadJob{
		thread: models.Thread{ThreadID: "t-act"},
		summary: &threadSummary{
			Title: "Budget thread",
			PendingActions: []summaryItem{
				{Title: "Approve budget", EvidenceID: "ev-1", Quote: "please approve the budget"},
			},
		},
	}
	fyiOnly := &threadJob{
		thread:  models.Thread{ThreadID: "t-fyi"},
		summary: &threadSummary{Title: longText},
	}
	fyiOnly2 := &threadJob{
		thread:  models.Thread{ThreadID: "t-fyi-2"},
		summary: &threadSummary{Title: longText},
	}

	blocks := o.finalBlocks([]*threadJob{withAction, fyiOnly, fyiOnly2})

	joined := ""
	for _, b := range blocks {
		joined += b
	}
	assert.Contains(t, joined, "t-act", "commitment-bearing block survives the cap")
	assert.Less(t, len(blocks), 3, "informational blocks dropped to fit")
}

func TestRun_HierarchicalDeterministicThreadOrder(t *testing.T) {
	run := func() []string {
		fake := &llm.FakeClient{Responses: []llm.Response{{Text: digestJSON}}}
		o, _ := newOrchestrator(t, fake, func(c *config.SummarizeConfig) {
			c.FinalInputTokenCap = 0
		})
		in := makeInput(10, 1)
		in.ForceHierarchical = true
		o.Run(context.Background(), in)
		return fake.Prompts
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}
