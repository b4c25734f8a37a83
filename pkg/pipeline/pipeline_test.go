package pipeline

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxly/maildigest/pkg/config"
	"github.com/inboxly/maildigest/pkg/evidence"
	"github.com/inboxly/maildigest/pkg/llm"
	"github.com/inboxly/maildigest/pkg/mailbox"
	"github.com/inboxly/maildigest/pkg/metrics"
	"github.com/inboxly/maildigest/pkg/models"
	"github.com/inboxly/maildigest/pkg/normalize"
	"github.com/inboxly/maildigest/pkg/store"
	"github.com/inboxly/maildigest/pkg/threading"
)

var digestDay = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.User.Email = "alice@corp.example"
	cfg.User.Name = "Alice"
	return cfg
}

func testPipeline(t *testing.T, cfg *config.Config, fetcher mailbox.Fetcher, client llm.Client) (*Pipeline, *store.Store, *metrics.Registry) {
	t.Helper()
	st, err := store.New(t.TempDir(), cfg.Output.RebuildWindow)
	require.NoError(t, err)
	reg := metrics.NewRegistry()
	return New(cfg, fetcher, client, st, nil, reg), st, reg
}

func record(id, subject, body string, received time.Time) mailbox.Record {
	return mailbox.Record{
		ItemID:            "item-" + id,
		InternetMessageID: "<" + id + "@corp.example>",
		ReceivedAt:        received,
		TimezoneKnown:     true,
		From:              mailbox.Address{Email: "bob@corp.example", Name: "Bob"},
		To:                []mailbox.Address{{Email: "alice@corp.example", Name: "Alice"}},
		Subject:           subject,
		BodyText:          body,
	}
}

// firstChunk replays normalization and chunking for one record so tests
// can script model responses with a real evidence id.
func firstChunk(t *testing.T, cfg *config.Config, rec mailbox.Record) models.Chunk {
	t.Helper()
	n := normalize.New(normalize.Config{
		Location: cfg.Location(),
		HTML: normalize.HTMLOptions{
			TableMaxColumnWidth: cfg.Normalize.TableMaxColumnWidth,
			TableMaxRows:        cfg.Normalize.TableMaxRows,
		},
		Cleaner: cleanerConfig(cfg),
	}, nil)
	msg, skip, err := n.Normalize(rec)
	require.NoError(t, err)
	require.Empty(t, skip)
	threads, _ := threading.Build([]models.Message{msg})
	require.Len(t, threads, 1)
	chunks := evidence.NewChunker(cfg.User.AllAliases()).Split(&msg, threads[0].ThreadID)
	require.NotEmpty(t, chunks)
	return chunks[0]
}

func digestResponse(evidenceID, quote string) string {
	return fmt.Sprintf(`{
		"my_actions": [{
			"title": "Approve the Q3 budget",
			"quote": %q,
			"evidence_id": %q,
			"confidence": "high"
		}],
		"others_actions": [], "deadlines_meetings": [], "risks_blockers": [], "fyi": []
	}`, quote, evidenceID)
}

func TestRun_EmptyDay(t *testing.T) {
	cfg := testConfig()
	fake := &llm.FakeClient{}
	p, st, reg := testPipeline(t, cfg, &mailbox.FakeFetcher{}, fake)

	res, err := p.Run(context.Background(), Options{FromDate: digestDay})
	require.NoError(t, err)

	assert.False(t, res.Digest.Partial)
	assert.True(t, res.Digest.Sections.Empty())
	assert.Contains(t, res.Digest.RenderedSummary, "Nothing to report.")
	assert.Zero(t, fake.Calls(), "empty day needs no model call")

	_, err = os.Stat(st.JSONPath("2024-01-15"))
	assert.NoError(t, err, "empty-day digest is still persisted")
	assert.Equal(t, float64(1), reg.CounterValue(metrics.RunsTotal, metrics.Labels{"status": "success"}))
}

func TestRun_SingleMessage(t *testing.T) {
	cfg := testConfig()
	rec := record("m1", "Q3 budget",
		"Please approve the Q3 budget by Friday. The final numbers are attached for your review.",
		digestDay.Add(9*time.Hour))
	chunk := firstChunk(t, cfg, rec)

	fake := &llm.FakeClient{Responses: []llm.Response{
		{Text: digestResponse(chunk.EvidenceID, "Please approve the Q3 budget by Friday.")},
	}}
	p, st, _ := testPipeline(t, cfg, &mailbox.FakeFetcher{Records: []mailbox.Record{rec}}, fake)

	res, err := p.Run(context.Background(), Options{FromDate: digestDay})
	require.NoError(t, err)

	assert.False(t, res.Digest.Partial)
	assert.Equal(t, models.SchemaVersion, res.Digest.SchemaVersion)
	assert.Equal(t, 1, res.Digest.TotalMessagesProcessed)
	require.Len(t, res.Digest.Sections.MyActions, 1)
	item := res.Digest.Sections.MyActions[0]
	require.Len(t, item.Citations, 1)
	assert.Equal(t, "Q3 budget", item.EmailSubject)
	assert.Zero(t, res.CitationFailures)

	mark, ok := st.Watermark("Inbox")
	require.True(t, ok)
	assert.True(t, mark.After(digestDay))
}

func TestRun_RerunReusesWithinWindow(t *testing.T) {
	cfg := testConfig()
	rec := record("m1", "Q3 budget",
		"Please approve the Q3 budget by Friday. The final numbers are attached for your review.",
		digestDay.Add(9*time.Hour))
	chunk := firstChunk(t, cfg, rec)
	fake := &llm.FakeClient{Responses: []llm.Response{
		{Text: digestResponse(chunk.EvidenceID, "Please approve the Q3 budget by Friday.")},
	}}
	p, st, _ := testPipeline(t, cfg, &mailbox.FakeFetcher{Records: []mailbox.Record{rec}}, fake)

	first, err := p.Run(context.Background(), Options{FromDate: digestDay})
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(st.JSONPath("2024-01-15"))
	require.NoError(t, err)

	second, err := p.Run(context.Background(), Options{FromDate: digestDay})
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Digest.TraceID, second.Digest.TraceID)
	assert.Equal(t, 1, fake.Calls(), "rerun makes no model calls")

	secondBytes, err := os.ReadFile(st.JSONPath("2024-01-15"))
	require.NoError(t, err)
	assert.Equal(t, firstBytes, secondBytes, "rerun leaves the output byte-identical")
}

func TestRun_ForceRebuilds(t *testing.T) {
	cfg := testConfig()
	rec := record("m1", "Q3 budget",
		"Please approve the Q3 budget by Friday. The final numbers are attached for your review.",
		digestDay.Add(9*time.Hour))
	chunk := firstChunk(t, cfg, rec)
	resp := llm.Response{Text: digestResponse(chunk.EvidenceID, "Please approve the Q3 budget by Friday.")}
	fake := &llm.FakeClient{Responses: []llm.Response{resp}}
	p, _, _ := testPipeline(t, cfg, &mailbox.FakeFetcher{Records: []mailbox.Record{rec}}, fake)

	_, err := p.Run(context.Background(), Options{FromDate: digestDay})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), Options{FromDate: digestDay, Force: true})
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, 2, fake.Calls())
}

func TestRun_DryRunStopsBeforeLLM(t *testing.T) {
	cfg := testConfig()
	rec := record("m1", "Q3 budget",
		"Please approve the Q3 budget by Friday. The final numbers are attached for your review.",
		digestDay.Add(9*time.Hour))
	fake := &llm.FakeClient{}
	p, st, _ := testPipeline(t, cfg, &mailbox.FakeFetcher{Records: []mailbox.Record{rec}}, fake)

	res, err := p.Run(context.Background(), Options{FromDate: digestDay, DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Zero(t, fake.Calls())
	assert.Zero(t, res.Warnings, "clean dry run exits 0")
	assert.Equal(t, 1, res.Stats.Fetched)
	assert.Equal(t, 1, res.Stats.Messages)
	assert.Equal(t, 1, res.Stats.Threads)
	assert.NotZero(t, res.Stats.Chunks)

	_, err = os.Stat(st.JSONPath("2024-01-15"))
	assert.True(t, os.IsNotExist(err), "dry run writes nothing")
	_, ok := st.Watermark("Inbox")
	assert.False(t, ok)
}

func TestRun_DryRunCountsSkipsAsWarnings(t *testing.T) {
	cfg := testConfig()
	good := record("m1", "Q3 budget",
		"Please approve the Q3 budget by Friday. The final numbers are attached for your review.",
		digestDay.Add(9*time.Hour))
	auto := record("m2", "Out of office", "I am away until Monday.", digestDay.Add(10*time.Hour))
	auto.Headers = map[string]string{"auto-submitted": "auto-replied"}
	p, _, _ := testPipeline(t, cfg, &mailbox.FakeFetcher{Records: []mailbox.Record{good, auto}}, &llm.FakeClient{})

	res, err := p.Run(context.Background(), Options{FromDate: digestDay, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Skipped)
	assert.Equal(t, 1, res.Warnings, "skipped records surface as dry-run warnings")
}

func TestRun_AuthFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	p, _, reg := testPipeline(t, cfg, &mailbox.FakeFetcher{Err: mailbox.ErrAuth}, &llm.FakeClient{})

	_, err := p.Run(context.Background(), Options{FromDate: digestDay})
	require.ErrorIs(t, err, mailbox.ErrAuth)
	assert.Equal(t, float64(1), reg.CounterValue(metrics.RunsTotal, metrics.Labels{"status": "error"}))
}

func TestRun_LLMFailureDegrades(t *testing.T) {
	cfg := testConfig()
	rec := record("m1", "Q3 budget",
		"Please approve the Q3 budget by Friday. The final numbers are attached for your review.",
		digestDay.Add(9*time.Hour))
	fake := &llm.FakeClient{Errors: []error{llm.ErrTransport, llm.ErrTransport}}
	p, st, _ := testPipeline(t, cfg, &mailbox.FakeFetcher{Records: []mailbox.Record{rec}}, fake)

	res, err := p.Run(context.Background(), Options{FromDate: digestDay})
	require.NoError(t, err, "model failure degrades, never aborts")

	assert.True(t, res.Digest.Partial)
	assert.NotEmpty(t, res.Digest.DegradeReason)
	assert.Contains(t, res.Digest.RenderedSummary, "_partial:")

	_, err = os.Stat(st.JSONPath("2024-01-15"))
	assert.NoError(t, err, "degraded digest is still persisted")
}

func TestRun_CitationFailureWarnings(t *testing.T) {
	cfg := testConfig()
	rec := record("m1", "Q3 budget",
		"Please approve the Q3 budget by Friday. The final numbers are attached for your review.",
		digestDay.Add(9*time.Hour))
	fake := &llm.FakeClient{Responses: []llm.Response{
		{Text: digestResponse("ev-invented-by-model", "a quote that exists nowhere in the mail")},
	}}
	p, _, reg := testPipeline(t, cfg, &mailbox.FakeFetcher{Records: []mailbox.Record{rec}}, fake)

	res, err := p.Run(context.Background(), Options{FromDate: digestDay, ValidateCitations: true})
	require.NoError(t, err)

	assert.NotZero(t, res.CitationFailures)
	assert.NotZero(t, res.Warnings)
	assert.NotZero(t, reg.CounterValue(metrics.CitationValidationFailures,
		metrics.Labels{"type": "unknown_evidence"}))
}

func TestRun_SkipCounters(t *testing.T) {
	cfg := testConfig()
	auto := record("m2", "Out of office", "I am away until Monday.", digestDay.Add(10*time.Hour))
	auto.Headers = map[string]string{"auto-submitted": "auto-replied"}
	p, _, reg := testPipeline(t, cfg, &mailbox.FakeFetcher{Records: []mailbox.Record{auto}}, &llm.FakeClient{})

	res, err := p.Run(context.Background(), Options{FromDate: digestDay})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Skipped)
	assert.Equal(t, float64(1), reg.CounterValue(metrics.IngestSkippedTotal,
		metrics.Labels{"reason": "autoresponse"}))
	assert.True(t, res.Digest.Sections.Empty())
}

func TestFetchWindow(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	cal := fetchWindow(Options{FromDate: digestDay, Window: WindowCalendarDay}, time.UTC, now)
	assert.Equal(t, digestDay, cal.Start)
	assert.Equal(t, digestDay.AddDate(0, 0, 1), cal.End)

	roll := fetchWindow(Options{FromDate: digestDay, Window: WindowRolling24h}, time.UTC, now)
	assert.Equal(t, now, roll.End)
	assert.Equal(t, now.Add(-24*time.Hour), roll.Start)
}
