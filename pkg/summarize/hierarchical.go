package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/inboxly/maildigest/pkg/digest"
	"github.com/inboxly/maildigest/pkg/metrics"
	"github.com/inboxly/maildigest/pkg/models"
	"github.com/inboxly/maildigest/pkg/prompt"
)

// threadSummary is the per-thread JSON contract of hierarchical mode.
type threadSummary struct {
	Title          string        `json:"title"`
	KeyCitations   []keyCitation `json:"key_citations"`
	PendingActions []summaryItem `json:"pending_actions"`
	Deadlines      []summaryItem `json:"deadlines"`
	OpenQuestions  []summaryItem `json:"open_questions"`
}

type keyCitation struct {
	EvidenceID string `json:"evidence_id"`
	Snippet    string `json:"snippet"`
}

type summaryItem struct {
	Title      string `json:"title"`
	EvidenceID string `json:"evidence_id"`
	Quote      string `json:"quote"`
	DueDate    string `json:"due_date,omitempty"`
}

func (s *threadSummary) hasCommitments() bool {
	return len(s.PendingActions) > 0 || len(s.Deadlines) > 0
}

// threadJob is one unit of per-thread work. Results land back in the job
// so the final aggregation keeps the input order.
type threadJob struct {
	thread  models.Thread
	subject string
	chunks  []prompt.ChunkContext

	// bypass carries raw chunk text of small threads straight to the
	// final input, skipping the per-thread call.
	bypass bool

	summary  *threadSummary
	degraded bool
	reason   string
}

// hierarchical runs the two-level mode: per-thread summaries in a worker
// pool, then one final aggregation call.
func (o *Orchestrator) hierarchical(ctx context.Context, in Input, reason TriggerReason) Outcome {
	jobs := o.buildThreadJobs(in)
	if len(jobs) == 0 {
		// Nothing survived chunking; an empty day, not a failure.
		return Outcome{Mode: ModeHierarchical, TriggerReason: reason}
	}

	o.runThreadPool(ctx, jobs)

	var degradedReason string
	var summarized, chunkTotal int
	for _, j := range jobs {
		if j.degraded && degradedReason == "" {
			degradedReason = j.reason
		}
		if !j.bypass {
			summarized++
			chunkTotal += len(j.chunks)
		}
	}
	if summarized > 0 {
		o.reg.SetGauge(metrics.AvgSubsummaryChunks, nil, float64(chunkTotal)/float64(summarized))
	}

	blocks := o.finalBlocks(jobs)
	p := o.builder.Final(in.DigestDate, in.Timezone, blocks)

	sections, trailing, err := o.callValidated(ctx, p, o.cfg.FlatTimeout)
	if err != nil {
		out := o.extractive(in, reason, degradeReason(err))
		out.Mode = ModeHierarchical
		return out
	}
	return Outcome{
		Sections:      sections,
		Trailing:      trailing,
		Mode:          ModeHierarchical,
		TriggerReason: reason,
		Partial:       degradedReason != "",
		DegradeReason: degradedReason,
	}
}

// buildThreadJobs groups chunks by thread, applies the must-include
// selection, and routes small threads to the bypass path. Thread order is
// newest first and stable, so the final prompt is deterministic.
func (o *Orchestrator) buildThreadJobs(in Input) []*threadJob {
	byThread := make(map[string][]models.Chunk)
	for _, ch := range in.Chunks {
		byThread[ch.ThreadID] = append(byThread[ch.ThreadID], ch)
	}

	threads := make([]models.Thread, len(in.Threads))
	copy(threads, in.Threads)
	sort.SliceStable(threads, func(i, j int) bool {
		if !threads[i].LatestReceivedAt.Equal(threads[j].LatestReceivedAt) {
			return threads[i].LatestReceivedAt.After(threads[j].LatestReceivedAt)
		}
		return threads[i].ThreadID < threads[j].ThreadID
	})

	var jobs []*threadJob
	for _, th := range threads {
		chunks := byThread[th.ThreadID]
		if len(chunks) == 0 {
			// Nothing survived chunking; no call to make.
			saved := 0
			for _, id := range th.MessageIDs {
				if msg := in.Corpus.Get(id); msg != nil {
					saved += estimateTokens(msg.BodyNormalized)
				}
			}
			o.reg.Add(metrics.SavedTokensTotal, metrics.Labels{"skip_reason": "empty_thread"}, float64(saved))
			continue
		}

		job := &threadJob{thread: th, subject: o.threadSubject(in, th)}
		if len(chunks) < o.cfg.SmallThreadChunks {
			job.bypass = true
			saved := 0
			for _, ch := range chunks {
				saved += ch.TokenCount
			}
			o.reg.Add(metrics.SavedTokensTotal, metrics.Labels{"skip_reason": "small_thread"}, float64(saved))
			job.chunks = o.contexts(in, chunks)
		} else {
			job.chunks = o.contexts(in, o.selectThreadChunks(chunks))
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// selectThreadChunks applies the per-thread cap with the must-include
// policy: chunks mentioning the user and the last-update chunk always go
// in; when they alone exceed the regular cap, the cap is raised to the
// exception limit, never beyond.
func (o *Orchestrator) selectThreadChunks(chunks []models.Chunk) []models.Chunk {
	limit := o.cfg.PerThreadMaxChunks
	if len(chunks) <= limit {
		return chunks
	}

	var must, rest []models.Chunk
	for _, ch := range chunks {
		switch {
		case ch.Signals.MentionsUser:
			o.reg.Inc(metrics.MustIncludeChunksTotal, metrics.Labels{"chunk_type": "mention"})
			must = append(must, ch)
		case ch.Signals.IsLastUpdate:
			o.reg.Inc(metrics.MustIncludeChunksTotal, metrics.Labels{"chunk_type": "last_update"})
			must = append(must, ch)
		default:
			rest = append(rest, ch)
		}
	}

	if len(must) > limit {
		// The raised cap serves must-include chunks only.
		if len(must) > o.cfg.PerThreadMaxChunksException {
			must = must[:o.cfg.PerThreadMaxChunksException]
		}
		return docOrder(chunks, must)
	}

	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].PriorityScore != rest[j].PriorityScore {
			return rest[i].PriorityScore > rest[j].PriorityScore
		}
		return rest[i].EvidenceID < rest[j].EvidenceID
	})
	for _, ch := range rest {
		if len(must) >= limit {
			break
		}
		must = append(must, ch)
	}
	return docOrder(chunks, must)
}

// docOrder restores the original chunk order for the prompt.
func docOrder(all, picked []models.Chunk) []models.Chunk {
	order := make(map[string]int, len(all))
	for i, ch := range all {
		order[ch.EvidenceID] = i
	}
	sort.SliceStable(picked, func(i, j int) bool {
		return order[picked[i].EvidenceID] < order[picked[j].EvidenceID]
	})
	return picked
}

// runThreadPool fans per-thread calls across the worker pool. Bypass jobs
// pass through untouched.
func (o *Orchestrator) runThreadPool(ctx context.Context, jobs []*threadJob) {
	workers := o.cfg.ParallelPool
	if workers < 1 {
		workers = 1
	}

	work := make(chan *threadJob)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range work {
				o.summarizeThread(ctx, job)
			}
		}()
	}
	for _, job := range jobs {
		if job.bypass {
			continue
		}
		work <- job
	}
	close(work)
	wg.Wait()
}

// summarizeThread performs one per-thread call. Failure never aborts the
// run: the job degrades to a stub built from its top-priority chunks.
func (o *Orchestrator) summarizeThread(ctx context.Context, job *threadJob) {
	p := o.builder.PerThread(job.subject, job.chunks)
	resp, err := o.client.Complete(ctx, llmRequest(o.llmCfg, p, o.cfg.PerThreadTimeout))
	if err != nil {
		o.degradeThread(job, degradeReason(err), err)
		return
	}

	obj, _, err := digest.ExtractObject(resp.Text)
	if err != nil {
		o.reg.Inc(metrics.LLMJSONErrorsTotal, nil)
		o.degradeThread(job, ReasonLLMSchema, err)
		return
	}
	var s threadSummary
	if err := json.Unmarshal([]byte(obj), &s); err != nil {
		o.reg.Inc(metrics.LLMJSONErrorsTotal, nil)
		o.degradeThread(job, ReasonLLMSchema, err)
		return
	}
	if s.Title == "" {
		s.Title = job.subject
	}
	job.summary = &s
}

// degradeThread builds the stub summary: the two highest-priority chunks
// become key citations so the final call still sees the thread.
func (o *Orchestrator) degradeThread(job *threadJob, reason string, err error) {
	slog.Warn("per-thread summarization degraded",
		"thread_id", job.thread.ThreadID, "reason", reason, "error", err)
	o.reg.Inc(metrics.DegradeActivatedTotal, metrics.Labels{"reason": reason})

	top := make([]prompt.ChunkContext, len(job.chunks))
	copy(top, job.chunks)
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].Chunk.PriorityScore != top[j].Chunk.PriorityScore {
			return top[i].Chunk.PriorityScore > top[j].Chunk.PriorityScore
		}
		return top[i].Chunk.EvidenceID < top[j].Chunk.EvidenceID
	})
	if len(top) > 2 {
		top = top[:2]
	}

	s := &threadSummary{Title: job.subject}
	for _, cc := range top {
		s.KeyCitations = append(s.KeyCitations, keyCitation{
			EvidenceID: cc.Chunk.EvidenceID,
			Snippet:    snippet(cc.Chunk.Content, 150),
		})
	}
	job.summary = s
	job.degraded = true
	job.reason = reason
}

// finalBlocks renders every job into a final-prompt text block and shrinks
// the set to the input token cap, preferring threads with commitments.
func (o *Orchestrator) finalBlocks(jobs []*threadJob) []string {
	type block struct {
		text    string
		tokens  int
		keep    bool
		ordinal int
	}

	blocks := make([]block, 0, len(jobs))
	for i, job := range jobs {
		var text string
		if job.bypass {
			text = renderBypass(job)
		} else {
			text = renderSummary(job)
		}
		blocks = append(blocks, block{
			text:    text,
			tokens:  estimateTokens(text),
			keep:    job.bypass || (job.summary != nil && job.summary.hasCommitments()),
			ordinal: i,
		})
	}

	total := 0
	for _, b := range blocks {
		total += b.tokens
	}
	if limit := o.cfg.FinalInputTokenCap; limit > 0 && total > limit {
		// Drop informational-only blocks from the oldest end until the
		// input fits; commitment-bearing blocks stay.
		for i := len(blocks) - 1; i >= 0 && total > limit; i-- {
			if blocks[i].keep {
				continue
			}
			total -= blocks[i].tokens
			blocks[i].text = ""
		}
	}

	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.text != "" {
			out = append(out, b.text)
		}
	}
	return out
}

func renderSummary(job *threadJob) string {
	s := job.summary
	var sb strings.Builder
	fmt.Fprintf(&sb, "[thread %s] %s\n", job.thread.ThreadID, s.Title)
	if job.degraded {
		sb.WriteString("note: summary degraded, citations only\n")
	}
	for _, c := range s.KeyCitations {
		fmt.Fprintf(&sb, "citation [%s]: %s\n", c.EvidenceID, c.Snippet)
	}
	writeItems(&sb, "pending", s.PendingActions)
	writeItems(&sb, "deadline", s.Deadlines)
	writeItems(&sb, "question", s.OpenQuestions)
	return sb.String()
}

func writeItems(sb *strings.Builder, label string, items []summaryItem) {
	for _, it := range items {
		fmt.Fprintf(sb, "%s [%s]: %s", label, it.EvidenceID, it.Title)
		if it.DueDate != "" {
			fmt.Fprintf(sb, " (due %s)", it.DueDate)
		}
		if it.Quote != "" {
			fmt.Fprintf(sb, " | quote: %s", it.Quote)
		}
		sb.WriteString("\n")
	}
}

// renderBypass inlines the raw chunks of a small thread.
func renderBypass(job *threadJob) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[thread %s, raw evidence] %s\n", job.thread.ThreadID, job.subject)
	for _, cc := range job.chunks {
		fmt.Fprintf(&sb, "[evidence %s]\n%s\n", cc.Chunk.EvidenceID, cc.Chunk.Content)
	}
	return sb.String()
}

func (o *Orchestrator) threadSubject(in Input, th models.Thread) string {
	if len(th.MessageIDs) == 0 {
		return ""
	}
	if msg := in.Corpus.Get(th.MessageIDs[0]); msg != nil {
		return msg.Subject
	}
	return ""
}

func (o *Orchestrator) contexts(in Input, chunks []models.Chunk) []prompt.ChunkContext {
	out := make([]prompt.ChunkContext, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, o.chunkContext(in, ch))
	}
	return out
}

func snippet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func estimateTokens(text string) int {
	return int(math.Ceil(1.3 * float64(len(strings.Fields(text)))))
}
