package metrics

// Metric names are part of the observability contract; renaming one is a
// breaking change for dashboards.
const (
	MessagesFetchedTotal       = "messages_fetched_total"             // labels: status
	IngestSkippedTotal         = "ingest_skipped_total"               // labels: reason
	ThreadsMergedTotal         = "threads_merged_total"               // labels: method
	RedundancyIndex            = "redundancy_index"                   // gauge
	CleanerRemovedCharsTotal   = "email_cleaner_removed_chars_total"  // labels: type
	CleanerErrorTotal          = "cleaner_error_total"
	TZNaiveTotal               = "tz_naive_total"
	ChunksProducedTotal        = "chunks_produced_total"
	ActionsFoundTotal          = "actions_found_total" // labels: kind
	MentionsFoundTotal         = "mentions_found_total"
	ActionsConfidenceHistogram = "actions_confidence_histogram"
	RankScoreHistogram         = "rank_score_histogram"
	Top10ActionsShare          = "top10_actions_share"       // gauge
	HierarchicalRunsTotal      = "hierarchical_runs_total"   // labels: trigger_reason
	AvgSubsummaryChunks        = "avg_subsummary_chunks"     // gauge
	SavedTokensTotal           = "saved_tokens_total"        // labels: skip_reason
	MustIncludeChunksTotal     = "must_include_chunks_total" // labels: chunk_type
	LLMLatencyMS               = "llm_latency_ms"
	LLMTokensInTotal           = "llm_tokens_in_total"
	LLMTokensOutTotal          = "llm_tokens_out_total"
	LLMJSONErrorsTotal         = "llm_json_errors_total"
	CitationValidationFailures = "citation_validation_failures_total" // labels: type
	CitationsPerItemHistogram  = "citations_per_item_histogram"
	DegradeActivatedTotal      = "degrade_activated_total" // labels: reason
	RunsTotal                  = "runs_total"              // labels: status
	DigestBuildSeconds         = "digest_build_seconds"
)

// bucketsFor returns the fixed bucket bounds for a histogram name. Unlisted
// names get the generic unit-interval buckets.
func bucketsFor(name string) []float64 {
	switch name {
	case LLMLatencyMS:
		return []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 60000}
	case DigestBuildSeconds:
		return []float64{1, 5, 15, 30, 60, 120, 300, 600}
	case CitationsPerItemHistogram:
		return []float64{1, 2, 3, 5, 8}
	default:
		// Confidence and rank scores live in [0,1].
		return []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}
	}
}
