package models

// ChunkSignals is the compact rule feature set computed per chunk. Selection
// and extraction read these instead of re-scanning chunk text.
type ChunkSignals struct {
	HasQuestion   bool `json:"has_question"`
	HasImperative bool `json:"has_imperative"`
	HasDeadline   bool `json:"has_deadline"`
	MentionsUser  bool `json:"mentions_user"`
	IsLastUpdate  bool `json:"is_last_update"`

	// SenderTier is the sender-importance tier: 2 high, 1 normal, 0 low.
	SenderTier int `json:"sender_tier"`
}

// Chunk is a verbatim span of a normalized message body that may support a
// digest item. Content always equals body[StartOffset:EndOffset] exactly.
type Chunk struct {
	// EvidenceID is deterministic over (message_id, start, end): identical
	// inputs yield identical ids across runs.
	EvidenceID string `json:"evidence_id"`

	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`

	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Content     string `json:"content"`

	// TokenCount is the 1.3 × word-count estimate.
	TokenCount int `json:"token_count"`

	PriorityScore float64      `json:"priority_score"`
	Signals       ChunkSignals `json:"signals"`
}

// MaxChunksPerMessage caps evidence chunks emitted per message.
const MaxChunksPerMessage = 12
