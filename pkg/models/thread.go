package models

import "time"

// MergeMethod records which grouping stage formed a thread.
type MergeMethod string

// Merge methods, in grouping priority order.
const (
	MergedByConversationID MergeMethod = "conversation_id"
	MergedByReplyChain     MergeMethod = "reply_chain"
	MergedBySubject        MergeMethod = "subject"
	MergedBySemantic       MergeMethod = "semantic"
)

// Thread is a set of messages belonging to one conversation. Built once by
// the thread-build stage; messages are referenced by id into the Corpus.
type Thread struct {
	ThreadID string `json:"thread_id"`

	// MessageIDs is ordered by received-at ascending.
	MessageIDs []string `json:"message_ids"`

	ParticipantsCount int         `json:"participants_count"`
	MergedBy          MergeMethod `json:"merged_by"`

	// DuplicateSources lists message ids suppressed as checksum duplicates
	// of a retained primary.
	DuplicateSources []string `json:"duplicate_sources,omitempty"`

	// LatestReceivedAt is the received-at of the newest message, used for
	// thread ordering and the deterministic join order in hierarchical mode.
	LatestReceivedAt time.Time `json:"latest_received_at"`
}

// Corpus is the arena holding all normalized messages of a run. Threads and
// chunks refer to messages by id; traversals go from threads outward, never
// back from a message to its thread.
type Corpus struct {
	Messages []Message
	byID     map[string]int
}

// NewCorpus builds the arena and its id index.
func NewCorpus(messages []Message) *Corpus {
	c := &Corpus{
		Messages: messages,
		byID:     make(map[string]int, len(messages)),
	}
	for i := range messages {
		c.byID[messages[i].MessageID] = i
	}
	return c
}

// Get returns the message with the given id, or nil when unknown.
func (c *Corpus) Get(messageID string) *Message {
	idx, ok := c.byID[messageID]
	if !ok {
		return nil
	}
	return &c.Messages[idx]
}

// Len returns the number of messages in the arena.
func (c *Corpus) Len() int { return len(c.Messages) }
