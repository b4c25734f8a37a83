package prompt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/inboxly/maildigest/pkg/models"
)

func testChunkContext() ChunkContext {
	return ChunkContext{
		Chunk: models.Chunk{
			EvidenceID: "ev-abc",
			MessageID:  "m-1",
			ThreadID:   "t-1",
			Content:    "Please approve the budget by Friday.",
			Signals:    models.ChunkSignals{HasImperative: true, HasDeadline: true},
		},
		Msg: &models.Message{
			FromEmail:  "bob@corp.example",
			ToEmails:   []string{"alice@corp.example"},
			Subject:    "Q3 budget",
			ReceivedAt: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
			Importance: models.ImportanceHigh,
		},
		AddressedToMe: true,
	}
}

func TestNewBuilder_PanicsOnEmptyInputs(t *testing.T) {
	assert.Panics(t, func() { NewBuilder("", "alice@corp.example") })
	assert.Panics(t, func() { NewBuilder("v3", "") })
	assert.NotPanics(t, func() { NewBuilder("v3", "alice@corp.example") })
}

func TestFlat_CarriesChunkHeaders(t *testing.T) {
	b := NewBuilder("v3", "alice@corp.example")

	p := b.Flat("2024-01-15", "Europe/Berlin", []ChunkContext{testChunkContext()})

	assert.Contains(t, p, "evidence ev-abc")
	assert.Contains(t, p, "from: bob@corp.example")
	assert.Contains(t, p, "subject: Q3 budget")
	assert.Contains(t, p, "addressed-to-me: yes")
	assert.Contains(t, p, "signals: imperative,deadline")
	assert.Contains(t, p, "Please approve the budget by Friday.")
	assert.Contains(t, p, `"confidence"`)
}

func TestPerThread_SchemaAndEvidence(t *testing.T) {
	b := NewBuilder("v3", "alice@corp.example")

	p := b.PerThread("Q3 budget", []ChunkContext{testChunkContext()})

	assert.Contains(t, p, `"key_citations"`)
	assert.Contains(t, p, `"pending_actions"`)
	assert.Contains(t, p, "evidence ev-abc")
}

func TestRepair_QuotesPreviousResponse(t *testing.T) {
	b := NewBuilder("v3", "alice@corp.example")

	p := b.Repair("the original prompt", `{"broken": }`, errors.New("quote too short"))

	assert.Contains(t, p, "quote too short")
	assert.Contains(t, p, `{"broken": }`)
	assert.Contains(t, p, "the original prompt")
}
