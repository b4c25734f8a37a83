package models

// Citation proves an item came from a real span of a real message. Start and
// End are byte offsets into the message's normalized body; Preview must
// equal body[Start:End] (modulo the narrow whitespace-tolerant match applied
// at validation time).
type Citation struct {
	MessageID string `json:"message_id"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Preview   string `json:"preview"`

	// Checksum optionally carries the source message's body checksum.
	Checksum string `json:"checksum,omitempty"`
}
