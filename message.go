package gossipmesh

import (
	"crypto/sha256"
	"encoding/hex"
)

// MessageID identifies gossip content: the lowercase hex SHA-256 of the
// payload. Two payloads carry the same ID iff they are byte-identical.
type MessageID string

// ComputeMessageID hashes a payload into its MessageID.
func ComputeMessageID(payload string) MessageID {
	sum := sha256.Sum256([]byte(payload))
	return MessageID(hex.EncodeToString(sum[:]))
}

// Message is a gossip payload together with its content identity and the
// labels recording where it came from. Payload and ID never change after
// construction; Provenance is append-only. Equality is by ID only.
type Message struct {
	Payload    string    `json:"payload"`
	ID         MessageID `json:"id"`
	Provenance []string  `json:"provenance"`
}

// NewMessage builds a message originated locally. The origin label becomes
// the first provenance entry.
func NewMessage(payload, origin string) Message {
	return Message{
		Payload:    payload,
		ID:         ComputeMessageID(payload),
		Provenance: []string{origin},
	}
}

// ReceivedMessage builds a message first learned from a remote sender.
func ReceivedMessage(payload, sender string) Message {
	return Message{
		Payload:    payload,
		ID:         ComputeMessageID(payload),
		Provenance: []string{sender},
	}
}
