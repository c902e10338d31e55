// Package httpapi is the thin wire-protocol adapter: the JSON envelope over
// WebSocket/HTTP and a minimal gin REST surface for the RBAC read
// endpoints. It is intentionally thin — HTTP routing and request decoding
// are treated as an external concern; this package exists only so the
// envelope and endpoint shapes have a concrete, testable home.
package httpapi

import (
	"encoding/json"
	"time"

	"github.com/collabforge/core/internal/ot"
)

// EventType discriminates the wire envelope's purpose.
type EventType string

const (
	EventOp        EventType = "op"
	EventAck       EventType = "ack"
	EventBroadcast EventType = "broadcast"
	EventConflict  EventType = "conflict"
	EventError     EventType = "error"
)

// Envelope is the outer JSON frame for every message exchanged over the
// collaboration WebSocket.
type Envelope struct {
	EventType EventType       `json:"event_type"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// OpPayload is the "data" body of an "op" envelope.
type OpPayload struct {
	ID        string     `json:"id"`
	Version   int        `json:"version"`
	Timestamp time.Time  `json:"timestamp"`
	Operation OpKindJSON `json:"operation"`
}

// OpKindJSON is the tagged-union wire shape for Operation.Kind: the field
// set present depends on "type", folding the insert/delete/replace payload
// shapes into one JSON object.
type OpKindJSON struct {
	Type       string `json:"type"`
	Position   int    `json:"position"`
	Content    string `json:"content,omitempty"`
	Length     int    `json:"length,omitempty"`
	OldContent string `json:"old_content,omitempty"`
	NewContent string `json:"new_content,omitempty"`
}

// AckPayload is the "data" body of an "ack" envelope.
type AckPayload struct {
	Version int `json:"version"`
}

// ConflictPayload restates session.ConflictReport for the wire.
type ConflictPayload struct {
	ConflictingOperations []OpPayload `json:"conflicting_operations"`
	DetectedAt             time.Time   `json:"detected_at"`
}

// ErrorPayload is the "data" body of an "error" envelope.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToOperation converts an inbound OpPayload into an ot.Operation, given the
// author id carried by the outer envelope.
func (p OpPayload) ToOperation(author string) ot.Operation {
	op := ot.Operation{
		ID:        p.ID,
		Version:   p.Version,
		Author:    author,
		Timestamp: p.Timestamp,
		Position:  p.Operation.Position,
	}
	switch p.Operation.Type {
	case "insert":
		op.Kind = ot.KindInsert
		op.Content = p.Operation.Content
	case "delete":
		op.Kind = ot.KindDelete
		op.Length = p.Operation.Length
	case "replace":
		op.Kind = ot.KindReplace
		op.OldContent = p.Operation.OldContent
		op.NewContent = p.Operation.NewContent
	}
	return op
}

// FromOperation converts an ot.Operation into its wire OpPayload.
func FromOperation(op ot.Operation) OpPayload {
	payload := OpPayload{ID: op.ID, Version: op.Version, Timestamp: op.Timestamp}
	payload.Operation.Position = op.Position
	switch op.Kind {
	case ot.KindInsert:
		payload.Operation.Type = "insert"
		payload.Operation.Content = op.Content
	case ot.KindDelete:
		payload.Operation.Type = "delete"
		payload.Operation.Length = op.Length
	case ot.KindReplace:
		payload.Operation.Type = "replace"
		payload.Operation.OldContent = op.OldContent
		payload.Operation.NewContent = op.NewContent
	}
	return payload
}

func newEnvelope(eventType EventType, sessionID, userID string, data any) Envelope {
	raw, _ := json.Marshal(data)
	return Envelope{EventType: eventType, SessionID: sessionID, UserID: userID, Data: raw, Timestamp: time.Now()}
}

// BroadcastEnvelope wraps an applied operation as a "broadcast" event for
// delivery to every subscriber except its author.
func BroadcastEnvelope(sessionID, author string, op ot.Operation) Envelope {
	return newEnvelope(EventBroadcast, sessionID, author, FromOperation(op))
}

// AckEnvelope wraps a successful submit's new version as an "ack" event.
func AckEnvelope(sessionID, userID string, version int) Envelope {
	return newEnvelope(EventAck, sessionID, userID, AckPayload{Version: version})
}

// ConflictEnvelope wraps a rejected submit's reconciliation tail.
func ConflictEnvelope(sessionID, userID string, ops []ot.Operation, detectedAt time.Time) Envelope {
	payloads := make([]OpPayload, len(ops))
	for i, op := range ops {
		payloads[i] = FromOperation(op)
	}
	return newEnvelope(EventConflict, sessionID, userID, ConflictPayload{ConflictingOperations: payloads, DetectedAt: detectedAt})
}

// ErrorEnvelope wraps a taxonomy error kind and message for delivery back to
// the submitter without mutating any state.
func ErrorEnvelope(sessionID, userID, kind, message string) Envelope {
	return newEnvelope(EventError, sessionID, userID, ErrorPayload{Kind: kind, Message: message})
}
