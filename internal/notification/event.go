// Package notification fans moderation events out to the operators who
// hold the moderation permission. Delivery is best effort: failures are
// logged and never reach the caller.
package notification

import (
	"time"
)

// EventType names a notifiable moderation action
type EventType string

const (
	EventFlagged   EventType = "transaction.flagged"
	EventApproved  EventType = "transaction.approved"
	EventCancelled EventType = "transaction.cancelled"
	EventVerified  EventType = "transaction.verified"
)

// Recipient is an operator who should see the event
type Recipient struct {
	OperatorID uint64 `json:"operator_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

// Event is the payload handed to every publisher
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	SourceKind string      `json:"source_kind"`
	RecordID   uint64      `json:"record_id"`
	Reference  string      `json:"reference"`
	ActorID    string      `json:"actor_id"`
	Status     string      `json:"status"`
	Amount     string      `json:"amount"`
	Reason     *string     `json:"reason,omitempty"`
	Recipients []Recipient `json:"recipients"`
	Timestamp  time.Time   `json:"timestamp"`
}
