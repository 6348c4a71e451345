package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeWarning   EventType = "warning"
	EventTypeOverdue   EventType = "overdue"
	EventTypeEmergency EventType = "emergency"
)

type EventStatus string

const (
	EventStatusOpen     EventStatus = "open"
	EventStatusResolved EventStatus = "resolved"
)

// Event is an alert/incident record opened by the escalation tracker or an
// operator. Status transitions are monotonic: resolved_at is set exactly once.
type Event struct {
	ID         uuid.UUID   `json:"id"`
	CartID     uuid.UUID   `json:"cart_id"`
	Type       EventType   `json:"event_type"`
	Status     EventStatus `json:"status"`
	OpenedAt   time.Time   `json:"opened_at"`
	ResolvedAt *time.Time  `json:"resolved_at"`
	Notes      []string    `json:"notes"`
	CreatedAt  time.Time   `json:"created_at"`
}
