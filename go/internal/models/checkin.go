package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckIn is an append-only record of a diver group reporting in.
// The latest row by checked_in_at determines the cart's derived timer state.
type CheckIn struct {
	ID           uuid.UUID `json:"id"`
	CartID       uuid.UUID `json:"cart_id"`
	CheckedInAt  time.Time `json:"checked_in_at"`
	NextDeadline time.Time `json:"next_deadline"`
	ResetReason  *string   `json:"reset_reason"`
	Location     *string   `json:"location"`
	CreatedAt    time.Time `json:"created_at"`
}
