package models

import (
	"time"

	"github.com/google/uuid"
)

type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusCompleted CartStatus = "completed"
)

// Cart is a monitored group of divers sharing one check-in timer.
// DiveID is nullable only transiently (crash-recovery leftovers).
type Cart struct {
	ID              uuid.UUID  `json:"id"`
	CartNumber      int        `json:"cart_number"`
	CartType        int        `json:"cart_type"`
	DiverNames      []string   `json:"diver_names"`
	DiveID          *uuid.UUID `json:"dive_id"`
	Status          CartStatus `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	PausedAt        *time.Time `json:"paused_at"`
	CheckinLocation *string    `json:"checkin_location"`
	CreatedAt       time.Time  `json:"created_at"`
}
