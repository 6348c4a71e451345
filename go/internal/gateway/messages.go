package gateway

import (
	"time"

	"github.com/okaplan/seawatch/go/internal/engine"
	"github.com/okaplan/seawatch/go/internal/models"
)

// MessageType identifies a dashboard push message.
type MessageType string

const (
	MessageTypeSnapshot MessageType = "SNAPSHOT"
	MessageTypeAlert    MessageType = "ALERT"
)

// Message is the envelope pushed to dashboard clients. Every snapshot
// message carries the full cart list, never a diff, so clients need no
// ordering or replay logic.
type Message struct {
	Type      MessageType           `json:"type"`
	Timestamp time.Time             `json:"timestamp"`
	Carts     []models.CartSnapshot `json:"carts,omitempty"`
	Alert     *engine.Alert         `json:"alert,omitempty"`
}

// NewSnapshotMessage wraps a full derived snapshot.
func NewSnapshotMessage(snaps []models.CartSnapshot, at time.Time) *Message {
	return &Message{
		Type:      MessageTypeSnapshot,
		Timestamp: at,
		Carts:     snaps,
	}
}

// NewAlertMessage wraps a fired escalation.
func NewAlertMessage(alert engine.Alert) *Message {
	return &Message{
		Type:      MessageTypeAlert,
		Timestamp: alert.At,
		Alert:     &alert,
	}
}
