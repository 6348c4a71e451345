package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okaplan/seawatch/go/internal/models"
)

// EmergencyAfter is how long a cart must stay continuously expired past its
// deadline before the emergency level fires.
const EmergencyAfter = 15 * time.Minute

// EscalationTracker remembers which alert levels have already fired per
// cart within the current epoch (the interval between two resets). It is
// purely in-memory: a process restart forgives all prior suppression.
type EscalationTracker struct {
	mu    sync.Mutex
	fired map[uuid.UUID]map[models.EventType]bool
}

func NewEscalationTracker() *EscalationTracker {
	return &EscalationTracker{
		fired: make(map[uuid.UUID]map[models.EventType]bool),
	}
}

// Check evaluates a derived snapshot and returns the alert levels that fire
// now, at most once each per epoch. Waiting and paused carts never alert.
func (t *EscalationTracker) Check(snap models.CartSnapshot, now time.Time) []models.EventType {
	if snap.TimerStatus == models.TimerStatusWaiting || snap.TimerStatus == models.TimerStatusPaused {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sent := t.fired[snap.ID]
	if sent == nil {
		sent = make(map[models.EventType]bool)
		t.fired[snap.ID] = sent
	}

	var levels []models.EventType
	if snap.TimerStatus == models.TimerStatusOrange && !sent[models.EventTypeWarning] {
		sent[models.EventTypeWarning] = true
		levels = append(levels, models.EventTypeWarning)
	}
	if snap.TimerStatus == models.TimerStatusExpired {
		if !sent[models.EventTypeOverdue] {
			sent[models.EventTypeOverdue] = true
			levels = append(levels, models.EventTypeOverdue)
		}
		// Emergency is computed from time past the deadline, not from
		// time since the warning fired.
		if snap.NextDeadline != nil && now.Sub(*snap.NextDeadline) >= EmergencyAfter && !sent[models.EventTypeEmergency] {
			sent[models.EventTypeEmergency] = true
			levels = append(levels, models.EventTypeEmergency)
		}
	}
	return levels
}

// Reset clears the fired set for a cart, starting a new epoch. Called on
// check-in, new round, manual reset, end, and delete.
func (t *EscalationTracker) Reset(cartID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fired, cartID)
}
