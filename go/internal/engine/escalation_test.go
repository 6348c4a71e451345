package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/okaplan/seawatch/go/internal/models"
)

func snapshotWith(cartID uuid.UUID, status models.TimerStatus, deadline time.Time) models.CartSnapshot {
	return models.CartSnapshot{
		Cart:         models.Cart{ID: cartID, CartNumber: 3, Status: models.CartStatusActive},
		NextDeadline: &deadline,
		TimerStatus:  status,
	}
}

func TestEscalationWarningFiresOnce(t *testing.T) {
	tracker := NewEscalationTracker()
	cartID := uuid.New()
	deadline := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	snap := snapshotWith(cartID, models.TimerStatusOrange, deadline)

	now := deadline.Add(-4 * time.Minute)
	assert.Equal(t, []models.EventType{models.EventTypeWarning}, tracker.Check(snap, now))

	// Every subsequent orange tick is silent.
	for i := 0; i < 5; i++ {
		assert.Empty(t, tracker.Check(snap, now.Add(time.Duration(i)*time.Second)))
	}
}

func TestEscalationOverdueThenEmergency(t *testing.T) {
	tracker := NewEscalationTracker()
	cartID := uuid.New()
	deadline := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	snap := snapshotWith(cartID, models.TimerStatusExpired, deadline)

	assert.Equal(t, []models.EventType{models.EventTypeOverdue}, tracker.Check(snap, deadline))
	assert.Empty(t, tracker.Check(snap, deadline.Add(time.Minute)))

	// Just under the emergency threshold: still nothing new.
	assert.Empty(t, tracker.Check(snap, deadline.Add(EmergencyAfter-time.Second)))

	assert.Equal(t, []models.EventType{models.EventTypeEmergency}, tracker.Check(snap, deadline.Add(EmergencyAfter)))
	assert.Empty(t, tracker.Check(snap, deadline.Add(EmergencyAfter+time.Hour)))
}

func TestEscalationSkipsWarningWhenNeverOrange(t *testing.T) {
	tracker := NewEscalationTracker()
	cartID := uuid.New()
	deadline := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)

	// A cart observed for the first time already past its deadline fires
	// overdue, not warning.
	snap := snapshotWith(cartID, models.TimerStatusExpired, deadline)
	levels := tracker.Check(snap, deadline.Add(time.Minute))
	assert.Equal(t, []models.EventType{models.EventTypeOverdue}, levels)
}

func TestEscalationOverdueAndEmergencyTogether(t *testing.T) {
	tracker := NewEscalationTracker()
	cartID := uuid.New()
	deadline := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)

	snap := snapshotWith(cartID, models.TimerStatusExpired, deadline)
	levels := tracker.Check(snap, deadline.Add(20*time.Minute))
	assert.Equal(t, []models.EventType{models.EventTypeOverdue, models.EventTypeEmergency}, levels)
}

func TestEscalationWaitingAndPausedNeverAlert(t *testing.T) {
	tracker := NewEscalationTracker()
	cartID := uuid.New()
	deadline := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	now := deadline.Add(time.Hour)

	assert.Empty(t, tracker.Check(snapshotWith(cartID, models.TimerStatusWaiting, deadline), now))
	assert.Empty(t, tracker.Check(snapshotWith(cartID, models.TimerStatusPaused, deadline), now))
}

func TestEscalationResetStartsNewEpoch(t *testing.T) {
	tracker := NewEscalationTracker()
	cartID := uuid.New()
	deadline := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	snap := snapshotWith(cartID, models.TimerStatusOrange, deadline)
	now := deadline.Add(-4 * time.Minute)

	assert.Len(t, tracker.Check(snap, now), 1)
	assert.Empty(t, tracker.Check(snap, now))

	tracker.Reset(cartID)

	// The same level fires again in the new epoch.
	assert.Equal(t, []models.EventType{models.EventTypeWarning}, tracker.Check(snap, now))
}

func TestEscalationTracksCartsIndependently(t *testing.T) {
	tracker := NewEscalationTracker()
	deadline := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	now := deadline.Add(-4 * time.Minute)

	a := snapshotWith(uuid.New(), models.TimerStatusOrange, deadline)
	b := snapshotWith(uuid.New(), models.TimerStatusOrange, deadline)

	assert.Len(t, tracker.Check(a, now), 1)
	assert.Len(t, tracker.Check(b, now), 1)

	tracker.Reset(a.ID)
	assert.Len(t, tracker.Check(a, now), 1)
	assert.Empty(t, tracker.Check(b, now))
}
