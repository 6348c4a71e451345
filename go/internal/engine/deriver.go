package engine

import (
	"time"

	"github.com/okaplan/seawatch/go/internal/models"
)

// RoundToNearest5Min snaps an instant to the nearest 5-minute wall-clock
// mark. Remainders below 3 minutes round down, 3 and above round up, and
// seconds are zeroed — operators read analog clocks. Idempotent.
func RoundToNearest5Min(t time.Time) time.Time {
	t = t.Truncate(time.Minute)
	rem := t.Minute() % 5
	if rem == 0 {
		return t
	}
	if rem < 3 {
		return t.Add(-time.Duration(rem) * time.Minute)
	}
	return t.Add(time.Duration(5-rem) * time.Minute)
}

// NextDeadline computes a fresh check-in deadline: now plus the dive's
// period, rounded to the 5-minute mark.
func NextDeadline(now time.Time, settings models.DiveSettings) time.Time {
	return RoundToNearest5Min(now.Add(settings.Period()))
}

// Derive computes a cart's timer state from its latest check-in row (nil if
// none) and the current instant. Pure: no status is ever persisted, so the
// stored and true state cannot drift.
func Derive(cart models.Cart, last *models.CheckIn, settings models.DiveSettings, now time.Time) models.CartSnapshot {
	snap := models.CartSnapshot{Cart: cart}

	if last == nil && cart.PausedAt == nil {
		snap.TimerStatus = models.TimerStatusWaiting
		return snap
	}

	var deadline time.Time
	if last != nil {
		t := last.CheckedInAt
		snap.LastCheckin = &t
		deadline = last.NextDeadline
	} else {
		deadline = cart.StartedAt.Add(settings.Period())
	}
	snap.NextDeadline = &deadline

	if cart.PausedAt != nil {
		snap.TimerStatus = models.TimerStatusPaused
		return snap
	}

	remaining := int(deadline.Sub(now) / time.Second)
	switch {
	case remaining <= 0:
		snap.TimerStatus = models.TimerStatusExpired
	case remaining <= int(settings.WarningLead()/time.Second):
		snap.TimerStatus = models.TimerStatusOrange
	default:
		snap.TimerStatus = models.TimerStatusGreen
	}
	snap.SecondsRemaining = max(0, remaining)
	return snap
}
