package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okaplan/seawatch/go/internal/models"
)

func TestRoundToNearest5Min(t *testing.T) {
	base := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		minute int
		second int
		want   int
	}{
		{"on the mark", 0, 0, 0},
		{"one past rounds down", 1, 0, 0},
		{"two past rounds down", 2, 59, 0},
		{"three past rounds up", 3, 0, 5},
		{"four past rounds up", 4, 30, 5},
		{"57 rounds down to 55", 57, 0, 55},
		{"58 rounds up to the hour", 58, 0, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base.Add(time.Duration(tt.minute)*time.Minute + time.Duration(tt.second)*time.Second)
			got := RoundToNearest5Min(in)
			assert.Equal(t, base.Add(time.Duration(tt.want)*time.Minute), got)
			assert.Zero(t, got.Second())
		})
	}
}

func TestRoundToNearest5MinIdempotent(t *testing.T) {
	in := time.Date(2025, 6, 1, 14, 38, 21, 0, time.UTC)
	once := RoundToNearest5Min(in)
	assert.Equal(t, once, RoundToNearest5Min(once))
}

func TestNextDeadline(t *testing.T) {
	settings := models.DiveSettings{PeriodMinutes: 60, WarningMinutes: 5}
	now := time.Date(2025, 6, 1, 14, 12, 40, 0, time.UTC)

	// 15:12 rounds down to 15:10.
	assert.Equal(t, time.Date(2025, 6, 1, 15, 10, 0, 0, time.UTC), NextDeadline(now, settings))
}

func activeCart() models.Cart {
	return models.Cart{
		ID:         uuid.New(),
		CartNumber: 7,
		Status:     models.CartStatusActive,
		StartedAt:  time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestDeriveWaiting(t *testing.T) {
	settings := models.DefaultDiveSettings()
	now := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	snap := Derive(activeCart(), nil, settings, now)

	assert.Equal(t, models.TimerStatusWaiting, snap.TimerStatus)
	assert.Nil(t, snap.NextDeadline)
	assert.Nil(t, snap.LastCheckin)
	assert.Zero(t, snap.SecondsRemaining)
}

func TestDerivePausedFreezesDeadline(t *testing.T) {
	settings := models.DefaultDiveSettings()
	cart := activeCart()
	pausedAt := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	cart.PausedAt = &pausedAt

	deadline := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	last := &models.CheckIn{
		CartID:       cart.ID,
		CheckedInAt:  time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC),
		NextDeadline: deadline,
	}

	// Hours later the paused cart still shows its frozen deadline and never
	// expires.
	now := deadline.Add(3 * time.Hour)
	snap := Derive(cart, last, settings, now)

	assert.Equal(t, models.TimerStatusPaused, snap.TimerStatus)
	require.NotNil(t, snap.NextDeadline)
	assert.Equal(t, deadline, *snap.NextDeadline)
}

func TestDeriveStatusThresholds(t *testing.T) {
	settings := models.DiveSettings{PeriodMinutes: 60, WarningMinutes: 5}
	cart := activeCart()
	deadline := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	last := &models.CheckIn{
		CartID:       cart.ID,
		CheckedInAt:  deadline.Add(-time.Hour),
		NextDeadline: deadline,
	}

	tests := []struct {
		name      string
		now       time.Time
		want      models.TimerStatus
		remaining int
	}{
		{"well before deadline", deadline.Add(-30 * time.Minute), models.TimerStatusGreen, 1800},
		{"just outside warning window", deadline.Add(-5*time.Minute - time.Second), models.TimerStatusGreen, 301},
		{"warning boundary is orange", deadline.Add(-5 * time.Minute), models.TimerStatusOrange, 300},
		{"one second left", deadline.Add(-time.Second), models.TimerStatusOrange, 1},
		{"exactly at deadline", deadline, models.TimerStatusExpired, 0},
		{"long past deadline clamps to zero", deadline.Add(45 * time.Minute), models.TimerStatusExpired, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Derive(cart, last, settings, tt.now)
			assert.Equal(t, tt.want, snap.TimerStatus)
			assert.Equal(t, tt.remaining, snap.SecondsRemaining)
			require.NotNil(t, snap.LastCheckin)
			assert.Equal(t, last.CheckedInAt, *snap.LastCheckin)
		})
	}
}
