package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okaplan/seawatch/go/internal/models"
)

type fakeSource struct {
	mu   sync.Mutex
	rows []TimerRow
	err  error
}

func (f *fakeSource) ActiveTimerRows(ctx context.Context) ([]TimerRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, f.err
}

type fakeSink struct {
	mu     sync.Mutex
	opened []models.EventType
	err    error
}

func (f *fakeSink) OpenEvent(ctx context.Context, cartID uuid.UUID, level models.EventType, at time.Time) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, level)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Event{ID: uuid.New(), CartID: cartID, Type: level, Status: models.EventStatusOpen, OpenedAt: at}, nil
}

type fakeBroadcaster struct {
	mu        sync.Mutex
	snapshots [][]models.CartSnapshot
	alerts    []Alert
}

func (f *fakeBroadcaster) BroadcastSnapshot(snaps []models.CartSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snaps)
}

func (f *fakeBroadcaster) BroadcastAlert(alert Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
}

func timerRow(deadline time.Time) TimerRow {
	return TimerRow{
		Cart: models.Cart{ID: uuid.New(), CartNumber: 1, Status: models.CartStatusActive},
		Last: &models.CheckIn{
			CheckedInAt:  deadline.Add(-time.Hour),
			NextDeadline: deadline,
		},
		Settings: models.DiveSettings{PeriodMinutes: 60, WarningMinutes: 5},
	}
}

func TestRederiveBroadcastsFullSnapshot(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC))
	deadline := clock.Now().Add(30 * time.Minute)

	source := &fakeSource{rows: []TimerRow{timerRow(deadline), timerRow(deadline)}}
	sink := &fakeSink{}
	bc := &fakeBroadcaster{}

	eng := New(source, sink, clock, bc)
	eng.Rederive(context.Background())

	require.Len(t, bc.snapshots, 1)
	assert.Len(t, bc.snapshots[0], 2)
	assert.Equal(t, models.TimerStatusGreen, bc.snapshots[0][0].TimerStatus)
	assert.Empty(t, sink.opened)
	assert.Empty(t, bc.alerts)
}

func TestRederiveFiresEscalationOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC))
	deadline := clock.Now().Add(4 * time.Minute) // inside the warning window

	source := &fakeSource{rows: []TimerRow{timerRow(deadline)}}
	sink := &fakeSink{}
	bc := &fakeBroadcaster{}

	eng := New(source, sink, clock, bc)
	eng.Rederive(context.Background())
	eng.Rederive(context.Background())

	assert.Equal(t, []models.EventType{models.EventTypeWarning}, sink.opened)
	require.Len(t, bc.alerts, 1)
	assert.Equal(t, models.EventTypeWarning, bc.alerts[0].Level)
	assert.Equal(t, clock.Now(), bc.alerts[0].At)
}

func TestRederiveProgressesThroughLevels(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC))
	deadline := clock.Now().Add(4 * time.Minute)

	source := &fakeSource{rows: []TimerRow{timerRow(deadline)}}
	sink := &fakeSink{}
	bc := &fakeBroadcaster{}

	eng := New(source, sink, clock, bc)

	eng.Rederive(context.Background()) // orange: warning
	clock.Advance(5 * time.Minute)     // past deadline
	eng.Rederive(context.Background()) // expired: overdue
	clock.Advance(EmergencyAfter)
	eng.Rederive(context.Background()) // long expired: emergency

	assert.Equal(t, []models.EventType{
		models.EventTypeWarning,
		models.EventTypeOverdue,
		models.EventTypeEmergency,
	}, sink.opened)
}

func TestRederiveSinkFailureStillBroadcasts(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC))
	deadline := clock.Now().Add(-time.Minute)

	source := &fakeSource{rows: []TimerRow{timerRow(deadline)}}
	sink := &fakeSink{err: assert.AnError}
	bc := &fakeBroadcaster{}

	eng := New(source, sink, clock, bc)
	eng.Rederive(context.Background())

	// The alert still reaches observers even though the event row failed.
	require.Len(t, bc.alerts, 1)
	assert.Equal(t, models.EventTypeOverdue, bc.alerts[0].Level)
	require.Len(t, bc.snapshots, 1)
}

func TestResetCartReArmsEscalation(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC))
	deadline := clock.Now().Add(4 * time.Minute)

	row := timerRow(deadline)
	source := &fakeSource{rows: []TimerRow{row}}
	sink := &fakeSink{}
	bc := &fakeBroadcaster{}

	eng := New(source, sink, clock, bc)
	eng.Rederive(context.Background())
	eng.ResetCart(row.Cart.ID)
	eng.Rederive(context.Background())

	assert.Equal(t, []models.EventType{models.EventTypeWarning, models.EventTypeWarning}, sink.opened)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC))
	deadline := clock.Now().Add(30 * time.Minute)

	source := &fakeSource{rows: []TimerRow{timerRow(deadline)}}
	sink := &fakeSink{}
	bc := &fakeBroadcaster{}

	eng := New(source, sink, clock, bc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	// Wait for the ticker to be armed, then drive two ticks.
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	clock.BlockUntil(1)
	clock.Advance(time.Second)

	assert.Eventually(t, func() bool {
		bc.mu.Lock()
		defer bc.mu.Unlock()
		return len(bc.snapshots) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
