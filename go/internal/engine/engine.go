package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/okaplan/seawatch/go/internal/models"
)

// TimerRow is the raw material for one cart's derivation: the cart, its
// latest check-in row (nil if none), and the settings of its dive.
type TimerRow struct {
	Cart     models.Cart
	Last     *models.CheckIn
	Settings models.DiveSettings
}

// SnapshotSource defines what the engine needs from the store: the active
// dive's active carts with their latest check-ins. Ticks only read.
type SnapshotSource interface {
	ActiveTimerRows(ctx context.Context) ([]TimerRow, error)
}

// EventSink opens an alert Event record when an escalation level fires.
type EventSink interface {
	OpenEvent(ctx context.Context, cartID uuid.UUID, level models.EventType, at time.Time) (*models.Event, error)
}

// Alert is a single escalation emission pushed to observers.
type Alert struct {
	Level models.EventType    `json:"level"`
	Cart  models.CartSnapshot `json:"cart"`
	At    time.Time           `json:"at"`
}

// Broadcaster receives derived state fan-out. Implementations must not
// block: delivery is fire-and-forget, at-least-once, order-insensitive
// (every message is a full snapshot, never a diff).
type Broadcaster interface {
	BroadcastSnapshot(snaps []models.CartSnapshot)
	BroadcastAlert(alert Alert)
}

// Engine drives the 1 Hz tick loop: re-derive every active cart, feed each
// through the escalation tracker, broadcast the full snapshot. Mutating
// operations call Rederive/ResetCart so their effects are observed before
// the next tick.
type Engine struct {
	source       SnapshotSource
	events       EventSink
	tracker      *EscalationTracker
	clock        clockwork.Clock
	broadcasters []Broadcaster

	// Serializes ticks against mutation-triggered re-derives so a cart is
	// never evaluated from a snapshot older than the latest committed
	// check-in.
	mu sync.Mutex
}

func New(source SnapshotSource, events EventSink, clock clockwork.Clock, broadcasters ...Broadcaster) *Engine {
	return &Engine{
		source:       source,
		events:       events,
		tracker:      NewEscalationTracker(),
		clock:        clock,
		broadcasters: broadcasters,
	}
}

// Run ticks at 1 Hz until ctx is cancelled. Stopping cancels the ticker and
// leaves the store untouched.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(time.Second)
	defer ticker.Stop()

	log.Info().Msg("timer engine started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("timer engine shutting down")
			return nil
		case <-ticker.Chan():
			e.Rederive(ctx)
		}
	}
}

// Rederive recomputes all active carts' timer state, runs escalation, and
// broadcasts the full snapshot. Called by the tick loop and by every
// mutating operation.
func (e *Engine) Rederive(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.source.ActiveTimerRows(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load active carts for tick")
		return
	}

	now := e.clock.Now()
	snaps := make([]models.CartSnapshot, 0, len(rows))
	for _, row := range rows {
		snap := Derive(row.Cart, row.Last, row.Settings, now)
		snaps = append(snaps, snap)

		for _, level := range e.tracker.Check(snap, now) {
			e.emit(ctx, snap, level, now)
		}
	}

	for _, b := range e.broadcasters {
		b.BroadcastSnapshot(snaps)
	}
}

// emit opens the Event record for a fired level and pushes the alert. A
// store failure on one cart is logged and must not stop alerts for the
// others.
func (e *Engine) emit(ctx context.Context, snap models.CartSnapshot, level models.EventType, now time.Time) {
	if _, err := e.events.OpenEvent(ctx, snap.ID, level, now); err != nil {
		log.Error().
			Err(err).
			Str("cart_id", snap.ID.String()).
			Str("level", string(level)).
			Msg("failed to open alert event")
	}

	log.Warn().
		Str("cart_id", snap.ID.String()).
		Int("cart_number", snap.CartNumber).
		Str("level", string(level)).
		Msg("escalation fired")

	alert := Alert{Level: level, Cart: snap, At: now}
	for _, b := range e.broadcasters {
		b.BroadcastAlert(alert)
	}
}

// ResetCart starts a new escalation epoch for a cart. Mutating operations
// call this before their triggering Rederive, so a just-resolved cart can
// never be re-alerted by a stale tick.
func (e *Engine) ResetCart(cartID uuid.UUID) {
	e.tracker.Reset(cartID)
}

// Now exposes the engine clock so mutation handlers stamp times from the
// same source the tick loop uses.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}
