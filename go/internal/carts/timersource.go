package carts

import (
	"context"
	"fmt"

	"github.com/okaplan/seawatch/go/internal/engine"
	"github.com/okaplan/seawatch/go/internal/models"
)

// ActiveDiveSource is the dive lookup the timer source needs.
type ActiveDiveSource interface {
	GetActiveDive(ctx context.Context) (*models.Dive, error)
}

// TimerSource feeds the engine's tick loop from the store: the active
// dive's active carts, each paired with its latest check-in and the dive's
// settings.
type TimerSource struct {
	carts *Repository
	dives ActiveDiveSource
}

// NewTimerSource creates a TimerSource over the repositories.
func NewTimerSource(carts *Repository, dives ActiveDiveSource) *TimerSource {
	return &TimerSource{carts: carts, dives: dives}
}

// ActiveTimerRows returns one row per active cart under the active dive.
// With no active dive there is nothing to derive.
func (s *TimerSource) ActiveTimerRows(ctx context.Context) ([]engine.TimerRow, error) {
	dive, err := s.dives.GetActiveDive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active dive: %w", err)
	}
	if dive == nil {
		return nil, nil
	}

	cartRows, latest, err := s.carts.ActiveCartsWithLatest(ctx, dive.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active carts: %w", err)
	}

	rows := make([]engine.TimerRow, 0, len(cartRows))
	for i, cart := range cartRows {
		rows = append(rows, engine.TimerRow{
			Cart:     cart,
			Last:     latest[i],
			Settings: dive.Settings,
		})
	}
	return rows, nil
}
