package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/okaplan/seawatch/go/internal/errs"
	"github.com/okaplan/seawatch/go/internal/models"
)

// EventsRepository defines what the app layer needs from the repository.
type EventsRepository interface {
	OpenEvent(ctx context.Context, cartID uuid.UUID, level models.EventType, at time.Time) (*models.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListEvents(ctx context.Context, status *models.EventStatus, cartID *uuid.UUID) ([]models.Event, error)
	UpdateEvent(ctx context.Context, id uuid.UUID, params UpdateEventParams) (*models.Event, error)
	ResolveOpenForCart(ctx context.Context, cartID uuid.UUID, at time.Time) (int, error)
}

// App manages the alert event log: operator review of open incidents,
// notes, and manual resolution.
type App struct {
	repo EventsRepository
}

// NewApp creates a new events App.
func NewApp(repo EventsRepository) *App {
	return &App{repo: repo}
}

// OpenEvent records a new open alert for a cart.
func (a *App) OpenEvent(ctx context.Context, cartID uuid.UUID, level models.EventType, at time.Time) (*models.Event, error) {
	event, err := a.repo.OpenEvent(ctx, cartID, level, at)
	if err != nil {
		return nil, errs.Internal("failed to open event", err)
	}
	return event, nil
}

// GetEvent returns a single event or NotFound.
func (a *App) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	event, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, errs.Internal("failed to get event", err)
	}
	if event == nil {
		return nil, errs.NotFoundf("event %s not found", id)
	}
	return event, nil
}

// ListEventsRequest filters the event log.
type ListEventsRequest struct {
	Status *models.EventStatus
	CartID *uuid.UUID
}

// ListEvents returns events newest first, optionally filtered.
func (a *App) ListEvents(ctx context.Context, req ListEventsRequest) ([]models.Event, error) {
	if req.Status != nil &&
		*req.Status != models.EventStatusOpen && *req.Status != models.EventStatusResolved {
		return nil, errs.Validationf("status must be open or resolved")
	}
	events, err := a.repo.ListEvents(ctx, req.Status, req.CartID)
	if err != nil {
		return nil, errs.Internal("failed to list events", err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// AddNote appends an operator note to an event.
func (a *App) AddNote(ctx context.Context, id uuid.UUID, note string) (*models.Event, error) {
	if note == "" {
		return nil, errs.Validationf("note is required")
	}

	event, err := a.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	notes := append(event.Notes, note)
	updated, err := a.repo.UpdateEvent(ctx, id, UpdateEventParams{Notes: notes})
	if err != nil {
		return nil, errs.Internal("failed to add event note", err)
	}
	if updated == nil {
		return nil, errs.NotFoundf("event %s not found", id)
	}
	return updated, nil
}

// ResolveEvent marks an open event resolved. Resolving a resolved event is
// a conflict: resolved_at is written exactly once.
func (a *App) ResolveEvent(ctx context.Context, id uuid.UUID, at time.Time) (*models.Event, error) {
	event, err := a.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.Status == models.EventStatusResolved {
		return nil, errs.Conflictf("event %s is already resolved", id)
	}

	status := models.EventStatusResolved
	updated, err := a.repo.UpdateEvent(ctx, id, UpdateEventParams{Status: &status, ResolvedAt: &at})
	if err != nil {
		return nil, errs.Internal("failed to resolve event", err)
	}
	if updated == nil {
		return nil, errs.NotFoundf("event %s not found", id)
	}

	log.Info().
		Str("event_id", id.String()).
		Str("cart_id", updated.CartID.String()).
		Str("level", string(updated.Type)).
		Msg("event resolved")
	return updated, nil
}

// ResolveOpenForCart resolves all open events of a cart, returning how many
// were closed. Called after check-ins, resets, and cart end.
func (a *App) ResolveOpenForCart(ctx context.Context, cartID uuid.UUID, at time.Time) (int, error) {
	n, err := a.repo.ResolveOpenForCart(ctx, cartID, at)
	if err != nil {
		return 0, errs.Internal("failed to resolve cart events", err)
	}
	if n > 0 {
		log.Info().Str("cart_id", cartID.String()).Int("resolved", n).Msg("auto-resolved open events")
	}
	return n, nil
}
