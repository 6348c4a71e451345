package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okaplan/seawatch/go/internal/events"
	"github.com/okaplan/seawatch/go/internal/models"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// eventStore implements an in-memory events.EventsRepository
type eventStore struct {
	events map[uuid.UUID]*models.Event
}

func newEventStore() *eventStore {
	return &eventStore{events: make(map[uuid.UUID]*models.Event)}
}

func (s *eventStore) OpenEvent(ctx context.Context, cartID uuid.UUID, level models.EventType, at time.Time) (*models.Event, error) {
	event := &models.Event{
		ID:       uuid.New(),
		CartID:   cartID,
		Type:     level,
		Status:   models.EventStatusOpen,
		OpenedAt: at,
		Notes:    []string{},
	}
	s.events[event.ID] = event
	return event, nil
}

func (s *eventStore) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return s.events[id], nil
}

func (s *eventStore) ListEvents(ctx context.Context, status *models.EventStatus, cartID *uuid.UUID) ([]models.Event, error) {
	var out []models.Event
	for _, event := range s.events {
		out = append(out, *event)
	}
	return out, nil
}

func (s *eventStore) UpdateEvent(ctx context.Context, id uuid.UUID, params events.UpdateEventParams) (*models.Event, error) {
	event := s.events[id]
	if event == nil {
		return nil, nil
	}
	if params.Status != nil {
		event.Status = *params.Status
	}
	if params.ResolvedAt != nil {
		event.ResolvedAt = params.ResolvedAt
	}
	if params.Notes != nil {
		event.Notes = params.Notes
	}
	return event, nil
}

func (s *eventStore) ResolveOpenForCart(ctx context.Context, cartID uuid.UUID, at time.Time) (int, error) {
	return 0, nil
}

// Manual event writes must take their timestamps from the injected clock,
// not the wall clock, so they order with the tick loop.
func TestEventTimestampsComeFromClock(t *testing.T) {
	clock := fixedClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	handler := NewHandler(nil, nil, events.NewApp(newEventStore()), nil, clock)
	mux := handler.Routes()

	body, err := json.Marshal(map[string]any{
		"cart_id":    uuid.New().String(),
		"event_type": "overdue",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var opened models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opened))
	assert.Equal(t, clock.now, opened.OpenedAt.UTC())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/events/%s/resolve", opened.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resolved models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, clock.now, resolved.ResolvedAt.UTC())
}
