package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okaplan/seawatch/go/internal/errs"
	"github.com/okaplan/seawatch/go/internal/models"
)

// mockRepo implements a test double for EventsRepository
type mockRepo struct {
	events map[uuid.UUID]*models.Event
}

func newMockRepo() *mockRepo {
	return &mockRepo{events: make(map[uuid.UUID]*models.Event)}
}

func (m *mockRepo) OpenEvent(ctx context.Context, cartID uuid.UUID, level models.EventType, at time.Time) (*models.Event, error) {
	event := &models.Event{
		ID:       uuid.New(),
		CartID:   cartID,
		Type:     level,
		Status:   models.EventStatusOpen,
		OpenedAt: at,
		Notes:    []string{},
	}
	m.events[event.ID] = event
	return event, nil
}

func (m *mockRepo) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return m.events[id], nil
}

func (m *mockRepo) ListEvents(ctx context.Context, status *models.EventStatus, cartID *uuid.UUID) ([]models.Event, error) {
	var out []models.Event
	for _, event := range m.events {
		if status != nil && event.Status != *status {
			continue
		}
		if cartID != nil && event.CartID != *cartID {
			continue
		}
		out = append(out, *event)
	}
	return out, nil
}

func (m *mockRepo) UpdateEvent(ctx context.Context, id uuid.UUID, params UpdateEventParams) (*models.Event, error) {
	event := m.events[id]
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

func (m *mockRepo) ResolveOpenForCart(ctx context.Context, cartID uuid.UUID, at time.Time) (int, error) {
	n := 0
	for _, event := range m.events {
		if event.CartID == cartID && event.Status == models.EventStatusOpen {
			event.Status = models.EventStatusResolved
			event.ResolvedAt = &at
			n++
		}
	}
	return n, nil
}

func TestResolveEventExactlyOnce(t *testing.T) {
	repo := newMockRepo()
	app := NewApp(repo)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	opened, err := app.OpenEvent(ctx, uuid.New(), models.EventTypeOverdue, now)
	require.NoError(t, err)

	resolved, err := app.ResolveEvent(ctx, opened.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = app.ResolveEvent(ctx, opened.ID, now.Add(2*time.Minute))
	assert.True(t, errs.IsConflict(err))
}

func TestResolveEventNotFound(t *testing.T) {
	app := NewApp(newMockRepo())

	_, err := app.ResolveEvent(context.Background(), uuid.New(), time.Now())
	assert.True(t, errs.IsNotFound(err))
}

func TestAddNoteAppends(t *testing.T) {
	repo := newMockRepo()
	app := NewApp(repo)
	ctx := context.Background()
	now := time.Now()

	opened, err := app.OpenEvent(ctx, uuid.New(), models.EventTypeWarning, now)
	require.NoError(t, err)

	_, err = app.AddNote(ctx, opened.ID, "")
	assert.True(t, errs.IsValidation(err))

	updated, err := app.AddNote(ctx, opened.ID, "crew contacted")
	require.NoError(t, err)
	updated, err = app.AddNote(ctx, updated.ID, "all clear")
	require.NoError(t, err)

	assert.Equal(t, []string{"crew contacted", "all clear"}, updated.Notes)
}

func TestResolveOpenForCartClosesAll(t *testing.T) {
	repo := newMockRepo()
	app := NewApp(repo)
	ctx := context.Background()
	cartID := uuid.New()
	now := time.Now()

	_, err := app.OpenEvent(ctx, cartID, models.EventTypeWarning, now)
	require.NoError(t, err)
	_, err = app.OpenEvent(ctx, cartID, models.EventTypeOverdue, now)
	require.NoError(t, err)
	_, err = app.OpenEvent(ctx, uuid.New(), models.EventTypeWarning, now)
	require.NoError(t, err)

	n, err := app.ResolveOpenForCart(ctx, cartID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	status := models.EventStatusOpen
	open, err := app.ListEvents(ctx, ListEventsRequest{Status: &status})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestListEventsValidatesStatus(t *testing.T) {
	app := NewApp(newMockRepo())

	bad := models.EventStatus("bogus")
	_, err := app.ListEvents(context.Background(), ListEventsRequest{Status: &bad})
	assert.True(t, errs.IsValidation(err))
}
