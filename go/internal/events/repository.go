package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okaplan/seawatch/go/internal/models"
)

const eventColumns = "id, cart_id, event_type, status, opened_at, resolved_at, notes, created_at"

// Repository implements alert event data access operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// OpenEvent inserts an open alert event for a cart.
func (r *Repository) OpenEvent(ctx context.Context, cartID uuid.UUID, level models.EventType, at time.Time) (*models.Event, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO events (id, cart_id, event_type, status, opened_at, notes)
		VALUES ($1, $2, $3, 'open', $4, '[]')
		RETURNING `+eventColumns,
		uuid.New(), cartID, level, at,
	)
	event, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to open event: %w", err)
	}
	return event, nil
}

// GetEvent retrieves an event by ID. Returns (nil, nil) when absent.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// ListEvents returns events, optionally filtered by status and/or cart,
// newest first.
func (r *Repository) ListEvents(ctx context.Context, status *models.EventStatus, cartID *uuid.UUID) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::uuid IS NULL OR cart_id = $2)
		ORDER BY opened_at DESC`,
		status, cartID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// UpdateEventParams carries partial event updates; nil fields are unchanged.
type UpdateEventParams struct {
	Status     *models.EventStatus
	ResolvedAt *time.Time
	Notes      []string
}

// UpdateEvent applies partial updates to an event. Returns (nil, nil) when
// the event does not exist.
func (r *Repository) UpdateEvent(ctx context.Context, id uuid.UUID, params UpdateEventParams) (*models.Event, error) {
	var notesJSON []byte
	if params.Notes != nil {
		var err error
		if notesJSON, err = json.Marshal(params.Notes); err != nil {
			return nil, fmt.Errorf("failed to marshal event notes: %w", err)
		}
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE events SET
			status = COALESCE($2, status),
			resolved_at = COALESCE($3, resolved_at),
			notes = COALESCE($4, notes)
		WHERE id = $1
		RETURNING `+eventColumns,
		id, params.Status, params.ResolvedAt, notesJSON,
	)
	event, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return event, nil
}

// ResolveOpenForCart resolves every open event of a cart, returning the
// count resolved.
func (r *Repository) ResolveOpenForCart(ctx context.Context, cartID uuid.UUID, at time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE events SET status = 'resolved', resolved_at = $2
		WHERE cart_id = $1 AND status = 'open'`,
		cartID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve open events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	var notesJSON []byte
	if err := row.Scan(&e.ID, &e.CartID, &e.Type, &e.Status,
		&e.OpenedAt, &e.ResolvedAt, &notesJSON, &e.CreatedAt); err != nil {
		return nil, err
	}
	if len(notesJSON) > 0 {
		if err := json.Unmarshal(notesJSON, &e.Notes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event notes: %w", err)
		}
	}
	if e.Notes == nil {
		e.Notes = []string{}
	}
	return &e, nil
}
