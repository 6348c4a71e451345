package carts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okaplan/seawatch/go/internal/errs"
	"github.com/okaplan/seawatch/go/internal/models"
	"github.com/okaplan/seawatch/go/internal/sqlutil"
)

const (
	cartColumns    = "id, cart_number, cart_type, diver_names, dive_id, status, started_at, ended_at, paused_at, checkin_location, created_at"
	checkinColumns = "id, cart_id, checked_in_at, next_deadline, reset_reason, location, created_at"

	uniqueViolation = "23505"
)

// Repository implements cart and check-in data access operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new carts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateCart inserts a new cart. A duplicate cart_number within the same
// dive surfaces as a conflict.
func (r *Repository) CreateCart(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	namesJSON, err := json.Marshal(cart.DiverNames)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal diver names: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO carts (id, cart_number, cart_type, diver_names, dive_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+cartColumns,
		cart.ID, cart.CartNumber, cart.CartType, namesJSON, cart.DiveID, cart.Status, cart.StartedAt,
	)
	created, err := scanCart(row)
	if isUniqueViolation(err) {
		return nil, errs.Conflictf("cart number %d already exists in this dive", cart.CartNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return created, nil
}

// GetCart retrieves a cart by ID. Returns (nil, nil) when absent.
func (r *Repository) GetCart(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
	cart, err := scanCart(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return cart, nil
}

// UpdateCartParams carries partial cart updates; nil fields are unchanged.
type UpdateCartParams struct {
	CartNumber *int
	CartType   *int
	DiverNames []string
}

// UpdateCart applies partial updates to a cart.
func (r *Repository) UpdateCart(ctx context.Context, id uuid.UUID, params UpdateCartParams) (*models.Cart, error) {
	var namesJSON []byte
	var err error
	if params.DiverNames != nil {
		if namesJSON, err = json.Marshal(params.DiverNames); err != nil {
			return nil, fmt.Errorf("failed to marshal diver names: %w", err)
		}
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE carts SET
			cart_number = COALESCE($2, cart_number),
			cart_type = COALESCE($3, cart_type),
			diver_names = COALESCE($4, diver_names)
		WHERE id = $1
		RETURNING `+cartColumns,
		id, params.CartNumber, params.CartType, namesJSON,
	)
	cart, err := scanCart(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if isUniqueViolation(err) {
		return nil, errs.Conflictf("cart number already exists in this dive")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update cart: %w", err)
	}
	return cart, nil
}

// DeleteCartCascade removes a cart and its check-ins, events, and
// attachments in one transaction.
func (r *Repository) DeleteCartCascade(ctx context.Context, id uuid.UUID) error {
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM checkins WHERE cart_id = $1`,
			`DELETE FROM events WHERE cart_id = $1`,
			`DELETE FROM attachments WHERE cart_id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM carts WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.NotFoundf("cart %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

// EndCart marks an active cart completed. Returns (nil, nil) when no
// active cart matched.
func (r *Repository) EndCart(ctx context.Context, id uuid.UUID, endedAt time.Time) (*models.Cart, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE carts SET status = 'completed', ended_at = $2
		WHERE id = $1 AND status = 'active'
		RETURNING `+cartColumns,
		id, endedAt,
	)
	cart, err := scanCart(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to end cart: %w", err)
	}
	return cart, nil
}

// SetPaused stamps paused_at on an active cart, freezing it on its last
// deadline. No check-in row is written.
func (r *Repository) SetPaused(ctx context.Context, id uuid.UUID, pausedAt time.Time, location *string) (*models.Cart, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE carts SET paused_at = $2, checkin_location = COALESCE($3, checkin_location)
		WHERE id = $1 AND status = 'active'
		RETURNING `+cartColumns,
		id, pausedAt, location,
	)
	cart, err := scanCart(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pause cart: %w", err)
	}
	return cart, nil
}

// StartRound appends a check-in row and clears the pause marker in one
// transaction. Used by start-timers, new-round, and reset.
func (r *Repository) StartRound(ctx context.Context, checkin *models.CheckIn) error {
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO checkins (id, cart_id, checked_in_at, next_deadline, reset_reason, location)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			checkin.ID, checkin.CartID, checkin.CheckedInAt, checkin.NextDeadline, checkin.ResetReason, checkin.Location,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE carts SET paused_at = NULL, checkin_location = COALESCE($2, checkin_location)
			WHERE id = $1`,
			checkin.CartID, checkin.Location,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to start round: %w", err)
	}
	return nil
}

// LatestCheckIn returns the newest check-in row for a cart, or (nil, nil)
// when the cart has none.
func (r *Repository) LatestCheckIn(ctx context.Context, cartID uuid.UUID) (*models.CheckIn, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+checkinColumns+` FROM checkins
		WHERE cart_id = $1
		ORDER BY checked_in_at DESC
		LIMIT 1`, cartID)
	checkin, err := scanCheckIn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest check-in: %w", err)
	}
	return checkin, nil
}

// ListCheckIns returns a cart's full check-in history, newest first.
func (r *Repository) ListCheckIns(ctx context.Context, cartID uuid.UUID) ([]models.CheckIn, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+checkinColumns+` FROM checkins
		WHERE cart_id = $1
		ORDER BY checked_in_at DESC`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	defer rows.Close()

	checkins := []models.CheckIn{}
	for rows.Next() {
		checkin, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		checkins = append(checkins, *checkin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	return checkins, nil
}

// ActiveCartsWithLatest returns the active carts of a dive joined with each
// cart's newest check-in row, ordered by cart number.
func (r *Repository) ActiveCartsWithLatest(ctx context.Context, diveID uuid.UUID) ([]models.Cart, []*models.CheckIn, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.cart_number, c.cart_type, c.diver_names, c.dive_id, c.status,
		       c.started_at, c.ended_at, c.paused_at, c.checkin_location, c.created_at,
		       ch.id, ch.cart_id, ch.checked_in_at, ch.next_deadline, ch.reset_reason, ch.location, ch.created_at
		FROM carts c
		LEFT JOIN LATERAL (
			SELECT * FROM checkins
			WHERE cart_id = c.id
			ORDER BY checked_in_at DESC
			LIMIT 1
		) ch ON TRUE
		WHERE c.status = 'active' AND c.dive_id = $1
		ORDER BY c.cart_number`, diveID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query active carts: %w", err)
	}
	defer rows.Close()

	var carts []models.Cart
	var latest []*models.CheckIn
	for rows.Next() {
		var c models.Cart
		var namesJSON []byte
		var chID, chCartID *uuid.UUID
		var chCheckedInAt, chNextDeadline, chCreatedAt *time.Time
		var chResetReason, chLocation *string

		if err := rows.Scan(
			&c.ID, &c.CartNumber, &c.CartType, &namesJSON, &c.DiveID, &c.Status,
			&c.StartedAt, &c.EndedAt, &c.PausedAt, &c.CheckinLocation, &c.CreatedAt,
			&chID, &chCartID, &chCheckedInAt, &chNextDeadline, &chResetReason, &chLocation, &chCreatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan active cart: %w", err)
		}
		if err := unmarshalDiverNames(namesJSON, &c); err != nil {
			return nil, nil, err
		}

		var checkin *models.CheckIn
		if chID != nil {
			checkin = &models.CheckIn{
				ID:           *chID,
				CartID:       *chCartID,
				CheckedInAt:  *chCheckedInAt,
				NextDeadline: *chNextDeadline,
				ResetReason:  chResetReason,
				Location:     chLocation,
				CreatedAt:    *chCreatedAt,
			}
		}
		carts = append(carts, c)
		latest = append(latest, checkin)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to query active carts: %w", err)
	}
	return carts, latest, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanCart(row pgx.Row) (*models.Cart, error) {
	var c models.Cart
	var namesJSON []byte
	if err := row.Scan(&c.ID, &c.CartNumber, &c.CartType, &namesJSON, &c.DiveID, &c.Status,
		&c.StartedAt, &c.EndedAt, &c.PausedAt, &c.CheckinLocation, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalDiverNames(namesJSON, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func unmarshalDiverNames(namesJSON []byte, c *models.Cart) error {
	if len(namesJSON) > 0 {
		if err := json.Unmarshal(namesJSON, &c.DiverNames); err != nil {
			return fmt.Errorf("failed to unmarshal diver names: %w", err)
		}
	}
	if c.DiverNames == nil {
		c.DiverNames = []string{}
	}
	return nil
}

func scanCheckIn(row pgx.Row) (*models.CheckIn, error) {
	var ch models.CheckIn
	if err := row.Scan(&ch.ID, &ch.CartID, &ch.CheckedInAt, &ch.NextDeadline,
		&ch.ResetReason, &ch.Location, &ch.CreatedAt); err != nil {
		return nil, err
	}
	return &ch, nil
}
