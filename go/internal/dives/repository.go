package dives

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
	"github.com/okaplan/seawatch/go/internal/sqlutil"
)

const diveColumns = "id, name, manager_name, team_members, settings, status, started_at, ended_at, created_at"

// Repository implements dive data access operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new dives repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateDive inserts a new dive row.
func (r *Repository) CreateDive(ctx context.Context, dive *models.Dive) (*models.Dive, error) {
	teamJSON, err := json.Marshal(dive.TeamMembers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal team members: %w", err)
	}
	settingsJSON, err := json.Marshal(dive.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dive settings: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO dives (id, name, manager_name, team_members, settings, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+diveColumns,
		dive.ID, dive.Name, dive.ManagerName, teamJSON, settingsJSON, dive.Status, dive.StartedAt,
	)
	created, err := scanDive(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create dive: %w", err)
	}
	return created, nil
}

// GetDive retrieves a dive by ID. Returns (nil, nil) when absent.
func (r *Repository) GetDive(ctx context.Context, id uuid.UUID) (*models.Dive, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+diveColumns+` FROM dives WHERE id = $1`, id)
	dive, err := scanDive(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dive: %w", err)
	}
	return dive, nil
}

// GetActiveDive retrieves the single active dive. Returns (nil, nil) when
// no dive is active.
func (r *Repository) GetActiveDive(ctx context.Context) (*models.Dive, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+diveColumns+` FROM dives WHERE status = 'active' ORDER BY started_at DESC LIMIT 1`)
	dive, err := scanDive(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active dive: %w", err)
	}
	return dive, nil
}

// UpdateDiveParams carries partial dive updates; nil fields are unchanged.
type UpdateDiveParams struct {
	Name        *string
	ManagerName *string
	TeamMembers []models.TeamMember
	Settings    *models.DiveSettings
}

// UpdateDive applies partial updates to a dive.
func (r *Repository) UpdateDive(ctx context.Context, id uuid.UUID, params UpdateDiveParams) (*models.Dive, error) {
	var teamJSON, settingsJSON []byte
	var err error
	if params.TeamMembers != nil {
		if teamJSON, err = json.Marshal(params.TeamMembers); err != nil {
			return nil, fmt.Errorf("failed to marshal team members: %w", err)
		}
	}
	if params.Settings != nil {
		if settingsJSON, err = json.Marshal(params.Settings); err != nil {
			return nil, fmt.Errorf("failed to marshal dive settings: %w", err)
		}
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE dives SET
			name = COALESCE($2, name),
			manager_name = COALESCE($3, manager_name),
			team_members = COALESCE($4, team_members),
			settings = COALESCE($5, settings)
		WHERE id = $1
		RETURNING `+diveColumns,
		id, params.Name, params.ManagerName, teamJSON, settingsJSON,
	)
	dive, err := scanDive(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update dive: %w", err)
	}
	return dive, nil
}

// CompleteDive marks a dive completed and stamps ended_at.
func (r *Repository) CompleteDive(ctx context.Context, id uuid.UUID, endedAt time.Time) (*models.Dive, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE dives SET status = 'completed', ended_at = $2
		WHERE id = $1
		RETURNING `+diveColumns,
		id, endedAt,
	)
	dive, err := scanDive(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete dive: %w", err)
	}
	return dive, nil
}

// HasCheckIns reports whether any check-in row exists under any cart of the
// dive — the settings-lock condition.
func (r *Repository) HasCheckIns(ctx context.Context, diveID uuid.UUID) (bool, error) {
	var locked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM checkins ch
			JOIN carts c ON c.id = ch.cart_id
			WHERE c.dive_id = $1
		)`, diveID).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("failed to check dive lock: %w", err)
	}
	return locked, nil
}

// ForceCompleteActiveCarts ends every still-active cart (crash-recovery
// cleanup before a new dive starts) and resolves their open events, in one
// transaction. Returns the affected cart IDs.
func (r *Repository) ForceCompleteActiveCarts(ctx context.Context, endedAt time.Time) ([]uuid.UUID, error) {
	return r.forceCompleteCarts(ctx, `status = 'active'`, nil, endedAt)
}

// ForceCompleteCartsByDive ends every still-active cart under a dive and
// resolves their open events, in one transaction.
func (r *Repository) ForceCompleteCartsByDive(ctx context.Context, diveID uuid.UUID, endedAt time.Time) ([]uuid.UUID, error) {
	return r.forceCompleteCarts(ctx, `status = 'active' AND dive_id = $2`, &diveID, endedAt)
}

func (r *Repository) forceCompleteCarts(ctx context.Context, where string, diveID *uuid.UUID, endedAt time.Time) ([]uuid.UUID, error) {
	var cartIDs []uuid.UUID
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		args := []any{endedAt}
		if diveID != nil {
			args = append(args, *diveID)
		}
		rows, err := tx.Query(ctx,
			`UPDATE carts SET status = 'completed', ended_at = $1 WHERE `+where+` RETURNING id`, args...)
		if err != nil {
			return err
		}
		cartIDs = cartIDs[:0]
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			cartIDs = append(cartIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(cartIDs) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx,
			`UPDATE events SET status = 'resolved', resolved_at = $1 WHERE cart_id = ANY($2) AND status = 'open'`,
			endedAt, cartIDs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to force-complete carts: %w", err)
	}
	return cartIDs, nil
}

func scanDive(row pgx.Row) (*models.Dive, error) {
	var d models.Dive
	var teamJSON, settingsJSON []byte
	if err := row.Scan(&d.ID, &d.Name, &d.ManagerName, &teamJSON, &settingsJSON,
		&d.Status, &d.StartedAt, &d.EndedAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	if len(teamJSON) > 0 {
		if err := json.Unmarshal(teamJSON, &d.TeamMembers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal team members: %w", err)
		}
	}
	if d.TeamMembers == nil {
		d.TeamMembers = []models.TeamMember{}
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &d.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dive settings: %w", err)
		}
	}
	d.Settings = d.Settings.Merged()
	return &d, nil
}
