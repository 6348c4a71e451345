package dives

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/okaplan/seawatch/go/internal/errs"
	"github.com/okaplan/seawatch/go/internal/models"
)

// DivesRepository defines what the app layer needs from the repository.
type DivesRepository interface {
	CreateDive(ctx context.Context, dive *models.Dive) (*models.Dive, error)
	GetDive(ctx context.Context, id uuid.UUID) (*models.Dive, error)
	GetActiveDive(ctx context.Context) (*models.Dive, error)
	UpdateDive(ctx context.Context, id uuid.UUID, params UpdateDiveParams) (*models.Dive, error)
	CompleteDive(ctx context.Context, id uuid.UUID, endedAt time.Time) (*models.Dive, error)
	HasCheckIns(ctx context.Context, diveID uuid.UUID) (bool, error)
	ForceCompleteActiveCarts(ctx context.Context, endedAt time.Time) ([]uuid.UUID, error)
	ForceCompleteCartsByDive(ctx context.Context, diveID uuid.UUID, endedAt time.Time) ([]uuid.UUID, error)
}

// Notifier is the engine surface mutations report to: escalation epoch
// resets and the immediate post-mutation re-derive.
type Notifier interface {
	Rederive(ctx context.Context)
	ResetCart(cartID uuid.UUID)
	Now() time.Time
}

// App is the dive session manager: it owns the single active dive, its
// settings, and the start/end lifecycle.
type App struct {
	repo     DivesRepository
	engine   Notifier
	validate *validator.Validate
}

// NewApp creates a new dives App.
func NewApp(repo DivesRepository, engine Notifier) *App {
	return &App{
		repo:     repo,
		engine:   engine,
		validate: validator.New(),
	}
}

// StartDiveRequest creates a new dive session.
type StartDiveRequest struct {
	Name        *string              `json:"name"`
	ManagerName string               `json:"manager_name" validate:"required"`
	TeamMembers []models.TeamMember  `json:"team_members"`
	Settings    *models.DiveSettings `json:"settings"`
}

// StartDive creates the dive after force-completing any carts left active
// by a previous crashed session. Fails with a conflict if a dive is
// already active.
func (a *App) StartDive(ctx context.Context, req StartDiveRequest) (*models.Dive, error) {
	if err := a.validate.Struct(req); err != nil {
		return nil, errs.Validationf("manager_name is required")
	}

	existing, err := a.repo.GetActiveDive(ctx)
	if err != nil {
		return nil, errs.Internal("failed to check active dive", err)
	}
	if existing != nil {
		return nil, errs.Conflictf("a dive is already active")
	}

	now := a.engine.Now()

	// Crash-recovery cleanup: end leftover active carts and forget their
	// escalation epochs.
	leftover, err := a.repo.ForceCompleteActiveCarts(ctx, now)
	if err != nil {
		return nil, errs.Internal("failed to clean up leftover carts", err)
	}
	for _, cartID := range leftover {
		a.engine.ResetCart(cartID)
	}
	if len(leftover) > 0 {
		log.Info().Int("carts", len(leftover)).Msg("force-completed leftover active carts")
	}

	settings := models.DefaultDiveSettings()
	if req.Settings != nil {
		settings = req.Settings.Merged()
	}

	dive := &models.Dive{
		ID:          uuid.New(),
		Name:        req.Name,
		ManagerName: req.ManagerName,
		TeamMembers: req.TeamMembers,
		Settings:    settings,
		Status:      models.DiveStatusActive,
		StartedAt:   now,
	}
	if dive.TeamMembers == nil {
		dive.TeamMembers = []models.TeamMember{}
	}

	created, err := a.repo.CreateDive(ctx, dive)
	if err != nil {
		return nil, errs.Internal("failed to create dive", err)
	}

	log.Info().
		Str("dive_id", created.ID.String()).
		Str("manager", created.ManagerName).
		Msg("dive started")

	a.engine.Rederive(ctx)
	return created, nil
}

// EndDive force-ends every still-active cart under the dive, then marks
// the dive completed.
func (a *App) EndDive(ctx context.Context, id uuid.UUID) (*models.Dive, error) {
	dive, err := a.repo.GetDive(ctx, id)
	if err != nil {
		return nil, errs.Internal("failed to get dive", err)
	}
	if dive == nil {
		return nil, errs.NotFoundf("dive %s not found", id)
	}
	if dive.Status != models.DiveStatusActive {
		return nil, errs.NotFoundf("dive %s is already completed", id)
	}

	now := a.engine.Now()
	ended, err := a.repo.ForceCompleteCartsByDive(ctx, id, now)
	if err != nil {
		return nil, errs.Internal("failed to end dive carts", err)
	}
	for _, cartID := range ended {
		a.engine.ResetCart(cartID)
	}

	completed, err := a.repo.CompleteDive(ctx, id, now)
	if err != nil {
		return nil, errs.Internal("failed to complete dive", err)
	}

	log.Info().
		Str("dive_id", id.String()).
		Int("carts_ended", len(ended)).
		Msg("dive ended")

	a.engine.Rederive(ctx)
	return completed, nil
}

// UpdateDiveRequest carries partial dive updates. Settings are accepted
// only while the dive is unlocked.
type UpdateDiveRequest struct {
	Name        *string              `json:"name"`
	ManagerName *string              `json:"manager_name"`
	TeamMembers []models.TeamMember  `json:"team_members"`
	Settings    *models.DiveSettings `json:"settings"`
}

// UpdateDive updates manager/team/name freely; settings only if no
// check-in exists yet under any cart of the dive.
func (a *App) UpdateDive(ctx context.Context, id uuid.UUID, req UpdateDiveRequest) (*models.Dive, error) {
	if req.Name == nil && req.ManagerName == nil && req.TeamMembers == nil && req.Settings == nil {
		return nil, errs.Validationf("no fields to update")
	}
	if req.ManagerName != nil && *req.ManagerName == "" {
		return nil, errs.Validationf("manager_name cannot be empty")
	}

	dive, err := a.repo.GetDive(ctx, id)
	if err != nil {
		return nil, errs.Internal("failed to get dive", err)
	}
	if dive == nil {
		return nil, errs.NotFoundf("dive %s not found", id)
	}

	params := UpdateDiveParams{
		Name:        req.Name,
		ManagerName: req.ManagerName,
		TeamMembers: req.TeamMembers,
	}
	if req.Settings != nil {
		locked, err := a.repo.HasCheckIns(ctx, id)
		if err != nil {
			return nil, errs.Internal("failed to check dive lock", err)
		}
		if locked {
			return nil, errs.Conflictf("dive settings are locked: check-ins already recorded under this dive")
		}
		merged := req.Settings.Merged()
		params.Settings = &merged
	}

	updated, err := a.repo.UpdateDive(ctx, id, params)
	if err != nil {
		return nil, errs.Internal("failed to update dive", err)
	}
	if updated == nil {
		return nil, errs.NotFoundf("dive %s not found", id)
	}
	return a.withLock(ctx, updated)
}

// GetActiveDive returns the current active dive or NotFound.
func (a *App) GetActiveDive(ctx context.Context) (*models.Dive, error) {
	dive, err := a.repo.GetActiveDive(ctx)
	if err != nil {
		return nil, errs.Internal("failed to get active dive", err)
	}
	if dive == nil {
		return nil, errs.NotFoundf("no active dive")
	}
	return a.withLock(ctx, dive)
}

// SettingsForDive resolves the timer settings of a dive, falling back to
// defaults when the dive is unknown.
func (a *App) SettingsForDive(ctx context.Context, diveID uuid.UUID) (models.DiveSettings, error) {
	dive, err := a.repo.GetDive(ctx, diveID)
	if err != nil {
		return models.DiveSettings{}, errs.Internal("failed to get dive", err)
	}
	if dive == nil {
		return models.DefaultDiveSettings(), nil
	}
	return dive.Settings, nil
}

// ActiveDive exposes the raw active-dive lookup (nil when none) for
// collaborating apps.
func (a *App) ActiveDive(ctx context.Context) (*models.Dive, error) {
	dive, err := a.repo.GetActiveDive(ctx)
	if err != nil {
		return nil, errs.Internal("failed to get active dive", err)
	}
	return dive, nil
}

func (a *App) withLock(ctx context.Context, dive *models.Dive) (*models.Dive, error) {
	locked, err := a.repo.HasCheckIns(ctx, dive.ID)
	if err != nil {
		return nil, errs.Internal("failed to check dive lock", err)
	}
	dive.SettingsLocked = locked
	return dive, nil
}
