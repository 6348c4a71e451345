package carts

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/okaplan/seawatch/go/internal/engine"
	"github.com/okaplan/seawatch/go/internal/errs"
	"github.com/okaplan/seawatch/go/internal/models"
)

// CartsRepository defines what the app layer needs from the repository.
type CartsRepository interface {
	CreateCart(ctx context.Context, cart *models.Cart) (*models.Cart, error)
	GetCart(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	UpdateCart(ctx context.Context, id uuid.UUID, params UpdateCartParams) (*models.Cart, error)
	DeleteCartCascade(ctx context.Context, id uuid.UUID) error
	EndCart(ctx context.Context, id uuid.UUID, endedAt time.Time) (*models.Cart, error)
	SetPaused(ctx context.Context, id uuid.UUID, pausedAt time.Time, location *string) (*models.Cart, error)
	StartRound(ctx context.Context, checkin *models.CheckIn) error
	LatestCheckIn(ctx context.Context, cartID uuid.UUID) (*models.CheckIn, error)
	ListCheckIns(ctx context.Context, cartID uuid.UUID) ([]models.CheckIn, error)
	ActiveCartsWithLatest(ctx context.Context, diveID uuid.UUID) ([]models.Cart, []*models.CheckIn, error)
	AddAttachment(ctx context.Context, att *models.Attachment) (*models.Attachment, error)
	ListAttachments(ctx context.Context, cartID uuid.UUID) ([]models.Attachment, error)
}

// EventResolver auto-resolves a cart's open alert events after a check-in,
// reset, or end.
type EventResolver interface {
	ResolveOpenForCart(ctx context.Context, cartID uuid.UUID, at time.Time) (int, error)
}

// DiveDirectory resolves the active dive and per-dive timer settings.
type DiveDirectory interface {
	ActiveDive(ctx context.Context) (*models.Dive, error)
	SettingsForDive(ctx context.Context, diveID uuid.UUID) (models.DiveSettings, error)
}

// Notifier is the engine surface mutations report to.
type Notifier interface {
	Rederive(ctx context.Context)
	ResetCart(cartID uuid.UUID)
	Now() time.Time
}

// App handles cart lifecycle and the check-in/round protocol.
type App struct {
	repo     CartsRepository
	events   EventResolver
	dives    DiveDirectory
	engine   Notifier
	validate *validator.Validate
}

// NewApp creates a new carts App.
func NewApp(repo CartsRepository, events EventResolver, dives DiveDirectory, engine Notifier) *App {
	return &App{
		repo:     repo,
		events:   events,
		dives:    dives,
		engine:   engine,
		validate: validator.New(),
	}
}

// CreateCartRequest creates a cart under the active dive (or an explicit
// one). The cart starts in waiting: no check-in row exists until its
// timers are started.
type CreateCartRequest struct {
	CartNumber int        `json:"cart_number" validate:"required,min=1"`
	CartType   int        `json:"cart_type" validate:"omitempty,min=1,max=8"`
	DiverNames []string   `json:"diver_names" validate:"required,min=1"`
	DiveID     *uuid.UUID `json:"dive_id"`
}

// CreateCart creates a new waiting cart.
func (a *App) CreateCart(ctx context.Context, req CreateCartRequest) (*models.CartSnapshot, error) {
	if err := a.validate.Struct(req); err != nil {
		return nil, errs.Validationf("cart_number and diver_names are required")
	}

	diveID := req.DiveID
	if diveID == nil {
		dive, err := a.dives.ActiveDive(ctx)
		if err != nil {
			return nil, err
		}
		if dive != nil {
			diveID = &dive.ID
		}
	}

	cartType := req.CartType
	if cartType == 0 {
		cartType = 2
	}

	cart := &models.Cart{
		ID:         uuid.New(),
		CartNumber: req.CartNumber,
		CartType:   cartType,
		DiverNames: req.DiverNames,
		DiveID:     diveID,
		Status:     models.CartStatusActive,
		StartedAt:  a.engine.Now(),
	}

	created, err := a.repo.CreateCart(ctx, cart)
	if err != nil {
		if errs.IsConflict(err) {
			return nil, err
		}
		return nil, errs.Internal("failed to create cart", err)
	}

	log.Info().
		Str("cart_id", created.ID.String()).
		Int("cart_number", created.CartNumber).
		Msg("cart created")

	a.engine.Rederive(ctx)
	return a.snapshot(ctx, created)
}

// ImportResult reports a bulk import: created carts plus skipped duplicates.
type ImportResult struct {
	Imported int                   `json:"imported"`
	Carts    []models.CartSnapshot `json:"carts"`
	Skipped  []int                 `json:"skipped_cart_numbers"`
}

// ImportCarts bulk-creates carts, skipping duplicate cart numbers instead
// of failing the batch.
func (a *App) ImportCarts(ctx context.Context, reqs []CreateCartRequest) (*ImportResult, error) {
	if len(reqs) == 0 {
		return nil, errs.Validationf("carts array is required")
	}

	result := &ImportResult{Carts: []models.CartSnapshot{}, Skipped: []int{}}
	for _, req := range reqs {
		snap, err := a.CreateCart(ctx, req)
		if err != nil {
			if errs.IsConflict(err) {
				log.Warn().Int("cart_number", req.CartNumber).Msg("skipping duplicate cart on import")
				result.Skipped = append(result.Skipped, req.CartNumber)
				continue
			}
			return nil, err
		}
		result.Imported++
		result.Carts = append(result.Carts, *snap)
	}
	return result, nil
}

// UpdateCartRequest carries partial cart updates.
type UpdateCartRequest struct {
	CartNumber *int     `json:"cart_number"`
	CartType   *int     `json:"cart_type" validate:"omitempty,min=1,max=8"`
	DiverNames []string `json:"diver_names" validate:"omitempty,min=1"`
}

// UpdateCart updates cart fields.
func (a *App) UpdateCart(ctx context.Context, id uuid.UUID, req UpdateCartRequest) (*models.CartSnapshot, error) {
	if req.CartNumber == nil && req.CartType == nil && req.DiverNames == nil {
		return nil, errs.Validationf("no fields to update")
	}
	if err := a.validate.Struct(req); err != nil {
		return nil, errs.Validationf("invalid cart fields")
	}

	updated, err := a.repo.UpdateCart(ctx, id, UpdateCartParams{
		CartNumber: req.CartNumber,
		CartType:   req.CartType,
		DiverNames: req.DiverNames,
	})
	if err != nil {
		if errs.IsConflict(err) {
			return nil, err
		}
		return nil, errs.Internal("failed to update cart", err)
	}
	if updated == nil {
		return nil, errs.NotFoundf("cart %s not found", id)
	}

	a.engine.Rederive(ctx)
	return a.snapshot(ctx, updated)
}

// DeleteCart removes a cart and cascades to its check-ins, events, and
// attachments.
func (a *App) DeleteCart(ctx context.Context, id uuid.UUID) error {
	if err := a.repo.DeleteCartCascade(ctx, id); err != nil {
		if errs.IsNotFound(err) {
			return err
		}
		return errs.Internal("failed to delete cart", err)
	}

	a.engine.ResetCart(id)
	log.Info().Str("cart_id", id.String()).Msg("cart deleted")
	a.engine.Rederive(ctx)
	return nil
}

// EndCart marks a cart completed. Terminal: the cart accepts no further
// mutation afterwards.
func (a *App) EndCart(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	now := a.engine.Now()
	ended, err := a.repo.EndCart(ctx, id, now)
	if err != nil {
		return nil, errs.Internal("failed to end cart", err)
	}
	if ended == nil {
		return nil, errs.NotFoundf("active cart %s not found", id)
	}

	if _, err := a.events.ResolveOpenForCart(ctx, id, now); err != nil {
		log.Error().Err(err).Str("cart_id", id.String()).Msg("failed to resolve open events on end")
	}
	a.engine.ResetCart(id)

	log.Info().
		Str("cart_id", id.String()).
		Int("cart_number", ended.CartNumber).
		Msg("cart ended")

	a.engine.Rederive(ctx)
	return ended, nil
}

// StartTimersRequest starts the timers of a batch of waiting carts.
type StartTimersRequest struct {
	CartIDs  []uuid.UUID `json:"cart_ids" validate:"required,min=1"`
	Location *string     `json:"location"`
}

// StartFailure reports one cart that could not be started.
type StartFailure struct {
	CartID uuid.UUID `json:"cart_id"`
	Reason string    `json:"reason"`
}

// StartTimersResult reports a batch start.
type StartTimersResult struct {
	Started int            `json:"started"`
	Failed  []StartFailure `json:"failed,omitempty"`
}

// StartTimers inserts the first check-in row for each waiting cart in the
// batch. Partial failure of one cart does not block the others.
func (a *App) StartTimers(ctx context.Context, req StartTimersRequest) (*StartTimersResult, error) {
	if len(req.CartIDs) == 0 {
		return nil, errs.Validationf("cart_ids is required")
	}

	now := a.engine.Now()
	result := &StartTimersResult{}
	for _, cartID := range req.CartIDs {
		if err := a.startTimer(ctx, cartID, req.Location, now); err != nil {
			log.Warn().Err(err).Str("cart_id", cartID.String()).Msg("failed to start cart timer")
			result.Failed = append(result.Failed, StartFailure{CartID: cartID, Reason: err.Error()})
			continue
		}
		result.Started++
	}

	a.engine.Rederive(ctx)
	return result, nil
}

func (a *App) startTimer(ctx context.Context, cartID uuid.UUID, location *string, now time.Time) error {
	cart, last, err := a.activeCartState(ctx, cartID)
	if err != nil {
		return err
	}
	if last != nil || cart.PausedAt != nil {
		return errs.Conflictf("cart %d timer already started", cart.CartNumber)
	}

	settings, err := a.settingsFor(ctx, cart)
	if err != nil {
		return err
	}
	return a.appendRound(ctx, cartID, now, engine.NextDeadline(now, settings), nil, location)
}

// CheckInRequest records a diver group reporting in.
type CheckInRequest struct {
	Location *string `json:"location"`
}

// CheckIn pauses a running cart: paused_at is stamped, the cart freezes on
// its last deadline, open events auto-resolve, and a new escalation epoch
// starts. No check-in row is written until the operator confirms a new
// round.
func (a *App) CheckIn(ctx context.Context, id uuid.UUID, req CheckInRequest) (*models.CartSnapshot, error) {
	cart, last, err := a.activeCartState(ctx, id)
	if err != nil {
		return nil, err
	}
	if last == nil && cart.PausedAt == nil {
		return nil, errs.Conflictf("cart %d is waiting: timers not started", cart.CartNumber)
	}
	if cart.PausedAt != nil {
		return nil, errs.Conflictf("cart %d is already paused awaiting a new round", cart.CartNumber)
	}

	now := a.engine.Now()
	paused, err := a.repo.SetPaused(ctx, id, now, req.Location)
	if err != nil {
		return nil, errs.Internal("failed to record check-in", err)
	}
	if paused == nil {
		return nil, errs.NotFoundf("active cart %s not found", id)
	}

	if _, err := a.events.ResolveOpenForCart(ctx, id, now); err != nil {
		log.Error().Err(err).Str("cart_id", id.String()).Msg("failed to resolve open events on check-in")
	}
	a.engine.ResetCart(id)

	log.Info().
		Str("cart_id", id.String()).
		Int("cart_number", paused.CartNumber).
		Msg("check-in recorded, timer paused")

	a.engine.Rederive(ctx)
	return a.snapshot(ctx, paused)
}

// NewRound starts a fresh round for a paused cart: a new check-in row with
// a rounded deadline, pause cleared, new escalation epoch.
func (a *App) NewRound(ctx context.Context, id uuid.UUID, req CheckInRequest) (*models.CartSnapshot, error) {
	cart, _, err := a.activeCartState(ctx, id)
	if err != nil {
		return nil, err
	}
	if cart.PausedAt == nil {
		return nil, errs.Conflictf("cart %d is not paused: check in first", cart.CartNumber)
	}

	settings, err := a.settingsFor(ctx, cart)
	if err != nil {
		return nil, err
	}

	now := a.engine.Now()
	if err := a.appendRound(ctx, id, now, engine.NextDeadline(now, settings), nil, req.Location); err != nil {
		return nil, err
	}

	log.Info().
		Str("cart_id", id.String()).
		Int("cart_number", cart.CartNumber).
		Msg("new round started")

	a.engine.Rederive(ctx)
	return a.Snapshot(ctx, id)
}

// ResetTimerRequest restarts a cart's timer out-of-band; the reason is
// mandatory.
type ResetTimerRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ResetTimer is the emergency override: valid from running or paused,
// appends a reason-tagged check-in row, clears the pause marker, resolves
// open events, and starts a new escalation epoch.
func (a *App) ResetTimer(ctx context.Context, id uuid.UUID, req ResetTimerRequest) (*models.CartSnapshot, error) {
	if req.Reason == "" {
		return nil, errs.Validationf("reason is required for timer reset")
	}

	cart, last, err := a.activeCartState(ctx, id)
	if err != nil {
		return nil, err
	}
	if last == nil && cart.PausedAt == nil {
		return nil, errs.Conflictf("cart %d is waiting: timers not started", cart.CartNumber)
	}

	settings, err := a.settingsFor(ctx, cart)
	if err != nil {
		return nil, err
	}

	now := a.engine.Now()
	reason := req.Reason
	if err := a.appendRound(ctx, id, now, engine.NextDeadline(now, settings), &reason, nil); err != nil {
		return nil, err
	}
	if _, err := a.events.ResolveOpenForCart(ctx, id, now); err != nil {
		log.Error().Err(err).Str("cart_id", id.String()).Msg("failed to resolve open events on reset")
	}

	log.Info().
		Str("cart_id", id.String()).
		Int("cart_number", cart.CartNumber).
		Str("reason", reason).
		Msg("timer reset")

	a.engine.Rederive(ctx)
	return a.Snapshot(ctx, id)
}

// History returns a cart's check-in history, newest first.
func (a *App) History(ctx context.Context, id uuid.UUID) ([]models.CheckIn, error) {
	cart, err := a.repo.GetCart(ctx, id)
	if err != nil {
		return nil, errs.Internal("failed to get cart", err)
	}
	if cart == nil {
		return nil, errs.NotFoundf("cart %s not found", id)
	}
	checkins, err := a.repo.ListCheckIns(ctx, id)
	if err != nil {
		return nil, errs.Internal("failed to list check-ins", err)
	}
	return checkins, nil
}

// ListSnapshots derives the timer state of every active cart under the
// active dive.
func (a *App) ListSnapshots(ctx context.Context) ([]models.CartSnapshot, error) {
	dive, err := a.dives.ActiveDive(ctx)
	if err != nil {
		return nil, err
	}
	if dive == nil {
		return []models.CartSnapshot{}, nil
	}

	cartRows, latest, err := a.repo.ActiveCartsWithLatest(ctx, dive.ID)
	if err != nil {
		return nil, errs.Internal("failed to list carts", err)
	}

	now := a.engine.Now()
	snaps := make([]models.CartSnapshot, 0, len(cartRows))
	for i, cart := range cartRows {
		snaps = append(snaps, engine.Derive(cart, latest[i], dive.Settings, now))
	}
	return snaps, nil
}

// Snapshot derives a single cart's current timer state.
func (a *App) Snapshot(ctx context.Context, id uuid.UUID) (*models.CartSnapshot, error) {
	cart, err := a.repo.GetCart(ctx, id)
	if err != nil {
		return nil, errs.Internal("failed to get cart", err)
	}
	if cart == nil {
		return nil, errs.NotFoundf("cart %s not found", id)
	}
	return a.snapshot(ctx, cart)
}

func (a *App) snapshot(ctx context.Context, cart *models.Cart) (*models.CartSnapshot, error) {
	last, err := a.repo.LatestCheckIn(ctx, cart.ID)
	if err != nil {
		return nil, errs.Internal("failed to get latest check-in", err)
	}
	settings, err := a.settingsFor(ctx, cart)
	if err != nil {
		return nil, err
	}
	snap := engine.Derive(*cart, last, settings, a.engine.Now())
	return &snap, nil
}

// activeCartState loads a cart and its latest check-in, failing with
// NotFound for nonexistent or already-terminal carts (a replayed queued
// mutation must see a recognizable rejection, never corrupt state).
func (a *App) activeCartState(ctx context.Context, id uuid.UUID) (*models.Cart, *models.CheckIn, error) {
	cart, err := a.repo.GetCart(ctx, id)
	if err != nil {
		return nil, nil, errs.Internal("failed to get cart", err)
	}
	if cart == nil || cart.Status != models.CartStatusActive {
		return nil, nil, errs.NotFoundf("active cart %s not found", id)
	}
	last, err := a.repo.LatestCheckIn(ctx, id)
	if err != nil {
		return nil, nil, errs.Internal("failed to get latest check-in", err)
	}
	return cart, last, nil
}

func (a *App) appendRound(ctx context.Context, cartID uuid.UUID, now, deadline time.Time, reason, location *string) error {
	checkin := &models.CheckIn{
		ID:           uuid.New(),
		CartID:       cartID,
		CheckedInAt:  now,
		NextDeadline: deadline,
		ResetReason:  reason,
		Location:     location,
	}
	if err := a.repo.StartRound(ctx, checkin); err != nil {
		return errs.Internal("failed to record check-in round", err)
	}
	a.engine.ResetCart(cartID)
	return nil
}

func (a *App) settingsFor(ctx context.Context, cart *models.Cart) (models.DiveSettings, error) {
	if cart.DiveID != nil {
		return a.dives.SettingsForDive(ctx, *cart.DiveID)
	}
	dive, err := a.dives.ActiveDive(ctx)
	if err != nil {
		return models.DiveSettings{}, err
	}
	if dive == nil {
		return models.DefaultDiveSettings(), nil
	}
	return dive.Settings, nil
}
