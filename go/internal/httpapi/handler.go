package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okaplan/seawatch/go/internal/carts"
	"github.com/okaplan/seawatch/go/internal/dives"
	"github.com/okaplan/seawatch/go/internal/errs"
	"github.com/okaplan/seawatch/go/internal/events"
	"github.com/okaplan/seawatch/go/internal/gateway"
)

// Clock supplies mutation timestamps. The engine's clock is passed in so
// manual event writes order consistently with the tick loop.
type Clock interface {
	Now() time.Time
}

// Handler exposes the REST API and the dashboard WebSocket endpoint.
type Handler struct {
	dives  *dives.App
	carts  *carts.App
	events *events.App
	hub    *gateway.Hub
	clock  Clock
}

// NewHandler creates the API handler.
func NewHandler(divesApp *dives.App, cartsApp *carts.App, eventsApp *events.App, hub *gateway.Hub, clock Clock) *Handler {
	return &Handler{
		dives:  divesApp,
		carts:  cartsApp,
		events: eventsApp,
		hub:    hub,
		clock:  clock,
	}
}

// Routes builds the route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/dives", h.startDive)
	mux.HandleFunc("GET /api/dives/active", h.getActiveDive)
	mux.HandleFunc("PATCH /api/dives/{id}", h.updateDive)
	mux.HandleFunc("POST /api/dives/{id}/end", h.endDive)

	mux.HandleFunc("GET /api/carts", h.listCarts)
	mux.HandleFunc("POST /api/carts", h.createCart)
	mux.HandleFunc("POST /api/carts/import", h.importCarts)
	mux.HandleFunc("POST /api/carts/start-timers", h.startTimers)
	mux.HandleFunc("GET /api/carts/{id}", h.getCart)
	mux.HandleFunc("PATCH /api/carts/{id}", h.updateCart)
	mux.HandleFunc("DELETE /api/carts/{id}", h.deleteCart)
	mux.HandleFunc("POST /api/carts/{id}/end", h.endCart)
	mux.HandleFunc("POST /api/carts/{id}/checkin", h.checkIn)
	mux.HandleFunc("POST /api/carts/{id}/new-round", h.newRound)
	mux.HandleFunc("POST /api/carts/{id}/reset", h.resetTimer)
	mux.HandleFunc("GET /api/carts/{id}/history", h.cartHistory)
	mux.HandleFunc("GET /api/carts/{id}/attachments", h.listAttachments)
	mux.HandleFunc("POST /api/carts/{id}/attachments", h.addAttachment)

	mux.HandleFunc("GET /api/events", h.listEvents)
	mux.HandleFunc("POST /api/events", h.createEvent)
	mux.HandleFunc("GET /api/events/{id}", h.getEvent)
	mux.HandleFunc("POST /api/events/{id}/notes", h.addEventNote)
	mux.HandleFunc("POST /api/events/{id}/resolve", h.resolveEvent)

	mux.HandleFunc("GET /ws", h.dashboardSocket)
	mux.HandleFunc("GET /healthz", h.health)

	return mux
}

func (h *Handler) dashboardSocket(w http.ResponseWriter, r *http.Request) {
	if err := h.hub.UpgradeConnection(w, r); err != nil {
		writeError(w, errs.Internal("failed to open socket", err))
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"dashboards": h.hub.ConnectionCount(),
	})
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errs.Validationf("invalid id: %s", r.PathValue("id"))
	}
	return id, nil
}
