package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/okaplan/seawatch/go/internal/errs"
	"github.com/okaplan/seawatch/go/internal/events"
	"github.com/okaplan/seawatch/go/internal/models"
)

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	req := events.ListEventsRequest{}

	if s := r.URL.Query().Get("status"); s != "" {
		status := models.EventStatus(s)
		req.Status = &status
	}
	if c := r.URL.Query().Get("cart_id"); c != "" {
		cartID, err := uuid.Parse(c)
		if err != nil {
			writeError(w, errs.Validationf("invalid cart_id: %s", c))
			return
		}
		req.CartID = &cartID
	}

	list, err := h.events.ListEvents(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// createEvent records a manually observed incident (e.g. a surface report
// phoned in outside the timer).
func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CartID    uuid.UUID        `json:"cart_id"`
		EventType models.EventType `json:"event_type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CartID == uuid.Nil {
		writeError(w, errs.Validationf("cart_id is required"))
		return
	}
	switch req.EventType {
	case models.EventTypeWarning, models.EventTypeOverdue, models.EventTypeEmergency:
	default:
		writeError(w, errs.Validationf("event_type must be warning, overdue, or emergency"))
		return
	}

	event, err := h.events.OpenEvent(r.Context(), req.CartID, req.EventType, h.clock.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	event, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) addEventNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	event, err := h.events.AddNote(r.Context(), id, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) resolveEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	event, err := h.events.ResolveEvent(r.Context(), id, h.clock.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}
