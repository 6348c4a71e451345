package httpapi

import (
	"net/http"

	"github.com/okaplan/seawatch/go/internal/dives"
)

func (h *Handler) startDive(w http.ResponseWriter, r *http.Request) {
	var req dives.StartDiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	dive, err := h.dives.StartDive(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dive)
}

func (h *Handler) getActiveDive(w http.ResponseWriter, r *http.Request) {
	dive, err := h.dives.GetActiveDive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dive)
}

func (h *Handler) updateDive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req dives.UpdateDiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	dive, err := h.dives.UpdateDive(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dive)
}

func (h *Handler) endDive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	dive, err := h.dives.EndDive(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dive)
}
