package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// CreateSale handles POST /api/sales.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeCreateRequest(d)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.sales.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/sales/"+s.ID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeSale(e, s) })
}

// GetSale handles GET /api/sales/{id}.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	s, err := h.sales.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSale(e, s) })
}

// TransitionStatus handles PATCH /api/sales/{id}/status.
func (h *Handler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := decodeStatusRequest(d)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.sales.TransitionStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSale(e, s) })
}
