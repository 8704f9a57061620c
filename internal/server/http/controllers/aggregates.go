package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	eventsvc "github.com/rzbill/evstore/internal/services/events"
)

// AggregatesController serves per-user transaction counts.
type AggregatesController struct {
	svc *eventsvc.Service
}

func NewAggregatesController(svc *eventsvc.Service) *AggregatesController {
	return &AggregatesController{svc: svc}
}

// RegisterRoutes sets up GET /aggregated-data/{date}/{grouping}?page=N.
// Page 0, the default, returns only the page count.
func (c *AggregatesController) RegisterRoutes(r chi.Router) {
	r.Get("/aggregated-data/{date}/{grouping}", c.handleAggregates)
}

// handleAggregates answers 404 for an unknown grouping or a malformed date,
// the same as for any unknown path.
func (c *AggregatesController) handleAggregates(w http.ResponseWriter, r *http.Request) {
	page := 0
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = n
	}
	out, err := c.svc.Aggregates(r.Context(), chi.URLParam(r, "date"), chi.URLParam(r, "grouping"), page)
	if errors.Is(err, eventsvc.ErrInvalidArgument) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, out)
}
