package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rzbill/evstore/internal/runtime"
	eventsvc "github.com/rzbill/evstore/internal/services/events"
)

// GeneralController serves health, allow-list and metrics endpoints.
type GeneralController struct {
	rt  *runtime.Runtime
	svc *eventsvc.Service
}

func NewGeneralController(rt *runtime.Runtime, svc *eventsvc.Service) *GeneralController {
	return &GeneralController{rt: rt, svc: svc}
}

// RegisterRoutes sets up:
// - Health checks (/v1/healthz)
// - Allow-lists (/v1/allowlists)
// - Prometheus metrics (/metrics)
func (c *GeneralController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/healthz", c.handleHealth)
	r.Get("/v1/allowlists", c.handleAllowlists)
	r.Handle("/metrics", c.rt.Metrics().Handler())
}

// handleHealth returns 200 {"status":"ok"} when healthy and 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.svc.Health(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleAllowlists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, c.svc.Allowlists(r.Context()))
}
