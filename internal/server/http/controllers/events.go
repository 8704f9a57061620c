package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	eventsvc "github.com/rzbill/evstore/internal/services/events"
	"github.com/rzbill/evstore/pkg/events"
)

// maxBodyBytes bounds push and remove request bodies.
const maxBodyBytes = 16 << 20

// EventsController exposes push, range read and removal over JSON. The
// caller principal comes from the X-Caller header.
type EventsController struct {
	svc *eventsvc.Service
}

func NewEventsController(svc *eventsvc.Service) *EventsController {
	return &EventsController{svc: svc}
}

func (c *EventsController) RegisterRoutes(r chi.Router) {
	r.Route("/v1/events", func(r chi.Router) {
		r.Get("/", c.handleRead)
		r.Post("/", c.handlePush)
		r.Post("/remove", c.handleRemove)
	})
}

// handleRead serves GET /v1/events?start=&length=&waitMs=&filter=.
func (c *EventsController) handleRead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseUint(q.Get("start"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	length, err := parseUint(q.Get("length"), 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid length")
		return
	}
	var waitMs int64
	if v := q.Get("waitMs"); v != "" {
		if waitMs, err = strconv.ParseInt(v, 10, 64); err != nil || waitMs < 0 {
			writeError(w, http.StatusBadRequest, "invalid waitMs")
			return
		}
	}
	resp, err := c.svc.Events(r.Context(), r.Header.Get(CallerHeader), events.EventsArgs{
		Start:  start,
		Length: length,
		WaitMs: waitMs,
		Filter: q.Get("filter"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, resp)
}

// handlePush accepts a PushEventsArgs body and returns 202 Accepted.
func (c *EventsController) handlePush(w http.ResponseWriter, r *http.Request) {
	var req events.PushEventsArgs
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := c.svc.PushEvents(r.Context(), r.Header.Get(CallerHeader), req); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (c *EventsController) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req events.RemoveEventsArgs
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := c.svc.RemoveEvents(r.Context(), r.Header.Get(CallerHeader), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, resp)
}
