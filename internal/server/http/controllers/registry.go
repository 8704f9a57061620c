package controllers

import (
	"github.com/go-chi/chi/v5"
	"github.com/rzbill/evstore/internal/runtime"
	eventsvc "github.com/rzbill/evstore/internal/services/events"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general    *GeneralController
	events     *EventsController
	aggregates *AggregatesController
}

// NewControllerRegistry creates the controllers over a shared events service.
func NewControllerRegistry(rt *runtime.Runtime, svc *eventsvc.Service) *ControllerRegistry {
	return &ControllerRegistry{
		general:    NewGeneralController(rt, svc),
		events:     NewEventsController(svc),
		aggregates: NewAggregatesController(svc),
	}
}

// RegisterAllRoutes registers every controller route on r.
func (c *ControllerRegistry) RegisterAllRoutes(r chi.Router) {
	c.general.RegisterRoutes(r)
	c.events.RegisterRoutes(r)
	c.aggregates.RegisterRoutes(r)
}
