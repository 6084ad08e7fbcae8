// Package api exposes the consumer-facing HTTP surface: thin
// pass-throughs to the flight tracker and webhook dispatcher.
package api

import (
	"net/http"

	"flightstatus-service/internal/usecase"
	"flightstatus-service/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router is the API router
type Router struct {
	handler *Handler
	logger  logger.Logger
}

// NewRouter creates a new API router
func NewRouter(tracker *usecase.FlightTracker, dispatcher *usecase.WebhookDispatcher, log logger.Logger) *Router {
	return &Router{
		handler: NewHandler(tracker, dispatcher, log),
		logger:  log,
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Route("/api/v1", func(router chi.Router) {
		// Flight routes
		router.Get("/flights", r.handler.SearchFlights)
		router.Get("/flights/{number}", r.handler.GetFlight)
		router.Get("/flights/{number}/history", r.handler.GetFlightHistory)
		router.Patch("/flights/{number}/status", r.handler.UpdateFlightStatus)

		// Subscription routes
		router.Post("/subscriptions", r.handler.CreateSubscription)
		router.Get("/subscriptions/{id}", r.handler.GetSubscription)
		router.Delete("/subscriptions/{id}", r.handler.DeleteSubscription)

		// Dead-letter retry trigger
		router.Post("/webhooks/retry", r.handler.RetryFailedDeliveries)
	})

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Healthy"))
	})

	return router
}
