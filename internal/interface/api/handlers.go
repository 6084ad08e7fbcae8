package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"flightstatus-service/internal/domain/entity"
	"flightstatus-service/internal/domain/repository"
	"flightstatus-service/internal/usecase"
	"flightstatus-service/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// Handler implements the HTTP pass-throughs
type Handler struct {
	tracker    *usecase.FlightTracker
	dispatcher *usecase.WebhookDispatcher
	logger     logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(tracker *usecase.FlightTracker, dispatcher *usecase.WebhookDispatcher, log logger.Logger) *Handler {
	return &Handler{
		tracker:    tracker,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// GetFlight resolves a flight through the cache-aside path
func (h *Handler) GetFlight(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	flight, err := h.tracker.GetFlight(r.Context(), number)
	if errors.Is(err, repository.ErrFlightNotFound) {
		writeError(w, http.StatusNotFound, "flight not found")
		return
	}
	if err != nil {
		h.logger.Error("Flight lookup failed", "flightNumber", number, "error", err)
		writeError(w, http.StatusInternalServerError, "flight lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, flight)
}

// SearchFlights returns stored flights matching query parameters
func (h *Handler) SearchFlights(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repository.FlightSearchFilter{
		Airline:     query.Get("airline"),
		Origin:      query.Get("origin"),
		Destination: query.Get("destination"),
		Status:      entity.FlightStatus(query.Get("status")),
		Limit:       100,
	}

	flights, err := h.tracker.SearchFlights(r.Context(), filter)
	if err != nil {
		h.logger.Error("Flight search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "flight search failed")
		return
	}
	writeJSON(w, http.StatusOK, flights)
}

// GetFlightHistory returns stored snapshots within a window
func (h *Handler) GetFlightHistory(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		end = t
	}

	history, err := h.tracker.GetHistoricalData(r.Context(), number, start, end)
	if err != nil {
		h.logger.Error("History lookup failed", "flightNumber", number, "error", err)
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type statusUpdateRequest struct {
	Status   entity.FlightStatus    `json:"status"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateFlightStatus applies a status change and fans the resulting
// event out to webhook subscribers.
func (h *Handler) UpdateFlightStatus(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flight, err := h.tracker.UpdateFlightStatus(r.Context(), number, req.Status, req.Metadata)
	if errors.Is(err, repository.ErrFlightNotFound) {
		writeError(w, http.StatusNotFound, "flight not found")
		return
	}
	if errors.Is(err, usecase.ErrIllegalTransition) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Status update failed", "flightNumber", number, "error", err)
		writeError(w, http.StatusInternalServerError, "status update failed")
		return
	}

	if err := h.dispatcher.NotifyFlightUpdate(r.Context(), flight, eventForStatus(req.Status)); err != nil {
		h.logger.Error("Webhook fan-out failed", "flightNumber", number, "error", err)
	}

	writeJSON(w, http.StatusOK, flight)
}

// eventForStatus maps a status change to the event type subscribers
// see.
func eventForStatus(status entity.FlightStatus) entity.FlightEvent {
	switch status {
	case entity.StatusDelayed:
		return entity.EventDelay
	case entity.StatusDeparted:
		return entity.EventDeparture
	case entity.StatusArrived:
		return entity.EventArrival
	case entity.StatusCancelled:
		return entity.EventCancellation
	case entity.StatusDiverted:
		return entity.EventDiversion
	default:
		return entity.EventStatusChange
	}
}

// CreateSubscription registers a webhook subscription
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var sub entity.WebhookSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.dispatcher.CreateSubscription(r.Context(), &sub)
	if errors.Is(err, usecase.ErrSubscriptionInvalid) || errors.Is(err, usecase.ErrCallbackUnreachable) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Subscription creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "subscription creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetSubscription loads a subscription by id
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.dispatcher.GetSubscription(r.Context(), id)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	if err != nil {
		h.logger.Error("Subscription lookup failed", "subscriptionId", id, "error", err)
		writeError(w, http.StatusInternalServerError, "subscription lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// DeleteSubscription removes a subscription and its indices
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.dispatcher.DeleteSubscription(r.Context(), id)
	if err != nil {
		h.logger.Error("Subscription deletion failed", "subscriptionId", id, "error", err)
		writeError(w, http.StatusInternalServerError, "subscription deletion failed")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryFailedDeliveries triggers one dead-letter drain cycle
func (h *Handler) RetryFailedDeliveries(w http.ResponseWriter, r *http.Request) {
	processed, err := h.dispatcher.RetryFailedDeliveries(r.Context())
	if err != nil {
		h.logger.Error("Dead-letter retry failed", "error", err)
		writeError(w, http.StatusInternalServerError, "dead-letter retry failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
