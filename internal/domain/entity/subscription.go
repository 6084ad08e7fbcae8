package entity

import (
	"time"
)

// SubscriptionStatus is the lifecycle state of a webhook subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionSuspended SubscriptionStatus = "SUSPENDED"
	SubscriptionFailed    SubscriptionStatus = "FAILED"
	SubscriptionDeleted   SubscriptionStatus = "DELETED"
)

// RetryConfig controls per-subscription delivery retry behaviour.
type RetryConfig struct {
	MaxAttempts   int           `json:"maxAttempts" bson:"maxAttempts"`
	InitialDelay  time.Duration `json:"initialDelay" bson:"initialDelay"`
	MaxDelay      time.Duration `json:"maxDelay" bson:"maxDelay"`
	BackoffFactor float64       `json:"backoffFactor" bson:"backoffFactor"`
}

// DefaultRetryConfig returns the retry settings applied when a
// subscription is created without explicit ones.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  30 * time.Second,
		MaxDelay:      30 * time.Minute,
		BackoffFactor: 2.0,
	}
}

// SubscriptionFilters narrows which instances of a subscribed event
// actually trigger delivery.
type SubscriptionFilters struct {
	MinDelayMinutes int            `json:"minDelayMinutes,omitempty" bson:"minDelayMinutes,omitempty"`
	StatusChanges   []FlightStatus `json:"statusChanges,omitempty" bson:"statusChanges,omitempty"`
}

// DeliveryStats accumulates delivery bookkeeping for a subscription.
// ConsecutiveFailures resets to zero on any successful delivery.
type DeliveryStats struct {
	TotalAttempts       int64 `json:"totalAttempts" bson:"totalAttempts"`
	SuccessfulAttempts  int64 `json:"successfulAttempts" bson:"successfulAttempts"`
	FailedAttempts      int64 `json:"failedAttempts" bson:"failedAttempts"`
	ConsecutiveFailures int   `json:"consecutiveFailures" bson:"consecutiveFailures"`
}

// DeliveryAttempt is one immutable record of a webhook POST outcome.
// StatusCode is 0 when the failure happened at the transport level.
type DeliveryAttempt struct {
	Timestamp  time.Time     `json:"timestamp" bson:"timestamp"`
	StatusCode int           `json:"statusCode" bson:"statusCode"`
	Response   string        `json:"response,omitempty" bson:"response,omitempty"`
	Latency    time.Duration `json:"latency" bson:"latency"`
	Success    bool          `json:"success" bson:"success"`
}

// WebhookSubscription registers a callback URL for events on a set of
// flight numbers. The dispatcher owns Status, DeliveryStats and
// LastDeliveryAttempt; everything else belongs to the subscriber.
type WebhookSubscription struct {
	ID                  string              `json:"id" bson:"_id"`
	FlightNumbers       []string            `json:"flightNumbers" bson:"flightNumbers" validate:"required,min=1,dive,required"`
	CallbackURL         string              `json:"callbackUrl" bson:"callbackUrl" validate:"required,url"`
	Events              []FlightEvent       `json:"events" bson:"events" validate:"required,min=1"`
	Secret              string              `json:"secret" bson:"secret" validate:"required,min=8"`
	Status              SubscriptionStatus  `json:"status" bson:"status"`
	RetryConfig         RetryConfig         `json:"retryConfig" bson:"retryConfig"`
	Filters             SubscriptionFilters `json:"filters" bson:"filters"`
	DeliveryStats       DeliveryStats       `json:"deliveryStats" bson:"deliveryStats"`
	AttemptHistory      []DeliveryAttempt   `json:"attemptHistory,omitempty" bson:"attemptHistory,omitempty"`
	LastDeliveryAttempt *DeliveryAttempt    `json:"lastDeliveryAttempt,omitempty" bson:"lastDeliveryAttempt,omitempty"`
	CreatedAt           time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt" bson:"updatedAt"`
	ExpiresAt           *time.Time          `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
}

// WantsEvent reports whether the subscription listens for ev, either
// explicitly or through the ALL wildcard.
func (s *WebhookSubscription) WantsEvent(ev FlightEvent) bool {
	for _, e := range s.Events {
		if e == ev || e == EventAll {
			return true
		}
	}
	return false
}

// MatchesFilters applies the per-subscription filters to a concrete
// flight/event pair.
func (s *WebhookSubscription) MatchesFilters(flight *Flight, ev FlightEvent) bool {
	if ev == EventDelay && s.Filters.MinDelayMinutes > 0 {
		if flight.Delay == nil || flight.Delay.Minutes() < s.Filters.MinDelayMinutes {
			return false
		}
	}
	if ev == EventStatusChange && len(s.Filters.StatusChanges) > 0 {
		found := false
		for _, st := range s.Filters.StatusChanges {
			if st == flight.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// IsActive reports whether the subscription is eligible for delivery.
func (s *WebhookSubscription) IsActive(now time.Time) bool {
	if s.Status != SubscriptionActive {
		return false
	}
	if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
		return false
	}
	return true
}
