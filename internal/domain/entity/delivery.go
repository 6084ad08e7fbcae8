package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// WebhookPayload is the wire body POSTed to a callback URL. One
// payload serves every subscription sharing that URL; DeliveryID is a
// deterministic hash consumers can use to de-duplicate under
// at-least-once delivery.
type WebhookPayload struct {
	Event           FlightEvent `json:"event"`
	Timestamp       time.Time   `json:"timestamp"`
	Flight          *Flight     `json:"flight"`
	SubscriptionIDs []string    `json:"subscription_ids"`
	DeliveryID      string      `json:"delivery_id"`
}

// ComputeDeliveryID derives the idempotency key from the flight
// snapshot, the event and the sorted batch membership.
func ComputeDeliveryID(flight *Flight, ev FlightEvent, subscriptionIDs []string) string {
	ids := append([]string(nil), subscriptionIDs...)
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(ev))
	h.Write([]byte(flight.FlightNumber))
	h.Write([]byte(flight.UpdatedAt.UTC().Format(time.RFC3339Nano)))
	if snapshot, err := json.Marshal(flight); err == nil {
		h.Write(snapshot)
	}
	for _, id := range ids {
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DeadLetterEntry holds one undelivered payload awaiting retry. The
// queue is FIFO and consumed only by the retry loop.
type DeadLetterEntry struct {
	Payload         *WebhookPayload `json:"payload"`
	CallbackURL     string          `json:"callbackUrl"`
	SubscriptionIDs []string        `json:"subscriptionIds"`
	Attempt         DeliveryAttempt `json:"attempt"`
	EnqueuedAt      time.Time       `json:"enqueuedAt"`
}
