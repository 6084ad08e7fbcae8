package repository

import (
	"context"
	"errors"

	"flightstatus-service/internal/domain/entity"
)

// ErrSubscriptionNotFound is returned when no subscription matches
// the requested id.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionRepository defines the persistent store for webhook
// subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, sub *entity.WebhookSubscription) error
	FindByID(ctx context.Context, id string) (*entity.WebhookSubscription, error)
	Delete(ctx context.Context, id string) (bool, error)

	// RecordAttempt appends a delivery attempt, updates the
	// cumulative stats and returns the refreshed consecutive
	// failure count.
	RecordAttempt(ctx context.Context, id string, attempt entity.DeliveryAttempt) (int, error)

	UpdateStatus(ctx context.Context, id string, status entity.SubscriptionStatus) error
}
