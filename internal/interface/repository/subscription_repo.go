package repository

import (
	"context"
	"errors"
	"time"

	"flightstatus-service/internal/domain/entity"
	"flightstatus-service/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// attemptHistoryLimit caps the stored delivery attempt history per
// subscription.
const attemptHistoryLimit = 50

// MongoSubscriptionRepository implements SubscriptionRepository
type MongoSubscriptionRepository struct {
	collection *mongo.Collection
}

// NewMongoSubscriptionRepository creates a new subscription repository
func NewMongoSubscriptionRepository(db *mongo.Database) repository.SubscriptionRepository {
	collection := db.Collection("webhook_subscriptions")

	ctx := context.Background()

	statusIndex := mongo.IndexModel{
		Keys: bson.M{"status": 1},
	}
	flightNumbersIndex := mongo.IndexModel{
		Keys: bson.M{"flightNumbers": 1},
	}

	collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		statusIndex,
		flightNumbersIndex,
	})

	return &MongoSubscriptionRepository{
		collection: collection,
	}
}

// Save inserts or replaces a subscription document
func (r *MongoSubscriptionRepository) Save(ctx context.Context, sub *entity.WebhookSubscription) error {
	sub.UpdatedAt = time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = sub.UpdatedAt
	}

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": sub.ID}, sub, opts)
	return err
}

// FindByID finds a subscription by id
func (r *MongoSubscriptionRepository) FindByID(ctx context.Context, id string) (*entity.WebhookSubscription, error) {
	var sub entity.WebhookSubscription
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Delete removes a subscription; it reports whether a document
// actually existed.
func (r *MongoSubscriptionRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}

// RecordAttempt appends a delivery attempt and updates cumulative
// stats in one write, then returns the refreshed consecutive failure
// count.
func (r *MongoSubscriptionRepository) RecordAttempt(ctx context.Context, id string, attempt entity.DeliveryAttempt) (int, error) {
	inc := bson.M{
		"deliveryStats.totalAttempts": 1,
	}
	set := bson.M{
		"lastDeliveryAttempt": attempt,
		"updatedAt":           time.Now().UTC(),
	}

	if attempt.Success {
		inc["deliveryStats.successfulAttempts"] = 1
		set["deliveryStats.consecutiveFailures"] = 0
	} else {
		inc["deliveryStats.failedAttempts"] = 1
		inc["deliveryStats.consecutiveFailures"] = 1
	}

	update := bson.M{
		"$inc": inc,
		"$set": set,
		"$push": bson.M{
			"attemptHistory": bson.M{
				"$each":  []entity.DeliveryAttempt{attempt},
				"$slice": -attemptHistoryLimit,
			},
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var sub entity.WebhookSubscription
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, repository.ErrSubscriptionNotFound
	}
	if err != nil {
		return 0, err
	}
	return sub.DeliveryStats.ConsecutiveFailures, nil
}

// UpdateStatus sets the lifecycle status of a subscription
func (r *MongoSubscriptionRepository) UpdateStatus(ctx context.Context, id string, status entity.SubscriptionStatus) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":    status,
			"updatedAt": time.Now().UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrSubscriptionNotFound
	}
	return nil
}
