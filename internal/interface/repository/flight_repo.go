package repository

import (
	"context"
	"errors"
	"time"

	"flightstatus-service/internal/domain/entity"
	"flightstatus-service/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoFlightRepository implements FlightRepository
type MongoFlightRepository struct {
	collection *mongo.Collection
}

// NewMongoFlightRepository creates a new flight repository
func NewMongoFlightRepository(db *mongo.Database) repository.FlightRepository {
	collection := db.Collection("flights")

	ctx := context.Background()

	// One document per (flightNumber, scheduledDeparture): each
	// departure keeps its own snapshot so history queries and delay
	// estimation see every past operation of the flight number. The
	// index also serves latest-first current-snapshot lookups and
	// ascending history range scans.
	snapshotIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "flightNumber", Value: 1},
			{Key: "scheduledDeparture", Value: -1},
		},
		Options: options.Index().SetUnique(true),
	}

	collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		snapshotIndex,
	})

	return &MongoFlightRepository{
		collection: collection,
	}
}

// FindByNumber finds the current snapshot for a flight number: the
// one with the most recent scheduled departure.
func (r *MongoFlightRepository) FindByNumber(ctx context.Context, flightNumber string) (*entity.Flight, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "scheduledDeparture", Value: -1}})

	var flight entity.Flight
	err := r.collection.FindOne(ctx, bson.M{"flightNumber": flightNumber}, opts).Decode(&flight)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrFlightNotFound
	}
	if err != nil {
		return nil, err
	}
	return &flight, nil
}

// Upsert creates or updates the snapshot for one departure of a
// flight number; snapshots of earlier departures stay untouched. The
// write is idempotent; concurrent upserts of the same snapshot are
// harmless.
func (r *MongoFlightRepository) Upsert(ctx context.Context, flight *entity.Flight) error {
	flight.UpdatedAt = time.Now().UTC()

	if flight.ID == "" {
		flight.ID = primitive.NewObjectID().Hex()
		flight.CreatedAt = flight.UpdatedAt
	}

	updateDoc := bson.M{
		"flightNumber":       flight.FlightNumber,
		"airline":            flight.Airline,
		"origin":             flight.Origin,
		"destination":        flight.Destination,
		"scheduledDeparture": flight.ScheduledDeparture,
		"scheduledArrival":   flight.ScheduledArrival,
		"actualDeparture":    flight.ActualDeparture,
		"actualArrival":      flight.ActualArrival,
		"estimatedDeparture": flight.EstimatedDeparture,
		"estimatedArrival":   flight.EstimatedArrival,
		"status":             flight.Status,
		"delay":              flight.Delay,
		"position":           flight.Position,
		"departureGate":      flight.DepartureGate,
		"arrivalGate":        flight.ArrivalGate,
		"metadata":           flight.Metadata,
		"createdAt":          flight.CreatedAt,
		"updatedAt":          flight.UpdatedAt,
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{
		"flightNumber":       flight.FlightNumber,
		"scheduledDeparture": flight.ScheduledDeparture,
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": updateDoc}, opts)
	if err != nil {
		return err
	}

	if result.UpsertedCount > 0 && result.UpsertedID != nil {
		if oid, ok := result.UpsertedID.(primitive.ObjectID); ok {
			flight.ID = oid.Hex()
		}
	}

	return nil
}

// FindHistory returns stored snapshots for a flight number within the
// window, sorted by scheduled departure ascending.
func (r *MongoFlightRepository) FindHistory(ctx context.Context, flightNumber string, start, end time.Time) ([]*entity.Flight, error) {
	filter := bson.M{
		"flightNumber": flightNumber,
		"scheduledDeparture": bson.M{
			"$gte": start,
			"$lte": end,
		},
	}

	opts := options.Find().SetSort(bson.D{{Key: "scheduledDeparture", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var flights []*entity.Flight
	if err := cursor.All(ctx, &flights); err != nil {
		return nil, err
	}
	return flights, nil
}

// Search returns flights matching the filter
func (r *MongoFlightRepository) Search(ctx context.Context, filter repository.FlightSearchFilter) ([]*entity.Flight, error) {
	query := bson.M{}
	if filter.Airline != "" {
		query["airline"] = filter.Airline
	}
	if filter.Origin != "" {
		query["origin.code"] = filter.Origin
	}
	if filter.Destination != "" {
		query["destination.code"] = filter.Destination
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	opts := options.Find().SetSort(bson.D{{Key: "scheduledDeparture", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var flights []*entity.Flight
	if err := cursor.All(ctx, &flights); err != nil {
		return nil, err
	}
	return flights, nil
}
