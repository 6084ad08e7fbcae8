package repository

import (
	"context"
	"errors"
	"time"

	"flightstatus-service/internal/domain/entity"
)

// ErrFlightNotFound is returned when no stored snapshot matches the
// requested flight number.
var ErrFlightNotFound = errors.New("flight not found")

// FlightRepository defines the persistent store for flight snapshots.
type FlightRepository interface {
	FindByNumber(ctx context.Context, flightNumber string) (*entity.Flight, error)
	Upsert(ctx context.Context, flight *entity.Flight) error
	FindHistory(ctx context.Context, flightNumber string, start, end time.Time) ([]*entity.Flight, error)
	Search(ctx context.Context, filter FlightSearchFilter) ([]*entity.Flight, error)
}

// FlightSearchFilter narrows a flight search. Zero values mean
// "unfiltered".
type FlightSearchFilter struct {
	Airline     string
	Origin      string
	Destination string
	Status      entity.FlightStatus
	Limit       int64
}
