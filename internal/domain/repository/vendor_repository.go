package repository

import (
	"context"

	"flightstatus-service/internal/domain/entity"
)

// FlightVendor is one configured upstream flight-data provider. Fetch
// must honour ctx cancellation; a response that cannot be mapped into
// the canonical Flight shape is a vendor failure, not a race failure.
type FlightVendor interface {
	Name() string
	Fetch(ctx context.Context, flightNumber string) (*entity.Flight, error)
}
