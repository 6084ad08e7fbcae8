package repository

import (
	"context"

	"flightstatus-service/internal/domain/entity"
)

// AirportRepository resolves IATA airport codes to reference data.
type AirportRepository interface {
	GetByCode(ctx context.Context, code string) (*entity.AirportInfo, error)
}

// AirlineRepository resolves airline prefix codes to reference data.
type AirlineRepository interface {
	GetByCode(ctx context.Context, code string) (*entity.AirlineInfo, error)
}
