package entity

import (
	"time"
)

// AirportInfo is reference data for an airport, keyed by IATA code.
// It backs the airport descriptors embedded in Flight snapshots.
type AirportInfo struct {
	ID        uint
	Code      string
	Name      string
	City      string
	Country   string
	TzName    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AirlineInfo is reference data for an airline, keyed by its two
// letter prefix code.
type AirlineInfo struct {
	ID        uint
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
