package entity

import (
	"time"
)

// FlightStatus is the lifecycle state of a flight.
type FlightStatus string

const (
	StatusScheduled FlightStatus = "SCHEDULED"
	StatusBoarding  FlightStatus = "BOARDING"
	StatusDelayed   FlightStatus = "DELAYED"
	StatusDeparted  FlightStatus = "DEPARTED"
	StatusInAir     FlightStatus = "IN_AIR"
	StatusLanded    FlightStatus = "LANDED"
	StatusArrived   FlightStatus = "ARRIVED"
	StatusCancelled FlightStatus = "CANCELLED"
	StatusDiverted  FlightStatus = "DIVERTED"
)

// allowedTransitions holds the legal forward edges of the status
// machine. CANCELLED and DIVERTED are reachable from any state and are
// handled separately in CanTransitionTo.
var allowedTransitions = map[FlightStatus][]FlightStatus{
	StatusScheduled: {StatusBoarding, StatusDelayed},
	StatusBoarding:  {StatusDeparted, StatusDelayed},
	StatusDelayed:   {StatusScheduled, StatusBoarding},
	StatusDeparted:  {StatusInAir},
	StatusInAir:     {StatusLanded},
	StatusLanded:    {StatusArrived},
}

// CanTransitionTo reports whether moving from s to next is a legal
// status transition.
func (s FlightStatus) CanTransitionTo(next FlightStatus) bool {
	if next == StatusCancelled || next == StatusDiverted {
		return true
	}
	if s == next {
		return true
	}
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Airport describes one endpoint of a flight segment.
type Airport struct {
	Code     string `json:"code" bson:"code"`
	Name     string `json:"name,omitempty" bson:"name,omitempty"`
	City     string `json:"city,omitempty" bson:"city,omitempty"`
	Country  string `json:"country,omitempty" bson:"country,omitempty"`
	Timezone string `json:"timezone,omitempty" bson:"timezone,omitempty"`
}

// DelayInfo captures the current delay on a flight.
type DelayInfo struct {
	Duration          time.Duration `json:"duration" bson:"duration"`
	Reason            string        `json:"reason,omitempty" bson:"reason,omitempty"`
	EstimatedRecovery *time.Time    `json:"estimatedRecovery,omitempty" bson:"estimatedRecovery,omitempty"`
}

// Minutes returns the delay duration in whole minutes.
func (d *DelayInfo) Minutes() int {
	return int(d.Duration / time.Minute)
}

// Position is the last known physical location of a flight.
type Position struct {
	Latitude    float64   `json:"latitude" bson:"latitude"`
	Longitude   float64   `json:"longitude" bson:"longitude"`
	Altitude    float64   `json:"altitude" bson:"altitude"`
	Heading     float64   `json:"heading" bson:"heading"`
	GroundSpeed float64   `json:"groundSpeed" bson:"groundSpeed"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

// Flight is the canonical flight snapshot. FlightNumber is the lookup
// key within this service; UpdatedAt increases on every successful
// write.
type Flight struct {
	ID                 string                 `json:"id,omitempty" bson:"_id,omitempty"`
	FlightNumber       string                 `json:"flightNumber" bson:"flightNumber"`
	Airline            string                 `json:"airline" bson:"airline"`
	Origin             Airport                `json:"origin" bson:"origin"`
	Destination        Airport                `json:"destination" bson:"destination"`
	ScheduledDeparture time.Time              `json:"scheduledDeparture" bson:"scheduledDeparture"`
	ScheduledArrival   time.Time              `json:"scheduledArrival" bson:"scheduledArrival"`
	ActualDeparture    *time.Time             `json:"actualDeparture,omitempty" bson:"actualDeparture,omitempty"`
	ActualArrival      *time.Time             `json:"actualArrival,omitempty" bson:"actualArrival,omitempty"`
	EstimatedDeparture *time.Time             `json:"estimatedDeparture,omitempty" bson:"estimatedDeparture,omitempty"`
	EstimatedArrival   *time.Time             `json:"estimatedArrival,omitempty" bson:"estimatedArrival,omitempty"`
	Status             FlightStatus           `json:"status" bson:"status"`
	Delay              *DelayInfo             `json:"delay,omitempty" bson:"delay,omitempty"`
	Position           *Position              `json:"position,omitempty" bson:"position,omitempty"`
	DepartureGate      string                 `json:"departureGate,omitempty" bson:"departureGate,omitempty"`
	ArrivalGate        string                 `json:"arrivalGate,omitempty" bson:"arrivalGate,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt          time.Time              `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt" bson:"updatedAt"`
}

// MergeMetadata shallow-merges extra into the flight metadata; new
// keys win.
func (f *Flight) MergeMetadata(extra map[string]interface{}) {
	if len(extra) == 0 {
		return
	}
	if f.Metadata == nil {
		f.Metadata = make(map[string]interface{}, len(extra))
	}
	for k, v := range extra {
		f.Metadata[k] = v
	}
}
