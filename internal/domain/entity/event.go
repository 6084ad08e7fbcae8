package entity

// FlightEvent identifies the kind of flight update being published to
// webhook subscribers.
type FlightEvent string

const (
	EventStatusChange FlightEvent = "STATUS_CHANGE"
	EventDelay        FlightEvent = "DELAY"
	EventGateChange   FlightEvent = "GATE_CHANGE"
	EventDeparture    FlightEvent = "DEPARTURE"
	EventArrival      FlightEvent = "ARRIVAL"
	EventCancellation FlightEvent = "CANCELLATION"
	EventDiversion    FlightEvent = "DIVERSION"

	// EventAll is the wildcard subscription target.
	EventAll FlightEvent = "ALL"
)
