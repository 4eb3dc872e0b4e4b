// README: Trip phases, transition table, and the single tagged trip state.
package trip

import (
	"errors"
	"time"

	"smartride/internal/modules/dispatch"
	"smartride/internal/modules/pricing"
	"smartride/internal/modules/route"
	"smartride/internal/types"
)

type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseAwaitingDrop     Phase = "awaiting_drop"
	PhaseRouteCalculating Phase = "route_calculating"
	PhaseSelecting        Phase = "selecting"
	PhaseSearchingDriver  Phase = "searching_driver"
	PhaseDriverEnroute    Phase = "driver_enroute"
	PhaseArrived          Phase = "arrived"
)

var (
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidPoint = errors.New("invalid point")
	ErrUnknownOffer = errors.New("unknown offer")
	ErrInvalidTip   = errors.New("invalid tip")
	ErrClosed       = errors.New("trip closed")
	ErrNotFound     = errors.New("not found")
)

// AllowedTransitions represents the trip state flow (diagram) as code. Every
// phase may also return to idle through a reset.
var AllowedTransitions = map[Phase][]Phase{
	PhaseIdle:             {PhaseAwaitingDrop, PhaseRouteCalculating},
	PhaseAwaitingDrop:     {PhaseRouteCalculating, PhaseIdle},
	PhaseRouteCalculating: {PhaseSelecting, PhaseAwaitingDrop, PhaseIdle},
	PhaseSelecting:        {PhaseRouteCalculating, PhaseAwaitingDrop, PhaseSearchingDriver, PhaseIdle},
	PhaseSearchingDriver:  {PhaseDriverEnroute, PhaseIdle},
	PhaseDriverEnroute:    {PhaseArrived, PhaseIdle},
	PhaseArrived:          {PhaseIdle},
}

func CanTransition(from, to Phase) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, p := range next {
		if p == to {
			return true
		}
	}
	return false
}

// pointsEditable lists the phases in which pickup and drop may change.
func pointsEditable(p Phase) bool {
	switch p {
	case PhaseIdle, PhaseAwaitingDrop, PhaseRouteCalculating, PhaseSelecting:
		return true
	}
	return false
}

// Quote exists once both points are set. Offers are only ever attached to
// the Route that produced them.
type Quote struct {
	Route       *route.Result
	RouteFailed bool
	Offers      []pricing.RideOffer
	OffersReady bool
	Selected    int
}

func (q *Quote) selectedOffer() (pricing.RideOffer, bool) {
	if q == nil || q.Selected < 0 || q.Selected >= len(q.Offers) {
		return pricing.RideOffer{}, false
	}
	return q.Offers[q.Selected], true
}

// Booking exists from confirmation until reset.
type Booking struct {
	OTP        int
	Tip        types.Money
	Offer      pricing.RideOffer
	Driver     *dispatch.Driver
	DriverPath []types.GeoPoint
	Arrived    bool
}

type TripState struct {
	Phase      Phase
	Pickup     *types.GeoPoint
	Drop       *types.GeoPoint
	Preference pricing.Preference
	Quote      *Quote
	Booking    *Booking
}

type EventKind string

const (
	EventPhaseChanged     EventKind = "phase_changed"
	EventBookingConfirmed EventKind = "booking_confirmed"
	EventDriverMoved      EventKind = "driver_moved"
	EventReset            EventKind = "trip_reset"
)

// Event is emitted to the Observer for lifecycle and motion changes.
type Event struct {
	TripID       types.ID        `json:"trip_id"`
	Kind         EventKind       `json:"kind"`
	From         Phase           `json:"from,omitempty"`
	To           Phase           `json:"to,omitempty"`
	VehicleClass string          `json:"vehicle_class,omitempty"`
	DriverID     types.ID        `json:"driver_id,omitempty"`
	Position     *types.GeoPoint `json:"position,omitempty"`
	Index        int             `json:"index,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	At           time.Time       `json:"at"`
}
