// README: Fare request and ride offer models for the external prediction service.
package pricing

import (
	"fmt"
	"strings"

	"smartride/internal/types"
)

type Preference string

const (
	PreferenceBalanced Preference = "balanced"
	PreferenceCheapest Preference = "cheapest"
	PreferenceFastest  Preference = "fastest"
)

// ParsePreference accepts the three known tags case-insensitively. Empty input
// selects PreferenceBalanced.
func ParsePreference(s string) (Preference, error) {
	switch p := Preference(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PreferenceBalanced, nil
	case PreferenceBalanced, PreferenceCheapest, PreferenceFastest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown preference %q", s)
	}
}

type Request struct {
	Pickup     types.GeoPoint
	Drop       types.GeoPoint
	DistanceKm float64
	HourOfDay  int
	Preference Preference
}

type RideOffer struct {
	VehicleClass string      `json:"vehicle_class"`
	Price        types.Money `json:"price"`
	ETAMinutes   float64     `json:"eta_minutes"`
	DistanceKm   float64     `json:"distance_km"`
	SurgeActive  bool        `json:"surge_active"`
}

type predictRequest struct {
	StartLat     float64    `json:"start_lat"`
	StartLon     float64    `json:"start_lon"`
	EndLat       float64    `json:"end_lat"`
	EndLon       float64    `json:"end_lon"`
	RoadDistance float64    `json:"road_distance"`
	Hour         int        `json:"hour"`
	Preference   Preference `json:"preference"`
}

// predictedRide accepts both the short and long field names seen in service
// responses.
type predictedRide struct {
	Vehicle    string   `json:"vehicle"`
	Fare       *float64 `json:"fare"`
	Price      *float64 `json:"price"`
	ETA        *float64 `json:"eta"`
	ETAMinutes *float64 `json:"eta_minutes"`
	Distance   *float64 `json:"distance"`
	DistanceKm *float64 `json:"distance_km"`
	Demand     string   `json:"demand"`
	Surge      bool     `json:"surge"`
}

type predictEnvelope struct {
	Rides []predictedRide `json:"rides"`
	Error string          `json:"error"`
}
