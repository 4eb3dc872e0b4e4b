// README: Driver roster entries and vehicle categories used for dispatch.
package dispatch

import (
	"errors"
	"strings"

	"smartride/internal/types"
)

type Category string

const (
	CategoryAuto Category = "auto"
	CategoryBike Category = "bike"
	CategoryCar  Category = "car"
)

var ErrNoDrivers = errors.New("no drivers available")

// CategoryOf maps a vehicle class to its family. Anything that is not an
// auto-rickshaw or a two-wheeler is a car.
func CategoryOf(vehicleClass string) Category {
	switch strings.ToLower(strings.TrimSpace(vehicleClass)) {
	case "auto", "auto rickshaw", "rickshaw":
		return CategoryAuto
	case "bike", "moto", "scooter":
		return CategoryBike
	default:
		return CategoryCar
	}
}

type Driver struct {
	ID           types.ID       `json:"id"`
	Name         string         `json:"name"`
	Plate        string         `json:"plate"`
	VehicleClass string         `json:"vehicle_class"`
	Rating       float64        `json:"rating"`
	Position     types.GeoPoint `json:"position"`
}

func (d Driver) Category() Category {
	return CategoryOf(d.VehicleClass)
}
