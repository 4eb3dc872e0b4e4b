// README: Driver roster backed by PostgreSQL, with a built-in fallback roster.
package dispatch

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"smartride/internal/types"
)

// Roster lists drivers that may be assigned to a booking.
type Roster interface {
	ActiveDrivers(ctx context.Context) ([]Driver, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) ActiveDrivers(ctx context.Context) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, name, plate, vehicle_class, rating, base_lat, base_lng
        FROM drivers
        WHERE active
        ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []Driver
	for rows.Next() {
		var d Driver
		var id string
		if err := rows.Scan(&id, &d.Name, &d.Plate, &d.VehicleClass, &d.Rating, &d.Position.Lat, &d.Position.Lng); err != nil {
			return nil, err
		}
		d.ID = types.ID(id)
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

// StaticRoster serves a fixed list; used when no database is configured.
type StaticRoster []Driver

func (r StaticRoster) ActiveDrivers(context.Context) ([]Driver, error) {
	return append([]Driver(nil), r...), nil
}

// DefaultRoster is a small Udupi fleet covering every category.
func DefaultRoster() StaticRoster {
	return StaticRoster{
		{ID: "drv_ramesh", Name: "Ramesh Shetty", Plate: "KA 20 AB 9999", VehicleClass: "Auto", Rating: 4.9, Position: types.GeoPoint{Lat: 13.3409, Lng: 74.7421}},
		{ID: "drv_suresh", Name: "Suresh Kamath", Plate: "KA 20 C 4521", VehicleClass: "Auto", Rating: 4.7, Position: types.GeoPoint{Lat: 13.3490, Lng: 74.7470}},
		{ID: "drv_anil", Name: "Anil Poojary", Plate: "KA 20 EH 3310", VehicleClass: "Bike", Rating: 4.8, Position: types.GeoPoint{Lat: 13.3370, Lng: 74.7460}},
		{ID: "drv_prakash", Name: "Prakash Nayak", Plate: "KA 20 MA 1208", VehicleClass: "Mini", Rating: 4.6, Position: types.GeoPoint{Lat: 13.3525, Lng: 74.7868}},
		{ID: "drv_vinay", Name: "Vinay Acharya", Plate: "KA 20 N 7777", VehicleClass: "Sedan", Rating: 4.8, Position: types.GeoPoint{Lat: 13.3300, Lng: 74.7500}},
		{ID: "drv_deepak", Name: "Deepak Rao", Plate: "KA 20 P 6060", VehicleClass: "SUV", Rating: 4.5, Position: types.GeoPoint{Lat: 13.3450, Lng: 74.7350}},
	}
}
