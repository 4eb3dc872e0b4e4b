// README: Dispatch service picks a driver for a confirmed booking.
package dispatch

import (
	"context"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"smartride/internal/geo"
	"smartride/internal/types"
)

type Service struct {
	roster Roster
	intn   func(int) int
	logger *zap.Logger
}

func NewService(roster Roster, logger *zap.Logger) *Service {
	return &Service{roster: roster, intn: rand.IntN, logger: logger}
}

// Pick returns ErrNoDrivers when the roster is empty. near only feeds the
// log line; it does not bias the choice.
func (s *Service) Pick(ctx context.Context, vehicleClass string, near types.GeoPoint) (Driver, error) {
	pool, err := s.roster.ActiveDrivers(ctx)
	if err != nil {
		return Driver{}, fmt.Errorf("load roster: %w", err)
	}
	d, ok := PickDriver(pool, vehicleClass, s.intn)
	if !ok {
		return Driver{}, ErrNoDrivers
	}
	s.logger.Debug("driver picked",
		zap.String("driver_id", string(d.ID)),
		zap.String("requested", vehicleClass),
		zap.String("assigned", d.VehicleClass),
		zap.Float64("distance_km", geo.Distance(d.Position, near)),
	)
	return d, nil
}
