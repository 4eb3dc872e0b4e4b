// README: Console walk-through of one trip against the configured router, geocoder, and pricing service.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"smartride/internal/config"
	"smartride/internal/infra"
	"smartride/internal/modules/dispatch"
	"smartride/internal/modules/location"
	"smartride/internal/modules/pricing"
	"smartride/internal/modules/route"
	"smartride/internal/modules/trip"
	"smartride/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Env, cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	client := &http.Client{Timeout: 15 * time.Second}
	routes := route.NewService(route.NewOSRMProvider(cfg.Router.URL, client), cfg.Trip.RouteTimeout, logger.Named("route"))
	places := location.NewService(location.NewNominatimGeocoder(location.NominatimConfig{
		BaseURL:   cfg.Geocoder.URL,
		Country:   cfg.Geocoder.Country,
		Limit:     cfg.Geocoder.Limit,
		UserAgent: cfg.Geocoder.UserAgent,
	}, client), nil, nil, logger.Named("location"))

	trips := trip.NewManager(trip.Config{
		DispatchDelay:    cfg.Trip.DispatchDelay,
		ApproachDuration: cfg.Trip.ApproachDuration,
		MaxTip:           cfg.Trip.MaxTip,
		Location:         cfg.Trip.Location,
	}, trip.Deps{
		Routes:  routes,
		Fares:   pricing.NewService(cfg.Pricing.URL, client, cfg.Pricing.Timeout, nil, logger.Named("pricing")),
		Drivers: dispatch.NewService(dispatch.DefaultRoster(), logger.Named("dispatch")),
		Places:  places,
		Logger:  logger.Named("trip"),
	}, cfg.Trip.SessionTTL)

	o := trips.Create()
	defer trips.Close(o.ID())
	snaps, cancel := o.Subscribe()
	defer cancel()

	// Udupi bus stand to Manipal.
	pickup := types.NewGeoPoint(13.3409, 74.7421, "Udupi Bus Stand")
	drop := types.NewGeoPoint(13.3525, 74.7868, "Manipal")
	fmt.Printf("Trip %s: %s -> %s\n", o.ID(), pickup.Name, drop.Name)
	if err := o.SetPickup(pickup); err != nil {
		log.Fatalf("set pickup: %v", err)
	}
	if err := o.SetDrop(drop); err != nil {
		log.Fatalf("set drop: %v", err)
	}

	deadline := time.After(2 * time.Minute)
	booked, announced := false, false
	last := trip.Phase("")
	for {
		var s trip.Snapshot
		select {
		case s = <-snaps:
		case <-deadline:
			log.Fatal("timed out")
		}
		if s.Phase != last {
			fmt.Printf("Phase: %s\n", s.Phase)
			last = s.Phase
		}

		switch s.Phase {
		case trip.PhaseSelecting:
			if booked || len(s.Offers) == 0 {
				if s.Indicators.NoOffers {
					fmt.Println("No offers from the pricing service")
					os.Exit(1)
				}
				continue
			}
			if s.Route != nil {
				fmt.Printf("Route: %.1f km, %d points (%s)\n", s.Route.DistanceKm, len(s.Route.Path), s.Route.Source)
			}
			for _, offer := range s.Offers {
				fmt.Printf("  %-6s %s  eta %.0f min\n", offer.VehicleClass, offer.Price, offer.ETAMinutes)
			}
			if err := o.SelectOffer(s.Offers[0].VehicleClass); err != nil {
				log.Fatalf("select offer: %v", err)
			}
			otp, err := o.ConfirmBooking()
			if err != nil {
				log.Fatalf("confirm: %v", err)
			}
			booked = true
			fmt.Printf("Booked %s, OTP %d\n", s.Offers[0].VehicleClass, otp)
		case trip.PhaseDriverEnroute:
			if s.Driver != nil && !announced {
				announced = true
				fmt.Printf("Driver: %s (%s, %s)\n", s.Driver.Name, s.Driver.Plate, s.Driver.VehicleClass)
			}
		case trip.PhaseArrived:
			fmt.Println("Driver arrived")
			return
		}
	}
}
