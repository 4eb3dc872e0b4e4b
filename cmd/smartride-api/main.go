// README: Entry point; loads config, wires providers and trip sessions, starts HTTP server and background workers.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"smartride/internal/config"
	"smartride/internal/events"
	httptransport "smartride/internal/http"
	"smartride/internal/infra"
	"smartride/internal/metrics"
	"smartride/internal/modules/dispatch"
	"smartride/internal/modules/location"
	"smartride/internal/modules/pricing"
	"smartride/internal/modules/route"
	"smartride/internal/modules/trip"
)

const (
	eventQueueSize  = 1024
	janitorInterval = time.Minute
	shutdownTimeout = 10 * time.Second
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	httpClient := &http.Client{Timeout: 15 * time.Second}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			logger.Fatal("redis init", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var roster dispatch.Roster = dispatch.DefaultRoster()
	if cfg.DB.DSN != "" {
		db, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Fatal("db init", zap.Error(err))
		}
		defer db.Close()
		roster = dispatch.NewStore(db)
	} else {
		logger.Info("no database configured, using built-in driver roster")
	}

	routeProvider, err := newRouteProvider(cfg, httpClient)
	if err != nil {
		logger.Fatal("router init", zap.Error(err))
	}
	routeOpts := []route.Option{route.WithMetrics(collector)}
	if redisClient != nil {
		routeOpts = append(routeOpts, route.WithCache(route.NewStore(redisClient)))
	}
	routeSvc := route.NewService(routeProvider, cfg.Trip.RouteTimeout, logger.Named("route"), routeOpts...)

	geocoder, err := newGeocoder(cfg, httpClient)
	if err != nil {
		logger.Fatal("geocoder init", zap.Error(err))
	}
	var placeCache location.Cache
	if redisClient != nil {
		placeCache = location.NewStore(redisClient)
	}
	locationSvc := location.NewService(geocoder, placeCache, collector, logger.Named("location"))

	pricingSvc := pricing.NewService(cfg.Pricing.URL, httpClient, cfg.Pricing.Timeout, collector, logger.Named("pricing"))
	dispatchSvc := dispatch.NewService(roster, logger.Named("dispatch"))

	var positions events.PositionSink
	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL, collector, logger.Named("nats"))
		if err != nil {
			logger.Fatal("nats init", zap.Error(err))
		}
		defer pub.Close()
		positions = pub
	}
	var lifecycle events.LifecycleSink
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.Named("kafka"))
		defer func() { _ = pub.Close() }()
		lifecycle = pub
	}
	forwarder := events.NewForwarder(eventQueueSize, positions, lifecycle, collector, logger.Named("events"))

	trips := trip.NewManager(trip.Config{
		DispatchDelay:    cfg.Trip.DispatchDelay,
		ApproachDuration: cfg.Trip.ApproachDuration,
		MaxTip:           cfg.Trip.MaxTip,
		Location:         cfg.Trip.Location,
	}, trip.Deps{
		Routes:   routeSvc,
		Fares:    pricingSvc,
		Drivers:  dispatchSvc,
		Places:   locationSvc,
		Observer: forwarder,
		Metrics:  collector,
		Logger:   logger.Named("trip"),
	}, cfg.Trip.SessionTTL)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httptransport.NewServer(httptransport.ServerDeps{
		Trips:          trips,
		Places:         locationSvc,
		Metrics:        collector.Handler(),
		Logger:         logger.Named("http"),
		SearchDebounce: cfg.Geocoder.SearchDebounce,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	janitorDone := make(chan struct{})
	go func() {
		trips.RunJanitor(ctx, janitorInterval)
		close(janitorDone)
	}()
	forwarderDone := make(chan struct{})
	go func() {
		forwarder.Run(ctx)
		close(forwarderDone)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("smartride api listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("router", cfg.Router.Provider),
		zap.String("geocoder", cfg.Geocoder.Provider),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", zap.Error(err))
	}

	<-janitorDone
	<-forwarderDone
	logger.Info("smartride api stopped")
}

func newRouteProvider(cfg config.Config, client *http.Client) (route.Provider, error) {
	switch cfg.Router.Provider {
	case "google":
		return route.NewGoogleProvider(cfg.Maps.APIKey, maps.WithHTTPClient(client))
	default:
		return route.NewOSRMProvider(cfg.Router.URL, client), nil
	}
}

func newGeocoder(cfg config.Config, client *http.Client) (location.Geocoder, error) {
	switch cfg.Geocoder.Provider {
	case "google":
		return location.NewGoogleGeocoder(cfg.Maps.APIKey, cfg.Geocoder.Country, cfg.Geocoder.Limit, maps.WithHTTPClient(client))
	default:
		return location.NewNominatimGeocoder(location.NominatimConfig{
			BaseURL:   cfg.Geocoder.URL,
			Country:   cfg.Geocoder.Country,
			Limit:     cfg.Geocoder.Limit,
			UserAgent: cfg.Geocoder.UserAgent,
		}, client), nil
	}
}
