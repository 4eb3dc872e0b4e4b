// README: Config loader with env defaults for HTTP, storage, brokers, providers, and trip timings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "SMARTRIDE_"

type TripConfig struct {
	DispatchDelay    time.Duration
	ApproachDuration time.Duration
	RouteTimeout     time.Duration
	SessionTTL       time.Duration
	MaxTip           int64
	Location         *time.Location
}

type Config struct {
	Env string
	Log struct {
		Level string
	}
	HTTP struct {
		Addr string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	NATS struct {
		URL string
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
	Geocoder struct {
		Provider       string
		URL            string
		Country        string
		Limit          int
		UserAgent      string
		SearchDebounce time.Duration
	}
	Router struct {
		Provider string
		URL      string
	}
	Pricing struct {
		URL     string
		Timeout time.Duration
	}
	Maps struct {
		APIKey string
	}
	Trip TripConfig
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var err error
	l := loader{}

	cfg.Env = l.str("APP_ENV", "production")
	cfg.Log.Level = l.str("LOG_LEVEL", "info")
	cfg.HTTP.Addr = l.str("HTTP_ADDR", ":8080")
	cfg.DB.DSN = l.str("DB_DSN", "")
	cfg.Redis.Addr = l.str("REDIS_ADDR", "")
	cfg.NATS.URL = l.str("NATS_URL", "")
	cfg.Kafka.Brokers = splitList(l.str("KAFKA_BROKERS", ""))
	cfg.Kafka.Topic = l.str("KAFKA_TOPIC", "trip.events")

	cfg.Geocoder.Provider = strings.ToLower(l.str("GEOCODER", "nominatim"))
	cfg.Geocoder.URL = l.str("GEOCODER_URL", "https://nominatim.openstreetmap.org")
	cfg.Geocoder.Country = l.str("GEOCODER_COUNTRY", "in")
	cfg.Geocoder.Limit = l.num("GEOCODER_LIMIT", 5)
	cfg.Geocoder.UserAgent = l.str("GEOCODER_USER_AGENT", "smartride/1.0")
	cfg.Geocoder.SearchDebounce = l.millis("SEARCH_DEBOUNCE_MS", 500)

	cfg.Router.Provider = strings.ToLower(l.str("ROUTER", "osrm"))
	cfg.Router.URL = l.str("ROUTER_URL", "https://router.project-osrm.org")

	cfg.Pricing.URL = l.str("PRICING_URL", "http://127.0.0.1:8001/predict_ride")
	cfg.Pricing.Timeout = l.millis("PRICING_TIMEOUT_MS", 5000)

	cfg.Maps.APIKey = l.str("MAPS_API_KEY", "")

	cfg.Trip.DispatchDelay = l.millis("DISPATCH_DELAY_MS", 3500)
	cfg.Trip.ApproachDuration = l.millis("APPROACH_MS", 10000)
	cfg.Trip.RouteTimeout = l.millis("ROUTE_TIMEOUT_MS", 6000)
	cfg.Trip.SessionTTL = time.Duration(l.num("SESSION_TTL_MIN", 30)) * time.Minute
	cfg.Trip.MaxTip = int64(l.num("MAX_TIP", 500))

	tz := l.str("TZ", "Asia/Kolkata")
	if l.err != nil {
		return Config{}, l.err
	}
	if cfg.Trip.Location, err = time.LoadLocation(tz); err != nil {
		return Config{}, fmt.Errorf("config: %sTZ: %w", envPrefix, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Geocoder.Provider {
	case "nominatim", "google":
	default:
		return fmt.Errorf("config: unknown geocoder %q", c.Geocoder.Provider)
	}
	switch c.Router.Provider {
	case "osrm", "google":
	default:
		return fmt.Errorf("config: unknown router %q", c.Router.Provider)
	}
	if (c.Geocoder.Provider == "google" || c.Router.Provider == "google") && c.Maps.APIKey == "" {
		return fmt.Errorf("config: %sMAPS_API_KEY is required for google providers", envPrefix)
	}
	if c.Trip.DispatchDelay <= 0 || c.Trip.ApproachDuration <= 0 || c.Trip.RouteTimeout <= 0 {
		return fmt.Errorf("config: trip timings must be positive")
	}
	if c.Trip.MaxTip < 0 {
		return fmt.Errorf("config: %sMAX_TIP must not be negative", envPrefix)
	}
	return nil
}

// loader keeps the first parse error so Load can report it once.
type loader struct {
	err error
}

func (l *loader) str(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func (l *loader) num(key string, def int) int {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if l.err == nil {
			l.err = fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
		}
		return def
	}
	return n
}

func (l *loader) millis(key string, def int) time.Duration {
	return time.Duration(l.num(key, def)) * time.Millisecond
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
