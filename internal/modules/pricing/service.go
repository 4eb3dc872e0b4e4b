// README: Pricing service calls the fare-prediction endpoint and normalises its offers.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"smartride/internal/types"
)

const highDemand = "high"

type Metrics interface {
	ObserveProvider(provider string, d time.Duration, err error)
}

type Service struct {
	url     string
	client  *http.Client
	timeout time.Duration
	metrics Metrics
	logger  *zap.Logger
}

func NewService(url string, client *http.Client, timeout time.Duration, metrics Metrics, logger *zap.Logger) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{url: url, client: client, timeout: timeout, metrics: metrics, logger: logger}
}

// Predict issues exactly one request. Any failure yields an empty slice.
func (s *Service) Predict(ctx context.Context, req Request) []RideOffer {
	began := time.Now()
	offers, err := s.predict(ctx, req)
	if s.metrics != nil {
		s.metrics.ObserveProvider("pricing", time.Since(began), err)
	}
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("fare prediction failed", zap.Error(err))
		}
		return []RideOffer{}
	}
	return offers
}

func (s *Service) predict(ctx context.Context, req Request) ([]RideOffer, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	pref := req.Preference
	if pref == "" {
		pref = PreferenceBalanced
	}
	body, err := json.Marshal(predictRequest{
		StartLat:     req.Pickup.Lat,
		StartLon:     req.Pickup.Lng,
		EndLat:       req.Drop.Lat,
		EndLon:       req.Drop.Lng,
		RoadDistance: req.DistanceKm,
		Hour:         req.HourOfDay,
		Preference:   pref,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pricing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pricing status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pricing read: %w", err)
	}
	rides, err := decodeRides(raw)
	if err != nil {
		return nil, err
	}
	return toOffers(rides, req.DistanceKm), nil
}

func decodeRides(raw []byte) ([]predictedRide, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("pricing: empty body")
	}
	if trimmed[0] == '[' {
		var rides []predictedRide
		if err := json.Unmarshal(trimmed, &rides); err != nil {
			return nil, fmt.Errorf("pricing decode: %w", err)
		}
		return rides, nil
	}
	var env predictEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("pricing decode: %w", err)
	}
	if env.Error != "" {
		return nil, fmt.Errorf("pricing service: %s", env.Error)
	}
	return env.Rides, nil
}

// toOffers drops malformed entries and repeated vehicle classes.
func toOffers(rides []predictedRide, routeKm float64) []RideOffer {
	offers := make([]RideOffer, 0, len(rides))
	seen := make(map[string]bool, len(rides))
	for _, r := range rides {
		fare := firstOf(r.Fare, r.Price)
		if r.Vehicle == "" || seen[r.Vehicle] || fare == nil || *fare < 0 || math.IsNaN(*fare) {
			continue
		}
		seen[r.Vehicle] = true

		offer := RideOffer{
			VehicleClass: r.Vehicle,
			Price:        types.Rupees(int64(math.Round(*fare))),
			DistanceKm:   routeKm,
			SurgeActive:  r.Surge || strings.EqualFold(r.Demand, highDemand),
		}
		if eta := firstOf(r.ETA, r.ETAMinutes); eta != nil {
			offer.ETAMinutes = *eta
		}
		if d := firstOf(r.Distance, r.DistanceKm); d != nil {
			offer.DistanceKm = *d
		}
		offers = append(offers, offer)
	}
	return offers
}

func firstOf(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
