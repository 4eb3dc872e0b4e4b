package route

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"smartride/internal/geo"
	"smartride/internal/types"
)

var (
	udupi   = types.GeoPoint{Lat: 13.3409, Lng: 74.7421, Name: "Udupi"}
	manipal = types.GeoPoint{Lat: 13.3525, Lng: 74.7868, Name: "Manipal"}
)

type stubProvider struct {
	result Result
	err    error
	block  bool
	calls  int
}

func (p *stubProvider) Route(ctx context.Context, _, _ types.GeoPoint) (Result, error) {
	p.calls++
	if p.block {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}
	return p.result, p.err
}

type memCache struct {
	mu sync.Mutex
	m  map[string]Result
}

func (c *memCache) Get(_ context.Context, s, e types.GeoPoint) (Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[routeKey(s, e)]
	return r, ok, nil
}

func (c *memCache) Put(_ context.Context, s, e types.GeoPoint, r Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[routeKey(s, e)] = r
	return nil
}

type countingMetrics struct {
	sources []string
	errs    int
}

func (m *countingMetrics) ObserveProvider(_ string, _ time.Duration, err error) {
	if err != nil {
		m.errs++
	}
}
func (m *countingMetrics) RouteServed(source string) { m.sources = append(m.sources, source) }

func roadResult() Result {
	return Result{
		Path:        []types.GeoPoint{udupi, {Lat: 13.345, Lng: 74.76}, manipal},
		DistanceKm:  6.2,
		DurationMin: 14,
		Source:      SourceRoad,
	}
}

func TestFallback_Deterministic(t *testing.T) {
	r := Fallback(udupi, manipal)
	want := geo.HaversineKm(udupi.Lat, udupi.Lng, manipal.Lat, manipal.Lng)

	require.Equal(t, SourceFallback, r.Source)
	require.Len(t, r.Path, 2)
	require.Equal(t, udupi, r.Path[0])
	require.Equal(t, manipal, r.Path[1])
	require.InDelta(t, want, r.DistanceKm, 1e-9)
	require.InDelta(t, 2*want, r.DurationMin, 1e-9)
	require.Equal(t, r, Fallback(udupi, manipal))
}

func TestService_FallbackCases(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubProvider
	}{
		{name: "provider error", provider: &stubProvider{err: errors.New("boom")}},
		{name: "timeout", provider: &stubProvider{block: true}},
		{name: "single point path", provider: &stubProvider{result: Result{Path: []types.GeoPoint{udupi}, DistanceKm: 1}}},
		{name: "empty path", provider: &stubProvider{result: Result{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &countingMetrics{}
			svc := NewService(tt.provider, 30*time.Millisecond, zap.NewNop(), WithMetrics(m))

			r, err := svc.Fetch(context.Background(), udupi, manipal)
			require.NoError(t, err)
			require.Equal(t, Fallback(udupi, manipal), r)
			require.Equal(t, []string{"fallback"}, m.sources)
			require.Equal(t, 1, m.errs)
		})
	}
}

func TestService_RoadAndCache(t *testing.T) {
	p := &stubProvider{result: roadResult()}
	cache := &memCache{m: map[string]Result{}}
	svc := NewService(p, time.Second, zap.NewNop(), WithCache(cache))

	r, err := svc.Fetch(context.Background(), udupi, manipal)
	require.NoError(t, err)
	require.Equal(t, SourceRoad, r.Source)
	require.Len(t, r.Path, 3)

	again, err := svc.Fetch(context.Background(), udupi, manipal)
	require.NoError(t, err)
	require.Equal(t, r, again)
	require.Equal(t, 1, p.calls, "second fetch should be served from cache")
}

func TestService_FallbackNotCached(t *testing.T) {
	p := &stubProvider{err: errors.New("down")}
	cache := &memCache{m: map[string]Result{}}
	svc := NewService(p, time.Second, zap.NewNop(), WithCache(cache))

	_, err := svc.Fetch(context.Background(), udupi, manipal)
	require.NoError(t, err)
	require.Empty(t, cache.m)
}

func TestService_InvalidPoint(t *testing.T) {
	p := &stubProvider{result: roadResult()}
	svc := NewService(p, time.Second, zap.NewNop())

	_, err := svc.Fetch(context.Background(), types.GeoPoint{Lat: 95, Lng: 0}, manipal)
	require.ErrorIs(t, err, ErrInvalidPoint)
	_, err = svc.Fetch(context.Background(), udupi, types.GeoPoint{Lat: math.NaN()})
	require.ErrorIs(t, err, ErrInvalidPoint)
	require.Zero(t, p.calls)
}

func TestOSRMProvider_Route(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/route/v1/driving/74.742100,13.340900;74.786800,13.352500"))
		require.Equal(t, "full", r.URL.Query().Get("overview"))
		require.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":6200,"duration":840,
			"geometry":{"type":"LineString","coordinates":[[74.7421,13.3409],[74.76,13.345],[74.7868,13.3525]]}}]}`))
	}))
	defer srv.Close()

	r, err := NewOSRMProvider(srv.URL+"/", srv.Client()).Route(context.Background(), udupi, manipal)
	require.NoError(t, err)
	require.InDelta(t, 6.2, r.DistanceKm, 1e-9)
	require.InDelta(t, 14, r.DurationMin, 1e-9)
	require.Len(t, r.Path, 3)
	require.Equal(t, 13.3409, r.Path[0].Lat)
	require.Equal(t, 74.7421, r.Path[0].Lng)
	require.Equal(t, SourceRoad, r.Source)
}

func TestOSRMProvider_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`},
		{name: "no route code", status: http.StatusOK, body: `{"code":"NoRoute","routes":[]}`},
		{name: "no routes", status: http.StatusOK, body: `{"code":"Ok","routes":[]}`},
		{name: "one coordinate", status: http.StatusOK, body: `{"code":"Ok","routes":[{"distance":1,"duration":1,"geometry":{"coordinates":[[74.7,13.3]]}}]}`},
		{name: "garbage", status: http.StatusOK, body: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOSRMProvider(srv.URL, srv.Client()).Route(context.Background(), udupi, manipal)
			require.Error(t, err)
		})
	}
}

func TestGoogleProvider_Route(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/maps/api/directions/json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","routes":[{
			"overview_polyline":{"points":"_p~iF~ps|U_ulLnnqC_mqNvxq` + "`" + `@"},
			"legs":[{"distance":{"text":"1 km","value":1500},"duration":{"text":"2 mins","value":120}},
			        {"distance":{"text":"1 km","value":500},"duration":{"text":"1 min","value":60}}]}]}`))
	}))
	defer srv.Close()

	p, err := NewGoogleProvider("AIza-test", maps.WithBaseURL(srv.URL), maps.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	r, err := p.Route(context.Background(), udupi, manipal)
	require.NoError(t, err)
	require.Len(t, r.Path, 3)
	require.InDelta(t, 38.5, r.Path[0].Lat, 1e-5)
	require.InDelta(t, -120.2, r.Path[0].Lng, 1e-5)
	require.InDelta(t, 2.0, r.DistanceKm, 1e-9)
	require.InDelta(t, 3.0, r.DurationMin, 1e-9)
}

func TestStore_Integration(t *testing.T) {
	addr := os.Getenv("SMARTRIDE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SMARTRIDE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	store := NewStore(client)
	defer client.Del(ctx, routeKey(udupi, manipal))

	require.NoError(t, store.Put(ctx, udupi, manipal, Fallback(udupi, manipal)))
	_, ok, err := store.Get(ctx, udupi, manipal)
	require.NoError(t, err)
	require.False(t, ok, "fallback routes must not be cached")

	require.NoError(t, store.Put(ctx, udupi, manipal, roadResult()))
	got, ok, err := store.Get(ctx, udupi, manipal)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, roadResult(), got)
}
