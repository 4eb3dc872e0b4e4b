package trip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartride/internal/geo"
	"smartride/internal/modules/dispatch"
	"smartride/internal/modules/location"
	"smartride/internal/modules/pricing"
	"smartride/internal/modules/route"
	"smartride/internal/types"
)

var (
	pickupPt = types.GeoPoint{Lat: 13.34, Lng: 74.74, Name: "Udupi Bus Stand"}
	dropPt   = types.GeoPoint{Lat: 13.35, Lng: 74.75, Name: "Manipal"}
	otherPt  = types.GeoPoint{Lat: 13.36, Lng: 74.78, Name: "Malpe"}
)

type coordKey [2]float64

func keyOf(p types.GeoPoint) coordKey { return coordKey{p.Lat, p.Lng} }

// fakeRoutes returns straight road paths. A gate registered for an end point
// (or, via holdStart, a start point) holds that request until released,
// ignoring cancellation, so it lands late.
type fakeRoutes struct {
	mu         sync.Mutex
	gates      map[coordKey]chan struct{}
	startGates map[coordKey]chan struct{}
	points int
	km     float64
	calls  int
}

func newFakeRoutes() *fakeRoutes {
	return &fakeRoutes{gates: map[coordKey]chan struct{}{}, startGates: map[coordKey]chan struct{}{}, points: 3}
}

func (f *fakeRoutes) holdStart(start types.GeoPoint) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.startGates[keyOf(start)] = g
	return g
}

func (f *fakeRoutes) hold(end types.GeoPoint) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[keyOf(end)] = g
	return g
}

func (f *fakeRoutes) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRoutes) Fetch(_ context.Context, start, end types.GeoPoint) (route.Result, error) {
	f.mu.Lock()
	f.calls++
	g := f.gates[keyOf(end)]
	if g == nil {
		g = f.startGates[keyOf(start)]
	}
	n, km := f.points, f.km
	f.mu.Unlock()
	if g != nil {
		<-g
	}

	path := make([]types.GeoPoint, n)
	for i := range path {
		frac := float64(i) / float64(n-1)
		path[i] = types.GeoPoint{
			Lat: start.Lat + (end.Lat-start.Lat)*frac,
			Lng: start.Lng + (end.Lng-start.Lng)*frac,
		}
	}
	path[n-1] = types.GeoPoint{Lat: end.Lat, Lng: end.Lng}
	if km == 0 {
		km = geo.Distance(start, end) * 1.3
	}
	return route.Result{Path: path, DistanceKm: km, DurationMin: km * 2.5, Source: route.SourceRoad}, nil
}

type fakeFares struct {
	mu          sync.Mutex
	offers      []pricing.RideOffer
	gates       map[coordKey]chan struct{}
	pickupGates map[coordKey]chan struct{}
	requests    []pricing.Request
}

func defaultOffers() []pricing.RideOffer {
	return []pricing.RideOffer{
		{VehicleClass: "Auto", Price: types.Rupees(85), ETAMinutes: 6, DistanceKm: 2},
		{VehicleClass: "Bike", Price: types.Rupees(52), ETAMinutes: 4, DistanceKm: 2},
		{VehicleClass: "Sedan", Price: types.Rupees(210), ETAMinutes: 8, DistanceKm: 2, SurgeActive: true},
	}
}

func newFakeFares() *fakeFares {
	return &fakeFares{offers: defaultOffers(), gates: map[coordKey]chan struct{}{}, pickupGates: map[coordKey]chan struct{}{}}
}

func (f *fakeFares) holdPickup(pickup types.GeoPoint) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.pickupGates[keyOf(pickup)] = g
	return g
}

func (f *fakeFares) hold(drop types.GeoPoint) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[keyOf(drop)] = g
	return g
}

func (f *fakeFares) setOffers(offers []pricing.RideOffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = offers
}

func (f *fakeFares) Requests() []pricing.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pricing.Request(nil), f.requests...)
}

func (f *fakeFares) Predict(_ context.Context, req pricing.Request) []pricing.RideOffer {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	g := f.gates[keyOf(req.Drop)]
	if g == nil {
		g = f.pickupGates[keyOf(req.Pickup)]
	}
	offers := append([]pricing.RideOffer(nil), f.offers...)
	f.mu.Unlock()
	if g != nil {
		<-g
	}
	return offers
}

type fakePlaces struct {
	mu    sync.Mutex
	gate  chan struct{}
	name  string
	calls int
}

func (f *fakePlaces) ReverseLookup(_ context.Context, lat, lng float64) location.Address {
	f.mu.Lock()
	f.calls++
	g, name := f.gate, f.name
	f.mu.Unlock()
	if g != nil {
		<-g
	}
	if name == "" {
		return location.Address{Name: location.PinnedName}
	}
	return location.Address{Name: name, FullName: name + ", Karnataka", Resolved: true}
}

type countingPicker struct {
	mu    sync.Mutex
	inner DriverPicker
	calls int
}

func (p *countingPicker) Pick(ctx context.Context, class string, near types.GeoPoint) (dispatch.Driver, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.inner.Pick(ctx, class, near)
}

func (p *countingPicker) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingMetrics struct {
	mu       sync.Mutex
	stale    map[string]int
	arrivals int
	bookings int
	resets   map[string]int
	sessions int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{stale: map[string]int{}, resets: map[string]int{}}
}

func (m *recordingMetrics) StaleDiscarded(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale[kind]++
}
func (m *recordingMetrics) OffersReceived(int) {}
func (m *recordingMetrics) BookingConfirmed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings++
}
func (m *recordingMetrics) DriverArrived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arrivals++
}
func (m *recordingMetrics) TripReset(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[reason]++
}
func (m *recordingMetrics) SessionsActive(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = n
}

func (m *recordingMetrics) staleCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale[kind]
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingObserver) TripEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) count(kind EventKind, to Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && (to == "" || e.To == to) {
			n++
		}
	}
	return n
}

type fixture struct {
	routes  *fakeRoutes
	fares   *fakeFares
	places  *fakePlaces
	picker  *countingPicker
	metrics *recordingMetrics
	events  *recordingObserver
	cfg     Config
	deps    Deps
}

func newFixture() *fixture {
	f := &fixture{
		routes:  newFakeRoutes(),
		fares:   newFakeFares(),
		places:  &fakePlaces{name: "Clock Tower"},
		picker:  &countingPicker{inner: dispatch.NewService(dispatch.DefaultRoster(), zap.NewNop())},
		metrics: newRecordingMetrics(),
		events:  &recordingObserver{},
		cfg: Config{
			DispatchDelay:    20 * time.Millisecond,
			ApproachDuration: 60 * time.Millisecond,
			MaxTip:           500,
			Location:         time.UTC,
		},
	}
	f.deps = Deps{
		Routes:   f.routes,
		Fares:    f.fares,
		Drivers:  f.picker,
		Places:   f.places,
		Observer: f.events,
		Metrics:  f.metrics,
		Logger:   zap.NewNop(),
	}
	return f
}

func (f *fixture) start(t *testing.T) *Orchestrator {
	t.Helper()
	o := New("trip-test", f.cfg, f.deps)
	t.Cleanup(o.Close)
	return o
}

func waitPhase(t *testing.T, o *Orchestrator, want Phase) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return o.Snapshot().Phase == want }, 2*time.Second, 2*time.Millisecond,
		"phase never reached %s (last %s)", want, o.Snapshot().Phase)
	return o.Snapshot()
}

// quoteReady drives a fresh trip to Selecting with the default offers.
func quoteReady(t *testing.T, o *Orchestrator) Snapshot {
	t.Helper()
	require.NoError(t, o.SetPickup(pickupPt))
	require.NoError(t, o.SetDrop(dropPt))
	return waitPhase(t, o, PhaseSelecting)
}
