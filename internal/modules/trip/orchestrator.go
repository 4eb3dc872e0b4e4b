// README: Trip orchestrator: a generation-guarded state machine sequencing route, fare, dispatch, and motion.
package trip

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"smartride/internal/geo"
	"smartride/internal/modules/dispatch"
	"smartride/internal/modules/location"
	"smartride/internal/modules/motion"
	"smartride/internal/modules/pricing"
	"smartride/internal/modules/route"
	"smartride/internal/types"
)

type RouteFetcher interface {
	Fetch(ctx context.Context, start, end types.GeoPoint) (route.Result, error)
}

type FarePredictor interface {
	Predict(ctx context.Context, req pricing.Request) []pricing.RideOffer
}

type DriverPicker interface {
	Pick(ctx context.Context, vehicleClass string, near types.GeoPoint) (dispatch.Driver, error)
}

type PlaceResolver interface {
	ReverseLookup(ctx context.Context, lat, lng float64) location.Address
}

// Observer receives events while the orchestrator is locked. It must not
// block and must not call back into the orchestrator; either deadlocks.
type Observer interface {
	TripEvent(e Event)
}

type Metrics interface {
	StaleDiscarded(kind string)
	OffersReceived(n int)
	BookingConfirmed()
	DriverArrived()
	TripReset(reason string)
	SessionsActive(n int)
}

type Config struct {
	DispatchDelay    time.Duration
	ApproachDuration time.Duration
	MaxTip           int64
	Location         *time.Location
}

type Deps struct {
	Routes   RouteFetcher
	Fares    FarePredictor
	Drivers  DriverPicker
	Places   PlaceResolver
	// Observer runs under the orchestrator lock; see Observer.
	Observer Observer
	Metrics  Metrics
	Logger   *zap.Logger
	Now      func() time.Time
	IntN     func(int) int
	Float64  func() float64
}

func (d Deps) withDefaults() Deps {
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.IntN == nil {
		d.IntN = rand.IntN
	}
	if d.Float64 == nil {
		d.Float64 = rand.Float64
	}
	return d
}

type slot int

const (
	slotPickup slot = iota
	slotDrop
)

func (s slot) String() string {
	if s == slotPickup {
		return "pickup"
	}
	return "drop"
}

// Orchestrator owns one trip. All state lives behind mu; provider calls run
// on their own goroutines and are applied only while their generation is
// still current.
type Orchestrator struct {
	id   types.ID
	cfg  Config
	deps Deps
	log  *zap.Logger

	base       context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	state      TripState
	gen        uint64
	genCancel  context.CancelFunc
	genCtx     context.Context
	dispatchT  *time.Timer
	run        *motion.Run
	lastOTP    int
	version    uint64
	lastActive time.Time
	subs       map[int]chan Snapshot
	nextSub    int
	closed     bool
}

func New(id types.ID, cfg Config, deps Deps) *Orchestrator {
	deps = deps.withDefaults()
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	base, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		id:         id,
		cfg:        cfg,
		deps:       deps,
		log:        deps.Logger.With(zap.String("trip_id", string(id))),
		base:       base,
		baseCancel: cancel,
		state:      TripState{Phase: PhaseIdle, Preference: pricing.PreferenceBalanced},
		subs:       make(map[int]chan Snapshot),
		lastActive: deps.Now(),
	}
	o.genCtx, o.genCancel = context.WithCancel(base)
	return o
}

func (o *Orchestrator) ID() types.ID { return o.id }

func (o *Orchestrator) SetPickup(p types.GeoPoint) error { return o.setPoint(slotPickup, p) }

func (o *Orchestrator) SetDrop(p types.GeoPoint) error { return o.setPoint(slotDrop, p) }

func (o *Orchestrator) setPoint(s slot, p types.GeoPoint) error {
	if !p.Valid() {
		return ErrInvalidPoint
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.editableLocked(); err != nil {
		return err
	}

	cur := o.slotLocked(s)
	if *cur != nil && (*cur).SameLocation(p) {
		// Same coordinates: a label change never re-fetches.
		*cur = &p
		o.publishLocked()
		return nil
	}
	*cur = &p
	o.pointsChangedLocked()
	return nil
}

// Pin fills pickup if unset, otherwise drop. The point is labelled
// location.PinnedName until a reverse lookup for the same coordinates lands.
func (o *Orchestrator) Pin(lat, lng float64) (string, error) {
	p := types.GeoPoint{Lat: lat, Lng: lng, Name: location.PinnedName}
	if !p.Valid() {
		return "", ErrInvalidPoint
	}

	o.mu.Lock()
	if err := o.editableLocked(); err != nil {
		o.mu.Unlock()
		return "", err
	}
	var s slot
	switch {
	case o.state.Pickup == nil:
		s = slotPickup
	case o.state.Drop == nil:
		s = slotDrop
	default:
		o.mu.Unlock()
		return "", ErrInvalidState
	}
	*o.slotLocked(s) = &p
	o.pointsChangedLocked()
	o.mu.Unlock()

	if o.deps.Places != nil {
		go o.resolveName(s, p)
	}
	return s.String(), nil
}

func (o *Orchestrator) resolveName(s slot, p types.GeoPoint) {
	addr := o.deps.Places.ReverseLookup(o.base, p.Lat, p.Lng)
	if !addr.Resolved {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	cur := o.slotLocked(s)
	if *cur == nil || !(*cur).SameLocation(p) || (*cur).Name != location.PinnedName {
		o.deps.Metrics.StaleDiscarded("reverse_lookup")
		return
	}
	named := (*cur).WithName(addr.Name)
	*cur = &named
	o.publishLocked()
}

// SetPreference re-prices against the accepted route, if any.
func (o *Orchestrator) SetPreference(pref pricing.Preference) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.touchLocked()
	if o.state.Preference == pref {
		return nil
	}
	o.state.Preference = pref

	q := o.state.Quote
	if !pointsEditable(o.state.Phase) || q == nil || q.Route == nil {
		o.publishLocked()
		return nil
	}

	gen, ctx := o.nextGenerationLocked()
	r := *q.Route
	o.state.Quote = &Quote{Route: &r, Selected: -1}
	o.moveLocked(PhaseRouteCalculating)
	o.publishLocked()
	go o.fetchFares(ctx, gen, *o.state.Pickup, *o.state.Drop, r)
	return nil
}

func (o *Orchestrator) SelectOffer(vehicleClass string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.touchLocked()
	if o.state.Phase != PhaseSelecting || o.state.Quote == nil {
		return ErrInvalidState
	}
	for i, offer := range o.state.Quote.Offers {
		if offer.VehicleClass == vehicleClass {
			o.state.Quote.Selected = i
			o.publishLocked()
			return nil
		}
	}
	return ErrUnknownOffer
}

// ConfirmBooking requires a selected offer and returns the trip's OTP.
func (o *Orchestrator) ConfirmBooking() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0, ErrClosed
	}
	o.touchLocked()
	if o.state.Phase != PhaseSelecting {
		return 0, ErrInvalidState
	}
	offer, ok := o.state.Quote.selectedOffer()
	if !ok {
		return 0, ErrInvalidState
	}

	otp := o.newOTPLocked()
	o.state.Booking = &Booking{OTP: otp, Offer: offer, Tip: types.Rupees(0)}
	o.moveLocked(PhaseSearchingDriver)
	o.emitLocked(Event{Kind: EventBookingConfirmed, VehicleClass: offer.VehicleClass})
	o.deps.Metrics.BookingConfirmed()
	o.scheduleDispatchLocked(o.gen, o.genCtx)
	o.publishLocked()
	return otp, nil
}

func (o *Orchestrator) SetTip(amount int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.touchLocked()
	if o.state.Booking == nil {
		return ErrInvalidState
	}
	if amount < 0 || amount > o.cfg.MaxTip {
		return ErrInvalidTip
	}
	o.state.Booking.Tip = types.Rupees(amount)
	o.publishLocked()
	return nil
}

// Cancel resets from any phase.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.touchLocked()
	o.resetLocked("cancel")
	return nil
}

// Complete resets a trip whose driver has arrived.
func (o *Orchestrator) Complete() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.touchLocked()
	if o.state.Phase != PhaseArrived {
		return ErrInvalidState
	}
	o.resetLocked("complete")
	return nil
}

// Close resets the trip, releases subscribers, and rejects further calls.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.resetLocked("close")
	o.closed = true
	o.baseCancel()
	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
}

// IdleSince reports the time of the last user-initiated call.
func (o *Orchestrator) IdleSince() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastActive
}

// ---------------------------------------------------------------------------
// Async work. Each step re-checks its generation under the lock.
// ---------------------------------------------------------------------------

func (o *Orchestrator) fetchRoute(ctx context.Context, gen uint64, pickup, drop types.GeoPoint) {
	r, err := o.deps.Routes.Fetch(ctx, pickup, drop)

	o.mu.Lock()
	if !o.currentLocked(gen, pickup, drop) {
		o.mu.Unlock()
		o.deps.Metrics.StaleDiscarded("route")
		return
	}
	if err != nil {
		o.log.Warn("route unavailable", zap.Error(err))
		o.state.Quote = &Quote{RouteFailed: true, OffersReady: true, Offers: []pricing.RideOffer{}, Selected: -1}
		o.moveLocked(PhaseSelecting)
		o.publishLocked()
		o.mu.Unlock()
		return
	}
	accepted := r.Clone()
	o.state.Quote = &Quote{Route: &accepted, Selected: -1}
	o.publishLocked()
	o.mu.Unlock()

	o.fetchFares(ctx, gen, pickup, drop, r)
}

func (o *Orchestrator) fetchFares(ctx context.Context, gen uint64, pickup, drop types.GeoPoint, r route.Result) {
	o.mu.Lock()
	if !o.currentLocked(gen, pickup, drop) {
		o.mu.Unlock()
		o.deps.Metrics.StaleDiscarded("fare")
		return
	}
	req := pricing.Request{
		Pickup:     pickup,
		Drop:       drop,
		DistanceKm: r.DistanceKm,
		HourOfDay:  o.deps.Now().In(o.cfg.Location).Hour(),
		Preference: o.state.Preference,
	}
	o.mu.Unlock()

	offers := o.deps.Fares.Predict(ctx, req)

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(gen, pickup, drop) || o.state.Quote == nil || o.state.Quote.Route == nil {
		o.deps.Metrics.StaleDiscarded("fare")
		return
	}
	if offers == nil {
		offers = []pricing.RideOffer{}
	}
	o.state.Quote.Offers = append([]pricing.RideOffer(nil), offers...)
	o.state.Quote.OffersReady = true
	o.state.Quote.Selected = -1
	o.deps.Metrics.OffersReceived(len(offers))
	o.moveLocked(PhaseSelecting)
	o.publishLocked()
}

func (o *Orchestrator) scheduleDispatchLocked(gen uint64, ctx context.Context) {
	o.dispatchT = time.AfterFunc(o.cfg.DispatchDelay, func() { o.dispatch(ctx, gen) })
}

func (o *Orchestrator) dispatch(ctx context.Context, gen uint64) {
	o.mu.Lock()
	if gen != o.gen || o.state.Phase != PhaseSearchingDriver {
		o.mu.Unlock()
		o.deps.Metrics.StaleDiscarded("dispatch")
		return
	}
	class := o.state.Booking.Offer.VehicleClass
	pickup := *o.state.Pickup
	o.mu.Unlock()

	d, err := o.deps.Drivers.Pick(ctx, class, pickup)
	if err != nil {
		o.mu.Lock()
		if gen == o.gen && o.state.Phase == PhaseSearchingDriver {
			o.log.Warn("dispatch failed, retrying", zap.Error(err))
			o.scheduleDispatchLocked(gen, ctx)
		}
		o.mu.Unlock()
		return
	}

	start := o.approachStart(pickup)
	r, err := o.deps.Routes.Fetch(ctx, start, pickup)
	if err != nil || len(r.Path) < 2 {
		r = route.Fallback(start, pickup)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || o.state.Phase != PhaseSearchingDriver {
		o.deps.Metrics.StaleDiscarded("dispatch")
		return
	}
	path := append([]types.GeoPoint(nil), r.Path...)
	d.Position = path[0]
	b := o.state.Booking
	b.Driver = &d
	b.DriverPath = path
	o.moveLocked(PhaseDriverEnroute)

	run := motion.Start(path, o.cfg.ApproachDuration)
	o.run = run
	o.publishLocked()
	go o.follow(gen, run)
}

// approachStart places the driver 0.005 to 0.015 degrees away on each axis.
func (o *Orchestrator) approachStart(pickup types.GeoPoint) types.GeoPoint {
	offset := func() float64 {
		v := 0.005 + o.deps.Float64()*0.01
		if o.deps.Float64() < 0.5 {
			v = -v
		}
		return v
	}
	start := geo.Offset(pickup, offset(), offset())
	start.Name = ""
	return start
}

func (o *Orchestrator) follow(gen uint64, run *motion.Run) {
	for pos := range run.Positions() {
		o.mu.Lock()
		if gen != o.gen || o.run != run || o.state.Booking == nil || o.state.Booking.Driver == nil {
			o.mu.Unlock()
			o.deps.Metrics.StaleDiscarded("motion")
			return
		}
		b := o.state.Booking
		b.Driver.Position = pos.Point
		point := pos.Point
		o.emitLocked(Event{Kind: EventDriverMoved, DriverID: b.Driver.ID, Position: &point, Index: pos.Index})
		if pos.Arrived && !b.Arrived {
			b.Arrived = true
			o.moveLocked(PhaseArrived)
			o.deps.Metrics.DriverArrived()
		}
		o.publishLocked()
		o.mu.Unlock()
	}
}

// ---------------------------------------------------------------------------
// Locked helpers
// ---------------------------------------------------------------------------

func (o *Orchestrator) editableLocked() error {
	if o.closed {
		return ErrClosed
	}
	o.touchLocked()
	if !pointsEditable(o.state.Phase) {
		return ErrInvalidState
	}
	return nil
}

func (o *Orchestrator) slotLocked(s slot) **types.GeoPoint {
	if s == slotPickup {
		return &o.state.Pickup
	}
	return &o.state.Drop
}

func (o *Orchestrator) pointsChangedLocked() {
	o.state.Quote = nil
	gen, ctx := o.nextGenerationLocked()

	switch {
	case o.state.Pickup != nil && o.state.Drop != nil:
		o.moveLocked(PhaseRouteCalculating)
		go o.fetchRoute(ctx, gen, *o.state.Pickup, *o.state.Drop)
	case o.state.Pickup != nil:
		o.moveLocked(PhaseAwaitingDrop)
	default:
		// Drop without pickup waits in idle.
	}
	o.publishLocked()
}

// nextGenerationLocked invalidates all outstanding work of the previous
// generation and returns a fresh context for the new one.
func (o *Orchestrator) nextGenerationLocked() (uint64, context.Context) {
	o.gen++
	o.genCancel()
	o.genCtx, o.genCancel = context.WithCancel(o.base)
	return o.gen, o.genCtx
}

func (o *Orchestrator) currentLocked(gen uint64, pickup, drop types.GeoPoint) bool {
	if o.closed || gen != o.gen || o.state.Phase != PhaseRouteCalculating {
		return false
	}
	return o.state.Pickup != nil && o.state.Drop != nil &&
		o.state.Pickup.SameLocation(pickup) && o.state.Drop.SameLocation(drop)
}

func (o *Orchestrator) resetLocked(reason string) {
	o.nextGenerationLocked()
	if o.dispatchT != nil {
		o.dispatchT.Stop()
		o.dispatchT = nil
	}
	if o.run != nil {
		o.run.Cancel()
		o.run = nil
	}

	from := o.state.Phase
	o.state = TripState{Phase: PhaseIdle, Preference: o.state.Preference}
	o.emitLocked(Event{Kind: EventReset, From: from, To: PhaseIdle, Reason: reason})
	o.deps.Metrics.TripReset(reason)
	o.log.Info("trip reset", zap.String("reason", reason), zap.String("from", string(from)))
	o.publishLocked()
}

func (o *Orchestrator) moveLocked(to Phase) {
	from := o.state.Phase
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		o.log.Error("illegal phase transition", zap.String("from", string(from)), zap.String("to", string(to)))
		return
	}
	o.state.Phase = to
	o.log.Info("phase changed", zap.String("from", string(from)), zap.String("to", string(to)))
	o.emitLocked(Event{Kind: EventPhaseChanged, From: from, To: to})
}

// newOTPLocked draws from [1000, 9999] and never repeats the previous trip's OTP.
func (o *Orchestrator) newOTPLocked() int {
	for {
		otp := 1000 + o.deps.IntN(9000)
		if otp != o.lastOTP {
			o.lastOTP = otp
			return otp
		}
	}
}

func (o *Orchestrator) touchLocked() {
	o.lastActive = o.deps.Now()
}

func (o *Orchestrator) emitLocked(e Event) {
	if o.deps.Observer == nil {
		return
	}
	e.TripID = o.id
	e.At = o.deps.Now()
	o.deps.Observer.TripEvent(e)
}

type nopMetrics struct{}

func (nopMetrics) StaleDiscarded(string) {}
func (nopMetrics) OffersReceived(int)    {}
func (nopMetrics) BookingConfirmed()     {}
func (nopMetrics) DriverArrived()        {}
func (nopMetrics) TripReset(string)      {}
func (nopMetrics) SessionsActive(int)    {}
