package trip

import (
	"smartride/internal/modules/dispatch"
	"smartride/internal/modules/pricing"
	"smartride/internal/modules/route"
	"smartride/internal/types"
)

// Indicators are the derived flags a view needs to explain degraded data.
type Indicators struct {
	Loading       bool `json:"loading"`
	NoRoute       bool `json:"no_route"`
	NoOffers      bool `json:"no_offers"`
	FallbackRoute bool `json:"fallback_route"`
}

// Snapshot is a deep copy of the view-facing trip state.
type Snapshot struct {
	TripID        types.ID            `json:"trip_id"`
	Version       uint64              `json:"version"`
	Phase         Phase               `json:"phase"`
	Pickup        *types.GeoPoint     `json:"pickup,omitempty"`
	Drop          *types.GeoPoint     `json:"drop,omitempty"`
	Preference    pricing.Preference  `json:"preference"`
	Route         *route.Result       `json:"route,omitempty"`
	Offers        []pricing.RideOffer `json:"offers"`
	SelectedOffer *pricing.RideOffer  `json:"selected_offer,omitempty"`
	OTP           int                 `json:"otp,omitempty"`
	Tip           *types.Money        `json:"tip,omitempty"`
	Driver        *dispatch.Driver    `json:"driver,omitempty"`
	DriverPath    []types.GeoPoint    `json:"driver_path,omitempty"`
	Arrived       bool                `json:"arrived"`
	Indicators    Indicators          `json:"indicators"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	st := o.state
	s := Snapshot{
		TripID:     o.id,
		Version:    o.version,
		Phase:      st.Phase,
		Preference: st.Preference,
		Offers:     []pricing.RideOffer{},
	}
	if st.Pickup != nil {
		p := *st.Pickup
		s.Pickup = &p
	}
	if st.Drop != nil {
		d := *st.Drop
		s.Drop = &d
	}

	if q := st.Quote; q != nil {
		if q.Route != nil {
			r := q.Route.Clone()
			s.Route = &r
			s.Indicators.FallbackRoute = r.IsFallback()
		}
		s.Offers = append(s.Offers, q.Offers...)
		if offer, ok := q.selectedOffer(); ok {
			s.SelectedOffer = &offer
		}
		s.Indicators.NoRoute = q.RouteFailed
		s.Indicators.NoOffers = q.OffersReady && len(q.Offers) == 0
	}

	if b := st.Booking; b != nil {
		s.OTP = b.OTP
		tip := b.Tip
		s.Tip = &tip
		if s.SelectedOffer == nil {
			offer := b.Offer
			s.SelectedOffer = &offer
		}
		if b.Driver != nil {
			d := *b.Driver
			s.Driver = &d
		}
		s.DriverPath = append([]types.GeoPoint(nil), b.DriverPath...)
		s.Arrived = b.Arrived
	}

	s.Indicators.Loading = st.Phase == PhaseRouteCalculating || st.Phase == PhaseSearchingDriver
	return s
}

// Subscribe returns a channel that always holds the most recent snapshot.
// Slow readers skip intermediate versions. The channel is closed by the
// returned cancel function or by Close.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.snapshotLocked()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subs[id]; ok {
			close(c)
			delete(o.subs, id)
		}
	}
}

func (o *Orchestrator) publishLocked() {
	o.version++
	if len(o.subs) == 0 {
		return
	}
	snap := o.snapshotLocked()
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
