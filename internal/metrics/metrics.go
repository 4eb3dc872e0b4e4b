// README: Prometheus collector shared by the route, location, pricing, trip, and events packages.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ProviderDuration *prometheus.HistogramVec // provider label: route|search|reverse|pricing
	ProviderErrors   *prometheus.CounterVec
	RoutesServed     *prometheus.CounterVec // source label: road|fallback

	StaleResults   *prometheus.CounterVec // kind label: route|fare|dispatch|motion|reverse_lookup
	OffersPerQuote prometheus.Histogram
	Bookings       prometheus.Counter
	Arrivals       prometheus.Counter
	Resets         *prometheus.CounterVec // reason label: cancel|complete|close
	ActiveSessions prometheus.Gauge

	EventsPublished *prometheus.CounterVec // sink label: nats|kafka
	EventErrors     *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	NATSConnected   prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartride_provider_duration_seconds",
			Help:    "Latency of external provider calls.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"provider"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartride_provider_errors_total",
			Help: "External provider calls that failed.",
		}, []string{"provider"}),
		RoutesServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartride_routes_served_total",
			Help: "Routes handed to trips, by source.",
		}, []string{"source"}),
		StaleResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartride_stale_results_total",
			Help: "Asynchronous results dropped because the trip had moved on.",
		}, []string{"kind"}),
		OffersPerQuote: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartride_offers_per_quote",
			Help:    "Number of ride offers applied per quote.",
			Buckets: prometheus.LinearBuckets(0, 1, 8),
		}),
		Bookings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartride_bookings_total",
			Help: "Bookings confirmed.",
		}),
		Arrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartride_driver_arrivals_total",
			Help: "Drivers that reached the pickup.",
		}),
		Resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartride_trip_resets_total",
			Help: "Trips reset to idle.",
		}, []string{"reason"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartride_active_sessions",
			Help: "Trip sessions currently held in memory.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartride_events_published_total",
			Help: "Trip events delivered to a sink.",
		}, []string{"sink"}),
		EventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartride_event_errors_total",
			Help: "Trip events a sink failed to accept.",
		}, []string{"sink"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartride_events_dropped_total",
			Help: "Trip events dropped because the forward queue was full.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartride_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		c.ProviderDuration, c.ProviderErrors, c.RoutesServed,
		c.StaleResults, c.OffersPerQuote, c.Bookings, c.Arrivals, c.Resets, c.ActiveSessions,
		c.EventsPublished, c.EventErrors, c.EventsDropped, c.NATSConnected,
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

func (c *Collector) ObserveProvider(provider string, d time.Duration, err error) {
	c.ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		c.ProviderErrors.WithLabelValues(provider).Inc()
	}
}

func (c *Collector) RouteServed(source string) { c.RoutesServed.WithLabelValues(source).Inc() }

func (c *Collector) StaleDiscarded(kind string) { c.StaleResults.WithLabelValues(kind).Inc() }

func (c *Collector) OffersReceived(n int) { c.OffersPerQuote.Observe(float64(n)) }

func (c *Collector) BookingConfirmed() { c.Bookings.Inc() }

func (c *Collector) DriverArrived() { c.Arrivals.Inc() }

func (c *Collector) TripReset(reason string) { c.Resets.WithLabelValues(reason).Inc() }

func (c *Collector) SessionsActive(n int) { c.ActiveSessions.Set(float64(n)) }

func (c *Collector) EventPublished(sink string, err error) {
	if err != nil {
		c.EventErrors.WithLabelValues(sink).Inc()
		return
	}
	c.EventsPublished.WithLabelValues(sink).Inc()
}

func (c *Collector) EventDropped() { c.EventsDropped.Inc() }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}
