package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartride/internal/modules/trip"
	"smartride/internal/types"
)

var _ trip.Observer = (*Forwarder)(nil)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	drained  bool
	closed   bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *fakeConn) Drain() error { c.drained = true; return nil }
func (c *fakeConn) Close()       { c.closed = true }

func TestKafkaPublisherWrapsEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w, logger: zap.NewNop()}

	at := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	err := p.PublishLifecycle(context.Background(), trip.Event{
		TripID:       "trip-1",
		Kind:         trip.EventBookingConfirmed,
		VehicleClass: "Auto",
		At:           at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	require.Equal(t, "trip-1", string(msg.Key))

	var ce CloudEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ce))
	require.Equal(t, "smartride.trip.booking_confirmed", ce.Type)
	require.Equal(t, "trip-1", ce.Subject)
	require.Equal(t, specVersion, ce.SpecVersion)
	require.NotEmpty(t, ce.ID)
	require.True(t, ce.Time.Equal(at))

	var e trip.Event
	require.NoError(t, ce.ParseData(&e))
	require.Equal(t, "Auto", e.VehicleClass)
}

func TestKafkaPublisherReturnsWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{w: w, logger: zap.NewNop()}

	err := p.PublishLifecycle(context.Background(), trip.Event{TripID: "trip-1", Kind: trip.EventReset})
	require.EqualError(t, err, "broker down")
}

func TestNATSPublisherSubjectAndPayload(t *testing.T) {
	conn := &fakeConn{}
	p := &NATSPublisher{nc: conn, logger: zap.NewNop()}

	pos := types.GeoPoint{Lat: 13.3409, Lng: 74.7421}
	err := p.PublishPosition(context.Background(), trip.Event{
		TripID:   "trip 1.a",
		Kind:     trip.EventDriverMoved,
		DriverID: "drv_ramesh",
		Position: &pos,
		Index:    4,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"trips.trip_1_a.position"}, conn.subjects)

	var msg PositionMessage
	require.NoError(t, json.Unmarshal(conn.payloads[0], &msg))
	require.Equal(t, "drv_ramesh", msg.DriverID)
	require.Equal(t, 4, msg.Index)
	require.InDelta(t, 74.7421, msg.Lng, 1e-9)

	require.Error(t, p.PublishPosition(context.Background(), trip.Event{TripID: "trip-1"}))

	p.Close()
	require.True(t, conn.drained)
	require.True(t, conn.closed)
}

func TestSubjectToken(t *testing.T) {
	require.Equal(t, "_", subjectToken("  "))
	require.Equal(t, "a_b_c", subjectToken("a.b*c"))
	require.Equal(t, "trips.x_y.position", positionSubject("x>y"))
}

type recordingSink struct {
	mu     sync.Mutex
	events []trip.Event
	err    error
}

func (s *recordingSink) PublishPosition(_ context.Context, e trip.Event) error {
	return s.add(e)
}

func (s *recordingSink) PublishLifecycle(_ context.Context, e trip.Event) error {
	return s.add(e)
}

func (s *recordingSink) add(e trip.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type countingMetrics struct {
	mu        sync.Mutex
	published map[string]int
	failed    map[string]int
	dropped   int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{published: map[string]int{}, failed: map[string]int{}}
}

func (m *countingMetrics) EventPublished(sink string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed[sink]++
		return
	}
	m.published[sink]++
}

func (m *countingMetrics) EventDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func TestForwarderRoutesByKind(t *testing.T) {
	positions := &recordingSink{}
	lifecycle := &recordingSink{err: errors.New("unavailable")}
	m := newCountingMetrics()
	f := NewForwarder(16, positions, lifecycle, m, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	pos := types.GeoPoint{Lat: 13.34, Lng: 74.74}
	f.TripEvent(trip.Event{TripID: "t", Kind: trip.EventDriverMoved, Position: &pos})
	f.TripEvent(trip.Event{TripID: "t", Kind: trip.EventPhaseChanged, From: trip.PhaseIdle, To: trip.PhaseAwaitingDrop})
	f.TripEvent(trip.Event{TripID: "t", Kind: trip.EventReset})

	require.Eventually(t, func() bool { return positions.len() == 1 && lifecycle.len() == 2 }, time.Second, 2*time.Millisecond)
	cancel()
	<-done

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Equal(t, 1, m.published[sinkNATS])
	require.Equal(t, 2, m.failed[sinkKafka])
}

func TestForwarderDropsWhenFull(t *testing.T) {
	m := newCountingMetrics()
	f := NewForwarder(1, nil, &recordingSink{}, m, zap.NewNop())

	f.TripEvent(trip.Event{Kind: trip.EventReset})
	f.TripEvent(trip.Event{Kind: trip.EventReset})
	f.TripEvent(trip.Event{Kind: trip.EventReset})
	require.Equal(t, 2, m.dropped)
}

func TestForwarderFlushesOnShutdown(t *testing.T) {
	lifecycle := &recordingSink{}
	f := NewForwarder(8, nil, lifecycle, nil, zap.NewNop())
	for i := 0; i < 5; i++ {
		f.TripEvent(trip.Event{Kind: trip.EventPhaseChanged})
	}
	f.TripEvent(trip.Event{Kind: trip.EventDriverMoved})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.Run(ctx)
	require.Equal(t, 5, lifecycle.len())
}
