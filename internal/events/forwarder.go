// README: Forwarder decouples trip observers from slow sinks through a bounded queue.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"smartride/internal/modules/trip"
)

const (
	sinkNATS  = "nats"
	sinkKafka = "kafka"

	publishTimeout = 5 * time.Second
)

type PositionSink interface {
	PublishPosition(ctx context.Context, e trip.Event) error
}

type LifecycleSink interface {
	PublishLifecycle(ctx context.Context, e trip.Event) error
}

type Metrics interface {
	EventPublished(sink string, err error)
	EventDropped()
}

// Forwarder implements trip.Observer. TripEvent never blocks; events beyond
// the queue capacity are dropped and counted.
type Forwarder struct {
	queue     chan trip.Event
	positions PositionSink
	lifecycle LifecycleSink
	metrics   Metrics
	logger    *zap.Logger
}

// NewForwarder accepts nil sinks; events for a missing sink are discarded.
func NewForwarder(size int, positions PositionSink, lifecycle LifecycleSink, m Metrics, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		queue:     make(chan trip.Event, size),
		positions: positions,
		lifecycle: lifecycle,
		metrics:   m,
		logger:    logger,
	}
}

func (f *Forwarder) TripEvent(e trip.Event) {
	select {
	case f.queue <- e:
	default:
		if f.metrics != nil {
			f.metrics.EventDropped()
		}
	}
}

// Run delivers queued events until ctx is done, then flushes what is left.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.flush()
			return
		case e := <-f.queue:
			f.deliver(ctx, e)
		}
	}
}

func (f *Forwarder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for {
		select {
		case e := <-f.queue:
			f.deliver(ctx, e)
		default:
			return
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context, e trip.Event) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if e.Kind == trip.EventDriverMoved {
		if f.positions == nil {
			return
		}
		f.record(sinkNATS, e, f.positions.PublishPosition(ctx, e))
		return
	}
	if f.lifecycle == nil {
		return
	}
	f.record(sinkKafka, e, f.lifecycle.PublishLifecycle(ctx, e))
}

func (f *Forwarder) record(sink string, e trip.Event, err error) {
	if f.metrics != nil {
		f.metrics.EventPublished(sink, err)
	}
	if err != nil {
		f.logger.Warn("trip event not delivered",
			zap.String("sink", sink),
			zap.String("trip_id", string(e.TripID)),
			zap.String("kind", string(e.Kind)),
			zap.Error(err),
		)
	}
}
