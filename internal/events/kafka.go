package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"smartride/internal/modules/trip"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes lifecycle events keyed by trip ID so each trip's
// events stay ordered within a partition.
type KafkaPublisher struct {
	w      messageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaPublisher{w: w, logger: logger}
}

func (p *KafkaPublisher) PublishLifecycle(ctx context.Context, e trip.Event) error {
	ce, err := NewCloudEvent(typePrefix+string(e.Kind), string(e.TripID), e.At, e)
	if err != nil {
		return err
	}
	value, err := json.Marshal(ce)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(e.TripID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "ce_type", Value: []byte(ce.Type)},
		},
	}); err != nil {
		p.logger.Error("kafka publish failed", zap.String("type", ce.Type), zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
