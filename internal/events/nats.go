package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"smartride/internal/modules/trip"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

type ConnMetrics interface {
	NATSSetConnected(connected bool)
}

// NATSPublisher streams driver positions on trips.<trip>.position.
type NATSPublisher struct {
	nc     natsConn
	logger *zap.Logger
}

func NewNATSPublisher(url string, m ConnMetrics, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("smartride-api"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

type PositionMessage struct {
	TripID    string    `json:"tripId"`
	DriverID  string    `json:"driverId"`
	Index     int       `json:"index"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *NATSPublisher) PublishPosition(_ context.Context, e trip.Event) error {
	if e.Position == nil {
		return fmt.Errorf("position event for trip %s has no position", e.TripID)
	}
	b, err := json.Marshal(PositionMessage{
		TripID:    string(e.TripID),
		DriverID:  string(e.DriverID),
		Index:     e.Index,
		Lat:       e.Position.Lat,
		Lng:       e.Position.Lng,
		Timestamp: e.At,
	})
	if err != nil {
		return err
	}
	return p.nc.Publish(positionSubject(string(e.TripID)), b)
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.logger.Warn("nats drain failed", zap.Error(err))
		}
		p.nc.Close()
	}
}

func positionSubject(tripID string) string {
	return fmt.Sprintf("trips.%s.position", subjectToken(tripID))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
