package webhook

import (
	"context"
	"errors"
)

// MultiSink fans a delivery out to every sink in order. Every sink is
// tried; failures are joined.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, d Delivery) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EventPublisher is satisfied by events.Hub.
type EventPublisher interface {
	Publish(eventType string, data any)
}

type hubSink struct {
	pub EventPublisher
}

// HubSink records deliveries in an in-memory event buffer.
func HubSink(pub EventPublisher) Sink {
	return hubSink{pub: pub}
}

func (h hubSink) Publish(_ context.Context, d Delivery) error {
	h.pub.Publish(d.EventType, d)
	return nil
}
