package bookings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stylebook/salon-reminders/internal/events"
)

// Publisher enqueues booking events for the Worker.
type Publisher struct {
	queue Queue
}

func NewPublisher(queue Queue) *Publisher {
	if queue == nil {
		panic("bookings: queue required")
	}
	return &Publisher{queue: queue}
}

// Publish wraps evt in an envelope keyed by order and sends it.
func (p *Publisher) Publish(ctx context.Context, orderID string, evt events.CanonicalEvent) (events.Envelope, error) {
	env, err := events.NewEnvelope("order:"+orderID, orderID, evt)
	if err != nil {
		return events.Envelope{}, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return events.Envelope{}, fmt.Errorf("bookings: marshal envelope: %w", err)
	}
	if err := p.queue.Send(ctx, string(data)); err != nil {
		return events.Envelope{}, err
	}
	return env, nil
}
