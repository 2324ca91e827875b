package messaging

import (
	"context"

	"github.com/stylebook/salon-reminders/internal/observability/metrics"
)

// InstrumentedNotifier counts sends per provider.
type InstrumentedNotifier struct {
	next     Notifier
	provider string
	metrics  *metrics.NotifierMetrics
}

func NewInstrumentedNotifier(next Notifier, provider string, m *metrics.NotifierMetrics) *InstrumentedNotifier {
	return &InstrumentedNotifier{next: next, provider: provider, metrics: m}
}

var _ Notifier = (*InstrumentedNotifier)(nil)

func (i *InstrumentedNotifier) Send(ctx context.Context, to, body string) (string, error) {
	id, err := i.next.Send(ctx, to, body)
	i.metrics.ObserveOutbound(i.provider, err)
	return id, err
}
