package messaging

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedNotifier holds sends to a token bucket so bursts of due
// reminders do not trip provider throughput limits.
type RateLimitedNotifier struct {
	next    Notifier
	limiter *rate.Limiter
}

// NewRateLimitedNotifier wraps next with a limiter of perSecond sends and the
// given burst. A non-positive perSecond disables limiting.
func NewRateLimitedNotifier(next Notifier, perSecond float64, burst int) *RateLimitedNotifier {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedNotifier{next: next, limiter: rate.NewLimiter(limit, burst)}
}

var _ Notifier = (*RateLimitedNotifier)(nil)

func (r *RateLimitedNotifier) Send(ctx context.Context, to, body string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("messaging: rate limit wait: %w", err)
	}
	return r.next.Send(ctx, to, body)
}
