package messaging

import (
	"context"
	"errors"

	"github.com/stylebook/salon-reminders/pkg/logging"
)

// FailoverNotifier attempts a primary send, then falls back to a secondary provider on error.
type FailoverNotifier struct {
	primary       Notifier
	secondary     Notifier
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverNotifier builds a failover notifier with named providers.
func NewFailoverNotifier(primary Notifier, primaryName string, secondary Notifier, secondaryName string, logger *logging.Logger) *FailoverNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverNotifier{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ Notifier = (*FailoverNotifier)(nil)

func (f *FailoverNotifier) Send(ctx context.Context, to, body string) (string, error) {
	if f == nil || f.primary == nil {
		return "", errors.New("messaging: failover primary notifier not configured")
	}
	id, err := f.primary.Send(ctx, to, body)
	if err == nil {
		return id, nil
	}
	// Validation failures would fail on the secondary too; a done context
	// leaves no time for it.
	if f.secondary == nil || errors.Is(err, ErrMissingRecipient) || errors.Is(err, ErrEmptyBody) || ctx.Err() != nil {
		return "", err
	}
	f.logger.Warn("primary sms send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"error", err,
		"to", maskPhone(to),
	)
	id, fallbackErr := f.secondary.Send(ctx, to, body)
	if fallbackErr != nil {
		f.logger.Error("fallback sms send failed",
			"provider", f.secondaryName,
			"error", fallbackErr,
			"to", maskPhone(to),
		)
		return "", errors.Join(err, fallbackErr)
	}
	return id, nil
}
