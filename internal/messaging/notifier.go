package messaging

import (
	"context"
	"errors"
	"strings"
)

// Notifier sends a rendered SMS body to a phone number and returns the
// provider's message id.
type Notifier interface {
	Send(ctx context.Context, to, body string) (string, error)
}

var (
	// ErrMissingRecipient is returned when the destination number is empty or unparseable.
	ErrMissingRecipient = errors.New("messaging: recipient required")
	// ErrEmptyBody is returned when there is nothing to send.
	ErrEmptyBody = errors.New("messaging: body required")
)

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(ctx context.Context, to, body string) (string, error)

func (f NotifierFunc) Send(ctx context.Context, to, body string) (string, error) {
	return f(ctx, to, body)
}

func validateMessage(to, body string) error {
	if strings.TrimSpace(to) == "" {
		return ErrMissingRecipient
	}
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}
	return nil
}
