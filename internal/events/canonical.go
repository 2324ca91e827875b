package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CanonicalEvent represents a versioned domain event.
type CanonicalEvent interface {
	EventType() string
}

// Envelope captures transport metadata for canonical events.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// EnvelopeOption customizes the generated envelope (useful in tests).
type EnvelopeOption func(*Envelope)

// WithEventID overrides the automatically generated event id.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// WithTimestamp overrides the timestamp stored in microseconds.
func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if ts.IsZero() {
			return
		}
		e.TimestampMicros = ts.UTC().UnixMicro()
	}
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errNilEvent         = errors.New("events: canonical event required")
	// ErrUnknownEventType is returned by DecodeEnvelope for types this service does not consume.
	ErrUnknownEventType = errors.New("events: unknown event type")
	nowFunc             = time.Now
)

// NewEnvelope wraps evt for transport. aggregate identifies the entity the
// event belongs to, e.g. "order:SB-1".
func NewEnvelope(aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	if strings.TrimSpace(aggregate) == "" {
		return Envelope{}, errMissingAggregate
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, fmt.Errorf("events: event type missing")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal canonical payload: %w", err)
	}
	env := Envelope{
		EventID:         uuid.New(),
		EventType:       eventType,
		Aggregate:       strings.TrimSpace(aggregate),
		TimestampMicros: nowFunc().UTC().UnixMicro(),
		CorrelationID:   strings.TrimSpace(correlationID),
		Payload:         append([]byte(nil), payload...),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// DecodeEnvelope parses a transport message and returns the typed event it carries.
func DecodeEnvelope(data []byte) (Envelope, CanonicalEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("events: decode envelope: %w", err)
	}
	var evt CanonicalEvent
	switch env.EventType {
	case EventTypeBookingConfirmed:
		var payload BookingConfirmedV1
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return env, nil, fmt.Errorf("events: decode %s: %w", env.EventType, err)
		}
		evt = payload
	case EventTypeBookingCancelled:
		var payload BookingCancelledV1
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return env, nil, fmt.Errorf("events: decode %s: %w", env.EventType, err)
		}
		evt = payload
	default:
		return env, nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}
	return env, evt, nil
}
