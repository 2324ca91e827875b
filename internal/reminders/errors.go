package reminders

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrTooLate is returned when the reminder's fire time has already passed.
	// Callers should not retry with the same appointment time.
	ErrTooLate = errors.New("reminders: appointment too soon to schedule reminder")
	// ErrInvalidRequest is returned for structurally bad schedule input.
	ErrInvalidRequest = errors.New("reminders: invalid request")
	// ErrJobNotFound is returned by stores when no job has the given id.
	ErrJobNotFound = errors.New("reminders: job not found")
	// ErrStatusConflict is returned by stores when a compare-and-set status
	// update finds the job in a different status than expected.
	ErrStatusConflict = errors.New("reminders: job status changed")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("reminders: scheduler closed")
)

// PersistenceError reports a Store failure surfaced to a Schedule or Cancel caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("reminders: %s: store unavailable: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError describes a failed notifier attempt. It is only logged and
// recorded on the job; it never reaches Schedule or Cancel callers.
type DeliveryError struct {
	JobID   uuid.UUID
	Attempt int
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("reminders: delivery attempt %d for job %s: %v", e.Attempt, e.JobID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
