package reminders

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of a reminder job.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusScheduled || s.Terminal()
}

// Job is one reminder delivery for one recipient of one appointment.
type Job struct {
	ID                uuid.UUID `json:"id"`
	OrderID           string    `json:"order_id"`
	Recipient         string    `json:"recipient"`
	RecipientName     string    `json:"recipient_name"`
	ServiceLabel      string    `json:"service_label"`
	AppointmentTime   time.Time `json:"appointment_time"`
	FireTime          time.Time `json:"fire_time"`
	Status            Status    `json:"status"`
	Attempts          int       `json:"attempts"`
	NextAttemptAt     time.Time `json:"next_attempt_at"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DueAt is the instant the next delivery attempt should run.
func (j Job) DueAt() time.Time {
	if j.NextAttemptAt.After(j.FireTime) {
		return j.NextAttemptAt
	}
	return j.FireTime
}

// StatusUpdate is the mutable part of a job written on each transition.
type StatusUpdate struct {
	Status            Status
	Attempts          int
	NextAttemptAt     time.Time
	ProviderMessageID string
	LastError         string
	UpdatedAt         time.Time
}

func (u StatusUpdate) apply(j *Job) {
	j.Status = u.Status
	j.Attempts = u.Attempts
	j.NextAttemptAt = u.NextAttemptAt
	j.ProviderMessageID = u.ProviderMessageID
	j.LastError = u.LastError
	j.UpdatedAt = u.UpdatedAt
}

// Stats holds per-status counts for the admin listing.
type Stats struct {
	Scheduled int `json:"scheduled"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

func (s *Stats) add(status Status) {
	switch status {
	case StatusScheduled:
		s.Scheduled++
	case StatusSent:
		s.Sent++
	case StatusFailed:
		s.Failed++
	case StatusCancelled:
		s.Cancelled++
	}
	s.Total++
}
