package events

import "time"

const (
	EventTypeBookingConfirmed = "booking.confirmed.v1"
	EventTypeBookingCancelled = "booking.cancelled.v1"
)

// BookedClient is one person in a (possibly multi-client) booking.
type BookedClient struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	ServiceLabel string `json:"service_label"`
	Stylist      string `json:"stylist,omitempty"`
}

// BookingConfirmedV1 is published by the booking app once payment clears.
type BookingConfirmedV1 struct {
	OrderID         string         `json:"order_id"`
	AppointmentTime time.Time      `json:"appointment_time"`
	Clients         []BookedClient `json:"clients"`
	// LeadSeconds overrides the default reminder lead when positive.
	LeadSeconds int64     `json:"lead_seconds,omitempty"`
	TotalCents  int64     `json:"total_cents,omitempty"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

func (BookingConfirmedV1) EventType() string {
	return EventTypeBookingConfirmed
}

// BookingCancelledV1 is published when staff or the client cancels.
type BookingCancelledV1 struct {
	OrderID     string    `json:"order_id"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

func (BookingCancelledV1) EventType() string {
	return EventTypeBookingCancelled
}
