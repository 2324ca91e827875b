package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stylebook/salon-reminders/internal/messaging"
	"github.com/stylebook/salon-reminders/internal/reminders"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

var bookingsTracer = otel.Tracer("stylebook.internal.bookings")

// ErrInvalidBooking is returned for confirmations missing required fields.
var ErrInvalidBooking = errors.New("bookings: invalid booking")

// ReminderScheduler is the part of reminders.Scheduler the booking flow uses.
type ReminderScheduler interface {
	Schedule(ctx context.Context, req reminders.ScheduleRequest) (uuid.UUID, error)
	Cancel(ctx context.Context, orderID string) (bool, error)
	ListByOrder(ctx context.Context, orderID string) ([]reminders.Job, error)
	Now() time.Time
	DefaultLead() time.Duration
}

// Client is one person in a booking.
type Client struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	ServiceLabel string `json:"service_label"`
}

// Confirmation describes a paid booking whose clients need SMS follow-up.
type Confirmation struct {
	OrderID         string
	AppointmentTime time.Time
	Clients         []Client
	// Lead overrides the scheduler's default reminder lead when positive.
	Lead       time.Duration
	TotalCents int64
}

// ScheduledReminder reports a reminder created for one client.
type ScheduledReminder struct {
	JobID     uuid.UUID `json:"job_id"`
	Recipient string    `json:"recipient"`
	FireTime  time.Time `json:"fire_time"`
}

// ConfirmResult summarises what Confirm did for each client.
type ConfirmResult struct {
	OrderID           string              `json:"order_id"`
	Reminders         []ScheduledReminder `json:"reminders"`
	TooLate           []string            `json:"too_late,omitempty"`
	AlreadyScheduled  []string            `json:"already_scheduled,omitempty"`
	ConfirmationsSent int                 `json:"confirmations_sent"`
}

// CancelResult reports the outcome of a booking cancellation.
type CancelResult struct {
	OrderID   string `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
	Notified  int    `json:"notified"`
}

// Service runs the confirmation and cancellation flows around the reminder scheduler.
type Service struct {
	scheduler  ReminderScheduler
	notifier   messaging.Notifier
	salon      reminders.Salon
	salonPhone string
	logger     *logging.Logger
}

// NewService constructs a bookings service.
func NewService(scheduler ReminderScheduler, notifier messaging.Notifier, salon reminders.Salon, salonPhone string, logger *logging.Logger) *Service {
	if scheduler == nil {
		panic("bookings: reminder scheduler required")
	}
	if notifier == nil {
		panic("bookings: notifier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		scheduler:  scheduler,
		notifier:   notifier,
		salon:      salon,
		salonPhone: salonPhone,
		logger:     logger,
	}
}

// Confirm schedules each client's reminder and then sends their confirmation
// SMS. Clients that already hold a live reminder for the same appointment and
// service are skipped, so replaying a confirmation is safe. Confirmation sends
// are best effort. An appointment too close to schedule a
// reminder is logged and reported in TooLate without failing the booking.
func (s *Service) Confirm(ctx context.Context, c Confirmation) (*ConfirmResult, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.confirm")
	defer span.End()

	orderID := strings.TrimSpace(c.OrderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id required", ErrInvalidBooking)
	}
	if c.AppointmentTime.IsZero() {
		return nil, fmt.Errorf("%w: appointment time required", ErrInvalidBooking)
	}
	if len(c.Clients) == 0 {
		return nil, fmt.Errorf("%w: at least one client required", ErrInvalidBooking)
	}
	for i, client := range c.Clients {
		if strings.TrimSpace(client.Phone) == "" {
			return nil, fmt.Errorf("%w: client %d has no phone number", ErrInvalidBooking, i+1)
		}
	}
	span.SetAttributes(
		attribute.String("stylebook.order_id", orderID),
		attribute.Int("stylebook.clients", len(c.Clients)),
	)

	lead := c.Lead
	if lead <= 0 {
		lead = s.scheduler.DefaultLead()
	}

	existing, err := s.scheduler.ListByOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("bookings: list reminders for order %s: %w", orderID, err)
	}
	done := make(map[string]bool, len(existing))
	for _, job := range existing {
		if job.Status == reminders.StatusCancelled || !job.AppointmentTime.Equal(c.AppointmentTime) {
			continue
		}
		done[clientKey(job.Recipient, job.ServiceLabel)] = true
	}

	result := &ConfirmResult{OrderID: orderID, Reminders: []ScheduledReminder{}}
	for _, client := range c.Clients {
		// A redelivered confirmation must not remind or confirm a client twice.
		if done[clientKey(client.Phone, client.ServiceLabel)] {
			s.logger.Info("client already confirmed, skipping", "order_id", orderID)
			result.AlreadyScheduled = append(result.AlreadyScheduled, client.Phone)
			continue
		}

		id, err := s.scheduler.Schedule(ctx, reminders.ScheduleRequest{
			OrderID:         orderID,
			Recipient:       client.Phone,
			RecipientName:   client.Name,
			ServiceLabel:    client.ServiceLabel,
			AppointmentTime: c.AppointmentTime,
			LeadDuration:    lead,
		})
		switch {
		case errors.Is(err, reminders.ErrTooLate):
			s.logger.Info("appointment too soon for reminder", "order_id", orderID, "appointment_time", c.AppointmentTime)
			result.TooLate = append(result.TooLate, client.Phone)
		case err != nil:
			span.RecordError(err)
			return result, fmt.Errorf("bookings: schedule reminder for order %s: %w", orderID, err)
		default:
			result.Reminders = append(result.Reminders, ScheduledReminder{
				JobID:     id,
				Recipient: client.Phone,
				FireTime:  c.AppointmentTime.Add(-lead),
			})
		}

		body := ConfirmationMessage(s.salon, orderID, client, c.AppointmentTime, c.TotalCents, lead)
		if _, err := s.notifier.Send(ctx, client.Phone, body); err != nil {
			s.logger.Warn("booking confirmation sms failed", "order_id", orderID, "error", err)
		} else {
			result.ConfirmationsSent++
		}
	}

	s.logger.Info("booking confirmed",
		"order_id", orderID,
		"clients", len(c.Clients),
		"reminders", len(result.Reminders),
		"too_late", len(result.TooLate),
	)
	return result, nil
}

// Cancel cancels the order's pending reminders and sends a cancellation
// notice to each client whose reminder this call cancelled.
func (s *Service) Cancel(ctx context.Context, orderID string) (*CancelResult, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.cancel")
	defer span.End()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id required", ErrInvalidBooking)
	}
	span.SetAttributes(attribute.String("stylebook.order_id", orderID))

	before, err := s.scheduler.ListByOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("bookings: list reminders for order %s: %w", orderID, err)
	}
	pending := make(map[uuid.UUID]reminders.Job, len(before))
	for _, job := range before {
		if job.Status == reminders.StatusScheduled {
			pending[job.ID] = job
		}
	}

	cancelled, err := s.scheduler.Cancel(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("bookings: cancel order %s: %w", orderID, err)
	}
	result := &CancelResult{OrderID: orderID, Cancelled: cancelled}
	if !cancelled {
		return result, nil
	}

	after, err := s.scheduler.ListByOrder(ctx, orderID)
	if err != nil {
		s.logger.Warn("cancellation notices skipped; reminder lookup failed", "order_id", orderID, "error", err)
		return result, nil
	}
	notified := make(map[string]bool)
	for _, job := range after {
		if _, was := pending[job.ID]; !was || job.Status != reminders.StatusCancelled {
			continue
		}
		key := messaging.NormalizeE164(job.Recipient, "")
		if notified[key] {
			continue
		}
		notified[key] = true
		body := CancellationMessage(s.salon, s.salonPhone, orderID, job.RecipientName, job.AppointmentTime)
		if _, err := s.notifier.Send(ctx, job.Recipient, body); err != nil {
			s.logger.Warn("cancellation sms failed", "order_id", orderID, "job_id", job.ID, "error", err)
			continue
		}
		result.Notified++
	}

	s.logger.Info("booking cancelled", "order_id", orderID, "notified", result.Notified)
	return result, nil
}

func clientKey(phone, serviceLabel string) string {
	return messaging.NormalizeE164(phone, "") + "|" + strings.ToLower(strings.TrimSpace(serviceLabel))
}
