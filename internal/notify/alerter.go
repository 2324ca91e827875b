package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/stylebook/salon-reminders/internal/reminders"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

// FailureAlerter emails the salon admin when a reminder exhausts its retries.
// Its OnFailure method is registered as the scheduler's failure hook.
type FailureAlerter struct {
	sender  EmailSender
	to      string
	salon   reminders.Salon
	timeout time.Duration
	logger  *logging.Logger
}

// AlerterConfig configures a FailureAlerter.
type AlerterConfig struct {
	To      string
	Salon   reminders.Salon
	Timeout time.Duration
}

func NewFailureAlerter(sender EmailSender, cfg AlerterConfig, logger *logging.Logger) *FailureAlerter {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Salon.Location == nil {
		cfg.Salon.Location = time.UTC
	}
	return &FailureAlerter{
		sender:  sender,
		to:      strings.TrimSpace(cfg.To),
		salon:   cfg.Salon,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// OnFailure sends the alert. Errors are logged; the scheduler has already
// recorded the job as failed.
func (a *FailureAlerter) OnFailure(ctx context.Context, job reminders.Job) {
	if a == nil || a.sender == nil || a.to == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	msg := a.buildMessage(job)
	if err := a.sender.Send(ctx, msg); err != nil {
		a.logger.Error("reminder failure alert not sent", "job_id", job.ID, "order_id", job.OrderID, "error", err)
		return
	}
	a.logger.Info("reminder failure alert sent", "job_id", job.ID, "order_id", job.OrderID, "to", a.to)
}

func (a *FailureAlerter) buildMessage(job reminders.Job) EmailMessage {
	appt := job.AppointmentTime.In(a.salon.Location).Format("Mon 2 Jan 15:04")
	name := strings.TrimSpace(job.RecipientName)
	if name == "" {
		name = "Client"
	}
	subject := fmt.Sprintf("Reminder failed for order %s", job.OrderID)

	var text strings.Builder
	fmt.Fprintf(&text, "The appointment reminder for %s could not be delivered after %d attempts.\n\n", name, job.Attempts)
	fmt.Fprintf(&text, "Order: %s\n", job.OrderID)
	fmt.Fprintf(&text, "Service: %s\n", job.ServiceLabel)
	fmt.Fprintf(&text, "Appointment: %s\n", appt)
	fmt.Fprintf(&text, "Phone: %s\n", job.Recipient)
	if job.LastError != "" {
		fmt.Fprintf(&text, "Last error: %s\n", job.LastError)
	}
	text.WriteString("\nPlease contact the client directly.")

	var body strings.Builder
	fmt.Fprintf(&body, "<p>The appointment reminder for <strong>%s</strong> could not be delivered after %d attempts.</p><ul>", html.EscapeString(name), job.Attempts)
	fmt.Fprintf(&body, "<li>Order: %s</li>", html.EscapeString(job.OrderID))
	fmt.Fprintf(&body, "<li>Service: %s</li>", html.EscapeString(job.ServiceLabel))
	fmt.Fprintf(&body, "<li>Appointment: %s</li>", html.EscapeString(appt))
	fmt.Fprintf(&body, "<li>Phone: %s</li>", html.EscapeString(job.Recipient))
	if job.LastError != "" {
		fmt.Fprintf(&body, "<li>Last error: %s</li>", html.EscapeString(job.LastError))
	}
	body.WriteString("</ul><p>Please contact the client directly.</p>")

	salonName := a.salon.Name
	if salonName == "" {
		salonName = "StyleBook"
	}
	return EmailMessage{
		To:      a.to,
		ToName:  salonName + " Admin",
		Subject: subject,
		Body:    text.String(),
		HTML:    body.String(),

		Category: CategoryReminderFailure,
		Tags: map[string]string{
			"job_id":   job.ID.String(),
			"order_id": job.OrderID,
		},
	}
}
