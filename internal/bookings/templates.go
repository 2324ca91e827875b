package bookings

import (
	"fmt"
	"strings"
	"time"

	"github.com/stylebook/salon-reminders/internal/reminders"
)

func salonName(salon reminders.Salon) string {
	if name := strings.TrimSpace(salon.Name); name != "" {
		return name
	}
	return "StyleBook"
}

func salonLocation(salon reminders.Salon) *time.Location {
	if salon.Location != nil {
		return salon.Location
	}
	return time.UTC
}

func displayName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "there"
}

// ConfirmationMessage is sent to each client once a booking is confirmed.
func ConfirmationMessage(salon reminders.Salon, orderID string, client Client, appointment time.Time, totalCents int64, lead time.Duration) string {
	local := appointment.In(salonLocation(salon))
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s! Your %s appointment is confirmed.\n\n", displayName(client.Name), salonName(salon))
	fmt.Fprintf(&b, "Order #: %s\n", orderID)
	if service := strings.TrimSpace(client.ServiceLabel); service != "" {
		fmt.Fprintf(&b, "Service: %s\n", service)
	}
	fmt.Fprintf(&b, "Date: %s\n", local.Format("Mon 2 Jan 2006"))
	fmt.Fprintf(&b, "Time: %s\n", local.Format("15:04"))
	if totalCents > 0 {
		fmt.Fprintf(&b, "Total: R%d.%02d\n", totalCents/100, totalCents%100)
	}
	fmt.Fprintf(&b, "\nWe'll send you a reminder %s before your appointment. See you soon! ✂️\n\nReply STOP to opt out.", leadPhrase(lead))
	return b.String()
}

// CancellationMessage tells a client their appointment was cancelled.
func CancellationMessage(salon reminders.Salon, salonPhone, orderID, clientName string, appointment time.Time) string {
	local := appointment.In(salonLocation(salon))
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s, your %s appointment has been cancelled.\n\n", displayName(clientName), salonName(salon))
	fmt.Fprintf(&b, "Order #: %s\n", orderID)
	fmt.Fprintf(&b, "Original time: %s at %s\n\n", local.Format("Mon 2 Jan 2006"), local.Format("15:04"))
	if phone := strings.TrimSpace(salonPhone); phone != "" {
		fmt.Fprintf(&b, "Please call us to reschedule: %s\n\n", phone)
	}
	fmt.Fprintf(&b, "We apologize for any inconvenience.\n\n%s Salon", salonName(salon))
	return b.String()
}

func leadPhrase(d time.Duration) string {
	switch {
	case d <= 0:
		return "shortly"
	case d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d < time.Minute:
		return "1 minute"
	default:
		minutes := int(d.Round(time.Minute) / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
}
