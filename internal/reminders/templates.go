package reminders

import (
	"fmt"
	"strings"
	"time"
)

// Formatter renders the message body for a job.
type Formatter func(job Job) string

// Salon carries the salon details shown in reminder messages.
type Salon struct {
	Name     string
	Location *time.Location
}

// LoadSalon resolves the timezone name, falling back to UTC when unknown.
func LoadSalon(name, timezone string) (Salon, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(timezone))
	if err != nil {
		return Salon{Name: name, Location: time.UTC}, fmt.Errorf("reminders: load timezone %q: %w", timezone, err)
	}
	return Salon{Name: name, Location: loc}, nil
}

// DefaultTimezone is the salon timezone used when none is configured.
const DefaultTimezone = "Africa/Johannesburg"

// DefaultSalon is StyleBook in Johannesburg. South Africa has no DST, so a
// fixed +02:00 zone stands in when the tz database is unavailable.
func DefaultSalon() Salon {
	salon, err := LoadSalon("StyleBook", DefaultTimezone)
	if err != nil {
		salon.Location = time.FixedZone("SAST", 2*60*60)
	}
	return salon
}

// TemplateFormatter returns a Formatter bound to the salon.
func TemplateFormatter(salon Salon) Formatter {
	return func(job Job) string {
		return MessageTemplate(job, salon)
	}
}

// MessageTemplate builds the appointment reminder SMS.
func MessageTemplate(job Job, salon Salon) string {
	name := strings.TrimSpace(job.RecipientName)
	if name == "" {
		name = "there"
	}
	service := strings.TrimSpace(job.ServiceLabel)
	if service == "" {
		service = "salon"
	}
	salonName := strings.TrimSpace(salon.Name)
	if salonName == "" {
		salonName = "StyleBook"
	}
	loc := salon.Location
	if loc == nil {
		loc = time.UTC
	}

	return fmt.Sprintf(
		"Hi %s! Your %s appointment starts in %s at %s.\n\nOrder #: %s\n\nPlease arrive on time. Looking forward to seeing you! ✂️\n\n%s Salon",
		name,
		service,
		humanLead(job.AppointmentTime.Sub(job.FireTime)),
		job.AppointmentTime.In(loc).Format("15:04"),
		job.OrderID,
		salonName,
	)
}

func humanLead(d time.Duration) string {
	if d <= 0 {
		return "a few minutes"
	}
	if d >= time.Hour && d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
