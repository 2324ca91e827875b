package reminders

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTemplate(t *testing.T) {
	salon, err := LoadSalon("StyleBook", "Africa/Johannesburg")
	require.NoError(t, err)

	appointment := time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC) // 14:30 SAST
	job := Job{
		OrderID:         "SB-1",
		RecipientName:   "Jane",
		ServiceLabel:    "Fade Cut",
		AppointmentTime: appointment,
		FireTime:        appointment.Add(-5 * time.Minute),
	}

	msg := MessageTemplate(job, salon)
	assert.True(t, strings.HasPrefix(msg, "Hi Jane! Your Fade Cut appointment starts in 5 minutes at 14:30."))
	assert.Contains(t, msg, "Order #: SB-1")
	assert.True(t, strings.HasSuffix(msg, "StyleBook Salon"))
}

func TestMessageTemplateFallbacks(t *testing.T) {
	appointment := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	msg := MessageTemplate(Job{
		OrderID:         "SB-2",
		AppointmentTime: appointment,
		FireTime:        appointment.Add(-time.Hour),
	}, Salon{})

	assert.Contains(t, msg, "Hi there!")
	assert.Contains(t, msg, "Your salon appointment starts in 1 hour at 09:00.")
	assert.Contains(t, msg, "StyleBook Salon")
}

func TestLoadSalonUnknownZone(t *testing.T) {
	salon, err := LoadSalon("StyleBook", "Mars/Olympus")
	require.Error(t, err)
	assert.Equal(t, time.UTC, salon.Location)
	assert.Equal(t, "StyleBook", salon.Name)
}

func TestHumanLead(t *testing.T) {
	cases := map[time.Duration]string{
		0:                 "a few minutes",
		30 * time.Second:  "1 minute",
		time.Minute:       "1 minute",
		5 * time.Minute:   "5 minutes",
		90 * time.Minute:  "90 minutes",
		time.Hour:         "1 hour",
		3 * time.Hour:     "3 hours",
		24 * time.Hour:    "24 hours",
		-10 * time.Minute: "a few minutes",
	}
	for d, want := range cases {
		assert.Equal(t, want, humanLead(d), "duration %s", d)
	}
}
