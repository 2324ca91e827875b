package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylebook/salon-reminders/internal/reminders"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

type failingSender struct{ calls int }

func (f *failingSender) Send(ctx context.Context, msg EmailMessage) error {
	f.calls++
	return errors.New("smtp down")
}

func failedJob() reminders.Job {
	appt := time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)
	return reminders.Job{
		ID:              uuid.New(),
		OrderID:         "SB-9",
		Recipient:       "+27821234567",
		RecipientName:   "Jane <3",
		ServiceLabel:    "Fade Cut",
		AppointmentTime: appt,
		FireTime:        appt.Add(-5 * time.Minute),
		Status:          reminders.StatusFailed,
		Attempts:        3,
		LastError:       "gateway timeout",
	}
}

func TestFailureAlerterSendsEmail(t *testing.T) {
	stub := NewStubEmailSender(logging.New("error"))
	sast := time.FixedZone("SAST", 2*60*60)
	alerter := NewFailureAlerter(stub, AlerterConfig{
		To:    " owner@glow.test ",
		Salon: reminders.Salon{Name: "Glow Studio", Location: sast},
	}, logging.New("error"))

	alerter.OnFailure(context.Background(), failedJob())

	sent := stub.Sent()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "owner@glow.test", msg.To)
	assert.Equal(t, "Glow Studio Admin", msg.ToName)
	assert.Equal(t, "Reminder failed for order SB-9", msg.Subject)
	assert.Contains(t, msg.Body, "after 3 attempts")
	assert.Contains(t, msg.Body, "Sat 14 Mar 14:30")
	assert.Contains(t, msg.Body, "gateway timeout")
	assert.Contains(t, msg.HTML, "Jane &lt;3")
	assert.Equal(t, CategoryReminderFailure, msg.Category)
	assert.Equal(t, "SB-9", msg.Tags["order_id"])
	assert.NotEmpty(t, msg.Tags["job_id"])
}

func TestFailureAlerterSkipsWithoutRecipient(t *testing.T) {
	stub := NewStubEmailSender(nil)
	NewFailureAlerter(stub, AlerterConfig{}, nil).OnFailure(context.Background(), failedJob())
	assert.Empty(t, stub.Sent())

	var nilAlerter *FailureAlerter
	nilAlerter.OnFailure(context.Background(), failedJob())
}

func TestFailureAlerterSurvivesSendError(t *testing.T) {
	sender := &failingSender{}
	alerter := NewFailureAlerter(sender, AlerterConfig{To: "owner@glow.test"}, logging.New("error"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	alerter.OnFailure(ctx, failedJob())
	assert.Equal(t, 1, sender.calls)
}

func TestFailureAlerterAsSchedulerHook(t *testing.T) {
	var hook reminders.FailureHook = NewFailureAlerter(NewStubEmailSender(nil), AlerterConfig{To: "a@b.test"}, nil).OnFailure
	assert.NotNil(t, hook)
}
