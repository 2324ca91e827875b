package reminders

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusScheduled.Terminal())
	assert.True(t, StatusSent.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusScheduled.Valid())
	assert.False(t, Status("queued").Valid())
}

func TestJobDueAt(t *testing.T) {
	job := Job{FireTime: testNow}
	assert.True(t, job.DueAt().Equal(testNow))

	job.NextAttemptAt = testNow.Add(time.Minute)
	assert.True(t, job.DueAt().Equal(testNow.Add(time.Minute)))

	job.NextAttemptAt = testNow.Add(-time.Minute)
	assert.True(t, job.DueAt().Equal(testNow))
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	perr := &PersistenceError{Op: "schedule", Err: cause}
	assert.ErrorIs(t, perr, cause)
	assert.Contains(t, perr.Error(), "schedule: store unavailable")

	derr := &DeliveryError{JobID: uuid.Nil, Attempt: 2, Err: cause}
	assert.ErrorIs(t, derr, cause)
	assert.Contains(t, derr.Error(), "delivery attempt 2")

	assert.ErrorIs(t, invalid("missing %s", "order"), ErrInvalidRequest)
}
