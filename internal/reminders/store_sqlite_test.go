package reminders

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteConnectionString(t *testing.T) {
	dsn := sqliteConnectionString("/var/lib/stylebook/reminders.db")
	assert.Contains(t, dsn, "file:/var/lib/stylebook/reminders.db?")
	assert.Contains(t, dsn, "journal_mode%28WAL%29")
	assert.Contains(t, dsn, "busy_timeout%282000%29")
	assert.Contains(t, dsn, "_txlock=immediate")
}

func TestSQLiteStorePutError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteStore(db)
	job := sampleJob("SB-1", testNow.Add(5*time.Minute))
	mock.ExpectExec("INSERT INTO reminder_jobs").WillReturnError(errors.New("database is locked"))

	err = store.Put(context.Background(), &job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStoreUpdateStatusMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteStore(db)
	id := uuid.New()
	mock.ExpectExec("UPDATE reminder_jobs").
		WithArgs("sent", 1, int64(0), "SM1", "", testNow.UnixNano(), id.String(), "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM reminder_jobs").
		WithArgs(id.String()).
		WillReturnError(sql.ErrNoRows)

	err = store.UpdateStatus(context.Background(), id, StatusScheduled, StatusUpdate{
		Status:            StatusSent,
		Attempts:          1,
		ProviderMessageID: "SM1",
		UpdatedAt:         testNow,
	})
	require.ErrorIs(t, err, ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStoreListError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteStore(db)
	mock.ExpectQuery("SELECT .* FROM reminder_jobs WHERE order_id").
		WithArgs("SB-1").
		WillReturnError(errors.New("disk I/O error"))

	_, err = store.ListByOrder(context.Background(), "SB-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reminders: list by order")
}

func TestSQLiteStoreRejectsCorruptID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteStore(db)
	rows := sqlmock.NewRows([]string{
		"id", "order_id", "recipient", "recipient_name", "service_label", "appointment_time", "fire_time",
		"status", "attempts", "next_attempt_at", "provider_message_id", "last_error", "created_at", "updated_at",
	}).AddRow("not-a-uuid", "SB-1", "082", "", "", int64(1), int64(1), "scheduled", 0, int64(0), "", "", int64(1), int64(1))
	mock.ExpectQuery("SELECT .* FROM reminder_jobs").WillReturnRows(rows)

	_, err = store.ListAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse job id")
}

func TestUnixNanoRoundTrip(t *testing.T) {
	assert.Equal(t, int64(0), toUnixNano(time.Time{}))
	assert.True(t, fromUnixNano(0).IsZero())
	assert.True(t, fromUnixNano(toUnixNano(testNow)).Equal(testNow))

	precise := testNow.Add(1500 * time.Microsecond).Add(7)
	assert.True(t, fromUnixNano(toUnixNano(precise)).Equal(precise))
}
