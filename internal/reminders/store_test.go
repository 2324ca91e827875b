package reminders

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleJob(orderID string, fire time.Time) Job {
	return Job{
		ID:              uuid.New(),
		OrderID:         orderID,
		Recipient:       "0821234567",
		RecipientName:   "Jane",
		ServiceLabel:    "Fade Cut",
		AppointmentTime: fire.Add(5 * time.Minute),
		FireTime:        fire,
		Status:          StatusScheduled,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
}

func assertSameJob(t *testing.T, want, got Job) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.OrderID, got.OrderID)
	assert.Equal(t, want.Recipient, got.Recipient)
	assert.Equal(t, want.RecipientName, got.RecipientName)
	assert.Equal(t, want.ServiceLabel, got.ServiceLabel)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Attempts, got.Attempts)
	assert.Equal(t, want.ProviderMessageID, got.ProviderMessageID)
	assert.Equal(t, want.LastError, got.LastError)
	assert.True(t, want.AppointmentTime.Equal(got.AppointmentTime), "appointment time %s != %s", want.AppointmentTime, got.AppointmentTime)
	assert.True(t, want.FireTime.Equal(got.FireTime), "fire time %s != %s", want.FireTime, got.FireTime)
	assert.True(t, want.NextAttemptAt.Equal(got.NextAttemptAt), "next attempt %s != %s", want.NextAttemptAt, got.NextAttemptAt)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
}

func jobIDs(jobs []Job) []uuid.UUID {
	ids := make([]uuid.UUID, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}

func storeBackends() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "reminders.db"))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisStore(client, "test")
		},
		"dynamodb": func(t *testing.T) Store {
			return NewDynamoStore(newFakeDynamo(), "reminder_jobs")
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, newStore := range storeBackends() {
		newStore := newStore
		t.Run(name, func(t *testing.T) {
			t.Run("put and get", func(t *testing.T) {
				store := newStore(t)
				ctx := context.Background()
				job := sampleJob("SB-1", testNow.Add(5*time.Minute))
				job.NextAttemptAt = testNow.Add(7 * time.Minute)
				job.Attempts = 1
				job.LastError = "timeout"

				require.NoError(t, store.Put(ctx, &job))
				got, err := store.Get(ctx, job.ID)
				require.NoError(t, err)
				assertSameJob(t, job, *got)
			})

			t.Run("get missing", func(t *testing.T) {
				store := newStore(t)
				_, err := store.Get(context.Background(), uuid.New())
				require.ErrorIs(t, err, ErrJobNotFound)
			})

			t.Run("listings are filtered and ordered by fire time", func(t *testing.T) {
				store := newStore(t)
				ctx := context.Background()
				late := sampleJob("SB-1", testNow.Add(30*time.Minute))
				early := sampleJob("SB-1", testNow.Add(10*time.Minute))
				other := sampleJob("SB-2", testNow.Add(20*time.Minute))
				done := sampleJob("SB-3", testNow.Add(time.Minute))
				done.Status = StatusSent
				for _, j := range []Job{late, early, other, done} {
					j := j
					require.NoError(t, store.Put(ctx, &j))
				}

				scheduled, err := store.ListByStatus(ctx, StatusScheduled)
				require.NoError(t, err)
				assert.Equal(t, []uuid.UUID{early.ID, other.ID, late.ID}, jobIDs(scheduled))

				sent, err := store.ListByStatus(ctx, StatusSent)
				require.NoError(t, err)
				assert.Equal(t, []uuid.UUID{done.ID}, jobIDs(sent))

				byOrder, err := store.ListByOrder(ctx, "SB-1")
				require.NoError(t, err)
				assert.Equal(t, []uuid.UUID{early.ID, late.ID}, jobIDs(byOrder))

				none, err := store.ListByOrder(ctx, "SB-404")
				require.NoError(t, err)
				assert.Empty(t, none)

				all, err := store.ListAll(ctx)
				require.NoError(t, err)
				assert.Equal(t, []uuid.UUID{done.ID, early.ID, other.ID, late.ID}, jobIDs(all))
			})

			t.Run("update status is compare and set", func(t *testing.T) {
				store := newStore(t)
				ctx := context.Background()
				job := sampleJob("SB-1", testNow.Add(5*time.Minute))
				require.NoError(t, store.Put(ctx, &job))

				retry := StatusUpdate{
					Status:        StatusScheduled,
					Attempts:      1,
					NextAttemptAt: testNow.Add(6 * time.Minute),
					LastError:     "provider unavailable",
					UpdatedAt:     testNow.Add(5 * time.Minute),
				}
				require.NoError(t, store.UpdateStatus(ctx, job.ID, StatusScheduled, retry))
				got, err := store.Get(ctx, job.ID)
				require.NoError(t, err)
				assert.Equal(t, 1, got.Attempts)
				assert.True(t, got.NextAttemptAt.Equal(retry.NextAttemptAt))

				sent := StatusUpdate{
					Status:            StatusSent,
					Attempts:          2,
					ProviderMessageID: "SM123",
					UpdatedAt:         testNow.Add(6 * time.Minute),
				}
				require.NoError(t, store.UpdateStatus(ctx, job.ID, StatusScheduled, sent))

				err = store.UpdateStatus(ctx, job.ID, StatusScheduled, StatusUpdate{Status: StatusCancelled, UpdatedAt: testNow})
				require.ErrorIs(t, err, ErrStatusConflict)

				err = store.UpdateStatus(ctx, uuid.New(), StatusScheduled, sent)
				require.ErrorIs(t, err, ErrJobNotFound)

				got, err = store.Get(ctx, job.ID)
				require.NoError(t, err)
				assert.Equal(t, StatusSent, got.Status)
				assert.Equal(t, 2, got.Attempts)
				assert.Equal(t, "SM123", got.ProviderMessageID)
				assert.True(t, got.NextAttemptAt.IsZero())
				assert.Empty(t, got.LastError)

				scheduled, err := store.ListByStatus(ctx, StatusScheduled)
				require.NoError(t, err)
				assert.Empty(t, scheduled)
				sentJobs, err := store.ListByStatus(ctx, StatusSent)
				require.NoError(t, err)
				assert.Equal(t, []uuid.UUID{job.ID}, jobIDs(sentJobs))
			})

			t.Run("put overwrites and keeps indexes consistent", func(t *testing.T) {
				store := newStore(t)
				ctx := context.Background()
				job := sampleJob("SB-1", testNow.Add(5*time.Minute))
				require.NoError(t, store.Put(ctx, &job))

				job.Status = StatusCancelled
				job.UpdatedAt = testNow.Add(time.Minute)
				require.NoError(t, store.Put(ctx, &job))

				scheduled, err := store.ListByStatus(ctx, StatusScheduled)
				require.NoError(t, err)
				assert.Empty(t, scheduled)
				byOrder, err := store.ListByOrder(ctx, "SB-1")
				require.NoError(t, err)
				require.Len(t, byOrder, 1)
				assert.Equal(t, StatusCancelled, byOrder[0].Status)
			})
		})
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reminders.db")

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	job := sampleJob("SB-1", testNow.Add(5*time.Minute))
	require.NoError(t, first.Put(ctx, &job))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer second.Close()
	scheduled, err := second.ListByStatus(ctx, StatusScheduled)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assertSameJob(t, job, scheduled[0])
}

func TestSQLiteKeepsSubMillisecondFireTime(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "reminders.db"))
	require.NoError(t, err)
	defer store.Close()

	fire := testNow.Add(5*time.Minute + 999*time.Microsecond + 1)
	job := sampleJob("SB-2", fire)
	require.NoError(t, store.Put(ctx, &job))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.FireTime.Equal(fire), "got %s want %s", got.FireTime, fire)
	assert.False(t, got.DueAt().Before(fire))
}

func TestRedisStorePrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "")
	job := sampleJob("SB-1", testNow.Add(5*time.Minute))
	require.NoError(t, store.Put(context.Background(), &job))

	assert.True(t, mr.Exists("reminders:job:"+job.ID.String()))
	members, err := mr.SMembers("reminders:order:SB-1")
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID.String()}, members)
}
