package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pgJobColumns = `id, order_id, recipient, recipient_name, service_label, appointment_time, fire_time,
		status, attempts, next_attempt_at, provider_message_id, last_error, created_at, updated_at`

// PostgresStore persists jobs in the reminder_jobs table (see migrations/).
type PostgresStore struct {
	db DB
}

// NewPostgresStore wraps a pgx pool or connection.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Put(ctx context.Context, job *Job) error {
	if job == nil {
		return invalid("nil job")
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO reminder_jobs (`+pgJobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			next_attempt_at = EXCLUDED.next_attempt_at,
			provider_message_id = EXCLUDED.provider_message_id,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		job.ID, job.OrderID, job.Recipient, job.RecipientName, job.ServiceLabel,
		job.AppointmentTime, ceilMicros(job.FireTime), string(job.Status), job.Attempts, nullableTime(ceilMicros(job.NextAttemptAt)),
		job.ProviderMessageID, job.LastError, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("reminders: put job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+pgJobColumns+` FROM reminder_jobs WHERE id = $1`, id)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reminders: get job: %w", err)
	}
	return &job, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+pgJobColumns+`
		FROM reminder_jobs
		WHERE status = $1
		ORDER BY fire_time ASC, id ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("reminders: list by status: %w", err)
	}
	defer rows.Close()
	return scanPgJobs(rows)
}

func (s *PostgresStore) ListByOrder(ctx context.Context, orderID string) ([]Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+pgJobColumns+`
		FROM reminder_jobs
		WHERE order_id = $1
		ORDER BY fire_time ASC, id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("reminders: list by order: %w", err)
	}
	defer rows.Close()
	return scanPgJobs(rows)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+pgJobColumns+`
		FROM reminder_jobs
		ORDER BY fire_time ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("reminders: list all: %w", err)
	}
	defer rows.Close()
	return scanPgJobs(rows)
}

// UpdateStatus is a single conditional UPDATE; a zero row count is resolved
// into not-found vs conflict with a follow-up lookup.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, from Status, update StatusUpdate) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = $1, attempts = $2, next_attempt_at = $3, provider_message_id = $4, last_error = $5, updated_at = $6
		WHERE id = $7 AND status = $8`,
		string(update.Status), update.Attempts, nullableTime(ceilMicros(update.NextAttemptAt)),
		update.ProviderMessageID, update.LastError, update.UpdatedAt, id, string(from),
	)
	if err != nil {
		return fmt.Errorf("reminders: update status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var current string
	err = s.db.QueryRow(ctx, `SELECT status FROM reminder_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("reminders: update status: %w", err)
	}
	return ErrStatusConflict
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanPgJob(row pgx.Row) (Job, error) {
	var j Job
	var status string
	var next *time.Time
	err := row.Scan(
		&j.ID, &j.OrderID, &j.Recipient, &j.RecipientName, &j.ServiceLabel,
		&j.AppointmentTime, &j.FireTime, &status, &j.Attempts, &next,
		&j.ProviderMessageID, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return Job{}, err
	}
	j.Status = Status(status)
	if next != nil {
		j.NextAttemptAt = *next
	}
	return j, nil
}

func scanPgJobs(rows pgx.Rows) ([]Job, error) {
	var result []Job
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, fmt.Errorf("reminders: scan job: %w", err)
		}
		result = append(result, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminders: scan jobs: %w", err)
	}
	return result, nil
}

// ceilMicros rounds up to timestamptz precision so a stored due time is never
// earlier than the requested one.
func ceilMicros(t time.Time) time.Time {
	if rem := t.Nanosecond() % int(time.Microsecond); rem != 0 {
		return t.Add(time.Microsecond - time.Duration(rem))
	}
	return t
}
