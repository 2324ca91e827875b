package reminders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteJobColumns = `id, order_id, recipient, recipient_name, service_label, appointment_time, fire_time,
	status, attempts, next_attempt_at, provider_message_id, last_error, created_at, updated_at`

// SQLiteStore is the embedded durable store. Times are unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file in WAL mode and makes sure
// the schema exists.
func OpenSQLite(ctx context.Context, file string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteConnectionString(file))
	if err != nil {
		return nil, fmt.Errorf("reminders: open sqlite: %w", err)
	}
	store := NewSQLiteStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func sqliteConnectionString(file string) string {
	busyTimeoutMs := 2000
	qs := url.Values{
		"_txlock": []string{"immediate"},
		"_pragma": []string{
			"journal_mode(WAL)",
			fmt.Sprintf("busy_timeout(%d)", busyTimeoutMs),
		},
	}
	return "file:" + file + "?" + qs.Encode()
}

// NewSQLiteStore wraps an already opened database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reminder_jobs (
			id TEXT NOT NULL PRIMARY KEY,
			order_id TEXT NOT NULL,
			recipient TEXT NOT NULL,
			recipient_name TEXT NOT NULL DEFAULT '',
			service_label TEXT NOT NULL DEFAULT '',
			appointment_time INTEGER NOT NULL,
			fire_time INTEGER NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			next_attempt_at INTEGER NOT NULL DEFAULT 0,
			provider_message_id TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		) WITHOUT ROWID;

		CREATE INDEX IF NOT EXISTS reminder_jobs_status_idx ON reminder_jobs (status, fire_time ASC);
		CREATE INDEX IF NOT EXISTS reminder_jobs_order_idx ON reminder_jobs (order_id);
	`)
	if err != nil {
		return fmt.Errorf("reminders: ensure sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, job *Job) error {
	if job == nil {
		return invalid("nil job")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminder_jobs (`+sqliteJobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			next_attempt_at = excluded.next_attempt_at,
			provider_message_id = excluded.provider_message_id,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		job.ID.String(), job.OrderID, job.Recipient, job.RecipientName, job.ServiceLabel,
		toUnixNano(job.AppointmentTime), toUnixNano(job.FireTime), string(job.Status), job.Attempts,
		toUnixNano(job.NextAttemptAt), job.ProviderMessageID, job.LastError,
		toUnixNano(job.CreatedAt), toUnixNano(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("reminders: put job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteJobColumns+` FROM reminder_jobs WHERE id = ?`, id.String())
	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reminders: get job: %w", err)
	}
	return &job, nil
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status Status) ([]Job, error) {
	return s.query(ctx, "list by status",
		`SELECT `+sqliteJobColumns+` FROM reminder_jobs WHERE status = ? ORDER BY fire_time ASC, id ASC`, string(status))
}

func (s *SQLiteStore) ListByOrder(ctx context.Context, orderID string) ([]Job, error) {
	return s.query(ctx, "list by order",
		`SELECT `+sqliteJobColumns+` FROM reminder_jobs WHERE order_id = ? ORDER BY fire_time ASC, id ASC`, orderID)
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]Job, error) {
	return s.query(ctx, "list all",
		`SELECT `+sqliteJobColumns+` FROM reminder_jobs ORDER BY fire_time ASC, id ASC`)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id uuid.UUID, from Status, update StatusUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminder_jobs
		SET status = ?, attempts = ?, next_attempt_at = ?, provider_message_id = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(update.Status), update.Attempts, toUnixNano(update.NextAttemptAt),
		update.ProviderMessageID, update.LastError, toUnixNano(update.UpdatedAt),
		id.String(), string(from),
	)
	if err != nil {
		return fmt.Errorf("reminders: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reminders: update status: %w", err)
	}
	if n > 0 {
		return nil
	}
	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM reminder_jobs WHERE id = ?`, id.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("reminders: update status: %w", err)
	}
	return ErrStatusConflict
}

func (s *SQLiteStore) query(ctx context.Context, op, query string, args ...any) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reminders: %s: %w", op, err)
	}
	defer rows.Close()

	var result []Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, fmt.Errorf("reminders: %s: %w", op, err)
		}
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminders: %s: %w", op, err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row rowScanner) (Job, error) {
	var j Job
	var id, status string
	var appointment, fire, next, created, updated int64
	err := row.Scan(
		&id, &j.OrderID, &j.Recipient, &j.RecipientName, &j.ServiceLabel,
		&appointment, &fire, &status, &j.Attempts, &next,
		&j.ProviderMessageID, &j.LastError, &created, &updated,
	)
	if err != nil {
		return Job{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Job{}, fmt.Errorf("parse job id %q: %w", id, err)
	}
	j.ID = parsed
	j.Status = Status(status)
	j.AppointmentTime = fromUnixNano(appointment)
	j.FireTime = fromUnixNano(fire)
	j.NextAttemptAt = fromUnixNano(next)
	j.CreatedAt = fromUnixNano(created)
	j.UpdatedAt = fromUnixNano(updated)
	return j, nil
}

// Times are stored as unix nanoseconds so a recovered job never fires before
// its FireTime.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
