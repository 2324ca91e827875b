package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/stylebook/salon-reminders/internal/observability/metrics"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

var schedulerTracer = otel.Tracer("stylebook.internal.reminders.scheduler")

// Notifier delivers a rendered reminder to a recipient address.
type Notifier interface {
	Send(ctx context.Context, to, body string) (providerMessageID string, err error)
}

// FailureHook is called after a job ends in StatusFailed.
type FailureHook func(ctx context.Context, job Job)

// ScheduleRequest describes one reminder for one recipient of an appointment.
type ScheduleRequest struct {
	OrderID         string
	Recipient       string
	RecipientName   string
	ServiceLabel    string
	AppointmentTime time.Time
	// LeadDuration is how long before the appointment the reminder fires.
	// Zero uses the scheduler default.
	LeadDuration time.Duration
}

// Option customizes scheduler behavior.
type Option func(*schedulerConfig)

type schedulerConfig struct {
	clock       clock.Clock
	lead        time.Duration
	retry       RetryPolicy
	sendTimeout time.Duration
	concurrency int
	metrics     *metrics.ReminderMetrics
	formatter   Formatter
	onFailure   FailureHook
}

func defaultSchedulerConfig() schedulerConfig {
	return schedulerConfig{
		clock:       clock.New(),
		lead:        5 * time.Minute,
		retry:       DefaultRetryPolicy(),
		sendTimeout: 10 * time.Second,
		concurrency: 8,
	}
}

// WithClock overrides the wall clock (tests use clock.NewMock()).
func WithClock(c clock.Clock) Option {
	return func(cfg *schedulerConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// WithLeadDuration sets the default lead used when a request carries none.
func WithLeadDuration(d time.Duration) Option {
	return func(cfg *schedulerConfig) {
		if d > 0 {
			cfg.lead = d
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(cfg *schedulerConfig) {
		cfg.retry = p.normalized()
	}
}

// WithSendTimeout bounds each notifier call.
func WithSendTimeout(d time.Duration) Option {
	return func(cfg *schedulerConfig) {
		if d > 0 {
			cfg.sendTimeout = d
		}
	}
}

// WithConcurrency caps deliveries running at the same time.
func WithConcurrency(n int) Option {
	return func(cfg *schedulerConfig) {
		if n > 0 {
			cfg.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.ReminderMetrics) Option {
	return func(cfg *schedulerConfig) {
		cfg.metrics = m
	}
}

func WithFormatter(f Formatter) Option {
	return func(cfg *schedulerConfig) {
		if f != nil {
			cfg.formatter = f
		}
	}
}

func WithFailureHook(h FailureHook) Option {
	return func(cfg *schedulerConfig) {
		cfg.onFailure = h
	}
}

type armedTimer struct {
	timer *clock.Timer
	gen   uint64
}

// Scheduler owns the status of reminder jobs. The Store is authoritative;
// the timer table is a per-process cache rebuilt by Start.
type Scheduler struct {
	store    Store
	notifier Notifier
	logger   *logging.Logger
	cfg      schedulerConfig

	locks *jobLocks
	sem   *semaphore.Weighted

	mu     sync.Mutex
	timers map[uuid.UUID]armedTimer
	gen    uint64
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler wires a scheduler. Call Start to recover persisted jobs.
func NewScheduler(store Store, notifier Notifier, logger *logging.Logger, opts ...Option) *Scheduler {
	if store == nil {
		panic("reminders: store is required")
	}
	if notifier == nil {
		panic("reminders: notifier is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := defaultSchedulerConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.formatter == nil {
		cfg.formatter = TemplateFormatter(DefaultSalon())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:    store,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		locks:    newJobLocks(),
		sem:      semaphore.NewWeighted(int64(cfg.concurrency)),
		timers:   make(map[uuid.UUID]armedTimer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Schedule persists a new job and arms its timer. It returns ErrTooLate when
// the reminder would fire at or before now; no job is created in that case.
func (s *Scheduler) Schedule(ctx context.Context, req ScheduleRequest) (uuid.UUID, error) {
	if s.isClosed() {
		return uuid.Nil, ErrClosed
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Recipient = strings.TrimSpace(req.Recipient)
	switch {
	case req.OrderID == "":
		return uuid.Nil, invalid("order id is required")
	case req.Recipient == "":
		return uuid.Nil, invalid("recipient is required")
	case req.AppointmentTime.IsZero():
		return uuid.Nil, invalid("appointment time is required")
	case req.LeadDuration < 0:
		return uuid.Nil, invalid("lead duration must be positive, got %s", req.LeadDuration)
	}
	lead := req.LeadDuration
	if lead == 0 {
		lead = s.cfg.lead
	}

	now := s.cfg.clock.Now()
	fireTime := req.AppointmentTime.Add(-lead)
	if !fireTime.After(now) {
		s.cfg.metrics.ObserveSchedule("too_late")
		s.logger.Info("reminder not scheduled, fire time already passed",
			"order_id", req.OrderID,
			"appointment_time", req.AppointmentTime,
			"fire_time", fireTime,
		)
		return uuid.Nil, ErrTooLate
	}

	job := &Job{
		ID:              uuid.New(),
		OrderID:         req.OrderID,
		Recipient:       req.Recipient,
		RecipientName:   strings.TrimSpace(req.RecipientName),
		ServiceLabel:    strings.TrimSpace(req.ServiceLabel),
		AppointmentTime: req.AppointmentTime,
		FireTime:        fireTime,
		Status:          StatusScheduled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Put(ctx, job); err != nil {
		s.cfg.metrics.ObserveSchedule("store_error")
		return uuid.Nil, &PersistenceError{Op: "schedule", Err: err}
	}
	s.arm(job.ID, fireTime.Sub(now))
	s.cfg.metrics.ObserveSchedule("scheduled")
	s.logger.Info("reminder scheduled",
		"job_id", job.ID,
		"order_id", job.OrderID,
		"fire_time", job.FireTime,
	)
	return job.ID, nil
}

// Cancel moves every scheduled job of the order to cancelled. It reports
// whether at least one job changed. A send already in flight is not
// interrupted: Cancel waits for it, and a job that was sent stays sent.
func (s *Scheduler) Cancel(ctx context.Context, orderID string) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, invalid("order id is required")
	}
	jobs, err := s.store.ListByOrder(ctx, orderID)
	if err != nil {
		return false, &PersistenceError{Op: "cancel", Err: err}
	}

	cancelled := 0
	for _, job := range jobs {
		if job.Status != StatusScheduled {
			continue
		}
		ok, err := s.cancelJob(ctx, job.ID)
		if err != nil {
			s.cfg.metrics.ObserveCancelled(cancelled)
			return cancelled > 0, &PersistenceError{Op: "cancel", Err: err}
		}
		if ok {
			cancelled++
		}
	}
	s.cfg.metrics.ObserveCancelled(cancelled)
	if cancelled > 0 {
		s.logger.Info("reminders cancelled", "order_id", orderID, "count", cancelled)
	}
	return cancelled > 0, nil
}

func (s *Scheduler) cancelJob(ctx context.Context, id uuid.UUID) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	job, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}
	if job.Status != StatusScheduled {
		return false, nil
	}
	err = s.store.UpdateStatus(ctx, id, StatusScheduled, StatusUpdate{
		Status:        StatusCancelled,
		Attempts:      job.Attempts,
		NextAttemptAt: job.NextAttemptAt,
		LastError:     job.LastError,
		UpdatedAt:     s.cfg.clock.Now(),
	})
	if errors.Is(err, ErrStatusConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.disarm(id)
	return true, nil
}

// ListScheduled returns a snapshot of jobs still waiting to be delivered.
func (s *Scheduler) ListScheduled(ctx context.Context) ([]Job, error) {
	jobs, err := s.store.ListByStatus(ctx, StatusScheduled)
	if err != nil {
		return nil, &PersistenceError{Op: "list scheduled", Err: err}
	}
	return jobs, nil
}

// ListAll returns a snapshot of every job, including terminal ones.
func (s *Scheduler) ListAll(ctx context.Context) ([]Job, error) {
	jobs, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return jobs, nil
}

func (s *Scheduler) ListByOrder(ctx context.Context, orderID string) ([]Job, error) {
	jobs, err := s.store.ListByOrder(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return nil, &PersistenceError{Op: "list by order", Err: err}
	}
	return jobs, nil
}

// Stats counts jobs per status.
func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	jobs, err := s.ListAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	for _, job := range jobs {
		stats.add(job.Status)
	}
	return stats, nil
}

// Start runs the recovery sweep: every scheduled job in the Store is armed
// for its remaining delay, and jobs whose due time already passed are
// dispatched immediately. It returns the number of recovered jobs.
func (s *Scheduler) Start(ctx context.Context) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	jobs, err := s.store.ListByStatus(ctx, StatusScheduled)
	if err != nil {
		return 0, &PersistenceError{Op: "recover", Err: err}
	}
	now := s.cfg.clock.Now()
	overdue := 0
	for _, job := range jobs {
		delay := job.DueAt().Sub(now)
		if delay <= 0 {
			overdue++
			s.cfg.metrics.ObserveRecovered("immediate")
		} else {
			s.cfg.metrics.ObserveRecovered("armed")
		}
		s.arm(job.ID, delay)
	}
	s.logger.Info("reminder recovery complete", "recovered", len(jobs), "overdue", overdue)
	return len(jobs), nil
}

// Close stops all timers and waits for in-flight deliveries. Pending jobs
// stay scheduled in the Store for the next Start.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, armed := range s.timers {
		armed.timer.Stop()
		delete(s.timers, id)
	}
	s.cfg.metrics.SetArmedTimers(0)
	s.mu.Unlock()

	// Only deliveries still waiting for a worker slot are abandoned here.
	s.cancel()
	s.wg.Wait()
}

// Now reads the scheduler's clock.
func (s *Scheduler) Now() time.Time { return s.cfg.clock.Now() }

// DefaultLead is the lead used for requests that carry none.
func (s *Scheduler) DefaultLead() time.Duration { return s.cfg.lead }

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scheduler) armedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// arm replaces any timer for id. A non-positive delay dispatches right away.
func (s *Scheduler) arm(id uuid.UUID, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if prev, ok := s.timers[id]; ok {
		prev.timer.Stop()
		delete(s.timers, id)
	}
	s.gen++
	if delay <= 0 {
		s.dispatchLocked(id)
	} else {
		gen := s.gen
		t := s.cfg.clock.AfterFunc(delay, func() { s.expire(id, gen) })
		s.timers[id] = armedTimer{timer: t, gen: gen}
	}
	s.cfg.metrics.SetArmedTimers(len(s.timers))
}

func (s *Scheduler) disarm(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if armed, ok := s.timers[id]; ok {
		armed.timer.Stop()
		delete(s.timers, id)
		s.cfg.metrics.SetArmedTimers(len(s.timers))
	}
}

// expire runs on the clock's goroutine; a stale generation means the timer
// was replaced or disarmed after it matured.
func (s *Scheduler) expire(id uuid.UUID, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	armed, ok := s.timers[id]
	if !ok || armed.gen != gen || s.closed {
		return
	}
	delete(s.timers, id)
	s.cfg.metrics.SetArmedTimers(len(s.timers))
	s.dispatchLocked(id)
}

// dispatchLocked must be called with s.mu held.
func (s *Scheduler) dispatchLocked(id uuid.UUID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)
		s.fire(id)
	}()
}

// fire runs one delivery attempt. Per-job locking keeps it exclusive with
// Cancel and with other attempts for the same job.
func (s *Scheduler) fire(id uuid.UUID) {
	unlock := s.locks.Lock(id)
	defer unlock()

	ctx, span := schedulerTracer.Start(context.Background(), "reminders.fire")
	defer span.End()
	span.SetAttributes(attribute.String("reminder.job_id", id.String()))

	job, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			s.logger.Warn("reminder job vanished before firing", "job_id", id)
			return
		}
		s.logger.Error("failed to load reminder job, will retry", "job_id", id, "error", err)
		span.RecordError(err)
		s.arm(id, s.cfg.retry.BaseDelay)
		return
	}
	if job.Status != StatusScheduled {
		s.cfg.metrics.ObserveSkipped()
		s.logger.Debug("reminder no longer scheduled, skipping", "job_id", id, "status", job.Status)
		return
	}
	now := s.cfg.clock.Now()
	if due := job.DueAt(); due.After(now) {
		s.arm(id, due.Sub(now))
		return
	}

	attempt := job.Attempts + 1
	span.SetAttributes(
		attribute.String("reminder.order_id", job.OrderID),
		attribute.Int("reminder.attempt", attempt),
	)

	start := s.cfg.clock.Now()
	providerID, sendErr := s.send(ctx, job.Recipient, s.cfg.formatter(*job))
	latency := s.cfg.clock.Since(start).Seconds()
	now = s.cfg.clock.Now()

	if sendErr == nil {
		err := s.store.UpdateStatus(ctx, id, StatusScheduled, StatusUpdate{
			Status:            StatusSent,
			Attempts:          attempt,
			ProviderMessageID: providerID,
			UpdatedAt:         now,
		})
		s.cfg.metrics.ObserveDelivery("sent", latency)
		if err != nil {
			// Not re-armed: a second send would duplicate the reminder.
			s.logger.Error("reminder sent but status update failed",
				"job_id", id, "provider_message_id", providerID, "error", err)
			span.RecordError(err)
			return
		}
		s.logger.Info("reminder sent",
			"job_id", id,
			"order_id", job.OrderID,
			"attempt", attempt,
			"provider_message_id", providerID,
		)
		return
	}

	derr := &DeliveryError{JobID: id, Attempt: attempt, Err: sendErr}
	span.RecordError(derr)

	if s.cfg.retry.Exhausted(attempt) {
		err := s.store.UpdateStatus(ctx, id, StatusScheduled, StatusUpdate{
			Status:    StatusFailed,
			Attempts:  attempt,
			LastError: sendErr.Error(),
			UpdatedAt: now,
		})
		s.cfg.metrics.ObserveDelivery("failed", latency)
		span.SetStatus(codes.Error, "reminder delivery failed")
		if err != nil {
			s.logger.Error("failed to persist failed reminder", "job_id", id, "error", err)
			return
		}
		s.logger.Error("reminder delivery failed permanently",
			"job_id", id, "order_id", job.OrderID, "attempts", attempt, "error", derr)

		job.Status = StatusFailed
		job.Attempts = attempt
		job.LastError = sendErr.Error()
		job.UpdatedAt = now
		if s.cfg.onFailure != nil {
			s.cfg.onFailure(ctx, *job)
		}
		return
	}

	delay := s.cfg.retry.Backoff(attempt)
	err = s.store.UpdateStatus(ctx, id, StatusScheduled, StatusUpdate{
		Status:        StatusScheduled,
		Attempts:      attempt,
		NextAttemptAt: now.Add(delay),
		LastError:     sendErr.Error(),
		UpdatedAt:     now,
	})
	s.cfg.metrics.ObserveDelivery("retry", latency)
	if errors.Is(err, ErrStatusConflict) {
		s.logger.Warn("reminder changed during delivery, not retrying", "job_id", id)
		return
	}
	if err != nil {
		// Not re-armed: the attempt count is unrecorded, so another send here
		// could exceed MaxAttempts. The job stays scheduled for Start.
		s.logger.Error("failed to record reminder attempt, not retrying",
			"job_id", id, "attempt", attempt, "error", err)
		span.RecordError(err)
		return
	}
	s.logger.Warn("reminder delivery failed, retrying",
		"job_id", id, "attempt", attempt, "retry_in", delay, "error", derr)
	s.arm(id, delay)
}

// send calls the notifier bounded by the send timeout, even if the notifier
// ignores its context.
func (s *Scheduler) send(ctx context.Context, to, body string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.sendTimeout)
	defer cancel()

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := s.notifier.Send(ctx, to, body)
		done <- result{id: id, err: err}
	}()

	select {
	case res := <-done:
		return res.id, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("notifier timed out after %s: %w", s.cfg.sendTimeout, ctx.Err())
	}
}
