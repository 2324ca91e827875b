package bookings

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stylebook/salon-reminders/internal/events"
	"github.com/stylebook/salon-reminders/internal/reminders"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

const (
	defaultWorkerCount  = 2
	defaultWaitSeconds  = 20
	defaultBatchSize    = 5
	maxWaitSeconds      = 20
	maxReceiveBatchSize = 10

	dedupeSource = "booking-events"
)

// Worker consumes booking events from a Queue and drives the Service.
type Worker struct {
	service *Service
	queue   Queue
	logger  *logging.Logger
	cfg     workerConfig
	wg      sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	processed        events.Deduplicator
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets how many goroutines poll the queue.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets the maximum messages per receive call.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithDeduplicator replaces the default in-memory dedupe store.
func WithDeduplicator(d events.Deduplicator) WorkerOption {
	return func(cfg *workerConfig) {
		if d != nil {
			cfg.processed = d
		}
	}
}

func NewWorker(service *Service, queue Queue, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if service == nil {
		panic("bookings: service required")
	}
	if queue == nil {
		panic("bookings: queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.processed == nil {
		cfg.processed = events.NewMemoryProcessedStore()
	}
	return &Worker{service: service, queue: queue, logger: logger, cfg: cfg}
}

// Start launches the polling goroutines; they exit when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("booking worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("booking worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive booking events", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg QueueMessage) {
	env, evt, err := events.DecodeEnvelope([]byte(msg.Body))
	if err != nil {
		w.logger.Error("dropping undecodable booking event", "error", err, "msg_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}
	eventID := env.EventID.String()

	fresh, err := w.cfg.processed.MarkProcessed(ctx, dedupeSource, eventID)
	if err != nil {
		// Leave the message for redelivery.
		w.logger.Error("booking event dedupe check failed", "error", err, "event_id", eventID)
		return
	}
	if !fresh {
		w.logger.Info("skipping duplicate booking event", "event_id", eventID, "event_type", env.EventType)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	w.logger.Info("worker processing booking event", "event_id", eventID, "event_type", env.EventType, "msg_id", msg.ID)

	switch payload := evt.(type) {
	case events.BookingConfirmedV1:
		_, err = w.service.Confirm(ctx, confirmationFromEvent(payload))
	case events.BookingCancelledV1:
		_, err = w.service.Cancel(ctx, payload.OrderID)
	}

	if err != nil {
		if isPermanent(err) {
			w.logger.Error("dropping invalid booking event", "error", err, "event_id", eventID)
			w.deleteMessage(msg.ReceiptHandle)
			return
		}
		w.logger.Error("booking event failed; will retry", "error", err, "event_id", eventID)
		if relErr := w.cfg.processed.Release(context.WithoutCancel(ctx), dedupeSource, eventID); relErr != nil {
			w.logger.Error("failed to release booking event", "error", relErr, "event_id", eventID)
		}
		return
	}
	w.deleteMessage(msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete booking event", "error", err)
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrInvalidBooking) || errors.Is(err, reminders.ErrInvalidRequest)
}

func confirmationFromEvent(evt events.BookingConfirmedV1) Confirmation {
	clients := make([]Client, 0, len(evt.Clients))
	for _, c := range evt.Clients {
		clients = append(clients, Client{Name: c.Name, Phone: c.Phone, ServiceLabel: c.ServiceLabel})
	}
	return Confirmation{
		OrderID:         evt.OrderID,
		AppointmentTime: evt.AppointmentTime,
		Clients:         clients,
		Lead:            time.Duration(evt.LeadSeconds) * time.Second,
		TotalCents:      evt.TotalCents,
	}
}
