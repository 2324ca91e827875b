package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stylebook/salon-reminders/cmd/mainconfig"
	"github.com/stylebook/salon-reminders/internal/api/router"
	"github.com/stylebook/salon-reminders/internal/app/bootstrap"
	"github.com/stylebook/salon-reminders/internal/bookings"
	appconfig "github.com/stylebook/salon-reminders/internal/config"
	"github.com/stylebook/salon-reminders/internal/messaging"
	"github.com/stylebook/salon-reminders/internal/observability/metrics"
	"github.com/stylebook/salon-reminders/internal/reminders"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting salon reminder service",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.ReminderStore,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type appMetrics struct {
	handler   http.Handler
	reminders *metrics.ReminderMetrics
	notifier  *metrics.NotifierMetrics
}

func setupMetrics() appMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return appMetrics{
		handler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		reminders: metrics.NewReminderMetrics(reg),
		notifier:  metrics.NewNotifierMetrics(reg),
	}
}

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	m := setupMetrics()

	salon, err := reminders.LoadSalon(cfg.SalonName, cfg.SalonTimezone)
	if err != nil {
		logger.Warn("falling back to UTC for salon timezone", "error", err)
	}

	var awsCfg *aws.Config
	if mainconfig.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &loaded
	}

	backends, err := openBackends(ctx, cfg, awsCfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	store, err := bootstrap.BuildReminderStore(ctx, cfg, backends, logger)
	if err != nil {
		return err
	}

	notifier, provider, reason := bootstrap.BuildNotifier(cfg, m.notifier, logger)
	if notifier == nil {
		return fmt.Errorf("sms provider %q unavailable: %s", cfg.SMSProvider, reason)
	}
	if reason != "" {
		logger.Warn("sms running in demo mode; messages are logged, not sent", "reason", reason)
	}
	logger.Info("sms provider selected", "provider", provider)

	var sesClient *sesv2.Client
	if awsCfg != nil && cfg.EmailProvider == "ses" {
		sesClient = sesv2.NewFromConfig(*awsCfg)
	}
	alerter := bootstrap.BuildAlerter(cfg, sesClient, salon, logger)

	opts := []reminders.Option{
		reminders.WithLeadDuration(cfg.ReminderLead),
		reminders.WithRetryPolicy(reminders.RetryPolicy{
			MaxAttempts: cfg.ReminderMaxAttempts,
			BaseDelay:   cfg.ReminderRetryBaseDelay,
			MaxDelay:    cfg.ReminderRetryMaxDelay,
		}),
		reminders.WithSendTimeout(cfg.ReminderSendTimeout),
		reminders.WithConcurrency(cfg.ReminderConcurrency),
		reminders.WithMetrics(m.reminders),
		reminders.WithFormatter(reminders.TemplateFormatter(salon)),
	}
	if alerter != nil {
		opts = append(opts, reminders.WithFailureHook(alerter.OnFailure))
	}
	scheduler := reminders.NewScheduler(store, notifier, logger, opts...)
	defer scheduler.Close()

	recovered, err := scheduler.Start(ctx)
	if err != nil {
		return fmt.Errorf("recover reminders: %w", err)
	}
	logger.Info("scheduler started", "recovered", recovered)

	bookingService := bookings.NewService(scheduler, notifier, salon, cfg.SalonPhone, logger)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	publisher, worker := setupBookingQueue(workerCtx, cfg, awsCfg, bookingService, backends, logger)
	if worker != nil {
		defer worker.Wait()
	}

	r := router.New(&router.Config{
		Logger:           logger,
		RemindersHandler: reminders.NewHandler(scheduler, logger),
		BookingsHandler:  bookings.NewHandler(bookingService, publisher, logger),
		MessagingHandler: messaging.NewHandler(messaging.HandlerConfig{
			Notifier:        notifier,
			Provider:        provider,
			TwilioAuthToken: cfg.TwilioAuthToken,
			Salon:           salon,
			Metrics:         m.notifier,
			Logger:          logger,
		}),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     m.handler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RatePerSecond:      cfg.APIRatePerSecond,
		RateBurst:          cfg.APIRateBurst,
		HealthCheck:        bootstrap.HealthCheck(store),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// openBackends connects only what the selected store and the booking
// event deduplicator need.
func openBackends(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*bootstrap.Backends, error) {
	b := &bootstrap.Backends{}
	if cfg.ReminderStore == bootstrap.StorePostgres || cfg.DatabaseURL != "" {
		pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.Postgres = pool
	}
	if cfg.ReminderStore == bootstrap.StoreRedis {
		b.Redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	}
	if cfg.ReminderStore == bootstrap.StoreDynamoDB && awsCfg != nil {
		b.Dynamo = dynamodb.NewFromConfig(*awsCfg)
	}
	return b, nil
}

// setupBookingQueue starts the SQS booking event consumer when
// BOOKING_QUEUE_URL is set. Both results are nil otherwise.
func setupBookingQueue(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, svc *bookings.Service, backends *bootstrap.Backends, logger *logging.Logger) (*bookings.Publisher, *bookings.Worker) {
	if cfg.BookingQueueURL == "" || awsCfg == nil {
		return nil, nil
	}
	queue := bookings.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.BookingQueueURL)
	worker := bookings.NewWorker(svc, queue, logger,
		bookings.WithWorkerCount(cfg.BookingWorkers),
		bookings.WithDeduplicator(bootstrap.BuildDeduplicator(backends, logger)),
	)
	worker.Start(ctx)
	logger.Info("booking event worker started", "queue_url", cfg.BookingQueueURL, "workers", cfg.BookingWorkers)
	return bookings.NewPublisher(queue), worker
}
