package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/stylebook/salon-reminders/internal/config"
	"github.com/stylebook/salon-reminders/internal/events"
	"github.com/stylebook/salon-reminders/internal/reminders"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

// Store backend names accepted in REMINDER_STORE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
)

// Backends holds the shared connections the reminder store and the booking
// event deduplicator are built on. Nil fields are not configured.
type Backends struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	Dynamo   *dynamodb.Client

	sqlite *reminders.SQLiteStore
}

// Close releases every open connection.
func (b *Backends) Close() {
	if b == nil {
		return
	}
	if b.sqlite != nil {
		_ = b.sqlite.Close()
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
	if b.Postgres != nil {
		b.Postgres.Close()
	}
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err, "addr", cfg.RedisAddr)
		_ = client.Close()
		return nil
	}
	return client
}

// ConnectPostgres opens and pings a pgx pool. An empty URL returns nil.
func ConnectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// BuildReminderStore selects the durable job store named by REMINDER_STORE.
// The sqlite backend opens its file here and is closed with the Backends.
func BuildReminderStore(ctx context.Context, cfg *appconfig.Config, b *Backends, logger *logging.Logger) (reminders.Store, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if b == nil {
		b = &Backends{}
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.ReminderStore {
	case StoreMemory:
		logger.Warn("using in-memory reminder store; scheduled reminders are lost on restart")
		return reminders.NewMemoryStore(), nil
	case StoreSQLite, "":
		store, err := reminders.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.sqlite = store
		logger.Info("reminder store ready", "backend", StoreSQLite, "path", cfg.SQLitePath)
		return store, nil
	case StorePostgres:
		if b.Postgres == nil {
			return nil, errors.New("bootstrap: postgres reminder store requires DATABASE_URL")
		}
		logger.Info("reminder store ready", "backend", StorePostgres)
		return reminders.NewPostgresStore(b.Postgres), nil
	case StoreRedis:
		if b.Redis == nil {
			return nil, errors.New("bootstrap: redis reminder store requires a reachable REDIS_ADDR")
		}
		logger.Info("reminder store ready", "backend", StoreRedis)
		return reminders.NewRedisStore(b.Redis, "stylebook:reminders:"), nil
	case StoreDynamoDB:
		if b.Dynamo == nil {
			return nil, errors.New("bootstrap: dynamodb reminder store requires AWS configuration")
		}
		store := reminders.NewDynamoStore(b.Dynamo, cfg.DynamoDBRemindersTable)
		if err := store.EnsureTable(ctx); err != nil {
			return nil, err
		}
		logger.Info("reminder store ready", "backend", StoreDynamoDB, "table", cfg.DynamoDBRemindersTable)
		return store, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown REMINDER_STORE %q", cfg.ReminderStore)
	}
}

// BuildDeduplicator picks the processed-event store for booking events,
// preferring Postgres, then Redis, then process memory.
func BuildDeduplicator(b *Backends, logger *logging.Logger) events.Deduplicator {
	if logger == nil {
		logger = logging.Default()
	}
	switch {
	case b != nil && b.Postgres != nil:
		return events.NewProcessedStore(b.Postgres)
	case b != nil && b.Redis != nil:
		return events.NewRedisProcessedStore(b.Redis, "stylebook:processed:", 0)
	default:
		logger.Warn("booking event dedupe is in-memory; duplicates across restarts are not detected")
		return events.NewMemoryProcessedStore()
	}
}

// HealthCheck probes the reminder store with a lookup that should miss.
func HealthCheck(store reminders.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if _, err := store.Get(ctx, uuid.Nil); err != nil && !errors.Is(err, reminders.ErrJobNotFound) {
			return fmt.Errorf("reminder store: %w", err)
		}
		return nil
	}
}
