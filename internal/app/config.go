package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

const envPrefix = "POS"

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers - список брокеров через запятую. Пустое значение отключает Kafka.
	KafkaBrokers  string
	KafkaClientID string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int
	OutboxMaxAge       time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	NotifierBuffer  int
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		KafkaClientID:               "pos-order-service",
		KafkaTopic:                  "pos.order.events",
		KafkaDLQTopic:               "pos.dlq",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		OutboxMaxPending:            1000,
		OutboxMaxAge:                5 * time.Minute,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		NotifierBuffer:              64,
		ShutdownTimeout:             10 * time.Second,
		LogLevel:                    "info",
		LogFormat:                   "text",
	}
}

// LoadConfig читает настройки из переменных окружения с префиксом POS_.
// Если переданы envFiles, они подгружаются раньше; отсутствующие файлы пропускаются.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", file, err)
		}
	}

	defaults := DefaultConfig()
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", defaults.HTTPAddr)
	v.SetDefault("GRPC_ADDR", defaults.GRPCAddr)
	v.SetDefault("STORAGE_DRIVER", defaults.StorageDriver)
	v.SetDefault("POSTGRES_DSN", defaults.PostgresDSN)
	v.SetDefault("POSTGRES_AUTO_MIGRATE", defaults.PostgresAutoMigrate)
	v.SetDefault("KAFKA_BROKERS", defaults.KafkaBrokers)
	v.SetDefault("KAFKA_CLIENT_ID", defaults.KafkaClientID)
	v.SetDefault("KAFKA_TOPIC", defaults.KafkaTopic)
	v.SetDefault("KAFKA_DLQ_TOPIC", defaults.KafkaDLQTopic)
	v.SetDefault("OUTBOX_POLL_INTERVAL", defaults.OutboxPollInterval)
	v.SetDefault("OUTBOX_BATCH_SIZE", defaults.OutboxBatchSize)
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", defaults.OutboxMaxAttempts)
	v.SetDefault("OUTBOX_RETRY_DELAY", defaults.OutboxRetryDelay)
	v.SetDefault("OUTBOX_MAX_PENDING", defaults.OutboxMaxPending)
	v.SetDefault("OUTBOX_MAX_AGE", defaults.OutboxMaxAge)
	v.SetDefault("IDEMPOTENCY_TTL", defaults.IdempotencyTTL)
	v.SetDefault("IDEMPOTENCY_CLEANUP_INTERVAL", defaults.IdempotencyCleanupInterval)
	v.SetDefault("IDEMPOTENCY_CLEANUP_BATCH_SIZE", defaults.IdempotencyCleanupBatchSize)
	v.SetDefault("NOTIFIER_BUFFER", defaults.NotifierBuffer)
	v.SetDefault("SHUTDOWN_TIMEOUT", defaults.ShutdownTimeout)
	v.SetDefault("LOG_LEVEL", defaults.LogLevel)
	v.SetDefault("LOG_FORMAT", defaults.LogFormat)

	cfg := Config{
		HTTPAddr:                    v.GetString("HTTP_ADDR"),
		GRPCAddr:                    v.GetString("GRPC_ADDR"),
		StorageDriver:               strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
		PostgresDSN:                 strings.TrimSpace(v.GetString("POSTGRES_DSN")),
		PostgresAutoMigrate:         v.GetBool("POSTGRES_AUTO_MIGRATE"),
		KafkaBrokers:                strings.TrimSpace(v.GetString("KAFKA_BROKERS")),
		KafkaClientID:               v.GetString("KAFKA_CLIENT_ID"),
		KafkaTopic:                  v.GetString("KAFKA_TOPIC"),
		KafkaDLQTopic:               v.GetString("KAFKA_DLQ_TOPIC"),
		OutboxPollInterval:          v.GetDuration("OUTBOX_POLL_INTERVAL"),
		OutboxBatchSize:             v.GetInt("OUTBOX_BATCH_SIZE"),
		OutboxMaxAttempts:           v.GetInt("OUTBOX_MAX_ATTEMPTS"),
		OutboxRetryDelay:            v.GetDuration("OUTBOX_RETRY_DELAY"),
		OutboxMaxPending:            v.GetInt("OUTBOX_MAX_PENDING"),
		OutboxMaxAge:                v.GetDuration("OUTBOX_MAX_AGE"),
		IdempotencyTTL:              v.GetDuration("IDEMPOTENCY_TTL"),
		IdempotencyCleanupInterval:  v.GetDuration("IDEMPOTENCY_CLEANUP_INTERVAL"),
		IdempotencyCleanupBatchSize: v.GetInt("IDEMPOTENCY_CLEANUP_BATCH_SIZE"),
		NotifierBuffer:              v.GetInt("NOTIFIER_BUFFER"),
		ShutdownTimeout:             v.GetDuration("SHUTDOWN_TIMEOUT"),
		LogLevel:                    v.GetString("LOG_LEVEL"),
		LogFormat:                   v.GetString("LOG_FORMAT"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" && c.GRPCAddr == "" {
		errs = append(errs, errors.New("at least one of HTTP_ADDR or GRPC_ADDR must be set"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.KafkaBrokers != "" && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("OUTBOX_MAX_ATTEMPTS must be positive"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("OUTBOX_RETRY_DELAY must not be negative"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	if c.IdempotencyCleanupInterval <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_CLEANUP_INTERVAL must be positive"))
	}
	if c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_CLEANUP_BATCH_SIZE must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// Brokers возвращает список брокеров Kafka без пустых элементов.
func (c Config) Brokers() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if broker := strings.TrimSpace(part); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
