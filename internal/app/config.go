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

// EnvPrefix: префикс переменных окружения: MARKETPLACE_HTTP_ADDR, MARKETPLACE_POSTGRES_DSN и т.д.
const EnvPrefix = "MARKETPLACE"

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

const (
	PublisherNone     = "none"
	PublisherKafka    = "kafka"
	PublisherRabbitMQ = "rabbitmq"
	PublisherSQS      = "sqs"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	MetricsAddr     string
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	Currency           string
	CORSAllowedOrigins []string

	OutboxPublisher    string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxDLQEnabled   bool

	// Пороги health-проверки backlog: выше них сервис помечается degraded.
	OutboxMaxPending    int
	OutboxMaxPendingAge time.Duration

	KafkaBrokers  []string
	KafkaClientID string
	KafkaTopic    string
	KafkaDLQTopic string

	RabbitMQURL      string
	RabbitMQQueue    string
	RabbitMQDLQQueue string

	SQSRegion      string
	SQSEndpoint    string
	SQSQueueURL    string
	SQSDLQQueueURL string
	SQSFIFO        bool

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
	IdempotencyStaleAfter       time.Duration

	TracingEnabled bool
	JaegerEndpoint string
	ServiceName    string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":50051",
		MetricsAddr:     ":9090",
		ShutdownTimeout: 10 * time.Second,

		LogLevel:  "info",
		LogFormat: "text",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		Currency:           "INR",
		CORSAllowedOrigins: []string{"*"},

		OutboxPublisher:    PublisherNone,
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		OutboxMaxPending:    1000,
		OutboxMaxPendingAge: 5 * time.Minute,

		KafkaClientID: "marketplace",
		KafkaTopic:    "marketplace.order.events",
		KafkaDLQTopic: "marketplace.order.events.dlq",

		RabbitMQQueue:    "marketplace.order.events",
		RabbitMQDLQQueue: "marketplace.order.events.dlq",

		SQSRegion: "us-east-1",

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		IdempotencyStaleAfter:       5 * time.Minute,

		JaegerEndpoint: "http://localhost:14268/api/traces",
		ServiceName:    "marketplace",
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем config.yaml, затем окружение.
// Файл .env подхватывается, если он есть. path="" означает поиск config.yaml в . и /etc/marketplace.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/marketplace")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		HTTPAddr:        v.GetString("http.addr"),
		GRPCAddr:        v.GetString("grpc.addr"),
		MetricsAddr:     v.GetString("metrics.addr"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),

		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),

		StorageDriver:       strings.ToLower(strings.TrimSpace(v.GetString("storage.driver"))),
		PostgresDSN:         v.GetString("postgres.dsn"),
		PostgresAutoMigrate: v.GetBool("postgres.auto_migrate"),

		Currency:           v.GetString("currency"),
		CORSAllowedOrigins: stringList(v, "cors.allowed_origins"),

		OutboxPublisher:    strings.ToLower(strings.TrimSpace(v.GetString("outbox.publisher"))),
		OutboxPollInterval: v.GetDuration("outbox.poll_interval"),
		OutboxBatchSize:    v.GetInt("outbox.batch_size"),
		OutboxMaxAttempts:  v.GetInt("outbox.max_attempts"),
		OutboxRetryDelay:   v.GetDuration("outbox.retry_delay"),
		OutboxDLQEnabled:   v.GetBool("outbox.dlq_enabled"),

		OutboxMaxPending:    v.GetInt("outbox.max_pending"),
		OutboxMaxPendingAge: v.GetDuration("outbox.max_pending_age"),

		KafkaBrokers:  stringList(v, "kafka.brokers"),
		KafkaClientID: v.GetString("kafka.client_id"),
		KafkaTopic:    v.GetString("kafka.topic"),
		KafkaDLQTopic: v.GetString("kafka.dlq_topic"),

		RabbitMQURL:      v.GetString("rabbitmq.url"),
		RabbitMQQueue:    v.GetString("rabbitmq.queue"),
		RabbitMQDLQQueue: v.GetString("rabbitmq.dlq_queue"),

		SQSRegion:      v.GetString("sqs.region"),
		SQSEndpoint:    v.GetString("sqs.endpoint"),
		SQSQueueURL:    v.GetString("sqs.queue_url"),
		SQSDLQQueueURL: v.GetString("sqs.dlq_queue_url"),
		SQSFIFO:        v.GetBool("sqs.fifo"),

		IdempotencyTTL:              v.GetDuration("idempotency.ttl"),
		IdempotencyCleanupInterval:  v.GetDuration("idempotency.cleanup_interval"),
		IdempotencyCleanupBatchSize: v.GetInt("idempotency.cleanup_batch_size"),
		IdempotencyStaleAfter:       v.GetDuration("idempotency.stale_after"),

		TracingEnabled: v.GetBool("tracing.enabled"),
		JaegerEndpoint: v.GetString("tracing.jaeger_endpoint"),
		ServiceName:    v.GetString("tracing.service_name"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("http.addr", d.HTTPAddr)
	v.SetDefault("grpc.addr", d.GRPCAddr)
	v.SetDefault("metrics.addr", d.MetricsAddr)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("log.level", d.LogLevel)
	v.SetDefault("log.format", d.LogFormat)
	v.SetDefault("storage.driver", d.StorageDriver)
	v.SetDefault("postgres.dsn", d.PostgresDSN)
	v.SetDefault("postgres.auto_migrate", d.PostgresAutoMigrate)
	v.SetDefault("currency", d.Currency)
	v.SetDefault("cors.allowed_origins", d.CORSAllowedOrigins)
	v.SetDefault("outbox.publisher", d.OutboxPublisher)
	v.SetDefault("outbox.poll_interval", d.OutboxPollInterval)
	v.SetDefault("outbox.batch_size", d.OutboxBatchSize)
	v.SetDefault("outbox.max_attempts", d.OutboxMaxAttempts)
	v.SetDefault("outbox.retry_delay", d.OutboxRetryDelay)
	v.SetDefault("outbox.dlq_enabled", d.OutboxDLQEnabled)
	v.SetDefault("outbox.max_pending", d.OutboxMaxPending)
	v.SetDefault("outbox.max_pending_age", d.OutboxMaxPendingAge)
	v.SetDefault("kafka.brokers", d.KafkaBrokers)
	v.SetDefault("kafka.client_id", d.KafkaClientID)
	v.SetDefault("kafka.topic", d.KafkaTopic)
	v.SetDefault("kafka.dlq_topic", d.KafkaDLQTopic)
	v.SetDefault("rabbitmq.url", d.RabbitMQURL)
	v.SetDefault("rabbitmq.queue", d.RabbitMQQueue)
	v.SetDefault("rabbitmq.dlq_queue", d.RabbitMQDLQQueue)
	v.SetDefault("sqs.region", d.SQSRegion)
	v.SetDefault("sqs.endpoint", d.SQSEndpoint)
	v.SetDefault("sqs.queue_url", d.SQSQueueURL)
	v.SetDefault("sqs.dlq_queue_url", d.SQSDLQQueueURL)
	v.SetDefault("sqs.fifo", d.SQSFIFO)
	v.SetDefault("idempotency.ttl", d.IdempotencyTTL)
	v.SetDefault("idempotency.cleanup_interval", d.IdempotencyCleanupInterval)
	v.SetDefault("idempotency.cleanup_batch_size", d.IdempotencyCleanupBatchSize)
	v.SetDefault("idempotency.stale_after", d.IdempotencyStaleAfter)
	v.SetDefault("tracing.enabled", d.TracingEnabled)
	v.SetDefault("tracing.jaeger_endpoint", d.JaegerEndpoint)
	v.SetDefault("tracing.service_name", d.ServiceName)
}

// stringList читает список из YAML или из строки окружения через запятую.
func stringList(v *viper.Viper, key string) []string {
	var raw []string
	switch value := v.Get(key).(type) {
	case string:
		raw = strings.Split(value, ",")
	default:
		raw = v.GetStringSlice(key)
	}
	var out []string
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate проверяет согласованность настроек хранилища, outbox publisher и чистки попыток оформления.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("postgres storage requires MARKETPLACE_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.OutboxPublisher {
	case PublisherNone, "":
	case PublisherKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("kafka publisher requires MARKETPLACE_KAFKA_BROKERS")
		}
	case PublisherRabbitMQ:
		if strings.TrimSpace(c.RabbitMQURL) == "" {
			return errors.New("rabbitmq publisher requires MARKETPLACE_RABBITMQ_URL")
		}
	case PublisherSQS:
		if strings.TrimSpace(c.SQSQueueURL) == "" {
			return errors.New("sqs publisher requires MARKETPLACE_SQS_QUEUE_URL")
		}
		if c.OutboxDLQEnabled && strings.TrimSpace(c.SQSDLQQueueURL) == "" {
			return errors.New("sqs dead letter queue requires MARKETPLACE_SQS_DLQ_QUEUE_URL")
		}
	default:
		return fmt.Errorf("unsupported outbox publisher %q", c.OutboxPublisher)
	}

	// Зависшая попытка должна освобождаться раньше, чем истечёт её TTL.
	if c.IdempotencyStaleAfter > 0 && c.IdempotencyTTL > 0 && c.IdempotencyStaleAfter >= c.IdempotencyTTL {
		return fmt.Errorf("idempotency stale_after %s must be shorter than ttl %s", c.IdempotencyStaleAfter, c.IdempotencyTTL)
	}
	return nil
}
