package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	SequenceDriverStorage = "storage"
	SequenceDriverRedis   = "redis"

	// EnvPrefix — префикс переменных окружения: SHOP_HTTP_ADDR, SHOP_STORAGE_DRIVER и т.д.
	EnvPrefix = "SHOP"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	GRPCAddr    string `mapstructure:"grpc_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	StorageDriver       string `mapstructure:"storage_driver"`
	PostgresDSN         string `mapstructure:"postgres_dsn"`
	PostgresAutoMigrate bool   `mapstructure:"postgres_auto_migrate"`

	OrderSequenceDriver string `mapstructure:"order_sequence_driver"`
	RedisAddr           string `mapstructure:"redis_addr"`
	RedisPassword       string `mapstructure:"redis_password"`
	RedisDB             int    `mapstructure:"redis_db"`

	// KafkaBrokers — список брокеров через запятую; пустой отключает публикацию.
	KafkaBrokers  string `mapstructure:"kafka_brokers"`
	KafkaTopic    string `mapstructure:"kafka_topic"`
	KafkaDLQTopic string `mapstructure:"kafka_dlq_topic"`
	KafkaClientID string `mapstructure:"kafka_client_id"`

	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize    int           `mapstructure:"outbox_batch_size"`
	OutboxMaxAttempts  int           `mapstructure:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `mapstructure:"outbox_retry_delay"`
	// Backlog, выше которого health отдаёт degraded.
	OutboxMaxPending int `mapstructure:"outbox_max_pending"`

	CheckoutMaxAttempts int `mapstructure:"checkout_max_attempts"`
	BcryptCost          int `mapstructure:"bcrypt_cost"`

	IdempotencyTTL              time.Duration `mapstructure:"idempotency_ttl"`
	IdempotencyCleanupInterval  time.Duration `mapstructure:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `mapstructure:"idempotency_cleanup_batch_size"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig возвращает настройки для локального запуска на памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		LogLevel:                    "info",
		LogFormat:                   "text",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		OrderSequenceDriver:         SequenceDriverStorage,
		RedisAddr:                   "localhost:6379",
		KafkaTopic:                  "shop.order.events",
		KafkaDLQTopic:               "shop.order.events.dlq",
		KafkaClientID:               "shop-service",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		OutboxMaxPending:            1000,
		CheckoutMaxAttempts:         3,
		BcryptCost:                  bcrypt.DefaultCost,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		ShutdownTimeout:             5 * time.Second,
	}
}

// LoadConfig читает настройки из SHOP_* переменных окружения и, если задан путь,
// из файла конфигурации. Незаданные значения берутся из DefaultConfig.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	for key, value := range map[string]any{
		"http_addr":                      defaults.HTTPAddr,
		"grpc_addr":                      defaults.GRPCAddr,
		"metrics_addr":                   defaults.MetricsAddr,
		"log_level":                      defaults.LogLevel,
		"log_format":                     defaults.LogFormat,
		"storage_driver":                 defaults.StorageDriver,
		"postgres_dsn":                   defaults.PostgresDSN,
		"postgres_auto_migrate":          defaults.PostgresAutoMigrate,
		"order_sequence_driver":          defaults.OrderSequenceDriver,
		"redis_addr":                     defaults.RedisAddr,
		"redis_password":                 defaults.RedisPassword,
		"redis_db":                       defaults.RedisDB,
		"kafka_brokers":                  defaults.KafkaBrokers,
		"kafka_topic":                    defaults.KafkaTopic,
		"kafka_dlq_topic":                defaults.KafkaDLQTopic,
		"kafka_client_id":                defaults.KafkaClientID,
		"outbox_poll_interval":           defaults.OutboxPollInterval,
		"outbox_batch_size":              defaults.OutboxBatchSize,
		"outbox_max_attempts":            defaults.OutboxMaxAttempts,
		"outbox_retry_delay":             defaults.OutboxRetryDelay,
		"outbox_max_pending":             defaults.OutboxMaxPending,
		"checkout_max_attempts":          defaults.CheckoutMaxAttempts,
		"bcrypt_cost":                    defaults.BcryptCost,
		"idempotency_ttl":                defaults.IdempotencyTTL,
		"idempotency_cleanup_interval":   defaults.IdempotencyCleanupInterval,
		"idempotency_cleanup_batch_size": defaults.IdempotencyCleanupBatchSize,
		"shutdown_timeout":               defaults.ShutdownTimeout,
	} {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	cfg.OrderSequenceDriver = strings.ToLower(strings.TrimSpace(cfg.OrderSequenceDriver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres_dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	switch c.OrderSequenceDriver {
	case "", SequenceDriverStorage:
	case SequenceDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis_addr is required for redis order sequence"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported order sequence driver %q", c.OrderSequenceDriver))
	}
	if c.BcryptCost != 0 && (c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost) {
		errs = append(errs, fmt.Errorf("bcrypt_cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	return errors.Join(errs...)
}

// BrokerList разбирает KafkaBrokers.
func (c Config) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// ConfigureLogger применяет уровень и формат логирования к стандартному логгеру logrus.
func ConfigureLogger(cfg Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(level)
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
