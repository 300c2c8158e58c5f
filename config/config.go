package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/kafka"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/redis"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/sources"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing/exporters"
)

type Config struct {
	AppName            string `mapstructure:"APP_NAME" validate:"required"`
	AppVersion         string `mapstructure:"APP_VERSION"`
	LogLevel           string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	PrettyLogs         bool   `mapstructure:"PRETTY_LOGS"`
	StartupMaxAttempts int    `mapstructure:"STARTUP_MAX_ATTEMPTS" validate:"min=1"`

	// Ops server
	Port                     int           `mapstructure:"PORT" validate:"min=1,max=65535"`
	HTTPReadTimeout          time.Duration `mapstructure:"HTTP_SERVER_READ_TIMEOUT"`
	HTTPWriteTimeout         time.Duration `mapstructure:"HTTP_SERVER_WRITE_TIMEOUT"`
	HTTPIdleTimeout          time.Duration `mapstructure:"HTTP_SERVER_IDLE_TIMEOUT"`
	HTTPReadHeaderTimeout    time.Duration `mapstructure:"HTTP_SERVER_READ_HEADER_TIMEOUT"`
	HTTPMaxHeaderBytes       int           `mapstructure:"HTTP_SERVER_MAX_HEADER_BYTES"`
	HTTPShutdownGracePeriod  time.Duration `mapstructure:"HTTP_SERVER_SHUTDOWN_GRACE_PERIOD"`
	HTTPAllowOrigins         []string      `mapstructure:"HTTP_SERVER_ALLOW_ORIGINS"`
	HTTPAllowMethods         []string      `mapstructure:"HTTP_SERVER_ALLOW_METHODS"`

	// PostgreSQL (registry)
	DatabaseHost            string        `mapstructure:"DB_HOST"`
	DatabasePort            string        `mapstructure:"DB_PORT"`
	DatabaseUserName        string        `mapstructure:"DB_USER_NAME"`
	DatabasePassword        string        `mapstructure:"DB_PASSWORD"`
	DatabaseName            string        `mapstructure:"DB_NAME" validate:"required"`
	DatabaseSSLMode         string        `mapstructure:"DB_SSL_MODE" validate:"oneof=disable require verify-ca verify-full"`
	DatabaseMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DatabaseMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DatabaseConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`

	// Migrations
	MigrationFolderPath   string `mapstructure:"DB_MIGRATION_FOLDER_PATH" validate:"required"`
	MigrationVersion      uint   `mapstructure:"DB_MIGRATION_VERSION"`
	MigrationForce        int    `mapstructure:"DB_MIGRATION_FORCE"`
	MigrationAutoRollback bool   `mapstructure:"DB_MIGRATION_AUTO_ROLLBACK"`

	// Staging and taxonomy. An empty taxonomy path uses the built-in catalog.
	StagingPath  string `mapstructure:"STAGING_PATH"`
	TaxonomyPath string `mapstructure:"TAXONOMY_PATH"`

	// Synchronization
	SyncTxTimeout time.Duration `mapstructure:"SYNC_TX_TIMEOUT" validate:"gt=0"`
	SyncLockTTL   time.Duration `mapstructure:"SYNC_LOCK_TTL" validate:"gt=0"`

	// Redis dataset lock; disabled when RedisHost is empty
	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     int    `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Kafka product events; disabled when KafkaEnabled is false
	KafkaEnabled      bool          `mapstructure:"KAFKA_ENABLED"`
	KafkaBrokers      []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaOutputTopic  string        `mapstructure:"KAFKA_OUTPUT_TOPIC"`
	KafkaBatchSize    int           `mapstructure:"KAFKA_BATCH_SIZE"`
	KafkaBatchTimeout time.Duration `mapstructure:"KAFKA_BATCH_TIMEOUT"`
	KafkaRequiredAcks int           `mapstructure:"KAFKA_REQUIRED_ACKS" validate:"oneof=-1 0 1"`
	KafkaCompression  string        `mapstructure:"KAFKA_COMPRESSION" validate:"oneof=none gzip snappy lz4 zstd"`

	// Tracing; disabled when OTLPEndpoint is empty
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPProtocol string `mapstructure:"OTEL_EXPORTER_OTLP_PROTOCOL" validate:"oneof=grpc http"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// S3 sources
	S3Region    string `mapstructure:"S3_REGION"`
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3PathStyle bool   `mapstructure:"S3_PATH_STYLE"`

	// HTTP sources
	SourceHTTPTimeout time.Duration `mapstructure:"SOURCE_HTTP_TIMEOUT"`
}

var defaults = map[string]any{
	"APP_NAME":             "product-registry",
	"APP_VERSION":          "dev",
	"LOG_LEVEL":            "info",
	"PRETTY_LOGS":          false,
	"STARTUP_MAX_ATTEMPTS": 5,

	"PORT":                              3004,
	"HTTP_SERVER_READ_TIMEOUT":          "10s",
	"HTTP_SERVER_WRITE_TIMEOUT":         "10m",
	"HTTP_SERVER_IDLE_TIMEOUT":          "60s",
	"HTTP_SERVER_READ_HEADER_TIMEOUT":   "10s",
	"HTTP_SERVER_MAX_HEADER_BYTES":      64000,
	"HTTP_SERVER_SHUTDOWN_GRACE_PERIOD": "30s",
	"HTTP_SERVER_ALLOW_ORIGINS":         []string{"*"},
	"HTTP_SERVER_ALLOW_METHODS":         []string{"GET", "POST", "DELETE"},

	"DB_HOST":              "localhost",
	"DB_PORT":              "5432",
	"DB_USER_NAME":         "",
	"DB_PASSWORD":          "",
	"DB_NAME":              "registry",
	"DB_SSL_MODE":          "disable",
	"DB_MAX_OPEN_CONNS":    25,
	"DB_MAX_IDLE_CONNS":    10,
	"DB_CONN_MAX_LIFETIME": "5m",

	"DB_MIGRATION_FOLDER_PATH":   "db/pg",
	"DB_MIGRATION_VERSION":       0,
	"DB_MIGRATION_FORCE":         0,
	"DB_MIGRATION_AUTO_ROLLBACK": true,

	"STAGING_PATH":  "var/staging.db",
	"TAXONOMY_PATH": "",

	"SYNC_TX_TIMEOUT": "30s",
	"SYNC_LOCK_TTL":   "10m",

	"REDIS_HOST":     "",
	"REDIS_PORT":     6379,
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"KAFKA_ENABLED":       false,
	"KAFKA_BROKERS":       []string{"localhost:9092"},
	"KAFKA_OUTPUT_TOPIC":  "product-events",
	"KAFKA_BATCH_SIZE":    100,
	"KAFKA_BATCH_TIMEOUT": "100ms",
	"KAFKA_REQUIRED_ACKS": 1,
	"KAFKA_COMPRESSION":   "snappy",

	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc",
	"OTEL_EXPORTER_OTLP_INSECURE": true,

	"S3_REGION":     "us-west-2",
	"S3_ENDPOINT":   "",
	"S3_PATH_STYLE": false,

	"SOURCE_HTTP_TIMEOUT": "60s",
}

// Load reads the configuration from the environment. Variables in envFiles
// are loaded first without overriding the environment; missing files are
// ignored.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	cfg.HTTPAllowOrigins = splitList(cfg.HTTPAllowOrigins)
	cfg.HTTPAllowMethods = splitList(cfg.HTTPAllowMethods)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// splitList accepts both list defaults and comma separated env values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Database() database.ConnectionConfig {
	return database.ConnectionConfig{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.MigrationFolderPath,
		Version:             c.MigrationVersion,
		Force:               c.MigrationForce,
		AutoRollback:        c.MigrationAutoRollback,
	}
}

func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) Kafka() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: c.KafkaBatchTimeout,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) TracingEnabled() bool {
	return c.OTLPEndpoint != ""
}

func (c *Config) OTLP() exporters.OTLPConfig {
	return exporters.OTLPConfig{
		Endpoint: c.OTLPEndpoint,
		Protocol: c.OTLPProtocol,
		Insecure: c.OTLPInsecure,
	}
}

func (c *Config) S3() sources.S3Config {
	return sources.S3Config{
		Region:    c.S3Region,
		Endpoint:  c.S3Endpoint,
		PathStyle: c.S3PathStyle,
	}
}
