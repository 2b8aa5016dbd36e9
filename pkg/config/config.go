// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Embedding, Query, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Embedding source kinds.
const (
	SourceFile     = "file"
	SourceHTTP     = "http"
	SourceMinIO    = "minio"
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
)

// Model file formats.
const (
	FormatText   = "text"
	FormatBinary = "binary"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Query     QueryConfig     `yaml:"query"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	// AdminToken guards the reload and cache-invalidation endpoints. Empty
	// leaves them open.
	AdminToken      string        `yaml:"adminToken"`
}

// EmbeddingConfig selects where the vocabulary is loaded from.
type EmbeddingConfig struct {
	Source      string        `yaml:"source"`
	Path        string        `yaml:"path"`
	Format      string        `yaml:"format"`
	URL         string        `yaml:"url"`
	Lowercase   bool          `yaml:"lowercase"`
	LoadTimeout time.Duration `yaml:"loadTimeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
	MinIO       MinIOConfig   `yaml:"minio"`
	Table       string        `yaml:"table"`
	SQLitePath  string        `yaml:"sqlitePath"`
}

// MinIOConfig locates a model object in S3-compatible storage.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Object    string `yaml:"object"`
	UseSSL    bool   `yaml:"useSSL"`
}

// QueryConfig holds per-endpoint defaults and the topn ceiling.
type QueryConfig struct {
	DefaultTopN int `yaml:"defaultTopN"`
	MatchTopN   int `yaml:"matchTopN"`
	AnalogyTopN int `yaml:"analogyTopN"`
	MaxTopN     int `yaml:"maxTopN"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	QueryEvents      string `yaml:"queryEvents"`
	VocabularyReload string `yaml:"vocabularyReload"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// RateLimitConfig controls per-client request throttling.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// AnalyticsConfig controls query event collection.
// A positive SnapshotInterval persists aggregated stats to Postgres.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Embedding.Source {
	case SourceFile, SourceHTTP:
		if c.Embedding.Path == "" {
			return fmt.Errorf("embedding.path is required for source %q", c.Embedding.Source)
		}
		if c.Embedding.Source == SourceHTTP && c.Embedding.URL == "" {
			return fmt.Errorf("embedding.url is required for source %q", SourceHTTP)
		}
	case SourceMinIO:
		if c.Embedding.MinIO.Endpoint == "" || c.Embedding.MinIO.Bucket == "" || c.Embedding.MinIO.Object == "" {
			return fmt.Errorf("embedding.minio endpoint, bucket and object are required")
		}
	case SourcePostgres:
		if c.Embedding.Table == "" {
			return fmt.Errorf("embedding.table is required for source %q", SourcePostgres)
		}
	case SourceSQLite:
		if c.Embedding.SQLitePath == "" || c.Embedding.Table == "" {
			return fmt.Errorf("embedding.sqlitePath and embedding.table are required for source %q", SourceSQLite)
		}
	default:
		return fmt.Errorf("unknown embedding source %q", c.Embedding.Source)
	}
	switch c.Embedding.Format {
	case FormatText, FormatBinary:
	default:
		return fmt.Errorf("unknown embedding format %q", c.Embedding.Format)
	}
	q := c.Query
	if q.DefaultTopN < 1 || q.MatchTopN < 1 || q.AnalogyTopN < 1 || q.MaxTopN < 1 {
		return fmt.Errorf("query topN settings must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rateLimit requires positive requestsPerSecond and burst")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Embedding: EmbeddingConfig{
			Source:      SourceFile,
			Path:        "data/friends_word2vec.txt",
			Format:      FormatText,
			Lowercase:   true,
			LoadTimeout: 2 * time.Minute,
			MaxAttempts: 3,
			Table:       "embeddings",
		},
		Query: QueryConfig{
			DefaultTopN: 5,
			MatchTopN:   3,
			AnalogyTopN: 1,
			MaxTopN:     100,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "embeddings",
			User:            "embeddings",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "embedding-api",
			Topics: KafkaTopics{
				QueryEvents:      "embedding-query-events",
				VocabularyReload: "vocabulary-reload",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Analytics: AnalyticsConfig{
			Enabled:       true,
			BufferSize:    10000,
			BatchSize:     100,
			FlushInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads EMB_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EMB_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("EMB_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("EMB_SOURCE"); v != "" {
		cfg.Embedding.Source = v
	}
	if v := os.Getenv("EMB_MODEL_PATH"); v != "" {
		cfg.Embedding.Path = v
	}
	if v := os.Getenv("EMB_MODEL_FORMAT"); v != "" {
		cfg.Embedding.Format = v
	}
	if v := os.Getenv("EMB_MODEL_URL"); v != "" {
		cfg.Embedding.URL = v
	}
	if v := os.Getenv("EMB_MINIO_ENDPOINT"); v != "" {
		cfg.Embedding.MinIO.Endpoint = v
	}
	if v := os.Getenv("EMB_MINIO_ACCESS_KEY"); v != "" {
		cfg.Embedding.MinIO.AccessKey = v
	}
	if v := os.Getenv("EMB_MINIO_SECRET_KEY"); v != "" {
		cfg.Embedding.MinIO.SecretKey = v
	}
	if v := os.Getenv("EMB_SQLITE_PATH"); v != "" {
		cfg.Embedding.SQLitePath = v
	}
	if v := os.Getenv("EMB_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("EMB_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("EMB_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("EMB_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("EMB_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("EMB_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("EMB_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("EMB_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("EMB_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EMB_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
