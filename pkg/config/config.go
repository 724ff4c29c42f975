// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Store, Postgres, Redis, Kafka, Scheduler, Enrichment,
// Embedding, Ranking) plus the declarative list of news sources.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Ranking    RankingConfig    `yaml:"ranking"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Sources    []SourceConfig   `yaml:"sources"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RequestTimeout bounds event submission and retrieval requests.
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// IngestRatePerSecond limits external submissions per client address.
	// Zero disables the limit.
	IngestRatePerSecond float64 `yaml:"ingestRatePerSecond"`
	IngestBurst         int     `yaml:"ingestBurst"`
}

// StoreConfig selects the event store backend.
type StoreConfig struct {
	Driver        string        `yaml:"driver"` // memory | postgres
	DedupLookback time.Duration `yaml:"dedupLookback"`
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

// KafkaConfig holds Kafka broker and topic settings. When disabled the
// platform runs without admission notifications and enrichment relies on
// its poll interval alone.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	EventsAdmitted string `yaml:"eventsAdmitted"`
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

// SchedulerConfig controls source polling, fetch bounds and backoff.
type SchedulerConfig struct {
	RunOnStart        bool          `yaml:"runOnStart"`
	FetchTimeout      time.Duration `yaml:"fetchTimeout"`
	FetchRetries      int           `yaml:"fetchRetries"`
	BackoffInitial    time.Duration `yaml:"backoffInitial"`
	BackoffMax        time.Duration `yaml:"backoffMax"`
	DegradedThreshold int           `yaml:"degradedThreshold"`
	MinPollInterval   int           `yaml:"minPollInterval"`
}

// EnrichmentConfig controls the background enrichment worker pool.
type EnrichmentConfig struct {
	Workers            int                `yaml:"workers"`
	BatchSize          int                `yaml:"batchSize"`
	PollInterval       time.Duration      `yaml:"pollInterval"`
	Lease              time.Duration      `yaml:"lease"`
	MaxAttempts        int                `yaml:"maxAttempts"`
	EmbedTimeout       time.Duration      `yaml:"embedTimeout"`
	DefaultCredibility float64            `yaml:"defaultCredibility"`
	Credibility        map[string]float64 `yaml:"credibility"`
}

// EmbeddingConfig selects and configures the text embedding capability.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // http | hash
	BaseURL    string        `yaml:"baseUrl"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RankingConfig holds retrieval defaults and limits.
type RankingConfig struct {
	DefaultLimit      int     `yaml:"defaultLimit"`
	MaxLimit          int     `yaml:"maxLimit"`
	DefaultDaysBack   float64 `yaml:"defaultDaysBack"`
	DefaultAlpha      float64 `yaml:"defaultAlpha"`
	DefaultDecayParam float64 `yaml:"defaultDecayParam"`
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

// SourceConfig is the declarative description of one news source.
type SourceConfig struct {
	Name         string            `yaml:"name"`
	Enabled      *bool             `yaml:"enabled"`
	PollInterval int               `yaml:"pollInterval"`
	Adapter      string            `yaml:"adapter"`
	Fetcher      string            `yaml:"fetcher"`
	Endpoint     string            `yaml:"endpoint"`
	Headers      map[string]string `yaml:"headers"`
	Options      map[string]any    `yaml:"options"`
	Credibility  float64           `yaml:"credibility"`
}

// IsEnabled treats an omitted enabled flag as true.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
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
	applySourceDefaults(cfg)
	return cfg, nil
}

// Validate checks the configuration for values the platform cannot run
// with. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	switch c.Embedding.Provider {
	case "http", "hash":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider: unknown provider %q", c.Embedding.Provider))
	}
	if c.Ranking.DefaultAlpha < 0 || c.Ranking.DefaultAlpha > 1 {
		errs = append(errs, fmt.Errorf("ranking.defaultAlpha must be within [0,1]"))
	}
	if c.Enrichment.Workers <= 0 {
		errs = append(errs, fmt.Errorf("enrichment.workers must be positive"))
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		name := s.Name
		if name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: missing name", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("source %s: duplicate name", name))
		}
		seen[name] = true
		if s.Endpoint == "" && s.Fetcher != "static" {
			errs = append(errs, fmt.Errorf("source %s: missing endpoint", name))
		}
		if s.PollInterval <= 0 {
			errs = append(errs, fmt.Errorf("source %s: poll interval must be positive", name))
		} else if s.PollInterval < c.Scheduler.MinPollInterval {
			errs = append(errs, fmt.Errorf("source %s: poll interval too short (%ds < %ds)", name, s.PollInterval, c.Scheduler.MinPollInterval))
		}
		if s.Adapter == "" {
			errs = append(errs, fmt.Errorf("source %s: missing adapter", name))
		}
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                8000,
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        30 * time.Second,
			ShutdownTimeout:     15 * time.Second,
			RequestTimeout:      10 * time.Second,
			IngestRatePerSecond: 20,
			IngestBurst:         40,
		},
		Store: StoreConfig{
			Driver:        "memory",
			DedupLookback: 72 * time.Hour,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "newsfeed",
			User:            "newsfeed",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "newsfeed-enrichment",
			Topics: KafkaTopics{
				EventsAdmitted: "events.admitted",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			RunOnStart:        true,
			FetchTimeout:      30 * time.Second,
			FetchRetries:      3,
			BackoffInitial:    30 * time.Second,
			BackoffMax:        30 * time.Minute,
			DegradedThreshold: 3,
			MinPollInterval:   60,
		},
		Enrichment: EnrichmentConfig{
			Workers:            2,
			BatchSize:          16,
			PollInterval:       2 * time.Second,
			Lease:              time.Minute,
			MaxAttempts:        5,
			EmbedTimeout:       10 * time.Second,
			DefaultCredibility: 0.5,
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			BaseURL:    "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 256,
			Timeout:    30 * time.Second,
		},
		Ranking: RankingConfig{
			DefaultLimit:      100,
			MaxLimit:          1000,
			DefaultDaysBack:   14,
			DefaultAlpha:      0.7,
			DefaultDecayParam: 0.02,
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

// applySourceDefaults fills per-source values the YAML may omit.
func applySourceDefaults(cfg *Config) {
	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		if s.PollInterval == 0 {
			s.PollInterval = 300
		}
		if s.Fetcher == "" {
			if s.Adapter == "rss" {
				s.Fetcher = "rss"
			} else {
				s.Fetcher = "json_api"
			}
		}
	}
}

// applyEnvOverrides reads NF_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NF_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("NF_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("NF_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("NF_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("NF_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("NF_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("NF_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("NF_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("NF_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("NF_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NF_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("NF_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("NF_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NF_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
