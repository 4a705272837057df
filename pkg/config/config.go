// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Sequencer, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Sequencer SequencerConfig `yaml:"sequencer"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"readTimeout"`
	WriteTimeout    time.Duration   `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig bounds requests per client address. A zero rate disables
// limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// PostgresConfig holds PostgreSQL connection parameters for the consumed-chunk
// ledger.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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
	SequenceEvents string `yaml:"sequenceEvents"`
}

// RedisConfig holds Redis connection and result-caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// SequencerConfig holds the default beam-search budget and the optional
// constraints the service composes into every search.
type SequencerConfig struct {
	BeamWidth          int           `yaml:"beamWidth"`
	MaxLength          int           `yaml:"maxLength"`
	CheckpointInterval int           `yaml:"checkpointInterval"`
	AvoidPenalty       float64       `yaml:"avoidPenalty"`
	TargetLength       float64       `yaml:"targetLength"`
	MaxCandidates      int           `yaml:"maxCandidates"`
	Timeout            time.Duration `yaml:"timeout"`
	RelaxOnEmpty       bool          `yaml:"relaxOnEmpty"`
	MeterStrictness    float64       `yaml:"meterStrictness"`
	RhymeScheme        string        `yaml:"rhymeScheme"`
}

// Validate reports the first inconsistent search setting.
func (s SequencerConfig) Validate() error {
	switch {
	case s.BeamWidth < 1:
		return fmt.Errorf("sequencer.beamWidth must be at least 1, got %d", s.BeamWidth)
	case s.MaxLength < 0:
		return fmt.Errorf("sequencer.maxLength must not be negative, got %d", s.MaxLength)
	case s.CheckpointInterval < 0:
		return fmt.Errorf("sequencer.checkpointInterval must not be negative, got %d", s.CheckpointInterval)
	case s.AvoidPenalty < 0:
		return fmt.Errorf("sequencer.avoidPenalty must not be negative, got %v", s.AvoidPenalty)
	case s.MeterStrictness < 0 || s.MeterStrictness > 1:
		return fmt.Errorf("sequencer.meterStrictness must be within [0, 1], got %v", s.MeterStrictness)
	}
	return nil
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
	if err := cfg.Sequencer.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 0,
				Burst:             20,
			},
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "beatsequencer",
			User:            "beatsequencer",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "beatsequencer-group",
			Topics: KafkaTopics{
				SequenceEvents: "sequence-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Sequencer: SequencerConfig{
			BeamWidth:          4,
			MaxLength:          6,
			CheckpointInterval: 2,
			AvoidPenalty:       5.0,
			TargetLength:       10,
			MaxCandidates:      5000,
			Timeout:            5 * time.Second,
			RelaxOnEmpty:       true,
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

// applyEnvOverrides reads BS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BS_SERVER_RATE_LIMIT_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("BS_POSTGRES_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = enabled
		}
	}
	if v := os.Getenv("BS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("BS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("BS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("BS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BS_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("BS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BS_SEQUENCER_BEAM_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sequencer.BeamWidth = n
		}
	}
	if v := os.Getenv("BS_SEQUENCER_MAX_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sequencer.MaxLength = n
		}
	}
	if v := os.Getenv("BS_SEQUENCER_CHECKPOINT_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sequencer.CheckpointInterval = n
		}
	}
	if v := os.Getenv("BS_SEQUENCER_RHYME_SCHEME"); v != "" {
		cfg.Sequencer.RhymeScheme = v
	}
	if v := os.Getenv("BS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
