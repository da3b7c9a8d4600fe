package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
	Ledger    LedgerConfig
	Health    HealthConfig
}

type ServerConfig struct {
	Port         string `mapstructure:"SERVER_PORT"`
	Host         string `mapstructure:"SERVER_HOST"`
	Env          string `mapstructure:"ENV"`
	ReadTimeout  string `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout string `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"DATABASE_URL"`
	MaxOpenConns    int    `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime string `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"REDIS_ADDR"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type KafkaConfig struct {
	// Brokers is a comma separated host:port list. Empty disables publishing.
	Brokers string `mapstructure:"KAFKA_BROKERS"`
	Topic   string `mapstructure:"KAFKA_TOPIC"`
}

type SchedulerConfig struct {
	LateFeeCron string `mapstructure:"SCHEDULER_LATE_FEE_CRON"`
	Timezone    string `mapstructure:"SCHEDULER_TIMEZONE"`
	ActorID     string `mapstructure:"SCHEDULER_ACTOR_ID"`
	Concurrency int    `mapstructure:"SCHEDULER_WORKER_CONCURRENCY"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type LedgerConfig struct {
	Timezone        string `mapstructure:"LEDGER_TIMEZONE"`
	TxMaxRetries    int    `mapstructure:"LEDGER_TX_MAX_RETRIES"`
	IdempotencyTTL  string `mapstructure:"LEDGER_IDEMPOTENCY_TTL"`
	SweepBatchLimit int    `mapstructure:"LEDGER_SWEEP_BATCH_LIMIT"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":                  "8080",
	"SERVER_HOST":                  "0.0.0.0",
	"ENV":                          "development",
	"SERVER_READ_TIMEOUT":          "15s",
	"SERVER_WRITE_TIMEOUT":         "15s",
	"DATABASE_URL":                 "",
	"DATABASE_MAX_OPEN_CONNS":      25,
	"DATABASE_MAX_IDLE_CONNS":      5,
	"DATABASE_CONN_MAX_LIFETIME":   "5m",
	"REDIS_ADDR":                   "localhost:6379",
	"REDIS_PASSWORD":               "",
	"REDIS_DB":                     0,
	"KAFKA_BROKERS":                "",
	"KAFKA_TOPIC":                  "ledger.events",
	"SCHEDULER_LATE_FEE_CRON":      "0 6 * * *",
	"SCHEDULER_TIMEZONE":           "UTC",
	"SCHEDULER_ACTOR_ID":           "system:late-fee-sweep",
	"SCHEDULER_WORKER_CONCURRENCY": 5,
	"LOG_LEVEL":                    "info",
	"LOG_FORMAT":                   "json",
	"LEDGER_TIMEZONE":              "UTC",
	"LEDGER_TX_MAX_RETRIES":        3,
	"LEDGER_IDEMPOTENCY_TTL":       "24h",
	"LEDGER_SWEEP_BATCH_LIMIT":     500,
	"HEALTH_CHECK_TIMEOUT":         "5s",
}

// Load reads configuration from environment variables. A .env file in the
// working directory or ./deployments is loaded first when present; variables
// already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("deployments/.env")

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	sections := []interface{}{
		&config.Server, &config.Database, &config.Redis, &config.Kafka,
		&config.Scheduler, &config.Logging, &config.Ledger, &config.Health,
	}
	for _, section := range sections {
		if err := v.Unmarshal(section); err != nil {
			return nil, fmt.Errorf("unable to decode config: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	durations := map[string]string{
		"SERVER_READ_TIMEOUT":        c.Server.ReadTimeout,
		"SERVER_WRITE_TIMEOUT":       c.Server.WriteTimeout,
		"DATABASE_CONN_MAX_LIFETIME": c.Database.ConnMaxLifetime,
		"LEDGER_IDEMPOTENCY_TTL":     c.Ledger.IdempotencyTTL,
		"HEALTH_CHECK_TIMEOUT":       c.Health.Timeout,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a valid duration: %w", name, err)
		}
	}

	if _, err := cron.ParseStandard(c.Scheduler.LateFeeCron); err != nil {
		return fmt.Errorf("SCHEDULER_LATE_FEE_CRON must be a valid cron spec: %w", err)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid time zone: %w", err)
	}

	if _, err := time.LoadLocation(c.Ledger.Timezone); err != nil {
		return fmt.Errorf("LEDGER_TIMEZONE must be a valid time zone: %w", err)
	}

	if c.Ledger.TxMaxRetries < 0 {
		return fmt.Errorf("LEDGER_TX_MAX_RETRIES must not be negative")
	}

	if c.Ledger.SweepBatchLimit <= 0 {
		return fmt.Errorf("LEDGER_SWEEP_BATCH_LIMIT must be greater than 0")
	}

	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("SCHEDULER_WORKER_CONCURRENCY must be greater than 0")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// KafkaBrokers splits KAFKA_BROKERS, dropping blanks.
func (c *Config) KafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.Kafka.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// LedgerLocation is the time zone "today" is computed in.
func (c *Config) LedgerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) SchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) GetIdempotencyTTL() time.Duration {
	ttl, _ := time.ParseDuration(c.Ledger.IdempotencyTTL)
	return ttl
}

func (c *Config) GetConnMaxLifetime() time.Duration {
	d, _ := time.ParseDuration(c.Database.ConnMaxLifetime)
	return d
}

func (c *Config) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ReadTimeout)
	return d
}

func (c *Config) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.WriteTimeout)
	return d
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Health.Timeout)
	return timeout
}
