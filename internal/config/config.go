// Package config loads and validates process configuration from the
// environment, grounded on the corpus's .env-plus-struct-tags pattern
// (godotenv for local overrides, validator for fail-fast enforcement).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the full set of process settings cashappd needs to start.
type Config struct {
	Postgres PostgresConfig
	Redis    RedisConfig
	HTTP     HTTPConfig
	Slack    SlackConfig
	Kafka     KafkaConfig
	Phone     PhoneConfig
	Scheduler SchedulerConfig
}

type PostgresConfig struct {
	DSN string `validate:"required"`
}

type RedisConfig struct {
	Addr string `validate:"required"`
}

type HTTPConfig struct {
	ListenAddr      string        `validate:"required"`
	ShutdownTimeout time.Duration `validate:"required"`
}

type SlackConfig struct {
	Token   string
	Channel string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// PhoneConfig documents the country convention the resolver's phone
// normalizer applies (§4.3): the national significant-number length
// and dialing code for the operating region.
type PhoneConfig struct {
	CountryCode    string `validate:"required"`
	NationalLength int    `validate:"required,gt=0"`
}

// SchedulerConfig tunes the background poller that resumes runs a
// crashed worker left pending or due for retry (§5).
type SchedulerConfig struct {
	PollInterval time.Duration `validate:"required"`
	BatchSize    int           `validate:"required,gt=0"`
	Workers      int           `validate:"required,gt=0"`
}

// Load reads .env (if present) then the process environment, building
// and validating a Config. Missing required fields or invalid values
// fail fast at process start rather than surfacing as a later runtime
// error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Postgres: PostgresConfig{DSN: os.Getenv("CASHAPP_POSTGRES_DSN")},
		Redis:    RedisConfig{Addr: getenvDefault("CASHAPP_REDIS_ADDR", "127.0.0.1:6379")},
		HTTP: HTTPConfig{
			ListenAddr:      getenvDefault("CASHAPP_HTTP_ADDR", ":8080"),
			ShutdownTimeout: 10 * time.Second,
		},
		Slack: SlackConfig{
			Token:   os.Getenv("CASHAPP_SLACK_TOKEN"),
			Channel: getenvDefault("CASHAPP_SLACK_CHANNEL", "#cash-application"),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(os.Getenv("CASHAPP_KAFKA_BROKERS")),
			Topic:   getenvDefault("CASHAPP_KAFKA_TOPIC", "cashapp.notices"),
		},
		Phone: PhoneConfig{
			CountryCode:    getenvDefault("CASHAPP_PHONE_COUNTRY_CODE", "254"),
			NationalLength: getenvIntDefault("CASHAPP_PHONE_NATIONAL_LENGTH", 9),
		},
		Scheduler: SchedulerConfig{
			PollInterval: time.Duration(getenvIntDefault("CASHAPP_SCHEDULER_POLL_INTERVAL_SECONDS", 5)) * time.Second,
			BatchSize:    getenvIntDefault("CASHAPP_SCHEDULER_BATCH_SIZE", 50),
			Workers:      getenvIntDefault("CASHAPP_SCHEDULER_WORKERS", 8),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
