// Package config loads engine settings from an optional YAML file,
// then the environment (and a .env file, if present).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	FeedNone    = "none"
	FeedSarama  = "sarama"
	FeedKafkaGo = "kafka-go"
)

type Config struct {
	Log     Log     `yaml:"log"`
	Metrics Metrics `yaml:"metrics"`
	Feed    Feed    `yaml:"feed"`
}

type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type Metrics struct {
	// Addr serves /metrics when set, e.g. ":9102".
	Addr string `yaml:"addr"`
}

// Feed configures the trade drop-copy.
type Feed struct {
	Driver     string        `yaml:"driver" validate:"oneof=none sarama kafka-go"`
	Brokers    []string      `yaml:"brokers" validate:"required_unless=Driver none"`
	Topic      string        `yaml:"topic" validate:"required_unless=Driver none"`
	OutboxDir  string        `yaml:"outbox_dir" validate:"required_unless=Driver none"`
	Interval   time.Duration `yaml:"interval" validate:"gt=0"`
	MaxRetries uint32        `yaml:"max_retries" validate:"gt=0"`
}

func Default() Config {
	return Config{
		Log: Log{Level: "info", Format: "json"},
		Feed: Feed{
			Driver:     FeedNone,
			Topic:      "matchbook.trades",
			OutboxDir:  "./outbox",
			Interval:   250 * time.Millisecond,
			MaxRetries: 5,
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: read file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config: parse %s", path)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: invalid")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Log.Level, "MATCHBOOK_LOG_LEVEL")
	setString(&cfg.Log.Format, "MATCHBOOK_LOG_FORMAT")
	setString(&cfg.Metrics.Addr, "MATCHBOOK_METRICS_ADDR")
	setString(&cfg.Feed.Driver, "MATCHBOOK_FEED_DRIVER")
	setString(&cfg.Feed.Topic, "MATCHBOOK_FEED_TOPIC")
	setString(&cfg.Feed.OutboxDir, "MATCHBOOK_FEED_OUTBOX_DIR")

	if v, ok := os.LookupEnv("MATCHBOOK_FEED_BROKERS"); ok {
		cfg.Feed.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv("MATCHBOOK_FEED_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "config: MATCHBOOK_FEED_INTERVAL")
		}
		cfg.Feed.Interval = d
	}
	if v, ok := os.LookupEnv("MATCHBOOK_FEED_MAX_RETRIES"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return errors.Wrap(err, "config: MATCHBOOK_FEED_MAX_RETRIES")
		}
		cfg.Feed.MaxRetries = uint32(n)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
