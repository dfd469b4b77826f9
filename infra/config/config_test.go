package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matchbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
  format: console
feed:
  driver: sarama
  brokers: [localhost:9092]
  topic: trades
  outbox_dir: /tmp/outbox
  interval: 1s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, FeedSarama, cfg.Feed.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Feed.Brokers)
	assert.Equal(t, time.Second, cfg.Feed.Interval)
	assert.Equal(t, uint32(5), cfg.Feed.MaxRetries)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "log:\n  level: debug\n")
	t.Setenv("MATCHBOOK_LOG_LEVEL", "warn")
	t.Setenv("MATCHBOOK_FEED_DRIVER", "kafka-go")
	t.Setenv("MATCHBOOK_FEED_BROKERS", "a:9092, b:9092,")
	t.Setenv("MATCHBOOK_FEED_MAX_RETRIES", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, FeedKafkaGo, cfg.Feed.Driver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Feed.Brokers)
	assert.Equal(t, uint32(9), cfg.Feed.MaxRetries)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeFile(t, "log:\n  level: shout\n"))
	assert.Error(t, err)

	// A feed without brokers cannot publish.
	_, err = Load(writeFile(t, "feed:\n  driver: sarama\n"))
	assert.Error(t, err)

	t.Setenv("MATCHBOOK_FEED_INTERVAL", "soon")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
