package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sykepenger/spesialist/internal/domain/entity"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "tbd.rapid.v1", cfg.Kafka.Topic)
	assert.Equal(t, "spesialist", cfg.Kafka.GroupID)
	assert.Equal(t, 3, cfg.Kafka.MaxAttempts)
	assert.Equal(t, 8, cfg.Workers.Shards)
	assert.False(t, cfg.Features[entity.FeatureAutomatisering])
	assert.Equal(t, "spesialist", cfg.Telemetry.ServiceName)
	assert.Empty(t, cfg.Telemetry.Endpoint)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
kafka:
  brokers: ["b1:9092", "b2:9092"]
  group_id: spesialist-v2
  start_offset: latest
  retry_backoff: 250ms
workers:
  shards: 4
features:
  automatisering: true
  risikovurdering: true
logger:
  level: debug
`), 0o600))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "spesialist-v2", cfg.Kafka.GroupID)
	assert.Equal(t, 250*time.Millisecond, cfg.Kafka.RetryBackoff)
	assert.Equal(t, 4, cfg.Workers.Shards)
	assert.True(t, cfg.Features[entity.FeatureAutomatisering])
	assert.True(t, cfg.Features[entity.FeatureRisikovurdering])
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kafka:\n  topic: from-file\n"), 0o600))
	t.Setenv("KAFKA_TOPIC", "from-env")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("DATABASE_PATH", "/var/run/spesialist.db")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Kafka.Topic)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "/var/run/spesialist.db", cfg.Database.Path)
	assert.Equal(t, "http://collector:4318", cfg.Telemetry.Endpoint)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no brokers", func(c *Config) { c.Kafka.Brokers = nil }},
		{"no topic", func(c *Config) { c.Kafka.Topic = "" }},
		{"no group", func(c *Config) { c.Kafka.GroupID = "" }},
		{"bad offset", func(c *Config) { c.Kafka.StartOffset = "middle" }},
		{"no database", func(c *Config) { c.Database.Path = "" }},
		{"no shards", func(c *Config) { c.Workers.Shards = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Kafka.StartOffset = "latest"
	cfg.Features = map[string]bool{entity.FeatureAutomatisering: true}

	cc := cfg.ToContainerConfig()

	require.NoError(t, cc.Validate())
	assert.Equal(t, cfg.Kafka.Topic, cc.Subscriber.Topic)
	assert.Equal(t, cfg.Kafka.Topic, cc.Publisher.Topic)
	assert.Equal(t, kafkago.LastOffset, cc.Subscriber.StartOffset)
	assert.Equal(t, cfg.Workers.Shards, cc.Pool.Shards)
	assert.True(t, cc.Features.Enabled(entity.FeatureAutomatisering))
	assert.Equal(t, cfg.Database.Path, cc.Database.Path)
}
