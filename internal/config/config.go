package config

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/viper"

	"github.com/sykepenger/spesialist/internal/domain/entity"
)

// Config holds all application configuration
type Config struct {
	Server          ServerConfig    `mapstructure:"server"`
	Database        DatabaseConfig  `mapstructure:"database"`
	Kafka           KafkaConfig     `mapstructure:"kafka"`
	Workers         WorkersConfig   `mapstructure:"workers"`
	Features        map[string]bool `mapstructure:"features"`
	Logger          LoggerConfig    `mapstructure:"logger"`
	SensitiveLogger LoggerConfig    `mapstructure:"sensitive_logger"`
	Telemetry       TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// KafkaConfig holds bus configuration
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
	// StartOffset is "earliest" or "latest", used when the group has no offset
	StartOffset  string        `mapstructure:"start_offset"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// WorkersConfig holds shard pool configuration
type WorkersConfig struct {
	Shards    int `mapstructure:"shards"`
	QueueSize int `mapstructure:"queue_size"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	// Endpoint is the OTLP HTTP URL; tracing is off when empty
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// Load loads configuration from file and environment variables.
// An empty configPath uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", configPath))
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal config")
	}
	cfg.Kafka.Brokers = splitBrokers(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid configuration")
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/spesialist.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "tbd.rapid.v1")
	v.SetDefault("kafka.group_id", "spesialist")
	v.SetDefault("kafka.start_offset", "earliest")
	v.SetDefault("kafka.max_wait", time.Second)
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.retry_backoff", time.Second)
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", 10*time.Millisecond)
	v.SetDefault("kafka.write_timeout", 10*time.Second)

	// Worker defaults
	v.SetDefault("workers.shards", 8)
	v.SetDefault("workers.queue_size", 64)

	// Features are off unless configured
	v.SetDefault("features."+entity.FeatureRisikovurdering, false)
	v.SetDefault("features."+entity.FeatureAutomatisering, false)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
	v.SetDefault("sensitive_logger.level", "info")
	v.SetDefault("sensitive_logger.output_path", "logs/tjenestekall.log")
	v.SetDefault("sensitive_logger.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "spesialist")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	_ = v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	_ = v.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("telemetry.service_name", "OTEL_SERVICE_NAME")
}

// splitBrokers accepts both a list and a comma separated string
func splitBrokers(in []string) []string {
	var out []string
	for _, b := range in {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return goerr.New("kafka.brokers is required")
	}
	if c.Kafka.Topic == "" {
		return goerr.New("kafka.topic is required")
	}
	if c.Kafka.GroupID == "" {
		return goerr.New("kafka.group_id is required")
	}
	switch c.Kafka.StartOffset {
	case "earliest", "latest":
	default:
		return goerr.New("kafka.start_offset must be earliest or latest", goerr.V("start_offset", c.Kafka.StartOffset))
	}

	if c.Database.Path == "" {
		return goerr.New("database.path is required")
	}

	if c.Workers.Shards <= 0 {
		return goerr.New("workers.shards must be positive", goerr.V("shards", c.Workers.Shards))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return goerr.New("server.port is out of range", goerr.V("port", c.Server.Port))
	}

	return nil
}
