// Package container provides dependency injection and lifecycle management
// for spesialist. Components start in dependency order and close in reverse.
package container

import (
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/infrastructure/bus/kafka"
	"github.com/sykepenger/spesialist/internal/infrastructure/worker"
)

// Config holds all configuration for the Container.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Subscriber configures the inbound side of the bus
	Subscriber kafka.SubscriberConfig

	// Publisher configures the outbound side of the bus
	Publisher kafka.PublisherConfig

	// Pool configures the shard pool that handles inbound messages
	Pool worker.ShardPoolConfig

	// Features are copied into every new execution context
	Features command.Features

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	subscriber := kafka.DefaultSubscriberConfig()
	subscriber.Brokers = []string{"localhost:9092"}
	subscriber.Topic = "tbd.rapid.v1"
	subscriber.GroupID = "spesialist"

	publisher := kafka.DefaultPublisherConfig()
	publisher.Brokers = subscriber.Brokers
	publisher.Topic = subscriber.Topic

	return &Config{
		Database: DatabaseConfig{
			Path:         "data/spesialist.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Subscriber: subscriber,
		Publisher:  publisher,
		Pool:       worker.DefaultShardPoolConfig(),
		Features:   command.Features{},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return goerr.New("database.path is required")
	}
	if c.Subscriber.Topic == "" || c.Publisher.Topic == "" {
		return goerr.New("kafka topic is required")
	}
	if c.Subscriber.GroupID == "" {
		return goerr.New("kafka group id is required")
	}
	return nil
}
