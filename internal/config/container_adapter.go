package config

import (
	kafkago "github.com/segmentio/kafka-go"

	"github.com/sykepenger/spesialist/internal/container"
	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/infrastructure/bus/kafka"
	"github.com/sykepenger/spesialist/internal/infrastructure/worker"
)

// ToContainerConfig converts the application Config to a container.Config.
func (c *Config) ToContainerConfig() *container.Config {
	startOffset := kafkago.FirstOffset
	if c.Kafka.StartOffset == "latest" {
		startOffset = kafkago.LastOffset
	}

	features := make(command.Features, len(c.Features))
	for name, on := range c.Features {
		features[name] = on
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Subscriber: kafka.SubscriberConfig{
			Brokers:      c.Kafka.Brokers,
			Topic:        c.Kafka.Topic,
			GroupID:      c.Kafka.GroupID,
			StartOffset:  startOffset,
			MaxWait:      c.Kafka.MaxWait,
			MaxAttempts:  c.Kafka.MaxAttempts,
			RetryBackoff: c.Kafka.RetryBackoff,
		},
		Publisher: kafka.PublisherConfig{
			Brokers:      c.Kafka.Brokers,
			Topic:        c.Kafka.Topic,
			BatchSize:    c.Kafka.BatchSize,
			BatchTimeout: c.Kafka.BatchTimeout,
			WriteTimeout: c.Kafka.WriteTimeout,
		},
		Pool: worker.ShardPoolConfig{
			Shards:    c.Workers.Shards,
			QueueSize: c.Workers.QueueSize,
		},
		Features: features,
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}
