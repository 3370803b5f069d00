package kafka

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/port"
)

// Writer is the part of *kafka.Writer the publisher uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// PublisherConfig holds configuration for the publisher
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// DefaultPublisherConfig returns default configuration
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
}

// NewWriter creates a writer that keys messages onto partitions by hash
// and waits for all in-sync replicas
func NewWriter(config PublisherConfig) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

// Publisher writes outbound messages to the bus
type Publisher struct {
	writer Writer
	logger *zap.Logger
}

var _ port.MessagePublisher = (*Publisher)(nil)

// NewPublisher creates a publisher
func NewPublisher(writer Writer, logger *zap.Logger) *Publisher {
	return &Publisher{writer: writer, logger: logger}
}

// Publish writes msgs in one call so they keep their order within a key
func (p *Publisher) Publish(ctx context.Context, msgs ...port.OutboundMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	out := make([]kafkago.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, kafkago.Message{
			Key:   []byte(m.Key),
			Value: m.Value,
			Headers: []kafkago.Header{
				{Key: "event_name", Value: []byte(m.Name)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		return goerr.Wrap(err, "failed to write messages", goerr.V("count", len(out)))
	}

	p.logger.Debug("Published messages", zap.Int("count", len(out)))
	return nil
}

// Close flushes and closes the writer
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to close kafka writer")
	}
	return nil
}
