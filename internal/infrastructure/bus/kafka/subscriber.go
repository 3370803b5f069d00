// Package kafka connects the service to the shared bus with kafka-go
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/mediator"
	"github.com/sykepenger/spesialist/internal/application/router"
	"github.com/sykepenger/spesialist/internal/infrastructure/worker"
	"github.com/sykepenger/spesialist/pkg/utils"
)

// Reader is the part of *kafka.Reader the subscriber uses
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// MessageHandler handles one raw message. router.Router satisfies it.
type MessageHandler interface {
	OnMessage(ctx context.Context, raw []byte) error
}

// Submitter runs a job on the shard for a key
type Submitter interface {
	Submit(ctx context.Context, key string, job worker.Job) error
}

// SubscriberConfig holds configuration for the subscriber
type SubscriberConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	StartOffset int64
	MaxWait     time.Duration
	// MaxAttempts is how often a failing message is handled before it is
	// committed anyway
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DefaultSubscriberConfig returns default configuration
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		StartOffset:  kafkago.FirstOffset,
		MaxWait:      time.Second,
		MaxAttempts:  3,
		RetryBackoff: time.Second,
	}
}

// NewReader creates a consumer group reader for config. Offsets are
// committed synchronously by the subscriber after each message.
func NewReader(config SubscriberConfig) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     config.Brokers,
		GroupID:     config.GroupID,
		Topic:       config.Topic,
		StartOffset: config.StartOffset,
		MaxWait:     config.MaxWait,
	})
}

// SubscriberStats is a snapshot of subscriber counters
type SubscriberStats struct {
	Fetched      int64     `json:"fetched"`
	Handled      int64     `json:"handled"`
	DecodeErrors int64     `json:"decode_errors"`
	Failed       int64     `json:"failed"`
	LastMessage  time.Time `json:"last_message"`
}

// Subscriber fetches messages and hands each to the shard of its partition.
// The offset is committed once the message is handled (at-least-once).
type Subscriber struct {
	config    SubscriberConfig
	reader    Reader
	handler   MessageHandler
	pool      Submitter
	logger    *zap.Logger
	sensitive *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool

	fetched      atomic.Int64
	handled      atomic.Int64
	decodeErrors atomic.Int64
	failed       atomic.Int64
	lastMessage  atomic.Int64
}

// NewSubscriber creates a subscriber
func NewSubscriber(config SubscriberConfig, reader Reader, handler MessageHandler, pool Submitter, logger, sensitive *zap.Logger) *Subscriber {
	defaults := DefaultSubscriberConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RetryBackoff < 0 {
		config.RetryBackoff = 0
	}
	if sensitive == nil {
		sensitive = zap.NewNop()
	}
	return &Subscriber{
		config:    config,
		reader:    reader,
		handler:   handler,
		pool:      pool,
		logger:    logger,
		sensitive: sensitive,
	}
}

// Name returns the worker name for identification
func (s *Subscriber) Name() string {
	return "KafkaSubscriber"
}

// Start begins the fetch loop
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return worker.ErrAlreadyRunning
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("KafkaSubscriber started",
		zap.String("topic", s.config.Topic),
		zap.String("group_id", s.config.GroupID))

	go s.fetchLoop(ctx)
	return nil
}

// Stop ends the fetch loop and closes the reader. Messages already handed
// to the pool finish when the pool stops; their commits fail once the reader
// is closed, so the group redelivers them.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	if err := s.reader.Close(); err != nil {
		return goerr.Wrap(err, "failed to close kafka reader")
	}

	s.logger.Info("KafkaSubscriber stopped",
		zap.Int64("fetched", s.fetched.Load()),
		zap.Int64("handled", s.handled.Load()),
		zap.Int64("failed", s.failed.Load()))
	return nil
}

// IsRunning reports whether the fetch loop runs
func (s *Subscriber) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Stats returns the subscriber counters
func (s *Subscriber) Stats() SubscriberStats {
	stats := SubscriberStats{
		Fetched:      s.fetched.Load(),
		Handled:      s.handled.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		Failed:       s.failed.Load(),
	}
	if last := s.lastMessage.Load(); last > 0 {
		stats.LastMessage = time.Unix(0, last)
	}
	return stats
}

func (s *Subscriber) fetchLoop(ctx context.Context) {
	defer close(s.done)

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("Failed to fetch message", zap.Error(err))
			if !sleep(ctx, s.config.RetryBackoff) {
				return
			}
			continue
		}
		s.fetched.Add(1)
		s.lastMessage.Store(time.Now().UnixNano())

		key := fmt.Sprintf("%s/%d", msg.Topic, msg.Partition)
		if err := s.pool.Submit(ctx, key, func(jobCtx context.Context) { s.handle(jobCtx, msg) }); err != nil {
			if ctx.Err() != nil {
				return
			}
			// without a pool the message is redelivered after a restart
			s.logger.Error("Failed to submit message", zap.String("shard_key", key), zap.Error(err))
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, msg kafkago.Message) {
	logger := s.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset))

	var err error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		err = s.handler.OnMessage(ctx, msg.Value)
		if !retryable(ctx, err) {
			break
		}
		logger.Warn("Failed to handle message", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < s.config.MaxAttempts && !sleep(ctx, s.config.RetryBackoff) {
			break
		}
	}

	var decodeErr *router.DecodeError
	switch {
	case err == nil:
		s.handled.Add(1)
	case errors.As(err, &decodeErr):
		s.decodeErrors.Add(1)
		logger.Error("Message does not satisfy its shape, see tjenestekall", zap.String("shape", decodeErr.Shape))
		s.sensitive.Error("Message does not satisfy its shape",
			zap.String("shape", decodeErr.Shape),
			zap.Strings("problems", decodeErr.Problems),
			zap.ByteString("message", msg.Value))
	case mediator.IsChainFailure(err):
		s.failed.Add(1)
		logger.Error("Command chain failed, message is not retried", utils.ErrorFields(err)...)
	default:
		s.failed.Add(1)
		logger.Error("Giving up on message", utils.ErrorFields(err)...)
		s.sensitive.Error("Giving up on message", zap.ByteString("message", msg.Value), zap.Error(err))
	}

	if err := s.reader.CommitMessages(ctx, msg); err != nil {
		logger.Error("Failed to commit offset", zap.Error(err))
	}
}

// retryable reports whether handling err again may succeed. Decode errors
// and failed chains are final: a failed chain is stored as FAILED, and a new
// attempt would start a new chain.
func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var decodeErr *router.DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	return !mediator.IsChainFailure(err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
