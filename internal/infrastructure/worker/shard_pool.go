package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrPoolNotRunning is returned by Submit before Start or after Stop
	ErrPoolNotRunning = goerr.New("shard pool is not running")
)

// Job is one unit of work submitted to the pool
type Job func(ctx context.Context)

// ShardPoolConfig holds configuration for the shard pool
type ShardPoolConfig struct {
	// Shards is the number of goroutines; it bounds concurrency
	Shards int
	// QueueSize is the buffer per shard
	QueueSize int
}

// DefaultShardPoolConfig returns default configuration
func DefaultShardPoolConfig() ShardPoolConfig {
	return ShardPoolConfig{
		Shards:    8,
		QueueSize: 64,
	}
}

// ShardStats is a snapshot of pool counters
type ShardStats struct {
	Shards    int   `json:"shards"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Panics    int64 `json:"panics"`
}

// ShardPool runs jobs on a fixed set of goroutines. Jobs with the same key
// always land on the same shard and run in submission order.
type ShardPool struct {
	config ShardPoolConfig
	logger *zap.Logger

	mu      sync.RWMutex
	queues  []chan Job
	group   *errgroup.Group
	running bool

	submitted atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64
}

// NewShardPool creates a shard pool
func NewShardPool(config ShardPoolConfig, logger *zap.Logger) *ShardPool {
	defaults := DefaultShardPoolConfig()
	if config.Shards <= 0 {
		config.Shards = defaults.Shards
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	return &ShardPool{config: config, logger: logger}
}

// Name returns the worker name for identification
func (p *ShardPool) Name() string {
	return "ShardPool"
}

// Start launches one goroutine per shard
func (p *ShardPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}

	p.queues = make([]chan Job, p.config.Shards)
	p.group, ctx = errgroup.WithContext(ctx)
	for i := range p.queues {
		queue := make(chan Job, p.config.QueueSize)
		p.queues[i] = queue
		p.group.Go(func() error {
			for job := range queue {
				p.run(ctx, job)
			}
			return nil
		})
	}
	p.running = true

	p.logger.Info("ShardPool started",
		zap.Int("shards", p.config.Shards),
		zap.Int("queue_size", p.config.QueueSize))
	return nil
}

// Stop closes the queues and waits for queued jobs to finish
func (p *ShardPool) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	for _, q := range p.queues {
		close(q)
	}
	group := p.group
	p.mu.Unlock()

	err := group.Wait()
	p.logger.Info("ShardPool stopped",
		zap.Int64("submitted", p.submitted.Load()),
		zap.Int64("completed", p.completed.Load()))
	return err
}

// Submit queues job on the shard for key. It blocks while that shard's
// queue is full, or until ctx is done.
func (p *ShardPool) Submit(ctx context.Context, key string, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrPoolNotRunning
	}

	queue := p.queues[p.ShardFor(key)]
	select {
	case queue <- job:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShardFor returns the shard index for key
func (p *ShardPool) ShardFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(p.config.Shards))
}

// Stats returns the pool counters
func (p *ShardPool) Stats() ShardStats {
	return ShardStats{
		Shards:    p.config.Shards,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}

func (p *ShardPool) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("Job panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		p.completed.Add(1)
	}()
	job(ctx)
}
