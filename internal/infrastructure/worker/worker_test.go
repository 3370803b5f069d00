package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWorker struct {
	name     string
	log      *[]string
	startErr error
}

func (w *recordingWorker) Start(context.Context) error {
	*w.log = append(*w.log, "start:"+w.name)
	return w.startErr
}

func (w *recordingWorker) Stop() error {
	*w.log = append(*w.log, "stop:"+w.name)
	return nil
}

func (w *recordingWorker) Name() string { return w.name }

func TestWorkerManager_StartAndStopOrder(t *testing.T) {
	var log []string
	m := NewWorkerManager(zap.NewNop())
	m.Register(&recordingWorker{name: "pool", log: &log})
	m.Register(&recordingWorker{name: "consumer", log: &log})

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.ErrorIs(t, m.StartAll(context.Background()), ErrAlreadyRunning)

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"start:pool", "start:consumer", "stop:consumer", "stop:pool"}, log)
	assert.Equal(t, 2, m.GetWorkerCount())
}

func TestWorkerManager_StartFailureStopsStarted(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	m := NewWorkerManager(zap.NewNop())
	m.Register(&recordingWorker{name: "pool", log: &log})
	m.Register(&recordingWorker{name: "consumer", log: &log, startErr: boom})

	err := m.StartAll(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"start:pool", "start:consumer", "stop:pool"}, log)
}

func TestShardPool_SameKeyRunsInOrder(t *testing.T) {
	p := NewShardPool(ShardPoolConfig{Shards: 4, QueueSize: 2}, zap.NewNop())
	require.NoError(t, p.Start(context.Background()))

	var mu sync.Mutex
	got := map[string][]int{}
	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b", "c"} {
			require.NoError(t, p.Submit(context.Background(), key, func(context.Context) {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
			}))
		}
	}
	require.NoError(t, p.Stop())

	for _, key := range []string{"a", "b", "c"} {
		require.Len(t, got[key], 50)
		for i, v := range got[key] {
			assert.Equal(t, i, v, "key %s out of order", key)
		}
	}
	stats := p.Stats()
	assert.Equal(t, int64(150), stats.Submitted)
	assert.Equal(t, int64(150), stats.Completed)
}

func TestShardPool_ShardForIsStable(t *testing.T) {
	p := NewShardPool(ShardPoolConfig{Shards: 16}, zap.NewNop())
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("topic/%d", i)
		shard := p.ShardFor(key)
		assert.Equal(t, shard, p.ShardFor(key))
		assert.GreaterOrEqual(t, shard, 0)
		assert.Less(t, shard, 16)
	}
}

func TestShardPool_SubmitWhenStopped(t *testing.T) {
	p := NewShardPool(DefaultShardPoolConfig(), zap.NewNop())

	assert.ErrorIs(t, p.Submit(context.Background(), "k", func(context.Context) {}), ErrPoolNotRunning)

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	assert.ErrorIs(t, p.Submit(context.Background(), "k", func(context.Context) {}), ErrPoolNotRunning)
}

func TestShardPool_PanicIsRecovered(t *testing.T) {
	p := NewShardPool(ShardPoolConfig{Shards: 1, QueueSize: 4}, zap.NewNop())
	require.NoError(t, p.Start(context.Background()))

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), "k", func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), "k", func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shard stopped after a panic")
	}
	require.NoError(t, p.Stop())
	assert.Equal(t, int64(1), p.Stats().Panics)
}

func TestShardPool_SubmitHonoursContext(t *testing.T) {
	p := NewShardPool(ShardPoolConfig{Shards: 1, QueueSize: 1}, zap.NewNop())
	require.NoError(t, p.Start(context.Background()))

	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), "k", func(context.Context) { <-release }))
	// fills the queue while the first job blocks
	require.NoError(t, p.Submit(context.Background(), "k", func(context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, "k", func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Stop())
}
