package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/quartz/internal/worker"
)

func newPool(t *testing.T, size int) *worker.Pool {
	t.Helper()
	p, err := worker.NewPool(worker.Config{PoolSize: size, DrainTimeout: time.Second}, nil)
	require.NoError(t, err)
	return p
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     worker.Config
		wantErr bool
	}{
		{"defaults", worker.DefaultConfig(), false},
		{"zero pool size", worker.Config{PoolSize: 0, DrainTimeout: time.Second}, true},
		{"oversized pool", worker.Config{PoolSize: worker.MaxPoolSize + 1, DrainTimeout: time.Second}, true},
		{"zero drain timeout", worker.Config{PoolSize: 1}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := worker.NewPool(tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPool_Lifecycle(t *testing.T) {
	t.Parallel()

	p := newPool(t, 2)
	assert.Equal(t, worker.PoolStateStopped, p.State())
	assert.False(t, p.IsRunning())

	require.NoError(t, p.Start())
	assert.True(t, p.IsRunning())
	assert.ErrorIs(t, p.Start(), worker.ErrPoolAlreadyRunning)

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, worker.PoolStateStopped, p.State())
	assert.ErrorIs(t, p.Stop(context.Background()), worker.ErrPoolNotRunning)
}

func TestPool_SubmitRunsTasks(t *testing.T) {
	t.Parallel()

	p := newPool(t, 4)
	require.NoError(t, p.Start())

	var (
		mu   sync.Mutex
		seen []int
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			defer wg.Done()
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		}))
	}
	wg.Wait()

	assert.Len(t, seen, 8)
	require.NoError(t, p.Stop(context.Background()))
	assert.EqualValues(t, 8, p.TasksRun())
}

func TestPool_SubmitRejectedWhenStopped(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)
	err := p.Submit(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, worker.ErrPoolNotRunning)
}

func TestPool_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	p := newPool(t, 2)
	require.NoError(t, p.Start())

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			started <- struct{}{}
			<-release
		}))
	}
	<-started
	<-started

	assert.Equal(t, 2, p.BusyCount())
	assert.Equal(t, 0, p.FreeCount())

	// With every slot taken, Submit blocks until its context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Stop(context.Background()))
}

func TestPool_BlockUntilAvailable(t *testing.T) {
	t.Parallel()

	p := newPool(t, 3)
	require.NoError(t, p.Start())

	n, err := p.BlockUntilAvailable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	release := make(chan struct{})
	started := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			started <- struct{}{}
			<-release
		}))
	}
	for i := 0; i < 3; i++ {
		<-started
	}

	// A full pool blocks; freeing a slot unblocks the wait.
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(release)
	}()
	n, err = p.BlockUntilAvailable(context.Background())
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	require.NoError(t, p.Stop(context.Background()))
}

func TestPool_StopWaitsForInflightTasks(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)
	require.NoError(t, p.Start())

	done := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(done)
	}))
	<-started

	require.NoError(t, p.Stop(context.Background()))
	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the in-flight task finished")
	}
}
