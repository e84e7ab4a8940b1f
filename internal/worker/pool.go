package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/quartz/internal/logger"
)

// PoolState represents the current state of the pool.
type PoolState int32

const (
	// PoolStateStopped means the pool is not running.
	PoolStateStopped PoolState = iota

	// PoolStateRunning means the pool is actively running tasks.
	PoolStateRunning

	// PoolStateDraining means the pool is shutting down gracefully.
	PoolStateDraining
)

// String returns the string representation of a pool state.
func (s PoolState) String() string {
	switch s {
	case PoolStateStopped:
		return "stopped"
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

var (
	// ErrPoolAlreadyRunning is returned by Start on a running pool.
	ErrPoolAlreadyRunning = errors.New("pool is already running")

	// ErrPoolNotRunning is returned when the pool is stopped or draining.
	ErrPoolNotRunning = errors.New("pool is not running")

	// ErrPoolStopping is returned by Submit once draining has begun.
	ErrPoolStopping = errors.New("pool is stopping")
)

// Task is one unit of work submitted to the pool.
type Task func(ctx context.Context)

// Pool runs tasks with bounded concurrency. The scheduling loop sizes its
// acquire batches by FreeCount, so a full pool naturally throttles
// acquisition instead of queueing fires.
type Pool struct {
	config Config
	log    logger.Interface
	state  atomic.Int32
	sem    chan struct{}
	wg     sync.WaitGroup
	stopCh chan struct{}

	tasksRun atomic.Int64
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, log logger.Interface) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	p := &Pool{
		config: cfg,
		log:    log,
		sem:    make(chan struct{}, cfg.PoolSize),
		stopCh: make(chan struct{}),
	}
	p.state.Store(int32(PoolStateStopped))
	return p, nil
}

// Start starts the worker pool.
func (p *Pool) Start() error {
	if !p.state.CompareAndSwap(int32(PoolStateStopped), int32(PoolStateRunning)) {
		return ErrPoolAlreadyRunning
	}
	p.log.Info("worker pool started", "poolSize", p.config.PoolSize)
	return nil
}

// Stop drains the pool, waiting for in-flight tasks up to the drain
// timeout.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateRunning), int32(PoolStateDraining)) {
		return ErrPoolNotRunning
	}
	p.log.Info("worker pool draining", "busy", p.BusyCount())
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.log.Warn("worker pool stop cancelled")
	case <-time.After(p.config.DrainTimeout):
		p.log.Warn("worker pool drain timeout exceeded")
	}
	p.state.Store(int32(PoolStateStopped))
	return nil
}

// Submit runs the task on a pool slot, blocking until one frees up.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if p.State() != PoolStateRunning {
		return ErrPoolNotRunning
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return ErrPoolStopping
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		task(ctx)
		p.tasksRun.Add(1)
	}()
	return nil
}

// BlockUntilAvailable blocks until at least one slot is free, the run
// signal fires, or the context ends. It reports the free slot count.
func (p *Pool) BlockUntilAvailable(ctx context.Context) (int, error) {
	for {
		if n := p.FreeCount(); n > 0 {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-p.stopCh:
			return 0, ErrPoolStopping
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// State returns the current pool state.
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// IsRunning reports whether the pool is accepting tasks.
func (p *Pool) IsRunning() bool {
	return p.State() == PoolStateRunning
}

// Size returns the pool size.
func (p *Pool) Size() int {
	return p.config.PoolSize
}

// BusyCount returns the number of occupied slots.
func (p *Pool) BusyCount() int {
	return len(p.sem)
}

// FreeCount returns the number of free slots.
func (p *Pool) FreeCount() int {
	return p.Size() - p.BusyCount()
}

// TasksRun returns the total number of tasks completed.
func (p *Pool) TasksRun() int64 {
	return p.tasksRun.Load()
}
