package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/quartz/internal/domain"
)

// loop is the dedicated scheduling goroutine. It acquires due triggers in
// batches sized by worker availability, waits out the gap to their fire
// times, fires them and hands the bundles to the pool. Store mutations wake
// it early through signal.
type loop struct {
	s *Scheduler

	mu        sync.Mutex
	candidate *time.Time

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

func newLoop(s *Scheduler) *loop {
	return &loop{
		s:    s,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (l *loop) start() {
	l.wg.Add(1)
	go l.run()
}

func (l *loop) stop() {
	close(l.done)
	l.wg.Wait()
}

// signal wakes the loop. A non-nil candidate records the earliest fire time
// a store mutation just produced, so a timed wait can decide whether the
// batch it holds is still the soonest work available.
func (l *loop) signal(candidate *time.Time) {
	l.mu.Lock()
	if candidate != nil {
		if l.candidate == nil || candidate.Before(*l.candidate) {
			l.candidate = domain.TimePtr(*candidate)
		}
	} else {
		l.candidate = domain.TimePtr(time.Time{})
	}
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// takeCandidate returns and clears the pending signal candidate. A zero
// time means "recheck immediately".
func (l *loop) takeCandidate() *time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.candidate
	l.candidate = nil
	return c
}

func (l *loop) run() {
	defer l.wg.Done()
	ctx := context.Background()
	log := l.s.log.With("component", "scheduling_loop")
	log.Debug("scheduling loop started")

	for {
		select {
		case <-l.done:
			log.Debug("scheduling loop stopped")
			return
		default:
		}

		if l.s.State() != StateStarted {
			// Standby: park until a lifecycle change wakes us.
			l.sleep(l.s.cfg.IdleWaitTime)
			continue
		}

		free, err := l.s.pool.BlockUntilAvailable(ctx)
		if err != nil {
			// Pool is draining; shutdown is imminent.
			l.sleep(100 * time.Millisecond)
			continue
		}
		batchSize := free
		if batchSize > l.s.cfg.MaxBatchSize {
			batchSize = l.s.cfg.MaxBatchSize
		}

		now := time.Now()
		triggers, err := l.s.store.AcquireNextTriggers(ctx, now.Add(l.s.cfg.IdleWaitTime), batchSize, l.s.cfg.BatchTimeWindow)
		if err != nil {
			l.s.listeners.NotifySchedulerError("failed to acquire next triggers", err)
			log.Error("trigger acquisition failed", "error", err)
			l.sleep(l.s.cfg.DBRetryInterval)
			continue
		}
		if len(triggers) == 0 {
			l.sleep(l.s.cfg.IdleWaitTime)
			continue
		}

		if !l.awaitFireTime(triggers) {
			// Released: state changed or an earlier trigger appeared.
			l.releaseAll(ctx, triggers)
			continue
		}

		results, err := l.s.store.TriggersFired(ctx, triggers)
		if err != nil {
			l.s.listeners.NotifySchedulerError("failed to fire acquired triggers", err)
			log.Error("trigger firing failed", "error", err)
			l.releaseAll(ctx, triggers)
			l.sleep(l.s.cfg.DBRetryInterval)
			continue
		}

		for i, res := range results {
			if res.Err != nil {
				l.s.listeners.NotifySchedulerError("trigger could not be fired", res.Err)
				log.Error("trigger could not be fired", "trigger", triggers[i].Key.String(), "error", res.Err)
				continue
			}
			if res.Bundle == nil {
				// Vanished, paused or completed between acquire and fire.
				continue
			}
			bundle := res.Bundle
			if err := l.s.pool.Submit(ctx, func(taskCtx context.Context) {
				l.s.runJob(taskCtx, bundle)
			}); err != nil {
				l.s.listeners.NotifySchedulerError("failed to dispatch fire bundle", err)
				log.Error("fire bundle dispatch failed", "trigger", bundle.Trigger.Key.String(), "error", err)
			}
		}
	}
}

// awaitFireTime blocks until the batch's first fire time (less half the
// misfire threshold) arrives. It returns false when the batch should be
// released instead of fired: the scheduler left STARTED, or a store
// mutation signaled a trigger due before this batch.
func (l *loop) awaitFireTime(triggers []*domain.Trigger) bool {
	first := triggers[0].NextFireTime
	if first == nil {
		return true
	}
	target := first.Add(-l.s.cfg.MisfireThreshold / 2)

	for {
		remaining := time.Until(target)
		if remaining <= 0 {
			return l.s.State() == StateStarted
		}
		if remaining > time.Second {
			remaining = time.Second
		}

		timer := time.NewTimer(remaining)
		select {
		case <-l.done:
			timer.Stop()
			return false
		case <-l.wake:
			timer.Stop()
			if l.s.State() != StateStarted {
				return false
			}
			if c := l.takeCandidate(); c != nil && c.Before(*first) {
				return false
			}
		case <-timer.C:
		}
	}
}

func (l *loop) releaseAll(ctx context.Context, triggers []*domain.Trigger) {
	for _, t := range triggers {
		if err := l.s.store.ReleaseAcquiredTrigger(ctx, t); err != nil {
			l.s.listeners.NotifySchedulerError("failed to release acquired trigger", err)
		}
	}
}

// sleep waits up to d, returning early on a wakeup signal or shutdown.
func (l *loop) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-l.done:
	case <-l.wake:
	case <-timer.C:
	}
}
