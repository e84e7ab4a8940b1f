package listener

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/logger"
	"github.com/jonesrussell/quartz/internal/matcher"
)

type triggerRegistration struct {
	listener TriggerListener
	matchers []matcher.KeyMatcher
}

type jobRegistration struct {
	listener JobListener
	matchers []matcher.KeyMatcher
}

// Registry holds the three listener registries and performs event fanout.
// Registrations are invoked in insertion order; removal preserves the order
// of the remaining registrations. Registration and fanout may run from
// different goroutines; fanout iterates a snapshot so listener callbacks
// stay outside the lock.
type Registry struct {
	mu         sync.RWMutex
	triggers   []triggerRegistration
	jobs       []jobRegistration
	schedulers []SchedulerListener
	log        logger.Interface
}

// NewRegistry returns an empty registry. A nil log falls back to the no-op
// logger.
func NewRegistry(log logger.Interface) *Registry {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Registry{log: log}
}

// AddTriggerListener registers l. With no matchers the listener receives
// events for every trigger; otherwise every matcher must accept the
// trigger's key.
func (r *Registry) AddTriggerListener(l TriggerListener, matchers ...matcher.KeyMatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, triggerRegistration{listener: l, matchers: matchers})
}

// RemoveTriggerListener removes the registration with the given name,
// reporting whether one was found.
func (r *Registry) RemoveTriggerListener(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.triggers {
		if reg.listener.Name() == name {
			r.triggers = append(r.triggers[:i], r.triggers[i+1:]...)
			return true
		}
	}
	return false
}

// AddJobListener registers l, matched against the job's key.
func (r *Registry) AddJobListener(l JobListener, matchers ...matcher.KeyMatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, jobRegistration{listener: l, matchers: matchers})
}

// RemoveJobListener removes the registration with the given name.
func (r *Registry) RemoveJobListener(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.jobs {
		if reg.listener.Name() == name {
			r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
			return true
		}
	}
	return false
}

// AddSchedulerListener registers l for scheduler-wide events.
func (r *Registry) AddSchedulerListener(l SchedulerListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedulers = append(r.schedulers, l)
}

// RemoveSchedulerListener removes l, reporting whether it was registered.
func (r *Registry) RemoveSchedulerListener(l SchedulerListener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.schedulers {
		if s == l {
			r.schedulers = append(r.schedulers[:i], r.schedulers[i+1:]...)
			return true
		}
	}
	return false
}

// TriggerListeners returns the registered trigger listeners in order.
func (r *Registry) TriggerListeners() []TriggerListener {
	regs := r.triggerRegs()
	out := make([]TriggerListener, len(regs))
	for i, reg := range regs {
		out[i] = reg.listener
	}
	return out
}

// JobListeners returns the registered job listeners in order.
func (r *Registry) JobListeners() []JobListener {
	regs := r.jobRegs()
	out := make([]JobListener, len(regs))
	for i, reg := range regs {
		out[i] = reg.listener
	}
	return out
}

func (r *Registry) triggerRegs() []triggerRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]triggerRegistration, len(r.triggers))
	copy(out, r.triggers)
	return out
}

func (r *Registry) jobRegs() []jobRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]jobRegistration, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func (r *Registry) schedulerRegs() []SchedulerListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SchedulerListener, len(r.schedulers))
	copy(out, r.schedulers)
	return out
}

// NotifyTriggerFired dispatches TriggerFired to every matching trigger
// listener.
func (r *Registry) NotifyTriggerFired(ctx context.Context, ec *domain.JobExecutionContext) {
	key := ec.Trigger.Key
	for _, reg := range r.triggerRegs() {
		if !matcher.MatchAll(key, reg.matchers) {
			continue
		}
		r.isolate(fmt.Sprintf("trigger listener %q triggerFired", reg.listener.Name()), func() error {
			return reg.listener.TriggerFired(ctx, ec)
		})
	}
}

// NotifyVetoJobExecution asks every matching trigger listener whether the
// job should run. Any listener voting to veto wins; a failing listener
// counts as no veto.
func (r *Registry) NotifyVetoJobExecution(ctx context.Context, ec *domain.JobExecutionContext) bool {
	key := ec.Trigger.Key
	vetoed := false
	for _, reg := range r.triggerRegs() {
		if !matcher.MatchAll(key, reg.matchers) {
			continue
		}
		r.isolate(fmt.Sprintf("trigger listener %q vetoJobExecution", reg.listener.Name()), func() error {
			v, err := reg.listener.VetoJobExecution(ctx, ec)
			if v {
				vetoed = true
			}
			return err
		})
	}
	return vetoed
}

// NotifyTriggerMisfired dispatches TriggerMisfired to every matching
// trigger listener.
func (r *Registry) NotifyTriggerMisfired(ctx context.Context, t *domain.Trigger) {
	for _, reg := range r.triggerRegs() {
		if !matcher.MatchAll(t.Key, reg.matchers) {
			continue
		}
		r.isolate(fmt.Sprintf("trigger listener %q triggerMisfired", reg.listener.Name()), func() error {
			return reg.listener.TriggerMisfired(ctx, t)
		})
	}
}

// NotifyTriggerComplete dispatches TriggerComplete to every matching
// trigger listener.
func (r *Registry) NotifyTriggerComplete(ctx context.Context, ec *domain.JobExecutionContext, instr domain.CompletedExecutionInstruction) {
	key := ec.Trigger.Key
	for _, reg := range r.triggerRegs() {
		if !matcher.MatchAll(key, reg.matchers) {
			continue
		}
		r.isolate(fmt.Sprintf("trigger listener %q triggerComplete", reg.listener.Name()), func() error {
			return reg.listener.TriggerComplete(ctx, ec, instr)
		})
	}
}

// NotifyJobToBeExecuted dispatches JobToBeExecuted to every matching job
// listener.
func (r *Registry) NotifyJobToBeExecuted(ctx context.Context, ec *domain.JobExecutionContext) {
	key := ec.JobDetail.Key
	for _, reg := range r.jobRegs() {
		if !matcher.MatchAll(key, reg.matchers) {
			continue
		}
		r.isolate(fmt.Sprintf("job listener %q jobToBeExecuted", reg.listener.Name()), func() error {
			return reg.listener.JobToBeExecuted(ctx, ec)
		})
	}
}

// NotifyJobExecutionVetoed dispatches JobExecutionVetoed to every matching
// job listener.
func (r *Registry) NotifyJobExecutionVetoed(ctx context.Context, ec *domain.JobExecutionContext) {
	key := ec.JobDetail.Key
	for _, reg := range r.jobRegs() {
		if !matcher.MatchAll(key, reg.matchers) {
			continue
		}
		r.isolate(fmt.Sprintf("job listener %q jobExecutionVetoed", reg.listener.Name()), func() error {
			return reg.listener.JobExecutionVetoed(ctx, ec)
		})
	}
}

// NotifyJobWasExecuted dispatches JobWasExecuted to every matching job
// listener.
func (r *Registry) NotifyJobWasExecuted(ctx context.Context, ec *domain.JobExecutionContext, execErr error) {
	key := ec.JobDetail.Key
	for _, reg := range r.jobRegs() {
		if !matcher.MatchAll(key, reg.matchers) {
			continue
		}
		r.isolate(fmt.Sprintf("job listener %q jobWasExecuted", reg.listener.Name()), func() error {
			return reg.listener.JobWasExecuted(ctx, ec, execErr)
		})
	}
}

// NotifySchedulerError dispatches a scheduler-error event. Panicking
// scheduler listeners are recovered and logged; there is nowhere further
// to escalate.
func (r *Registry) NotifySchedulerError(msg string, err error) {
	for _, s := range r.schedulerRegs() {
		r.recoverOnly(func() { s.SchedulerError(msg, err) })
	}
}

// NotifyScheduler dispatches fn to every scheduler listener, recovering
// panics. Used for the non-error scheduler events.
func (r *Registry) NotifyScheduler(fn func(SchedulerListener)) {
	for _, s := range r.schedulerRegs() {
		r.recoverOnly(func() { fn(s) })
	}
}

// isolate runs fn, converting a returned error or panic into a
// scheduler-error event so the remaining fanout and the job's completion
// path proceed.
func (r *Registry) isolate(what string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.NotifySchedulerError(what+" panicked", fmt.Errorf("%s: panic: %v", what, p))
		}
	}()
	if err := fn(); err != nil {
		r.NotifySchedulerError(what+" failed", fmt.Errorf("%s: %w", what, err))
	}
}

func (r *Registry) recoverOnly(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("scheduler listener panicked", "panic", p)
		}
	}()
	fn()
}
