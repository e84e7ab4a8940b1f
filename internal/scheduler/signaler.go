package scheduler

import (
	"context"
	"time"

	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/listener"
	"github.com/jonesrussell/quartz/internal/store"
)

var _ store.SchedulerSignaler = (*storeSignaler)(nil)

// storeSignaler is the store's callback channel into the scheduler. It
// forwards wakeups to the scheduling loop and store-detected trigger events
// to the listener registries.
type storeSignaler struct {
	s *Scheduler
}

func (sig *storeSignaler) SignalSchedulingChange(candidateNewTime *time.Time) {
	sig.s.loop.signal(candidateNewTime)
}

func (sig *storeSignaler) NotifyTriggerListenersMisfired(t *domain.Trigger) {
	sig.s.listeners.NotifyTriggerMisfired(context.Background(), t)
}

func (sig *storeSignaler) NotifySchedulerListenersFinalized(t *domain.Trigger) {
	sig.s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.TriggerFinalized(t) })
}

func (sig *storeSignaler) NotifySchedulerListenersError(msg string, err error) {
	sig.s.listeners.NotifySchedulerError(msg, err)
}
