package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jonesrussell/quartz/internal/domain"
)

// JobFactory builds a fresh job instance for one execution.
type JobFactory func() domain.Job

// JobRegistry maps job type names to factories. Job details reference
// their implementation by type name, so every type a store hands back
// must be registered before the scheduler starts firing.
type JobRegistry struct {
	mu        sync.RWMutex
	factories map[string]JobFactory
}

// NewJobRegistry creates an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{factories: make(map[string]JobFactory)}
}

// RegisterJob binds a factory to a job type name. Registering the same
// name twice is an error; use ReplaceJob to overwrite deliberately.
func (r *JobRegistry) RegisterJob(jobType string, factory JobFactory) error {
	if jobType == "" {
		return fmt.Errorf("job type name is empty")
	}
	if factory == nil {
		return fmt.Errorf("job factory for %q is nil", jobType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[jobType]; ok {
		return fmt.Errorf("job type %q already registered", jobType)
	}
	r.factories[jobType] = factory
	return nil
}

// ReplaceJob binds a factory, overwriting any previous registration.
func (r *JobRegistry) ReplaceJob(jobType string, factory JobFactory) error {
	if jobType == "" {
		return fmt.Errorf("job type name is empty")
	}
	if factory == nil {
		return fmt.Errorf("job factory for %q is nil", jobType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[jobType] = factory
	return nil
}

// NewJob instantiates a job of the given type.
func (r *JobRegistry) NewJob(jobType string) (domain.Job, error) {
	r.mu.RLock()
	factory, ok := r.factories[jobType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("job type %q is not registered", jobType)
	}
	return factory(), nil
}

// JobTypes returns the registered type names, sorted.
func (r *JobRegistry) JobTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
