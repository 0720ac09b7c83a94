package geminiwebapi

import (
	"context"
	"sync"
)

// taskRegistry tracks background tasks by identity. Starting a task for an
// identity cancels and replaces any prior task for the same identity, so at
// most one runs per identity at any time. Cancellation is cooperative: tasks
// must watch their context. A task that returns deregisters itself, so
// active reflects whether the goroutine is still running.
type taskRegistry struct {
	mu    sync.Mutex
	tasks map[string]*taskHandle
}

type taskHandle struct {
	cancel context.CancelFunc
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{tasks: make(map[string]*taskHandle)}
}

func (r *taskRegistry) startOrReplace(identity string, run func(ctx context.Context)) {
	r.mu.Lock()
	if prior, ok := r.tasks[identity]; ok {
		prior.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &taskHandle{cancel: cancel}
	r.tasks[identity] = h
	r.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			r.mu.Lock()
			// Deregister only if this task has not been replaced meanwhile.
			if r.tasks[identity] == h {
				delete(r.tasks, identity)
			}
			r.mu.Unlock()
		}()
		run(ctx)
	}()
}

func (r *taskRegistry) cancel(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.tasks[identity]; ok {
		h.cancel()
		delete(r.tasks, identity)
	}
}

func (r *taskRegistry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, h := range r.tasks {
		h.cancel()
		delete(r.tasks, id)
	}
}

func (r *taskRegistry) active(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[identity]
	return ok
}
