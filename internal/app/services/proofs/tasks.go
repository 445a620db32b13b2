package proofs

import (
	"context"
	"sync"
	"time"

	"github.com/markaproof/marka/pkg/logger"
)

// Tasks runs detached background work. A spawned task gets a fresh
// background context, so it keeps running after the originating request's
// response has been sent; Wait lets shutdown drain in-flight tasks.
type Tasks struct {
	wg  sync.WaitGroup
	log *logger.Logger
}

// NewTasks creates a task spawner.
func NewTasks(log *logger.Logger) *Tasks {
	if log == nil {
		log = logger.NewDefault("tasks")
	}
	return &Tasks{log: log}
}

// Go runs fn on its own goroutine. The call site holds no handle to the
// task; its outcome is observable only through whatever state fn writes.
func (t *Tasks) Go(name string, fn func(ctx context.Context)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.log.WithField("task", name).Errorf("background task panicked: %v", r)
			}
		}()
		fn(context.Background())
	}()
}

// Wait blocks until all spawned tasks finish or the timeout elapses.
func (t *Tasks) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
