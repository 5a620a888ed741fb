package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kayz/tgbridge/internal/logger"
	"github.com/kayz/tgbridge/internal/metrics"
)

// ErrShuttingDown is returned by Go once Close has been called.
var ErrShuttingDown = errors.New("service is shutting down")

// Dispatcher runs background tasks with bounded concurrency. Go never
// blocks the caller; queued tasks wait for a free slot in their own
// goroutine.
type Dispatcher struct {
	slots chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{slots: make(chan struct{}, workers)}
}

// Go schedules fn. A panic in fn is logged and contained.
func (d *Dispatcher) Go(name string, fn func()) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrShuttingDown
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.slots <- struct{}{}
		metrics.TasksInFlight.Inc()
		defer func() {
			metrics.TasksInFlight.Dec()
			<-d.slots
			if r := recover(); r != nil {
				logger.L().Error("task_panic", zap.String("task", name), zap.Any("panic", r))
			}
		}()
		fn()
	}()
	return nil
}

// Close stops accepting tasks and waits for the running ones until ctx is
// done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
