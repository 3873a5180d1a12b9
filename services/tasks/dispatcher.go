package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Dispatcher hands tasks to whatever runs them.
type Dispatcher interface {
	Enqueue(ctx context.Context, task *asynq.Task) error
}

// AsynqDispatcher enqueues onto Redis for the worker process.
type AsynqDispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

// NewAsynqDispatcher builds a dispatcher. The inspector is optional; without it
// an archived task keeps blocking its id until asynq drops it.
func NewAsynqDispatcher(client *asynq.Client, inspector *asynq.Inspector, queue string) *AsynqDispatcher {
	if queue == "" {
		queue = "default"
	}
	return &AsynqDispatcher{client: client, inspector: inspector, queue: queue}
}

// Enqueue treats an id conflict with a live task as success: the same task is
// already waiting to run. A conflicting task that exhausted its retries is
// archived but still holds the id, so it is deleted and the task submitted
// again with a fresh retry budget.
func (d *AsynqDispatcher) Enqueue(ctx context.Context, task *asynq.Task) error {
	err := d.submit(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) && d.inspector != nil {
		cleared, cerr := d.clearFinished(task)
		if cerr != nil {
			return fmt.Errorf("enqueue %s: %w", task.Type(), cerr)
		}
		if cleared {
			err = d.submit(ctx, task)
		}
	}
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

func (d *AsynqDispatcher) submit(ctx context.Context, task *asynq.Task) error {
	_, err := d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue))
	return err
}

// clearFinished frees the id of task when the task holding it will never run
// again. It reports whether the id is free.
func (d *AsynqDispatcher) clearFinished(task *asynq.Task) (bool, error) {
	p, err := ParseBookingPayload(task)
	if err != nil {
		return false, err
	}
	id := TaskID(task.Type(), p.BookingID)
	info, err := d.inspector.GetTaskInfo(d.queue, id)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect task %s: %w", id, err)
	}
	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
		if err := d.inspector.DeleteTask(d.queue, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return false, fmt.Errorf("delete finished task %s: %w", id, err)
		}
		return true, nil
	}
	return false, nil
}

// InlineDispatcher runs tasks in-process on their own goroutine. Used when no
// Redis is configured and in tests. Failed tasks are logged, not retried.
type InlineDispatcher struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	handler asynq.Handler
	wg      sync.WaitGroup
}

func NewInlineDispatcher(logger *zap.Logger) *InlineDispatcher {
	return &InlineDispatcher{logger: logger}
}

// Bind sets the handler, normally the mux from NewServeMux.
func (d *InlineDispatcher) Bind(h asynq.Handler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

func (d *InlineDispatcher) Enqueue(ctx context.Context, task *asynq.Task) error {
	d.mu.RLock()
	h := d.handler
	d.mu.RUnlock()
	if h == nil {
		return fmt.Errorf("inline dispatcher has no handler for %s", task.Type())
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// The request context ends with the response; the task must outlive it.
		if err := h.ProcessTask(context.Background(), task); err != nil {
			d.logger.Warn("inline task failed",
				zap.String("type", task.Type()),
				zap.ByteString("payload", task.Payload()),
				zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every dispatched task, including those enqueued by other
// tasks, has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
