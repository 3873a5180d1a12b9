package tasks

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
)

func newRedisQueue(t *testing.T) (*asynq.Client, *asynq.Inspector) {
	t.Helper()
	mr := miniredis.RunT(t)
	opt := asynq.RedisClientOpt{Addr: mr.Addr()}
	client := asynq.NewClient(opt)
	inspector := asynq.NewInspector(opt)
	t.Cleanup(func() {
		_ = inspector.Close()
		_ = client.Close()
	})
	return client, inspector
}

func pendingCount(t *testing.T, inspector *asynq.Inspector) int {
	t.Helper()
	pending, err := inspector.ListPendingTasks("default")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	return len(pending)
}

func TestAsynqDispatcherKeepsOnePendingTask(t *testing.T) {
	client, inspector := newRedisQueue(t)
	d := NewAsynqDispatcher(client, inspector, "default")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		task, err := NewBookingTask(TypeCreatePaymentIntent, "b-1", 3)
		if err != nil {
			t.Fatalf("NewBookingTask: %v", err)
		}
		if err := d.Enqueue(ctx, task); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if n := pendingCount(t, inspector); n != 1 {
		t.Fatalf("expected one pending task, got %d", n)
	}
}

func TestAsynqDispatcherRequeuesArchivedTask(t *testing.T) {
	client, inspector := newRedisQueue(t)
	d := NewAsynqDispatcher(client, inspector, "default")
	ctx := context.Background()

	task, err := NewBookingTask(TypeCreatePaymentIntent, "b-1", 3)
	if err != nil {
		t.Fatalf("NewBookingTask: %v", err)
	}
	if err := d.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := TaskID(TypeCreatePaymentIntent, "b-1")
	if err := inspector.ArchiveTask("default", id); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n := pendingCount(t, inspector); n != 0 {
		t.Fatalf("expected archived task to leave the pending list, got %d", n)
	}

	if err := d.Enqueue(ctx, task); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	info, err := inspector.GetTaskInfo("default", id)
	if err != nil {
		t.Fatalf("task info: %v", err)
	}
	if info.State != asynq.TaskStatePending || info.Retried != 0 {
		t.Fatalf("expected a fresh pending task, got state=%v retried=%d", info.State, info.Retried)
	}
}

func TestAsynqDispatcherWithoutInspectorIgnoresConflict(t *testing.T) {
	client, inspector := newRedisQueue(t)
	d := NewAsynqDispatcher(client, nil, "default")
	ctx := context.Background()

	task, _ := NewBookingTask(TypeSendReminder, "b-2", 3)
	if err := d.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := inspector.ArchiveTask("default", TaskID(TypeSendReminder, "b-2")); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := d.Enqueue(ctx, task); err != nil {
		t.Fatalf("conflict should not surface: %v", err)
	}
	if n := pendingCount(t, inspector); n != 0 {
		t.Fatalf("expected no pending task without an inspector, got %d", n)
	}
}
