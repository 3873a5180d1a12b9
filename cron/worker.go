package cron

import (
	"context"
	"fmt"
	"time"

	"washly/config"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RedisOpt is the connection of the task queue database.
func RedisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisTaskDB,
	}
}

// NewTaskServer builds the asynq server that runs booking tasks. Tasks that
// exhaust their retries are logged; the booking keeps the recorded failure
// until an operator retries it.
func NewTaskServer(cfg config.Config, logger *zap.Logger) *asynq.Server {
	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(RedisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
		Logger:      logger.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			fields := []zap.Field{
				zap.String("type", task.Type()),
				zap.ByteString("payload", task.Payload()),
				zap.Int("retried", retried),
				zap.Error(err),
			}
			if retried >= maxRetry {
				logger.Error("Task exhausted its retries", fields...)
				return
			}
			logger.Warn("Task failed, will retry", fields...)
		}),
	})
}

// StartTaskServer runs srv in the background, retrying startup with backoff.
func StartTaskServer(srv *asynq.Server, handler asynq.Handler, logger *zap.Logger) {
	go func() {
		const maxAttempts = 5
		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := srv.Run(handler)
			if err == nil {
				return
			}
			logger.Error("Task worker failed to start",
				zap.Int("attempt", attempts),
				zap.Int("maxAttempts", maxAttempts),
				zap.Error(err))
			if attempts == maxAttempts {
				logger.Fatal("Task worker could not start, giving up")
			}
			time.Sleep(time.Duration(attempts*2) * time.Second)
		}
	}()
}

// Sweeper is the periodic work of the lifecycle coordinator.
type Sweeper interface {
	SendDueReminders(ctx context.Context) (int, error)
	CompletePastBookings(ctx context.Context) (int, error)
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	s *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

func sweepJob(ctx context.Context, name string, run func(context.Context) (int, error), logger *zap.Logger) func() {
	return func() {
		n, err := run(ctx)
		if err != nil {
			logger.Error("Sweep failed", zap.String("sweep", name), zap.Int("processed", n), zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("Sweep finished", zap.String("sweep", name), zap.Int("processed", n))
		}
	}
}

// StartSweeps schedules the reminder and completion sweeps. Overlapping runs
// of the same sweep are skipped. Stop the returned scheduler on shutdown.
func StartSweeps(ctx context.Context, cfg config.Config, s Sweeper, logger *zap.Logger) (*cron.Cron, error) {
	cl := zapCronLogger{s: logger.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(cfg.ReminderCron, sweepJob(ctx, "reminders", s.SendDueReminders, logger)); err != nil {
		return nil, fmt.Errorf("REMINDER_CRON %q: %w", cfg.ReminderCron, err)
	}
	if _, err := c.AddFunc(cfg.CompletionCron, sweepJob(ctx, "completion", s.CompletePastBookings, logger)); err != nil {
		return nil, fmt.Errorf("COMPLETION_CRON %q: %w", cfg.CompletionCron, err)
	}
	c.Start()
	return c, nil
}
