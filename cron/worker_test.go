package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"washly/config"

	"go.uber.org/zap"
)

type countingSweeper struct {
	reminders   atomic.Int32
	completions atomic.Int32
	fail        error
}

func (s *countingSweeper) SendDueReminders(context.Context) (int, error) {
	s.reminders.Add(1)
	return 2, s.fail
}

func (s *countingSweeper) CompletePastBookings(context.Context) (int, error) {
	s.completions.Add(1)
	return 0, s.fail
}

func TestSweepJobRunsSweep(t *testing.T) {
	s := &countingSweeper{}
	sweepJob(context.Background(), "reminders", s.SendDueReminders, zap.NewNop())()
	s.fail = errors.New("store down")
	sweepJob(context.Background(), "completion", s.CompletePastBookings, zap.NewNop())()
	if s.reminders.Load() != 1 || s.completions.Load() != 1 {
		t.Fatalf("expected each sweep once, got %d/%d", s.reminders.Load(), s.completions.Load())
	}
}

func TestStartSweepsRejectsBadSchedule(t *testing.T) {
	cfg := config.Defaults()
	cfg.ReminderCron = "every now and then"
	if _, err := StartSweeps(context.Background(), cfg, &countingSweeper{}, zap.NewNop()); err == nil {
		t.Fatalf("expected invalid cron spec to fail")
	}
}

func TestStartSweepsSchedulesBoth(t *testing.T) {
	c, err := StartSweeps(context.Background(), config.Defaults(), &countingSweeper{}, zap.NewNop())
	if err != nil {
		t.Fatalf("StartSweeps: %v", err)
	}
	defer c.Stop()
	if n := len(c.Entries()); n != 2 {
		t.Fatalf("expected 2 scheduled sweeps, got %d", n)
	}
}

func TestRedisOptUsesTaskDB(t *testing.T) {
	cfg := config.Defaults()
	opt := RedisOpt(cfg)
	if opt.DB != cfg.RedisTaskDB || opt.Addr != cfg.RedisAddr {
		t.Fatalf("unexpected redis options %+v", opt)
	}
}
