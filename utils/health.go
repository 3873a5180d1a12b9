package utils

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// HealthStatus represents current status of external services. Unconfigured
// dependencies are omitted.
type HealthStatus struct {
	Mongo     *bool     `json:"mongo,omitempty"`
	Postgres  *bool     `json:"postgres,omitempty"`
	Redis     []bool    `json:"redis"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Healthy reports whether every configured dependency answered.
func (h HealthStatus) Healthy() bool {
	if h.Mongo != nil && !*h.Mongo {
		return false
	}
	if h.Postgres != nil && !*h.Postgres {
		return false
	}
	for _, ok := range h.Redis {
		if !ok {
			return false
		}
	}
	return true
}

// HealthTargets are the dependencies the monitor pings. Nil entries are skipped.
type HealthTargets struct {
	Redis    []*redis.Client
	Mongo    *mongo.Client
	Postgres *gorm.DB
}

var (
	currentHealth HealthStatus
	mu            sync.RWMutex
)

// GetHealthStatus returns latest stored health snapshot.
func GetHealthStatus() HealthStatus {
	mu.RLock()
	defer mu.RUnlock()
	return currentHealth
}

// CheckHealth pings every target once and stores the snapshot.
func CheckHealth(ctx context.Context, targets HealthTargets) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := HealthStatus{Redis: []bool{}, CheckedAt: time.Now().UTC()}
	for _, client := range targets.Redis {
		status.Redis = append(status.Redis, client.Ping(ctx).Err() == nil)
	}
	if targets.Mongo != nil {
		ok := targets.Mongo.Ping(ctx, nil) == nil
		status.Mongo = &ok
	}
	if targets.Postgres != nil {
		ok := false
		if sqlDB, err := targets.Postgres.DB(); err == nil {
			ok = sqlDB.PingContext(ctx) == nil
		}
		status.Postgres = &ok
	}

	mu.Lock()
	currentHealth = status
	mu.Unlock()
	return status
}

// StartHealthMonitor performs periodic health checks until ctx is done.
func StartHealthMonitor(ctx context.Context, targets HealthTargets, every time.Duration) {
	CheckHealth(ctx, targets)
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				CheckHealth(ctx, targets)
			}
		}
	}()
}
