package cron

import (
	"context"
	"time"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/redis"
)

// Lock coordinates exclusive job runs across instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory builds the lock guarding one job.
type LockFactory func(job string) (Lock, error)

// RedisLocks scopes one lease per job and environment so two deployments
// sharing a redis never block each other.
func RedisLocks(client *redis.Client, env string, ttl time.Duration) LockFactory {
	return func(job string) (Lock, error) {
		return client.NewLock(client.LockKey("cron", env, job), ttl)
	}
}
