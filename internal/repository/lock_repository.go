package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Music-Vine/conductor/internal/models"
)

const lockKeyPrefix = "conductor:lock:"

// releaseScript deletes a lock only while it still belongs to the owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes a lock's expiry only while it still belongs to the
// owner. ARGV[2] is the ttl in milliseconds.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// LockRepository guards entities targeted by a bulk run with per-entity
// redis keys so two runs never touch the same entity at once.
type LockRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewLockRepository constructs a lock repository. A nil client disables
// locking.
func NewLockRepository(client *redis.Client, logger *zap.Logger) *LockRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockRepository{client: client, logger: logger}
}

// LockKey builds the redis key for one entity.
func LockKey(entity models.EntityType, id string) string {
	return lockKeyPrefix + string(entity) + ":" + id
}

// Acquire takes every lock or none. The returned slice lists the ids already
// held by another owner.
func (r *LockRepository) Acquire(ctx context.Context, entity models.EntityType, ids []string, owner string, ttl time.Duration) ([]string, error) {
	if r.client == nil {
		return nil, nil
	}

	acquired := make([]string, 0, len(ids))
	var conflicts []string
	for _, id := range ids {
		ok, err := r.client.SetNX(ctx, LockKey(entity, id), owner, ttl).Result()
		if err != nil {
			r.release(ctx, entity, acquired, owner)
			return nil, fmt.Errorf("redis setnx %s: %w", LockKey(entity, id), err)
		}
		if !ok {
			conflicts = append(conflicts, id)
			continue
		}
		acquired = append(acquired, id)
	}

	if len(conflicts) > 0 {
		r.release(ctx, entity, acquired, owner)
		return conflicts, nil
	}
	return nil, nil
}

// Extend refreshes the ttl of the owner's locks on ids. Keys that expired or
// were taken over are skipped.
func (r *LockRepository) Extend(ctx context.Context, entity models.EntityType, ids []string, owner string, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	for _, id := range ids {
		key := LockKey(entity, id)
		if err := extendScript.Run(ctx, r.client, []string{key}, owner, ttl.Milliseconds()).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("redis extend %s: %w", key, err)
		}
	}
	return nil
}

// Release drops the owner's locks on ids.
func (r *LockRepository) Release(ctx context.Context, entity models.EntityType, ids []string, owner string) error {
	if r.client == nil {
		return nil
	}
	return r.release(ctx, entity, ids, owner)
}

func (r *LockRepository) release(ctx context.Context, entity models.EntityType, ids []string, owner string) error {
	var firstErr error
	for _, id := range ids {
		key := LockKey(entity, id)
		if err := releaseScript.Run(ctx, r.client, []string{key}, owner).Err(); err != nil && err != redis.Nil {
			r.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("redis release %s: %w", key, err)
			}
		}
	}
	return firstErr
}

// Close releases the underlying Redis connection if present.
func (r *LockRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
