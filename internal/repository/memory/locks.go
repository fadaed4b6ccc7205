package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Music-Vine/conductor/internal/models"
)

type lockEntry struct {
	owner     string
	expiresAt time.Time
}

// LockStore is the in-process counterpart of the redis lock repository,
// used when redis locks are disabled.
type LockStore struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

// NewLockStore creates an empty lock table.
func NewLockStore() *LockStore {
	return &LockStore{locks: make(map[string]lockEntry), now: time.Now}
}

// Acquire takes every lock or none and reports the ids held elsewhere.
func (s *LockStore) Acquire(_ context.Context, entity models.EntityType, ids []string, owner string, ttl time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var conflicts []string
	for _, id := range ids {
		entry, ok := s.locks[lockKey(entity, id)]
		if ok && entry.owner != owner && now.Before(entry.expiresAt) {
			conflicts = append(conflicts, id)
		}
	}
	if len(conflicts) > 0 {
		return conflicts, nil
	}
	for _, id := range ids {
		s.locks[lockKey(entity, id)] = lockEntry{owner: owner, expiresAt: now.Add(ttl)}
	}
	return nil, nil
}

// Extend pushes the expiry of the owner's locks on ids to ttl from now.
// Locks taken over by another owner are left alone.
func (s *LockStore) Extend(_ context.Context, entity models.EntityType, ids []string, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt := s.now().Add(ttl)
	for _, id := range ids {
		key := lockKey(entity, id)
		if entry, ok := s.locks[key]; ok && entry.owner == owner {
			entry.expiresAt = expiresAt
			s.locks[key] = entry
		}
	}
	return nil
}

// Release drops the owner's locks on ids.
func (s *LockStore) Release(_ context.Context, entity models.EntityType, ids []string, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		key := lockKey(entity, id)
		if entry, ok := s.locks[key]; ok && entry.owner == owner {
			delete(s.locks, key)
		}
	}
	return nil
}

func lockKey(entity models.EntityType, id string) string {
	return string(entity) + ":" + id
}
