package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Music-Vine/conductor/internal/models"
)

// UserStore keeps users in memory.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// NewUserStore creates an empty store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]models.User)}
}

// Put inserts or replaces a user.
func (s *UserStore) Put(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *UserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

func (s *UserStore) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	s.mu.RLock()
	matched := make([]models.User, 0, len(s.users))
	search := strings.ToLower(filter.Search)
	for _, user := range s.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && user.Active != *filter.Active {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(user.Email), search) && !strings.Contains(strings.ToLower(user.FullName), search) {
			continue
		}
		matched = append(matched, user)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	total := len(matched)
	start := (page - 1) * pageSize
	if start >= total {
		return []models.User{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// SetActive flips the active flag.
func (s *UserStore) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.Active = active
	user.UpdatedAt = at
	s.users[id] = user
	return nil
}
