// Package memory holds mutex-guarded in-process stores used for local
// development, mock data and tests.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"

	"github.com/Music-Vine/conductor/internal/models"
)

// AssetStore keeps asset snapshots in memory.
type AssetStore struct {
	mu     sync.RWMutex
	assets map[string]models.Asset
}

// NewAssetStore creates an empty store.
func NewAssetStore() *AssetStore {
	return &AssetStore{assets: make(map[string]models.Asset)}
}

// Put inserts or replaces a snapshot.
func (s *AssetStore) Put(asset models.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[asset.ID] = asset.Clone()
}

// FindByID returns a copy of the snapshot or sql.ErrNoRows.
func (s *AssetStore) FindByID(_ context.Context, id string) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := asset.Clone()
	return &out, nil
}

// List mirrors the postgres filter semantics.
func (s *AssetStore) List(_ context.Context, filter models.AssetFilter) ([]models.Asset, int, error) {
	s.mu.RLock()
	matched := make([]models.Asset, 0, len(s.assets))
	search := strings.ToLower(filter.Search)
	for _, asset := range s.assets {
		if filter.Kind != "" && asset.Kind != filter.Kind {
			continue
		}
		if filter.State != "" && asset.State != filter.State {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(asset.Title), search) {
			continue
		}
		matched = append(matched, asset.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	total := len(matched)
	limit, offset := filter.Limit, filter.Offset
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []models.Asset{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// Update replaces an existing snapshot.
func (s *AssetStore) Update(_ context.Context, asset *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[asset.ID]; !ok {
		return sql.ErrNoRows
	}
	s.assets[asset.ID] = asset.Clone()
	return nil
}
