package memory

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Music-Vine/conductor/internal/models"
)

// AuditStore is an append-only log of bulk operations and audit entries.
type AuditStore struct {
	mu   sync.RWMutex
	ops  []models.BulkOperation
	logs []models.AuditLog
}

// NewAuditStore creates an empty store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// CreateAuditLog appends a discrete audit entry.
func (s *AuditStore) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *log)
	return nil
}

// AuditLogs returns a copy of the discrete entries in insertion order.
func (s *AuditStore) AuditLogs() []models.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditLog, len(s.logs))
	copy(out, s.logs)
	return out
}

// CreateBulkOperation appends one record under the write lock, so readers
// never see a partial record.
func (s *AuditStore) CreateBulkOperation(_ context.Context, op *models.BulkOperation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	stored := copyOperation(*op)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, stored)
	return nil
}

func (s *AuditStore) GetBulkOperation(_ context.Context, id string) (*models.BulkOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.ops) - 1; i >= 0; i-- {
		if s.ops[i].ID == id {
			op := copyOperation(s.ops[i])
			return &op, nil
		}
	}
	return nil, sql.ErrNoRows
}

// ListBulkOperations returns matches newest first.
func (s *AuditStore) ListBulkOperations(_ context.Context, filter models.BulkOperationFilter) ([]models.BulkOperation, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BulkOperation, 0, limit)
	for i := len(s.ops) - 1; i >= 0 && len(out) < limit; i-- {
		op := s.ops[i]
		if filter.OperationID != "" && op.ID != filter.OperationID {
			continue
		}
		if filter.Action != "" && op.Action != filter.Action {
			continue
		}
		if filter.ActorID != "" && op.ActorID != filter.ActorID {
			continue
		}
		if filter.Resource != "" && op.EntityType != filter.Resource {
			continue
		}
		out = append(out, copyOperation(op))
	}
	return out, nil
}

func copyOperation(op models.BulkOperation) models.BulkOperation {
	ids := make([]string, len(op.AffectedIDs))
	copy(ids, op.AffectedIDs)
	op.AffectedIDs = ids
	if op.Payload != nil {
		op.Payload = append([]byte(nil), op.Payload...)
	}
	return op
}
