package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Music-Vine/conductor/internal/dto"
	"github.com/Music-Vine/conductor/internal/models"
	appErrors "github.com/Music-Vine/conductor/pkg/errors"
)

type auditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	CreateBulkOperation(ctx context.Context, op *models.BulkOperation) error
	GetBulkOperation(ctx context.Context, id string) (*models.BulkOperation, error)
	ListBulkOperations(ctx context.Context, filter models.BulkOperationFilter) ([]models.BulkOperation, error)
}

// AuditService is the append-only audit log for bulk runs and discrete
// transitions.
type AuditService struct {
	store   auditStore
	logger  *zap.Logger
	listMax int
}

// NewAuditService constructs the service. listMax caps read queries.
func NewAuditService(store auditStore, logger *zap.Logger, listMax int) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if listMax <= 0 {
		listMax = 200
	}
	return &AuditService{store: store, logger: logger, listMax: listMax}
}

// Record implements bulk.Recorder.
func (s *AuditService) Record(ctx context.Context, op *models.BulkOperation) error {
	if op == nil {
		return appErrors.Clone(appErrors.ErrValidation, "bulk operation is required")
	}
	if op.AffectedIDs == nil {
		op.AffectedIDs = []string{}
	}
	if err := s.store.CreateBulkOperation(ctx, op); err != nil {
		return appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to record bulk operation")
	}
	s.logger.Info("bulk operation recorded",
		zap.String("operation_id", op.ID),
		zap.String("status", string(op.Status)),
		zap.Int("affected", len(op.AffectedIDs)))
	return nil
}

// Log persists a discrete audit entry.
func (s *AuditService) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry == nil {
		return nil
	}
	if entry.Source == "" {
		entry.Source = "conductor"
	}
	if err := s.store.CreateAuditLog(ctx, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to write audit log")
	}
	return nil
}

// List returns matching bulk operations, newest first.
func (s *AuditService) List(ctx context.Context, query dto.BulkOperationQuery) ([]models.BulkOperation, error) {
	resource := models.EntityType(strings.ToLower(strings.TrimSpace(string(query.Resource))))
	if resource != "" && resource != models.EntityAsset && resource != models.EntityUser {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resource must be asset or user")
	}
	filter := models.BulkOperationFilter{
		OperationID: strings.TrimSpace(query.OperationID),
		Action:      strings.TrimSpace(query.Action),
		ActorID:     strings.TrimSpace(query.ActorID),
		Resource:    resource,
		Limit:       s.clampLimit(query.Limit),
	}
	ops, err := s.store.ListBulkOperations(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to list bulk operations")
	}
	if ops == nil {
		ops = []models.BulkOperation{}
	}
	return ops, nil
}

// Get fetches one bulk operation by id.
func (s *AuditService) Get(ctx context.Context, id string) (*models.BulkOperation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "operation id is required")
	}
	op, err := s.store.GetBulkOperation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bulk operation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to load bulk operation")
	}
	return op, nil
}

func (s *AuditService) clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > s.listMax {
		return s.listMax
	}
	return limit
}
