package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Music-Vine/conductor/internal/models"
)

const (
	bulkOperationColumns       = `id, action, entity_type, actor_id, requested_count, affected_ids, status, error_message, failed_item, payload, created_at`
	bulkOperationSelectColumns = `id, action, entity_type, actor_id, requested_count, affected_ids, status, error_message, failed_item, COALESCE(payload, '{}'::jsonb) AS payload, created_at`
)

// AuditRepository appends audit records. It exposes no update or delete.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

type bulkOperationRow struct {
	models.BulkOperation
	AffectedIDs pq.StringArray `db:"affected_ids"`
}

func (row bulkOperationRow) toModel() models.BulkOperation {
	op := row.BulkOperation
	op.AffectedIDs = []string(row.AffectedIDs)
	if op.AffectedIDs == nil {
		op.AffectedIDs = []string{}
	}
	return op
}

// CreateAuditLog stores a discrete audit log entry.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, actor_id, action, resource, resource_id, old_values, new_values, source, created_at) VALUES (:id, :actor_id, :action, :resource, :resource_id, :old_values, :new_values, :source, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// CreateBulkOperation appends the summary record of one bulk run in a
// single statement.
func (r *AuditRepository) CreateBulkOperation(ctx context.Context, op *models.BulkOperation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	payload := []byte(op.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	const query = `INSERT INTO bulk_operations (` + bulkOperationColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(ctx, query,
		op.ID,
		op.Action,
		op.EntityType,
		op.ActorID,
		op.RequestedCount,
		pq.StringArray(op.AffectedIDs),
		op.Status,
		op.ErrorMessage,
		op.FailedItem,
		payload,
		op.CreatedAt,
	); err != nil {
		return fmt.Errorf("create bulk operation: %w", err)
	}
	return nil
}

// GetBulkOperation fetches one bulk operation record.
func (r *AuditRepository) GetBulkOperation(ctx context.Context, id string) (*models.BulkOperation, error) {
	query := `SELECT ` + bulkOperationSelectColumns + ` FROM bulk_operations WHERE id = $1`
	var row bulkOperationRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get bulk operation: %w", err)
	}
	op := row.toModel()
	return &op, nil
}

// ListBulkOperations returns matching records, newest first.
func (r *AuditRepository) ListBulkOperations(ctx context.Context, filter models.BulkOperationFilter) ([]models.BulkOperation, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + bulkOperationSelectColumns + ` FROM bulk_operations`)

	conditions := make([]string, 0, 4)
	if filter.OperationID != "" {
		args = append(args, filter.OperationID)
		conditions = append(conditions, fmt.Sprintf("id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Resource != "" {
		args = append(args, filter.Resource)
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	var rows []bulkOperationRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list bulk operations: %w", err)
	}
	ops := make([]models.BulkOperation, 0, len(rows))
	for _, row := range rows {
		ops = append(ops, row.toModel())
	}
	return ops, nil
}
