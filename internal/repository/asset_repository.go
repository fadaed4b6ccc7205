package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Music-Vine/conductor/internal/models"
)

const assetColumns = `id, title, kind, state, platform, rejection_comments, approved_at, published_at, created_at, updated_at`

// AssetRepository persists asset workflow snapshots.
type AssetRepository struct {
	db *sqlx.DB
}

// NewAssetRepository constructs the repository.
func NewAssetRepository(db *sqlx.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// FindByID fetches an asset snapshot. Missing rows surface as sql.ErrNoRows.
func (r *AssetRepository) FindByID(ctx context.Context, id string) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`
	var asset models.Asset
	if err := r.db.GetContext(ctx, &asset, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find asset: %w", err)
	}
	return &asset, nil
}

// List returns assets matching the filter, most recently updated first.
func (r *AssetRepository) List(ctx context.Context, filter models.AssetFilter) ([]models.Asset, int, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	listQuery := fmt.Sprintf("SELECT %s FROM assets%s ORDER BY updated_at DESC LIMIT %d OFFSET %d", assetColumns, where, limit, offset)

	var assets []models.Asset
	if err := r.db.SelectContext(ctx, &assets, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list assets: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM assets"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count assets: %w", err)
	}
	return assets, total, nil
}

// Update persists the workflow fields of a snapshot.
func (r *AssetRepository) Update(ctx context.Context, asset *models.Asset) error {
	if asset.UpdatedAt.IsZero() {
		asset.UpdatedAt = time.Now().UTC()
	}
	const query = `UPDATE assets SET state = :state, platform = :platform, rejection_comments = :rejection_comments,
	approved_at = :approved_at, published_at = :published_at, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, asset)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check asset update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
