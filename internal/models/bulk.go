package models

import (
	"encoding/json"
	"time"
)

// EntityType identifies what a bulk operation targets.
type EntityType string

const (
	EntityAsset EntityType = "asset"
	EntityUser  EntityType = "user"
)

// BulkStatus is the terminal status of a bulk run.
type BulkStatus string

const (
	BulkStatusCompleted BulkStatus = "completed"
	BulkStatusFailed    BulkStatus = "failed"
)

// User bulk actions.
const (
	BulkActionActivate   = "activate"
	BulkActionDeactivate = "deactivate"
)

// BulkOperation is the single audit record written per bulk run.
// AffectedIDs holds only items confirmed processed, in request order.
type BulkOperation struct {
	ID             string          `db:"id" json:"operationId"`
	Action         string          `db:"action" json:"action"`
	EntityType     EntityType      `db:"entity_type" json:"entityType"`
	ActorID        string          `db:"actor_id" json:"actorId"`
	RequestedCount int             `db:"requested_count" json:"requestedCount"`
	AffectedIDs    []string        `db:"-" json:"affectedIds"`
	Status         BulkStatus      `db:"status" json:"status"`
	ErrorMessage   *string         `db:"error_message" json:"errorMessage,omitempty"`
	FailedItem     *string         `db:"failed_item" json:"failedItem,omitempty"`
	Payload        json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// BulkOperationFilter narrows the audit read path. Empty fields match all.
type BulkOperationFilter struct {
	OperationID string
	Action      string
	ActorID     string
	Resource    EntityType
	Limit       int
}
