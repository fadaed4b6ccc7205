package models

import "time"

// AuditActionAssetTransition tags the record written for each single-asset
// workflow action. Bulk runs write a BulkOperation instead.
const AuditActionAssetTransition = "ASSET_TRANSITION"

// AuditLog is one discrete state change with before and after snapshots.
// Source names the component that wrote it.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actorId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	OldValues  []byte    `db:"old_values" json:"oldValues,omitempty"`
	NewValues  []byte    `db:"new_values" json:"newValues,omitempty"`
	Source     string    `db:"source" json:"source"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
