package dto

import "github.com/Music-Vine/conductor/internal/models"

// BulkOperationQuery mirrors the audit listing filters.
type BulkOperationQuery struct {
	OperationID string            `form:"operationId"`
	Action      string            `form:"action"`
	ActorID     string            `form:"actorId"`
	Resource    models.EntityType `form:"resource" validate:"omitempty,oneof=asset user"`
	Limit       int               `form:"limit"`
}
