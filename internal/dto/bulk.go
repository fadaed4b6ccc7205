package dto

import "github.com/Music-Vine/conductor/internal/models"

// BulkPayload carries the action parameters shared by every item of a run.
type BulkPayload struct {
	Comments string  `json:"comments,omitempty" validate:"max=2000"`
	Platform *string `json:"platform,omitempty" validate:"omitempty,max=64"`
}

// BulkRequest starts a bulk run over an ordered list of entity ids.
type BulkRequest struct {
	Action     string            `json:"action" validate:"required"`
	EntityType models.EntityType `json:"entityType" validate:"required,oneof=asset user"`
	IDs        []string          `json:"ids" validate:"required,min=1,dive,required"`
	Payload    BulkPayload       `json:"payload"`
}

// BulkJobAccepted is returned when a run is queued in the background.
type BulkJobAccepted struct {
	OperationID string `json:"operationId"`
	Status      string `json:"status"`
}
