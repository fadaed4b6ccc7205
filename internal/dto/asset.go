package dto

import "github.com/Music-Vine/conductor/internal/models"

// TransitionRequest applies one workflow action to a single asset.
type TransitionRequest struct {
	Action   models.TransitionAction `json:"action" validate:"required,oneof=approve reject unpublish"`
	Comments string                  `json:"comments,omitempty" validate:"max=2000"`
	Platform *string                 `json:"platform,omitempty" validate:"omitempty,max=64"`
}

// AssetDetail is the asset detail response.
type AssetDetail struct {
	models.Asset
	Workflow         string                    `json:"workflow"`
	AvailableActions []models.TransitionAction `json:"availableActions"`
	RequiresPlatform bool                      `json:"requiresPlatform"`
}

// AssetQuery mirrors supported listing filters.
type AssetQuery struct {
	Kind   models.AssetKind     `form:"kind" validate:"omitempty,oneof=music sound_effect video template"`
	State  models.WorkflowState `form:"state"`
	Search string               `form:"search"`
	Limit  int                  `form:"limit" validate:"omitempty,min=1,max=200"`
	Offset int                  `form:"offset" validate:"omitempty,min=0"`
}
