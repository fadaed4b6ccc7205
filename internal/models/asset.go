package models

import "time"

// AssetKind enumerates asset categories.
type AssetKind string

const (
	AssetKindMusic       AssetKind = "music"
	AssetKindSoundEffect AssetKind = "sound_effect"
	AssetKindVideo       AssetKind = "video"
	AssetKindTemplate    AssetKind = "template"
)

// Valid reports whether k is a known asset kind.
func (k AssetKind) Valid() bool {
	switch k {
	case AssetKindMusic, AssetKindSoundEffect, AssetKindVideo, AssetKindTemplate:
		return true
	}
	return false
}

// WorkflowState names a stage of the approval lifecycle.
type WorkflowState string

const (
	StateDraft              WorkflowState = "draft"
	StateInitialReview      WorkflowState = "initial_review"
	StateQualityCheck       WorkflowState = "quality_check"
	StatePlatformAssignment WorkflowState = "platform_assignment"
	StateFinalApproval      WorkflowState = "final_approval"
	StateApproved           WorkflowState = "approved"
	StatePublished          WorkflowState = "published"
	StateRejected           WorkflowState = "rejected"
)

// TransitionAction is an input that moves an asset between states.
type TransitionAction string

const (
	ActionApprove   TransitionAction = "approve"
	ActionReject    TransitionAction = "reject"
	ActionUnpublish TransitionAction = "unpublish"
)

// Valid reports whether a is a known transition action.
func (a TransitionAction) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionUnpublish:
		return true
	}
	return false
}

// Asset is the snapshot of a creative asset moving through its workflow.
// ApprovedAt and PublishedAt are only ever set by workflow transitions.
type Asset struct {
	ID                string        `db:"id" json:"id"`
	Title             string        `db:"title" json:"title"`
	Kind              AssetKind     `db:"kind" json:"kind"`
	State             WorkflowState `db:"state" json:"state"`
	Platform          *string       `db:"platform" json:"platform,omitempty"`
	RejectionComments *string       `db:"rejection_comments" json:"rejectionComments,omitempty"`
	ApprovedAt        *time.Time    `db:"approved_at" json:"approvedAt,omitempty"`
	PublishedAt       *time.Time    `db:"published_at" json:"publishedAt,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updatedAt"`
}

// Clone returns a deep copy so callers never share pointer fields.
func (a Asset) Clone() Asset {
	out := a
	out.Platform = cloneString(a.Platform)
	out.RejectionComments = cloneString(a.RejectionComments)
	out.ApprovedAt = cloneTime(a.ApprovedAt)
	out.PublishedAt = cloneTime(a.PublishedAt)
	return out
}

// AssetFilter constrains asset listing queries.
type AssetFilter struct {
	Kind   AssetKind
	State  WorkflowState
	Search string
	Limit  int
	Offset int
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
