// Package workflow holds the asset approval state machine: one flat
// transition table per workflow variant and an engine that applies actions
// to asset snapshots.
package workflow

import "github.com/Music-Vine/conductor/internal/models"

// Variant identifies which transition table governs an asset kind.
type Variant string

const (
	VariantMusic  Variant = "music_workflow"
	VariantSimple Variant = "simple_workflow"
)

type edge struct {
	from   models.WorkflowState
	action models.TransitionAction
}

// table maps (state, action) to the resulting state. Tables are never
// mutated after package initialisation.
type table map[edge]models.WorkflowState

var musicTable = table{
	{models.StateDraft, models.ActionApprove}:              models.StateInitialReview,
	{models.StateInitialReview, models.ActionApprove}:      models.StateQualityCheck,
	{models.StateQualityCheck, models.ActionApprove}:       models.StatePlatformAssignment,
	{models.StatePlatformAssignment, models.ActionApprove}: models.StateFinalApproval,
	{models.StateFinalApproval, models.ActionApprove}:      models.StatePublished,

	{models.StateDraft, models.ActionReject}:              models.StateRejected,
	{models.StateInitialReview, models.ActionReject}:      models.StateRejected,
	{models.StateQualityCheck, models.ActionReject}:       models.StateRejected,
	{models.StatePlatformAssignment, models.ActionReject}: models.StateRejected,
	{models.StateFinalApproval, models.ActionReject}:      models.StateRejected,

	{models.StatePublished, models.ActionUnpublish}: models.StateDraft,
}

var simpleTable = table{
	{models.StateDraft, models.ActionApprove}:         models.StateInitialReview,
	{models.StateInitialReview, models.ActionApprove}: models.StateQualityCheck,
	{models.StateQualityCheck, models.ActionApprove}:  models.StateApproved,
	{models.StateApproved, models.ActionApprove}:      models.StatePublished,

	{models.StateDraft, models.ActionReject}:         models.StateRejected,
	{models.StateInitialReview, models.ActionReject}: models.StateRejected,
	{models.StateQualityCheck, models.ActionReject}:  models.StateRejected,
	{models.StateApproved, models.ActionReject}:      models.StateRejected,

	{models.StatePublished, models.ActionUnpublish}: models.StateDraft,
}

// VariantFor returns the workflow variant for an asset kind.
func VariantFor(kind models.AssetKind) Variant {
	if kind == models.AssetKindMusic {
		return VariantMusic
	}
	return VariantSimple
}

func tableFor(kind models.AssetKind) table {
	if VariantFor(kind) == VariantMusic {
		return musicTable
	}
	return simpleTable
}

// Transition looks up the state reached from state via action for kind.
// The boolean is false when the table has no such edge.
func Transition(kind models.AssetKind, state models.WorkflowState, action models.TransitionAction) (models.WorkflowState, bool) {
	next, ok := tableFor(kind)[edge{from: state, action: action}]
	return next, ok
}

// States lists the states of a kind's workflow in lifecycle order.
func States(kind models.AssetKind) []models.WorkflowState {
	if VariantFor(kind) == VariantMusic {
		return []models.WorkflowState{
			models.StateDraft,
			models.StateInitialReview,
			models.StateQualityCheck,
			models.StatePlatformAssignment,
			models.StateFinalApproval,
			models.StatePublished,
			models.StateRejected,
		}
	}
	return []models.WorkflowState{
		models.StateDraft,
		models.StateInitialReview,
		models.StateQualityCheck,
		models.StateApproved,
		models.StatePublished,
		models.StateRejected,
	}
}
