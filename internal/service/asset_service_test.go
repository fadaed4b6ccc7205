package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Music-Vine/conductor/internal/dto"
	"github.com/Music-Vine/conductor/internal/models"
	"github.com/Music-Vine/conductor/internal/repository/memory"
	"github.com/Music-Vine/conductor/internal/workflow"
	appErrors "github.com/Music-Vine/conductor/pkg/errors"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testClock() models.Clock {
	return models.ClockFunc(func() time.Time { return testNow })
}

type auditLoggerStub struct {
	entries []models.AuditLog
	err     error
}

func (s *auditLoggerStub) Log(_ context.Context, entry *models.AuditLog) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, *entry)
	return nil
}

type transitionObserverStub struct {
	results []string
}

func (s *transitionObserverStub) ObserveTransition(_ models.AssetKind, _ models.TransitionAction, result string) {
	s.results = append(s.results, result)
}

type failingAssetStore struct {
	findErr   error
	updateErr error
	asset     models.Asset
}

func (s *failingAssetStore) FindByID(context.Context, string) (*models.Asset, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	a := s.asset
	return &a, nil
}

func (s *failingAssetStore) List(context.Context, models.AssetFilter) ([]models.Asset, int, error) {
	return nil, 0, s.findErr
}

func (s *failingAssetStore) Update(context.Context, *models.Asset) error {
	return s.updateErr
}

func newAssetServiceFixture(t *testing.T, assets ...models.Asset) (*AssetService, *memory.AssetStore, *auditLoggerStub, *transitionObserverStub) {
	t.Helper()
	store := memory.NewAssetStore()
	for _, a := range assets {
		store.Put(a)
	}
	audit := &auditLoggerStub{}
	metrics := &transitionObserverStub{}
	engine := workflow.NewEngine(workflow.WithClock(testClock()), workflow.WithPlatforms("music-vine", "uppbeat"))
	svc := NewAssetService(store, engine, nil, nil, WithAssetAudit(audit), WithTransitionMetrics(metrics))
	return svc, store, audit, metrics
}

func strPtr(s string) *string { return &s }

func TestAssetServiceTransitionPersistsAndAudits(t *testing.T) {
	svc, store, audit, metrics := newAssetServiceFixture(t, models.Asset{ID: "m-1", Kind: models.AssetKindMusic, State: models.StatePlatformAssignment})

	out, err := svc.Transition(context.Background(), "m-1", dto.TransitionRequest{Action: models.ActionApprove, Platform: strPtr("uppbeat")}, "u-1")
	require.NoError(t, err)
	require.Equal(t, models.StateFinalApproval, out.State)

	stored, err := store.FindByID(context.Background(), "m-1")
	require.NoError(t, err)
	require.Equal(t, models.StateFinalApproval, stored.State)
	require.Equal(t, "uppbeat", *stored.Platform)
	require.Equal(t, testNow, stored.UpdatedAt)

	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditActionAssetTransition, audit.entries[0].Action)
	require.Equal(t, "u-1", *audit.entries[0].ActorID)
	require.Contains(t, string(audit.entries[0].OldValues), `"platform_assignment"`)
	require.Contains(t, string(audit.entries[0].NewValues), `"final_approval"`)
	require.Equal(t, []string{"ok"}, metrics.results)
}

func TestAssetServiceTransitionRejectionLeavesStoreUntouched(t *testing.T) {
	svc, store, audit, metrics := newAssetServiceFixture(t, models.Asset{ID: "m-1", Kind: models.AssetKindMusic, State: models.StatePlatformAssignment})

	_, err := svc.Transition(context.Background(), "m-1", dto.TransitionRequest{Action: models.ActionApprove}, "u-1")
	require.ErrorIs(t, err, appErrors.ErrPlatformRequired)
	appErr := appErrors.FromError(err)
	require.Equal(t, 400, appErr.Status)
	require.Equal(t, map[string]string{"currentState": "platform_assignment", "action": "approve"}, appErr.Details)

	stored, err := store.FindByID(context.Background(), "m-1")
	require.NoError(t, err)
	require.Equal(t, models.StatePlatformAssignment, stored.State)
	require.Nil(t, stored.Platform)
	require.Empty(t, audit.entries)
	require.Equal(t, []string{"PLATFORM_REQUIRED"}, metrics.results)
}

func TestAssetServiceTransitionErrorMapping(t *testing.T) {
	svc, _, _, _ := newAssetServiceFixture(t,
		models.Asset{ID: "v-1", Kind: models.AssetKindVideo, State: models.StateRejected},
		models.Asset{ID: "v-2", Kind: models.AssetKindVideo, State: models.StateQualityCheck},
	)
	ctx := context.Background()

	_, err := svc.Transition(ctx, "v-1", dto.TransitionRequest{Action: models.ActionApprove}, "u-1")
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = svc.Transition(ctx, "v-2", dto.TransitionRequest{Action: models.ActionUnpublish}, "u-1")
	require.ErrorIs(t, err, appErrors.ErrInvalidState)

	_, err = svc.Transition(ctx, "v-2", dto.TransitionRequest{Action: models.ActionReject, Comments: "  "}, "u-1")
	require.ErrorIs(t, err, appErrors.ErrCommentsRequired)

	_, err = svc.Transition(ctx, "missing", dto.TransitionRequest{Action: models.ActionApprove}, "u-1")
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Transition(ctx, "v-2", dto.TransitionRequest{Action: "publish"}, "u-1")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAssetServiceBackendFailures(t *testing.T) {
	store := &failingAssetStore{findErr: errors.New("connection refused")}
	svc := NewAssetService(store, workflow.NewEngine(), nil, nil)

	_, err := svc.Get(context.Background(), "a-1")
	require.ErrorIs(t, err, appErrors.ErrBackendUnavailable)

	store.findErr = nil
	store.asset = models.Asset{ID: "a-1", Kind: models.AssetKindVideo, State: models.StateDraft}
	store.updateErr = errors.New("write timeout")
	err = svc.ApplyForBulk(context.Background(), "a-1", models.ActionApprove, workflow.Options{})
	require.ErrorIs(t, err, appErrors.ErrBackendUnavailable)
}

func TestAssetServiceAuditFailureIsReturned(t *testing.T) {
	svc, _, audit, _ := newAssetServiceFixture(t, models.Asset{ID: "v-1", Kind: models.AssetKindVideo, State: models.StateDraft})
	audit.err = appErrors.Clone(appErrors.ErrBackendUnavailable, "audit down")

	_, err := svc.Transition(context.Background(), "v-1", dto.TransitionRequest{Action: models.ActionApprove}, "u-1")
	require.ErrorIs(t, err, appErrors.ErrBackendUnavailable)
}

func TestAssetServiceAuditFailureRestoresPreviousState(t *testing.T) {
	svc, store, audit, metrics := newAssetServiceFixture(t, models.Asset{ID: "v-1", Kind: models.AssetKindVideo, State: models.StateDraft})
	audit.err = appErrors.Clone(appErrors.ErrBackendUnavailable, "audit down")

	_, err := svc.Transition(context.Background(), "v-1", dto.TransitionRequest{Action: models.ActionApprove}, "u-1")
	require.Error(t, err)

	stored, err := store.FindByID(context.Background(), "v-1")
	require.NoError(t, err)
	require.Equal(t, models.StateDraft, stored.State)
	require.Empty(t, audit.entries)
	require.Equal(t, []string{"AUDIT_FAILED"}, metrics.results)

	audit.err = nil
	updated, err := svc.Transition(context.Background(), "v-1", dto.TransitionRequest{Action: models.ActionApprove}, "u-1")
	require.NoError(t, err)
	require.Equal(t, models.StateInitialReview, updated.State)
	require.Len(t, audit.entries, 1)
}

func TestAssetServiceApplyForBulkReturnsRejection(t *testing.T) {
	svc, _, audit, _ := newAssetServiceFixture(t, models.Asset{ID: "t-1", Kind: models.AssetKindTemplate, State: models.StatePublished})

	err := svc.ApplyForBulk(context.Background(), "t-1", models.ActionReject, workflow.Options{Comments: "off brand"})
	rejection, ok := workflow.AsRejection(err)
	require.True(t, ok)
	require.Equal(t, workflow.CodeInvalidTransition, rejection.Code)

	require.NoError(t, svc.ApplyForBulk(context.Background(), "t-1", models.ActionUnpublish, workflow.Options{}))
	require.Empty(t, audit.entries)
}

func TestAssetServiceDetail(t *testing.T) {
	svc, _, _, _ := newAssetServiceFixture(t, models.Asset{ID: "m-1", Kind: models.AssetKindMusic, State: models.StatePlatformAssignment})

	detail, err := svc.Detail(context.Background(), "m-1")
	require.NoError(t, err)
	require.Equal(t, "music_workflow", detail.Workflow)
	require.True(t, detail.RequiresPlatform)
	require.Equal(t, []models.TransitionAction{models.ActionApprove, models.ActionReject}, detail.AvailableActions)
}

func TestAssetServiceList(t *testing.T) {
	store := memory.NewAssetStore()
	memory.Seed(store, nil, testNow)
	svc := NewAssetService(store, nil, nil, nil)

	assets, total, err := svc.List(context.Background(), dto.AssetQuery{Kind: models.AssetKindMusic, State: models.StatePublished})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, assets, 2)

	_, _, err = svc.List(context.Background(), dto.AssetQuery{Kind: "podcast"})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}
