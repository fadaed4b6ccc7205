package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Music-Vine/conductor/internal/dto"
	"github.com/Music-Vine/conductor/internal/models"
	"github.com/Music-Vine/conductor/internal/workflow"
	appErrors "github.com/Music-Vine/conductor/pkg/errors"
)

type assetStore interface {
	FindByID(ctx context.Context, id string) (*models.Asset, error)
	List(ctx context.Context, filter models.AssetFilter) ([]models.Asset, int, error)
	Update(ctx context.Context, asset *models.Asset) error
}

type auditLogger interface {
	Log(ctx context.Context, entry *models.AuditLog) error
}

type transitionObserver interface {
	ObserveTransition(kind models.AssetKind, action models.TransitionAction, result string)
}

// AssetService applies workflow actions to stored assets.
type AssetService struct {
	store     assetStore
	engine    *workflow.Engine
	audit     auditLogger
	metrics   transitionObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// AssetServiceOption configures optional collaborators.
type AssetServiceOption func(*AssetService)

// WithAssetAudit attaches the discrete audit log written per transition.
func WithAssetAudit(audit auditLogger) AssetServiceOption {
	return func(s *AssetService) {
		s.audit = audit
	}
}

// WithTransitionMetrics attaches a metrics observer.
func WithTransitionMetrics(metrics transitionObserver) AssetServiceOption {
	return func(s *AssetService) {
		s.metrics = metrics
	}
}

// NewAssetService constructs the service.
func NewAssetService(store assetStore, engine *workflow.Engine, validate *validator.Validate, logger *zap.Logger, opts ...AssetServiceOption) *AssetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if engine == nil {
		engine = workflow.NewEngine()
	}
	svc := &AssetService{store: store, engine: engine, validator: validate, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// List returns a page of assets with the total match count.
func (s *AssetService) List(ctx context.Context, query dto.AssetQuery) ([]models.Asset, int, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid asset query")
	}
	assets, total, err := s.store.List(ctx, models.AssetFilter{
		Kind:   query.Kind,
		State:  query.State,
		Search: strings.TrimSpace(query.Search),
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to list assets")
	}
	if assets == nil {
		assets = []models.Asset{}
	}
	return assets, total, nil
}

// Get returns the asset snapshot.
func (s *AssetService) Get(ctx context.Context, id string) (*models.Asset, error) {
	return s.lookup(ctx, id)
}

// Detail returns the snapshot together with the actions currently offered.
func (s *AssetService) Detail(ctx context.Context, id string) (*dto.AssetDetail, error) {
	asset, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.AssetDetail{
		Asset:            *asset,
		Workflow:         string(workflow.VariantFor(asset.Kind)),
		AvailableActions: s.engine.AvailableActions(*asset),
		RequiresPlatform: workflow.RequiresPlatform(*asset),
	}, nil
}

// Transition applies one action to one asset and writes its audit entry.
func (s *AssetService) Transition(ctx context.Context, id string, req dto.TransitionRequest, actorID string) (*models.Asset, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}

	before, after, err := s.apply(ctx, id, req.Action, workflow.Options{Platform: req.Platform, Comments: req.Comments})
	if err != nil {
		if rejection, ok := workflow.AsRejection(err); ok {
			if before != nil {
				s.observe(before.Kind, req.Action, string(rejection.Code))
			}
			return nil, rejectionError(rejection)
		}
		return nil, err
	}

	if err := s.emitAudit(ctx, before, after, req.Action, actorID); err != nil {
		s.restore(ctx, before)
		s.observe(after.Kind, req.Action, "AUDIT_FAILED")
		return nil, err
	}
	s.observe(after.Kind, req.Action, "ok")

	s.logger.Info("asset transitioned",
		zap.String("asset_id", after.ID),
		zap.String("action", string(req.Action)),
		zap.String("from", string(before.State)),
		zap.String("to", string(after.State)),
		zap.String("actor_id", actorID))
	return after, nil
}

// ApplyForBulk applies an action as one item of a bulk run. Rejections are
// returned as *workflow.Rejection so the run reports their code. No per-item
// audit entry is written.
func (s *AssetService) ApplyForBulk(ctx context.Context, id string, action models.TransitionAction, opts workflow.Options) error {
	_, after, err := s.apply(ctx, id, action, opts)
	if err != nil {
		return err
	}
	s.logger.Debug("bulk item transitioned", zap.String("asset_id", id), zap.String("state", string(after.State)))
	return nil
}

func (s *AssetService) apply(ctx context.Context, id string, action models.TransitionAction, opts workflow.Options) (*models.Asset, *models.Asset, error) {
	before, err := s.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	next, err := s.engine.Apply(*before, action, opts)
	if err != nil {
		return before, nil, err
	}

	if err := s.store.Update(ctx, &next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return before, nil, appErrors.Clone(appErrors.ErrNotFound, "asset not found")
		}
		return before, nil, appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to persist asset")
	}
	return before, &next, nil
}

// restore puts the pre-transition snapshot back after the audit write
// failed, so a transition is either stored with its audit entry or not at all.
func (s *AssetService) restore(ctx context.Context, before *models.Asset) {
	if err := s.store.Update(context.WithoutCancel(ctx), before); err != nil {
		s.logger.Error("restore asset after audit failure",
			zap.String("asset_id", before.ID),
			zap.String("state", string(before.State)),
			zap.Error(err))
	}
}

func (s *AssetService) lookup(ctx context.Context, id string) (*models.Asset, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "asset id is required")
	}
	asset, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "asset not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to load asset")
	}
	return asset, nil
}

func (s *AssetService) emitAudit(ctx context.Context, before, after *models.Asset, action models.TransitionAction, actorID string) error {
	if s.audit == nil {
		return nil
	}
	oldValues, _ := json.Marshal(before)
	newValues, _ := json.Marshal(after)
	entry := &models.AuditLog{
		ActorID:    optionalString(actorID),
		Action:     models.AuditActionAssetTransition,
		Resource:   "asset:" + string(action),
		ResourceID: optionalString(after.ID),
		OldValues:  oldValues,
		NewValues:  newValues,
		Source:     "asset-service",
	}
	return s.audit.Log(ctx, entry)
}

func (s *AssetService) observe(kind models.AssetKind, action models.TransitionAction, result string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(kind, action, result)
	}
}

var rejectionTemplates = map[workflow.Code]*appErrors.Error{
	workflow.CodeInvalidTransition: appErrors.ErrInvalidTransition,
	workflow.CodeInvalidState:      appErrors.ErrInvalidState,
	workflow.CodeCommentsRequired:  appErrors.ErrCommentsRequired,
	workflow.CodePlatformRequired:  appErrors.ErrPlatformRequired,
}

// rejectionError maps a workflow rejection onto the HTTP-aware taxonomy.
func rejectionError(r *workflow.Rejection) *appErrors.Error {
	template, ok := rejectionTemplates[r.Code]
	if !ok {
		template = appErrors.ErrInvalidTransition
	}
	return appErrors.WithDetails(appErrors.Clone(template, r.Message), map[string]string{
		"currentState": string(r.CurrentState),
		"action":       string(r.Action),
	})
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
