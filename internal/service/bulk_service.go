package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Music-Vine/conductor/internal/bulk"
	"github.com/Music-Vine/conductor/internal/dto"
	"github.com/Music-Vine/conductor/internal/models"
	"github.com/Music-Vine/conductor/internal/workflow"
	appErrors "github.com/Music-Vine/conductor/pkg/errors"
	"github.com/Music-Vine/conductor/pkg/jobs"
)

// JobTypeBulkRun tags background bulk runs on the job queue.
const JobTypeBulkRun = "bulk_run"

type bulkAssetApplier interface {
	ApplyForBulk(ctx context.Context, id string, action models.TransitionAction, opts workflow.Options) error
}

type bulkUserToggler interface {
	SetActive(ctx context.Context, id string, active bool) error
}

// EntityLocker keeps concurrent runs off the same entities.
type EntityLocker interface {
	Acquire(ctx context.Context, entity models.EntityType, ids []string, owner string, ttl time.Duration) ([]string, error)
	Extend(ctx context.Context, entity models.EntityType, ids []string, owner string, ttl time.Duration) error
	Release(ctx context.Context, entity models.EntityType, ids []string, owner string) error
}

type bulkRunner interface {
	Run(ctx context.Context, req bulk.Request, handle bulk.ItemHandler, sink bulk.Sink) (*bulk.Outcome, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type bulkActivity interface {
	BulkStarted() func()
}

// BulkConfig bounds bulk requests. LockTTL is the lifetime of entity locks;
// a running job extends them once half of it has passed, so a single item
// that takes longer than LockTTL can still outlive its locks.
type BulkConfig struct {
	MaxItems int
	LockTTL  time.Duration
}

// BulkService validates bulk requests, guards their entities and drives the
// runner.
type BulkService struct {
	assets    bulkAssetApplier
	users     bulkUserToggler
	runner    bulkRunner
	locker    EntityLocker
	queue     jobEnqueuer
	activity  bulkActivity
	validator *validator.Validate
	logger    *zap.Logger
	config    BulkConfig
	now       func() time.Time
}

// BulkServiceOption configures optional collaborators.
type BulkServiceOption func(*BulkService)

// WithEntityLocker enables per-entity locks.
func WithEntityLocker(locker EntityLocker) BulkServiceOption {
	return func(s *BulkService) {
		s.locker = locker
	}
}

// WithBulkActivity reports in-flight runs.
func WithBulkActivity(activity bulkActivity) BulkServiceOption {
	return func(s *BulkService) {
		s.activity = activity
	}
}

// NewBulkService constructs the service.
func NewBulkService(assets bulkAssetApplier, users bulkUserToggler, runner bulkRunner, validate *validator.Validate, logger *zap.Logger, cfg BulkConfig, opts ...BulkServiceOption) *BulkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 500
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	svc := &BulkService{
		assets:    assets,
		users:     users,
		runner:    runner,
		validator: validate,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// AttachQueue wires the background queue. It is set after construction
// because the queue handler calls back into the service.
func (s *BulkService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// bulkJob is the queued form of a validated and locked run.
type bulkJob struct {
	request bulk.Request
	payload dto.BulkPayload
}

// Start validates req, locks its entities and runs it to completion,
// streaming events to sink. Validation failures are returned before any
// event is sent.
func (s *BulkService) Start(ctx context.Context, req dto.BulkRequest, actorID string, sink bulk.Sink) (*bulk.Outcome, error) {
	job, err := s.prepare(ctx, req, actorID)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, job, sink)
}

// Enqueue validates and locks like Start, then runs in the background. The
// outcome is read back through the audit log by operation id.
func (s *BulkService) Enqueue(ctx context.Context, req dto.BulkRequest, actorID string) (string, error) {
	if s.queue == nil {
		return "", appErrors.Clone(appErrors.ErrBackendUnavailable, "background bulk runs are not enabled")
	}
	job, err := s.prepare(ctx, req, actorID)
	if err != nil {
		return "", err
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.request.OperationID, Type: JobTypeBulkRun, Payload: job}); err != nil {
		s.release(job.request)
		return "", appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to queue bulk run")
	}
	s.logger.Info("bulk run queued", zap.String("operation_id", job.request.OperationID), zap.String("actor_id", actorID))
	return job.request.OperationID, nil
}

// HandleJob is the jobs.Handler for queued runs. Runs are never retried:
// items already processed must not be applied twice.
func (s *BulkService) HandleJob(ctx context.Context, j jobs.Job) error {
	job, ok := j.Payload.(*bulkJob)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected payload %T for job %s", j.Payload, j.ID))
	}
	sink := bulk.LogSink{Logger: s.logger.With(zap.String("operation_id", job.request.OperationID))}
	if _, err := s.execute(ctx, job, sink); err != nil {
		return jobs.Permanent(err)
	}
	return nil
}

// DiscardJob releases the locks of a queued run that never started.
func (s *BulkService) DiscardJob(j jobs.Job) {
	if job, ok := j.Payload.(*bulkJob); ok {
		s.release(job.request)
	}
}

func (s *BulkService) prepare(ctx context.Context, req dto.BulkRequest, actorID string) (*bulkJob, error) {
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	req.EntityType = models.EntityType(strings.ToLower(strings.TrimSpace(string(req.EntityType))))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	if len(req.IDs) > s.config.MaxItems {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a bulk run accepts at most %d ids", s.config.MaxItems))
	}
	if dup := firstDuplicate(req.IDs); dup != "" {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "ids must be unique"), map[string]string{"duplicate": dup})
	}
	if !actionAllowed(req.EntityType, req.Action) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("action %q is not supported for %s", req.Action, req.EntityType))
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	ids := make([]string, len(req.IDs))
	copy(ids, req.IDs)
	job := &bulkJob{
		request: bulk.Request{
			OperationID: uuid.NewString(),
			Action:      req.Action,
			EntityType:  req.EntityType,
			IDs:         ids,
			Payload:     payload,
			ActorID:     actorID,
		},
		payload: req.Payload,
	}

	if s.locker != nil {
		conflicts, err := s.locker.Acquire(ctx, job.request.EntityType, ids, job.request.OperationID, s.config.LockTTL)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to lock bulk entities")
		}
		if len(conflicts) > 0 {
			return nil, appErrors.WithDetails(appErrors.ErrEntityLocked, map[string][]string{"ids": conflicts})
		}
	}
	return job, nil
}

func (s *BulkService) execute(ctx context.Context, job *bulkJob, sink bulk.Sink) (*bulk.Outcome, error) {
	defer s.release(job.request)
	if s.activity != nil {
		defer s.activity.BulkStarted()()
	}
	handle := s.keepLocks(job.request, s.itemHandler(job.request, job.payload))
	return s.runner.Run(ctx, job.request, handle, sink)
}

// keepLocks extends the run's locks before an item when half the lock TTL
// has passed since the last extension. The first item always extends, which
// covers time a background job spent queued.
func (s *BulkService) keepLocks(req bulk.Request, next bulk.ItemHandler) bulk.ItemHandler {
	if s.locker == nil {
		return next
	}
	interval := s.config.LockTTL / 2
	var last time.Time
	return func(ctx context.Context, id string) error {
		if now := s.now(); last.IsZero() || now.Sub(last) >= interval {
			if err := s.locker.Extend(ctx, req.EntityType, req.IDs, req.OperationID, s.config.LockTTL); err != nil {
				s.logger.Warn("failed to extend bulk locks", zap.String("operation_id", req.OperationID), zap.Error(err))
			} else {
				last = now
			}
		}
		return next(ctx, id)
	}
}

func (s *BulkService) itemHandler(req bulk.Request, payload dto.BulkPayload) bulk.ItemHandler {
	switch req.EntityType {
	case models.EntityUser:
		active := req.Action == models.BulkActionActivate
		return func(ctx context.Context, id string) error {
			return s.users.SetActive(ctx, id, active)
		}
	default:
		action := models.TransitionAction(req.Action)
		opts := workflow.Options{Platform: payload.Platform, Comments: payload.Comments}
		return func(ctx context.Context, id string) error {
			return s.assets.ApplyForBulk(ctx, id, action, opts)
		}
	}
}

func (s *BulkService) release(req bulk.Request) {
	if s.locker == nil {
		return
	}
	if err := s.locker.Release(context.Background(), req.EntityType, req.IDs, req.OperationID); err != nil {
		s.logger.Warn("failed to release bulk locks", zap.String("operation_id", req.OperationID), zap.Error(err))
	}
}

func actionAllowed(entity models.EntityType, action string) bool {
	switch entity {
	case models.EntityAsset:
		return models.TransitionAction(action).Valid()
	case models.EntityUser:
		return action == models.BulkActionActivate || action == models.BulkActionDeactivate
	}
	return false
}

func firstDuplicate(ids []string) string {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id
		}
		seen[id] = struct{}{}
	}
	return ""
}
