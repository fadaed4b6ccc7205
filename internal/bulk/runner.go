// Package bulk applies one action to an ordered list of entity IDs,
// streaming progress and writing a single audit record per run.
package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Music-Vine/conductor/internal/models"
	"github.com/Music-Vine/conductor/internal/workflow"
	appErrors "github.com/Music-Vine/conductor/pkg/errors"
)

// ErrCancelled is returned when the consumer went away mid-run. No terminal
// event and no audit record are produced for a cancelled run.
var ErrCancelled = errors.New("bulk operation cancelled")

// ItemHandler performs the unit of work for one entity ID.
type ItemHandler func(ctx context.Context, id string) error

// Recorder persists the single audit record of a run.
type Recorder interface {
	Record(ctx context.Context, op *models.BulkOperation) error
}

// Observer receives run-level metrics.
type Observer interface {
	ObserveBulkRun(action string, entityType models.EntityType, status string, processed int)
}

// Request describes one bulk run.
type Request struct {
	OperationID string
	Action      string
	EntityType  models.EntityType
	IDs         []string
	Payload     json.RawMessage
	ActorID     string
}

// Outcome is the result of a run that reached a terminal event.
type Outcome struct {
	Operation models.BulkOperation
}

// Failed reports whether the run stopped on an item failure.
func (o *Outcome) Failed() bool {
	return o != nil && o.Operation.Status == models.BulkStatusFailed
}

// Runner executes bulk runs. It keeps no state between runs and may be
// shared by concurrent runs.
type Runner struct {
	recorder Recorder
	clock    models.Clock
	logger   *zap.Logger
	observer Observer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerClock overrides the clock used for ETA and audit timestamps.
func WithRunnerClock(clock models.Clock) RunnerOption {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) {
		r.observer = o
	}
}

// NewRunner constructs a runner writing audit records to recorder.
func NewRunner(recorder Recorder, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{recorder: recorder, clock: models.SystemClock, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run processes req.IDs strictly in order, stopping at the first failure.
// Item failures are reported through the sink and the returned Outcome,
// not as an error. The error is ErrCancelled when the sink or ctx gave up,
// or an audit write failure.
func (r *Runner) Run(ctx context.Context, req Request, handle ItemHandler, sink Sink) (*Outcome, error) {
	if handle == nil || sink == nil {
		return nil, fmt.Errorf("bulk run requires an item handler and a sink")
	}
	if req.OperationID == "" {
		req.OperationID = uuid.NewString()
	}
	total := len(req.IDs)
	logger := r.logger.With(
		zap.String("operation_id", req.OperationID),
		zap.String("action", req.Action),
		zap.String("entity_type", string(req.EntityType)),
		zap.Int("total", total),
	)
	logger.Info("bulk run started")

	start := r.clock.Now()
	for i, id := range req.IDs {
		if ctx.Err() != nil {
			return nil, r.cancelled(logger, req, i)
		}

		if err := handle(ctx, id); err != nil {
			if ctx.Err() != nil {
				return nil, r.cancelled(logger, req, i)
			}
			logger.Warn("bulk item failed", zap.String("item", id), zap.Int("processed", i), zap.Error(err))
			ev := Event{Type: EventError, Error: &ErrorEvent{
				Message:     err.Error(),
				Code:        errorCode(err),
				Processed:   i,
				Total:       total,
				FailedItem:  id,
				OperationID: req.OperationID,
			}}
			if sendErr := sink.Send(ctx, ev); sendErr != nil {
				return nil, r.cancelled(logger, req, i)
			}
			msg := err.Error()
			failed := id
			op := r.operation(req, req.IDs[:i], models.BulkStatusFailed)
			op.ErrorMessage = &msg
			op.FailedItem = &failed
			return r.finish(ctx, logger, op)
		}

		processed := i + 1
		elapsed := r.clock.Now().Sub(start)
		ev := Event{Type: EventProgress, Progress: &ProgressEvent{
			Processed:                 processed,
			Total:                     total,
			Percentage:                percentage(processed, total),
			CurrentItem:               id,
			EstimatedSecondsRemaining: estimateRemaining(processed, total, elapsed),
		}}
		if err := sink.Send(ctx, ev); err != nil {
			return nil, r.cancelled(logger, req, processed)
		}
	}

	ev := Event{Type: EventComplete, Complete: &CompleteEvent{
		Processed:   total,
		Total:       total,
		OperationID: req.OperationID,
	}}
	if err := sink.Send(ctx, ev); err != nil {
		return nil, r.cancelled(logger, req, total)
	}
	return r.finish(ctx, logger, r.operation(req, req.IDs, models.BulkStatusCompleted))
}

func (r *Runner) operation(req Request, affected []string, status models.BulkStatus) *models.BulkOperation {
	ids := make([]string, len(affected))
	copy(ids, affected)
	return &models.BulkOperation{
		ID:             req.OperationID,
		Action:         req.Action,
		EntityType:     req.EntityType,
		ActorID:        req.ActorID,
		RequestedCount: len(req.IDs),
		AffectedIDs:    ids,
		Status:         status,
		Payload:        req.Payload,
		CreatedAt:      r.clock.Now(),
	}
}

func (r *Runner) finish(ctx context.Context, logger *zap.Logger, op *models.BulkOperation) (*Outcome, error) {
	r.observe(op.Action, op.EntityType, string(op.Status), len(op.AffectedIDs))
	logger.Info("bulk run finished", zap.String("status", string(op.Status)), zap.Int("processed", len(op.AffectedIDs)))

	outcome := &Outcome{Operation: *op}
	if r.recorder == nil {
		return outcome, nil
	}
	// The terminal event is already out; a late disconnect must not lose
	// the audit record.
	if err := r.recorder.Record(context.WithoutCancel(ctx), op); err != nil {
		logger.Error("failed to record bulk operation", zap.Error(err))
		return outcome, fmt.Errorf("record bulk operation %s: %w", op.ID, err)
	}
	return outcome, nil
}

func (r *Runner) cancelled(logger *zap.Logger, req Request, processed int) error {
	r.observe(req.Action, req.EntityType, "cancelled", processed)
	logger.Info("bulk run abandoned by consumer", zap.Int("processed", processed))
	return ErrCancelled
}

func (r *Runner) observe(action string, entityType models.EntityType, status string, processed int) {
	if r.observer != nil {
		r.observer.ObserveBulkRun(action, entityType, status, processed)
	}
}

func percentage(processed, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}

// estimateRemaining projects the remaining time from the average rate so
// far. It is recomputed for every item without smoothing.
func estimateRemaining(processed, total int, elapsed time.Duration) *int {
	if processed == 0 {
		return nil
	}
	remaining := total - processed
	seconds := elapsed.Seconds()
	if seconds <= 0 || remaining <= 0 {
		zero := 0
		return &zero
	}
	rate := float64(processed) / seconds
	eta := int(math.Round(float64(remaining) / rate))
	return &eta
}

func errorCode(err error) string {
	if rejection, ok := workflow.AsRejection(err); ok {
		return string(rejection.Code)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return appErrors.ErrItemProcessing.Code
}
