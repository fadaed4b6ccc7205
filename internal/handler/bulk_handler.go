package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Music-Vine/conductor/internal/bulk"
	"github.com/Music-Vine/conductor/internal/dto"
	appErrors "github.com/Music-Vine/conductor/pkg/errors"
	"github.com/Music-Vine/conductor/pkg/response"
	"github.com/Music-Vine/conductor/pkg/sse"
)

type bulkService interface {
	Start(ctx context.Context, req dto.BulkRequest, actorID string, sink bulk.Sink) (*bulk.Outcome, error)
	Enqueue(ctx context.Context, req dto.BulkRequest, actorID string) (string, error)
}

// BulkHandler runs bulk operations over HTTP.
type BulkHandler struct {
	service   bulkService
	logger    *zap.Logger
	buffer    int
	keepAlive time.Duration
}

// NewBulkHandler constructs the handler. buffer sizes the channel between
// the run and the stream writer.
func NewBulkHandler(service bulkService, logger *zap.Logger, buffer int) *BulkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkHandler{service: service, logger: logger, buffer: buffer, keepAlive: 15 * time.Second}
}

// Stream godoc
// @Summary Run a bulk operation and stream its progress
// @Description Responds with text/event-stream. Events are progress, then exactly one of error or complete.
// @Tags Bulk
// @Accept json
// @Produce text/event-stream
// @Param payload body dto.BulkRequest true "Bulk request"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bulk/stream [post]
func (h *BulkHandler) Stream(c *gin.Context) {
	var req dto.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid bulk payload"))
		return
	}
	actorID, ok := requireActor(c)
	if !ok {
		return
	}

	sink := bulk.NewChannelSink(h.buffer)
	g, ctx := errgroup.WithContext(c.Request.Context())

	var runErr error
	g.Go(func() error {
		defer sink.Close()
		_, runErr = h.service.Start(ctx, req, actorID, sink)
		return nil
	})

	// Headers are committed on the first event, so a request refused before
	// the run starts still gets a JSON error.
	var stream *sse.Writer
	g.Go(func() error {
		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-sink.Events():
				if !ok {
					return nil
				}
				if stream == nil {
					w, err := sse.NewWriter(c.Writer)
					if err != nil {
						return err
					}
					stream = w
				}
				if err := stream.WriteEvent(string(ev.Type), ev); err != nil {
					return err
				}
			case <-ticker.C:
				if stream == nil {
					continue
				}
				if err := stream.WriteComment("keep-alive"); err != nil {
					return err
				}
			}
		}
	})

	writeErr := g.Wait()

	if stream == nil {
		switch {
		case runErr != nil && !errors.Is(runErr, bulk.ErrCancelled):
			response.Error(c, runErr)
		case writeErr != nil:
			response.Error(c, appErrors.Wrap(writeErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "event stream unavailable"))
		}
		return
	}

	if writeErr != nil {
		h.logger.Info("bulk stream closed by client", zap.Error(writeErr))
	}
	if runErr != nil && !errors.Is(runErr, bulk.ErrCancelled) {
		_ = c.Error(runErr)
	}
}

// Enqueue godoc
// @Summary Queue a bulk operation in the background
// @Tags Bulk
// @Accept json
// @Produce json
// @Param payload body dto.BulkRequest true "Bulk request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /bulk/jobs [post]
func (h *BulkHandler) Enqueue(c *gin.Context) {
	var req dto.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid bulk payload"))
		return
	}
	actorID, ok := requireActor(c)
	if !ok {
		return
	}
	opID, err := h.service.Enqueue(c.Request.Context(), req, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, opID, dto.BulkJobAccepted{OperationID: opID, Status: "queued"})
}
