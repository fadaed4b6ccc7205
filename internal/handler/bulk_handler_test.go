package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Music-Vine/conductor/internal/bulk"
	"github.com/Music-Vine/conductor/internal/dto"
	"github.com/Music-Vine/conductor/internal/models"
	appErrors "github.com/Music-Vine/conductor/pkg/errors"
)

type bulkServiceMock struct {
	events   []bulk.Event
	startErr error
	opID     string
	queueErr error
	lastReq  dto.BulkRequest
}

func (m *bulkServiceMock) Start(ctx context.Context, req dto.BulkRequest, actorID string, sink bulk.Sink) (*bulk.Outcome, error) {
	m.lastReq = req
	if m.startErr != nil && len(m.events) == 0 {
		return nil, m.startErr
	}
	for _, ev := range m.events {
		if err := sink.Send(ctx, ev); err != nil {
			return nil, bulk.ErrCancelled
		}
	}
	return &bulk.Outcome{Operation: models.BulkOperation{ID: "op-1"}}, m.startErr
}

func (m *bulkServiceMock) Enqueue(_ context.Context, req dto.BulkRequest, _ string) (string, error) {
	m.lastReq = req
	return m.opID, m.queueErr
}

func eta(v int) *int { return &v }

func TestBulkHandlerStreamWritesEventFrames(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &bulkServiceMock{events: []bulk.Event{
		{Type: bulk.EventProgress, Progress: &bulk.ProgressEvent{Processed: 1, Total: 2, Percentage: 50, CurrentItem: "a-1", EstimatedSecondsRemaining: eta(2)}},
		{Type: bulk.EventProgress, Progress: &bulk.ProgressEvent{Processed: 2, Total: 2, Percentage: 100, CurrentItem: "a-2", EstimatedSecondsRemaining: eta(0)}},
		{Type: bulk.EventComplete, Complete: &bulk.CompleteEvent{Processed: 2, Total: 2, OperationID: "op-1"}},
	}}
	handler := NewBulkHandler(mock, nil, 1)

	c, w := newGinContext(http.MethodPost, "/bulk/stream", []byte(`{"action":"approve","entityType":"asset","ids":["a-1","a-2"]}`))
	withReviewer(c)
	handler.Stream(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	require.True(t, w.Flushed)

	body := w.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, frames, 3)
	require.Contains(t, frames[0], "event: progress\ndata: {")
	require.Contains(t, frames[0], `"currentItem":"a-1"`)
	require.Contains(t, frames[2], "event: complete\n")
	require.Contains(t, frames[2], `"operationId":"op-1"`)
	require.Equal(t, []string{"a-1", "a-2"}, mock.lastReq.IDs)
}

func TestBulkHandlerStreamValidationFailureIsJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &bulkServiceMock{startErr: appErrors.Clone(appErrors.ErrValidation, "ids must be unique")}
	handler := NewBulkHandler(mock, nil, 4)

	c, w := newGinContext(http.MethodPost, "/bulk/stream", []byte(`{"action":"approve","entityType":"asset","ids":["a","a"]}`))
	withReviewer(c)
	handler.Stream(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/json")
	require.Contains(t, w.Body.String(), "ids must be unique")
}

func TestBulkHandlerStreamReportsAuditFailureAfterTerminalEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &bulkServiceMock{
		events:   []bulk.Event{{Type: bulk.EventComplete, Complete: &bulk.CompleteEvent{OperationID: "op-1"}}},
		startErr: errors.New("record bulk operation op-1: disk full"),
	}
	handler := NewBulkHandler(mock, nil, 0)

	c, w := newGinContext(http.MethodPost, "/bulk/stream", []byte(`{"action":"approve","entityType":"asset","ids":[]}`))
	withReviewer(c)
	handler.Stream(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "event: complete")
	require.Len(t, c.Errors, 1)
}

type bulkRecorderStub struct {
	mu  sync.Mutex
	ops []models.BulkOperation
}

func (r *bulkRecorderStub) Record(_ context.Context, op *models.BulkOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, *op)
	return nil
}

func (r *bulkRecorderStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

// runnerBulkService drives a real runner with a caller-supplied item handler.
type runnerBulkService struct {
	runner *bulk.Runner
	handle bulk.ItemHandler
	err    error
}

func (s *runnerBulkService) Start(ctx context.Context, req dto.BulkRequest, actorID string, sink bulk.Sink) (*bulk.Outcome, error) {
	outcome, err := s.runner.Run(ctx, bulk.Request{
		Action:     req.Action,
		EntityType: req.EntityType,
		IDs:        req.IDs,
		ActorID:    actorID,
	}, s.handle, sink)
	s.err = err
	return outcome, err
}

func (s *runnerBulkService) Enqueue(context.Context, dto.BulkRequest, string) (string, error) {
	return "", nil
}

func TestBulkHandlerStreamClientDisconnectCancelsRun(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &bulkRecorderStub{}
	blocked := make(chan struct{})
	svc := &runnerBulkService{
		runner: bulk.NewRunner(rec, nil),
		handle: func(ctx context.Context, id string) error {
			if id != "a-2" {
				return nil
			}
			close(blocked)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	handler := NewBulkHandler(svc, nil, 0)

	c, w := newGinContext(http.MethodPost, "/bulk/stream", []byte(`{"action":"approve","entityType":"asset","ids":["a-1","a-2","a-3"]}`))
	withReviewer(c)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	c.Request = c.Request.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Stream(c)
	}()

	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("run never reached the second item")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not return after the client went away")
	}

	require.ErrorIs(t, svc.err, bulk.ErrCancelled)
	require.Zero(t, rec.count())
	require.Empty(t, c.Errors)

	body := w.Body.String()
	require.Equal(t, 1, strings.Count(body, "event: progress"))
	require.Contains(t, body, `"currentItem":"a-1"`)
	require.NotContains(t, body, "event: complete")
	require.NotContains(t, body, "event: error")
}

func TestBulkHandlerEnqueue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &bulkServiceMock{opID: "op-42"}
	handler := NewBulkHandler(mock, nil, 4)

	c, w := newGinContext(http.MethodPost, "/bulk/jobs", []byte(`{"action":"deactivate","entityType":"user","ids":["u-1"]}`))
	withReviewer(c)
	handler.Enqueue(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "op-42", w.Header().Get("X-Operation-ID"))
	require.Contains(t, w.Body.String(), `"operationId":"op-42"`)

	mock.queueErr = appErrors.Clone(appErrors.ErrEntityLocked, "")
	c, w = newGinContext(http.MethodPost, "/bulk/jobs", []byte(`{"action":"deactivate","entityType":"user","ids":["u-1"]}`))
	withReviewer(c)
	handler.Enqueue(c)
	require.Equal(t, http.StatusConflict, w.Code)
}
