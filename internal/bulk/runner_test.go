package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Music-Vine/conductor/internal/models"
	"github.com/Music-Vine/conductor/internal/workflow"
)

type recorderStub struct {
	mu  sync.Mutex
	ops []models.BulkOperation
	err error
}

func (r *recorderStub) Record(ctx context.Context, op *models.BulkOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ops = append(r.ops, *op)
	return nil
}

func (r *recorderStub) records() []models.BulkOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.BulkOperation(nil), r.ops...)
}

type observerStub struct {
	statuses []string
}

func (o *observerStub) ObserveBulkRun(action string, entityType models.EntityType, status string, processed int) {
	o.statuses = append(o.statuses, status)
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) models.Clock {
	var mu sync.Mutex
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.ClockFunc(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(step)
		return now
	})
}

type collectingSink struct {
	events []Event
}

func (s *collectingSink) Send(ctx context.Context, ev Event) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *collectingSink) byType(t EventType) []Event {
	out := make([]Event, 0)
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestRunner(rec Recorder, opts ...RunnerOption) *Runner {
	opts = append([]RunnerOption{WithRunnerClock(steppingClock(2 * time.Second))}, opts...)
	return NewRunner(rec, nil, opts...)
}

func okHandler(calls *[]string) ItemHandler {
	return func(ctx context.Context, id string) error {
		*calls = append(*calls, id)
		return nil
	}
}

func TestRunAllSucceed(t *testing.T) {
	rec := &recorderStub{}
	obs := &observerStub{}
	runner := newTestRunner(rec, WithObserver(obs))
	sink := &collectingSink{}
	var calls []string
	ids := []string{"a", "b", "c", "d"}

	outcome, err := runner.Run(context.Background(), Request{
		OperationID: "op-1",
		Action:      "approve",
		EntityType:  models.EntityAsset,
		IDs:         ids,
		ActorID:     "admin-1",
		Payload:     json.RawMessage(`{"platform":"music-vine"}`),
	}, okHandler(&calls), sink)
	require.NoError(t, err)
	require.Equal(t, ids, calls)

	progress := sink.byType(EventProgress)
	require.Len(t, progress, len(ids))
	for i, ev := range progress {
		require.Equal(t, i+1, ev.Progress.Processed)
		require.Equal(t, len(ids), ev.Progress.Total)
		require.Equal(t, ids[i], ev.Progress.CurrentItem)
		require.NotNil(t, ev.Progress.EstimatedSecondsRemaining)
	}
	require.Equal(t, 25, progress[0].Progress.Percentage)
	require.Equal(t, 100, progress[len(progress)-1].Progress.Percentage)

	// 2s per tick: after one item 3 remain at 0.5 items/s.
	require.Equal(t, 6, *progress[0].Progress.EstimatedSecondsRemaining)
	require.Equal(t, 4, *progress[1].Progress.EstimatedSecondsRemaining)
	require.Equal(t, 0, *progress[3].Progress.EstimatedSecondsRemaining)

	last := sink.events[len(sink.events)-1]
	require.Equal(t, EventComplete, last.Type)
	require.Equal(t, CompleteEvent{Processed: 4, Total: 4, OperationID: "op-1"}, *last.Complete)
	require.Empty(t, sink.byType(EventError))

	records := rec.records()
	require.Len(t, records, 1)
	require.Equal(t, models.BulkStatusCompleted, records[0].Status)
	require.Equal(t, ids, records[0].AffectedIDs)
	require.Equal(t, 4, records[0].RequestedCount)
	require.Equal(t, "admin-1", records[0].ActorID)
	require.JSONEq(t, `{"platform":"music-vine"}`, string(records[0].Payload))
	require.Nil(t, records[0].ErrorMessage)
	require.Equal(t, records[0], outcome.Operation)
	require.False(t, outcome.Failed())
	require.Equal(t, []string{"completed"}, obs.statuses)
}

func TestRunStopsOnFirstFailure(t *testing.T) {
	rec := &recorderStub{}
	runner := newTestRunner(rec)
	sink := &collectingSink{}
	ids := []string{"a", "b", "c", "d", "e"}
	var calls []string

	outcome, err := runner.Run(context.Background(), Request{
		Action:     "reject",
		EntityType: models.EntityAsset,
		IDs:        ids,
	}, func(ctx context.Context, id string) error {
		calls = append(calls, id)
		if id == "c" {
			return workflow.ErrCommentsRequired
		}
		return nil
	}, sink)
	require.NoError(t, err)
	require.True(t, outcome.Failed())
	require.Equal(t, []string{"a", "b", "c"}, calls)

	require.Len(t, sink.byType(EventProgress), 2)
	errs := sink.byType(EventError)
	require.Len(t, errs, 1)
	require.Equal(t, 2, errs[0].Error.Processed)
	require.Equal(t, 5, errs[0].Error.Total)
	require.Equal(t, "c", errs[0].Error.FailedItem)
	require.Equal(t, string(workflow.CodeCommentsRequired), errs[0].Error.Code)
	require.NotEmpty(t, errs[0].Error.OperationID)
	require.Empty(t, sink.byType(EventComplete))
	require.Equal(t, EventError, sink.events[len(sink.events)-1].Type)

	records := rec.records()
	require.Len(t, records, 1)
	require.Equal(t, models.BulkStatusFailed, records[0].Status)
	require.Equal(t, []string{"a", "b"}, records[0].AffectedIDs)
	require.Equal(t, 5, records[0].RequestedCount)
	require.NotNil(t, records[0].ErrorMessage)
	require.Equal(t, "c", *records[0].FailedItem)
	require.Equal(t, errs[0].Error.OperationID, records[0].ID)
}

func TestRunFirstItemFails(t *testing.T) {
	rec := &recorderStub{}
	runner := newTestRunner(rec)
	sink := &collectingSink{}

	_, err := runner.Run(context.Background(), Request{
		Action:     "reject",
		EntityType: models.EntityAsset,
		IDs:        []string{"only"},
	}, func(ctx context.Context, id string) error {
		return errors.New("boom")
	}, sink)
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	require.Equal(t, EventError, sink.events[0].Type)
	require.Equal(t, 0, sink.events[0].Error.Processed)
	require.Equal(t, "only", sink.events[0].Error.FailedItem)
	require.Equal(t, "ITEM_PROCESSING_ERROR", sink.events[0].Error.Code)

	records := rec.records()
	require.Len(t, records, 1)
	require.Equal(t, models.BulkStatusFailed, records[0].Status)
	require.NotNil(t, records[0].AffectedIDs)
	require.Empty(t, records[0].AffectedIDs)
}

func TestRunEmptyListStillAudits(t *testing.T) {
	rec := &recorderStub{}
	runner := newTestRunner(rec)
	sink := &collectingSink{}

	outcome, err := runner.Run(context.Background(), Request{Action: "deactivate", EntityType: models.EntityUser}, func(ctx context.Context, id string) error {
		t.Fatalf("handler must not be called")
		return nil
	}, sink)
	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	require.Equal(t, EventComplete, sink.events[0].Type)
	require.Equal(t, 0, sink.events[0].Complete.Total)
	require.Len(t, rec.records(), 1)
	require.Equal(t, models.BulkStatusCompleted, outcome.Operation.Status)
	require.Empty(t, outcome.Operation.AffectedIDs)
}

func TestRunCancelledByConsumer(t *testing.T) {
	rec := &recorderStub{}
	obs := &observerStub{}
	runner := newTestRunner(rec, WithObserver(obs))
	sink := &collectingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls []string

	outcome, err := runner.Run(ctx, Request{
		Action:     "approve",
		EntityType: models.EntityAsset,
		IDs:        []string{"a", "b", "c"},
	}, func(ctx context.Context, id string) error {
		calls = append(calls, id)
		if id == "b" {
			cancel()
			return ctx.Err()
		}
		return nil
	}, sink)
	require.ErrorIs(t, err, ErrCancelled)
	require.Nil(t, outcome)
	require.Equal(t, []string{"a", "b"}, calls)
	require.Len(t, sink.events, 1)
	require.Empty(t, sink.byType(EventError))
	require.Empty(t, rec.records())
	require.Equal(t, []string{"cancelled"}, obs.statuses)
}

func TestRunSinkFailureAbandonsRun(t *testing.T) {
	rec := &recorderStub{}
	runner := newTestRunner(rec)
	var calls []string
	sent := 0

	_, err := runner.Run(context.Background(), Request{
		Action:     "approve",
		EntityType: models.EntityAsset,
		IDs:        []string{"a", "b", "c"},
	}, okHandler(&calls), SinkFunc(func(ctx context.Context, ev Event) error {
		sent++
		if sent == 2 {
			return errors.New("broken pipe")
		}
		return nil
	}))
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, []string{"a", "b"}, calls)
	require.Empty(t, rec.records())
}

func TestRunChannelSinkWithWriter(t *testing.T) {
	rec := &recorderStub{}
	runner := newTestRunner(rec)
	sink := NewChannelSink(0)
	var calls []string
	received := make([]Event, 0)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range sink.Events() {
			received = append(received, ev)
		}
	}()

	_, err := runner.Run(context.Background(), Request{
		Action:     "activate",
		EntityType: models.EntityUser,
		IDs:        []string{"u1", "u2"},
	}, okHandler(&calls), sink)
	sink.Close()
	<-done

	require.NoError(t, err)
	require.Len(t, received, 3)
	require.True(t, received[2].Terminal())
}

func TestChannelSinkRefusesSendAfterCancel(t *testing.T) {
	sink := NewChannelSink(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 10; i++ {
		require.ErrorIs(t, sink.Send(ctx, Event{Type: EventProgress}), context.Canceled)
	}
	require.Empty(t, sink.Events())
}

func TestRunDisconnectDuringLastItemWritesNoRecord(t *testing.T) {
	rec := &recorderStub{}
	runner := newTestRunner(rec)
	sink := NewChannelSink(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outcome, err := runner.Run(ctx, Request{
		Action:     "approve",
		EntityType: models.EntityAsset,
		IDs:        []string{"a", "b"},
	}, func(_ context.Context, id string) error {
		if id == "b" {
			cancel()
		}
		return nil
	}, sink)
	sink.Close()

	require.ErrorIs(t, err, ErrCancelled)
	require.Nil(t, outcome)
	require.Empty(t, rec.records())

	var received []Event
	for ev := range sink.Events() {
		received = append(received, ev)
	}
	require.Len(t, received, 1)
	require.Equal(t, EventProgress, received[0].Type)
}

func TestRunAuditFailureIsReported(t *testing.T) {
	rec := &recorderStub{err: errors.New("db down")}
	runner := newTestRunner(rec)
	var calls []string

	outcome, err := runner.Run(context.Background(), Request{
		Action:     "approve",
		EntityType: models.EntityAsset,
		IDs:        []string{"a"},
	}, okHandler(&calls), &collectingSink{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "db down")
	require.NotNil(t, outcome)
	require.Equal(t, models.BulkStatusCompleted, outcome.Operation.Status)
}

func TestConcurrentRunsWriteOneRecordEach(t *testing.T) {
	rec := &recorderStub{}
	runner := NewRunner(rec, nil)
	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ids := []string{fmt.Sprintf("a-%d", n), fmt.Sprintf("b-%d", n)}
			_, err := runner.Run(context.Background(), Request{
				Action:     "approve",
				EntityType: models.EntityAsset,
				IDs:        ids,
			}, func(ctx context.Context, id string) error { return nil }, SinkFunc(func(context.Context, Event) error { return nil }))
			errs <- err
		}(n)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records := rec.records()
	require.Len(t, records, 8)
	seen := make(map[string]struct{})
	for _, r := range records {
		require.Len(t, r.AffectedIDs, 2)
		seen[r.ID] = struct{}{}
	}
	require.Len(t, seen, 8)
}

func TestPercentageRounding(t *testing.T) {
	require.Equal(t, 33, percentage(1, 3))
	require.Equal(t, 67, percentage(2, 3))
	require.Equal(t, 100, percentage(3, 3))
	require.Nil(t, estimateRemaining(0, 3, time.Second))
}

func TestEventJSONCarriesType(t *testing.T) {
	eta := 12
	raw, err := json.Marshal(Event{Type: EventProgress, Progress: &ProgressEvent{
		Processed: 1, Total: 3, Percentage: 33, CurrentItem: "a", EstimatedSecondsRemaining: &eta,
	}})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"progress","processed":1,"total":3,"percentage":33,"currentItem":"a","estimatedSecondsRemaining":12}`, string(raw))

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"error","message":"nope","processed":0,"total":1,"failedItem":"x"}`), &decoded))
	require.Equal(t, EventError, decoded.Type)
	require.Equal(t, "x", decoded.Error.FailedItem)

	_, err = json.Marshal(Event{Type: "bogus"})
	require.Error(t, err)
}
