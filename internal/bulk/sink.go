package bulk

import (
	"context"

	"go.uber.org/zap"
)

// Sink receives the events of one run. A non-nil error from Send means the
// consumer is gone and the run is abandoned.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// ChannelSink hands events to a separate writer goroutine. Send blocks
// while the buffer is full and gives up when ctx is cancelled.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Send implements Sink.
func (s *ChannelSink) Send(ctx context.Context, ev Event) error {
	// A free buffer slot must not win over a consumer that already left.
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- ev:
		return nil
	}
}

// Events is the consumer side of the channel.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Close must be called by the producer once Run has returned.
func (s *ChannelSink) Close() {
	close(s.ch)
}

// LogSink writes events to a zap logger. It is used for runs without a
// live consumer, so it never reports a disconnect.
type LogSink struct {
	Logger *zap.Logger
}

// Send implements Sink.
func (s LogSink) Send(_ context.Context, ev Event) error {
	logger := s.Logger
	if logger == nil {
		return nil
	}
	switch ev.Type {
	case EventProgress:
		logger.Debug("bulk progress",
			zap.Int("processed", ev.Progress.Processed),
			zap.Int("total", ev.Progress.Total),
			zap.String("current_item", ev.Progress.CurrentItem))
	case EventError:
		logger.Warn("bulk run failed",
			zap.String("operation_id", ev.Error.OperationID),
			zap.String("failed_item", ev.Error.FailedItem),
			zap.String("error", ev.Error.Message))
	case EventComplete:
		logger.Info("bulk run completed",
			zap.String("operation_id", ev.Complete.OperationID),
			zap.Int("processed", ev.Complete.Processed))
	}
	return nil
}
