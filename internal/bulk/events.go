package bulk

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates stream messages.
type EventType string

const (
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// ProgressEvent reports one successfully processed item.
// EstimatedSecondsRemaining is nil until at least one item has completed.
type ProgressEvent struct {
	Processed                 int    `json:"processed"`
	Total                     int    `json:"total"`
	Percentage                int    `json:"percentage"`
	CurrentItem               string `json:"currentItem"`
	EstimatedSecondsRemaining *int   `json:"estimatedSecondsRemaining"`
}

// ErrorEvent terminates a run that stopped on a failing item.
type ErrorEvent struct {
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	FailedItem  string `json:"failedItem"`
	OperationID string `json:"operationId,omitempty"`
}

// CompleteEvent terminates a run in which every item succeeded.
type CompleteEvent struct {
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	OperationID string `json:"operationId"`
}

// Event is one framed message on the progress channel. Exactly one of the
// payload pointers is set, matching Type.
type Event struct {
	Type     EventType
	Progress *ProgressEvent
	Error    *ErrorEvent
	Complete *CompleteEvent
}

// Terminal reports whether the event closes a run.
func (e Event) Terminal() bool {
	return e.Type == EventError || e.Type == EventComplete
}

// MarshalJSON flattens the payload next to its "type" discriminator.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventProgress:
		if e.Progress == nil {
			return nil, fmt.Errorf("progress event without payload")
		}
		return json.Marshal(struct {
			Type EventType `json:"type"`
			*ProgressEvent
		}{e.Type, e.Progress})
	case EventError:
		if e.Error == nil {
			return nil, fmt.Errorf("error event without payload")
		}
		return json.Marshal(struct {
			Type EventType `json:"type"`
			*ErrorEvent
		}{e.Type, e.Error})
	case EventComplete:
		if e.Complete == nil {
			return nil, fmt.Errorf("complete event without payload")
		}
		return json.Marshal(struct {
			Type EventType `json:"type"`
			*CompleteEvent
		}{e.Type, e.Complete})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

// UnmarshalJSON decodes a flattened event by its discriminator.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	*e = Event{Type: head.Type}
	switch head.Type {
	case EventProgress:
		e.Progress = &ProgressEvent{}
		return json.Unmarshal(data, e.Progress)
	case EventError:
		e.Error = &ErrorEvent{}
		return json.Unmarshal(data, e.Error)
	case EventComplete:
		e.Complete = &CompleteEvent{}
		return json.Unmarshal(data, e.Complete)
	default:
		return fmt.Errorf("unknown event type %q", head.Type)
	}
}
