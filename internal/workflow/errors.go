package workflow

import (
	"errors"
	"fmt"

	"github.com/Music-Vine/conductor/internal/models"
)

// Code classifies why an action was refused.
type Code string

const (
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeCommentsRequired  Code = "COMMENTS_REQUIRED"
	CodePlatformRequired  Code = "PLATFORM_REQUIRED"
	CodeInvalidState      Code = "INVALID_STATE"
)

// Rejection is the typed, non-mutating failure returned by Engine.Apply.
type Rejection struct {
	Code         Code
	CurrentState models.WorkflowState
	Action       models.TransitionAction
	Message      string
}

func (r *Rejection) Error() string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("%s: %s from %s", r.Code, r.Action, r.CurrentState)
}

// Is matches rejections by code, so errors.Is(err, ErrPlatformRequired)
// holds for any platform rejection.
func (r *Rejection) Is(target error) bool {
	var t *Rejection
	if !errors.As(target, &t) {
		return false
	}
	return r.Code == t.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidTransition = &Rejection{Code: CodeInvalidTransition}
	ErrCommentsRequired  = &Rejection{Code: CodeCommentsRequired}
	ErrPlatformRequired  = &Rejection{Code: CodePlatformRequired}
	ErrInvalidState      = &Rejection{Code: CodeInvalidState}
)

// AsRejection extracts a Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

func reject(code Code, asset models.Asset, action models.TransitionAction, format string, args ...any) *Rejection {
	return &Rejection{
		Code:         code,
		CurrentState: asset.State,
		Action:       action,
		Message:      fmt.Sprintf(format, args...),
	}
}
