package workflow

import (
	"strings"
	"time"

	"github.com/Music-Vine/conductor/internal/models"
)

// Options carries caller-supplied parameters for an action.
type Options struct {
	Platform *string
	Comments string
}

// Engine applies transition actions to asset snapshots. It holds no
// per-asset state and is safe for concurrent use.
type Engine struct {
	clock     models.Clock
	platforms map[string]struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the time source used for derived timestamps.
func WithClock(clock models.Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithPlatforms restricts platform assignment to the given names.
func WithPlatforms(platforms ...string) EngineOption {
	return func(e *Engine) {
		for _, p := range platforms {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if e.platforms == nil {
				e.platforms = make(map[string]struct{})
			}
			e.platforms[p] = struct{}{}
		}
	}
}

// NewEngine constructs an engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{clock: models.SystemClock}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Apply validates action against the asset's kind and state and returns
// the resulting snapshot. On failure the returned error is a *Rejection and
// the input is left untouched.
func (e *Engine) Apply(asset models.Asset, action models.TransitionAction, opts Options) (models.Asset, error) {
	// Unpublish is only offered for live assets, even though the table
	// would answer the question on its own.
	if action == models.ActionUnpublish && asset.State != models.StatePublished {
		return asset, reject(CodeInvalidState, asset, action, "nothing to unpublish: asset is %s", asset.State)
	}

	next, ok := Transition(asset.Kind, asset.State, action)
	if !ok {
		return asset, reject(CodeInvalidTransition, asset, action, "cannot %s a %s asset in state %s", action, asset.Kind, asset.State)
	}

	comments := strings.TrimSpace(opts.Comments)
	if action == models.ActionReject && comments == "" {
		return asset, reject(CodeCommentsRequired, asset, action, "comments are required to reject")
	}

	var platform string
	if action == models.ActionApprove && asset.State == models.StatePlatformAssignment {
		if opts.Platform != nil {
			platform = strings.TrimSpace(*opts.Platform)
		}
		if platform == "" {
			return asset, reject(CodePlatformRequired, asset, action, "platform is required to leave platform_assignment")
		}
		if !e.platformAllowed(platform) {
			return asset, reject(CodePlatformRequired, asset, action, "platform %q is not supported", platform)
		}
	}

	now := e.clock.Now()
	out := asset.Clone()
	if platform != "" {
		out.Platform = &platform
	}
	if action == models.ActionReject {
		out.RejectionComments = &comments
	}

	switch next {
	case models.StateFinalApproval, models.StateApproved:
		if out.ApprovedAt == nil {
			out.ApprovedAt = timePtr(now)
		}
	case models.StatePublished:
		out.PublishedAt = timePtr(now)
		if out.ApprovedAt == nil {
			out.ApprovedAt = timePtr(now)
		}
	}
	if action == models.ActionUnpublish {
		out.PublishedAt = nil
	}

	out.State = next
	out.UpdatedAt = now
	return out, nil
}

// AvailableActions lists the actions Apply could accept from the asset's
// current state, ignoring caller-supplied options.
func (e *Engine) AvailableActions(asset models.Asset) []models.TransitionAction {
	actions := make([]models.TransitionAction, 0, 3)
	for _, action := range []models.TransitionAction{models.ActionApprove, models.ActionReject, models.ActionUnpublish} {
		if action == models.ActionUnpublish && asset.State != models.StatePublished {
			continue
		}
		if _, ok := Transition(asset.Kind, asset.State, action); ok {
			actions = append(actions, action)
		}
	}
	return actions
}

// RequiresPlatform reports whether approving the asset needs a platform.
func RequiresPlatform(asset models.Asset) bool {
	return VariantFor(asset.Kind) == VariantMusic && asset.State == models.StatePlatformAssignment
}

func (e *Engine) platformAllowed(platform string) bool {
	if len(e.platforms) == 0 {
		return true
	}
	_, ok := e.platforms[platform]
	return ok
}

func timePtr(t time.Time) *time.Time {
	return &t
}
