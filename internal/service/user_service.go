package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Music-Vine/conductor/internal/models"
	appErrors "github.com/Music-Vine/conductor/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
}

// UserService handles user lookups and activation toggles.
type UserService struct {
	repo   userRepository
	clock  models.Clock
	logger *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, clock models.Clock, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = models.SystemClock
	}
	return &UserService{repo: repo, clock: clock, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return users, pagination, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to load user")
	}
	return user, nil
}

// SetActive activates or deactivates a user. Setting the current value is
// refused so a bulk run reports it instead of silently counting it.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Active == active {
		state := "inactive"
		if active {
			state = "active"
		}
		return appErrors.Clone(appErrors.ErrInvalidState, "user is already "+state)
	}

	if err := s.repo.SetActive(ctx, user.ID, active, s.clock.Now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to update user")
	}

	s.logger.Debug("user activation changed", zap.String("user_id", user.ID), zap.Bool("active", active))
	return nil
}
