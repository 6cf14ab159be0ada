package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tudu/server/internal/model"
	"github.com/tudu/server/internal/repo"
	apperrors "github.com/tudu/server/pkg/errors"
)

// CreateParams carries the fields for a new task.
type CreateParams struct {
	Title       string
	Description *string
	DueAt       time.Time
}

// UpdateParams carries the user-mutable fields of a task. Nil pointers leave
// the current value in place.
type UpdateParams struct {
	Title       *string
	Description *string
	DueAt       *time.Time
	Completed   *bool
}

// Service implements user-facing task management over the task store. The
// notified flag is owned by the scheduler and not reachable from here.
type Service struct {
	tasks repo.TaskRepo
}

// NewService creates a new task service
func NewService(tasks repo.TaskRepo) *Service {
	return &Service{tasks: tasks}
}

// Create adds a task for the user, enforcing the per-user cap. The count and
// insert are separate statements; the cap is a usability guard, not a hard
// storage invariant, so the small race window is acceptable.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, params CreateParams) (model.Task, error) {
	if params.Title == "" {
		return model.Task{}, apperrors.InvalidArg("title is required")
	}
	if params.DueAt.IsZero() {
		return model.Task{}, apperrors.ErrInvalidDueDate
	}

	count, err := s.tasks.CountByUser(ctx, userID)
	if err != nil {
		return model.Task{}, err
	}
	if count >= model.MaxTasksPerUser {
		return model.Task{}, apperrors.ErrTaskLimitExceeded
	}

	return s.tasks.Create(ctx, userID, params.Title, params.Description, params.DueAt)
}

// Get returns one of the user's tasks
func (s *Service) Get(ctx context.Context, userID, taskID uuid.UUID) (model.Task, error) {
	return s.tasks.GetByID(ctx, userID, taskID)
}

// List returns the user's tasks ordered by due time
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]model.Task, error) {
	return s.tasks.ListByUser(ctx, userID)
}

// Update applies the given changes to one of the user's tasks
func (s *Service) Update(ctx context.Context, userID, taskID uuid.UUID, params UpdateParams) (model.Task, error) {
	task, err := s.tasks.GetByID(ctx, userID, taskID)
	if err != nil {
		return model.Task{}, err
	}

	if params.Title != nil {
		if *params.Title == "" {
			return model.Task{}, apperrors.InvalidArg("title cannot be empty")
		}
		task.Title = *params.Title
	}
	if params.Description != nil {
		task.Description = params.Description
	}
	if params.DueAt != nil {
		if params.DueAt.IsZero() {
			return model.Task{}, apperrors.ErrInvalidDueDate
		}
		task.DueAt = *params.DueAt
	}
	if params.Completed != nil {
		task.Completed = *params.Completed
	}

	return s.tasks.Update(ctx, userID, task)
}

// Delete removes one of the user's tasks
func (s *Service) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	return s.tasks.Delete(ctx, userID, taskID)
}
