package service

import (
	"context"
	"log/slog"

	"github.com/StricklySoft/taskhub/pkg/auth"
	sserr "github.com/StricklySoft/taskhub/pkg/errors"
	"github.com/StricklySoft/taskhub/pkg/models"
)

// Tasks serves task operations. A task is reachable only through its
// project, and access follows the project's owner.
type Tasks struct {
	guard    *auth.Guard
	users    UserStore
	projects ProjectStore
	tasks    TaskStore
	logger   *slog.Logger
}

// NewTasks returns the task service.
func NewTasks(guard *auth.Guard, stores Stores, logger *slog.Logger) *Tasks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tasks{
		guard:    guard,
		users:    stores.Users,
		projects: stores.Projects,
		tasks:    stores.Tasks,
		logger:   logger,
	}
}

// Create adds a task to a project. Titles are unique within a project.
func (s *Tasks) Create(ctx context.Context, projectID int64, in models.TaskInput) (models.Task, error) {
	if _, err := s.guard.RequireAuthenticated(ctx); err != nil {
		return models.Task{}, err
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Task{}, err
	}
	if err := s.authorizeProject(ctx, projectID); err != nil {
		return models.Task{}, err
	}

	t, err := s.tasks.Create(ctx, projectID, in)
	if err != nil {
		return models.Task{}, err
	}
	s.logger.InfoContext(ctx, "task created", "task_id", t.ID, "project_id", projectID)
	return t, nil
}

// Get returns a task of a project.
func (s *Tasks) Get(ctx context.Context, projectID, taskID int64) (models.Task, error) {
	if err := s.authorizeProject(ctx, projectID); err != nil {
		return models.Task{}, err
	}
	return s.tasks.Get(ctx, projectID, taskID)
}

// List returns a page of a project's tasks, optionally filtered by status.
func (s *Tasks) List(ctx context.Context, projectID int64, status models.TaskStatus, req models.PageRequest) (models.Page[models.Task], error) {
	if err := s.authorizeProject(ctx, projectID); err != nil {
		return models.Page[models.Task]{}, err
	}
	return s.tasks.ListByProject(ctx, projectID, status, req)
}

// Update replaces title, description and status of a task.
func (s *Tasks) Update(ctx context.Context, projectID, taskID int64, in models.TaskInput) (models.Task, error) {
	if _, err := s.guard.RequireAuthenticated(ctx); err != nil {
		return models.Task{}, err
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Task{}, err
	}
	if err := s.authorizeProject(ctx, projectID); err != nil {
		return models.Task{}, err
	}

	t, err := s.tasks.Update(ctx, projectID, taskID, in)
	if err != nil {
		return models.Task{}, err
	}
	s.logger.InfoContext(ctx, "task updated", "task_id", taskID, "project_id", projectID)
	return t, nil
}

// UpdateStatus moves a task to another status.
func (s *Tasks) UpdateStatus(ctx context.Context, projectID, taskID int64, status models.TaskStatus) (models.Task, error) {
	if _, err := s.guard.RequireAuthenticated(ctx); err != nil {
		return models.Task{}, err
	}
	if !status.Valid() {
		return models.Task{}, sserr.New(sserr.CodeValidation, "validation failed").
			WithDetail("fields", map[string]string{"status": "must be one of TODO, IN_PROGRESS, DONE"})
	}
	if err := s.authorizeProject(ctx, projectID); err != nil {
		return models.Task{}, err
	}

	t, err := s.tasks.UpdateStatus(ctx, projectID, taskID, status)
	if err != nil {
		return models.Task{}, err
	}
	s.logger.InfoContext(ctx, "task status updated",
		"task_id", taskID,
		"project_id", projectID,
		"status", status.String(),
	)
	return t, nil
}

// Delete removes a task.
func (s *Tasks) Delete(ctx context.Context, projectID, taskID int64) error {
	if err := s.authorizeProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, projectID, taskID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "task deleted", "task_id", taskID, "project_id", projectID)
	return nil
}

// ListMine returns tasks across all of the caller's projects.
func (s *Tasks) ListMine(ctx context.Context, status models.TaskStatus, req models.PageRequest) (models.Page[models.Task], error) {
	u, err := s.guard.CurrentUser(ctx)
	if err != nil {
		return models.Page[models.Task]{}, err
	}
	return s.tasks.ListByOwner(ctx, u.ID, status, req)
}

// ListByOwner returns tasks across another user's projects. Admin only.
func (s *Tasks) ListByOwner(ctx context.Context, userID int64, status models.TaskStatus, req models.PageRequest) (models.Page[models.Task], error) {
	if _, err := s.guard.RequireAdmin(ctx); err != nil {
		return models.Page[models.Task]{}, err
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return models.Page[models.Task]{}, err
	}
	return s.tasks.ListByOwner(ctx, userID, status, req)
}

func (s *Tasks) authorizeProject(ctx context.Context, projectID int64) error {
	if _, err := s.guard.RequireAuthenticated(ctx); err != nil {
		return err
	}
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return err
	}
	_, err = s.guard.RequireOwnerOrAdmin(ctx, p.OwnerID)
	return err
}
