package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/StricklySoft/taskhub/pkg/auth"
	sserr "github.com/StricklySoft/taskhub/pkg/errors"
	"github.com/StricklySoft/taskhub/pkg/models"
)

// Projects serves project operations.
type Projects struct {
	guard    *auth.Guard
	users    UserStore
	projects ProjectStore
	logger   *slog.Logger
}

// NewProjects returns the project service.
func NewProjects(guard *auth.Guard, stores Stores, logger *slog.Logger) *Projects {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projects{guard: guard, users: stores.Users, projects: stores.Projects, logger: logger}
}

// Create adds a project owned by the caller.
func (s *Projects) Create(ctx context.Context, in models.ProjectInput) (models.Project, error) {
	owner, err := s.guard.CurrentUser(ctx)
	if err != nil {
		return models.Project{}, err
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Project{}, err
	}

	p, err := s.projects.Create(ctx, owner.ID, in)
	if err != nil {
		return models.Project{}, err
	}
	s.logger.InfoContext(ctx, "project created", "project_id", p.ID, "owner_id", owner.ID)
	return p, nil
}

// Get returns a project the caller owns, or any project for an admin.
func (s *Projects) Get(ctx context.Context, id int64) (models.Project, error) {
	return s.authorized(ctx, id)
}

// Update replaces the name and description of a project.
func (s *Projects) Update(ctx context.Context, id int64, in models.ProjectInput) (models.Project, error) {
	if _, err := s.guard.RequireAuthenticated(ctx); err != nil {
		return models.Project{}, err
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Project{}, err
	}
	if _, err := s.authorized(ctx, id); err != nil {
		return models.Project{}, err
	}

	p, err := s.projects.Update(ctx, id, in)
	if err != nil {
		return models.Project{}, err
	}
	s.logger.InfoContext(ctx, "project updated", "project_id", id)
	return p, nil
}

// Delete removes a project and its tasks.
func (s *Projects) Delete(ctx context.Context, id int64) error {
	if _, err := s.authorized(ctx, id); err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "project deleted", "project_id", id)
	return nil
}

// ListMine returns the caller's projects.
func (s *Projects) ListMine(ctx context.Context, req models.PageRequest) (models.Page[models.Project], error) {
	u, err := s.guard.CurrentUser(ctx)
	if err != nil {
		return models.Page[models.Project]{}, err
	}
	return s.projects.ListByOwner(ctx, u.ID, req)
}

// Search returns the caller's projects whose name contains term.
func (s *Projects) Search(ctx context.Context, term string, req models.PageRequest) (models.Page[models.Project], error) {
	u, err := s.guard.CurrentUser(ctx)
	if err != nil {
		return models.Page[models.Project]{}, err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return models.Page[models.Project]{}, sserr.New(sserr.CodeValidationRequired, "searchTerm is required")
	}
	return s.projects.Search(ctx, u.ID, term, req)
}

// ListByOwner returns another user's projects. Admin only.
func (s *Projects) ListByOwner(ctx context.Context, userID int64, req models.PageRequest) (models.Page[models.Project], error) {
	if _, err := s.guard.RequireAdmin(ctx); err != nil {
		return models.Page[models.Project]{}, err
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return models.Page[models.Project]{}, err
	}
	return s.projects.ListByOwner(ctx, userID, req)
}

// authorized loads a project and checks the caller may act on it.
func (s *Projects) authorized(ctx context.Context, id int64) (models.Project, error) {
	if _, err := s.guard.RequireAuthenticated(ctx); err != nil {
		return models.Project{}, err
	}
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return models.Project{}, err
	}
	if _, err := s.guard.RequireOwnerOrAdmin(ctx, p.OwnerID); err != nil {
		return models.Project{}, err
	}
	return p, nil
}
