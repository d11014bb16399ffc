// Package service implements the project and task operations behind the
// HTTP API. Every operation asks the [auth.Guard] first; the order of
// checks is always authentication, then validation, then existence, then
// ownership. A foreign resource that exists is therefore reported as
// forbidden, not as missing.
package service

import (
	"context"

	"github.com/StricklySoft/taskhub/pkg/auth"
	"github.com/StricklySoft/taskhub/pkg/models"
)

// UserStore is the user persistence the services need.
type UserStore interface {
	auth.UserStore
	Get(ctx context.Context, id int64) (models.User, error)
	List(ctx context.Context, req models.PageRequest) (models.Page[models.User], error)
}

// ProjectStore is the project persistence the services need.
type ProjectStore interface {
	Create(ctx context.Context, ownerID int64, in models.ProjectInput) (models.Project, error)
	Get(ctx context.Context, id int64) (models.Project, error)
	Update(ctx context.Context, id int64, in models.ProjectInput) (models.Project, error)
	Delete(ctx context.Context, id int64) error
	ListByOwner(ctx context.Context, ownerID int64, req models.PageRequest) (models.Page[models.Project], error)
	Search(ctx context.Context, ownerID int64, term string, req models.PageRequest) (models.Page[models.Project], error)
}

// TaskStore is the task persistence the services need.
type TaskStore interface {
	Create(ctx context.Context, projectID int64, in models.TaskInput) (models.Task, error)
	Get(ctx context.Context, projectID, taskID int64) (models.Task, error)
	Update(ctx context.Context, projectID, taskID int64, in models.TaskInput) (models.Task, error)
	UpdateStatus(ctx context.Context, projectID, taskID int64, status models.TaskStatus) (models.Task, error)
	Delete(ctx context.Context, projectID, taskID int64) error
	ListByProject(ctx context.Context, projectID int64, status models.TaskStatus, req models.PageRequest) (models.Page[models.Task], error)
	ListByOwner(ctx context.Context, ownerID int64, status models.TaskStatus, req models.PageRequest) (models.Page[models.Task], error)
}

// Stores groups the three stores.
type Stores struct {
	Users    UserStore
	Projects ProjectStore
	Tasks    TaskStore
}
