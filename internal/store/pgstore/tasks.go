package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/taskhub/pkg/clients/postgres"
	sserr "github.com/StricklySoft/taskhub/pkg/errors"
	"github.com/StricklySoft/taskhub/pkg/models"
)

const taskColumns = "id, title, description, status, project_id, created_at, updated_at"

// Tasks stores tasks. Every lookup is scoped by project, so a task ID
// from another project is not found.
type Tasks struct {
	db DB
}

// NewTasks returns a task store on db.
func NewTasks(db DB) *Tasks {
	return &Tasks{db: db}
}

// Create inserts a task into a project. A title already used in the
// project is a [sserr.CodeConflictAlreadyExists] error.
func (s *Tasks) Create(ctx context.Context, projectID int64, in models.TaskInput) (models.Task, error) {
	row := s.db.QueryRow(ctx,
		"INSERT INTO tasks (title, description, status, project_id) VALUES ($1, $2, $3, $4) RETURNING "+taskColumns,
		in.Title, in.Description, string(in.Status), projectID)
	t, err := scanTask(row)
	if err != nil {
		return models.Task{}, taskWriteError(err, in.Title, "pgstore: create task failed")
	}
	return t, nil
}

// Get returns a task of a project or a [sserr.CodeNotFoundResource] error.
func (s *Tasks) Get(ctx context.Context, projectID, taskID int64) (models.Task, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = $1 AND project_id = $2", taskID, projectID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, taskNotFound(taskID)
	}
	return t, postgres.WrapScanError(err, "pgstore: get task failed")
}

// Update replaces the title, description and status of a task.
func (s *Tasks) Update(ctx context.Context, projectID, taskID int64, in models.TaskInput) (models.Task, error) {
	row := s.db.QueryRow(ctx,
		"UPDATE tasks SET title = $3, description = $4, status = $5, updated_at = now() "+
			"WHERE id = $1 AND project_id = $2 RETURNING "+taskColumns,
		taskID, projectID, in.Title, in.Description, string(in.Status))
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, taskNotFound(taskID)
	}
	if err != nil {
		return models.Task{}, taskWriteError(err, in.Title, "pgstore: update task failed")
	}
	return t, nil
}

// UpdateStatus changes only the status of a task.
func (s *Tasks) UpdateStatus(ctx context.Context, projectID, taskID int64, status models.TaskStatus) (models.Task, error) {
	row := s.db.QueryRow(ctx,
		"UPDATE tasks SET status = $3, updated_at = now() WHERE id = $1 AND project_id = $2 RETURNING "+taskColumns,
		taskID, projectID, string(status))
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, taskNotFound(taskID)
	}
	return t, postgres.WrapScanError(err, "pgstore: update task status failed")
}

// Delete removes a task of a project.
func (s *Tasks) Delete(ctx context.Context, projectID, taskID int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM tasks WHERE id = $1 AND project_id = $2", taskID, projectID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return taskNotFound(taskID)
	}
	return nil
}

// ListByProject returns a page of a project's tasks, optionally filtered
// by status. An empty status matches all.
func (s *Tasks) ListByProject(ctx context.Context, projectID int64, status models.TaskStatus, req models.PageRequest) (models.Page[models.Task], error) {
	const where = " WHERE project_id = $1 AND ($2::text = '' OR status = $2)"
	return listPage[models.Task](ctx, s.db,
		"SELECT count(*) FROM tasks"+where,
		"SELECT "+taskColumns+" FROM tasks"+where+" ORDER BY id LIMIT $3 OFFSET $4",
		collectTask, req, projectID, string(status))
}

// ListByOwner returns a page of tasks across all projects of ownerID,
// optionally filtered by status.
func (s *Tasks) ListByOwner(ctx context.Context, ownerID int64, status models.TaskStatus, req models.PageRequest) (models.Page[models.Task], error) {
	const from = " FROM tasks t JOIN projects p ON p.id = t.project_id" +
		" WHERE p.owner_id = $1 AND ($2::text = '' OR t.status = $2)"
	return listPage[models.Task](ctx, s.db,
		"SELECT count(*)"+from,
		"SELECT t.id, t.title, t.description, t.status, t.project_id, t.created_at, t.updated_at"+from+
			" ORDER BY t.id LIMIT $3 OFFSET $4",
		collectTask, req, ownerID, string(status))
}

func taskNotFound(id int64) error {
	return sserr.Newf(sserr.CodeNotFoundResource, "task not found with id: %d", id)
}

// taskWriteError turns a unique violation into a conflict naming the
// duplicate title.
func taskWriteError(err error, title, message string) error {
	if postgres.IsUniqueViolation(err) {
		return sserr.Wrapf(err, sserr.CodeConflictAlreadyExists,
			"task with title '%s' already exists in this project", title)
	}
	return postgres.WrapScanError(err, message)
}

func scanTask(row pgx.Row) (models.Task, error) {
	var (
		t      models.Task
		status string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.ProjectID, &t.CreatedAt, &t.UpdatedAt)
	t.Status = models.TaskStatus(status)
	return t, err
}

func collectTask(row pgx.CollectableRow) (models.Task, error) {
	return scanTask(row)
}
