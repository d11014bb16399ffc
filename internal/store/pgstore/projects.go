package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/taskhub/pkg/clients/postgres"
	sserr "github.com/StricklySoft/taskhub/pkg/errors"
	"github.com/StricklySoft/taskhub/pkg/models"
)

const projectColumns = "id, name, description, owner_id, created_at, updated_at"

// Projects stores projects. Deleting a project deletes its tasks.
type Projects struct {
	db DB
}

// NewProjects returns a project store on db.
func NewProjects(db DB) *Projects {
	return &Projects{db: db}
}

// Create inserts a project owned by ownerID.
func (s *Projects) Create(ctx context.Context, ownerID int64, in models.ProjectInput) (models.Project, error) {
	row := s.db.QueryRow(ctx,
		"INSERT INTO projects (name, description, owner_id) VALUES ($1, $2, $3) RETURNING "+projectColumns,
		in.Name, in.Description, ownerID)
	p, err := scanProject(row)
	if err != nil {
		return models.Project{}, postgres.WrapScanError(err, "pgstore: create project failed")
	}
	return p, nil
}

// Get returns the project with the given ID or a
// [sserr.CodeNotFoundResource] error.
func (s *Projects) Get(ctx context.Context, id int64) (models.Project, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = $1", id)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Project{}, projectNotFound(id)
	}
	return p, postgres.WrapScanError(err, "pgstore: get project failed")
}

// Update replaces the name and description of a project.
func (s *Projects) Update(ctx context.Context, id int64, in models.ProjectInput) (models.Project, error) {
	row := s.db.QueryRow(ctx,
		"UPDATE projects SET name = $2, description = $3, updated_at = now() WHERE id = $1 RETURNING "+projectColumns,
		id, in.Name, in.Description)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Project{}, projectNotFound(id)
	}
	return p, postgres.WrapScanError(err, "pgstore: update project failed")
}

// Delete removes a project and its tasks.
func (s *Projects) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return projectNotFound(id)
	}
	return nil
}

// ListByOwner returns a page of the owner's projects ordered by ID.
func (s *Projects) ListByOwner(ctx context.Context, ownerID int64, req models.PageRequest) (models.Page[models.Project], error) {
	return listPage[models.Project](ctx, s.db,
		"SELECT count(*) FROM projects WHERE owner_id = $1",
		"SELECT "+projectColumns+" FROM projects WHERE owner_id = $1 ORDER BY id LIMIT $2 OFFSET $3",
		collectProject, req, ownerID)
}

// Search returns the owner's projects whose name contains term, ignoring
// case.
func (s *Projects) Search(ctx context.Context, ownerID int64, term string, req models.PageRequest) (models.Page[models.Project], error) {
	const where = ` WHERE owner_id = $1 AND name ILIKE '%' || $2 || '%' ESCAPE '\'`
	return listPage[models.Project](ctx, s.db,
		"SELECT count(*) FROM projects"+where,
		"SELECT "+projectColumns+" FROM projects"+where+" ORDER BY id LIMIT $3 OFFSET $4",
		collectProject, req, ownerID, escapeLike(term))
}

func projectNotFound(id int64) error {
	return sserr.Newf(sserr.CodeNotFoundResource, "project not found with id: %d", id)
}

func scanProject(row pgx.Row) (models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collectProject(row pgx.CollectableRow) (models.Project, error) {
	return scanProject(row)
}
