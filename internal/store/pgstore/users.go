package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/taskhub/pkg/clients/postgres"
	sserr "github.com/StricklySoft/taskhub/pkg/errors"
	"github.com/StricklySoft/taskhub/pkg/models"
)

const userColumns = "id, subject, email, name, role, created_at, updated_at"

// Users stores identity-pool users keyed by subject.
type Users struct {
	db DB
}

// NewUsers returns a user store on db.
func NewUsers(db DB) *Users {
	return &Users{db: db}
}

// FindBySubject returns the user with the given subject or a
// [sserr.CodeNotFoundUser] error.
func (s *Users) FindBySubject(ctx context.Context, subject string) (models.User, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE subject = $1", subject)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, sserr.New(sserr.CodeNotFoundUser, "user not found").
			WithDetail("subject", subject)
	}
	return u, postgres.WrapScanError(err, "pgstore: find user by subject failed")
}

// Get returns the user with the given ID.
func (s *Users) Get(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, sserr.Newf(sserr.CodeNotFoundUser, "user not found with id: %d", id)
	}
	return u, postgres.WrapScanError(err, "pgstore: get user failed")
}

// Create inserts u. A taken subject is a [sserr.CodeConflictAlreadyExists]
// error.
func (s *Users) Create(ctx context.Context, u models.User) (models.User, error) {
	if !u.Role.Valid() {
		u.Role = models.RoleUser
	}
	row := s.db.QueryRow(ctx,
		"INSERT INTO users (subject, email, name, role) VALUES ($1, $2, $3, $4) RETURNING "+userColumns,
		u.Subject, u.Email, u.Name, string(u.Role))
	created, err := scanUser(row)
	if err != nil {
		return models.User{}, postgres.WrapScanError(err, "pgstore: create user failed")
	}
	return created, nil
}

// List returns a page of users ordered by ID.
func (s *Users) List(ctx context.Context, req models.PageRequest) (models.Page[models.User], error) {
	return listPage[models.User](ctx, s.db,
		"SELECT count(*) FROM users",
		"SELECT "+userColumns+" FROM users ORDER BY id LIMIT $1 OFFSET $2",
		collectUser, req)
}

func scanUser(row pgx.Row) (models.User, error) {
	var (
		u    models.User
		role string
	)
	err := row.Scan(&u.ID, &u.Subject, &u.Email, &u.Name, &role, &u.CreatedAt, &u.UpdatedAt)
	u.Role = models.Role(role)
	return u, err
}

func collectUser(row pgx.CollectableRow) (models.User, error) {
	return scanUser(row)
}
