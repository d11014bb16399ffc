// Package memstore keeps users, projects and tasks in process memory. It
// behaves like pgstore, including not-found and conflict errors, and backs
// the "memory" store driver and service tests.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
	"github.com/StricklySoft/taskhub/pkg/models"
)

// Store holds all three tables under one lock so that project deletion
// can cascade to tasks.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	lastID   int64
	users    map[int64]models.User
	projects map[int64]models.Project
	tasks    map[int64]models.Task
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:      time.Now,
		users:    make(map[int64]models.User),
		projects: make(map[int64]models.Project),
		tasks:    make(map[int64]models.Task),
	}
}

// Users returns the user table.
func (s *Store) Users() *Users { return &Users{s} }

// Projects returns the project table.
func (s *Store) Projects() *Projects { return &Projects{s} }

// Tasks returns the task table.
func (s *Store) Tasks() *Tasks { return &Tasks{s} }

func (s *Store) nextID() int64 {
	s.lastID++
	return s.lastID
}

// page sorts items by ID and cuts out the requested page.
func page[T any](items []T, id func(T) int64, req models.PageRequest) models.Page[T] {
	req = req.Normalize()
	slices.SortFunc(items, func(a, b T) int { return cmp.Compare(id(a), id(b)) })
	total := int64(len(items))
	start := min(req.Offset(), len(items))
	end := min(start+req.Size, len(items))
	return models.NewPage(items[start:end], req, total)
}

// ===========================================================================
// Users
// ===========================================================================

// Users is the user table of a [Store].
type Users struct{ s *Store }

// FindBySubject returns the user with subject.
func (u *Users) FindBySubject(_ context.Context, subject string) (models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, user := range u.s.users {
		if user.Subject == subject {
			return user, nil
		}
	}
	return models.User{}, sserr.New(sserr.CodeNotFoundUser, "user not found").
		WithDetail("subject", subject)
}

// Get returns the user with id.
func (u *Users) Get(_ context.Context, id int64) (models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[id]
	if !ok {
		return models.User{}, sserr.Newf(sserr.CodeNotFoundUser, "user not found with id: %d", id)
	}
	return user, nil
}

// Create stores a new user. Subjects are unique.
func (u *Users) Create(_ context.Context, user models.User) (models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, existing := range u.s.users {
		if existing.Subject == user.Subject {
			return models.User{}, sserr.New(sserr.CodeConflictAlreadyExists, "user already exists").
				WithDetail("constraint", "users_subject_key")
		}
	}
	if !user.Role.Valid() {
		user.Role = models.RoleUser
	}
	user.ID = u.s.nextID()
	user.CreatedAt = u.s.now()
	user.UpdatedAt = user.CreatedAt
	u.s.users[user.ID] = user
	return user, nil
}

// List returns a page of users ordered by ID.
func (u *Users) List(_ context.Context, req models.PageRequest) (models.Page[models.User], error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	all := make([]models.User, 0, len(u.s.users))
	for _, user := range u.s.users {
		all = append(all, user)
	}
	return page(all, func(x models.User) int64 { return x.ID }, req), nil
}

// ===========================================================================
// Projects
// ===========================================================================

// Projects is the project table of a [Store].
type Projects struct{ s *Store }

// Create stores a project owned by ownerID.
func (p *Projects) Create(_ context.Context, ownerID int64, in models.ProjectInput) (models.Project, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	now := p.s.now()
	project := models.Project{
		ID:          p.s.nextID(),
		Name:        in.Name,
		Description: in.Description,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.s.projects[project.ID] = project
	return project, nil
}

// Get returns the project with id.
func (p *Projects) Get(_ context.Context, id int64) (models.Project, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	project, ok := p.s.projects[id]
	if !ok {
		return models.Project{}, projectNotFound(id)
	}
	return project, nil
}

// Update replaces the name and description of a project.
func (p *Projects) Update(_ context.Context, id int64, in models.ProjectInput) (models.Project, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	project, ok := p.s.projects[id]
	if !ok {
		return models.Project{}, projectNotFound(id)
	}
	project.Name = in.Name
	project.Description = in.Description
	project.UpdatedAt = p.s.now()
	p.s.projects[id] = project
	return project, nil
}

// Delete removes a project and its tasks.
func (p *Projects) Delete(_ context.Context, id int64) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.projects[id]; !ok {
		return projectNotFound(id)
	}
	delete(p.s.projects, id)
	for tid, task := range p.s.tasks {
		if task.ProjectID == id {
			delete(p.s.tasks, tid)
		}
	}
	return nil
}

// ListByOwner returns a page of the owner's projects.
func (p *Projects) ListByOwner(_ context.Context, ownerID int64, req models.PageRequest) (models.Page[models.Project], error) {
	return p.filter(req, func(x models.Project) bool { return x.OwnerID == ownerID }), nil
}

// Search returns the owner's projects whose name contains term, ignoring
// case.
func (p *Projects) Search(_ context.Context, ownerID int64, term string, req models.PageRequest) (models.Page[models.Project], error) {
	term = strings.ToLower(term)
	return p.filter(req, func(x models.Project) bool {
		return x.OwnerID == ownerID && strings.Contains(strings.ToLower(x.Name), term)
	}), nil
}

func (p *Projects) filter(req models.PageRequest, keep func(models.Project) bool) models.Page[models.Project] {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	var out []models.Project
	for _, project := range p.s.projects {
		if keep(project) {
			out = append(out, project)
		}
	}
	return page(out, func(x models.Project) int64 { return x.ID }, req)
}

func projectNotFound(id int64) error {
	return sserr.Newf(sserr.CodeNotFoundResource, "project not found with id: %d", id)
}

// ===========================================================================
// Tasks
// ===========================================================================

// Tasks is the task table of a [Store]. Titles are unique per project.
type Tasks struct{ s *Store }

// Create stores a task in a project.
func (t *Tasks) Create(_ context.Context, projectID int64, in models.TaskInput) (models.Task, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.projects[projectID]; !ok {
		return models.Task{}, projectNotFound(projectID)
	}
	if t.titleTaken(projectID, 0, in.Title) {
		return models.Task{}, duplicateTitle(in.Title)
	}
	now := t.s.now()
	task := models.Task{
		ID:          t.s.nextID(),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		ProjectID:   projectID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.s.tasks[task.ID] = task
	return task, nil
}

// Get returns a task of a project.
func (t *Tasks) Get(_ context.Context, projectID, taskID int64) (models.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.lookup(projectID, taskID)
}

// Update replaces title, description and status of a task.
func (t *Tasks) Update(_ context.Context, projectID, taskID int64, in models.TaskInput) (models.Task, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	task, err := t.lookup(projectID, taskID)
	if err != nil {
		return models.Task{}, err
	}
	if t.titleTaken(projectID, taskID, in.Title) {
		return models.Task{}, duplicateTitle(in.Title)
	}
	task.Title = in.Title
	task.Description = in.Description
	task.Status = in.Status
	task.UpdatedAt = t.s.now()
	t.s.tasks[taskID] = task
	return task, nil
}

// UpdateStatus changes the status of a task.
func (t *Tasks) UpdateStatus(_ context.Context, projectID, taskID int64, status models.TaskStatus) (models.Task, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	task, err := t.lookup(projectID, taskID)
	if err != nil {
		return models.Task{}, err
	}
	task.Status = status
	task.UpdatedAt = t.s.now()
	t.s.tasks[taskID] = task
	return task, nil
}

// Delete removes a task of a project.
func (t *Tasks) Delete(_ context.Context, projectID, taskID int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, err := t.lookup(projectID, taskID); err != nil {
		return err
	}
	delete(t.s.tasks, taskID)
	return nil
}

// ListByProject returns a page of a project's tasks. An empty status
// matches all.
func (t *Tasks) ListByProject(_ context.Context, projectID int64, status models.TaskStatus, req models.PageRequest) (models.Page[models.Task], error) {
	return t.filter(req, func(x models.Task) bool {
		return x.ProjectID == projectID && (status == "" || x.Status == status)
	}), nil
}

// ListByOwner returns a page of tasks in all projects of ownerID.
func (t *Tasks) ListByOwner(_ context.Context, ownerID int64, status models.TaskStatus, req models.PageRequest) (models.Page[models.Task], error) {
	t.s.mu.RLock()
	owned := make(map[int64]bool)
	for id, project := range t.s.projects {
		if project.OwnerID == ownerID {
			owned[id] = true
		}
	}
	t.s.mu.RUnlock()

	return t.filter(req, func(x models.Task) bool {
		return owned[x.ProjectID] && (status == "" || x.Status == status)
	}), nil
}

func (t *Tasks) filter(req models.PageRequest, keep func(models.Task) bool) models.Page[models.Task] {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var out []models.Task
	for _, task := range t.s.tasks {
		if keep(task) {
			out = append(out, task)
		}
	}
	return page(out, func(x models.Task) int64 { return x.ID }, req)
}

// lookup expects the lock to be held.
func (t *Tasks) lookup(projectID, taskID int64) (models.Task, error) {
	task, ok := t.s.tasks[taskID]
	if !ok || task.ProjectID != projectID {
		return models.Task{}, sserr.Newf(sserr.CodeNotFoundResource, "task not found with id: %d", taskID)
	}
	return task, nil
}

// titleTaken expects the lock to be held. The task with ID self is
// ignored.
func (t *Tasks) titleTaken(projectID, self int64, title string) bool {
	for id, task := range t.s.tasks {
		if id != self && task.ProjectID == projectID && task.Title == title {
			return true
		}
	}
	return false
}

func duplicateTitle(title string) error {
	return sserr.Newf(sserr.CodeConflictAlreadyExists,
		"task with title '%s' already exists in this project", title)
}
