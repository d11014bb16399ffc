package models

import (
	"strings"
	"time"
	"unicode/utf8"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// TaskStatus is the progress state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
)

// String returns the status name.
func (s TaskStatus) String() string { return string(s) }

// Valid reports whether s is a defined status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// ParseTaskStatus parses a status query parameter. The empty string means
// "no filter" and is returned as is.
func ParseTaskStatus(s string) (TaskStatus, error) {
	if s == "" {
		return "", nil
	}
	st := TaskStatus(strings.ToUpper(s))
	if !st.Valid() {
		return "", sserr.Newf(sserr.CodeValidationFormat,
			"status must be one of TODO, IN_PROGRESS, DONE; got %q", s)
	}
	return st, nil
}

// Task is a unit of work inside a project. Its owner is its project's
// owner. Titles are unique within a project.
type Task struct {
	ID          int64      `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	Status      TaskStatus `json:"status" db:"status"`
	ProjectID   int64      `json:"projectId" db:"project_id"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// TaskInput is the client-supplied part of a task.
type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
}

// Normalize trims the title.
func (in *TaskInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
}

// Validate checks title and description lengths and that a valid status
// is present.
func (in TaskInput) Validate() error {
	fields := map[string]string{}
	checkLength(fields, "title", in.Title, NameMinLen, NameMaxLen)
	if utf8.RuneCountInString(in.Description) > DescriptionMaxLen {
		fields["description"] = "must be at most 5000 characters"
	}
	switch {
	case in.Status == "":
		fields["status"] = "is required"
	case !in.Status.Valid():
		fields["status"] = "must be one of TODO, IN_PROGRESS, DONE"
	}
	return fieldErrors(fields)
}
