package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// Length limits shared by projects and tasks.
const (
	NameMinLen        = 3
	NameMaxLen        = 255
	DescriptionMaxLen = 5000
)

// Project is a named container of tasks owned by exactly one user.
type Project struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	OwnerID     int64     `json:"ownerId" db:"owner_id"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// ProjectInput is the client-supplied part of a project.
type ProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Normalize trims surrounding whitespace from the name.
func (in *ProjectInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
}

// Validate checks the name and description lengths. All problems are
// reported together in the error's "fields" detail.
func (in ProjectInput) Validate() error {
	fields := map[string]string{}
	checkLength(fields, "name", in.Name, NameMinLen, NameMaxLen)
	if utf8.RuneCountInString(in.Description) > DescriptionMaxLen {
		fields["description"] = "must be at most 5000 characters"
	}
	return fieldErrors(fields)
}

func checkLength(fields map[string]string, name, value string, minLen, maxLen int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0:
		fields[name] = "is required"
	case n < minLen || n > maxLen:
		fields[name] = fmt.Sprintf("must be between %d and %d characters", minLen, maxLen)
	}
}

func fieldErrors(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return sserr.New(sserr.CodeValidation, "validation failed").WithDetail("fields", fields)
}
