// Package models holds the persisted taskhub entities and the pagination
// envelope shared by stores, services and the HTTP layer.
//
// Ownership is one-directional: a [Project] records its owner's user ID
// and a [Task] records its project ID. Nothing on [User] enumerates what
// the user owns; listing is always a query keyed by owner.
package models

import (
	"strings"
	"time"
)

// Role is the coarse authorization level of a principal or user.
type Role string

const (
	// RoleUser is the default role. Users see and change only what they own.
	RoleUser Role = "USER"

	// RoleAdmin bypasses ownership checks. It never bypasses existence
	// checks: an admin asking for a missing project still gets not found.
	RoleAdmin Role = "ADMIN"
)

// rolePrefix is the authority-style prefix some identity pools put in
// front of role names.
const rolePrefix = "ROLE_"

// ParseRole normalizes a role claim value. Surrounding space and a
// leading "ROLE_" are dropped and the rest is upper-cased. Anything other
// than ADMIN or USER, including the empty string, yields RoleUser.
func ParseRole(s string) Role {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, rolePrefix)
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// String returns the role name.
func (r Role) String() string { return string(r) }

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// IsAdmin reports whether r is RoleAdmin.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// User is the local record of an identity-pool subject. It is created the
// first time an authenticated request for an unseen subject needs it.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Subject   string    `json:"cognitoSub" db:"subject"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
