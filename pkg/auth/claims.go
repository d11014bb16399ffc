package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/StricklySoft/taskhub/pkg/models"
)

// Cognito claim names read by [ExtractPrincipal].
const (
	ClaimEmail    = "email"
	ClaimName     = "name"
	ClaimUsername = "cognito:username"
	ClaimGroups   = "cognito:groups"
	ClaimRole     = "custom:role"
)

// Principal is the authenticated caller for one request, derived from a
// verified token. It is a value; every request gets its own copy.
type Principal struct {
	Subject string
	Email   string
	Name    string
	Role    models.Role
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool { return p.Role.IsAdmin() }

// ExtractPrincipal derives a Principal from verified claims. It cannot
// fail; each field falls back as follows:
//
//   - Email: email, then cognito:username.
//   - Role: custom:role, then the first cognito:groups entry, then USER.
//     The value is upper-cased, a ROLE_ prefix is dropped and anything
//     unrecognized becomes USER.
//   - Name: name, then cognito:username, then the part of the email
//     claim before "@" when it has one, then "".
//
// String claims are trimmed of surrounding whitespace, so a blank value
// counts as missing and falls through.
func ExtractPrincipal(claims jwt.MapClaims) Principal {
	sub, _ := claims.GetSubject()
	username := stringClaim(claims, ClaimUsername)

	emailClaim := stringClaim(claims, ClaimEmail)
	email := emailClaim
	if email == "" {
		email = username
	}

	name := stringClaim(claims, ClaimName)
	if name == "" {
		name = username
	}
	if local, _, found := strings.Cut(emailClaim, "@"); name == "" && found {
		name = local
	}

	return Principal{
		Subject: sub,
		Email:   email,
		Name:    name,
		Role:    roleFromClaims(claims),
	}
}

func roleFromClaims(claims jwt.MapClaims) models.Role {
	if role := stringClaim(claims, ClaimRole); role != "" {
		return models.ParseRole(role)
	}
	if groups := listClaim(claims, ClaimGroups); len(groups) > 0 {
		return models.ParseRole(groups[0])
	}
	return models.RoleUser
}

// stringClaim returns the trimmed string value of name, or "".
func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return strings.TrimSpace(s)
}

// listClaim reads a string list claim. JSON decoding yields []any; a
// single string is treated as a one-element list.
func listClaim(claims jwt.MapClaims, name string) []string {
	switch v := claims[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
