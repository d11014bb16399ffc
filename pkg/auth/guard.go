package auth

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
	"github.com/StricklySoft/taskhub/pkg/models"
)

// UserStore is the user persistence the guard needs. FindBySubject must
// return an error with a not-found code when no user exists, and Create
// a conflict code when the subject is already taken.
type UserStore interface {
	FindBySubject(ctx context.Context, subject string) (models.User, error)
	Create(ctx context.Context, u models.User) (models.User, error)
}

// Guard makes the allow/deny decisions services need before they read,
// change or delete anything.
type Guard struct {
	users   UserStore
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewGuard returns a guard resolving principals through users.
func NewGuard(users UserStore, logger *slog.Logger, metrics *Metrics) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{users: users, logger: logger, metrics: metrics, tracer: otel.Tracer(tracerName)}
}

// RequireAuthenticated returns the request's principal, or an
// [sserr.CodeAuthenticationRequired] error when the request is anonymous.
func (g *Guard) RequireAuthenticated(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	g.metrics.guardDecision("authenticated", ok)
	if !ok {
		return Principal{}, sserr.New(sserr.CodeAuthenticationRequired, "authentication is required")
	}
	return p, nil
}

// RequireAdmin returns the principal if its token carries the admin role.
// Anonymous requests fail authentication first.
func (g *Guard) RequireAdmin(ctx context.Context) (Principal, error) {
	p, err := g.RequireAuthenticated(ctx)
	if err != nil {
		return Principal{}, err
	}
	allowed := p.IsAdmin()
	g.metrics.guardDecision("admin", allowed)
	if !allowed {
		g.logger.InfoContext(ctx, "auth: admin access denied", "subject", p.Subject)
		return Principal{}, sserr.New(sserr.CodeAuthorizationAdminRequired, "admin role is required").
			WithDetail("required_role", models.RoleAdmin.String())
	}
	return p, nil
}

// CurrentUser returns the stored user for the request's principal,
// creating it on first sight from the principal's email, name and role.
// An existing record is returned as stored; later role changes in the
// token are not written back.
func (g *Guard) CurrentUser(ctx context.Context) (models.User, error) {
	p, err := g.RequireAuthenticated(ctx)
	if err != nil {
		return models.User{}, err
	}
	return g.resolve(ctx, p)
}

func (g *Guard) resolve(ctx context.Context, p Principal) (models.User, error) {
	ctx, span := startSpan(ctx, g.tracer, "auth.Guard.ResolveUser")
	defer span.End()

	u, err := g.users.FindBySubject(ctx, p.Subject)
	if err == nil {
		return u, nil
	}
	if !sserr.IsNotFound(err) {
		finishSpan(span, err)
		return models.User{}, err
	}

	u, err = g.users.Create(ctx, models.User{
		Subject: p.Subject,
		Email:   p.Email,
		Name:    p.Name,
		Role:    p.Role,
	})
	if sserr.IsConflict(err) {
		// A concurrent first request for the same subject won the insert.
		u, err = g.users.FindBySubject(ctx, p.Subject)
		if err != nil {
			finishSpan(span, err)
			return models.User{}, err
		}
		return u, nil
	}
	if err != nil {
		finishSpan(span, err)
		return models.User{}, err
	}

	span.SetAttributes(attribute.Bool("auth.user_created", true))
	g.logger.InfoContext(ctx, "auth: created user for new subject",
		"user_id", u.ID,
		"role", u.Role.String(),
	)
	return u, nil
}

// RequireOwnerOrAdmin returns the caller's user record when the caller is
// an admin or its user ID equals ownerID. Otherwise it fails with
// [sserr.CodeAuthorizationDenied]. Callers check that the resource exists
// before calling this.
func (g *Guard) RequireOwnerOrAdmin(ctx context.Context, ownerID int64) (models.User, error) {
	p, err := g.RequireAuthenticated(ctx)
	if err != nil {
		return models.User{}, err
	}
	u, err := g.resolve(ctx, p)
	if err != nil {
		return models.User{}, err
	}

	allowed := p.IsAdmin() || u.ID == ownerID
	g.metrics.guardDecision("owner_or_admin", allowed)
	if !allowed {
		g.logger.InfoContext(ctx, "auth: access to foreign resource denied",
			"user_id", u.ID,
			"owner_id", ownerID,
		)
		return models.User{}, sserr.New(sserr.CodeAuthorizationDenied,
			"access denied: you are not the owner of this resource")
	}
	return u, nil
}
