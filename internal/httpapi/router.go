// Package httpapi exposes the taskhub services over HTTP with chi.
//
// Every request passes, in order, through request-ID assignment, metrics,
// panic recovery, bearer authentication and access logging. Authentication
// never rejects a request; handlers call services, and services refuse
// anonymous or unauthorized callers through the auth guard. Errors are
// rendered as [ErrorBody].
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StricklySoft/taskhub/internal/service"
	"github.com/StricklySoft/taskhub/pkg/auth"
	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// Deps is everything the router needs. Metrics, Gatherer, HealthChecks
// and Ready are optional.
type Deps struct {
	Authenticator *auth.Authenticator
	Users         *service.Users
	Projects      *service.Projects
	Tasks         *service.Tasks
	Logger        *slog.Logger

	Metrics      *Metrics
	Gatherer     prometheus.Gatherer
	HealthChecks []HealthCheck
	Ready        ReadinessFunc
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{users: d.Users, projects: d.Projects, tasks: d.Tasks, logger: d.Logger}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(d.Metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler(d.HealthChecks))
	r.Get("/readyz", readyHandler(d.Ready))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(d.Authenticator.Middleware)
		r.Use(accessLog(d.Logger))

		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", h.listUsers)
			r.Get("/me", h.me)
			r.Get("/me/projects", h.myProjects)
			r.Get("/me/tasks", h.myTasks)
			r.Get("/{userID}", h.getUser)
			r.Get("/{userID}/projects", h.userProjects)
			r.Get("/{userID}/tasks", h.userTasks)
		})

		r.Route("/api/projects", func(r chi.Router) {
			r.Post("/", h.createProject)
			r.Get("/", h.myProjects)
			r.Get("/search", h.searchProjects)

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", h.getProject)
				r.Put("/", h.updateProject)
				r.Delete("/", h.deleteProject)

				r.Route("/tasks", func(r chi.Router) {
					r.Post("/", h.createTask)
					r.Get("/", h.listTasks)
					r.Get("/{taskID}", h.getTask)
					r.Put("/{taskID}", h.updateTask)
					r.Patch("/{taskID}/status", h.updateTaskStatus)
					r.Delete("/{taskID}", h.deleteTask)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, d.Logger, sserr.Newf(sserr.CodeNotFound, "no route for %s", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{
			Code:      sserr.CodeValidation.String(),
			Status:    http.StatusMethodNotAllowed,
			Error:     http.StatusText(http.StatusMethodNotAllowed),
			Message:   r.Method + " is not allowed on " + r.URL.Path,
			Path:      r.URL.Path,
			Timestamp: time.Now().UTC(),
			RequestID: requestIDFromContext(r.Context()),
		})
	})

	return r
}
