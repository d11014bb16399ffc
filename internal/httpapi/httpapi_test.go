package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/taskhub/internal/service"
	"github.com/StricklySoft/taskhub/internal/store/memstore"
	"github.com/StricklySoft/taskhub/internal/testutil"
	"github.com/StricklySoft/taskhub/internal/testutil/fixtures"
	"github.com/StricklySoft/taskhub/pkg/auth"
	sserr "github.com/StricklySoft/taskhub/pkg/errors"
	"github.com/StricklySoft/taskhub/pkg/models"
)

// apiTestEnv is a full router behind an httptest server, trusting tokens
// from a local identity pool.
type apiTestEnv struct {
	pool    *testutil.IdentityPool
	srv     *httptest.Server
	metrics *Metrics
	reg     *prometheus.Registry
	ready   *atomic.Bool
	healthy *atomic.Bool
}

func apiTestSetup(t *testing.T) *apiTestEnv {
	t.Helper()
	pool := testutil.NewIdentityPool(t)
	logger := slog.New(slog.DiscardHandler)
	reg := prometheus.NewRegistry()

	authMetrics, err := auth.NewMetrics(reg)
	require.NoError(t, err)
	keys := auth.NewKeyCache(auth.KeyCacheConfig{URL: pool.KeySetURL(), Metrics: authMetrics, Logger: logger})
	authn := auth.NewAuthenticator(auth.NewVerifier(keys, pool.Issuer, 0), logger, authMetrics)

	store := memstore.New()
	stores := service.Stores{Users: store.Users(), Projects: store.Projects(), Tasks: store.Tasks()}
	guard := auth.NewGuard(stores.Users, logger, authMetrics)

	httpMetrics, err := NewMetrics(reg)
	require.NoError(t, err)

	env := &apiTestEnv{pool: pool, metrics: httpMetrics, reg: reg, ready: &atomic.Bool{}, healthy: &atomic.Bool{}}
	env.ready.Store(true)
	env.healthy.Store(true)

	router := NewRouter(Deps{
		Authenticator: authn,
		Users:         service.NewUsers(guard, stores.Users),
		Projects:      service.NewProjects(guard, stores, logger),
		Tasks:         service.NewTasks(guard, stores, logger),
		Logger:        logger,
		Metrics:       httpMetrics,
		Gatherer:      reg,
		HealthChecks: []HealthCheck{{Name: "store", Check: func(ctx context.Context) error {
			if !env.healthy.Load() {
				return sserr.New(sserr.CodeUnavailable, "store is down")
			}
			return nil
		}}},
		Ready: env.ready.Load,
	})
	env.srv = httptest.NewServer(router)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *apiTestEnv) alice(t *testing.T) string { return e.pool.Token(t, fixtures.AliceSubject, false) }
func (e *apiTestEnv) bob(t *testing.T) string { return e.pool.Token(t, fixtures.BobSubject, false) }
func (e *apiTestEnv) admin(t *testing.T) string { return e.pool.Token(t, fixtures.AdminSubject, true) }

// apiTestDo sends a request and returns the response with its body read.
func apiTestDo(t *testing.T, env *apiTestEnv, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, env.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(auth.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func apiTestDecode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), "body: %s", data)
	return v
}

// apiTestProject creates a project with token and returns it.
func apiTestProject(t *testing.T, env *apiTestEnv, token, name string) models.Project {
	t.Helper()
	resp, data := apiTestDo(t, env, http.MethodPost, "/api/projects", token, fixtures.ProjectInput(name))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", data)
	return apiTestDecode[models.Project](t, data)
}

func apiTestPath(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

// ===========================================================================
// Authentication
// ===========================================================================

func TestAPI_AnonymousIsRejected(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)

	resp, data := apiTestDo(t, env, http.MethodGet, "/api/users/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := apiTestDecode[ErrorBody](t, data)
	assert.Equal(t, sserr.CodeAuthenticationRequired.String(), body.Code)
	assert.Equal(t, http.StatusUnauthorized, body.Status)
	assert.Equal(t, "/api/users/me", body.Path)
	assert.NotEmpty(t, body.RequestID)
	assert.False(t, body.Timestamp.IsZero())
}

func TestAPI_InvalidTokensFallBackToAnonymous(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)

	expired := env.pool.Claims(fixtures.AliceSubject)
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	foreign := env.pool.Claims(fixtures.AliceSubject)
	foreign["iss"] = "https://cognito-idp.eu-west-1.amazonaws.com/other"

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: env.pool.Sign(t, expired)},
		{name: "foreign issuer", token: env.pool.Sign(t, foreign)},
		{name: "garbage", token: "not.a.token"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, data := apiTestDo(t, env, http.MethodGet, "/api/users/me", tc.token, nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, sserr.CodeAuthenticationRequired.String(), apiTestDecode[ErrorBody](t, data).Code)
		})
	}
}

func TestAPI_MeProvisionsUserOnce(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)
	token := env.alice(t)

	resp, data := apiTestDo(t, env, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", data)
	first := apiTestDecode[models.User](t, data)
	assert.Equal(t, fixtures.AliceSubject, first.Subject)
	assert.Equal(t, fixtures.AliceSubject+"@example.com", first.Email)
	assert.Equal(t, models.RoleUser, first.Role)

	_, data = apiTestDo(t, env, http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, first.ID, apiTestDecode[models.User](t, data).ID)
	assert.Equal(t, 1, env.pool.KeySetFetches(), "second request must be served from the key cache")
}

// ===========================================================================
// Request metadata
// ===========================================================================

func TestAPI_RequestID(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)

	resp, _ := apiTestDo(t, env, http.MethodGet, "/healthz", "", nil)
	generated := resp.Header.Get(HeaderRequestID)
	assert.Len(t, generated, 36)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/users/me", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "req-123")
	resp, err = env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-123", resp.Header.Get(HeaderRequestID))
	var body ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "req-123", body.RequestID)
}

func TestAPI_UnknownRoute(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)

	resp, data := apiTestDo(t, env, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, sserr.CodeNotFound.String(), apiTestDecode[ErrorBody](t, data).Code)

	resp, data = apiTestDo(t, env, http.MethodPatch, "/api/projects", env.alice(t), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, apiTestDecode[ErrorBody](t, data).Status)
}

// ===========================================================================
// Projects
// ===========================================================================

func TestAPI_ProjectLifecycle(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)
	token := env.alice(t)

	p := apiTestProject(t, env, token, "Roadmap")
	assert.Equal(t, "Roadmap", p.Name)
	assert.NotZero(t, p.OwnerID)

	path := apiTestPath("/api/projects/%d", p.ID)
	resp, data := apiTestDo(t, env, http.MethodPut, path, token, models.ProjectInput{Name: "Roadmap 2", Description: "next"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", data)
	assert.Equal(t, "Roadmap 2", apiTestDecode[models.Project](t, data).Name)

	resp, data = apiTestDo(t, env, http.MethodGet, "/api/projects?page=0&size=5", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := apiTestDecode[models.Page[models.Project]](t, data)
	assert.Equal(t, int64(1), page.TotalElements)
	assert.Equal(t, 5, page.PageSize)

	resp, _ = apiTestDo(t, env, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, data = apiTestDo(t, env, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, sserr.CodeNotFoundResource.String(), apiTestDecode[ErrorBody](t, data).Code)
}

func TestAPI_ProjectValidation(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)

	resp, data := apiTestDo(t, env, http.MethodPost, "/api/projects", env.alice(t),
		models.ProjectInput{Name: "", Description: strings.Repeat("x", models.DescriptionMaxLen+1)})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := apiTestDecode[ErrorBody](t, data)
	assert.Equal(t, sserr.CodeValidation.String(), body.Code)
	require.Len(t, body.ValidationErrors, 2)
	assert.Equal(t, "description", body.ValidationErrors[0].Field)
	assert.Equal(t, "name", body.ValidationErrors[1].Field)
}

func TestAPI_MalformedRequests(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)
	token := env.alice(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   sserr.Code
	}{
		{name: "empty body", method: http.MethodPost, path: "/api/projects", code: sserr.CodeValidationRequired},
		{name: "bad json", method: http.MethodPost, path: "/api/projects", body: "{", code: sserr.CodeValidationFormat},
		{name: "bad id", method: http.MethodGet, path: "/api/projects/abc", code: sserr.CodeValidationFormat},
		{name: "bad page", method: http.MethodGet, path: "/api/projects?page=x", code: sserr.CodeValidationFormat},
		{name: "bad status", method: http.MethodGet, path: "/api/users/me/tasks?status=LATER", code: sserr.CodeValidationFormat},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, env.srv.URL+tc.path, strings.NewReader(tc.body))
			require.NoError(t, err)
			req.Header.Set(auth.HeaderAuthorization, "Bearer "+token)
			resp, err := env.srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body ErrorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.code.String(), body.Code)
		})
	}
}

func TestAPI_ForeignProjectForbidden(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)
	p := apiTestProject(t, env, env.alice(t), "Private")
	path := apiTestPath("/api/projects/%d", p.ID)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		resp, data := apiTestDo(t, env, method, path, env.bob(t), fixtures.ProjectInput("Mine now"))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, method)
		assert.Equal(t, sserr.CodeAuthorizationDenied.String(), apiTestDecode[ErrorBody](t, data).Code, method)
	}

	resp, _ := apiTestDo(t, env, http.MethodGet, "/api/projects/999999", env.bob(t), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "missing resources are 404 even for non-owners")
}

func TestAPI_AdminBypassesOwnership(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)
	p := apiTestProject(t, env, env.alice(t), "Audited")

	resp, data := apiTestDo(t, env, http.MethodGet, apiTestPath("/api/projects/%d", p.ID), env.admin(t), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", data)
	assert.Equal(t, p.ID, apiTestDecode[models.Project](t, data).ID)

	resp, data = apiTestDo(t, env, http.MethodGet, apiTestPath("/api/users/%d/projects", p.OwnerID), env.admin(t), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", data)
	assert.Equal(t, int64(1), apiTestDecode[models.Page[models.Project]](t, data).TotalElements)

	resp, _ = apiTestDo(t, env, http.MethodGet, apiTestPath("/api/users/%d/projects", p.OwnerID), env.bob(t), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = apiTestDo(t, env, http.MethodGet, "/api/users", env.bob(t), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = apiTestDo(t, env, http.MethodGet, "/api/users", env.admin(t), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_SearchProjects(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)
	apiTestProject(t, env, env.alice(t), "Garden Plans")
	apiTestProject(t, env, env.alice(t), "Kitchen")
	apiTestProject(t, env, env.bob(t), "Garden Party")

	resp, data := apiTestDo(t, env, http.MethodGet, "/api/projects/search?searchTerm=garden", env.alice(t), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", data)
	page := apiTestDecode[models.Page[models.Project]](t, data)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "Garden Plans", page.Content[0].Name)

	resp, _ = apiTestDo(t, env, http.MethodGet, "/api/projects/search?searchTerm=%20", env.alice(t), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_HugePageIsClamped(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)
	apiTestProject(t, env, env.alice(t), "Almanac")

	for _, path := range []string{
		"/api/users/me/projects?page=500000000000000000",
		"/api/projects/search?searchTerm=Al&page=500000000000000000",
		"/api/users/me/tasks?page=500000000000000000&size=100",
	} {
		resp, data := apiTestDo(t, env, http.MethodGet, path, env.alice(t), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "%s body: %s", path, data)
		page := apiTestDecode[models.Page[json.RawMessage]](t, data)
		assert.Empty(t, page.Content, path)
		assert.Equal(t, models.MaxPage, page.PageNumber, path)
	}
}

// ===========================================================================
// Tasks
// ===========================================================================

func TestAPI_TaskLifecycle(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)
	token := env.alice(t)
	p := apiTestProject(t, env, token, "Chores")
	tasksPath := apiTestPath("/api/projects/%d/tasks", p.ID)

	resp, data := apiTestDo(t, env, http.MethodPost, tasksPath, token, fixtures.TaskInput("Dishes"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", data)
	task := apiTestDecode[models.Task](t, data)
	assert.Equal(t, p.ID, task.ProjectID)
	assert.Equal(t, models.TaskStatusTodo, task.Status)

	resp, data = apiTestDo(t, env, http.MethodPost, tasksPath, token, fixtures.TaskInput("Dishes"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, sserr.CodeConflictAlreadyExists.String(), apiTestDecode[ErrorBody](t, data).Code)

	taskPath := apiTestPath("%s/%d", tasksPath, task.ID)
	resp, data = apiTestDo(t, env, http.MethodPatch, taskPath+"/status", token, map[string]string{"status": "DONE"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", data)
	assert.Equal(t, models.TaskStatusDone, apiTestDecode[models.Task](t, data).Status)

	resp, data = apiTestDo(t, env, http.MethodGet, tasksPath+"?status=done", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), apiTestDecode[models.Page[models.Task]](t, data).TotalElements)

	resp, data = apiTestDo(t, env, http.MethodGet, "/api/users/me/tasks?status=TODO", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(0), apiTestDecode[models.Page[models.Task]](t, data).TotalElements)

	resp, _ = apiTestDo(t, env, http.MethodDelete, taskPath, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = apiTestDo(t, env, http.MethodGet, taskPath, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_TasksInheritProjectOwnership(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)
	p := apiTestProject(t, env, env.alice(t), "Secret")
	tasksPath := apiTestPath("/api/projects/%d/tasks", p.ID)

	resp, _ := apiTestDo(t, env, http.MethodPost, tasksPath, env.bob(t), fixtures.TaskInput("Sneak"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = apiTestDo(t, env, http.MethodGet, tasksPath, env.bob(t), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = apiTestDo(t, env, http.MethodPost, tasksPath, env.admin(t), fixtures.TaskInput("Audit"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAPI_TaskStatusValidation(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)
	token := env.alice(t)
	p := apiTestProject(t, env, token, "Errands")

	resp, data := apiTestDo(t, env, http.MethodPost, apiTestPath("/api/projects/%d/tasks", p.ID), token, fixtures.TaskInput("Post"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", data)
	task := apiTestDecode[models.Task](t, data)

	resp, data = apiTestDo(t, env, http.MethodPatch, apiTestPath("/api/projects/%d/tasks/%d/status", p.ID, task.ID), token,
		map[string]string{"status": "SOMEDAY"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := apiTestDecode[ErrorBody](t, data)
	require.Len(t, body.ValidationErrors, 1)
	assert.Equal(t, "status", body.ValidationErrors[0].Field)
}

// ===========================================================================
// Health and metrics
// ===========================================================================

func TestAPI_HealthAndReadiness(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)

	resp, data := apiTestDo(t, env, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "UP", apiTestDecode[healthBody](t, data).Checks["store"])

	env.healthy.Store(false)
	resp, data = apiTestDo(t, env, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "DOWN", apiTestDecode[healthBody](t, data).Status)

	resp, _ = apiTestDo(t, env, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env.ready.Store(false)
	resp, data = apiTestDo(t, env, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "NOT_READY", apiTestDecode[healthBody](t, data).Status)
}

func TestAPI_MetricsUseRoutePatterns(t *testing.T) {
	t.Parallel()
	env := apiTestSetup(t)
	token := env.alice(t)
	p := apiTestProject(t, env, token, "Metered")

	for range 3 {
		apiTestDo(t, env, http.MethodGet, apiTestPath("/api/projects/%d/tasks/%d", p.ID, 424242), token, nil)
	}
	apiTestDo(t, env, http.MethodGet, "/definitely/not/here", "", nil)

	route := "/api/projects/{projectID}/tasks/{taskID}"
	assert.Equal(t, 3.0, promtest.ToFloat64(env.metrics.requests.WithLabelValues(http.MethodGet, route, "404")))
	assert.Equal(t, 1.0, promtest.ToFloat64(env.metrics.requests.WithLabelValues(http.MethodGet, unmatchedRoute, "404")))

	resp, data := apiTestDo(t, env, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "taskhub_http_requests_total")
	assert.NotContains(t, string(data), "/definitely/not/here")
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	require.NoError(t, err)
	second, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, first.requests, second.requests)
}

func TestMetrics_NilIsPassThrough(t *testing.T) {
	t.Parallel()
	var m *Metrics
	called := false
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
