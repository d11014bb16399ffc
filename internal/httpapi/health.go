package httpapi

import (
	"context"
	"net/http"
	"time"
)

// healthTimeout bounds all dependency checks of one health request.
const healthTimeout = 3 * time.Second

// HealthCheck probes one dependency. Name appears in the health response.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReadinessFunc reports whether the server is accepting traffic.
type ReadinessFunc func() bool

type healthBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler runs every check and answers 200 when all pass, 503
// otherwise. Failure messages are not exposed.
func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		body := healthBody{Status: "UP", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				body.Checks[c.Name] = "DOWN"
				body.Status = "DOWN"
				status = http.StatusServiceUnavailable
				continue
			}
			body.Checks[c.Name] = "UP"
		}
		writeJSON(w, status, body)
	}
}

func readyHandler(ready ReadinessFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			writeJSON(w, http.StatusServiceUnavailable, healthBody{Status: "NOT_READY"})
			return
		}
		writeJSON(w, http.StatusOK, healthBody{Status: "READY"})
	}
}
