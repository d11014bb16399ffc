package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
	"github.com/StricklySoft/taskhub/pkg/models"
)

// maxBodyBytes caps request bodies; descriptions are at most 5000
// characters, so 64 KiB leaves plenty of room.
const maxBodyBytes = 64 << 10

// ErrorBody is the JSON document returned for every failed request.
type ErrorBody struct {
	Code             string            `json:"code"`
	Status           int               `json:"status"`
	Error            string            `json:"error"`
	Message          string            `json:"message"`
	Path             string            `json:"path"`
	Timestamp        time.Time         `json:"timestamp"`
	RequestID        string            `json:"requestId,omitempty"`
	ValidationErrors []ValidationError `json:"validationErrors,omitempty"`
}

// ValidationError names one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError renders err as an [ErrorBody]. Errors without a taskhub code
// become a 500. Internal errors never expose their message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ssErr, ok := sserr.AsError(err)
	if !ok {
		ssErr = sserr.Wrap(err, sserr.CodeInternal, "an unexpected error occurred")
	}
	status := ssErr.HTTPStatus()
	message := ssErr.Message
	if sserr.IsInternal(ssErr) {
		message = "an unexpected error occurred"
	}

	body := ErrorBody{
		Code:      ssErr.Code.String(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC(),
		RequestID: requestIDFromContext(r.Context()),
	}
	if fields, ok := ssErr.Details["fields"].(map[string]string); ok {
		for field, msg := range fields {
			body.ValidationErrors = append(body.ValidationErrors, ValidationError{Field: field, Message: msg})
		}
		sortValidationErrors(body.ValidationErrors)
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "code", body.Code, "error", err)
	} else {
		logger.InfoContext(r.Context(), "request rejected", "code", body.Code, "message", body.Message)
	}
	writeJSON(w, status, body)
}

func sortValidationErrors(v []ValidationError) {
	slices.SortFunc(v, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
}

// decodeJSON reads a JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return sserr.Wrap(err, sserr.CodeValidationRange, "request body is too large")
		case errors.Is(err, io.EOF):
			return sserr.New(sserr.CodeValidationRequired, "request body is required")
		default:
			return sserr.Wrap(err, sserr.CodeValidationFormat, "request body is not valid JSON")
		}
	}
	return nil
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, sserr.Newf(sserr.CodeValidationFormat, "%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

// pageRequest reads the page and size query parameters. Missing values
// take the defaults; out-of-range values are clamped.
func pageRequest(r *http.Request) (models.PageRequest, error) {
	var req models.PageRequest
	q := r.URL.Query()
	for name, dst := range map[string]*int{"page": &req.Page, "size": &req.Size} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return models.PageRequest{}, sserr.Newf(sserr.CodeValidationFormat, "%s must be an integer, got %q", name, raw)
		}
		*dst = n
	}
	return req.Normalize(), nil
}

// statusFilter reads the optional status query parameter.
func statusFilter(r *http.Request) (models.TaskStatus, error) {
	return models.ParseTaskStatus(r.URL.Query().Get("status"))
}
