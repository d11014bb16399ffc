package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// ---------------------------------------------------------------------------
// Role
// ---------------------------------------------------------------------------

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Role
	}{
		{"ADMIN", RoleAdmin},
		{"admin", RoleAdmin},
		{"ROLE_ADMIN", RoleAdmin},
		{"role_admin", RoleAdmin},
		{" Admin ", RoleAdmin},
		{"USER", RoleUser},
		{"ROLE_USER", RoleUser},
		{"SUPERUSER", RoleUser},
		{"ROLE_", RoleUser},
		{"", RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseRole(tt.in))
		})
	}
}

func TestRole_Predicates(t *testing.T) {
	t.Parallel()

	assert.True(t, RoleAdmin.IsAdmin())
	assert.False(t, RoleUser.IsAdmin())
	assert.True(t, RoleUser.Valid())
	assert.False(t, Role("OWNER").Valid())
}

// ---------------------------------------------------------------------------
// ProjectInput
// ---------------------------------------------------------------------------

func TestProjectInput_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        ProjectInput
		badFields []string
	}{
		{"valid", ProjectInput{Name: "Roadmap", Description: "Q3 goals"}, nil},
		{"empty name", ProjectInput{}, []string{"name"}},
		{"short name", ProjectInput{Name: "ab"}, []string{"name"}},
		{"long name", ProjectInput{Name: strings.Repeat("x", 256)}, []string{"name"}},
		{"long description", ProjectInput{Name: "Roadmap", Description: strings.Repeat("d", 5001)}, []string{"description"}},
		{"multibyte name counts runes", ProjectInput{Name: "日本語"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.in.Validate()
			if tt.badFields == nil {
				assert.NoError(t, err)
				return
			}
			e, ok := sserr.AsError(err)
			require.True(t, ok)
			assert.Equal(t, sserr.CodeValidation, e.Code)
			fields := e.Details["fields"].(map[string]string)
			for _, f := range tt.badFields {
				assert.Contains(t, fields, f)
			}
		})
	}
}

func TestProjectInput_NormalizeTrimsName(t *testing.T) {
	t.Parallel()

	in := ProjectInput{Name: "  ab  "}
	in.Normalize()
	assert.Equal(t, "ab", in.Name)
	assert.Error(t, in.Validate())
}

// ---------------------------------------------------------------------------
// Task
// ---------------------------------------------------------------------------

func TestTaskInput_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, TaskInput{Title: "Write docs", Status: TaskStatusTodo}.Validate())

	err := TaskInput{Title: "x", Status: "LATER"}.Validate()
	e, ok := sserr.AsError(err)
	require.True(t, ok)
	fields := e.Details["fields"].(map[string]string)
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "status")

	err = TaskInput{Title: "Write docs"}.Validate()
	require.Error(t, err)
	e, _ = sserr.AsError(err)
	assert.Equal(t, "is required", e.Details["fields"].(map[string]string)["status"])
}

func TestParseTaskStatus(t *testing.T) {
	t.Parallel()

	st, err := ParseTaskStatus("")
	require.NoError(t, err)
	assert.Equal(t, TaskStatus(""), st)

	st, err = ParseTaskStatus("in_progress")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusInProgress, st)

	_, err = ParseTaskStatus("blocked")
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationFormat))
}

// ---------------------------------------------------------------------------
// Page
// ---------------------------------------------------------------------------

func TestPageRequest_Normalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PageRequest{Page: 0, Size: DefaultPageSize}, PageRequest{Page: -1}.Normalize())
	assert.Equal(t, PageRequest{Page: 2, Size: MaxPageSize}, PageRequest{Page: 2, Size: 1000}.Normalize())
	assert.Equal(t, 40, PageRequest{Page: 2, Size: 20}.Offset())

	huge := PageRequest{Page: 500_000_000_000_000_000, Size: 20}.Normalize()
	assert.Equal(t, MaxPage, huge.Page)
	assert.Equal(t, MaxPage*20, huge.Offset())
}

func TestNewPage(t *testing.T) {
	t.Parallel()

	p := NewPage([]int{1, 2}, PageRequest{Page: 1, Size: 2}, 5)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, int64(5), p.TotalElements)
	assert.Equal(t, 1, p.PageNumber)

	empty := NewPage[Project](nil, PageRequest{Size: 20}, 0)
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":[]`)
	assert.Equal(t, 0, empty.TotalPages)
}
