package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/StricklySoft/taskhub/internal/service"
	"github.com/StricklySoft/taskhub/pkg/models"
)

type handlers struct {
	users    *service.Users
	projects *service.Projects
	tasks    *service.Tasks
	logger   *slog.Logger
}

// statusRequest is the body of PATCH .../status.
type statusRequest struct {
	Status models.TaskStatus `json:"status"`
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

// ===========================================================================
// Users
// ===========================================================================

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Me(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.users.List(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handlers) myProjects(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.projects.ListMine(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) myTasks(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status, err := statusFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.tasks.ListMine(r.Context(), status, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) userProjects(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.projects.ListByOwner(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) userTasks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status, err := statusFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.tasks.ListByOwner(r.Context(), id, status, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ===========================================================================
// Projects
// ===========================================================================

func (h *handlers) createProject(w http.ResponseWriter, r *http.Request) {
	var in models.ProjectInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.projects.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handlers) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.projects.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) updateProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in models.ProjectInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.projects.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.projects.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) searchProjects(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.projects.Search(r.Context(), r.URL.Query().Get("searchTerm"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ===========================================================================
// Tasks
// ===========================================================================

// taskIDs reads the project and task path parameters.
func taskIDs(r *http.Request) (projectID, taskID int64, err error) {
	if projectID, err = pathID(r, "projectID"); err != nil {
		return 0, 0, err
	}
	if taskID, err = pathID(r, "taskID"); err != nil {
		return 0, 0, err
	}
	return projectID, taskID, nil
}

func (h *handlers) createTask(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in models.TaskInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.tasks.Create(r.Context(), projectID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status, err := statusFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.tasks.List(r.Context(), projectID, status, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	projectID, taskID, err := taskIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.tasks.Get(r.Context(), projectID, taskID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	projectID, taskID, err := taskIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in models.TaskInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.tasks.Update(r.Context(), projectID, taskID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handlers) updateTaskStatus(w http.ResponseWriter, r *http.Request) {
	projectID, taskID, err := taskIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in statusRequest
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.tasks.UpdateStatus(r.Context(), projectID, taskID, in.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	projectID, taskID, err := taskIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.tasks.Delete(r.Context(), projectID, taskID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
