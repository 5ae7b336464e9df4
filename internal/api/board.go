package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/guildboard/guildboard/internal/app/board"
	"github.com/guildboard/guildboard/internal/domain"
	"github.com/guildboard/guildboard/internal/infra/observability"
)

// ─── Board API ──────────────────────────────────────────────────────────────
//
// POST   /api/projects                         client opens a project
// GET    /api/projects/{id}                    project with team and total XP
// POST   /api/projects/{id}/manager            client assigns the PM
// POST   /api/projects/{id}/members            PM adds a developer
// DELETE /api/projects/{id}/members/{userID}   PM removes a developer
// GET    /api/projects/{id}/tasks?status=      project tasks
// POST   /api/tasks                            PM creates a task
// GET    /api/tasks/mine?status=               tasks assigned to the requester
// PATCH  /api/tasks/{id}                       edit or move a task; may pay XP
// DELETE /api/tasks/{id}                       PM deletes a task

type userRef struct {
	UserID domain.UserID `json:"user_id" validate:"required"`
}

// handleCreateProject opens a project for the requesting client.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in board.CreateProjectInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.board.CreateProject(r.Context(), requester(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.board.GetProject(r.Context(), requester(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAssignManager(w http.ResponseWriter, r *http.Request) {
	var in userRef
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.board.AssignManager(r.Context(), requester(r), chi.URLParam(r, "id"), in.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var in userRef
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.board.AddTeamMember(r.Context(), requester(r), chi.URLParam(r, "id"), in.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	p, err := s.board.RemoveTeamMember(r.Context(), requester(r), chi.URLParam(r, "id"),
		domain.UserID(chi.URLParam(r, "userID")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProjectTasks(w http.ResponseWriter, r *http.Request) {
	status, err := statusFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tasks, err := s.board.ListProjectTasks(r.Context(), requester(r), chi.URLParam(r, "id"), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeTasks(w, tasks)
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in board.CreateTaskInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.board.CreateTask(r.Context(), requester(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleMyTasks(w http.ResponseWriter, r *http.Request) {
	status, err := statusFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tasks, err := s.board.ListMyTasks(r.Context(), requester(r), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeTasks(w, tasks)
}

// handleMyProjects lists the requester's projects.
// GET /api/projects/mine?status=active
func (s *Server) handleMyProjects(w http.ResponseWriter, r *http.Request) {
	status := domain.ProjectStatus(r.URL.Query().Get("status"))
	projects, err := s.board.ListMyProjects(r.Context(), requester(r), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"projects": projects,
		"count":    len(projects),
	})
}

// handleUpdateTask applies a PATCH. A body carrying only "status" is a status
// update, which the assignee or the PM may send. Any other field makes it a
// manager update.
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	update, err := decodeTaskUpdate(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := observability.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
	res, err := s.board.UpdateTask(ctx, requester(r), chi.URLParam(r, "id"), update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.board.DeleteTask(r.Context(), requester(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusPatch is the only body an assignee may send.
type statusPatch struct {
	Status domain.TaskStatus `json:"status" validate:"required"`
}

// managerPatch is the PM's partial edit. assigned_to is kept raw so that an
// explicit null (unassign) differs from an absent field.
type managerPatch struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	AssignedTo  json.RawMessage    `json:"assigned_to"`
	Status      *domain.TaskStatus `json:"status"`
	Priority    *domain.Priority   `json:"priority"`
	Difficulty  *domain.Difficulty `json:"difficulty"`
	XPPoints    *int               `json:"xp_points"`
	DueDate     *time.Time         `json:"due_date"`
}

func (p managerPatch) update() (domain.ManagerUpdate, error) {
	u := domain.ManagerUpdate{
		Title:       p.Title,
		Description: p.Description,
		Status:      p.Status,
		Priority:    p.Priority,
		Difficulty:  p.Difficulty,
		XPPoints:    p.XPPoints,
		DueDate:     p.DueDate,
	}
	if len(p.AssignedTo) > 0 {
		var who domain.OptionalUser
		if err := json.Unmarshal(p.AssignedTo, &who); err != nil {
			return u, domain.Validationf("assigned_to must be a user id or null")
		}
		u.AssignedTo = &who
	}
	return u, nil
}

// decodeTaskUpdate picks the update shape from the body's keys.
func decodeTaskUpdate(w http.ResponseWriter, r *http.Request) (domain.TaskUpdate, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.Validationf("invalid request body: %v", err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, domain.Validationf("invalid request body: %v", err)
	}
	if len(keys) == 0 {
		return nil, domain.Validation(domain.ErrEmptyTaskUpdate)
	}

	if _, ok := keys["status"]; ok && len(keys) == 1 {
		var p statusPatch
		if err := strictUnmarshal(body, &p); err != nil {
			return nil, err
		}
		if err := validate.Struct(p); err != nil {
			return nil, err
		}
		return domain.StatusUpdate{Status: p.Status}, nil
	}

	var p managerPatch
	if err := strictUnmarshal(body, &p); err != nil {
		return nil, err
	}
	return p.update()
}

func strictUnmarshal(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}

func statusFilter(r *http.Request) (domain.TaskStatus, error) {
	status := domain.TaskStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		return "", domain.Validation(domain.ErrInvalidStatus)
	}
	return status, nil
}

func writeTasks(w http.ResponseWriter, tasks []domain.Task) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}
