package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tudu/server/internal/middleware"
	"github.com/tudu/server/internal/model"
	"github.com/tudu/server/internal/tasks"
)

// TaskHandler handles task CRUD endpoints. All routes are protected; every
// store access is scoped to the authenticated owner.
type TaskHandler struct {
	taskService *tasks.Service
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService *tasks.Service) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

type createTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	DueAt       string  `json:"due_at"`
}

type updateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	DueAt       *string `json:"due_at,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

type taskResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	DueAt       string  `json:"due_at"`
	Notified    bool    `json:"notified"`
	Completed   bool    `json:"completed"`
	CreatedAt   string  `json:"created_at"`
}

func toTaskResponse(t model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID.String(),
		Title:       t.Title,
		Description: t.Description,
		DueAt:       t.DueAt.UTC().Format(time.RFC3339),
		Notified:    t.Notified,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleCreate handles POST /tasks
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.DueAt == "" {
		respondWithError(w, http.StatusBadRequest, "title and due_at are required")
		return
	}

	dueAt, err := time.Parse(time.RFC3339, req.DueAt)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid due_at, use RFC3339 e.g. 2025-10-19T18:00:00Z")
		return
	}

	task, err := h.taskService.Create(r.Context(), user.ID, tasks.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		DueAt:       dueAt,
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]taskResponse{"task": toTaskResponse(task)})
}

// HandleList handles GET /tasks
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	list, err := h.taskService.List(r.Context(), user.ID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	out := make([]taskResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toTaskResponse(t))
	}
	respondWithJSON(w, http.StatusOK, map[string][]taskResponse{"tasks": out})
}

// HandleGet handles GET /tasks/{id}
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, taskID, ok := h.taskRequest(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.Get(r.Context(), user.ID, taskID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]taskResponse{"task": toTaskResponse(task)})
}

// HandleUpdate handles PUT /tasks/{id}
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, taskID, ok := h.taskRequest(w, r)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := tasks.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	}
	if req.DueAt != nil {
		dueAt, err := time.Parse(time.RFC3339, *req.DueAt)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid due_at, use RFC3339 e.g. 2025-10-19T18:00:00Z")
			return
		}
		params.DueAt = &dueAt
	}

	task, err := h.taskService.Update(r.Context(), user.ID, taskID, params)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]taskResponse{"task": toTaskResponse(task)})
}

// HandleDelete handles DELETE /tasks/{id}
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, taskID, ok := h.taskRequest(w, r)
	if !ok {
		return
	}

	if err := h.taskService.Delete(r.Context(), user.ID, taskID); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// taskRequest extracts the authenticated user and the {id} path param.
func (h *TaskHandler) taskRequest(w http.ResponseWriter, r *http.Request) (*model.User, uuid.UUID, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return nil, uuid.Nil, false
	}

	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid task id")
		return nil, uuid.Nil, false
	}
	return user, taskID, true
}
