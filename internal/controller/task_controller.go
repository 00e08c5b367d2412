package controller

import (
	"net/http"

	"github.com/cassiomorais/taskboard/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type TaskController struct {
	taskService *service.TaskService
}

func NewTaskController(taskService *service.TaskService) *TaskController {
	return &TaskController{taskService: taskService}
}

func (h *TaskController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	workspaceID, err := uuid.Parse(req.WorkspaceID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid workspace id", Code: "invalid_id"})
		return
	}
	listID, err := uuid.Parse(req.ListID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid list id", Code: "invalid_id"})
		return
	}

	t, err := h.taskService.CreateTask(r.Context(), service.CreateTaskRequest{
		WorkspaceID: workspaceID,
		ListID:      listID,
		Title:       req.Title,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromTask(t))
}

func (h *TaskController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid task id", Code: "invalid_id"})
		return
	}

	t, err := h.taskService.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromTask(t))
}

func (h *TaskController) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid task id", Code: "invalid_id"})
		return
	}

	t, err := h.taskService.CompleteTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromTask(t))
}
