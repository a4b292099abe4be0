package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

const dueDateLayout = "2006-01-02"

// TaskHandler provides HTTP handlers for tasks.
type TaskHandler struct {
	taskService *services.TaskService
}

// NewTaskHandler constructs a handler with the provided service.
func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// TaskRouter registers task routes on the given router. Every route
// requires an authenticated caller.
func TaskRouter(r chi.Router, taskService *services.TaskService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTaskHandler(taskService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListTasks)
	r.Post("/", handler.CreateTask)
	r.Get("/overdue", handler.ListOverdue)
	r.Get("/completed", handler.ListCompleted)
	r.Get("/pending", handler.ListPending)
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Put("/", handler.UpdateTask)
		r.Patch("/", handler.PatchTask)
		r.Delete("/", handler.DeleteTask)
		r.Patch("/incomplete", handler.MarkIncomplete)
	})
}

// TaskResponse augments a task with its derived read-only fields.
type TaskResponse struct {
	types.Task
	IsOverdue    bool `json:"is_overdue"`
	DaysUntilDue *int `json:"days_until_due,omitempty"`
}

func newTaskResponse(task types.Task, now time.Time) TaskResponse {
	resp := TaskResponse{Task: task, IsOverdue: task.IsOverdue(now)}
	if days, ok := task.DaysUntilDue(now); ok {
		resp.DaysUntilDue = &days
	}
	return resp
}

// TaskListResponse is the paginated list response payload.
type TaskListResponse struct {
	Items []TaskResponse `json:"items"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Total int            `json:"total"`
}

// TaskEnvelope wraps a task with an action message.
type TaskEnvelope struct {
	Message string       `json:"message"`
	Task    TaskResponse `json:"task"`
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filter, page, err := parseTaskListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := types.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = &status
	}

	tasks, total, err := h.taskService.List(r.Context(), userID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	h.writeTaskList(w, tasks, page, filter.Limit, total)
}

func (h *TaskHandler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	h.listView(w, r, func(userID int, filter store.TaskFilter) ([]types.Task, int, error) {
		return h.taskService.ListOverdue(r.Context(), userID, filter)
	})
}

func (h *TaskHandler) ListCompleted(w http.ResponseWriter, r *http.Request) {
	h.listView(w, r, func(userID int, filter store.TaskFilter) ([]types.Task, int, error) {
		return h.taskService.ListByStatus(r.Context(), userID, types.StatusCompleted, filter)
	})
}

func (h *TaskHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	h.listView(w, r, func(userID int, filter store.TaskFilter) ([]types.Task, int, error) {
		return h.taskService.ListByStatus(r.Context(), userID, types.StatusPending, filter)
	})
}

func (h *TaskHandler) listView(w http.ResponseWriter, r *http.Request, list func(int, store.TaskFilter) ([]types.Task, int, error)) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filter, page, err := parseTaskListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tasks, total, err := list(userID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	h.writeTaskList(w, tasks, page, filter.Limit, total)
}

func (h *TaskHandler) writeTaskList(w http.ResponseWriter, tasks []types.Task, page, limit, total int) {
	now := time.Now()
	items := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, newTaskResponse(task, now))
	}
	writeJSON(w, http.StatusOK, TaskListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskService.Get(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err, "task not found", "failed to fetch task")
		return
	}

	writeJSON(w, http.StatusOK, newTaskResponse(task, time.Now()))
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	input, fieldErrs := req.toInput()
	if fieldErrs != nil {
		writeJSON(w, http.StatusBadRequest, FieldErrorResponse{Errors: fieldErrs})
		return
	}

	task, err := h.taskService.Create(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, err, "task not found", "failed to create task")
		return
	}

	writeJSON(w, http.StatusCreated, TaskEnvelope{
		Message: "Task created successfully",
		Task:    newTaskResponse(task, time.Now()),
	})
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	input, fieldErrs := req.toInput()
	if fieldErrs != nil {
		writeJSON(w, http.StatusBadRequest, FieldErrorResponse{Errors: fieldErrs})
		return
	}

	task, err := h.taskService.Update(r.Context(), userID, id, input)
	if err != nil {
		writeServiceError(w, err, "task not found", "failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, newTaskResponse(task, time.Now()))
}

func (h *TaskHandler) PatchTask(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TaskPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	patch, fieldErrs := req.toPatch()
	if fieldErrs != nil {
		writeJSON(w, http.StatusBadRequest, FieldErrorResponse{Errors: fieldErrs})
		return
	}

	task, err := h.taskService.Patch(r.Context(), userID, id, patch)
	if err != nil {
		writeServiceError(w, err, "task not found", "failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, newTaskResponse(task, time.Now()))
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.taskService.Delete(r.Context(), userID, id); err != nil {
		writeServiceError(w, err, "task not found", "failed to delete task")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkIncomplete transitions a completed task back to pending.
func (h *TaskHandler) MarkIncomplete(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskService.MarkIncomplete(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, services.ErrAlreadyPending) {
			writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "Task is already pending."})
			return
		}
		writeServiceError(w, err, "task not found", "failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, TaskEnvelope{
		Message: "Task marked as incomplete.",
		Task:    newTaskResponse(task, time.Now()),
	})
}

// TaskRequest is the full create/replace payload.
type TaskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	DueDate     *string `json:"due_date"`
	CategoryID  *int    `json:"category_id"`
}

func (req TaskRequest) toInput() (services.TaskInput, services.FieldErrors) {
	dueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		return services.TaskInput{}, services.FieldErrors{"due_date": err.Error()}
	}
	return services.TaskInput{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Priority:    types.Priority(req.Priority),
		Status:      types.Status(req.Status),
		DueDate:     dueDate,
		CategoryID:  req.CategoryID,
	}, nil
}

// TaskPatchRequest is the partial update payload; absent fields are left
// unchanged.
type TaskPatchRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	DueDate     *string `json:"due_date"`
	CategoryID  *int    `json:"category_id"`
}

func (req TaskPatchRequest) toPatch() (services.TaskPatch, services.FieldErrors) {
	patch := services.TaskPatch{
		CategoryID: req.CategoryID,
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		patch.Title = &title
	}
	if req.Description != nil {
		patch.Description = req.Description
	}
	if req.Priority != nil {
		priority := types.Priority(*req.Priority)
		patch.Priority = &priority
	}
	if req.Status != nil {
		status := types.Status(*req.Status)
		patch.Status = &status
	}
	if req.DueDate != nil {
		dueDate, err := parseDueDate(req.DueDate)
		if err != nil {
			return services.TaskPatch{}, services.FieldErrors{"due_date": err.Error()}
		}
		patch.DueDate = dueDate
	}
	return patch, nil
}

func parseDueDate(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, nil
	}
	if parsed, err := time.ParseInLocation(dueDateLayout, value, time.Local); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		date := types.DateOf(parsed)
		return &date, nil
	}
	return nil, errors.New("Date has wrong format. Use YYYY-MM-DD.")
}

func parseTaskID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "taskID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid task id")
	}
	return id, nil
}

func parseTaskListQuery(r *http.Request) (store.TaskFilter, int, error) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		return store.TaskFilter{}, 0, err
	}

	filter := store.TaskFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Offset: offset,
		Limit:  limit,
	}

	if ordering := strings.TrimSpace(r.URL.Query().Get("ordering")); ordering != "" {
		field := ordering
		if strings.HasPrefix(ordering, "-") {
			field = ordering[1:]
			filter.Desc = true
		}
		if !store.OrderableTaskField(field) {
			return store.TaskFilter{}, 0, errors.New("invalid ordering field")
		}
		filter.OrderBy = field
	}

	return filter, page, nil
}
