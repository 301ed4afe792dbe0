package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/infrastructure/logger"
	"github.com/taskmaster/pulse/internal/ports"
)

// TaskHandler handles task-related requests. Tasks are rendered as records
// carrying their derived fields.
type TaskHandler struct {
	taskService ports.TaskService
	logger      *logger.Logger
	now         func() time.Time
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService ports.TaskService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		logger:      logger.WithComponent("task_handler"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type bulkCreateResponse struct {
	Data  []entities.TaskRecord `json:"data"`
	Count int                   `json:"count"`
}

type bulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

type listResponse struct {
	Data  []entities.TaskRecord `json:"data"`
	Count int                   `json:"count"`
}

func (h *TaskHandler) CreateTask(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}

	var req ports.CreateTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	task, err := h.taskService.CreateTask(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, entities.NewTaskRecord(task, h.now()))
}

func (h *TaskHandler) BulkCreate(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}

	var req ports.BulkCreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	tasks, err := h.taskService.BulkCreate(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, bulkCreateResponse{
		Data:  entities.NewTaskRecords(tasks, h.now()),
		Count: len(tasks),
	})
}

func (h *TaskHandler) GetTask(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	task, err := h.taskService.GetTask(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entities.NewTaskRecord(task, h.now()))
}

// ListTasks handles the filtered, sorted and paginated listing
func (h *TaskHandler) ListTasks(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}

	query, err := bindListQuery(c)
	if err != nil {
		return err
	}

	page, err := h.taskService.ListTasks(c.Request().Context(), userID, query)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ports.Page[entities.TaskRecord]{
		Data:  entities.NewTaskRecords(page.Data, h.now()),
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
		Pages: page.Pages,
	})
}

func (h *TaskHandler) UpdateTask(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req ports.UpdateTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	task, err := h.taskService.UpdateTask(c.Request().Context(), userID, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entities.NewTaskRecord(task, h.now()))
}

func (h *TaskHandler) UpdateStatus(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req ports.UpdateStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	task, err := h.taskService.UpdateStatus(c.Request().Context(), userID, id, req.Status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entities.NewTaskRecord(task, h.now()))
}

func (h *TaskHandler) UpdateProgress(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req ports.UpdateProgressRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	task, err := h.taskService.UpdateProgress(c.Request().Context(), userID, id, *req.Progress)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entities.NewTaskRecord(task, h.now()))
}

func (h *TaskHandler) DeleteTask(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.taskService.DeleteTask(c.Request().Context(), userID, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *TaskHandler) BulkDelete(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}

	var req ports.BulkDeleteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	deleted, err := h.taskService.BulkDelete(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, bulkDeleteResponse{Deleted: deleted})
}

func (h *TaskHandler) TasksByCategory(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}

	tasks, err := h.taskService.TasksByCategory(c.Request().Context(), userID, c.Param("category"))
	if err != nil {
		return err
	}
	return h.list(c, tasks)
}

func (h *TaskHandler) TasksByPriority(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}

	priority, err := strconv.Atoi(c.Param("priority"))
	if err != nil {
		return entities.NewValidationError(entities.FieldError{
			Field: "priority", Rule: "numeric", Message: "priority must be a number",
		})
	}

	tasks, err := h.taskService.TasksByPriority(c.Request().Context(), userID, priority)
	if err != nil {
		return err
	}
	return h.list(c, tasks)
}

func (h *TaskHandler) OverdueTasks(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}

	tasks, err := h.taskService.OverdueTasks(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return h.list(c, tasks)
}

func (h *TaskHandler) UpcomingTasks(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}

	tasks, err := h.taskService.UpcomingTasks(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return h.list(c, tasks)
}

// History returns the audit trail, also for deleted tasks
func (h *TaskHandler) History(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	entries, err := h.taskService.History(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

// Insights returns stored insights, generating them when missing or when
// refresh=true
func (h *TaskHandler) Insights(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var refresh bool
	if err := echo.QueryParamsBinder(c).Bool("refresh", &refresh).BindError(); err != nil {
		return queryError(err)
	}

	insights, err := h.taskService.Insights(c.Request().Context(), userID, id, refresh)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, insights)
}

func (h *TaskHandler) list(c echo.Context, tasks []*entities.Task) error {
	return c.JSON(http.StatusOK, listResponse{
		Data:  entities.NewTaskRecords(tasks, h.now()),
		Count: len(tasks),
	})
}

// bindListQuery reads the listing filters. Absent parameters stay nil so the
// store does not filter on them.
func bindListQuery(c echo.Context) (ports.ListTasksQuery, error) {
	var (
		query               ports.ListTasksQuery
		status, category    string
		search              string
		priority            int
		dueBefore, dueAfter time.Time
	)

	err := echo.QueryParamsBinder(c).
		String("status", &status).
		Int("priority", &priority).
		String("category", &category).
		Time("due_before", &dueBefore, time.RFC3339).
		Time("due_after", &dueAfter, time.RFC3339).
		String("search", &search).
		String("sort_by", &query.SortBy).
		String("sort_order", &query.SortOrder).
		Int("page", &query.Page).
		Int("limit", &query.Limit).
		BindError()
	if err != nil {
		return query, queryError(err)
	}

	if c.QueryParam("status") != "" {
		s := entities.TaskStatus(status)
		query.Status = &s
	}
	if c.QueryParam("priority") != "" {
		query.Priority = &priority
	}
	if category != "" {
		query.Category = &category
	}
	if search != "" {
		query.Search = &search
	}
	if c.QueryParam("due_before") != "" {
		query.DueBefore = &dueBefore
	}
	if c.QueryParam("due_after") != "" {
		query.DueAfter = &dueAfter
	}
	return query, nil
}
