package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/tasks"
)

// TaskQueue enqueues tasks and reports their status.
type TaskQueue interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// RunTaskRequest is the optional body of POST /api/tasks/:type/run. Each
// task reads only its own fields.
type RunTaskRequest struct {
	AsOf                     string `json:"as_of,omitempty"`
	RetentionDays            int    `json:"retention_days,omitempty"`
	CirculationRetentionDays int    `json:"circulation_retention_days,omitempty"`
}

// TaskTypeInfo describes a task that can be run on demand.
type TaskTypeInfo struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Params      []string `json:"params,omitempty"`
}

// taskKind builds a task from a run request, or returns a message for a 400.
type taskKind struct {
	info  TaskTypeInfo
	build func(c *gin.Context, req RunTaskRequest) (backlite.Task, string)
}

type TasksController struct {
	queue TaskQueue
	kinds []taskKind
}

// NewTasksController creates a TasksController. cleanup holds the retention
// applied when a cleanup run does not override it.
func NewTasksController(queue TaskQueue, cleanup tasks.CleanupAuditEventsTask) *TasksController {
	return &TasksController{
		queue: queue,
		kinds: []taskKind{
			{
				info: TaskTypeInfo{
					Type:        tasks.QueueOverdueReport,
					Description: "Write the overdue lendings workbook to the reports directory",
					Params:      []string{"as_of"},
				},
				build: overdueReportTask,
			},
			{
				info: TaskTypeInfo{
					Type:        tasks.QueueCleanupAuditEvents,
					Description: "Purge audit events past their retention; checkout and return events are kept longer",
					Params:      []string{"retention_days", "circulation_retention_days"},
				},
				build: func(_ *gin.Context, req RunTaskRequest) (backlite.Task, string) {
					return cleanupTask(cleanup, req)
				},
			},
		},
	}
}

func overdueReportTask(c *gin.Context, req RunTaskRequest) (backlite.Task, string) {
	if req.AsOf != "" {
		if _, err := parseDate(req.AsOf); err != nil {
			return nil, "as_of must be a date in YYYY-MM-DD format"
		}
	}
	return tasks.OverdueReportTask{
		AsOf:      req.AsOf,
		StaffID:   auth.GetStaffID(c),
		RequestID: c.GetString(audit.ContextKeyRequestID),
	}, ""
}

func cleanupTask(defaults tasks.CleanupAuditEventsTask, req RunTaskRequest) (backlite.Task, string) {
	if req.RetentionDays < 0 || req.CirculationRetentionDays < 0 {
		return nil, "retention must not be negative"
	}
	task := defaults
	if req.RetentionDays > 0 {
		task.RetentionDays = req.RetentionDays
	}
	if req.CirculationRetentionDays > 0 {
		task.CirculationRetentionDays = req.CirculationRetentionDays
	}
	return task, ""
}

// ListTaskTypes handles GET /api/tasks/types
func (tc *TasksController) ListTaskTypes(c *gin.Context) {
	types := make([]TaskTypeInfo, len(tc.kinds))
	for i, k := range tc.kinds {
		types[i] = k.info
	}
	c.JSON(http.StatusOK, gin.H{"task_types": types})
}

// GetTaskStatus handles GET /api/tasks/:id
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.queue.Status(ctx, id)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}
	if status == backlite.TaskStatusNotFound {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "task not found"})
		return
	}
	name, ok := taskStatusNames[status]
	if !ok {
		name = "unknown"
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": name})
}

// RunTask handles POST /api/tasks/:type/run
func (tc *TasksController) RunTask(c *gin.Context) {
	taskType := c.Param("type")

	var kind *taskKind
	for i := range tc.kinds {
		if tc.kinds[i].info.Type == taskType {
			kind = &tc.kinds[i]
			break
		}
	}
	if kind == nil {
		respondBadRequest(c, "unknown task type: "+taskType)
		return
	}

	var req RunTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}

	task, problem := kind.build(c, req)
	if problem != "" {
		respondBadRequest(c, problem)
		return
	}

	id, err := tc.queue.Enqueue(c.Request.Context(), task)
	if errors.Is(err, tasks.ErrUnknownQueue) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: taskType + " is not served by this instance"})
		return
	}
	if err != nil {
		respondInternalError(c, err, "enqueue "+taskType)
		return
	}

	respondAccepted(c, "task enqueued", gin.H{"task_id": id, "type": taskType})
}

var taskStatusNames = map[backlite.TaskStatus]string{
	backlite.TaskStatusPending: "pending",
	backlite.TaskStatusRunning: "running",
	backlite.TaskStatusSuccess: "success",
	backlite.TaskStatusFailure: "failure",
}
