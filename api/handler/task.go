package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/ayurveda-qa-system/api/middleware"
	"github.com/fyerfyer/ayurveda-qa-system/api/model"
	"github.com/fyerfyer/ayurveda-qa-system/pkg/taskqueue"
)

// TaskHandler 异步任务查询接口
type TaskHandler struct {
	queue taskqueue.Queue
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(queue taskqueue.Queue) *TaskHandler {
	return &TaskHandler{queue: queue}
}

// Get 查询任务状态
// GET /api/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	var req model.TaskIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid task id", err.Error()))
		return
	}

	task, err := h.queue.GetTask(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			middleware.HandleError(c, middleware.NewNotFoundError("task not found"))
			return
		}
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(
		taskqueue.NewTaskInfo(task), c.GetString(middleware.TraceIDKey)))
}

// ListByDocument 查询文档关联的任务列表
// GET /api/documents/:id/tasks
func (h *TaskHandler) ListByDocument(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid document id", err.Error()))
		return
	}

	tasks, err := h.queue.GetTasksByDocument(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	infos := make([]*taskqueue.TaskInfo, 0, len(tasks))
	for _, task := range tasks {
		infos = append(infos, taskqueue.NewTaskInfo(task))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(infos, c.GetString(middleware.TraceIDKey)))
}
