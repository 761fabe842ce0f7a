package taskqueue

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DocumentProcessor 文档处理器接口
// 由服务层实现，任务队列只负责投递和重试
type DocumentProcessor interface {
	// ProcessDocument 执行文档的完整处理管线
	ProcessDocument(ctx context.Context, documentID string) error
}

// RetryFunc 索引重试函数
type RetryFunc func(ctx context.Context, documentID string) error

// DocumentTaskHandler 文档任务处理器
// 把队列任务转交给服务层的处理管线
type DocumentTaskHandler struct {
	processor DocumentProcessor
	retryFn   RetryFunc
	logger    *logrus.Logger
}

// NewDocumentTaskHandler 创建文档任务处理器
func NewDocumentTaskHandler(processor DocumentProcessor, retryFn RetryFunc, logger *logrus.Logger) *DocumentTaskHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &DocumentTaskHandler{
		processor: processor,
		retryFn:   retryFn,
		logger:    logger,
	}
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *DocumentTaskHandler) GetTaskTypes() []TaskType {
	types := []TaskType{TaskProcessDocument}
	if h.retryFn != nil {
		types = append(types, TaskRetryIndex)
	}
	return types
}

// ProcessTask 处理任务
func (h *DocumentTaskHandler) ProcessTask(ctx context.Context, task *Task) error {
	switch task.Type {
	case TaskProcessDocument:
		var payload ProcessDocumentPayload
		if err := UnmarshalPayload(task.Payload, &payload); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if payload.DocumentID == "" {
			return ErrInvalidPayload
		}

		h.logger.WithFields(logrus.Fields{
			"task_id":     task.ID,
			"document_id": payload.DocumentID,
			"file_name":   payload.FileName,
		}).Info("Processing document task")

		return h.processor.ProcessDocument(ctx, payload.DocumentID)

	case TaskRetryIndex:
		if h.retryFn == nil {
			return fmt.Errorf("no retry handler configured for task type %s", task.Type)
		}
		var payload RetryIndexPayload
		if err := UnmarshalPayload(task.Payload, &payload); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if payload.DocumentID == "" {
			return ErrInvalidPayload
		}

		h.logger.WithFields(logrus.Fields{
			"task_id":     task.ID,
			"document_id": payload.DocumentID,
		}).Info("Retrying failed chunks")

		return h.retryFn(ctx, payload.DocumentID)

	default:
		return fmt.Errorf("unsupported task type: %s", task.Type)
	}
}
