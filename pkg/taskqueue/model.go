package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskProcessDocument 文档完整处理任务，覆盖解析到索引的全流程
	TaskProcessDocument TaskType = "document:process"
	// TaskRetryIndex 重试文档中索引失败的块
	TaskRetryIndex TaskType = "document:retry_index"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	DocumentID  string          `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷
	Result      json.RawMessage `json:"result"`       // 任务结果
	Error       string          `json:"error"`        // 错误信息
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// ProcessDocumentPayload 文档处理任务载荷
type ProcessDocumentPayload struct {
	DocumentID string `json:"document_id"` // 文档ID
	FileName   string `json:"file_name"`   // 文件名，便于排查问题
}

// ProcessDocumentResult 文档处理任务结果
type ProcessDocumentResult struct {
	DocumentID   string `json:"document_id"`   // 文档ID
	ChunkCount   int    `json:"chunk_count"`   // 分块数量
	FailedChunks int    `json:"failed_chunks"` // 索引失败的块数量
	Corrections  int    `json:"corrections"`   // 纠错条数
	Error        string `json:"error"`         // 错误信息（如果有）
}

// RetryIndexPayload 索引重试任务载荷
type RetryIndexPayload struct {
	DocumentID string `json:"document_id"` // 文档ID
}

// TaskInfo 任务的元信息
// 传递给客户端的简化任务视图
type TaskInfo struct {
	ID          string     `json:"id"`           // 任务唯一标识符
	Type        TaskType   `json:"type"`         // 任务类型
	DocumentID  string     `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus `json:"status"`       // 任务状态
	Error       string     `json:"error"`        // 错误信息
	CreatedAt   time.Time  `json:"created_at"`   // 创建时间
	StartedAt   *time.Time `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time `json:"completed_at"` // 完成时间
}

// NewTaskInfo 从Task创建TaskInfo
func NewTaskInfo(task *Task) *TaskInfo {
	return &TaskInfo{
		ID:          task.ID,
		Type:        task.Type,
		DocumentID:  task.DocumentID,
		Status:      task.Status,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
	}
}
