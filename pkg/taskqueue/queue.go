package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// 队列层的哨兵错误
var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskTimeout    = errors.New("task timed out")
	ErrInvalidPayload = errors.New("invalid task payload")
)

// Queue 异步任务队列
// 入队返回任务ID，任务状态和结果通过任务记录查询
type Queue interface {
	// Enqueue 立即入队
	Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error)

	// EnqueueIn 延迟入队
	EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error)

	// GetTask 查询任务记录
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// GetTasksByDocument 查询某文档关联的所有任务
	GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error)

	// WaitForTask 轮询等待任务进入终态，timeout为0表示一直等
	WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error)

	// DeleteTask 删除任务记录
	DeleteTask(ctx context.Context, taskID string) error

	// UpdateTaskStatus 更新任务状态和结果
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error

	// Close 关闭队列连接
	Close() error
}

// Handler 任务处理器
type Handler interface {
	ProcessTask(ctx context.Context, task *Task) error

	// GetTaskTypes 返回处理器负责的任务类型
	GetTaskTypes() []TaskType
}

// Worker 消费队列任务的工作进程
type Worker interface {
	RegisterHandler(taskType TaskType, handler Handler)
	Start() error
	Stop()
}

// Config 队列配置
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Concurrency 同时处理的任务数
	Concurrency int
	// RetryLimit 任务失败后的最大重试次数
	RetryLimit int
	// RetryDelay 重试间隔
	RetryDelay time.Duration
	// Queues 队列名到优先级权重的映射
	Queues map[string]int
}

// DefaultConfig 返回默认队列配置
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		Concurrency: 4,
		RetryLimit:  3,
		RetryDelay:  time.Minute,
		Queues:      map[string]int{"default": 3},
	}
}

// Factory 队列工厂函数
type Factory func(cfg *Config) (Queue, error)

// MarshalPayload 序列化任务载荷
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 反序列化任务载荷
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	return json.Unmarshal(data, v)
}
