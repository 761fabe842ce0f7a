package embedding

import "fmt"

// 嵌入调用的错误码
const (
	ErrCodeInvalidAPIKey  = 1001
	ErrCodeInvalidRequest = 1002
	ErrCodeNetworkError   = 1003
	ErrCodeRateLimited    = 1004
	ErrCodeServerError    = 1005
	ErrCodeTimeout        = 1006
	ErrCodeEmptyInput     = 1007
)

// 常用错误消息，测试和调用方共用
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyInput     = "input text cannot be empty"
	ErrMsgNetworkError   = "network connection error"
)

// EmbeddingError 嵌入调用错误
// 索引管线根据错误码区分瞬时故障和永久故障
type EmbeddingError struct {
	Code    int
	Message string
}

func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// NewEmbeddingError 创建嵌入错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{Code: code, Message: message}
}

// NewEmbeddingErrorf 创建带格式化消息的嵌入错误
func NewEmbeddingErrorf(code int, format string, args ...interface{}) EmbeddingError {
	return EmbeddingError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsTransient 报告错误重试后是否可能成功
// 网络错误、限流、服务端错误和超时视为瞬时故障
func IsTransient(err error) bool {
	embErr, ok := err.(EmbeddingError)
	if !ok {
		return false
	}
	switch embErr.Code {
	case ErrCodeNetworkError, ErrCodeRateLimited, ErrCodeServerError, ErrCodeTimeout:
		return true
	}
	return false
}
