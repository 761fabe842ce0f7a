package llm

import "fmt"

// 大模型调用的错误码
const (
	ErrCodeInvalidAPIKey  = 1001
	ErrCodeInvalidRequest = 1002
	ErrCodeNetworkError   = 1003
	ErrCodeRateLimited    = 1004
	ErrCodeServerError    = 1005
	ErrCodeTimeout        = 1006
	ErrCodeEmptyPrompt    = 1007
	ErrCodeContentFilter  = 1008
	ErrCodeModelOverload  = 1009
	ErrCodeContextTooLong = 1010
)

// LLMError 大模型调用错误
// 问答链路不重试大模型错误，带着错误码原样上抛
type LLMError struct {
	Code    int
	Message string
}

func (e LLMError) Error() string {
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// Transient 报告该错误重试后是否可能成功
func (e LLMError) Transient() bool {
	switch e.Code {
	case ErrCodeNetworkError, ErrCodeRateLimited, ErrCodeServerError,
		ErrCodeTimeout, ErrCodeModelOverload:
		return true
	}
	return false
}

// NewLLMError 创建大模型错误
func NewLLMError(code int, message string) LLMError {
	return LLMError{Code: code, Message: message}
}

// NewLLMErrorf 创建带格式化消息的大模型错误
func NewLLMErrorf(code int, format string, args ...interface{}) LLMError {
	return LLMError{Code: code, Message: fmt.Sprintf(format, args...)}
}
