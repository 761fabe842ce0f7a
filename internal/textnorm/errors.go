package textnorm

import "fmt"

// NormError 文本归一化错误类型
type NormError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e NormError) Error() string {
	return fmt.Sprintf("textnorm error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeArtifactNotFound = 2001 // 模型或词典文件不存在
	ErrCodeArtifactInvalid  = 2002 // 模型或词典文件格式错误
	ErrCodeEmptyLexicon     = 2003 // 词典为空
	ErrCodeInvalidConfig    = 2004 // 无效的配置参数
)

// NewNormError 创建新的归一化错误
func NewNormError(code int, message string) NormError {
	return NormError{
		Code:    code,
		Message: message,
	}
}

// WrapNormError 包装普通错误为归一化错误
func WrapNormError(err error, code int) NormError {
	if err == nil {
		return NormError{Code: code, Message: "unknown error"}
	}

	if normErr, ok := err.(NormError); ok {
		return normErr
	}

	return NormError{
		Code:    code,
		Message: err.Error(),
	}
}
