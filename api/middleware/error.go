package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/ayurveda-qa-system/internal/document"
	"github.com/fyerfyer/ayurveda-qa-system/internal/models"
)

// ErrorType 错误类型
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError API层统一错误
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Code    int       `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

// NewValidationError 创建参数校验错误
func NewValidationError(message string, details string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: details,
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewConflictError 创建状态冲突错误
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
		Code:    http.StatusConflict,
	}
}

// NewTimeoutError 创建请求超时错误
func NewTimeoutError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeTimeout,
		Message: message,
		Code:    http.StatusGatewayTimeout,
	}
}

// NewInternalError 创建内部错误
func NewInternalError(message string, details string) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: details,
		Code:    http.StatusInternalServerError,
	}
}

// ErrorHandler 统一错误处理中间件
// 捕获panic并转换为500响应，处理handler通过c.Error挂载的错误
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					"panic":    r,
					"path":     c.Request.URL.Path,
					"trace_id": c.GetString(TraceIDKey),
				}).Error("panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":     http.StatusInternalServerError,
					"message":  "internal server error",
					"trace_id": c.GetString(TraceIDKey),
				})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		appErr := toAppError(err)

		log.WithFields(logrus.Fields{
			"error":    err.Error(),
			"type":     appErr.Type,
			"path":     c.Request.URL.Path,
			"trace_id": c.GetString(TraceIDKey),
		}).Warn("request failed")

		c.JSON(appErr.Code, gin.H{
			"code":     appErr.Code,
			"message":  appErr.Message,
			"details":  appErr.Details,
			"trace_id": c.GetString(TraceIDKey),
		})
	}
}

// toAppError 将任意错误映射为AppError
func toAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if errors.Is(err, models.ErrDocumentNotFound) {
		return NewNotFoundError("document not found")
	}
	if errors.Is(err, document.ErrUnsupportedType) {
		return NewValidationError("unsupported document type", err.Error())
	}
	if errors.Is(err, models.ErrInvalidDocumentStatus) {
		return NewConflictError(err.Error())
	}
	// 单次请求超时是独立的结果类型，不能混入internal
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewTimeoutError("request timed out")
	}

	return NewInternalError("internal server error", err.Error())
}

// HandleError 将错误挂载到上下文并中止后续handler
func HandleError(c *gin.Context, err error) {
	c.Error(err)
	c.Abort()
}
