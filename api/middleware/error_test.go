package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/ayurveda-qa-system/internal/document"
	"github.com/fyerfyer/ayurveda-qa-system/internal/models"
)

// TestToAppError 测试内部错误到HTTP语义的映射
func TestToAppError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantType ErrorType
		wantCode int
	}{
		{
			name:     "document not found",
			err:      fmt.Errorf("load document: %w", models.ErrDocumentNotFound),
			wantType: ErrorTypeNotFound,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "unsupported document type",
			err:      document.ErrUnsupportedType,
			wantType: ErrorTypeValidation,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid status transition",
			err:      fmt.Errorf("%w: completed -> processing", models.ErrInvalidDocumentStatus),
			wantType: ErrorTypeConflict,
			wantCode: http.StatusConflict,
		},
		{
			name:     "wrapped deadline exceeded",
			err:      fmt.Errorf("retrieval failed: %w", context.DeadlineExceeded),
			wantType: ErrorTypeTimeout,
			wantCode: http.StatusGatewayTimeout,
		},
		{
			name:     "canceled request",
			err:      context.Canceled,
			wantType: ErrorTypeTimeout,
			wantCode: http.StatusGatewayTimeout,
		},
		{
			name:     "unknown error",
			err:      errors.New("boom"),
			wantType: ErrorTypeInternal,
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appErr := toAppError(tc.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tc.wantType, appErr.Type, "错误类型应该匹配")
			assert.Equal(t, tc.wantCode, appErr.Code, "HTTP状态码应该匹配")
		})
	}

	t.Run("app error passthrough", func(t *testing.T) {
		orig := NewValidationError("question is required", "missing field")
		appErr := toAppError(fmt.Errorf("bind: %w", orig))
		assert.Same(t, orig, appErr, "已经是AppError的错误应该原样返回")
	})
}

// TestErrorHandlerTimeout 测试超时的问答请求返回504而不是500
func TestErrorHandlerTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/qa", func(c *gin.Context) {
		HandleError(c, fmt.Errorf("retrieval failed: %w", context.DeadlineExceeded))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/qa", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code, "超时请求应该映射为504")
	assert.Contains(t, w.Body.String(), "request timed out")
}
