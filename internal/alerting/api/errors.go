package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInternalError    = "INTERNAL_ERROR"
)

func abort(c *gin.Context, status int, code, message string) {
	c.JSON(status, map[string]any{"error": map[string]any{"code": code, "message": message}})
}

// abortWithError 按错误类型映射状态码
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		abort(c, http.StatusBadRequest, CodeInvalidParameter, err.Error())
	case errors.Is(err, model.ErrNotFound):
		abort(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, model.ErrPermissionDenied):
		abort(c, http.StatusForbidden, CodePermissionDenied, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		abort(c, http.StatusGatewayTimeout, CodeInternalError, err.Error())
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		abort(c, http.StatusInternalServerError, CodeInternalError, err.Error())
	}
}
