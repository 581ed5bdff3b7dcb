package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	HeaderRequestID = "X-Request-Id"
	ContextKey      = "request_id"
)

// RequestID 沿用调用方的请求 id，缺失时生成一个，并在响应头中返回
func RequestID(c *gin.Context) {
	id := c.GetHeader(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(ContextKey, id)
	c.Header(HeaderRequestID, id)
	c.Next()
}

// AccessLog 每个请求一条日志
func AccessLog(c *gin.Context) {
	start := time.Now()
	c.Next()

	ev := log.Info()
	if c.Writer.Status() >= 500 {
		ev = log.Error()
	}
	ev.Str("request_id", c.GetString(ContextKey)).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Int("status", c.Writer.Status()).
		Dur("latency", time.Since(start)).
		Msg("http request")
}
