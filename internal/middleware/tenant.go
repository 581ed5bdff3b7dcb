package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	HeaderTenantID   = "X-Bk-Tenant-Id"
	TenantContextKey = "bk_tenant_id"
)

// Tenant 本进程只服务一个租户，请求头缺省时取配置值，不一致时拒绝
func Tenant(tenantID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderTenantID)
		if got == "" {
			got = tenantID
		}
		if got != tenantID {
			log.Warn().Str("tenant", got).Str("expected", tenantID).Msg("tenant mismatch")
			c.AbortWithStatusJSON(http.StatusForbidden, map[string]any{
				"error": map[string]any{"code": "PERMISSION_DENIED", "message": "tenant " + got + " is not served here"},
			})
			return
		}
		c.Set(TenantContextKey, got)
		c.Next()
	}
}
