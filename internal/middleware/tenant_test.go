package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Tenant("system"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(TenantContextKey)) })

	cases := []struct {
		header string
		status int
		body   string
	}{
		{"", http.StatusOK, "system"},
		{"system", http.StatusOK, "system"},
		{"other", http.StatusForbidden, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if tc.header != "" {
			req.Header.Set(HeaderTenantID, tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, tc.header)
		if tc.status == http.StatusOK {
			assert.Equal(t, tc.body, w.Body.String())
		} else {
			assert.Contains(t, w.Body.String(), "PERMISSION_DENIED")
		}
	}
}
