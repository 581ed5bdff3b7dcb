package api

import (
	"net/http"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/query"
	"github.com/gin-gonic/gin"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
)

// QueryStrategies POST /v1/strategies/query
func (api *Api) QueryStrategies(c *gin.Context) {
	var req query.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, CodeInvalidParameter, err.Error())
		return
	}
	if req.BkBizID == 0 {
		abort(c, http.StatusBadRequest, CodeInvalidParameter, "bk_biz_id is required")
		return
	}
	if req.Page <= 0 {
		req.Page = defaultPage
	}
	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	resp, err := api.strategies.Query(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
