package api

import (
	"net/http"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext"
	"github.com/gin-gonic/gin"
)

// RenderNotice POST /v1/notices/render
func (api *Api) RenderNotice(c *gin.Context) {
	var opts actioncontext.Options
	if err := c.ShouldBindJSON(&opts); err != nil {
		abort(c, http.StatusBadRequest, CodeInvalidParameter, err.Error())
		return
	}
	out, err := api.notices.Render(c.Request.Context(), opts)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type callbackRequest struct {
	ActionID int64 `json:"action_id"`
}

// CallbackMessage POST /v1/notices/callback
func (api *Api) CallbackMessage(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, CodeInvalidParameter, err.Error())
		return
	}
	if req.ActionID == 0 {
		abort(c, http.StatusBadRequest, CodeInvalidParameter, "action_id is required")
		return
	}
	msg, err := api.notices.Callback(c.Request.Context(), req.ActionID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
