package api

import (
	"context"
	"net/http"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/notice"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/query"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StrategyQuerier 策略列表查询
type StrategyQuerier interface {
	Query(ctx context.Context, req *query.Request) (*query.Response, error)
}

// NoticeRenderer 通知渲染与回调消息
type NoticeRenderer interface {
	Render(ctx context.Context, opts actioncontext.Options) (*notice.Output, error)
	Callback(ctx context.Context, actionID int64) (*actioncontext.CallbackMessage, error)
}

type Api struct {
	strategies StrategyQuerier
	notices    NoticeRenderer
}

func NewApi(router *gin.Engine, strategies StrategyQuerier, notices NoticeRenderer) *Api {
	api := &Api{strategies: strategies, notices: notices}
	api.setupRouters(router)
	return api
}

func (api *Api) setupRouters(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.POST("/strategies/query", api.QueryStrategies)
	v1.POST("/notices/render", api.RenderNotice)
	v1.POST("/notices/callback", api.CallbackMessage)
}
