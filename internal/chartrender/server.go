// Package chartrender is the rendering service that turns notice chart series into PNG images.
package chartrender

import (
	"errors"
	"net/http"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/chart"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/metrics"
	"github.com/fox-gonic/fox"
	"github.com/rs/zerolog/log"
)

const (
	ErrorCodeInvalidParameter = "INVALID_PARAMETER"
	ErrorCodeInternalError    = "INTERNAL_ERROR"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server 出图服务
type Server struct {
	painter *Painter
}

func NewServer(painter *Painter) *Server {
	return &Server{painter: painter}
}

// UseApi 设置 API 路由
func (s *Server) UseApi(router *fox.Engine) {
	router.GET("/healthz", s.Health)
	router.POST("/v1/charts/render", s.RenderChart)
}

// Health GET /healthz
func (s *Server) Health(c *fox.Context) {
	c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// RenderChart POST /v1/charts/render
func (s *Server) RenderChart(c *fox.Context) {
	var req chart.RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.ChartRenders.WithLabelValues("invalid").Inc()
		sendErrorResponse(c, http.StatusBadRequest, ErrorCodeInvalidParameter, err.Error())
		return
	}

	img, err := s.painter.Paint(&req)
	if errors.Is(err, ErrNoSeries) {
		metrics.ChartRenders.WithLabelValues("invalid").Inc()
		sendErrorResponse(c, http.StatusBadRequest, ErrorCodeInvalidParameter, err.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Str("title", req.Title).Msg("render chart failed")
		metrics.ChartRenders.WithLabelValues("error").Inc()
		sendErrorResponse(c, http.StatusInternalServerError, ErrorCodeInternalError, "渲染失败")
		return
	}

	metrics.ChartRenders.WithLabelValues("ok").Inc()
	log.Debug().Str("title", req.Title).Int("series", len(req.Series)).Int("bytes", len(img)).Msg("chart rendered")
	c.Data(http.StatusOK, "image/png", img)
}

func sendErrorResponse(c *fox.Context, statusCode int, errorCode, message string) {
	c.JSON(statusCode, ErrorResponse{Error: ErrorDetail{Code: errorCode, Message: message}})
}
