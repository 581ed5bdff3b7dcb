// Package aiops 维度下钻与关联指标推荐的客户端
package aiops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/tidwall/gjson"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	enabled    map[int64]bool
}

// NewClient enabledBiz 为空时所有业务都未开启
func NewClient(baseURL string, timeout time.Duration, enabledBiz []int64) *Client {
	enabled := make(map[int64]bool, len(enabledBiz))
	for _, id := range enabledBiz {
		enabled[id] = true
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		enabled:    enabled,
	}
}

// Enabled 业务是否开启了智能分析
func (c *Client) Enabled(bizID int64) bool {
	return c != nil && c.baseURL != "" && c.enabled[bizID]
}

// AnomalyDimensions 维度下钻结果：异常维度数与异常维度值数
func (c *Client) AnomalyDimensions(ctx context.Context, bizID int64, alertID string) (int64, int64, error) {
	data, err := c.call(ctx, "/api/v1/dimension_drill", bizID, alertID)
	if err != nil {
		return 0, 0, err
	}
	return data.Get("info.anomaly_dimension_count").Int(), data.Get("info.anomaly_dimension_value_count").Int(), nil
}

// RecommendedMetrics 关联指标推荐：指标数与维度数
func (c *Client) RecommendedMetrics(ctx context.Context, bizID int64, alertID string) (int64, int64, error) {
	data, err := c.call(ctx, "/api/v1/metric_recommend", bizID, alertID)
	if err != nil {
		return 0, 0, err
	}
	var metrics int64
	for _, class := range data.Get("recommended_metrics").Array() {
		metrics += int64(len(class.Get("metrics").Array()))
	}
	return metrics, data.Get("info.recommended_metric_count").Int(), nil
}

func (c *Client) call(ctx context.Context, path string, bizID int64, alertID string) (gjson.Result, error) {
	if !c.Enabled(bizID) {
		return gjson.Result{}, fmt.Errorf("biz %d: %w", bizID, model.ErrAIOpsNotEnabled)
	}
	body, err := json.Marshal(map[string]any{"bk_biz_id": bizID, "alert_id": alertID})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal aiops request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create aiops request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, &model.UpstreamError{Service: "aiops", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, &model.UpstreamError{Service: "aiops", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, &model.UpstreamError{Service: "aiops", Err: fmt.Errorf("status %d: %s", resp.StatusCode, raw)}
	}
	r := gjson.ParseBytes(raw)
	if !r.Get("result").Bool() {
		return gjson.Result{}, &model.UpstreamError{Service: "aiops", Err: fmt.Errorf("%s", r.Get("message").String())}
	}
	return r.Get("data"), nil
}
