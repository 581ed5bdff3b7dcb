// Package chart builds the optional anomaly chart attached to rich notices.
package chart

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	promModel "github.com/prometheus/common/model"
)

// 无法出图的数据源
var unsupportedSources = map[[2]string]bool{
	{model.DataSourceMonitor, model.DataTypeEvent}: true,
	{model.DataSourceFTA, model.DataTypeAlert}:     true,
	{model.DataSourceMonitor, model.DataTypeAlert}: true,
}

// Point [毫秒时间戳, 值]，值为空时序列化为 null
type Point struct {
	Ts    int64
	Value *float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Ts, p.Value})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var raw [2]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw[0] != nil {
		p.Ts = int64(*raw[0])
	}
	p.Value = raw[1]
	return nil
}

// Series 一条曲线
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// RenderRequest 渲染服务的请求体
type RenderRequest struct {
	Title  string   `json:"title"`
	Unit   string   `json:"unit,omitempty"`
	Series []Series `json:"series"`
}

// Attachment 通知附件
type Attachment struct {
	Filename  string `json:"filename"`
	ContentID string `json:"content_id"`
	Content   []byte `json:"content"`
}

// SeriesSource 时序数据来源
type SeriesSource interface {
	QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (promModel.Matrix, error)
}

// Renderer 把曲线渲染为 PNG
type Renderer interface {
	Render(ctx context.Context, req *RenderRequest) ([]byte, error)
}

// Input 出图所需的上下文
type Input struct {
	Strategy     *model.Strategy
	Alert        *model.AlertDocument
	ConvergeType model.ConvergeType
	Title        string
}

// Eligible 是否需要出图，不满足时返回原因
func Eligible(enabled bool, in Input) (bool, string) {
	switch {
	case !enabled:
		return false, "render service disabled"
	case in.Strategy == nil || in.Strategy.ID == 0:
		return false, "no strategy"
	case !in.Strategy.ChartImageEnabled():
		return false, "chart image disabled by strategy"
	case in.ConvergeType != model.ConvergeAction:
		return false, "converge render"
	case in.Alert == nil || in.Alert.IsNoData():
		return false, "no data alert"
	case len(in.Strategy.Items) == 0:
		return false, "strategy without items"
	}
	for _, qc := range in.Strategy.Items[0].QueryConfigs {
		if unsupportedSources[[2]string{qc.DataSourceLabel, qc.DataTypeLabel}] {
			return false, "unsupported data source " + qc.DataSourceLabel + "|" + qc.DataTypeLabel
		}
	}
	return true, ""
}

// Window [t - max(5*interval/3, interval), t + interval]
func Window(t time.Time, interval int) (time.Time, time.Time) {
	step := time.Duration(interval) * time.Second
	before := max(step*5/3, step)
	return t.Add(-before), t.Add(step)
}

// AlertTime 未恢复的告警取 latest_time，否则取 end_time
func AlertTime(a *model.AlertDocument) time.Time {
	if a.Status != model.AlertAbnormal && a.EndTime != nil {
		return time.Unix(*a.EndTime, 0)
	}
	return time.Unix(a.LatestTime, 0)
}

// offsets 今天、昨天、上周
var offsets = []struct {
	days int
	zh   string
	en   string
}{
	{0, "今天", "today"},
	{1, "昨天", "yesterday"},
	{7, "上周", "last week"},
}

// Builder 查询曲线并调用渲染服务
type Builder struct {
	enabled   bool
	source    SeriesSource
	renderer  Renderer
	precision int
	lang      string
}

func NewBuilder(enabled bool, source SeriesSource, renderer Renderer, precision int, lang string) *Builder {
	return &Builder{enabled: enabled, source: source, renderer: renderer, precision: precision, lang: lang}
}

// Enabled 全局开关
func (b *Builder) Enabled() bool { return b.enabled && b.source != nil && b.renderer != nil }

// Image 不满足条件时返回 nil, nil
func (b *Builder) Image(ctx context.Context, in Input) ([]byte, error) {
	if ok, _ := Eligible(b.Enabled(), in); !ok {
		return nil, nil
	}
	series, err := b.Series(ctx, in)
	if err != nil {
		return nil, err
	}
	req := &RenderRequest{Title: in.Title, Series: series}
	if qc := in.Strategy.FirstQueryConfig(); qc != nil {
		req.Unit = qc.Unit
	}
	img, err := b.renderer.Render(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return img, nil
}

// Series 三条叠加曲线：今天、昨天、上周
func (b *Builder) Series(ctx context.Context, in Input) ([]Series, error) {
	item := &in.Strategy.Items[0]
	interval := item.Interval()
	start, end := Window(AlertTime(in.Alert), interval)
	query := BuildQuery(item.QueryConfigs[0], in.Alert)
	step := time.Duration(interval) * time.Second

	out := make([]Series, 0, len(offsets))
	for _, o := range offsets {
		shift := time.Duration(o.days) * 24 * time.Hour
		matrix, err := b.source.QueryRange(ctx, query, start.Add(-shift), end.Add(-shift), step)
		if err != nil {
			return nil, fmt.Errorf("query %s series: %w", o.en, err)
		}
		name := o.zh
		if b.lang == model.LangEN {
			name = o.en
		}
		out = append(out, Series{Name: name, Points: b.points(matrix, shift)})
	}
	return out, nil
}

// points 时间戳平移回今天，值按精度取整
func (b *Builder) points(matrix promModel.Matrix, shift time.Duration) []Point {
	var points []Point
	for _, stream := range matrix {
		for _, pair := range stream.Values {
			p := Point{Ts: int64(pair.Timestamp) + shift.Milliseconds()}
			v := float64(pair.Value)
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				r := Round(v, b.precision)
				p.Value = &r
			}
			points = append(points, p)
		}
		// 多条曲线时只取第一条
		break
	}
	return points
}

// Round 四舍五入到 precision 位小数
func Round(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

// BuildQuery 优先使用配置中的 PromQL，否则按指标和维度拼装
func BuildQuery(qc model.QueryConfig, alert *model.AlertDocument) string {
	if qc.PromQL != "" {
		return qc.PromQL
	}
	metric := "bkmonitor:" + strings.ReplaceAll(qc.ResultTableID, ".", ":") + ":" + qc.MetricField

	aggDims := make(map[string]bool, len(qc.AggDimension))
	for _, d := range qc.AggDimension {
		aggDims[d] = true
	}
	var filters []string
	for _, d := range alert.Dimensions {
		if !aggDims[d.Key] || d.Value == "" {
			continue
		}
		filters = append(filters, fmt.Sprintf("%s=%q", d.Key, d.Value))
	}
	sort.Strings(filters)

	sel := metric + "{" + strings.Join(filters, ",") + "}"
	method := strings.ToLower(qc.AggMethod)
	switch method {
	case "sum", "avg", "min", "max", "count":
	default:
		method = "avg"
	}
	expr := method + "(" + sel + ")"
	if len(qc.AggDimension) > 0 {
		expr += " by (" + strings.Join(qc.AggDimension, ",") + ")"
	}
	return expr
}

// Filename 附件名
func Filename(actionID int64) string {
	return fmt.Sprintf("alarm_chart_%d.png", actionID)
}
