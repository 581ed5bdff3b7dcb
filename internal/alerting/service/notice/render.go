// Package notice turns a render request into the rendered notice handed back to
// the scheduler: title, body, attachments and the convergence keys.
package notice

import (
	"context"
	"fmt"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/chart"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/content"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/converge"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Output 一次渲染的结果
type Output struct {
	Title           string             `json:"title"`
	Content         string             `json:"content"`
	Attachments     []chart.Attachment `json:"attachments"`
	ConvergenceKeys converge.Keys      `json:"convergence_keys"`
	NoticeWay       string             `json:"notice_way"`
	MentionedUsers  []string           `json:"mentioned_users,omitempty"`
	Shape           content.Shape      `json:"shape"`
	Diagnostics     []string           `json:"diagnostics,omitempty"`
}

type Renderer struct {
	deps *actioncontext.Deps
}

func NewRenderer(deps *actioncontext.Deps) *Renderer {
	return &Renderer{deps: deps}
}

// Render 组装上下文，计算收敛键并渲染内容
func (r *Renderer) Render(ctx context.Context, opts actioncontext.Options) (*Output, error) {
	start := time.Now()
	c, err := actioncontext.New(ctx, r.deps, opts)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	res := content.Render(c)
	out := &Output{
		Title:           res.Title,
		Content:         res.Content,
		Attachments:     []chart.Attachment{},
		ConvergenceKeys: c.ConvergeContext().Keys(),
		NoticeWay:       c.NoticeWay(),
		MentionedUsers:  c.MentionedUsers(),
		Shape:           res.Shape,
		Diagnostics:     res.Diagnostics,
	}
	if res.Shape == content.ShapeNone {
		// 回调类动作只下发结构化消息
		out.Content = c.Alarm().CallbackMessageJSON()
	} else {
		out.Attachments = c.Alarm().Attachments()
	}
	if c.Alert() == nil {
		out.Diagnostics = append(out.Diagnostics, "no alert found for the driving entity")
	}

	metrics.RenderDuration.WithLabelValues(out.NoticeWay, string(out.Shape)).Observe(time.Since(start).Seconds())
	log.Debug().
		Int64("action_id", opts.ActionID).
		Int64("converge_id", opts.ConvergeID).
		Str("notice_way", out.NoticeWay).
		Str("shape", string(out.Shape)).
		Str("notice_info", out.ConvergenceKeys.NoticeInfo).
		Msg("notice rendered")
	return out, nil
}

// Callback 动作的回调消息
func (r *Renderer) Callback(ctx context.Context, actionID int64) (*actioncontext.CallbackMessage, error) {
	c, err := actioncontext.New(ctx, r.deps, actioncontext.Options{ActionID: actionID})
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}
	msg := c.Alarm().CallbackMessage()
	if msg == nil {
		return nil, fmt.Errorf("action %d has no alert: %w", actionID, model.ErrNotFound)
	}
	return msg, nil
}
