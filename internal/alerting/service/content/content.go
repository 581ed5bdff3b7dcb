// Package content renders notification titles and bodies from an action context.
package content

import (
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext"
)

// Shape 通知内容形态
type Shape string

const (
	ShapeDimension     Shape = "dimension_collect"
	ShapeMultiStrategy Shape = "multi_strategy_collect"
	// ShapeNone 回调类动作只输出结构化消息
	ShapeNone Shape = "none"
)

// SelectShape 汇总了多个动作的收敛按多策略输出
func SelectShape(c *actioncontext.Context) Shape {
	switch c.ActionInstance().PluginType() {
	case model.PluginWebhook, model.PluginMessageQueue:
		return ShapeNone
	}
	if c.ConvergeType() == model.ConvergeConverge && len(c.RelatedActions()) > 1 {
		return ShapeMultiStrategy
	}
	return ShapeDimension
}

// View 模板中的 content.xxx，每个字段输出一整行
type View struct {
	c       *actioncontext.Context
	shape   Shape
	channel string
	row     string
	rows    map[string]string
}

func NewView(c *actioncontext.Context, shape Shape) *View {
	channel := c.NoticeWay()
	if c.IsMarkdown() {
		channel = model.NoticeWayMarkdown
	}
	return &View{
		c:       c,
		shape:   shape,
		channel: channel,
		row:     RowChannel(c.NoticeWay(), c.IsMarkdown()),
		rows:    make(map[string]string),
	}
}

func (v *View) Shape() Shape { return v.shape }

// Value 字段的原始值，未格式化成行
func (v *View) Value(field string) (string, bool) {
	fn, ok := lookupField(v.shape, field, v.channel)
	if !ok {
		return "", false
	}
	return fn(v.c), true
}

// Field 格式化后的行，同一字段只计算一次
func (v *View) Field(name string) (any, bool) {
	if row, ok := v.rows[name]; ok {
		return row, true
	}
	value, ok := v.Value(name)
	if !ok {
		return nil, false
	}
	label := Label(v.c.Language(), v.shape, name, v.channel)
	row := FormatRow(v.row, label, value)
	v.rows[name] = row
	return row, true
}
