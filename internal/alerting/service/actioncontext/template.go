package actioncontext

import (
	"strings"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
)

// 默认模板。content 的每一行自带换行，空行在渲染时丢弃
const (
	DefaultTitleTemplate   = "{{business.bk_biz_name}} - {{alarm.name}}{{alarm.display_type}}"
	DefaultContentTemplate = "{{content.level}}{{content.begin_time}}{{content.time}}{{content.duration}}" +
		"{{content.target_type}}{{content.data_source}}{{content.content}}{{content.current_value}}" +
		"{{content.biz}}{{content.target}}{{content.dimension}}{{content.detail}}{{content.assign_detail}}" +
		"{{content.related_info}}{{content.receivers}}{{content.remarks}}"
)

// 这些通知方式自带标题字段
var titledNoticeWays = map[string]bool{
	model.NoticeWayMail: true,
	model.NoticeWayRTX:  true,
}

type templates struct {
	title   string
	content string
}

// templateSignal 无数据与异常共用模板；汇总动作使用代表动作的信号
func (c *Context) templateSignal() model.ActionSignal {
	signal := c.Signal()
	if signal == model.SignalCollect {
		if ex := c.ExampleAction(); ex != nil && ex.Signal != model.SignalCollect {
			signal = ex.Signal
		}
	}
	if signal == model.SignalNoData {
		signal = model.SignalAbnormal
	}
	return signal
}

func matchTemplate(list []model.SignalTemplate, signal model.ActionSignal) *model.SignalTemplate {
	for i := range list {
		if strings.EqualFold(string(list[i].Signal), string(signal)) {
			return &list[i]
		}
	}
	return nil
}

func (c *Context) templates() templates {
	return c.tmpl.get(func() templates {
		t := templates{title: DefaultTitleTemplate, content: DefaultContentTemplate}
		signal := c.templateSignal()

		var found *model.SignalTemplate
		if a := c.configAction(); a != nil {
			detail := a.ActionConfig.ExecuteConfig.TemplateDetail
			if channel := c.NoticeChannel(); channel != model.NoticeChannelUser {
				found = matchTemplate(detail.ChannelTemplate[channel], signal)
			}
			if found == nil {
				found = matchTemplate(detail.Template, signal)
			}
		}
		if found != nil {
			if found.TitleTmpl != "" {
				t.title = found.TitleTmpl
			}
			if found.MessageTmpl != "" {
				t.content = found.MessageTmpl
			}
		}
		if !titledNoticeWays[c.NoticeWay()] && t.title != DefaultTitleTemplate {
			t.content = t.title + "\n" + t.content
		}
		return t
	})
}

// TitleTemplate 当前信号与渠道的标题模板
func (c *Context) TitleTemplate() string { return c.templates().title }

// ContentTemplate 当前信号与渠道的内容模板，无标题字段的渠道已拼上标题
func (c *Context) ContentTemplate() string { return c.templates().content }
