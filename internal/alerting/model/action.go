package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// SignalTemplate 某个信号下的标题和内容模板
type SignalTemplate struct {
	Signal      ActionSignal `json:"signal"`
	TitleTmpl   string       `json:"title_tmpl"`
	MessageTmpl string       `json:"message_tmpl"`
}

// TemplateDetail 通知模板，可按渠道覆盖
type TemplateDetail struct {
	Template        []SignalTemplate            `json:"template"`
	ChannelTemplate map[string][]SignalTemplate `json:"channel_template,omitempty"`
}

type ExecuteConfig struct {
	TemplateDetail TemplateDetail `json:"template_detail"`
	// Timeout 单位秒
	Timeout int `json:"timeout"`
}

// ActionConfigSnapshot 动作配置快照
type ActionConfigSnapshot struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	PluginID      int64         `json:"plugin_id"`
	ExecuteConfig ExecuteConfig `json:"execute_config"`
}

type ActionPlugin struct {
	PluginType PluginType `json:"plugin_type"`
	Name       string     `json:"name,omitempty"`
}

// Inputs 动作的自由参数
type Inputs json.RawMessage

func (in Inputs) MarshalJSON() ([]byte, error) {
	if len(in) == 0 {
		return []byte("null"), nil
	}
	return in, nil
}

func (in *Inputs) UnmarshalJSON(data []byte) error {
	*in = append((*in)[0:0], data...)
	return nil
}

func (in Inputs) Get(path string) gjson.Result { return gjson.GetBytes(in, path) }

func (in Inputs) NoticeWay() string { return in.Get("notice_way").String() }

// NoticeReceivers 接收人，兼容字符串和列表
func (in Inputs) NoticeReceivers() []string {
	return stringList(in.Get("notice_receiver"))
}

// NoticeReceiver 接收人的标量形式
func (in Inputs) NoticeReceiver() string {
	return strings.Join(in.NoticeReceivers(), ",")
}

// MentionUsers 机器人需要 @ 的人，未设置时 ok 为 false
func (in Inputs) MentionUsers() ([]string, bool) {
	r := in.Get("mention_users")
	if !r.Exists() {
		return nil, false
	}
	return stringList(r), true
}

// Followed 是否关注人通知
func (in Inputs) Followed() bool { return in.Get("followed").Bool() }

func stringList(r gjson.Result) []string {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	if r.IsArray() {
		var out []string
		for _, v := range r.Array() {
			if s := ScalarString(v); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := ScalarString(r); s != "" {
		return []string{s}
	}
	return nil
}

// ActionInstance 一次通知或处理任务
type ActionInstance struct {
	ID             int64                `json:"id"`
	CreateTime     time.Time            `json:"create_time"`
	EndTime        *time.Time           `json:"end_time,omitempty"`
	Status         ActionStatus         `json:"status"`
	Signal         ActionSignal         `json:"signal"`
	Alerts         []string             `json:"alerts"`
	StrategyID     int64                `json:"strategy_id"`
	BkBizID        int64                `json:"bk_biz_id"`
	ActionConfig   ActionConfigSnapshot `json:"action_config"`
	ActionConfigID int64                `json:"action_config_id"`
	ActionPlugin   ActionPlugin         `json:"action_plugin"`
	Inputs         Inputs               `json:"inputs"`
	DimensionHash  string               `json:"dimension_hash,omitempty"`
	Dimensions     []Dimension          `json:"dimensions,omitempty"`
}

// EsActionID 对外稳定 id，用于拼接链接和 token
func (a *ActionInstance) EsActionID() string {
	return fmt.Sprintf("%d%d", a.CreateTime.Unix(), a.ID)
}

// HasAlert 动作是否关联告警
func (a *ActionInstance) HasAlert(id string) bool {
	for _, v := range a.Alerts {
		if v == id {
			return true
		}
	}
	return false
}

// StringList 兼容单个字符串和字符串列表的 JSON 字段
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid string list: %s", data)
	}
	*l = stringList(gjson.ParseBytes(data))
	return nil
}
