package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Dimension 告警维度，key 为规范名，display_* 为本地化展示
type Dimension struct {
	Key          string `json:"key"`
	Value        string `json:"value"`
	DisplayKey   string `json:"display_key"`
	DisplayValue string `json:"display_value"`
}

// UnmarshalJSON 兼容数值、布尔类型的维度值
func (d *Dimension) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid dimension: %s", data)
	}
	r := gjson.ParseBytes(data)
	d.Key = r.Get("key").String()
	d.Value = ScalarString(r.Get("value"))
	d.DisplayKey = r.Get("display_key").String()
	d.DisplayValue = ScalarString(r.Get("display_value"))
	return nil
}

// Label 展示用 key
func (d Dimension) Label() string {
	if d.DisplayKey != "" {
		return d.DisplayKey
	}
	return d.Key
}

// Display 展示用 value
func (d Dimension) Display() string {
	if d.DisplayValue != "" {
		return d.DisplayValue
	}
	return d.Value
}

// ScalarString 把任意 JSON 标量转成字符串，数值保留原始写法
func ScalarString(r gjson.Result) string {
	switch r.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return r.Str
	case gjson.Number, gjson.True, gjson.False:
		return r.Raw
	default:
		return r.Raw
	}
}

// Event 告警内嵌的事件文档
type Event struct {
	ID                  string          `json:"id"`
	EventID             string          `json:"event_id"`
	Target              string          `json:"target"`
	TargetType          string          `json:"target_type"`
	IP                  string          `json:"ip"`
	BkCloudID           *int64          `json:"bk_cloud_id,omitempty"`
	BkHostID            *int64          `json:"bk_host_id,omitempty"`
	BkServiceInstanceID *int64          `json:"bk_service_instance_id,omitempty"`
	BkBizID             int64           `json:"bk_biz_id"`
	Description         string          `json:"description"`
	Time                int64           `json:"time"`
	CreateTime          int64           `json:"create_time"`
	DedupeMD5           string          `json:"dedupe_md5"`
	Category            string          `json:"category,omitempty"`
	Metric              []string        `json:"metric,omitempty"`
	ExtraInfo           json.RawMessage `json:"extra_info,omitempty"`
}

// OriginAlarm 原始异常点
func (e *Event) OriginAlarm() gjson.Result {
	return gjson.GetBytes(e.ExtraInfo, "origin_alarm")
}

// AlertDocument 告警文档，核心内只读
type AlertDocument struct {
	ID               string          `json:"id"`
	AlertName        string          `json:"alert_name"`
	StrategyID       int64           `json:"strategy_id"`
	Severity         Severity        `json:"severity"`
	Status           AlertStatus     `json:"status"`
	BeginTime        int64           `json:"begin_time"`
	LatestTime       int64           `json:"latest_time"`
	FirstAnomalyTime int64           `json:"first_anomaly_time"`
	CreateTime       int64           `json:"create_time"`
	EndTime          *int64          `json:"end_time,omitempty"`
	Duration         int64           `json:"duration"`
	Dimensions       []Dimension     `json:"dimensions"`
	AggDimensions    []string        `json:"agg_dimensions"`
	Event            Event           `json:"event"`
	Assignee         []string        `json:"assignee"`
	Appointee        []string        `json:"appointee"`
	AckOperator      string          `json:"ack_operator,omitempty"`
	IsShielded       *bool           `json:"is_shielded,omitempty"`
	IsAck            *bool           `json:"is_ack,omitempty"`
	Labels           []string        `json:"labels"`
	ExtraInfo        json.RawMessage `json:"extra_info,omitempty"`
}

// BkBizID 告警所属业务
func (a *AlertDocument) BkBizID() int64 { return a.Event.BkBizID }

// IsNoData 是否无数据告警
func (a *AlertDocument) IsNoData() bool {
	return gjson.GetBytes(a.ExtraInfo, "is_no_data").Bool()
}

// Shielded 是否处于屏蔽中
func (a *AlertDocument) Shielded() bool { return a.IsShielded != nil && *a.IsShielded }

// StrategySnapshot 告警产生时的策略快照，可能为空
func (a *AlertDocument) StrategySnapshot() []byte {
	r := gjson.GetBytes(a.ExtraInfo, "strategy")
	if !r.IsObject() {
		return nil
	}
	return []byte(r.Raw)
}

// MatchedGroupID 分派规则命中的组
func (a *AlertDocument) MatchedGroupID() int64 {
	return gjson.GetBytes(a.ExtraInfo, "matched_rule_info.group_info.group_id").Int()
}

// AssignReason 分派原因
func (a *AlertDocument) AssignReason() string {
	return gjson.GetBytes(a.ExtraInfo, "matched_rule_info.assign_reason").String()
}

// CurrentValue 异常点的原始值
func (a *AlertDocument) CurrentValue() gjson.Result {
	return gjson.GetBytes(a.Event.ExtraInfo, "origin_alarm.data.value")
}

// RecoveryValue 恢复时的值
func (a *AlertDocument) RecoveryValue() gjson.Result {
	return gjson.GetBytes(a.ExtraInfo, "recovery_value")
}

// EndDescription 结束描述
func (a *AlertDocument) EndDescription() string {
	return gjson.GetBytes(a.ExtraInfo, "end_description").String()
}

// RelationInfo 外部关联信息（日志等）
func (a *AlertDocument) RelationInfo() string {
	return gjson.GetBytes(a.ExtraInfo, "relation_info").String()
}

// CommonDimensions 除内部维度外的全部维度
func (a *AlertDocument) CommonDimensions() []Dimension {
	out := make([]Dimension, 0, len(a.Dimensions))
	for _, d := range a.Dimensions {
		if strings.HasPrefix(d.Key, "__") {
			continue
		}
		out = append(out, d)
	}
	return out
}

// TargetDimensions 目标类维度
func (a *AlertDocument) TargetDimensions() []Dimension {
	var out []Dimension
	for _, d := range a.Dimensions {
		if IsTargetDimension(d.Key) {
			out = append(out, d)
		}
	}
	return out
}

// CommonDimensionTuple 非目标维度组成的签名，用于判断多条告警是否同组
func (a *AlertDocument) CommonDimensionTuple() string {
	var b strings.Builder
	for _, d := range a.CommonDimensions() {
		if IsTargetDimension(d.Key) {
			continue
		}
		b.WriteString(d.Key)
		b.WriteByte('=')
		b.WriteString(d.Value)
		b.WriteByte('|')
	}
	return b.String()
}

// DimensionValue 按 key 取维度值
func (a *AlertDocument) DimensionValue(key string) (Dimension, bool) {
	for _, d := range a.Dimensions {
		if d.Key == key {
			return d, true
		}
	}
	return Dimension{}, false
}

// IsTargetDimension 是否 CMDB 目标类维度
func IsTargetDimension(key string) bool {
	for _, k := range CMDBTargetDimensions {
		if k == key {
			return true
		}
	}
	return false
}

// AlertRef 按 (alert_id, strategy_id) 批量加载告警
type AlertRef struct {
	ID         string
	StrategyID int64
}
