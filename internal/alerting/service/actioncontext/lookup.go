package actioncontext

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/target"
	"github.com/tidwall/gjson"
)

// Fielder 模板可按名称访问的视图
type Fielder interface {
	Field(name string) (any, bool)
}

var contextFields = map[string]func(*Context) any{
	"action":                  func(c *Context) any { return c.action },
	"converge":                func(c *Context) any { return c.converge },
	"converge_type":           func(c *Context) any { return string(c.ConvergeType()) },
	"signal":                  func(c *Context) any { return string(c.Signal()) },
	"related_actions":         func(c *Context) any { return c.RelatedActions() },
	"alerts":                  func(c *Context) any { return c.Alerts() },
	"alert":                   func(c *Context) any { return c.Alert() },
	"event":                   func(c *Context) any { return c.Alert() },
	"example_action":          func(c *Context) any { return c.ExampleAction() },
	"anomaly_record":          func(c *Context) any { return c.AnomalyRecord() },
	"alert_level":             func(c *Context) any { return int(c.AlertLevel()) },
	"level_name":              func(c *Context) any { return c.LevelName() },
	"level_color":             func(c *Context) any { return c.LevelColor() },
	"strategy_id":             func(c *Context) any { return c.StrategyID() },
	"alert_name":              func(c *Context) any { return c.AlertName() },
	"notice_channel":          func(c *Context) any { return c.NoticeChannel() },
	"notice_way":              func(c *Context) any { return c.NoticeWay() },
	"group_notice_way":        func(c *Context) any { return c.GroupNoticeWay() },
	"notice_receiver":         func(c *Context) any { return c.NoticeReceiver() },
	"mentioned_users":         func(c *Context) any { return c.MentionedUsers() },
	"is_external_channel":     func(c *Context) any { return c.IsExternalChannel() },
	"user_type":               func(c *Context) any { return c.UserType() },
	"content_template":        func(c *Context) any { return c.ContentTemplate() },
	"title_template":          func(c *Context) any { return c.TitleTemplate() },
	"collect_id":              func(c *Context) any { return c.CollectID() },
	"token":                   func(c *Context) any { return c.Token() },
	"action_config_id":        func(c *Context) any { return c.ActionConfigID() },
	"dimensions_md5":          func(c *Context) any { return c.DimensionsMD5() },
	"alerts_info":             func(c *Context) any { return c.AlertsInfo() },
	"action_instance":         func(c *Context) any { return c.actionInstance },
	"action_instance_content": func(c *Context) any { return c.actionInstance.Content() },
	"alarm":                   func(c *Context) any { return c.alarm },
	"target":                  func(c *Context) any { return c.target },
	"strategy":                func(c *Context) any { return c.Strategy() },
	"business":                func(c *Context) any { return c.Business() },
	"converge_context":        func(c *Context) any { return c.convergeView },
	"collect_ctx":             func(c *Context) any { return c.convergeView },
	"user_title":              func(c *Context) any { return c.UserTitle() },
	"user_content":            func(c *Context) any { return c.UserContent() },
	"limit":                   func(c *Context) any { return c.opts.Limit },
}

var alarmFields = map[string]func(*Alarm) any{
	"id":                      func(a *Alarm) any { return a.ID() },
	"name":                    func(a *Alarm) any { return a.Name() },
	"level":                   func(a *Alarm) any { return int(a.Level()) },
	"level_name":              func(a *Alarm) any { return a.LevelName() },
	"display_type":            func(a *Alarm) any { return a.DisplayType() },
	"is_no_data":              func(a *Alarm) any { return a.IsNoData() },
	"display_dimensions":      func(a *Alarm) any { return a.DisplayDimensions() },
	"display_targets":         func(a *Alarm) any { return a.DisplayTargets() },
	"target_string":           func(a *Alarm) any { return a.TargetString() },
	"target_type":             func(a *Alarm) any { return a.TargetType() },
	"target_type_name":        func(a *Alarm) any { return a.TargetTypeName() },
	"dimension_string":        func(a *Alarm) any { return a.DimensionString() },
	"dimension_string_list":   func(a *Alarm) any { return a.DimensionStringList() },
	"collect_count":           func(a *Alarm) any { return a.CollectCount() },
	"time":                    func(a *Alarm) any { return a.Time() },
	"begin_time":              func(a *Alarm) any { return a.BeginTime() },
	"begin_timestamp":         func(a *Alarm) any { return a.BeginTimestamp() },
	"latest_time":             func(a *Alarm) any { return a.LatestTime() },
	"duration":                func(a *Alarm) any { return a.Duration() },
	"duration_string":         func(a *Alarm) any { return a.DurationString() },
	"current_value":           func(a *Alarm) any { return a.CurrentValue() },
	"unit":                    func(a *Alarm) any { return a.Unit() },
	"notice_from":             func(a *Alarm) any { return a.NoticeFrom() },
	"data_source_name":        func(a *Alarm) any { return a.DataSourceName() },
	"detail_url":              func(a *Alarm) any { return a.DetailURL() },
	"example_detail_url":      func(a *Alarm) any { return a.ExampleDetailURL() },
	"quick_ack_url":           func(a *Alarm) any { return a.QuickAckURL() },
	"quick_shield_url":        func(a *Alarm) any { return a.QuickShieldURL() },
	"strategy_url":            func(a *Alarm) any { return a.StrategyURL() },
	"assign_detail":           func(a *Alarm) any { return a.AssignDetail() },
	"assign_reason":           func(a *Alarm) any { return a.AssignReason() },
	"related_info":            func(a *Alarm) any { return a.RelatedInfo() },
	"topo_related_info":       func(a *Alarm) any { return a.TopoRelatedInfo() },
	"log_related_info":        func(a *Alarm) any { return a.LogRelatedInfo() },
	"description":             func(a *Alarm) any { return a.Description() },
	"end_description":         func(a *Alarm) any { return a.EndDescription() },
	"receivers":               func(a *Alarm) any { return a.Receivers() },
	"assignees":               func(a *Alarm) any { return strings.Join(a.Receivers(), ",") },
	"appointees":              func(a *Alarm) any { return a.Appointees() },
	"ack_operator":            func(a *Alarm) any { return a.AckOperator() },
	"ack_operators":           func(a *Alarm) any { return a.AckOperators() },
	"ack_reason":              func(a *Alarm) any { return a.AckReasons() },
	"ack_title":               func(a *Alarm) any { return a.AckTitle() },
	"chart_image_enabled":     func(a *Alarm) any { return a.ChartImageEnabled() },
	"chart_name":              func(a *Alarm) any { return a.ChartName() },
	"attachments":             func(a *Alarm) any { return a.Attachments() },
	"anomaly_dimensions":      func(a *Alarm) any { return a.AnomalyDimensions() },
	"recommended_metrics":     func(a *Alarm) any { return a.RecommendedMetrics() },
	"remarks":                 func(a *Alarm) any { return a.Remarks() },
	"callback_message":        func(a *Alarm) any { return a.CallbackMessageJSON() },
	"alert_info":              func(a *Alarm) any { return a.AlertInfo() },
	"source_time_range":       func(a *Alarm) any { return a.SourceTimeRange() },
	"current_value_with_unit": func(a *Alarm) any { return a.CurrentValueWithUnit() },
}

func (a *Alarm) Field(name string) (any, bool) {
	fn, ok := alarmFields[name]
	if !ok {
		return nil, false
	}
	return fn(a), true
}

func (t *TargetView) Field(name string) (any, bool) {
	switch name {
	case "host":
		return t.Host(), true
	case "hosts":
		return t.Hosts(), true
	case "processes":
		return t.Processes(), true
	case "service_instance", "service":
		return t.ServiceInstance(), true
	case "sets":
		return t.Sets(), true
	case "modules":
		return t.Modules(), true
	case "set_string":
		return t.SetString(), true
	case "module_string":
		return t.ModuleString(), true
	case "env_string":
		return t.EnvString(), true
	case "business":
		return t.Business(), true
	}
	return nil, false
}

func (v *ConvergeView) Field(name string) (any, bool) {
	switch name {
	case "converge_type":
		return string(v.ConvergeType()), true
	case "description":
		return v.Description(), true
	case "related_action_count":
		return v.RelatedActionCount(), true
	case "alert_count", "collect_count":
		return v.AlertCount(), true
	case "strategy_ids":
		return v.StrategyIDs(), true
	case "alert_info":
		return v.Keys().AlertInfo, true
	case "notice_info":
		return v.Keys().NoticeInfo, true
	case "action_info":
		return v.Keys().ActionInfo, true
	case "notice_way":
		return v.Keys().NoticeWay, true
	case "notice_receiver":
		return v.Keys().NoticeReceiver, true
	case "dimensions_md5":
		return v.c.DimensionsMD5(), true
	}
	return nil, false
}

func (v *ActionInstanceView) Field(name string) (any, bool) {
	switch name {
	case "id":
		return v.ID(), true
	case "name":
		return v.Name(), true
	case "plugin_type":
		return string(v.PluginType()), true
	case "status":
		return string(v.Status()), true
	case "signal":
		return string(v.Signal()), true
	case "signal_name":
		return v.SignalName(), true
	case "create_time":
		return v.CreateTime(), true
	case "end_time":
		return v.EndTime(), true
	case "content":
		return v.Content(), true
	}
	return nil, false
}

// Field 顶层字段
func (c *Context) Field(name string) (any, bool) {
	fn, ok := contextFields[name]
	if !ok {
		return nil, false
	}
	return fn(c), true
}

// Lookup 按 a.b.c 路径取值，路径不存在时 ok 为 false
func (c *Context) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	v, ok := c.Field(parts[0])
	if !ok {
		return nil, false
	}
	return Resolve(v, parts[1:])
}

// Resolve 在视图、map、切片和模型结构体上逐级取值
func Resolve(v any, path []string) (any, bool) {
	for i, name := range path {
		if isNil(v) {
			return nil, false
		}
		switch t := v.(type) {
		case Fielder:
			next, ok := t.Field(name)
			if !ok {
				return nil, false
			}
			v = next
		case *target.MultiInstance:
			next, ok := t.Lookup(name)
			if !ok {
				return nil, false
			}
			v = next
		case map[string]any:
			next, ok := t[name]
			if !ok {
				return nil, false
			}
			v = next
		default:
			return resolveJSON(v, path[i:])
		}
	}
	return v, true
}

// resolveJSON 模型结构体按 JSON 字段名访问
func resolveJSON(v any, path []string) (any, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	escaped := make([]string, len(path))
	for i, p := range path {
		escaped[i] = p
		if _, err := strconv.Atoi(p); err != nil {
			escaped[i] = strings.NewReplacer("*", `\*`, "?", `\?`).Replace(p)
		}
	}
	r := gjson.GetBytes(b, strings.Join(escaped, "."))
	if !r.Exists() {
		return nil, false
	}
	return r.Value(), true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
