package content

import (
	"regexp"
	"strings"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/dimension"
)

// SMSRelatedInfoLimit 短信关联信息的最大字符数
const SMSRelatedInfoLimit = 300

// Fields 一条通知内容支持的字段，顺序即默认模板中的顺序
var Fields = []string{
	"level", "begin_time", "time", "duration", "target_type", "data_source", "content",
	"current_value", "biz", "target", "dimension", "detail", "assign_detail", "related_info",
	"sms_forced_related_info", "appointees", "assign_reason", "ack_operators", "ack_reason",
	"anomaly_dimensions", "recommended_metrics", "receivers", "remarks",
}

type valueFunc func(c *actioncontext.Context) string

func omitted(*actioncontext.Context) string { return "" }

func alarmString(fn func(a *actioncontext.Alarm) string) valueFunc {
	return func(c *actioncontext.Context) string { return fn(c.Alarm()) }
}

func alarmList(fn func(a *actioncontext.Alarm) []string) valueFunc {
	return func(c *actioncontext.Context) string { return strings.Join(fn(c.Alarm()), ",") }
}

// dimensionFields 单策略多维度汇总的字段，键为 field 或 field_channel
var dimensionFields = map[string]valueFunc{
	"level":                       omitted,
	"level_mail":                  alarmString((*actioncontext.Alarm).LevelName),
	"time":                        alarmString((*actioncontext.Alarm).LatestTime),
	"time_sms":                    omitted,
	"begin_time":                  alarmString((*actioncontext.Alarm).BeginTime),
	"begin_time_sms":              omitted,
	"duration":                    omitted,
	"duration_mail":               alarmString((*actioncontext.Alarm).DurationString),
	"target_type":                 omitted,
	"target_type_mail":            alarmString((*actioncontext.Alarm).TargetTypeName),
	"data_source":                 omitted,
	"data_source_mail":            alarmString((*actioncontext.Alarm).DataSourceName),
	"content":                     alarmString((*actioncontext.Alarm).Description),
	"current_value":               omitted,
	"current_value_mail":          alarmString((*actioncontext.Alarm).CurrentValueWithUnit),
	"biz":                         func(c *actioncontext.Context) string { return c.Business().DisplayName() },
	"target":                      alarmString((*actioncontext.Alarm).TargetString),
	"target_mail":                 alarmList((*actioncontext.Alarm).DisplayTargets),
	"target_markdown":             markdownTarget,
	"dimension":                   alarmString((*actioncontext.Alarm).DimensionString),
	"dimension_markdown":          markdownDimension,
	"detail":                      alarmString((*actioncontext.Alarm).DetailURL),
	"detail_sms":                  alarmString((*actioncontext.Alarm).ID),
	"detail_mail":                 omitted,
	"detail_markdown":             omitted,
	"assign_detail":               alarmString((*actioncontext.Alarm).AssignDetail),
	"related_info":                alarmString((*actioncontext.Alarm).RelatedInfo),
	"related_info_sms":            omitted,
	"related_info_markdown":       markdownRelatedInfo,
	"sms_forced_related_info":     alarmString((*actioncontext.Alarm).RelatedInfo),
	"sms_forced_related_info_sms": smsForcedRelatedInfo,
	"appointees":                  alarmList((*actioncontext.Alarm).Appointees),
	"assign_reason":               alarmString((*actioncontext.Alarm).AssignReason),
	"ack_operators":               alarmList((*actioncontext.Alarm).AckOperators),
	"ack_reason":                  alarmList((*actioncontext.Alarm).AckReasons),
	"ack_reason_markdown":         markdownAckReason,
	"anomaly_dimensions":          alarmString((*actioncontext.Alarm).AnomalyDimensions),
	"recommended_metrics":         alarmString((*actioncontext.Alarm).RecommendedMetrics),
	"receivers":                   receivers,
	"remarks":                     alarmString((*actioncontext.Alarm).Remarks),
}

// multiStrategyFields 多策略汇总时覆盖的字段，未覆盖的回落到 dimensionFields
var multiStrategyFields = map[string]valueFunc{
	"time_mail":               alarmString((*actioncontext.Alarm).SourceTimeRange),
	"begin_time_mail":         omitted,
	"content_sms":             multiStrategySMSContent,
	"content_mail":            omitted,
	"target":                  collapsedTarget,
	"target_mail":             omitted,
	"dimension":               collapsedDimension,
	"dimension_mail":          omitted,
	"detail_mail":             omitted,
	"detail_weixin":           omitted,
	"related_info":            omitted,
	"sms_forced_related_info": omitted,
}

// lookupField 依次查找 形态的 field_channel、field，再回落到维度汇总
func lookupField(shape Shape, field, channel string) (valueFunc, bool) {
	tables := []map[string]valueFunc{dimensionFields}
	if shape == ShapeMultiStrategy {
		tables = []map[string]valueFunc{multiStrategyFields, dimensionFields}
	}
	for _, t := range tables {
		if fn, ok := t[field+"_"+channel]; ok {
			return fn, true
		}
		if fn, ok := t[field]; ok {
			return fn, true
		}
	}
	return nil, false
}

// receivers 汇总通知人 > 通知接收人 > 告警负责人
func receivers(c *actioncontext.Context) string {
	if merged := c.MergedNoticeReceivers(); len(merged) > 0 {
		return strings.Join(merged, ",")
	}
	if r := c.NoticeReceiver(); r != "" {
		return r
	}
	return strings.Join(c.Alarm().Receivers(), ",")
}

func markdownDimension(c *actioncontext.Context) string {
	list := c.Alarm().DimensionStringList()
	if len(list) == 0 {
		return ""
	}
	var b strings.Builder
	for _, kv := range list {
		k, v, _ := strings.Cut(kv, ": ")
		b.WriteString("\n> **" + k + "**: " + v)
	}
	return b.String() + "\n"
}

var countSuffix = regexp.MustCompile(`\(\d+\)$`)

// markdownTarget 主机目标链接到主机详情页
func markdownTarget(c *actioncontext.Context) string {
	a := c.Alarm()
	alert := c.Alert()
	if alert == nil || a.TargetType() != model.TargetTypeHost {
		return a.TargetString()
	}
	cloud := "0"
	if d, ok := alert.DimensionValue("bk_target_cloud_id"); ok && d.Value != "" {
		cloud = d.Value
	}
	var links []string
	for _, t := range a.DisplayTargets() {
		ip := countSuffix.ReplaceAllString(t, "")
		link := a.RouteURL("#/performance/detail/" + ip + "-" + cloud)
		if link == "" {
			links = append(links, t)
			continue
		}
		links = append(links, "["+t+"]("+link+")")
	}
	return strings.Join(links, ", ")
}

func markdownRelatedInfo(c *actioncontext.Context) string {
	topo := c.Alarm().TopoRelatedInfo()
	log := c.Alarm().LogRelatedInfo()
	if log == "" {
		return topo
	}
	return topo + "\n> " + log + "\n"
}

func markdownAckReason(c *actioncontext.Context) string {
	reasons := c.Alarm().AckReasons()
	if len(reasons) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range reasons {
		b.WriteString("\n> " + r)
	}
	return b.String() + "\n"
}

func smsForcedRelatedInfo(c *actioncontext.Context) string {
	return dimension.Truncate(c.Alarm().RelatedInfo(), SMSRelatedInfoLimit)
}

func collapsedTarget(c *actioncontext.Context) string {
	return dimension.TargetString(c.Alarm().DisplayTargets(), true)
}

func collapsedDimension(c *actioncontext.Context) string {
	return dimension.String(c.Alarm().DimensionStringList(), true)
}

// multiStrategySMSContent [级别]策略 15:04告警,已持续X,描述
func multiStrategySMSContent(c *actioncontext.Context) string {
	a := c.Alarm()
	if end := a.EndDescription(); end != "" {
		return end
	}
	alert := c.Alert()
	if alert == nil {
		return ""
	}
	name := c.Strategy().Name
	if name == "" {
		name = a.Name()
	}
	at := time.Unix(alert.BeginTime, 0).In(c.Location()).Format("15:04")
	s := "[" + a.LevelName() + "]" + name + " " + at + "告警,"
	if d := a.DurationString(); d != "" {
		s += "已持续" + d + ","
	}
	return s + alert.Event.Description
}
