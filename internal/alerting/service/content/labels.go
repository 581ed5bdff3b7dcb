package content

import "github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"

// labels 行标题，键为 field 或 field_channel
var labels = map[string]map[string]string{
	model.LangZH: {
		"level":                   "告警级别",
		"time":                    "最近异常",
		"begin_time":              "首次异常",
		"duration":                "持续时间",
		"target_type":             "告警对象",
		"data_source":             "数据来源",
		"content":                 "内容",
		"current_value":           "当前值",
		"biz":                     "告警业务",
		"target":                  "告警目标",
		"dimension":               "维度",
		"detail":                  "详情",
		"detail_sms":              "告警ID",
		"related_info":            "关联信息",
		"sms_forced_related_info": "关联信息",
		"appointees":              "负责人",
		"assign_reason":           "分派原因",
		"ack_operators":           "确认人",
		"ack_reason":              "确认原因",
		"assign_detail":           "分派详情",
		"anomaly_dimensions":      "维度下钻",
		"recommended_metrics":     "关联指标",
		"receivers":               "通知人",
		"remarks":                 "处理经验",
	},
	model.LangEN: {
		"level":                   "Level",
		"time":                    "Latest anomaly",
		"begin_time":              "First anomaly",
		"duration":                "Duration",
		"target_type":             "Target type",
		"data_source":             "Data source",
		"content":                 "Content",
		"current_value":           "Current value",
		"biz":                     "Business",
		"target":                  "Target",
		"dimension":               "Dimension",
		"detail":                  "Detail",
		"detail_sms":              "Alert ID",
		"related_info":            "Related info",
		"sms_forced_related_info": "Related info",
		"appointees":              "Appointees",
		"assign_reason":           "Assign reason",
		"ack_operators":           "Acknowledged by",
		"ack_reason":              "Ack reason",
		"assign_detail":           "Assign detail",
		"anomaly_dimensions":      "Dimension drill-down",
		"recommended_metrics":     "Related metrics",
		"receivers":               "Receivers",
		"remarks":                 "Experience",
	},
}

// multiLabels 多策略汇总时覆盖的标题
var multiLabels = map[string]map[string]string{
	model.LangZH: {
		"time_mail":       "时间范围",
		"content_sms":     "代表",
		"detail_markdown": "",
	},
	model.LangEN: {
		"time_mail":       "Time range",
		"content_sms":     "Representative",
		"detail_markdown": "",
	},
}

// Label 依次查找 field_channel 和 field，语言缺省为中文
func Label(lang string, shape Shape, field, channel string) string {
	if _, ok := labels[lang]; !ok {
		lang = model.LangZH
	}
	tables := []map[string]string{labels[lang]}
	if shape == ShapeMultiStrategy {
		tables = append([]map[string]string{multiLabels[lang]}, tables...)
	}
	for _, key := range []string{field + "_" + channel, field} {
		for _, t := range tables {
			if l, ok := t[key]; ok {
				return l
			}
		}
	}
	return field
}
