// Package filter turns strategy query conditions into a strategy id set.
package filter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
)

// RawCondition 请求中的 {key, value}，value 可以是标量或列表
type RawCondition struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Condition 归一化后的过滤条件
type Condition interface {
	condition()
}

// EqIn 等值匹配，多值为 IN
type EqIn struct {
	Field  string
	Values []string
}

// NotIn 取反的等值匹配，仅 source 使用
type NotIn struct {
	Field  string
	Values []string
}

// SubstringAny 子串匹配，多值为 OR。name 不区分大小写
type SubstringAny struct {
	Field  string
	Values []string
}

// Startswith 前缀匹配，多值为 OR
type Startswith struct {
	Field    string
	Prefixes []string
}

// IPCover 监控范围覆盖这些主机的策略
type IPCover struct {
	IPs      []string
	CloudIDs []int64
}

// StatusIn 策略状态 ALERT/SHIELDED/ON/OFF/INVALID
type StatusIn struct {
	Statuses []string
}

func (EqIn) condition()         {}
func (NotIn) condition()        {}
func (SubstringAny) condition() {}
func (Startswith) condition()   {}
func (IPCover) condition()      {}
func (StatusIn) condition()     {}

// Nothing 收敛为空集合
func Nothing() Condition { return EqIn{Field: "id", Values: []string{"0"}} }

// fieldAliases 入参 key 到内部字段的映射
var fieldAliases = map[string]string{
	"strategy_id":      "id",
	"strategy_name":    "name",
	"task_id":          "uptime_check_task_id",
	"metric_alias":     "metric_field_name",
	"metric_name":      "metric_field",
	"creators":         "create_user",
	"updaters":         "update_user",
	"data_source_list": "data_source",
	"label_name":       "label",
}

// Parsed 条件解析结果。Deferred 中的字段需要查库改写后才能成为 Core 条件
type Parsed struct {
	Core     []Condition
	Deferred map[string][]string
	IP       *IPCover
	Status   *StatusIn
}

// deferredFields 需要外部解析的值改写
var deferredFields = map[string]bool{
	"metric_field_name":     true,
	"custom_event_group_id": true,
	"bk_event_group_id":     true,
	"time_series_group_id":  true,
}

// Parse 同 key 合并取值；带 __ 后缀的 key 只有 source 生效，其余忽略
func Parse(raw []RawCondition) Parsed {
	var (
		order   []string
		grouped = make(map[string][]string)
		source  Condition
		hasSrc  bool
	)
	for _, c := range raw {
		key := strings.ToLower(strings.TrimSpace(c.Key))
		if key == "" {
			continue
		}
		values := NormalizeValue(c.Value)

		if strings.HasPrefix(key, "source") {
			if hasSrc {
				continue
			}
			hasSrc = true
			source = sourceCondition(key, values)
			continue
		}
		if strings.Contains(key, "__") {
			continue
		}
		if mapped, ok := fieldAliases[key]; ok {
			key = mapped
		}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], values...)
	}

	p := Parsed{Deferred: make(map[string][]string)}
	var ips, clouds, statuses []string
	for _, key := range order {
		values := grouped[key]
		switch {
		case key == "ip":
			ips = append(ips, values...)
		case key == "bk_cloud_id":
			clouds = append(clouds, values...)
		case key == "strategy_status":
			statuses = append(statuses, values...)
		case deferredFields[key]:
			if len(values) > 0 {
				p.Deferred[key] = append(p.Deferred[key], values...)
			}
		case len(values) == 0:
		case key == "plugin_id":
			prefixes := make([]string, 0, len(values))
			for _, v := range values {
				prefixes = append(prefixes, v+".")
			}
			p.Core = append(p.Core, Startswith{Field: "result_table_id", Prefixes: prefixes})
		case key == "data_source":
			p.Core = append(p.Core, EqIn{Field: "data_source", Values: DataSourcePairs(values)})
		case key == "name", key == "user_group_name", key == "action_name":
			p.Core = append(p.Core, SubstringAny{Field: key, Values: values})
		default:
			p.Core = append(p.Core, EqIn{Field: key, Values: values})
		}
	}
	if source != nil {
		p.Core = append(p.Core, source)
	}

	if len(ips) > 0 {
		cover := &IPCover{IPs: ips}
		for _, v := range clouds {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				cover.CloudIDs = append(cover.CloudIDs, id)
			}
		}
		p.IP = cover
	}
	if len(statuses) > 0 {
		st := &StatusIn{}
		for _, s := range statuses {
			st.Statuses = append(st.Statuses, strings.ToUpper(s))
		}
		p.Status = st
	}
	return p
}

// DataSourcePairs 统一为 <data_source_label>|<data_type_label>。
// 支持 ds|dt、ds,dt、DATA_CATEGORY 的 type 标签，最后按最后一个 _ 拆分
func DataSourcePairs(values []string) []string {
	out := make([]string, 0, len(values))
	for _, s := range values {
		if strings.ContainsAny(s, "|,") {
			out = append(out, s)
			continue
		}
		if c, ok := model.LookupDataCategoryByType(s); ok {
			out = append(out, c.DataSourceLabel+"|"+c.DataTypeLabel)
			continue
		}
		if i := strings.LastIndex(s, "_"); i > 0 && i < len(s)-1 {
			out = append(out, s[:i]+"|"+s[i+1:])
			continue
		}
		out = append(out, s)
	}
	return out
}

func sourceCondition(key string, values []string) Condition {
	_, suffix, found := strings.Cut(key, "__")
	switch {
	case !found, suffix == "in":
		return EqIn{Field: "source", Values: values}
	case suffix == "neq":
		return NotIn{Field: "source", Values: values}
	default:
		return Nothing()
	}
}

// NormalizeValue 非列表包装为列表；单元素按 " | " 拆分；去空白并丢弃空值
func NormalizeValue(v any) []string {
	var values []string
	switch vv := v.(type) {
	case []any:
		for _, e := range vv {
			values = append(values, scalar(e))
		}
	case []string:
		values = append(values, vv...)
	default:
		values = []string{scalar(v)}
	}
	if len(values) == 1 {
		values = strings.Split(values[0], " | ")
	}
	out := make([]string, 0, len(values))
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func scalar(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case json.Number:
		return vv.String()
	case bool:
		return strconv.FormatBool(vv)
	default:
		return fmt.Sprint(vv)
	}
}
