package model

import (
	"fmt"
	"strconv"
)

// MetricID 按数据来源生成指标 id
func MetricID(qc *QueryConfig) string {
	ds, dt := qc.DataSourceLabel, qc.DataTypeLabel
	switch ds {
	case DataSourceMonitor:
		switch dt {
		case DataTypeEvent:
			return fmt.Sprintf("%s.%s", ds, qc.MetricField)
		case DataTypeLog:
			return fmt.Sprintf("%s.%s.%s", ds, dt, qc.ResultTableID)
		case DataTypeAlert:
			return fmt.Sprintf("%s.%s.%s", ds, dt, firstNonEmpty(qc.BkmonitorStrategyID, qc.MetricField))
		}
	case DataSourcePrometheus:
		if len(qc.PromQL) > 128 {
			return qc.PromQL[:125] + "..."
		}
		return qc.PromQL
	case DataSourceCustom:
		if dt == DataTypeEvent {
			return fmt.Sprintf("%s.%s.%s.%s", ds, dt, qc.ResultTableID, firstNonEmpty(qc.CustomEventName, "__INDEX__"))
		}
	case DataSourceLogSearch:
		if dt == DataTypeLog {
			return fmt.Sprintf("%s.index_set.%d", ds, qc.IndexSetID)
		}
		return fmt.Sprintf("%s.index_set.%d.%s", ds, qc.IndexSetID, qc.MetricField)
	case DataSourceFTA:
		return fmt.Sprintf("%s.%s.%s", ds, dt, firstNonEmpty(qc.AlertName, qc.MetricField))
	}
	return fmt.Sprintf("%s.%s.%s", ds, qc.ResultTableID, qc.MetricField)
}

// MetricTuple 指标缓存的查询键
type MetricTuple struct {
	DataSourceLabel string
	DataTypeLabel   string
	// Table 日志平台为 index_set_id，对应缓存的 related_id，其余为 result_table_id
	Table       string
	MetricField string
}

// ByRelatedID 日志平台按 related_id 匹配
func (t MetricTuple) ByRelatedID() bool { return t.DataSourceLabel == DataSourceLogSearch }

// MetricTupleOf 查询配置对应的缓存键，PromQL 与仪表盘来源不查缓存
func MetricTupleOf(qc *QueryConfig) (MetricTuple, bool) {
	t := MetricTuple{DataSourceLabel: qc.DataSourceLabel, DataTypeLabel: qc.DataTypeLabel}
	switch {
	case qc.DataSourceLabel == DataSourceLogSearch:
		t.Table = strconv.FormatInt(qc.IndexSetID, 10)
		t.MetricField = firstNonEmpty(qc.MetricField, "_index")
	case qc.DataSourceLabel == DataSourceCustom && qc.DataTypeLabel == DataTypeEvent:
		t.Table = qc.ResultTableID
		t.MetricField = firstNonEmpty(qc.CustomEventName, "__INDEX__")
	case qc.DataSourceLabel == DataSourceFTA:
		t.Table = qc.DataTypeLabel
		t.MetricField = qc.AlertName
	case qc.DataSourceLabel == DataSourceMonitor && qc.DataTypeLabel == DataTypeAlert:
		t.Table = "strategy"
		t.MetricField = qc.BkmonitorStrategyID
	case qc.DataSourceLabel == DataSourcePrometheus || qc.DataSourceLabel == DataSourceDashboard:
		return t, false
	default:
		t.Table = qc.ResultTableID
		t.MetricField = firstNonEmpty(qc.MetricField, "_index")
	}
	return t, true
}

// MetricCacheEntry 指标缓存中的一条记录
type MetricCacheEntry struct {
	DataSourceLabel string
	DataTypeLabel   string
	ResultTableID   string
	RelatedID       string
	MetricField     string
	MetricFieldName string
}

// QueryConfig 还原出可用于生成 metric id 的查询配置
func (e *MetricCacheEntry) QueryConfig() *QueryConfig {
	qc := &QueryConfig{
		DataSourceLabel: e.DataSourceLabel,
		DataTypeLabel:   e.DataTypeLabel,
		ResultTableID:   e.ResultTableID,
		MetricField:     e.MetricField,
	}
	switch {
	case e.DataSourceLabel == DataSourceLogSearch:
		qc.IndexSetID, _ = strconv.ParseInt(e.RelatedID, 10, 64)
	case e.DataSourceLabel == DataSourceCustom && e.DataTypeLabel == DataTypeEvent:
		qc.CustomEventName = e.MetricField
	case e.DataSourceLabel == DataSourceFTA:
		qc.AlertName = e.MetricField
	case e.DataSourceLabel == DataSourceMonitor && e.DataTypeLabel == DataTypeAlert:
		qc.BkmonitorStrategyID = e.MetricField
	}
	return qc
}

// DisplayName 指标名未命中缓存时的兜底
func (qc *QueryConfig) DisplayName() string {
	return firstNonEmpty(qc.MetricField, qc.CustomEventName, qc.BkmonitorStrategyID, qc.AlertName, qc.ResultTableID)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
