package model

import (
	"encoding/json"
	"strings"
	"time"
)

// QueryConfig 监控项的查询配置
type QueryConfig struct {
	ID                  int64           `json:"id"`
	Alias               string          `json:"alias"`
	DataSourceLabel     string          `json:"data_source_label"`
	DataTypeLabel       string          `json:"data_type_label"`
	MetricID            string          `json:"metric_id"`
	ResultTableID       string          `json:"result_table_id"`
	MetricField         string          `json:"metric_field"`
	AggMethod           string          `json:"agg_method,omitempty"`
	AggInterval         int             `json:"agg_interval,omitempty"`
	AggDimension        []string        `json:"agg_dimension"`
	AggCondition        json.RawMessage `json:"agg_condition,omitempty"`
	IndexSetID          int64           `json:"index_set_id,omitempty"`
	CustomEventName     string          `json:"custom_event_name,omitempty"`
	AlertName           string          `json:"alert_name,omitempty"`
	BkmonitorStrategyID string          `json:"bkmonitor_strategy_id,omitempty"`
	Unit                string          `json:"unit,omitempty"`
	PromQL              string          `json:"promql,omitempty"`
	IntelligentDetect   json.RawMessage `json:"intelligent_detect,omitempty"`
	// Name 指标展示名，查询时补充
	Name string `json:"name,omitempty"`
}

// Algorithm 检测算法
type Algorithm struct {
	ID         int64           `json:"id,omitempty"`
	Type       string          `json:"type"`
	Level      Severity        `json:"level"`
	Config     json.RawMessage `json:"config,omitempty"`
	UnitPrefix string          `json:"unit_prefix,omitempty"`
}

// Item 监控项
type Item struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Target       json.RawMessage `json:"target"`
	QueryConfigs []QueryConfig   `json:"query_configs"`
	Algorithms   []Algorithm     `json:"algorithms"`
	NoDataConfig json.RawMessage `json:"no_data_config,omitempty"`
}

// Interval 聚合周期（秒），默认 60
func (i *Item) Interval() int {
	for _, qc := range i.QueryConfigs {
		if qc.AggInterval > 0 {
			return qc.AggInterval
		}
	}
	return 60
}

// Detect 检测配置
type Detect struct {
	Level          Severity        `json:"level"`
	TriggerConfig  json.RawMessage `json:"trigger_config,omitempty"`
	RecoveryConfig json.RawMessage `json:"recovery_config,omitempty"`
	Connector      string          `json:"connector,omitempty"`
}

type UpgradeConfig struct {
	IsEnabled       bool    `json:"is_enabled"`
	UserGroups      []int64 `json:"user_groups"`
	UpgradeInterval int     `json:"upgrade_interval"`
}

type NoticeOptions struct {
	ChartImageEnabled *bool          `json:"chart_image_enabled,omitempty"`
	UpgradeConfig     *UpgradeConfig `json:"upgrade_config,omitempty"`
}

// Notice 策略通知配置
type Notice struct {
	ConfigID      int64          `json:"config_id"`
	UserGroups    []int64        `json:"user_groups"`
	Signal        []string       `json:"signal,omitempty"`
	Options       NoticeOptions  `json:"options"`
	UserGroupList []UserGroupRef `json:"user_group_list,omitempty"`
}

// ActionRelation 策略关联的处理套餐
type ActionRelation struct {
	ConfigID      int64          `json:"config_id"`
	UserGroups    []int64        `json:"user_groups"`
	Signal        []string       `json:"signal,omitempty"`
	UserGroupList []UserGroupRef `json:"user_group_list,omitempty"`
}

// Strategy 策略投影
type Strategy struct {
	ID                   int64            `json:"id"`
	Name                 string           `json:"name"`
	BkBizID              int64            `json:"bk_biz_id"`
	Source               string           `json:"source"`
	Scenario             string           `json:"scenario"`
	Type                 string           `json:"type"`
	IsEnabled            bool             `json:"is_enabled"`
	IsInvalid            bool             `json:"is_invalid"`
	InvalidType          string           `json:"invalid_type"`
	App                  string           `json:"app"`
	Priority             *int             `json:"priority"`
	Labels               []string         `json:"labels"`
	Items                []Item           `json:"items"`
	Detects              []Detect         `json:"detects"`
	Notice               *Notice          `json:"notice,omitempty"`
	Actions              []ActionRelation `json:"actions"`
	CreateUser           string           `json:"create_user"`
	CreateTime           time.Time        `json:"create_time"`
	UpdateUser           string           `json:"update_user"`
	UpdateTime           time.Time        `json:"update_time"`
	CreatedAfterEditTime bool             `json:"created_after_edit_time"`
}

// FirstQueryConfig 第一个监控项的第一个查询配置
func (s *Strategy) FirstQueryConfig() *QueryConfig {
	if s == nil || len(s.Items) == 0 || len(s.Items[0].QueryConfigs) == 0 {
		return nil
	}
	return &s.Items[0].QueryConfigs[0]
}

// ChartImageEnabled 通知选项未显式关闭即视为开启
func (s *Strategy) ChartImageEnabled() bool {
	if s.Notice == nil || s.Notice.Options.ChartImageEnabled == nil {
		return true
	}
	return *s.Notice.Options.ChartImageEnabled
}

// UserGroup 通知组
type UserGroup struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	BkBizID        int64    `json:"bk_biz_id"`
	NoticeReceiver []string `json:"notice_receiver,omitempty"`
	Followers      []string `json:"followers,omitempty"`
}

// UserGroupRef 策略详情里的通知组摘要，Users 只在需要成员时填充
type UserGroupRef struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Users     []string `json:"users,omitempty"`
	Followers []string `json:"followers,omitempty"`
}

// ActionConfig 处理套餐
type ActionConfig struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	BkBizID  int64  `json:"bk_biz_id"`
	PluginID int64  `json:"plugin_id"`
}

// Shield 策略屏蔽
type Shield struct {
	ID          int64
	BkBizID     int64
	StrategyIDs []int64
	Levels      []int
	BeginTime   time.Time
	EndTime     time.Time
}

// Covers 屏蔽是否覆盖策略
func (s *Shield) Covers(strategyID int64, now time.Time) bool {
	if now.Before(s.BeginTime) || now.After(s.EndTime) {
		return false
	}
	for _, id := range s.StrategyIDs {
		if id == strategyID {
			return true
		}
	}
	return false
}

// 经验类型
const (
	ExperienceMetric    = "metric"
	ExperienceDimension = "dimension"
)

// Experience 处理经验
type Experience struct {
	ID          int64
	BkBizID     int64
	Type        string
	AlertName   string
	Metrics     []string
	Conditions  []ExperienceCondition
	Description string
	UpdateTime  time.Time
}

// ExperienceCondition 经验匹配条件，Condition 为与前一条件的连接符 and/or
type ExperienceCondition struct {
	Key       string   `json:"key"`
	Method    string   `json:"method"`
	Value     []string `json:"value"`
	Condition string   `json:"condition,omitempty"`
}

// LabelName 去掉两端 / 的标签名
func LabelName(label string) string { return strings.Trim(label, "/") }
