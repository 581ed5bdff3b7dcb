package actioncontext

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/chart"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/dimension"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// NoticeFrom 通知来源
const NoticeFrom = "蓝鲸监控"

// 短信中关联信息的长度上限
const smsRelatedInfoLimit = 300

// Alarm 面向通知的告警派生字段
type Alarm struct {
	c *Context

	entries     lazy[[]dimension.Entry]
	targets     lazy[[]string]
	chartImage  lazy[[]byte]
	anomalyDims lazy[string]
	recommended lazy[string]
	remarks     lazy[string]
	ackReasons  lazy[[]string]
	callback    lazy[*CallbackMessage]
	alertInfo   lazy[string]
}

func (a *Alarm) alert() *model.AlertDocument { return a.c.Alert() }

func (a *Alarm) isSMS() bool { return a.c.NoticeWay() == model.NoticeWaySMS }

func (a *Alarm) ID() string {
	if alert := a.alert(); alert != nil {
		return alert.ID
	}
	return ""
}

// Name 告警名，缺失时取策略名
func (a *Alarm) Name() string {
	if name := a.c.AlertName(); name != "" {
		return name
	}
	return a.c.Strategy().Name
}

func (a *Alarm) Level() model.Severity { return a.c.AlertLevel() }

func (a *Alarm) LevelName() string { return a.c.LevelName() }

func (a *Alarm) IsNoData() bool {
	alert := a.alert()
	return alert != nil && alert.IsNoData()
}

func (a *Alarm) DisplayType() string {
	if a.IsNoData() {
		return "发生无数据告警"
	}
	return "发生告警"
}

// DisplayDimensions 按 agg_dimensions 排序后的可展示维度
func (a *Alarm) DisplayDimensions() []dimension.Entry {
	return a.entries.get(func() []dimension.Entry {
		alert := a.alert()
		if alert == nil {
			return nil
		}
		return dimension.Ordered(alert.Dimensions, alert.AggDimensions)
	})
}

func (a *Alarm) DimensionStringList() []string {
	return a.c.formatter.StringList(a.DisplayDimensions(), a.c.NoticeWay())
}

func (a *Alarm) DimensionString() string {
	return dimension.String(a.DimensionStringList(), a.c.opts.Limit)
}

func (a *Alarm) DisplayTargets() []string {
	return a.targets.get(func() []string { return dimension.DisplayTargets(a.c.Alerts()) })
}

func (a *Alarm) TargetString() string {
	return dimension.TargetString(a.DisplayTargets(), a.c.opts.Limit)
}

func (a *Alarm) TargetType() string {
	if alert := a.alert(); alert != nil {
		return alert.Event.TargetType
	}
	return ""
}

func (a *Alarm) TargetTypeName() string { return model.TargetTypeName(a.TargetType()) }

// CollectCount 本次通知汇总的告警数
func (a *Alarm) CollectCount() int { return len(a.c.Alerts()) }

// Time 告警产生时间
func (a *Alarm) Time() string {
	alert := a.alert()
	if alert == nil {
		return "--"
	}
	return a.c.formatTime(alert.CreateTime)
}

func (a *Alarm) BeginTime() string {
	alert := a.alert()
	if alert == nil {
		return "--"
	}
	return a.c.formatTime(alert.BeginTime)
}

func (a *Alarm) BeginTimestamp() int64 {
	if alert := a.alert(); alert != nil {
		return alert.BeginTime
	}
	return 0
}

// LatestTime 最近异常时间
func (a *Alarm) LatestTime() string {
	alert := a.alert()
	if alert == nil {
		return "--"
	}
	return a.c.formatTime(alert.LatestTime)
}

// Duration 秒，缺失时视为一个周期
func (a *Alarm) Duration() int64 {
	if alert := a.alert(); alert != nil && alert.Duration > 0 {
		return alert.Duration
	}
	return 60
}

// DurationString 首次异常即最近异常时为空
func (a *Alarm) DurationString() string {
	alert := a.alert()
	if alert == nil || alert.LatestTime == alert.FirstAnomalyTime {
		return ""
	}
	return dimension.HMS(a.Duration())
}

// CurrentValue 无数据告警为空；已恢复的告警取恢复值
func (a *Alarm) CurrentValue() string {
	alert := a.alert()
	if alert == nil || alert.IsNoData() {
		return ""
	}
	if alert.Status == model.AlertRecovered {
		if v := model.ScalarString(alert.RecoveryValue()); v != "" {
			return v
		}
	}
	return model.ScalarString(alert.CurrentValue())
}

func (a *Alarm) Unit() string {
	if qc := a.c.Strategy().FirstQueryConfig(); qc != nil {
		return qc.Unit
	}
	return ""
}

func (a *Alarm) CurrentValueWithUnit() string {
	v := a.CurrentValue()
	if v == "" {
		return ""
	}
	return v + a.Unit()
}

func (a *Alarm) NoticeFrom() string { return NoticeFrom }

// DataSourceName 第一个查询配置的数据来源分类名
func (a *Alarm) DataSourceName() string {
	s := a.c.Strategy()
	qc := s.FirstQueryConfig()
	if s.ID == 0 || qc == nil {
		return "--"
	}
	if cat, ok := model.LookupDataCategory(qc.DataSourceLabel, qc.DataTypeLabel); ok {
		return cat.Name
	}
	return qc.DataSourceLabel + "_" + qc.DataTypeLabel
}

func (a *Alarm) fillURL(tmpl, collectID string) string {
	var bizID int64
	if alert := a.alert(); alert != nil {
		bizID = alert.BkBizID()
	}
	if bizID == 0 {
		bizID = a.c.Business().BkBizID
	}
	return strings.NewReplacer(
		"{bk_biz_id}", strconv.FormatInt(bizID, 10),
		"{action_id}", collectID,
		"{collect_id}", collectID,
	).Replace(tmpl)
}

// DetailURL 告警详情，短信和外部渠道不带链接
func (a *Alarm) DetailURL() string {
	if a.isSMS() || a.c.IsExternalChannel() {
		return ""
	}
	cfg := a.c.deps.Notice
	tmpl := cfg.EventCenterURL
	if slices.Contains(cfg.MobileNoticeWays, a.c.NoticeWay()) && cfg.MobileURL != "" {
		tmpl = cfg.MobileURL
	}
	return a.fillURL(tmpl, a.c.CollectID())
}

// ExampleDetailURL 代表动作的详情
func (a *Alarm) ExampleDetailURL() string {
	if a.isSMS() || a.c.IsExternalChannel() {
		return ""
	}
	ex := a.c.ExampleAction()
	if ex == nil {
		return ""
	}
	return a.fillURL(a.c.deps.Notice.EventCenterURL, ex.EsActionID())
}

func (a *Alarm) operateAllowed() bool {
	return !a.c.IsExternalChannel() && !a.c.Followed()
}

func (a *Alarm) QuickAckURL() string {
	detail := a.DetailURL()
	if detail == "" || !a.operateAllowed() {
		return ""
	}
	return detail + "&batchAction=ack"
}

// QuickShieldURL 汇总多条告警时不提供快捷屏蔽
func (a *Alarm) QuickShieldURL() string {
	detail := a.DetailURL()
	if detail == "" || !a.operateAllowed() || a.CollectCount() > 1 {
		return ""
	}
	return detail + "&batchAction=shield"
}

func (a *Alarm) StrategyURL() string {
	if a.isSMS() || a.c.IsExternalChannel() {
		return ""
	}
	id := a.c.Strategy().ID
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("%s?bizId=%d#/strategy-config/detail/%d", a.c.deps.Notice.MonitorHost, a.c.Business().BkBizID, id)
}

// RouteURL 监控前端的路由跳转链接
func (a *Alarm) RouteURL(routePath string) string {
	base, err := url.Parse(a.c.deps.Notice.MonitorHost)
	if err != nil {
		return ""
	}
	ref := fmt.Sprintf("route/?bizId=%d&route_path=%s", a.c.Business().BkBizID,
		base64.StdEncoding.EncodeToString([]byte(routePath)))
	rel, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(rel).String()
}

// AssignDetail 命中的分派组详情
func (a *Alarm) AssignDetail() string {
	alert := a.alert()
	if alert == nil || a.isSMS() {
		return ""
	}
	groupID := alert.MatchedGroupID()
	if groupID == 0 {
		return ""
	}
	return a.RouteURL(fmt.Sprintf("#/alarm-dispatch?group_id=%d", groupID))
}

func (a *Alarm) AssignReason() string {
	if alert := a.alert(); alert != nil {
		return alert.AssignReason()
	}
	return ""
}

// TopoRelatedInfo 集群(x) 模块(y) 环境类型(z)
func (a *Alarm) TopoRelatedInfo() string {
	if a.c.Target().Host() == nil {
		return ""
	}
	s := fmt.Sprintf("集群(%s) 模块(%s)", a.c.Target().SetString(), a.c.Target().ModuleString())
	if env := a.c.Target().EnvString(); env != "" {
		s += fmt.Sprintf(" 环境类型(%s)", env)
	}
	return s
}

// LogRelatedInfo 日志、事件等外部关联信息
func (a *Alarm) LogRelatedInfo() string {
	alert := a.alert()
	if alert == nil {
		return ""
	}
	info := alert.RelationInfo()
	if a.isSMS() {
		info = dimension.Truncate(info, smsRelatedInfoLimit)
	}
	return info
}

func (a *Alarm) RelatedInfo() string {
	if s := a.TopoRelatedInfo() + a.LogRelatedInfo(); s != "" {
		return s
	}
	return "--"
}

// EndDescription 告警仍异常时为空
func (a *Alarm) EndDescription() string {
	alert := a.alert()
	if alert == nil || alert.Status == model.AlertAbnormal {
		return ""
	}
	if d := alert.EndDescription(); d != "" {
		return d
	}
	return "当前告警" + alert.Status.Name()
}

func (a *Alarm) Description() string {
	if end := a.EndDescription(); end != "" {
		return end
	}
	prefix := "新告警"
	if d := a.DurationString(); d != "" {
		prefix = "已持续" + d
	}
	var desc string
	if alert := a.alert(); alert != nil {
		desc = alert.Event.Description
	}
	return prefix + ", " + desc
}

func (a *Alarm) Receivers() []string {
	if alert := a.alert(); alert != nil {
		return alert.Assignee
	}
	return nil
}

func (a *Alarm) Appointees() []string {
	if alert := a.alert(); alert != nil {
		return alert.Appointee
	}
	return nil
}

// AckOperators 全部告警的确认人
func (a *Alarm) AckOperators() []string {
	var out []string
	for _, alert := range a.c.Alerts() {
		if alert.AckOperator != "" {
			out = append(out, alert.AckOperator)
		}
	}
	return out
}

// AckOperator 多个确认人时显示为 "X等"
func (a *Alarm) AckOperator() string {
	alert := a.alert()
	if alert == nil {
		return ""
	}
	if len(a.AckOperators()) == 1 {
		return alert.AckOperator
	}
	return alert.AckOperator + "等"
}

// AckReasons 确认流水中的说明
func (a *Alarm) AckReasons() []string {
	return a.ackReasons.get(func() []string {
		alerts := a.c.Alerts()
		if len(alerts) == 0 {
			return nil
		}
		ids := make([]string, 0, len(alerts))
		for _, alert := range alerts {
			ids = append(ids, alert.ID)
		}
		reasons, err := a.c.deps.Alerts.AckReasons(a.c.ctx, ids)
		if err != nil {
			a.c.fieldFailed("ack_reason", err)
			return nil
		}
		return reasons
	})
}

func (a *Alarm) AckTitle() string {
	n := a.CollectCount()
	if n == 0 {
		return ""
	}
	if n == 1 {
		return fmt.Sprintf("%s已确认告警【%s】", a.AckOperator(), a.c.AlertName())
	}
	return fmt.Sprintf("%s已确认【%s】等%d个告警", a.AckOperator(), a.c.AlertName(), n)
}

func (a *Alarm) ChartImageEnabled() bool { return a.c.Strategy().ChartImageEnabled() }

func (a *Alarm) chartTitle() string {
	s := a.c.Strategy()
	if a.c.NoticeWay() == model.NoticeWayWxworkBot && a.c.action != nil {
		return fmt.Sprintf("%s - %d", s.Name, a.c.action.ID)
	}
	if len(s.Items) > 0 {
		return s.Items[0].Name
	}
	return "--"
}

// ChartImage 告警曲线 PNG，不满足出图条件或失败时为 nil
func (a *Alarm) ChartImage() []byte {
	return a.chartImage.get(func() []byte {
		if a.c.deps.Charts == nil {
			return nil
		}
		img, err := a.c.deps.Charts.Image(a.c.ctx, chart.Input{
			Strategy:     a.c.Strategy(),
			Alert:        a.alert(),
			ConvergeType: a.c.ConvergeType(),
			Title:        a.chartTitle(),
		})
		if err != nil {
			a.c.fieldFailed("chart_image", err)
			return nil
		}
		return img
	})
}

func (a *Alarm) ChartName() string {
	if len(a.ChartImage()) == 0 {
		return ""
	}
	var id int64
	if a.c.action != nil {
		id = a.c.action.ID
	}
	return chart.Filename(id)
}

func (a *Alarm) Attachments() []chart.Attachment {
	img := a.ChartImage()
	if len(img) == 0 {
		return []chart.Attachment{}
	}
	name := a.ChartName()
	return []chart.Attachment{{Filename: name, ContentID: name, Content: img}}
}

func (a *Alarm) aiops(field string, call func(bizID int64, alertID string) (int64, int64, error), format string) string {
	alert := a.alert()
	if alert == nil || a.c.deps.AIOps == nil {
		return ""
	}
	n, m, err := call(alert.BkBizID(), alert.ID)
	if errors.Is(err, model.ErrAIOpsNotEnabled) {
		log.Debug().Int64("bk_biz_id", alert.BkBizID()).Str("field", field).Msg("aiops not enabled")
		return ""
	}
	if err != nil {
		a.c.fieldFailed(field, err)
		return ""
	}
	if n == 0 && m == 0 {
		return ""
	}
	return fmt.Sprintf(format, n, m)
}

// AnomalyDimensions 维度下钻结果
func (a *Alarm) AnomalyDimensions() string {
	return a.anomalyDims.get(func() string {
		return a.aiops("anomaly_dimensions", func(bizID int64, alertID string) (int64, int64, error) {
			return a.c.deps.AIOps.AnomalyDimensions(a.c.ctx, bizID, alertID)
		}, "异常维度 %d，异常维度值 %d")
	})
}

// RecommendedMetrics 关联指标推荐结果
func (a *Alarm) RecommendedMetrics() string {
	return a.recommended.get(func() string {
		return a.aiops("recommended_metrics", func(bizID int64, alertID string) (int64, int64, error) {
			return a.c.deps.AIOps.RecommendedMetrics(a.c.ctx, bizID, alertID)
		}, "%d 个指标,%d 个维度")
	})
}

// Remarks 命中的处理经验
func (a *Alarm) Remarks() string {
	return a.remarks.get(func() string {
		alert := a.alert()
		if alert == nil || a.c.deps.Experiences == nil {
			return ""
		}
		exps, err := a.c.deps.Experiences.ListExperiences(a.c.ctx, alert.BkBizID())
		if err != nil {
			a.c.fieldFailed("remarks", err)
			return ""
		}
		return MergeRemarks(MatchExperiences(exps, alert))
	})
}

// CallbackMessage 回调消息，字段顺序固定
type CallbackMessage struct {
	Type                string           `json:"type"`
	Scenario            string           `json:"scenario"`
	BkBizID             int64            `json:"bk_biz_id"`
	BkBizName           string           `json:"bk_biz_name"`
	Event               CallbackEvent    `json:"event"`
	Strategy            CallbackStrategy `json:"strategy"`
	LatestAnomalyRecord CallbackAnomaly  `json:"latest_anomaly_record"`
	CurrentValue        string           `json:"current_value"`
	Description         string           `json:"description"`
	RelatedInfo         string           `json:"related_info"`
	Labels              []string         `json:"labels"`
}

type CallbackEvent struct {
	ID                   string          `json:"id"`
	EventID              string          `json:"event_id"`
	IsShielded           bool            `json:"is_shielded"`
	BeginTime            string          `json:"begin_time"`
	CreateTime           string          `json:"create_time"`
	EndTime              *string         `json:"end_time"`
	Level                model.Severity  `json:"level"`
	LevelName            string          `json:"level_name"`
	AggDimensions        []string        `json:"agg_dimensions"`
	Dimensions           json.RawMessage `json:"dimensions"`
	DimensionTranslation json.RawMessage `json:"dimension_translation"`
}

type CallbackStrategy struct {
	ID       *int64         `json:"id"`
	Name     string         `json:"name"`
	Scenario *string        `json:"scenario"`
	ItemList []CallbackItem `json:"item_list"`
}

type CallbackItem struct {
	MetricField     string `json:"metric_field"`
	MetricFieldName string `json:"metric_field_name"`
	DataSourceLabel string `json:"data_source_label"`
	DataSourceName  string `json:"data_source_name"`
	DataTypeLabel   string `json:"data_type_label"`
	DataTypeName    string `json:"data_type_name"`
	MetricID        string `json:"metric_id"`
}

type CallbackAnomaly struct {
	AnomalyID   string          `json:"anomaly_id"`
	SourceTime  string          `json:"source_time"`
	CreateTime  string          `json:"create_time"`
	OriginAlarm json.RawMessage `json:"origin_alarm"`
}

func utcString(ts int64) string { return time.Unix(ts, 0).UTC().Format(time.DateTime) }

func rawOrNull(r gjson.Result) json.RawMessage {
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}

// CallbackMessage 无告警时为 nil
func (a *Alarm) CallbackMessage() *CallbackMessage {
	return a.callback.get(func() *CallbackMessage {
		alert := a.alert()
		if alert == nil {
			return nil
		}
		s := a.c.Strategy()

		signal, plugin := model.SignalManual, model.PluginType("")
		if a.c.action != nil {
			signal, plugin = a.c.action.Signal, a.c.action.ActionPlugin.PluginType
		}
		typ := model.CallbackType(signal, plugin)
		if typ == "" {
			typ = string(model.SignalManual)
		}

		items := make([]CallbackItem, 0)
		var aggDims []string
		for _, item := range s.Items {
			for _, qc := range item.QueryConfigs {
				metricID := qc.MetricID
				if metricID == "" {
					metricID = model.MetricID(&qc)
				}
				parts := strings.Split(metricID, ".")
				items = append(items, CallbackItem{
					MetricField:     parts[len(parts)-1],
					MetricFieldName: item.Name,
					DataSourceLabel: qc.DataSourceLabel,
					DataSourceName:  model.DataSourceName(qc.DataSourceLabel),
					DataTypeLabel:   qc.DataTypeLabel,
					DataTypeName:    model.DataTypeName(qc.DataTypeLabel),
					MetricID:        metricID,
				})
				if len(qc.AggDimension) > len(aggDims) {
					aggDims = qc.AggDimension
				}
			}
		}
		if len(alert.AggDimensions) > 0 {
			aggDims = alert.AggDimensions
		}
		if aggDims == nil {
			aggDims = []string{}
		}

		origin := alert.Event.OriginAlarm()
		msg := &CallbackMessage{
			Type:      typ,
			Scenario:  s.Scenario,
			BkBizID:   alert.BkBizID(),
			BkBizName: a.c.Business().BkBizName,
			Event: CallbackEvent{
				ID:                   alert.ID,
				EventID:              alert.ID,
				IsShielded:           alert.Shielded(),
				BeginTime:            utcString(alert.BeginTime),
				CreateTime:           utcString(alert.CreateTime),
				Level:                alert.Severity,
				LevelName:            a.c.LevelName(),
				AggDimensions:        aggDims,
				Dimensions:           rawOrNull(origin.Get("data.dimensions")),
				DimensionTranslation: rawOrNull(origin.Get("dimension_translation")),
			},
			Strategy: CallbackStrategy{Name: s.Name, ItemList: items},
			LatestAnomalyRecord: CallbackAnomaly{
				AnomalyID:   alert.Event.ID,
				SourceTime:  utcString(alert.Event.Time),
				CreateTime:  utcString(alert.Event.CreateTime),
				OriginAlarm: json.RawMessage(`{}`),
			},
			CurrentValue: a.CurrentValue(),
			Description:  a.Description(),
			RelatedInfo:  alert.RelationInfo(),
			Labels:       s.Labels,
		}
		if alert.EndTime != nil {
			end := utcString(*alert.EndTime)
			msg.Event.EndTime = &end
		}
		if s.ID != 0 {
			id := s.ID
			msg.Strategy.ID = &id
		}
		if s.Scenario != "" {
			scenario := s.Scenario
			msg.Strategy.Scenario = &scenario
		}
		if origin.IsObject() {
			msg.LatestAnomalyRecord.OriginAlarm = json.RawMessage(origin.Raw)
		}
		if msg.Labels == nil {
			msg.Labels = []string{}
		}
		return msg
	})
}

// CallbackMessageJSON 模板中使用的字符串形式
func (a *Alarm) CallbackMessageJSON() string {
	msg := a.CallbackMessage()
	if msg == nil {
		return "{}"
	}
	b, err := json.Marshal(msg)
	if err != nil {
		a.c.fieldFailed("callback_message", err)
		return "{}"
	}
	return string(b)
}

// AlertInfo 告警文档的 JSON，策略快照提到顶层
func (a *Alarm) AlertInfo() string {
	return a.alertInfo.get(func() string {
		alert := a.alert()
		if alert == nil {
			return "{}"
		}
		b, err := json.Marshal(alert)
		if err != nil {
			a.c.fieldFailed("alert_info", err)
			return "{}"
		}
		var doc map[string]any
		if err := json.Unmarshal(b, &doc); err != nil {
			a.c.fieldFailed("alert_info", err)
			return "{}"
		}
		delete(doc, "extra_info")
		strategy := map[string]any{}
		if raw := alert.StrategySnapshot(); raw != nil {
			_ = json.Unmarshal(raw, &strategy)
		}
		doc["strategy"] = strategy
		if event, ok := doc["event"].(map[string]any); ok {
			delete(event, "extra_info")
		}
		doc["is_shielded"] = alert.Shielded()
		doc["current_value"] = a.CurrentValue()
		doc["description"] = a.Description()
		doc["log_related_info"] = a.LogRelatedInfo()
		doc["related_info"] = a.RelatedInfo()
		out, err := json.Marshal(doc)
		if err != nil {
			a.c.fieldFailed("alert_info", err)
			return "{}"
		}
		return string(out)
	})
}

// SourceTimeRange 全部告警异常点时间的范围 "min ~ max"
func (a *Alarm) SourceTimeRange() string {
	var lo, hi int64
	for _, alert := range a.c.Alerts() {
		ts := alert.Event.Time
		if ts == 0 {
			ts = alert.LatestTime
		}
		if ts == 0 {
			continue
		}
		if lo == 0 || ts < lo {
			lo = ts
		}
		if ts > hi {
			hi = ts
		}
	}
	if lo == 0 {
		return ""
	}
	return a.c.formatTime(lo) + " ~ " + a.c.formatTime(hi)
}
