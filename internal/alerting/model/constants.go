package model

// Severity 告警级别
type Severity int

const (
	SeverityFatal  Severity = 1
	SeverityWarn   Severity = 2
	SeverityRemind Severity = 3
)

var severityNames = map[Severity]string{
	SeverityFatal:  "致命",
	SeverityWarn:   "预警",
	SeverityRemind: "提醒",
}

var severityNamesEN = map[Severity]string{
	SeverityFatal:  "Fatal",
	SeverityWarn:   "Warning",
	SeverityRemind: "Remind",
}

var severityColors = map[Severity]string{
	SeverityFatal:  "#EA3636",
	SeverityWarn:   "#FF9C01",
	SeverityRemind: "#FFDE3A",
}

// Name 本地化级别名
func (s Severity) Name(lang string) string {
	if lang == LangEN {
		return severityNamesEN[s]
	}
	return severityNames[s]
}

func (s Severity) Color() string { return severityColors[s] }

// Levels 所有检测级别，按严重程度排序
var Levels = []Severity{SeverityFatal, SeverityWarn, SeverityRemind}

const (
	LangZH = "zh"
	LangEN = "en"
)

// AlertStatus 告警状态
type AlertStatus string

const (
	AlertAbnormal  AlertStatus = "ABNORMAL"
	AlertRecovered AlertStatus = "RECOVERED"
	AlertClosed    AlertStatus = "CLOSED"
)

var alertStatusNames = map[AlertStatus]string{
	AlertAbnormal:  "未恢复",
	AlertRecovered: "已恢复",
	AlertClosed:    "已失效",
}

func (s AlertStatus) Name() string { return alertStatusNames[s] }

// ActionStatus 处理动作状态
type ActionStatus string

const (
	ActionReceived ActionStatus = "received"
	ActionWaiting  ActionStatus = "waiting"
	ActionRunning  ActionStatus = "running"
	ActionSuccess  ActionStatus = "success"
	ActionFailure  ActionStatus = "failure"
	ActionSkipped  ActionStatus = "skipped"
	ActionShield   ActionStatus = "shield"
)

// ActionSignal 触发信号
type ActionSignal string

const (
	SignalAbnormal       ActionSignal = "ABNORMAL"
	SignalRecovered      ActionSignal = "RECOVERED"
	SignalClosed         ActionSignal = "CLOSED"
	SignalNoData         ActionSignal = "NO_DATA"
	SignalCollect        ActionSignal = "COLLECT"
	SignalManual         ActionSignal = "MANUAL"
	SignalExecute        ActionSignal = "EXECUTE"
	SignalExecuteSuccess ActionSignal = "EXECUTE_SUCCESS"
	SignalExecuteFailed  ActionSignal = "EXECUTE_FAILED"
	SignalAck            ActionSignal = "ACK"
)

var signalNames = map[ActionSignal]string{
	SignalAbnormal:       "告警触发时",
	SignalRecovered:      "告警恢复时",
	SignalClosed:         "告警关闭时",
	SignalNoData:         "无数据时",
	SignalCollect:        "汇总",
	SignalManual:         "手动处理",
	SignalExecute:        "执行处理",
	SignalExecuteSuccess: "执行成功",
	SignalExecuteFailed:  "执行失败",
	SignalAck:            "告警确认时",
}

func (s ActionSignal) Name() string { return signalNames[s] }

// callback type 映射
var (
	signalCallbackTypes = map[ActionSignal]string{
		SignalAbnormal:  "ANOMALY_NOTICE",
		SignalNoData:    "ANOMALY_NOTICE",
		SignalRecovered: "RECOVERY_NOTICE",
		SignalClosed:    "CLOSE_NOTICE",
		SignalAck:       "ACK_NOTICE",
		SignalManual:    "MANUAL",
		SignalCollect:   "ANOMALY_NOTICE",
	}
	messageQueueCallbackTypes = map[ActionSignal]string{
		SignalAbnormal:  "ANOMALY",
		SignalNoData:    "ANOMALY",
		SignalRecovered: "RECOVERED",
		SignalClosed:    "CLOSED",
		SignalAck:       "ACK",
		SignalManual:    "MANUAL",
		SignalCollect:   "ANOMALY",
	}
)

// CallbackType 回调消息中的 type 字段
func CallbackType(signal ActionSignal, plugin PluginType) string {
	if plugin == PluginMessageQueue {
		return messageQueueCallbackTypes[signal]
	}
	return signalCallbackTypes[signal]
}

// PluginType 处理套餐插件类型
type PluginType string

const (
	PluginNotice       PluginType = "notice"
	PluginMessageQueue PluginType = "message_queue"
	PluginWebhook      PluginType = "webhook"
	PluginJob          PluginType = "job"
	PluginSops         PluginType = "sops"
	PluginCommon       PluginType = "common"
)

// NoticePluginID 通知套餐的插件 id，动作配置分面中需要排除
const NoticePluginID = 1

// ConvergeType 收敛层级
type ConvergeType string

const (
	ConvergeAction   ConvergeType = "action"
	ConvergeConverge ConvergeType = "converge"
)

// 通知方式
const (
	NoticeWayMail      = "mail"
	NoticeWaySMS       = "sms"
	NoticeWayVoice     = "voice"
	NoticeWayWeixin    = "weixin"
	NoticeWayRTX       = "rtx"
	NoticeWayWxworkBot = "wxwork-bot"
	NoticeWayBkchat    = "bkchat"
	NoticeWayMarkdown  = "markdown"
)

// 通知渠道
const (
	NoticeChannelUser      = "user"
	NoticeChannelWxworkBot = "wxwork-bot"
	NoticeChannelBkchat    = "bkchat"
)

// 目标类型
const (
	TargetTypeHost    = "HOST"
	TargetTypeService = "SERVICE"
	TargetTypeTopo    = "TOPO"
)

var targetTypeNames = map[string]string{
	TargetTypeHost:    "IP",
	TargetTypeService: "实例",
	TargetTypeTopo:    "节点",
}

func TargetTypeName(t string) string { return targetTypeNames[t] }

// 数据来源与数据类型
const (
	DataSourceMonitor    = "bk_monitor"
	DataSourceLogSearch  = "bk_log_search"
	DataSourceData       = "bk_data"
	DataSourceCustom     = "custom"
	DataSourceFTA        = "bk_fta"
	DataSourcePrometheus = "prometheus"
	DataSourceDashboard  = "dashboard"

	DataTypeTimeSeries = "time_series"
	DataTypeEvent      = "event"
	DataTypeLog        = "log"
	DataTypeAlert      = "alert"
)

// DataCategory 数据来源分类
type DataCategory struct {
	Type            string
	DataSourceLabel string
	DataTypeLabel   string
	Name            string
}

// DataCategories 固定的数据来源分类表，data_source_list 分面按此顺序输出
var DataCategories = []DataCategory{
	{"bk_monitor_time_series", DataSourceMonitor, DataTypeTimeSeries, "监控采集指标"},
	{"bk_monitor_event", DataSourceMonitor, DataTypeEvent, "系统事件"},
	{"bk_monitor_log", DataSourceMonitor, DataTypeLog, "日志关键字"},
	{"bk_log_search_time_series", DataSourceLogSearch, DataTypeTimeSeries, "日志平台指标"},
	{"bk_log_search_log", DataSourceLogSearch, DataTypeLog, "日志平台关键字"},
	{"custom_time_series", DataSourceCustom, DataTypeTimeSeries, "自定义指标"},
	{"custom_event", DataSourceCustom, DataTypeEvent, "自定义事件"},
	{"bk_data_time_series", DataSourceData, DataTypeTimeSeries, "计算平台指标"},
	{"bk_fta_event", DataSourceFTA, DataTypeEvent, "第三方告警"},
	{"bk_fta_alert", DataSourceFTA, DataTypeAlert, "关联告警"},
	{"bk_monitor_alert", DataSourceMonitor, DataTypeAlert, "关联策略"},
	{"prometheus_time_series", DataSourcePrometheus, DataTypeTimeSeries, "Prometheus"},
}

// LookupDataCategoryByType 按 legacy type 标签查找
func LookupDataCategoryByType(t string) (DataCategory, bool) {
	for _, c := range DataCategories {
		if c.Type == t {
			return c, true
		}
	}
	return DataCategory{}, false
}

// LookupDataCategory 按 (data_source_label, data_type_label) 查找
func LookupDataCategory(ds, dt string) (DataCategory, bool) {
	for _, c := range DataCategories {
		if c.DataSourceLabel == ds && c.DataTypeLabel == dt {
			return c, true
		}
	}
	return DataCategory{}, false
}

// 回调消息中 item_list 使用的名称
var (
	DataSourceNames = map[string]string{
		DataSourceMonitor:   "监控平台",
		DataSourceLogSearch: "日志平台",
		DataSourceData:      "计算平台",
		DataSourceCustom:    "用户自定义",
	}
	DataTypeNames = map[string]string{
		DataTypeLog:        "日志关键字",
		DataTypeEvent:      "事件",
		DataTypeTimeSeries: "时序",
	}
)

func DataSourceName(ds string) string {
	if n, ok := DataSourceNames[ds]; ok {
		return n
	}
	return "其他"
}

func DataTypeName(dt string) string {
	if n, ok := DataTypeNames[dt]; ok {
		return n
	}
	return "其他"
}

// 策略状态
const (
	StrategyStatusAlert    = "ALERT"
	StrategyStatusInvalid  = "INVALID"
	StrategyStatusOff      = "OFF"
	StrategyStatusOn       = "ON"
	StrategyStatusShielded = "SHIELDED"
)

// StrategyStatuses 固定顺序的状态分面行
var StrategyStatuses = []struct {
	ID   string
	Name string
}{
	{StrategyStatusAlert, "告警中"},
	{StrategyStatusInvalid, "策略已失效"},
	{StrategyStatusOff, "已停用"},
	{StrategyStatusOn, "已启用"},
	{StrategyStatusShielded, "屏蔽中"},
}

// Choice 枚举项
type Choice struct {
	ID   string
	Name string
}

// InvalidTypes 策略失效类型
var InvalidTypes = []Choice{
	{"", "无"},
	{"invalid_target", "监控目标全部失效"},
	{"invalid_related_strategy", "关联的策略已失效"},
	{"deleted_related_strategy", "关联的策略已删除"},
	{"invalid_metric", "监控指标不存在"},
	{"invalid_biz", "业务已删除"},
	{"invalid_unit", "单位配置错误"},
}

// AlgorithmTypes 检测算法
var AlgorithmTypes = []Choice{
	{"", "无"},
	{"Threshold", "静态阈值"},
	{"SimpleRingRatio", "简易环比"},
	{"AdvancedRingRatio", "高级环比"},
	{"SimpleYearRound", "简易同比"},
	{"AdvancedYearRound", "高级同比"},
	{"PartialNodes", "部分节点数算法"},
	{"OsRestart", "主机重启"},
	{"ProcPort", "进程端口"},
	{"PingUnreachable", "Ping不可达算法"},
	{"YearRoundAmplitude", "同比振幅"},
	{"YearRoundRange", "同比区间"},
	{"RingRatioAmplitude", "环比振幅"},
	{"IntelligentDetect", "智能异常检测"},
	{"TimeSeriesForecasting", "时序预测"},
	{"AbnormalCluster", "离群检测"},
	{"HostAnomalyDetection", "主机异常检测"},
	{AlgorithmMultivariateAnomaly, "多指标异常检测"},
}

const AlgorithmMultivariateAnomaly = "MultivariateAnomalyDetection"

// 策略监控目标类型
const (
	HostTarget    = "HOST"
	ServiceTarget = "SERVICE"
	NoneTarget    = "NONE"
)

var (
	hostScenarios    = map[string]bool{"os": true, "host_process": true, "host_device": true}
	serviceScenarios = map[string]bool{"service_module": true, "component": true, "service_process": true}
)

// TargetTypeOf 按监控场景与数据来源推断策略可配置的目标类型
func TargetTypeOf(scenario, ds, dt string) string {
	switch ds {
	case DataSourceMonitor, DataSourceCustom, DataSourceLogSearch, DataSourceData:
	default:
		return NoneTarget
	}
	if dt == DataTypeAlert {
		return NoneTarget
	}
	if hostScenarios[scenario] {
		return HostTarget
	}
	if serviceScenarios[scenario] {
		return ServiceTarget
	}
	return NoneTarget
}

// IPFilterScenarios IP 过滤只对这些场景生效
var IPFilterScenarios = []string{"os", "host_process", "service_module", "component", "service_process"}

// CMDBTargetDimensions 目标类维度，按展示顺序
var CMDBTargetDimensions = []string{"bk_target_ip", "bk_target_cloud_id", "bk_target_service_instance_id", "bk_host_id"}

// DisplayExcludedDimensions 永不展示的维度
var DisplayExcludedDimensions = map[string]bool{
	"alert_name":  true,
	"strategy_id": true,
	"target_type": true,
	"target":      true,
	"bk_biz_id":   true,
}

// DefaultChannels 内部通知渠道，其余渠道视为外部
var DefaultChannels = []string{NoticeChannelUser, NoticeChannelWxworkBot}

// NoticeWayChannels 通知方式到渠道的查找表
var NoticeWayChannels = map[string]string{
	NoticeWayWxworkBot: NoticeChannelWxworkBot,
	NoticeWayBkchat:    NoticeChannelBkchat,
}

// UserTypeFollower 关注人通知的用户类型
const UserTypeFollower = "follower"
