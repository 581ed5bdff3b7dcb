// Package actioncontext assembles the render context of one notice: the driving
// action or converge instance, the actions converged into it, their alerts and the
// nested views that templates read from. Every field is computed at most once.
package actioncontext

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/chart"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/dimension"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/target"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/config"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ActionStore 处理动作与收敛关系
type ActionStore interface {
	GetAction(ctx context.Context, id int64) (*model.ActionInstance, error)
	ListActions(ctx context.Context, ids []int64) ([]*model.ActionInstance, error)
	GetConverge(ctx context.Context, id int64) (*model.ConvergeInstance, error)
	ConvergeRelations(ctx context.Context, convergeIDs []int64) ([]*model.ConvergeRelation, error)
	RelationOf(ctx context.Context, relatedID int64, relatedType model.ConvergeType) (*model.ConvergeRelation, error)
}

// AlertStore 告警、事件与确认记录
type AlertStore interface {
	AlertsByRefs(ctx context.Context, refs []model.AlertRef) ([]*model.AlertDocument, error)
	LatestEvent(ctx context.Context, latestTime int64, dedupeMD5 string) (*model.Event, error)
	AckReasons(ctx context.Context, alertIDs []string) ([]string, error)
}

// StrategyCache 策略快照缓存
type StrategyCache interface {
	GetStrategy(ctx context.Context, id int64) (*model.Strategy, error)
}

type ExperienceStore interface {
	ListExperiences(ctx context.Context, bizID int64) ([]*model.Experience, error)
}

// AIOps 维度下钻与指标推荐
type AIOps interface {
	AnomalyDimensions(ctx context.Context, bizID int64, alertID string) (int64, int64, error)
	RecommendedMetrics(ctx context.Context, bizID int64, alertID string) (int64, int64, error)
}

// ChartImager 告警图片
type ChartImager interface {
	Image(ctx context.Context, in chart.Input) ([]byte, error)
}

// Deps 组装上下文所需的外部依赖，nil 的可选依赖对应字段为空
type Deps struct {
	Actions     ActionStore
	Alerts      AlertStore
	Strategies  StrategyCache
	CMDB        target.CMDB
	Experiences ExperienceStore
	AIOps       AIOps
	Charts      ChartImager
	Notice      config.NoticeConfig
	Location    *time.Location
}

// Options 一次渲染的参数
type Options struct {
	ActionID              int64                  `json:"action_id"`
	ConvergeID            int64                  `json:"converge_id"`
	NoticeWay             string                 `json:"notice_way"`
	NoticeReceiver        model.StringList       `json:"notice_receiver"`
	MergedNoticeReceivers model.StringList       `json:"merged_notice_receivers"`
	UserType              string                 `json:"user_type"`
	UseAlertSnap          bool                   `json:"use_alert_snap"`
	RelatedAlerts         []*model.AlertDocument `json:"related_alerts"`
	UserTitle             string                 `json:"user_title"`
	UserContent           string                 `json:"user_content"`
	Limit                 bool                   `json:"limit"`
}

type lazy[T any] struct {
	once sync.Once
	v    T
}

func (l *lazy[T]) get(fn func() T) T {
	l.once.Do(func() { l.v = fn() })
	return l.v
}

type noticeTarget struct {
	channel string
	way     string
}

// Context 一次通知渲染的上下文，只读引用告警和动作文档
type Context struct {
	ctx       context.Context
	deps      *Deps
	opts      Options
	loc       *time.Location
	resolver  *target.Resolver
	formatter *dimension.Formatter

	action   *model.ActionInstance
	converge *model.ConvergeInstance

	related    lazy[[]*model.ActionInstance]
	alerts     lazy[[]*model.AlertDocument]
	example    lazy[*model.ActionInstance]
	anomaly    lazy[*model.Event]
	notice     lazy[noticeTarget]
	tmpl       lazy[templates]
	dimsMD5    lazy[string]
	alertsInfo lazy[[]AlertInfo]
	strategy   lazy[*model.Strategy]
	business   lazy[*model.Business]

	strategyMu    sync.Mutex
	strategyCache map[int64]*model.Strategy

	alarm          *Alarm
	target         *TargetView
	convergeView   *ConvergeView
	actionInstance *ActionInstanceView
}

// New 加载驱动对象（动作或收敛实例），其余字段按需计算
func New(ctx context.Context, deps *Deps, opts Options) (*Context, error) {
	if opts.ActionID == 0 && opts.ConvergeID == 0 {
		return nil, fmt.Errorf("action_id or converge_id is required: %w", model.ErrInvalidInput)
	}
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	c := &Context{
		ctx:           ctx,
		deps:          deps,
		opts:          opts,
		loc:           loc,
		resolver:      target.NewResolver(deps.CMDB),
		formatter:     dimension.NewFormatter(deps.Notice.MarkdownNoticeWays),
		strategyCache: make(map[int64]*model.Strategy),
	}
	if opts.ActionID != 0 {
		a, err := deps.Actions.GetAction(ctx, opts.ActionID)
		if err != nil {
			return nil, fmt.Errorf("load action: %w", err)
		}
		c.action = a
	} else {
		cv, err := deps.Actions.GetConverge(ctx, opts.ConvergeID)
		if err != nil {
			return nil, fmt.Errorf("load converge: %w", err)
		}
		c.converge = cv
	}
	c.alarm = &Alarm{c: c}
	c.target = &TargetView{c: c}
	c.convergeView = &ConvergeView{c: c}
	c.actionInstance = &ActionInstanceView{c: c}
	return c, nil
}

// fieldFailed 字段降级为空值
func (c *Context) fieldFailed(field string, err error) {
	metrics.ContextFieldFailures.WithLabelValues(field).Inc()
	log.Warn().Err(err).Str("field", field).Int64("action_id", c.opts.ActionID).
		Int64("converge_id", c.opts.ConvergeID).Msg("context field fell back to empty value")
}

func (c *Context) Options() Options { return c.opts }

func (c *Context) Language() string { return c.deps.Notice.Language }

func (c *Context) Location() *time.Location { return c.loc }

func (c *Context) Formatter() *dimension.Formatter { return c.formatter }

// Action 驱动动作，收敛实例渲染时为 nil
func (c *Context) Action() *model.ActionInstance { return c.action }

// Converge 驱动收敛实例，动作渲染时为 nil
func (c *Context) Converge() *model.ConvergeInstance { return c.converge }

// ConvergeType 动作渲染视为 ACTION 层
func (c *Context) ConvergeType() model.ConvergeType {
	if c.converge != nil {
		return c.converge.ConvergeType
	}
	return model.ConvergeAction
}

// Signal 驱动动作的信号；收敛实例取代表动作的信号
func (c *Context) Signal() model.ActionSignal {
	if c.action != nil {
		return c.action.Signal
	}
	if ex := c.ExampleAction(); ex != nil {
		return ex.Signal
	}
	return model.SignalCollect
}

// RelatedActions 被收敛到当前渲染中的 SKIPPED 动作
func (c *Context) RelatedActions() []*model.ActionInstance {
	return c.related.get(func() []*model.ActionInstance {
		ids, err := c.relatedActionIDs()
		if err != nil {
			c.fieldFailed("related_actions", err)
			return nil
		}
		if len(ids) == 0 {
			return nil
		}
		actions, err := c.deps.Actions.ListActions(c.ctx, ids)
		if err != nil {
			c.fieldFailed("related_actions", err)
			return nil
		}
		seen := make(map[int64]bool, len(actions))
		out := make([]*model.ActionInstance, 0, len(actions))
		for _, a := range actions {
			if seen[a.ID] || !strings.EqualFold(string(a.Status), string(model.ActionSkipped)) {
				continue
			}
			seen[a.ID] = true
			out = append(out, a)
		}
		return out
	})
}

// relatedActionIDs CONVERGE 层向下展开一层；普通动作取同一收敛下的兄弟动作
func (c *Context) relatedActionIDs() ([]int64, error) {
	var (
		rels []*model.ConvergeRelation
		self int64
	)
	switch {
	case c.converge != nil:
		top, err := c.deps.Actions.ConvergeRelations(c.ctx, []int64{c.converge.ID})
		if err != nil {
			return nil, err
		}
		rels = top
		if c.converge.ConvergeType == model.ConvergeConverge {
			var children []int64
			for _, r := range top {
				if r.RelatedType == model.ConvergeConverge && r.RelatedID != c.converge.ID {
					children = append(children, r.RelatedID)
				}
			}
			if len(children) > 0 {
				sub, err := c.deps.Actions.ConvergeRelations(c.ctx, children)
				if err != nil {
					return nil, err
				}
				rels = append(rels, sub...)
			}
		}
	case c.action != nil:
		self = c.action.ID
		rel, err := c.deps.Actions.RelationOf(c.ctx, c.action.ID, model.ConvergeAction)
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		siblings, err := c.deps.Actions.ConvergeRelations(c.ctx, []int64{rel.ConvergeID})
		if err != nil {
			return nil, err
		}
		rels = siblings
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, r := range rels {
		if r.RelatedType != model.ConvergeAction || r.RelatedID == self || seen[r.RelatedID] {
			continue
		}
		seen[r.RelatedID] = true
		ids = append(ids, r.RelatedID)
	}
	return ids, nil
}

// Alerts 去重后的告警，保持首次出现的顺序
func (c *Context) Alerts() []*model.AlertDocument {
	return c.alerts.get(func() []*model.AlertDocument {
		if c.opts.UseAlertSnap && len(c.opts.RelatedAlerts) > 0 {
			return dedupeAlerts(c.opts.RelatedAlerts)
		}

		var refs []model.AlertRef
		seen := make(map[string]bool)
		add := func(a *model.ActionInstance) {
			for _, id := range a.Alerts {
				if seen[id] {
					continue
				}
				seen[id] = true
				refs = append(refs, model.AlertRef{ID: id, StrategyID: a.StrategyID})
			}
		}
		if c.action != nil && c.action.Signal != model.SignalCollect {
			add(c.action)
		}
		for _, a := range c.RelatedActions() {
			add(a)
		}
		// 汇总动作没有可展开的兄弟动作时，退回动作自身的告警
		if len(refs) == 0 && c.action != nil {
			add(c.action)
		}
		if len(refs) == 0 {
			return nil
		}

		alerts, err := c.deps.Alerts.AlertsByRefs(c.ctx, refs)
		if err != nil {
			c.fieldFailed("alerts", err)
			return nil
		}
		return dedupeAlerts(alerts)
	})
}

func dedupeAlerts(in []*model.AlertDocument) []*model.AlertDocument {
	seen := make(map[string]bool, len(in))
	out := make([]*model.AlertDocument, 0, len(in))
	for _, a := range in {
		if a == nil || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out
}

// Alert 代表告警
func (c *Context) Alert() *model.AlertDocument {
	alerts := c.Alerts()
	if len(alerts) == 0 {
		return nil
	}
	return alerts[0]
}

// ExampleAction 汇总信号下取包含代表告警的兄弟动作，找不到时退回驱动动作
func (c *Context) ExampleAction() *model.ActionInstance {
	return c.example.get(func() *model.ActionInstance {
		if c.action == nil || c.action.Signal == model.SignalCollect {
			if alert := c.Alert(); alert != nil {
				for _, a := range c.RelatedActions() {
					if a.HasAlert(alert.ID) {
						return a
					}
				}
			}
		}
		if c.action != nil {
			return c.action
		}
		if related := c.RelatedActions(); len(related) > 0 {
			return related[0]
		}
		return nil
	})
}

// AnomalyRecord 代表告警的最近异常事件
func (c *Context) AnomalyRecord() *model.Event {
	return c.anomaly.get(func() *model.Event {
		alert := c.Alert()
		if alert == nil {
			return nil
		}
		if alert.Event.ID != "" {
			return &alert.Event
		}
		e, err := c.deps.Alerts.LatestEvent(c.ctx, alert.LatestTime, alert.Event.DedupeMD5)
		if err != nil {
			c.fieldFailed("anomaly_record", err)
			return nil
		}
		return e
	})
}

func (c *Context) AlertLevel() model.Severity {
	if alert := c.Alert(); alert != nil {
		return alert.Severity
	}
	return 0
}

func (c *Context) LevelName() string { return c.AlertLevel().Name(c.Language()) }

func (c *Context) LevelColor() string { return c.AlertLevel().Color() }

// StrategyID 代表告警的策略，外部告警为 0 时取动作上的
func (c *Context) StrategyID() int64 {
	if alert := c.Alert(); alert != nil && alert.StrategyID != 0 {
		return alert.StrategyID
	}
	if ex := c.ExampleAction(); ex != nil {
		return ex.StrategyID
	}
	return 0
}

func (c *Context) AlertName() string {
	if alert := c.Alert(); alert != nil {
		return alert.AlertName
	}
	return ""
}

// ParseNoticeWay 解析 "<channel>|<way>"，未带渠道时先查表，默认为 user
func ParseNoticeWay(raw string) (channel, way string) {
	if ch, w, ok := strings.Cut(raw, "|"); ok {
		return ch, w
	}
	if ch, ok := model.NoticeWayChannels[raw]; ok {
		return ch, raw
	}
	return model.NoticeChannelUser, raw
}

func (c *Context) noticeTarget() noticeTarget {
	return c.notice.get(func() noticeTarget {
		raw := c.opts.NoticeWay
		if raw == "" && c.action != nil {
			raw = c.action.Inputs.NoticeWay()
		}
		channel, way := ParseNoticeWay(raw)
		return noticeTarget{channel: channel, way: way}
	})
}

func (c *Context) NoticeChannel() string { return c.noticeTarget().channel }

func (c *Context) NoticeWay() string { return c.noticeTarget().way }

// IsMarkdown 当前通知方式是否使用 markdown
func (c *Context) IsMarkdown() bool { return c.formatter.IsMarkdown(c.NoticeWay()) }

// UserType 显式指定优先，其次动作参数中的关注人标记
func (c *Context) UserType() string {
	if c.opts.UserType != "" {
		return c.opts.UserType
	}
	if c.action != nil && c.action.Inputs.Followed() {
		return model.UserTypeFollower
	}
	return ""
}

func (c *Context) Followed() bool { return c.UserType() == model.UserTypeFollower }

// GroupNoticeWay 关注人通知带上用户类型前缀
func (c *Context) GroupNoticeWay() string {
	if c.Followed() {
		return model.UserTypeFollower + "-" + c.NoticeWay()
	}
	return c.NoticeWay()
}

// MentionedUsers 只有企业微信机器人需要 @ 人
func (c *Context) MentionedUsers() []string {
	if c.NoticeWay() != model.NoticeWayWxworkBot {
		return nil
	}
	if c.action != nil {
		if users, ok := c.action.Inputs.MentionUsers(); ok {
			return users
		}
	}
	if ex := c.ExampleAction(); ex != nil {
		users, _ := ex.Inputs.MentionUsers()
		return users
	}
	return nil
}

func (c *Context) IsExternalChannel() bool {
	return !slices.Contains(model.DefaultChannels, c.NoticeChannel())
}

// NoticeReceivers 请求指定优先，其次动作参数
func (c *Context) NoticeReceivers() []string {
	if len(c.opts.NoticeReceiver) > 0 {
		return c.opts.NoticeReceiver
	}
	if c.action != nil {
		return c.action.Inputs.NoticeReceivers()
	}
	return nil
}

func (c *Context) NoticeReceiver() string { return strings.Join(c.NoticeReceivers(), ",") }

func (c *Context) MergedNoticeReceivers() []string { return c.opts.MergedNoticeReceivers }

// configAction 提供动作配置快照的动作
func (c *Context) configAction() *model.ActionInstance {
	if c.action != nil && c.action.ActionConfig.ID != 0 {
		return c.action
	}
	for _, a := range c.RelatedActions() {
		if a.ActionConfig.ID != 0 {
			return a
		}
	}
	if c.action != nil {
		return c.action
	}
	return c.ExampleAction()
}

func (c *Context) ActionConfigID() int64 {
	a := c.configAction()
	if a == nil {
		return 0
	}
	if a.ActionConfig.ID != 0 {
		return a.ActionConfig.ID
	}
	return a.ActionConfigID
}

// CollectID 对外链接使用的动作 id
func (c *Context) CollectID() string {
	a := c.action
	if a == nil {
		a = c.ExampleAction()
	}
	if a == nil {
		return ""
	}
	return a.EsActionID()
}

// Token md5(es_action_id + 创建时间戳)
func (c *Context) Token() string {
	a := c.action
	if a == nil {
		a = c.ExampleAction()
	}
	if a == nil {
		return ""
	}
	sum := md5.Sum([]byte(a.EsActionID() + strconv.FormatInt(a.CreateTime.Unix(), 10)))
	return hex.EncodeToString(sum[:])
}

// DimensionsMD5 动作已带维度哈希时原样使用，否则按代表告警的非空维度计算
func (c *Context) DimensionsMD5() string {
	return c.dimsMD5.get(func() string {
		a := c.action
		if a == nil {
			a = c.ExampleAction()
		}
		if a != nil && a.DimensionHash != "" {
			return a.DimensionHash
		}
		var dims []model.Dimension
		if alert := c.Alert(); alert != nil {
			dims = alert.CommonDimensions()
		}
		return dimension.MD5(dims)
	})
}

// AlertInfo 模板中的告警摘要行
type AlertInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Target       string `json:"target"`
	Dimension    string `json:"dimension"`
	CurrentValue string `json:"current_value"`
}

func (c *Context) AlertsInfo() []AlertInfo {
	return c.alertsInfo.get(func() []AlertInfo {
		alerts := c.Alerts()
		out := make([]AlertInfo, 0, len(alerts))
		for _, a := range alerts {
			info := AlertInfo{ID: a.ID, Name: "-", Target: a.Event.Target, Dimension: "-", CurrentValue: "--"}
			if s := c.strategyByID(a.StrategyID, a); s != nil && s.Name != "" {
				info.Name = s.Name
			}
			if v := model.ScalarString(a.CurrentValue()); v != "" {
				info.CurrentValue = v
			}
			if len(a.Dimensions) > 0 {
				parts := make([]string, 0, len(a.Dimensions))
				for _, d := range a.Dimensions {
					parts = append(parts, d.Label()+"="+d.Display())
				}
				info.Dimension = strings.Join(parts, ",")
			}
			out = append(out, info)
		}
		return out
	})
}

// strategyByID 渲染期间缓存；缓存未命中时使用告警上的快照
func (c *Context) strategyByID(id int64, alert *model.AlertDocument) *model.Strategy {
	if id == 0 {
		return snapshotStrategy(alert)
	}
	c.strategyMu.Lock()
	defer c.strategyMu.Unlock()
	if s, ok := c.strategyCache[id]; ok {
		return s
	}
	var s *model.Strategy
	if c.deps.Strategies != nil {
		got, err := c.deps.Strategies.GetStrategy(c.ctx, id)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			log.Info().Err(err).Int64("strategy_id", id).Msg("strategy cache lookup failed")
		}
		s = got
	}
	if s == nil {
		s = snapshotStrategy(alert)
	}
	c.strategyCache[id] = s
	return s
}

// Strategy 代表告警的策略，始终非 nil
func (c *Context) Strategy() *model.Strategy {
	return c.strategy.get(func() *model.Strategy {
		if s := c.strategyByID(c.StrategyID(), c.Alert()); s != nil {
			return s
		}
		return &model.Strategy{}
	})
}

// Business 告警缺少业务时取动作上的
func (c *Context) Business() *model.Business {
	return c.business.get(func() *model.Business {
		var bizID int64
		if alert := c.Alert(); alert != nil {
			bizID = alert.BkBizID()
		}
		if bizID == 0 && c.action != nil {
			bizID = c.action.BkBizID
		}
		if bizID == 0 && c.converge != nil {
			bizID = c.converge.BkBizID
		}
		if bizID == 0 {
			if ex := c.ExampleAction(); ex != nil {
				bizID = ex.BkBizID
			}
		}
		return c.resolver.ResolveBusiness(c.ctx, bizID)
	})
}

func (c *Context) Alarm() *Alarm { return c.alarm }

func (c *Context) Target() *TargetView { return c.target }

func (c *Context) ConvergeContext() *ConvergeView { return c.convergeView }

func (c *Context) ActionInstance() *ActionInstanceView { return c.actionInstance }

func (c *Context) UserTitle() string { return c.opts.UserTitle }

func (c *Context) UserContent() string { return c.opts.UserContent }

// formatTime 本地时区 2006-01-02 15:04:05
func (c *Context) formatTime(ts int64) string {
	return time.Unix(ts, 0).In(c.loc).Format(time.DateTime)
}
