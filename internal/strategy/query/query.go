// Package query 策略列表查询：过滤、分面、分页与逐行补充
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/store"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/metrics"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/facet"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/filter"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Request 策略查询请求，Page 或 PageSize 为 0 时返回全部
type Request struct {
	BkBizID             int64                 `json:"bk_biz_id"`
	Scenario            string                `json:"scenario,omitempty"`
	Conditions          []filter.RawCondition `json:"conditions,omitempty"`
	Page                int                   `json:"page,omitempty"`
	PageSize            int                   `json:"page_size,omitempty"`
	WithUserGroup       bool                  `json:"with_user_group"`
	WithUserGroupDetail bool                  `json:"with_user_group_detail"`
}

// ShieldInfo 策略屏蔽状态
type ShieldInfo struct {
	IsShielded bool    `json:"is_shielded"`
	ShieldIDs  []int64 `json:"shield_ids,omitempty"`
}

// StrategyRow 策略详情加上列表页需要的补充字段
type StrategyRow struct {
	*model.Strategy
	AlertCount       int        `json:"alert_count"`
	ShieldAlertCount int        `json:"shield_alert_count"`
	ShieldInfo       ShieldInfo `json:"shield_info"`
	AddAllowed       bool       `json:"add_allowed"`
	DataSourceType   string     `json:"data_source_type"`
	ConfigSource     string     `json:"config_source"`
}

type Response struct {
	*facet.Facets
	StrategyConfigList []*StrategyRow `json:"strategy_config_list"`
	Total              int            `json:"total"`
}

// EmptyResponse 候选集为空时的固定结构
func EmptyResponse() *Response {
	return &Response{Facets: facet.Empty(), StrategyConfigList: []*StrategyRow{}}
}

type Filter interface {
	Filter(ctx context.Context, bizID int64, raw []filter.RawCondition) ([]int64, error)
}

type FacetComputer interface {
	Compute(ctx context.Context, bizID int64, ids []int64) (*facet.Facets, error)
}

// Store 分页与策略详情
type Store interface {
	PageIDs(ctx context.Context, bizID int64, ids []int64, offset, limit int) ([]int64, int, error)
	LoadStrategies(ctx context.Context, ids []int64) ([]*model.Strategy, error)
	UserGroupsByIDs(ctx context.Context, ids []int64) ([]*model.UserGroup, error)
	MetricNames(ctx context.Context, bizID int64, tuples []model.MetricTuple) ([]*model.MetricCacheEntry, error)
	ActiveShields(ctx context.Context, bizID int64, now time.Time) ([]*model.Shield, error)
}

type AlertCounter interface {
	StrategyAlertCounts(ctx context.Context, bizID int64, strategyIDs []int64) (map[int64]store.AlertCount, error)
}

type Orchestrator struct {
	filter  Filter
	facets  FacetComputer
	store   Store
	alerts  AlertCounter
	timeout time.Duration
	now     func() time.Time
}

func NewOrchestrator(f Filter, facets FacetComputer, s Store, alerts AlertCounter, timeout time.Duration) *Orchestrator {
	return &Orchestrator{filter: f, facets: facets, store: s, alerts: alerts, timeout: timeout, now: time.Now}
}

// Query 执行一次策略查询。候选集计算与分页加载失败直接返回错误，分面与补充字段的失败各自降级
func (o *Orchestrator) Query(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	defer func() { metrics.StrategyQueryDuration.Observe(time.Since(start).Seconds()) }()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	conditions := withScenario(req.Conditions, req.Scenario)
	candidates, err := o.filter.Filter(ctx, req.BkBizID, conditions)
	if err != nil {
		return nil, fmt.Errorf("filter strategies: %w", err)
	}
	if len(candidates) == 0 {
		return EmptyResponse(), nil
	}

	// 分面与分页并行
	var (
		facets   *facet.Facets
		facetErr error
		done     = make(chan struct{})
	)
	go func() {
		defer close(done)
		facets, facetErr = o.facets.Compute(ctx, req.BkBizID, candidates)
	}()

	offset, limit := 0, 0
	if req.Page > 0 && req.PageSize > 0 {
		offset, limit = (req.Page-1)*req.PageSize, req.PageSize
	}
	pageIDs, total, err := o.store.PageIDs(ctx, req.BkBizID, candidates, offset, limit)
	if err != nil {
		<-done
		return nil, fmt.Errorf("page strategies: %w", err)
	}
	strategies, err := o.store.LoadStrategies(ctx, pageIDs)
	if err != nil {
		<-done
		return nil, fmt.Errorf("load strategies: %w", err)
	}
	if err := checkBusiness(req.BkBizID, strategies); err != nil {
		<-done
		return nil, err
	}
	if req.WithUserGroup {
		if err := o.fillUserGroups(ctx, strategies, req.WithUserGroupDetail); err != nil {
			log.Warn().Err(err).Int64("bk_biz_id", req.BkBizID).Msg("fill user groups")
		}
	}

	rows := o.enrich(ctx, req.BkBizID, strategies)

	<-done
	if facetErr != nil {
		return nil, fmt.Errorf("compute facets: %w", facetErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Response{Facets: facets, StrategyConfigList: rows, Total: total}, nil
}

// checkBusiness 加载到的策略必须属于请求的业务
func checkBusiness(bizID int64, strategies []*model.Strategy) error {
	for _, s := range strategies {
		if s.BkBizID != bizID {
			return &model.PermissionError{BizID: bizID, StrategyID: s.ID}
		}
	}
	return nil
}

// withScenario 请求中的 scenario 覆盖条件里已有的 scenario
func withScenario(conds []filter.RawCondition, scenario string) []filter.RawCondition {
	if scenario == "" {
		return conds
	}
	out := make([]filter.RawCondition, 0, len(conds)+1)
	for _, c := range conds {
		if c.Key == "scenario" {
			continue
		}
		out = append(out, c)
	}
	return append(out, filter.RawCondition{Key: "scenario", Value: []any{scenario}})
}

// enrich 并发获取告警数、指标名、屏蔽状态，任一失败只影响对应字段
func (o *Orchestrator) enrich(ctx context.Context, bizID int64, strategies []*model.Strategy) []*StrategyRow {
	ids := make([]int64, 0, len(strategies))
	for _, s := range strategies {
		ids = append(ids, s.ID)
	}

	var (
		counts      map[int64]store.AlertCount
		metricNames map[string]string
		shields     map[int64]ShieldInfo
		g           errgroup.Group
	)
	g.Go(func() error {
		c, err := o.alerts.StrategyAlertCounts(ctx, bizID, ids)
		if err != nil {
			log.Warn().Err(err).Int64("bk_biz_id", bizID).Msg("count strategy alerts")
			return nil
		}
		counts = c
		return nil
	})
	g.Go(func() error {
		names, err := o.metricNames(ctx, bizID, strategies)
		if err != nil {
			log.Warn().Err(err).Int64("bk_biz_id", bizID).Msg("load metric names")
			return nil
		}
		metricNames = names
		return nil
	})
	g.Go(func() error {
		shields = o.shieldInfo(ctx, bizID, ids)
		return nil
	})
	_ = g.Wait()

	rows := make([]*StrategyRow, 0, len(strategies))
	for _, s := range strategies {
		row := &StrategyRow{Strategy: s, ConfigSource: "UI"}
		if s.App != "" {
			row.ConfigSource = "YAML"
		}
		if c, ok := counts[s.ID]; ok {
			row.AlertCount, row.ShieldAlertCount = c.Alert, c.Shielded
		}
		row.ShieldInfo = shields[s.ID]
		fillMetricNames(s, metricNames)
		row.AddAllowed = addAllowed(s)
		if qc := s.FirstQueryConfig(); qc != nil {
			if c, ok := model.LookupDataCategory(qc.DataSourceLabel, qc.DataTypeLabel); ok {
				row.DataSourceType = c.Name
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// metricNames 返回 metric_id -> 指标展示名
func (o *Orchestrator) metricNames(ctx context.Context, bizID int64, strategies []*model.Strategy) (map[string]string, error) {
	seen := make(map[model.MetricTuple]struct{})
	var tuples []model.MetricTuple
	for _, s := range strategies {
		for j := range s.Items {
			for i := range s.Items[j].QueryConfigs {
				t, ok := model.MetricTupleOf(&s.Items[j].QueryConfigs[i])
				if !ok {
					continue
				}
				if _, dup := seen[t]; dup {
					continue
				}
				seen[t] = struct{}{}
				tuples = append(tuples, t)
			}
		}
	}
	out := make(map[string]string)
	if len(tuples) == 0 {
		return out, nil
	}
	entries, err := o.store.MetricNames(ctx, bizID, tuples)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[model.MetricID(e.QueryConfig())] = e.MetricFieldName
	}
	return out, nil
}

func fillMetricNames(s *model.Strategy, names map[string]string) {
	for j := range s.Items {
		for i := range s.Items[j].QueryConfigs {
			qc := &s.Items[j].QueryConfigs[i]
			if name, ok := names[model.MetricID(qc)]; ok {
				qc.Name = name
				continue
			}
			qc.Name = qc.DisplayName()
		}
	}
}

// shieldInfo 查询失败时全部视为未屏蔽
func (o *Orchestrator) shieldInfo(ctx context.Context, bizID int64, ids []int64) map[int64]ShieldInfo {
	out := make(map[int64]ShieldInfo, len(ids))
	now := o.now()
	shields, err := o.store.ActiveShields(ctx, bizID, now)
	if err != nil {
		log.Warn().Err(err).Int64("bk_biz_id", bizID).Msg("load strategy shields")
		return out
	}
	for _, id := range ids {
		var info ShieldInfo
		for _, sh := range shields {
			if sh.Covers(id, now) {
				info.IsShielded = true
				info.ShieldIDs = append(info.ShieldIDs, sh.ID)
			}
		}
		out[id] = info
	}
	return out
}

// addAllowed 可配置监控目标，或首个算法为多指标异常检测
func addAllowed(s *model.Strategy) bool {
	qc := s.FirstQueryConfig()
	if qc == nil {
		return false
	}
	if model.TargetTypeOf(s.Scenario, qc.DataSourceLabel, qc.DataTypeLabel) != model.NoneTarget {
		return true
	}
	algorithms := s.Items[0].Algorithms
	return len(algorithms) > 0 && algorithms[0].Type == model.AlgorithmMultivariateAnomaly
}

// fillUserGroups 为通知与处理套餐补充通知组名称，detail 时补充成员
func (o *Orchestrator) fillUserGroups(ctx context.Context, strategies []*model.Strategy, detail bool) error {
	idSet := make(map[int64]struct{})
	var ids []int64
	collect := func(groups []int64) {
		for _, id := range groups {
			if _, ok := idSet[id]; !ok {
				idSet[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	for _, s := range strategies {
		if s.Notice != nil {
			collect(s.Notice.UserGroups)
		}
		for _, a := range s.Actions {
			collect(a.UserGroups)
		}
	}
	groups, err := o.store.UserGroupsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[int64]*model.UserGroup, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}
	refs := func(ids []int64) []model.UserGroupRef {
		out := make([]model.UserGroupRef, 0, len(ids))
		for _, id := range ids {
			g, ok := byID[id]
			if !ok {
				continue
			}
			ref := model.UserGroupRef{ID: g.ID, Name: g.Name}
			if detail {
				ref.Users = g.NoticeReceiver
				ref.Followers = g.Followers
			}
			out = append(out, ref)
		}
		return out
	}
	for _, s := range strategies {
		if s.Notice != nil {
			s.Notice.UserGroupList = refs(s.Notice.UserGroups)
		}
		for i := range s.Actions {
			s.Actions[i].UserGroupList = refs(s.Actions[i].UserGroups)
		}
	}
	return nil
}
