// Package facet 在过滤后的策略集合上计算分面统计
package facet

import (
	"context"
	"sort"
	"strconv"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Store 分面需要的统计查询
type Store interface {
	ScenarioCounts(ctx context.Context, bizID int64, ids []int64) (map[string]int, error)
	DataSourceCounts(ctx context.Context, ids []int64) (map[string]int, error)
	LabelCounts(ctx context.Context, ids []int64) (map[string]int, error)
	VisibleLabels(ctx context.Context, bizID int64) ([]string, error)
	UserGroupCounts(ctx context.Context, ids []int64) (map[string]int, error)
	BizUserGroups(ctx context.Context, bizID int64) ([]*model.UserGroup, error)
	ActionRelations(ctx context.Context, ids []int64) ([][2]int64, error)
	ActionConfigs(ctx context.Context, bizID int64) ([]*model.ActionConfig, error)
	LevelCounts(ctx context.Context, ids []int64) (map[string]int, error)
	InvalidTypeCounts(ctx context.Context, ids []int64) (map[string]int, error)
	AlgorithmTypeCounts(ctx context.Context, ids []int64) (map[string]int, error)
}

// StatusResolver 计算某个策略状态命中的策略
type StatusResolver interface {
	StatusIDs(ctx context.Context, bizID int64, status string, candidates []int64) ([]int64, error)
}

// ScenarioLabeler 提供监控场景的二级标签树
type ScenarioLabeler interface {
	ScenarioLabels(ctx context.Context) ([]LabelGroup, error)
}

// CountRow 通用分面行
type CountRow struct {
	ID    any    `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ScenarioRow 标签树可用时输出 display_name，否则退化为 name
type ScenarioRow struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Count       int    `json:"count"`
}

type DataSourceRow struct {
	Type            string `json:"type"`
	Name            string `json:"name"`
	DataTypeLabel   string `json:"data_type_label"`
	DataSourceLabel string `json:"data_source_label"`
	Count           int    `json:"count"`
}

type LabelRow struct {
	LabelName string `json:"label_name"`
	ID        string `json:"id"`
	Count     int    `json:"count"`
}

type UserGroupRow struct {
	UserGroupID   int64  `json:"user_group_id"`
	UserGroupName string `json:"user_group_name"`
	Count         int    `json:"count"`
}

// Facets 九个分面，输出顺序固定
type Facets struct {
	ScenarioList      []ScenarioRow   `json:"scenario_list"`
	DataSourceList    []DataSourceRow `json:"data_source_list"`
	StrategyLabelList []LabelRow      `json:"strategy_label_list"`
	StrategyStatus    []CountRow      `json:"strategy_status_list"`
	UserGroupList     []UserGroupRow  `json:"user_group_list"`
	ActionConfigList  []CountRow      `json:"action_config_list"`
	AlertLevelList    []CountRow      `json:"alert_level_list"`
	InvalidTypeList   []CountRow      `json:"invalid_type_list"`
	AlgorithmTypeList []CountRow      `json:"algorithm_type_list"`
}

// Empty 所有分面为空列表
func Empty() *Facets {
	return &Facets{
		ScenarioList:      []ScenarioRow{},
		DataSourceList:    []DataSourceRow{},
		StrategyLabelList: []LabelRow{},
		StrategyStatus:    []CountRow{},
		UserGroupList:     []UserGroupRow{},
		ActionConfigList:  []CountRow{},
		AlertLevelList:    []CountRow{},
		InvalidTypeList:   []CountRow{},
		AlgorithmTypeList: []CountRow{},
	}
}

const unconfiguredAction = "- 未配置 -"

type Aggregator struct {
	store   Store
	status  StatusResolver
	labels  ScenarioLabeler
	workers int
}

func NewAggregator(store Store, status StatusResolver, labels ScenarioLabeler, workers int) *Aggregator {
	if workers <= 0 {
		workers = 9
	}
	return &Aggregator{store: store, status: status, labels: labels, workers: workers}
}

// Compute 并发计算全部分面。单个分面失败时该分面输出空列表，ctx 取消时返回错误
func (a *Aggregator) Compute(ctx context.Context, bizID int64, ids []int64) (*Facets, error) {
	f := Empty()
	var g errgroup.Group
	g.SetLimit(a.workers)

	run := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := fn(ctx); err != nil {
				metrics.FacetFailures.WithLabelValues(name).Inc()
				log.Warn().Err(err).Str("facet", name).Int64("bk_biz_id", bizID).Msg("facet failed, emit empty list")
			}
			return nil
		})
	}

	run("scenario_list", func(ctx context.Context) error {
		rows, err := a.scenarios(ctx, bizID, ids)
		if err == nil {
			f.ScenarioList = rows
		}
		return err
	})
	run("data_source_list", func(ctx context.Context) error {
		rows, err := a.dataSources(ctx, ids)
		if err == nil {
			f.DataSourceList = rows
		}
		return err
	})
	run("strategy_label_list", func(ctx context.Context) error {
		rows, err := a.strategyLabels(ctx, bizID, ids)
		if err == nil {
			f.StrategyLabelList = rows
		}
		return err
	})
	run("strategy_status_list", func(ctx context.Context) error {
		rows, err := a.statuses(ctx, bizID, ids)
		if err == nil {
			f.StrategyStatus = rows
		}
		return err
	})
	run("user_group_list", func(ctx context.Context) error {
		rows, err := a.userGroups(ctx, bizID, ids)
		if err == nil {
			f.UserGroupList = rows
		}
		return err
	})
	run("action_config_list", func(ctx context.Context) error {
		rows, err := a.actionConfigs(ctx, bizID, ids)
		if err == nil {
			f.ActionConfigList = rows
		}
		return err
	})
	run("alert_level_list", func(ctx context.Context) error {
		rows, err := a.alertLevels(ctx, ids)
		if err == nil {
			f.AlertLevelList = rows
		}
		return err
	})
	run("invalid_type_list", func(ctx context.Context) error {
		counts, err := a.store.InvalidTypeCounts(ctx, ids)
		if err == nil {
			f.InvalidTypeList = choiceRows(model.InvalidTypes, counts)
		}
		return err
	})
	run("algorithm_type_list", func(ctx context.Context) error {
		counts, err := a.store.AlgorithmTypeCounts(ctx, ids)
		if err == nil {
			f.AlgorithmTypeList = choiceRows(model.AlgorithmTypes, counts)
		}
		return err
	})

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func (a *Aggregator) scenarios(ctx context.Context, bizID int64, ids []int64) ([]ScenarioRow, error) {
	counts, err := a.store.ScenarioCounts(ctx, bizID, ids)
	if err != nil {
		return nil, err
	}

	var groups []LabelGroup
	if a.labels != nil {
		groups, err = a.labels.ScenarioLabels(ctx)
	}
	if a.labels == nil || err != nil {
		if err != nil {
			log.Warn().Err(err).Msg("load scenario labels, fall back to raw scenario ids")
		}
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows := make([]ScenarioRow, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, ScenarioRow{ID: k, Name: k, Count: counts[k]})
		}
		return rows, nil
	}

	rows := []ScenarioRow{}
	for _, g := range groups {
		for _, c := range g.Children {
			rows = append(rows, ScenarioRow{ID: c.ID, DisplayName: c.Name, Count: counts[c.ID]})
		}
	}
	return rows, nil
}

func (a *Aggregator) dataSources(ctx context.Context, ids []int64) ([]DataSourceRow, error) {
	counts, err := a.store.DataSourceCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	rows := make([]DataSourceRow, 0, len(model.DataCategories))
	for _, c := range model.DataCategories {
		rows = append(rows, DataSourceRow{
			Type:            c.Type,
			Name:            c.Name,
			DataTypeLabel:   c.DataTypeLabel,
			DataSourceLabel: c.DataSourceLabel,
			Count:           counts[c.DataSourceLabel+"|"+c.DataTypeLabel],
		})
	}
	return rows, nil
}

func (a *Aggregator) strategyLabels(ctx context.Context, bizID int64, ids []int64) ([]LabelRow, error) {
	counts, err := a.store.LabelCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	labels, err := a.store.VisibleLabels(ctx, bizID)
	if err != nil {
		return nil, err
	}
	rows := make([]LabelRow, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, LabelRow{LabelName: model.LabelName(l), ID: l, Count: counts[l]})
	}
	return rows, nil
}

// statuses 五个状态各自独立计算，逐个执行
func (a *Aggregator) statuses(ctx context.Context, bizID int64, ids []int64) ([]CountRow, error) {
	rows := make([]CountRow, 0, len(model.StrategyStatuses))
	for _, st := range model.StrategyStatuses {
		hit, err := a.status.StatusIDs(ctx, bizID, st.ID, ids)
		if err != nil {
			return nil, err
		}
		rows = append(rows, CountRow{ID: st.ID, Name: st.Name, Count: len(hit)})
	}
	return rows, nil
}

func (a *Aggregator) userGroups(ctx context.Context, bizID int64, ids []int64) ([]UserGroupRow, error) {
	counts, err := a.store.UserGroupCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	groups, err := a.store.BizUserGroups(ctx, bizID)
	if err != nil {
		return nil, err
	}
	rows := make([]UserGroupRow, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, UserGroupRow{
			UserGroupID:   g.ID,
			UserGroupName: g.Name,
			Count:         counts[strconv.FormatInt(g.ID, 10)],
		})
	}
	return rows, nil
}

func (a *Aggregator) actionConfigs(ctx context.Context, bizID int64, ids []int64) ([]CountRow, error) {
	relations, err := a.store.ActionRelations(ctx, ids)
	if err != nil {
		return nil, err
	}
	configs, err := a.store.ActionConfigs(ctx, bizID)
	if err != nil {
		return nil, err
	}

	noConfig := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		noConfig[id] = struct{}{}
	}
	byConfig := make(map[int64]map[int64]struct{})
	for _, r := range relations {
		configID, strategyID := r[0], r[1]
		if byConfig[configID] == nil {
			byConfig[configID] = make(map[int64]struct{})
		}
		byConfig[configID][strategyID] = struct{}{}
		delete(noConfig, strategyID)
	}

	rows := make([]CountRow, 0, len(configs)+1)
	rows = append(rows, CountRow{ID: int64(0), Name: unconfiguredAction, Count: len(noConfig)})
	for _, c := range configs {
		rows = append(rows, CountRow{ID: c.ID, Name: c.Name, Count: len(byConfig[c.ID])})
	}
	return rows, nil
}

func (a *Aggregator) alertLevels(ctx context.Context, ids []int64) ([]CountRow, error) {
	counts, err := a.store.LevelCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	rows := make([]CountRow, 0, len(model.Levels))
	for _, l := range model.Levels {
		rows = append(rows, CountRow{ID: int(l), Name: l.Name(model.LangZH), Count: counts[strconv.Itoa(int(l))]})
	}
	return rows, nil
}

// choiceRows 按枚举顺序补零，跳过空类型
func choiceRows(choices []model.Choice, counts map[string]int) []CountRow {
	rows := make([]CountRow, 0, len(choices))
	for _, c := range choices {
		if c.ID == "" {
			continue
		}
		rows = append(rows, CountRow{ID: c.ID, Name: c.Name, Count: counts[c.ID]})
	}
	return rows
}
