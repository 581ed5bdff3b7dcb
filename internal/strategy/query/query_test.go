package query

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/store"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/facet"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFilter struct {
	ids  []int64
	got  []filter.RawCondition
	fail error
}

func (f *fakeFilter) Filter(_ context.Context, _ int64, raw []filter.RawCondition) ([]int64, error) {
	f.got = raw
	return f.ids, f.fail
}

type fakeFacets struct{ called bool }

func (f *fakeFacets) Compute(context.Context, int64, []int64) (*facet.Facets, error) {
	f.called = true
	out := facet.Empty()
	out.AlertLevelList = []facet.CountRow{{ID: 1, Name: "致命", Count: 1}}
	return out, nil
}

type fakeStore struct {
	strategies map[int64]*model.Strategy
	order      []int64
	offset     int
	limit      int
	groups     []*model.UserGroup
	metrics    []*model.MetricCacheEntry
	tuples     []model.MetricTuple
	shields    []*model.Shield
	shieldErr  error
}

func (f *fakeStore) PageIDs(_ context.Context, _ int64, _ []int64, offset, limit int) ([]int64, int, error) {
	f.offset, f.limit = offset, limit
	if limit <= 0 {
		return f.order, len(f.order), nil
	}
	end := offset + limit
	if end > len(f.order) {
		end = len(f.order)
	}
	if offset >= end {
		return nil, len(f.order), nil
	}
	return f.order[offset:end], len(f.order), nil
}

func (f *fakeStore) LoadStrategies(_ context.Context, ids []int64) ([]*model.Strategy, error) {
	var out []*model.Strategy
	for _, id := range ids {
		if s, ok := f.strategies[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) UserGroupsByIDs(context.Context, []int64) ([]*model.UserGroup, error) {
	return f.groups, nil
}

func (f *fakeStore) MetricNames(_ context.Context, _ int64, tuples []model.MetricTuple) ([]*model.MetricCacheEntry, error) {
	f.tuples = tuples
	return f.metrics, nil
}

func (f *fakeStore) ActiveShields(context.Context, int64, time.Time) ([]*model.Shield, error) {
	return f.shields, f.shieldErr
}

type fakeCounter struct {
	counts map[int64]store.AlertCount
	err    error
}

func (f *fakeCounter) StrategyAlertCounts(context.Context, int64, []int64) (map[int64]store.AlertCount, error) {
	return f.counts, f.err
}

func hostStrategy(id int64, app string) *model.Strategy {
	return &model.Strategy{
		ID:       id,
		BkBizID:  2,
		Name:     "cpu",
		Scenario: "os",
		App:      app,
		Items: []model.Item{{
			QueryConfigs: []model.QueryConfig{{
				DataSourceLabel: "bk_monitor", DataTypeLabel: "time_series",
				ResultTableID: "system.cpu_summary", MetricField: "usage",
			}},
			Algorithms: []model.Algorithm{{Type: "Threshold", Level: 1}},
		}},
		Notice: &model.Notice{UserGroups: []int64{1, 9}},
	}
}

func eventStrategy(id int64) *model.Strategy {
	return &model.Strategy{
		ID:       id,
		BkBizID:  2,
		Scenario: "uptimecheck",
		Items: []model.Item{{
			QueryConfigs: []model.QueryConfig{{
				DataSourceLabel: "custom", DataTypeLabel: "event",
				ResultTableID: "2_bkmonitor_event_5", CustomEventName: "login_failed",
			}},
			Algorithms: []model.Algorithm{{Type: model.AlgorithmMultivariateAnomaly}},
		}},
	}
}

func TestQueryEmptyCandidates(t *testing.T) {
	facets := &fakeFacets{}
	o := NewOrchestrator(&fakeFilter{}, facets, &fakeStore{}, &fakeCounter{}, time.Second)

	resp, err := o.Query(context.Background(), &Request{BkBizID: 2, Conditions: []filter.RawCondition{{Key: "metric_alias", Value: "nonexistent_alias"}}})
	require.NoError(t, err)
	assert.False(t, facets.called)
	assert.Equal(t, 0, resp.Total)

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, key := range []string{"scenario_list", "data_source_list", "strategy_label_list", "strategy_status_list",
		"user_group_list", "action_config_list", "alert_level_list", "invalid_type_list", "algorithm_type_list"} {
		assert.Contains(t, string(b), `"`+key+`":[]`)
	}
	assert.Contains(t, string(b), `"strategy_config_list":[]`)
	assert.Contains(t, string(b), `"total":0`)
}

func TestQueryScenarioInjected(t *testing.T) {
	f := &fakeFilter{}
	o := NewOrchestrator(f, &fakeFacets{}, &fakeStore{}, &fakeCounter{}, 0)

	_, err := o.Query(context.Background(), &Request{
		BkBizID:    2,
		Scenario:   "os",
		Conditions: []filter.RawCondition{{Key: "scenario", Value: "kubernetes"}, {Key: "name", Value: "cpu"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []filter.RawCondition{{Key: "name", Value: "cpu"}, {Key: "scenario", Value: []any{"os"}}}, f.got)
}

func TestQueryFilterErrorIsFatal(t *testing.T) {
	o := NewOrchestrator(&fakeFilter{fail: errors.New("db down")}, &fakeFacets{}, &fakeStore{}, &fakeCounter{}, 0)
	_, err := o.Query(context.Background(), &Request{BkBizID: 2})
	assert.Error(t, err)
}

func TestQueryEnrichesPage(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := &fakeStore{
		strategies: map[int64]*model.Strategy{
			10: hostStrategy(10, "app1"),
			11: eventStrategy(11),
			12: hostStrategy(12, ""),
		},
		order: []int64{12, 11, 10},
		groups: []*model.UserGroup{
			{ID: 1, Name: "ops", NoticeReceiver: []string{"alice"}, Followers: []string{"bob"}},
		},
		metrics: []*model.MetricCacheEntry{{
			DataSourceLabel: "bk_monitor", DataTypeLabel: "time_series",
			ResultTableID: "system.cpu_summary", MetricField: "usage", MetricFieldName: "CPU使用率",
		}},
		shields: []*model.Shield{{ID: 5, StrategyIDs: []int64{11}, BeginTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)}},
	}
	counter := &fakeCounter{counts: map[int64]store.AlertCount{11: {Alert: 3, Shielded: 1}}}
	o := NewOrchestrator(&fakeFilter{ids: []int64{10, 11, 12}}, &fakeFacets{}, s, counter, time.Second)
	o.now = func() time.Time { return now }

	resp, err := o.Query(context.Background(), &Request{BkBizID: 2, Page: 1, PageSize: 2, WithUserGroup: true, WithUserGroupDetail: true})
	require.NoError(t, err)
	assert.Equal(t, 0, s.offset)
	assert.Equal(t, 2, s.limit)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.StrategyConfigList, 2)
	assert.Len(t, resp.AlertLevelList, 1)

	host, event := resp.StrategyConfigList[0], resp.StrategyConfigList[1]
	assert.Equal(t, int64(12), host.ID)
	assert.Equal(t, "UI", host.ConfigSource)
	assert.True(t, host.AddAllowed)
	assert.Equal(t, "监控采集指标", host.DataSourceType)
	assert.Equal(t, "CPU使用率", host.Items[0].QueryConfigs[0].Name)
	assert.Equal(t, ShieldInfo{}, host.ShieldInfo)
	require.Len(t, host.Notice.UserGroupList, 1)
	assert.Equal(t, model.UserGroupRef{ID: 1, Name: "ops", Users: []string{"alice"}, Followers: []string{"bob"}}, host.Notice.UserGroupList[0])

	assert.Equal(t, int64(11), event.ID)
	assert.Equal(t, 3, event.AlertCount)
	assert.Equal(t, 1, event.ShieldAlertCount)
	assert.True(t, event.AddAllowed)
	assert.Equal(t, "自定义事件", event.DataSourceType)
	assert.Equal(t, "login_failed", event.Items[0].QueryConfigs[0].Name)
	assert.Equal(t, ShieldInfo{IsShielded: true, ShieldIDs: []int64{5}}, event.ShieldInfo)
}

func TestQueryFullSetAndUpstreamFailures(t *testing.T) {
	s := &fakeStore{
		strategies: map[int64]*model.Strategy{10: hostStrategy(10, "app1")},
		order:      []int64{10},
		shieldErr:  errors.New("db timeout"),
	}
	o := NewOrchestrator(&fakeFilter{ids: []int64{10}}, &fakeFacets{}, s, &fakeCounter{err: errors.New("es down")}, 0)

	resp, err := o.Query(context.Background(), &Request{BkBizID: 2, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, s.limit)
	require.Len(t, resp.StrategyConfigList, 1)
	row := resp.StrategyConfigList[0]
	assert.Equal(t, "YAML", row.ConfigSource)
	assert.Equal(t, 0, row.AlertCount)
	assert.False(t, row.ShieldInfo.IsShielded)
	assert.Equal(t, "usage", row.Items[0].QueryConfigs[0].Name)
	assert.Nil(t, row.Notice.UserGroupList)
}

func TestQueryRejectsStrategyOfOtherBusiness(t *testing.T) {
	foreign := hostStrategy(10, "")
	foreign.BkBizID = 3
	s := &fakeStore{strategies: map[int64]*model.Strategy{10: foreign}, order: []int64{10}}
	o := NewOrchestrator(&fakeFilter{ids: []int64{10}}, &fakeFacets{}, s, &fakeCounter{}, 0)

	_, err := o.Query(context.Background(), &Request{BkBizID: 2, Page: 1, PageSize: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)
	var perr *model.PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, int64(10), perr.StrategyID)
	assert.Equal(t, int64(2), perr.BizID)
}

func TestQueryMetricNamesCoverEveryItem(t *testing.T) {
	st := hostStrategy(10, "")
	st.Items = append(st.Items, model.Item{
		QueryConfigs: []model.QueryConfig{{
			DataSourceLabel: "bk_monitor", DataTypeLabel: "time_series",
			ResultTableID: "system.mem", MetricField: "pct_used",
		}},
	})
	s := &fakeStore{
		strategies: map[int64]*model.Strategy{10: st},
		order:      []int64{10},
		metrics: []*model.MetricCacheEntry{{
			DataSourceLabel: "bk_monitor", DataTypeLabel: "time_series",
			ResultTableID: "system.mem", MetricField: "pct_used", MetricFieldName: "内存使用率",
		}},
	}
	o := NewOrchestrator(&fakeFilter{ids: []int64{10}}, &fakeFacets{}, s, &fakeCounter{}, 0)

	resp, err := o.Query(context.Background(), &Request{BkBizID: 2})
	require.NoError(t, err)
	assert.Len(t, s.tuples, 2)
	row := resp.StrategyConfigList[0]
	assert.Equal(t, "usage", row.Items[0].QueryConfigs[0].Name)
	assert.Equal(t, "内存使用率", row.Items[1].QueryConfigs[0].Name)
}
