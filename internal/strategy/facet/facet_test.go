package facet

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	scenarios   map[string]int
	dataSources map[string]int
	labelCounts map[string]int
	labels      []string
	groupCounts map[string]int
	groups      []*model.UserGroup
	relations   [][2]int64
	configs     []*model.ActionConfig
	levels      map[string]int
	invalid     map[string]int
	algorithms  map[string]int
	failLabels  bool
}

func (f *fakeStore) ScenarioCounts(context.Context, int64, []int64) (map[string]int, error) {
	return f.scenarios, nil
}
func (f *fakeStore) DataSourceCounts(context.Context, []int64) (map[string]int, error) {
	return f.dataSources, nil
}
func (f *fakeStore) LabelCounts(context.Context, []int64) (map[string]int, error) {
	if f.failLabels {
		return nil, errors.New("db down")
	}
	return f.labelCounts, nil
}
func (f *fakeStore) VisibleLabels(context.Context, int64) ([]string, error) { return f.labels, nil }
func (f *fakeStore) UserGroupCounts(context.Context, []int64) (map[string]int, error) {
	return f.groupCounts, nil
}
func (f *fakeStore) BizUserGroups(context.Context, int64) ([]*model.UserGroup, error) {
	return f.groups, nil
}
func (f *fakeStore) ActionRelations(context.Context, []int64) ([][2]int64, error) {
	return f.relations, nil
}
func (f *fakeStore) ActionConfigs(context.Context, int64) ([]*model.ActionConfig, error) {
	return f.configs, nil
}
func (f *fakeStore) LevelCounts(context.Context, []int64) (map[string]int, error) { return f.levels, nil }
func (f *fakeStore) InvalidTypeCounts(context.Context, []int64) (map[string]int, error) {
	return f.invalid, nil
}
func (f *fakeStore) AlgorithmTypeCounts(context.Context, []int64) (map[string]int, error) {
	return f.algorithms, nil
}

type fakeStatus map[string][]int64

func (f fakeStatus) StatusIDs(_ context.Context, _ int64, status string, _ []int64) ([]int64, error) {
	return f[status], nil
}

type staticLabels struct {
	groups []LabelGroup
	err    error
}

func (s staticLabels) ScenarioLabels(context.Context) ([]LabelGroup, error) { return s.groups, s.err }

func newStore() *fakeStore {
	return &fakeStore{
		scenarios:   map[string]int{"os": 2, "uptimecheck": 1},
		dataSources: map[string]int{"bk_monitor|time_series": 2, "custom|event": 1},
		labelCounts: map[string]int{"/db/": 1},
		labels:      []string{"/db/", "/web/"},
		groupCounts: map[string]int{"1": 3},
		groups:      []*model.UserGroup{{ID: 1, Name: "ops"}, {ID: 2, Name: "dev"}},
		relations:   [][2]int64{{7, 1}, {7, 2}, {8, 2}},
		configs:     []*model.ActionConfig{{ID: 7, Name: "restart"}, {ID: 8, Name: "webhook"}},
		levels:      map[string]int{"1": 2, "3": 1},
		invalid:     map[string]int{"invalid_metric": 1},
		algorithms:  map[string]int{"Threshold": 3},
	}
}

func TestComputeFacets(t *testing.T) {
	labels := staticLabels{groups: []LabelGroup{
		{ID: "hosts", Name: "主机", Children: []LabelGroup{{ID: "os", Name: "操作系统"}, {ID: "host_process", Name: "进程"}}},
		{ID: "applications", Name: "用户体验", Children: []LabelGroup{{ID: "uptimecheck", Name: "服务拨测"}}},
	}}
	status := fakeStatus{model.StrategyStatusOn: {1, 2}, model.StrategyStatusOff: {3}}
	a := NewAggregator(newStore(), status, labels, 4)

	f, err := a.Compute(context.Background(), 2, []int64{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, []ScenarioRow{
		{ID: "os", DisplayName: "操作系统", Count: 2},
		{ID: "host_process", DisplayName: "进程", Count: 0},
		{ID: "uptimecheck", DisplayName: "服务拨测", Count: 1},
	}, f.ScenarioList)

	require.Len(t, f.DataSourceList, len(model.DataCategories))
	assert.Equal(t, DataSourceRow{Type: "bk_monitor_time_series", Name: "监控采集指标", DataTypeLabel: "time_series",
		DataSourceLabel: "bk_monitor", Count: 2}, f.DataSourceList[0])
	assert.Equal(t, 1, f.DataSourceList[6].Count)

	assert.Equal(t, []LabelRow{{LabelName: "db", ID: "/db/", Count: 1}, {LabelName: "web", ID: "/web/", Count: 0}}, f.StrategyLabelList)

	require.Len(t, f.StrategyStatus, 5)
	assert.Equal(t, "ALERT", f.StrategyStatus[0].ID)
	assert.Equal(t, 1, f.StrategyStatus[2].Count)
	assert.Equal(t, 2, f.StrategyStatus[3].Count)

	assert.Equal(t, []UserGroupRow{{1, "ops", 3}, {2, "dev", 0}}, f.UserGroupList)

	assert.Equal(t, []CountRow{
		{ID: int64(0), Name: "- 未配置 -", Count: 1},
		{ID: int64(7), Name: "restart", Count: 2},
		{ID: int64(8), Name: "webhook", Count: 1},
	}, f.ActionConfigList)

	assert.Equal(t, []CountRow{
		{ID: 1, Name: "致命", Count: 2},
		{ID: 2, Name: "预警", Count: 0},
		{ID: 3, Name: "提醒", Count: 1},
	}, f.AlertLevelList)

	require.Len(t, f.InvalidTypeList, len(model.InvalidTypes)-1)
	for _, r := range f.InvalidTypeList {
		assert.NotEmpty(t, r.ID)
		if r.ID == "invalid_metric" {
			assert.Equal(t, 1, r.Count)
		}
	}
	require.Len(t, f.AlgorithmTypeList, len(model.AlgorithmTypes)-1)
	assert.Equal(t, CountRow{ID: "Threshold", Name: "静态阈值", Count: 3}, f.AlgorithmTypeList[0])
}

func TestComputeFacetFailureIsContained(t *testing.T) {
	store := newStore()
	store.failLabels = true
	a := NewAggregator(store, fakeStatus{}, staticLabels{err: errors.New("label service down")}, 2)

	f, err := a.Compute(context.Background(), 2, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Empty(t, f.StrategyLabelList)
	assert.NotNil(t, f.StrategyLabelList)
	assert.Equal(t, []ScenarioRow{
		{ID: "os", Name: "os", Count: 2},
		{ID: "uptimecheck", Name: "uptimecheck", Count: 1},
	}, f.ScenarioList)
	assert.Len(t, f.UserGroupList, 2)
}

func TestComputeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAggregator(newStore(), fakeStatus{}, nil, 2).Compute(ctx, 2, []int64{1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileLabeler(t *testing.T) {
	groups, err := NewFileLabeler("").ScenarioLabels(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, groups)
	assert.Equal(t, "applications", groups[0].ID)

	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- id: hosts\n  name: 主机\n  children:\n    - id: os\n      name: 操作系统\n"), 0o644))
	groups, err = NewFileLabeler(path).ScenarioLabels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []LabelGroup{{ID: "hosts", Name: "主机", Children: []LabelGroup{{ID: "os", Name: "操作系统"}}}}, groups)

	_, err = NewFileLabeler(filepath.Join(t.TempDir(), "missing.yaml")).ScenarioLabels(context.Background())
	assert.Error(t, err)
}
