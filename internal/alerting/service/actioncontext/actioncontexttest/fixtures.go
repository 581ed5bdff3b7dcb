// Package actioncontexttest provides in-memory stores and sample documents for
// tests that build an actioncontext.Context outside the package.
package actioncontexttest

import (
	"context"
	"testing"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/store"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// Actions 内存中的动作与收敛关系
type Actions struct {
	Actions   map[int64]*model.ActionInstance
	Converges map[int64]*model.ConvergeInstance
	Relations []*model.ConvergeRelation
}

func (f *Actions) GetAction(_ context.Context, id int64) (*model.ActionInstance, error) {
	if a, ok := f.Actions[id]; ok {
		return a, nil
	}
	return nil, model.ErrNotFound
}

func (f *Actions) ListActions(_ context.Context, ids []int64) ([]*model.ActionInstance, error) {
	var out []*model.ActionInstance
	for _, id := range ids {
		if a, ok := f.Actions[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *Actions) GetConverge(_ context.Context, id int64) (*model.ConvergeInstance, error) {
	if c, ok := f.Converges[id]; ok {
		return c, nil
	}
	return nil, model.ErrNotFound
}

func (f *Actions) ConvergeRelations(_ context.Context, ids []int64) ([]*model.ConvergeRelation, error) {
	var out []*model.ConvergeRelation
	for _, r := range f.Relations {
		for _, id := range ids {
			if r.ConvergeID == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (f *Actions) RelationOf(_ context.Context, relatedID int64, relatedType model.ConvergeType) (*model.ConvergeRelation, error) {
	for _, r := range f.Relations {
		if r.RelatedID == relatedID && r.RelatedType == relatedType {
			return r, nil
		}
	}
	return nil, model.ErrNotFound
}

// Alerts 内存中的告警文档
type Alerts map[string]*model.AlertDocument

func (f Alerts) AlertsByRefs(_ context.Context, refs []model.AlertRef) ([]*model.AlertDocument, error) {
	var out []*model.AlertDocument
	for _, r := range refs {
		if a, ok := f[r.ID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f Alerts) LatestEvent(context.Context, int64, string) (*model.Event, error) {
	return nil, model.ErrNotFound
}

func (f Alerts) AckReasons(context.Context, []string) ([]string, error) { return nil, nil }

// Strategies 按 id 的策略缓存
type Strategies map[int64]*model.Strategy

func (f Strategies) GetStrategy(_ context.Context, id int64) (*model.Strategy, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return nil, model.ErrNotFound
}

// Notice 测试用的通知配置
func Notice() config.NoticeConfig {
	return config.NoticeConfig{
		Language:           model.LangZH,
		EventCenterURL:     "http://bk.example/?bizId={bk_biz_id}#/event-center/detail/{action_id}?actionId={collect_id}",
		MobileURL:          "http://bk.example/weixin/?bizId={bk_biz_id}&collectId={collect_id}",
		MonitorHost:        "http://bk.example/",
		MarkdownNoticeWays: []string{"wxwork-bot", "bkchat", "markdown"},
		MobileNoticeWays:   []string{"weixin", "rtx"},
	}
}

// NewDeps CMDB 使用 miniredis，策略 42 为 "磁盘使用率"
func NewDeps(t testing.TB, actions *Actions, alerts Alerts) (*actioncontext.Deps, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &actioncontext.Deps{
		Actions:    actions,
		Alerts:     alerts,
		Strategies: Strategies{42: {ID: 42, Name: "磁盘使用率", Scenario: "os"}},
		CMDB:       store.NewRedisCMDB(rdb),
		Notice:     Notice(),
		Location:   time.UTC,
	}, mr
}

// Alert 单主机磁盘告警
func Alert(id string) *model.AlertDocument {
	return &model.AlertDocument{
		ID:         id,
		AlertName:  "disk usage",
		StrategyID: 42,
		Severity:   model.SeverityWarn,
		Status:     model.AlertAbnormal,
		Dimensions: []model.Dimension{
			{Key: "bk_target_ip", Value: "10.0.0.1"},
			{Key: "bk_target_cloud_id", Value: "0"},
			{Key: "mount_point", Value: "/data"},
		},
		AggDimensions: []string{"mount_point"},
		Event:         model.Event{BkBizID: 2, TargetType: model.TargetTypeHost, Description: "磁盘使用率 95%"},
	}
}

// Action 正在执行的异常通知动作
func Action(id int64, alerts ...string) *model.ActionInstance {
	return &model.ActionInstance{
		ID:         id,
		CreateTime: time.Unix(1700000000, 0),
		Status:     model.ActionRunning,
		Signal:     model.SignalAbnormal,
		Alerts:     alerts,
		StrategyID: 42,
		BkBizID:    2,
		ActionPlugin: model.ActionPlugin{
			PluginType: model.PluginNotice,
		},
	}
}

// Single 一个动作一条告警的常用组合
func Single(t testing.TB, alert *model.AlertDocument) (*Actions, Alerts) {
	t.Helper()
	return &Actions{Actions: map[int64]*model.ActionInstance{1: Action(1, alert.ID)}},
		Alerts{alert.ID: alert}
}
