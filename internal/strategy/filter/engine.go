package filter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// ItemTarget 监控项的监控目标
type ItemTarget struct {
	StrategyID int64
	Target     json.RawMessage
	// HostScoped 策略场景与数据来源支持按主机过滤
	HostScoped bool
}

// Store 策略库
type Store interface {
	MatchStrategies(ctx context.Context, bizID int64, conds []Condition) ([]int64, error)
	MetricFieldsByAlias(ctx context.Context, bizID int64, aliases []string) ([]string, error)
	EventGroupTables(ctx context.Context, bizID int64, groupIDs []string) ([]string, error)
	TSGroupTables(ctx context.Context, bizID int64, groupIDs []string) ([]string, error)
	EnabledIDs(ctx context.Context, bizID int64, enabled bool) ([]int64, error)
	InvalidIDs(ctx context.Context, bizID int64) ([]int64, error)
	IPFilterTargets(ctx context.Context, bizID int64, ids []int64) ([]ItemTarget, error)
	ActiveShields(ctx context.Context, bizID int64, now time.Time) ([]*model.Shield, error)
}

// AlertIndex 告警索引
type AlertIndex interface {
	AbnormalStrategyIDs(ctx context.Context, bizID int64, shielded bool) ([]int64, error)
}

// CMDB 主机与拓扑
type CMDB interface {
	HostsByIP(ctx context.Context, ips []string) ([]*model.Host, error)
	TopoTree(ctx context.Context, bizID int64) (*model.TopoTree, error)
	Sets(ctx context.Context, ids []int64) (map[int64]*model.Set, error)
	Modules(ctx context.Context, ids []int64) (map[int64]*model.Module, error)
}

// Engine 策略过滤
type Engine struct {
	store  Store
	alerts AlertIndex
	cmdb   CMDB
	now    func() time.Time
}

func NewEngine(store Store, alerts AlertIndex, cmdb CMDB) *Engine {
	return &Engine{store: store, alerts: alerts, cmdb: cmdb, now: time.Now}
}

// Filter 返回满足全部条件的策略 id，升序
func (e *Engine) Filter(ctx context.Context, bizID int64, raw []RawCondition) ([]int64, error) {
	p := Parse(raw)
	conds, err := e.rewriteDeferred(ctx, bizID, p)
	if err != nil {
		return nil, err
	}
	ids, err := e.store.MatchStrategies(ctx, bizID, conds)
	if err != nil {
		return nil, fmt.Errorf("match strategies: %w", err)
	}

	if p.Status != nil && len(ids) > 0 {
		var union []int64
		for _, st := range p.Status.Statuses {
			sids, err := e.StatusIDs(ctx, bizID, st, ids)
			if err != nil {
				return nil, err
			}
			union = append(union, sids...)
		}
		ids = intersect(ids, union)
	}

	if p.IP != nil && len(ids) > 0 {
		ids, err = e.coverIP(ctx, bizID, *p.IP, ids)
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// 改写顺序固定，结果与条件在请求中的位置无关
var deferredOrder = []string{"metric_field_name", "custom_event_group_id", "bk_event_group_id", "time_series_group_id"}

func (e *Engine) rewriteDeferred(ctx context.Context, bizID int64, p Parsed) ([]Condition, error) {
	conds := append([]Condition(nil), p.Core...)
	for _, key := range deferredOrder {
		values, ok := p.Deferred[key]
		if !ok {
			continue
		}
		var (
			resolved []string
			field    string
			err      error
		)
		switch key {
		case "metric_field_name":
			field = "metric_field"
			resolved, err = e.store.MetricFieldsByAlias(ctx, bizID, values)
		case "custom_event_group_id", "bk_event_group_id":
			field = "result_table_id"
			resolved, err = e.store.EventGroupTables(ctx, bizID, values)
		case "time_series_group_id":
			field = "result_table_id"
			resolved, err = e.store.TSGroupTables(ctx, bizID, values)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", key, err)
		}
		if len(resolved) == 0 {
			conds = append(conds, Nothing())
			continue
		}
		conds = append(conds, EqIn{Field: field, Values: resolved})
	}
	return conds, nil
}

// StatusIDs 处于某个状态的策略，结果限定在 candidates 内
func (e *Engine) StatusIDs(ctx context.Context, bizID int64, status string, candidates []int64) ([]int64, error) {
	var (
		ids []int64
		err error
	)
	switch strings.ToUpper(status) {
	case model.StrategyStatusAlert:
		ids, err = e.alerts.AbnormalStrategyIDs(ctx, bizID, false)
	case model.StrategyStatusShielded:
		ids, err = e.shieldedIDs(ctx, bizID)
	case model.StrategyStatusInvalid:
		ids, err = e.store.InvalidIDs(ctx, bizID)
	case model.StrategyStatusOn:
		ids, err = e.store.EnabledIDs(ctx, bizID, true)
	case model.StrategyStatusOff:
		ids, err = e.store.EnabledIDs(ctx, bizID, false)
	default:
		log.Debug().Str("status", status).Msg("unknown strategy status")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("strategy status %s: %w", status, err)
	}
	return intersect(candidates, ids), nil
}

// shieldedIDs 策略屏蔽覆盖的策略，加上存在已屏蔽异常告警的策略
func (e *Engine) shieldedIDs(ctx context.Context, bizID int64) ([]int64, error) {
	now := e.now()
	shields, err := e.store.ActiveShields(ctx, bizID, now)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, sh := range shields {
		for _, id := range sh.StrategyIDs {
			if sh.Covers(id, now) {
				ids = append(ids, id)
			}
		}
	}
	alerted, err := e.alerts.AbnormalStrategyIDs(ctx, bizID, true)
	if err != nil {
		return nil, err
	}
	return append(ids, alerted...), nil
}

// hostCover 主机在目标匹配时的全部身份
type hostCover struct {
	hosts map[string]bool
	nodes map[string]bool
}

func (e *Engine) coverIP(ctx context.Context, bizID int64, cond IPCover, ids []int64) ([]int64, error) {
	cover, err := e.buildCover(ctx, bizID, cond)
	if err != nil {
		return nil, err
	}
	targets, err := e.store.IPFilterTargets(ctx, bizID, ids)
	if err != nil {
		return nil, fmt.Errorf("load item targets: %w", err)
	}

	// 没有监控项记录的策略同样视为未配置目标
	matched := make(map[int64]bool, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, t := range targets {
		seen[t.StrategyID] = true
		if matched[t.StrategyID] {
			continue
		}
		field, values, explicit := firstTarget(t.Target)
		if !explicit {
			matched[t.StrategyID] = true
			continue
		}
		if t.HostScoped && cover.match(field, values) {
			matched[t.StrategyID] = true
		}
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if matched[id] || !seen[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (e *Engine) buildCover(ctx context.Context, bizID int64, cond IPCover) (*hostCover, error) {
	hosts, err := e.cmdb.HostsByIP(ctx, cond.IPs)
	if err != nil {
		return nil, fmt.Errorf("hosts by ip: %w", err)
	}
	if len(cond.CloudIDs) > 0 {
		hosts = slices.DeleteFunc(hosts, func(h *model.Host) bool {
			return !slices.Contains(cond.CloudIDs, h.BkCloudID)
		})
	}
	cover := &hostCover{hosts: map[string]bool{}, nodes: map[string]bool{}}
	if len(hosts) == 0 {
		return cover, nil
	}

	tree, err := e.cmdb.TopoTree(ctx, bizID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("topo tree: %w", err)
	}
	links := tree.Links()

	var setIDs, moduleIDs []int64
	for _, h := range hosts {
		cover.hosts[h.Key()] = true
		setIDs = append(setIDs, h.BkSetIDs...)
		moduleIDs = append(moduleIDs, h.BkModuleIDs...)
		for _, id := range h.BkModuleIDs {
			node := model.TopoNode{BkObjID: "module", BkInstID: id}
			cover.nodes[node.Key()] = true
			for _, n := range links[node.Key()] {
				cover.nodes[n.Key()] = true
			}
		}
		for _, id := range h.BkSetIDs {
			cover.nodes[model.TopoNode{BkObjID: "set", BkInstID: id}.Key()] = true
		}
	}

	sets, err := e.cmdb.Sets(ctx, setIDs)
	if err != nil {
		return nil, fmt.Errorf("load sets: %w", err)
	}
	for _, s := range sets {
		if s.SetTemplateID > 0 {
			cover.nodes[model.TopoNode{BkObjID: "SET_TEMPLATE", BkInstID: s.SetTemplateID}.Key()] = true
		}
	}
	modules, err := e.cmdb.Modules(ctx, moduleIDs)
	if err != nil {
		return nil, fmt.Errorf("load modules: %w", err)
	}
	for _, m := range modules {
		if m.ServiceTemplateID > 0 {
			cover.nodes[model.TopoNode{BkObjID: "SERVICE_TEMPLATE", BkInstID: m.ServiceTemplateID}.Key()] = true
		}
	}
	return cover, nil
}

func (c *hostCover) match(field string, values []gjson.Result) bool {
	switch {
	case field == "ip" || field == "bk_target_ip":
		for _, v := range values {
			ip := v.Get("bk_target_ip").String()
			if ip == "" {
				ip = v.Get("ip").String()
			}
			cloud := v.Get("bk_target_cloud_id")
			if !cloud.Exists() {
				cloud = v.Get("bk_cloud_id")
			}
			if c.hosts[model.HostKey(ip, cloud.Int())] {
				return true
			}
		}
	case strings.HasSuffix(field, "topo_node") || strings.HasSuffix(field, "_template"):
		for _, v := range values {
			key := v.Get("bk_obj_id").String() + "|" + strconv.FormatInt(v.Get("bk_inst_id").Int(), 10)
			if c.nodes[key] {
				return true
			}
		}
	}
	return false
}

// firstTarget target[0][0] 的字段与取值。缺失、[] 与 [[]] 都视为未配置
func firstTarget(raw json.RawMessage) (string, []gjson.Result, bool) {
	if len(raw) == 0 {
		return "", nil, false
	}
	first := gjson.GetBytes(raw, "0.0")
	if !first.Exists() || !first.IsObject() {
		return "", nil, false
	}
	return first.Get("field").String(), first.Get("value").Array(), true
}

// intersect 保留 a 中同时出现在 b 的元素，顺序与 a 一致
func intersect(a, b []int64) []int64 {
	in := make(map[int64]bool, len(b))
	for _, v := range b {
		in[v] = true
	}
	out := make([]int64, 0, len(a))
	for _, v := range a {
		if in[v] {
			out = append(out, v)
			delete(in, v)
		}
	}
	return out
}
