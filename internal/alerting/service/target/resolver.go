package target

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/metrics"
	"github.com/rs/zerolog/log"
)

// CMDB 只读的 CMDB 缓存，由外部任务刷新
type CMDB interface {
	HostByID(ctx context.Context, hostID int64) (*model.Host, error)
	HostByIP(ctx context.Context, ip string, cloudID int64) (*model.Host, error)
	ServiceInstance(ctx context.Context, id int64) (*model.ServiceInstance, error)
	Business(ctx context.Context, bizID int64) (*model.Business, error)
	Sets(ctx context.Context, ids []int64) (map[int64]*model.Set, error)
	Modules(ctx context.Context, ids []int64) (map[int64]*model.Module, error)
}

// Resolver 把告警目标解析为 CMDB 记录。一个 Resolver 只服务于一次渲染，
// 集群/模块的命中与缺失都会缓存在实例上。
type Resolver struct {
	cmdb CMDB

	mu      sync.Mutex
	sets    map[int64]*model.Set
	modules map[int64]*model.Module
	missing map[string]bool
}

func NewResolver(cmdb CMDB) *Resolver {
	return &Resolver{
		cmdb:    cmdb,
		sets:    make(map[int64]*model.Set),
		modules: make(map[int64]*model.Module),
		missing: make(map[string]bool),
	}
}

// HostLocator 从告警中提取的主机定位信息
type HostLocator struct {
	HostID  int64
	IP      string
	CloudID int64
}

// LocateHost 优先事件字段，其次维度
func LocateHost(a *model.AlertDocument) HostLocator {
	var loc HostLocator
	if a.Event.BkHostID != nil {
		loc.HostID = *a.Event.BkHostID
	} else if d, ok := a.DimensionValue("bk_host_id"); ok {
		loc.HostID, _ = strconv.ParseInt(d.Value, 10, 64)
	}
	loc.IP = a.Event.IP
	if loc.IP == "" {
		if d, ok := a.DimensionValue("bk_target_ip"); ok {
			loc.IP = d.Value
		}
	}
	if a.Event.BkCloudID != nil {
		loc.CloudID = *a.Event.BkCloudID
	} else if d, ok := a.DimensionValue("bk_target_cloud_id"); ok {
		loc.CloudID, _ = strconv.ParseInt(d.Value, 10, 64)
	}
	return loc
}

// ResolveHost 优先 bk_host_id，其次 (ip, bk_cloud_id)；未命中返回 nil
func (r *Resolver) ResolveHost(ctx context.Context, a *model.AlertDocument) *model.Host {
	if a == nil {
		return nil
	}
	loc := LocateHost(a)
	if loc.HostID > 0 {
		h, err := r.cmdb.HostByID(ctx, loc.HostID)
		if err == nil {
			return h
		}
		r.lookupFailed("host", err)
	}
	if loc.IP == "" {
		return nil
	}
	h, err := r.cmdb.HostByIP(ctx, loc.IP, loc.CloudID)
	if err != nil {
		r.lookupFailed("host", err)
		return nil
	}
	return h
}

// ResolveHosts 多实例聚合
func (r *Resolver) ResolveHosts(ctx context.Context, alerts []*model.AlertDocument) *MultiInstance {
	seen := make(map[string]bool)
	var hosts []*model.Host
	for _, a := range alerts {
		h := r.ResolveHost(ctx, a)
		if h == nil || seen[h.Key()] {
			continue
		}
		seen[h.Key()] = true
		hosts = append(hosts, h)
	}
	return NewMultiInstance(hosts)
}

func (r *Resolver) ResolveService(ctx context.Context, a *model.AlertDocument) *model.ServiceInstance {
	if a == nil {
		return nil
	}
	var id int64
	if a.Event.BkServiceInstanceID != nil {
		id = *a.Event.BkServiceInstanceID
	} else if d, ok := a.DimensionValue("bk_target_service_instance_id"); ok {
		id, _ = strconv.ParseInt(d.Value, 10, 64)
	}
	if id <= 0 {
		return nil
	}
	s, err := r.cmdb.ServiceInstance(ctx, id)
	if err != nil {
		r.lookupFailed("service_instance", err)
		return nil
	}
	return s
}

// ResolveBusiness 总是返回值，CMDB 中不存在时构造占位业务
func (r *Resolver) ResolveBusiness(ctx context.Context, bizID int64) *model.Business {
	b, err := r.cmdb.Business(ctx, bizID)
	if err != nil {
		r.lookupFailed("business", err)
		return &model.Business{BkBizID: bizID, BkBizName: strconv.FormatInt(bizID, 10), Stub: true}
	}
	return b
}

// ResolveSets 只返回能确认的集群
func (r *Resolver) ResolveSets(ctx context.Context, h *model.Host) []*model.Set {
	if h == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []int64
	for _, id := range h.BkSetIDs {
		if _, ok := r.sets[id]; !ok && !r.missing[missKey("set", id)] {
			pending = append(pending, id)
		}
	}
	if len(pending) > 0 {
		found, err := r.cmdb.Sets(ctx, pending)
		if err != nil {
			r.lookupFailed("set", err)
			return nil
		}
		for _, id := range pending {
			if s, ok := found[id]; ok {
				r.sets[id] = s
			} else {
				r.missing[missKey("set", id)] = true
				metrics.CMDBMisses.WithLabelValues("set").Inc()
			}
		}
	}
	var out []*model.Set
	for _, id := range h.BkSetIDs {
		if s, ok := r.sets[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *Resolver) ResolveModules(ctx context.Context, h *model.Host) []*model.Module {
	if h == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []int64
	for _, id := range h.BkModuleIDs {
		if _, ok := r.modules[id]; !ok && !r.missing[missKey("module", id)] {
			pending = append(pending, id)
		}
	}
	if len(pending) > 0 {
		found, err := r.cmdb.Modules(ctx, pending)
		if err != nil {
			r.lookupFailed("module", err)
			return nil
		}
		for _, id := range pending {
			if m, ok := found[id]; ok {
				r.modules[id] = m
			} else {
				r.missing[missKey("module", id)] = true
				metrics.CMDBMisses.WithLabelValues("module").Inc()
			}
		}
	}
	var out []*model.Module
	for _, id := range h.BkModuleIDs {
		if m, ok := r.modules[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (r *Resolver) lookupFailed(kind string, err error) {
	metrics.CMDBMisses.WithLabelValues(kind).Inc()
	if errors.Is(err, model.ErrNotFound) {
		return
	}
	log.Info().Err(err).Str("kind", kind).Msg("cmdb lookup failed")
}

func missKey(kind string, id int64) string { return kind + "|" + strconv.FormatInt(id, 10) }

// MultiInstance 多主机聚合视图，属性值为去重后逗号拼接的字符串
type MultiInstance struct {
	Hosts  []*model.Host
	fields map[string]string
}

func NewMultiInstance(hosts []*model.Host) *MultiInstance {
	mi := &MultiInstance{Hosts: hosts, fields: make(map[string]string)}
	for _, name := range model.HostFieldOrder {
		var values []string
		seen := make(map[string]bool)
		for _, h := range hosts {
			v := stringForm(h.Fields()[name])
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			values = append(values, v)
		}
		mi.fields[name] = strings.Join(values, ",")
	}
	return mi
}

// Get 聚合后的属性
func (m *MultiInstance) Get(name string) string { return m.fields[name] }

// Lookup 供模板按名称访问
func (m *MultiInstance) Lookup(name string) (any, bool) {
	if name == "count" {
		return len(m.Hosts), true
	}
	v, ok := m.fields[name]
	return v, ok
}

// Names 已聚合的属性名（有序）
func (m *MultiInstance) Names() []string {
	names := make([]string, 0, len(m.fields))
	for k := range m.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func stringForm(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case []int64:
		parts := make([]string, len(t))
		for i, x := range t {
			parts[i] = strconv.FormatInt(x, 10)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}
