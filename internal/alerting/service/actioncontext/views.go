package actioncontext

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/converge"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/target"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/config"
	"github.com/rs/zerolog/log"
)

// snapshotStrategy 告警产生时携带的策略快照
func snapshotStrategy(alert *model.AlertDocument) *model.Strategy {
	if alert == nil {
		return nil
	}
	raw := alert.StrategySnapshot()
	if len(raw) == 0 {
		return nil
	}
	var s model.Strategy
	if err := json.Unmarshal(raw, &s); err != nil {
		log.Debug().Err(err).Str("alert_id", alert.ID).Msg("decode strategy snapshot failed")
		return nil
	}
	return &s
}

func (c *Context) NoticeConfig() config.NoticeConfig { return c.deps.Notice }

// TargetView 代表告警的 CMDB 目标
type TargetView struct {
	c *Context

	host    lazy[*model.Host]
	hosts   lazy[*target.MultiInstance]
	service lazy[*model.ServiceInstance]
	sets    lazy[[]*model.Set]
	modules lazy[[]*model.Module]
}

func (t *TargetView) Host() *model.Host {
	return t.host.get(func() *model.Host {
		return t.c.resolver.ResolveHost(t.c.ctx, t.c.Alert())
	})
}

// Hosts 全部告警的主机聚合
func (t *TargetView) Hosts() *target.MultiInstance {
	return t.hosts.get(func() *target.MultiInstance {
		return t.c.resolver.ResolveHosts(t.c.ctx, t.c.Alerts())
	})
}

// Processes 主机上的进程，服务实例优先
func (t *TargetView) Processes() []string {
	if s := t.ServiceInstance(); s != nil && len(s.Processes) > 0 {
		return s.Processes
	}
	if h := t.Host(); h != nil {
		return h.Processes
	}
	return nil
}

func (t *TargetView) ServiceInstance() *model.ServiceInstance {
	return t.service.get(func() *model.ServiceInstance {
		return t.c.resolver.ResolveService(t.c.ctx, t.c.Alert())
	})
}

func (t *TargetView) Sets() []*model.Set {
	return t.sets.get(func() []*model.Set {
		h := t.Host()
		if h == nil {
			return nil
		}
		return t.c.resolver.ResolveSets(t.c.ctx, h)
	})
}

func (t *TargetView) Modules() []*model.Module {
	return t.modules.get(func() []*model.Module {
		h := t.Host()
		if h == nil {
			return nil
		}
		return t.c.resolver.ResolveModules(t.c.ctx, h)
	})
}

func (t *TargetView) SetString() string {
	names := make([]string, 0)
	for _, s := range t.Sets() {
		names = append(names, s.BkSetName)
	}
	return strings.Join(names, ",")
}

func (t *TargetView) ModuleString() string {
	names := make([]string, 0)
	for _, m := range t.Modules() {
		names = append(names, m.BkModuleName)
	}
	return strings.Join(names, ",")
}

// EnvString 集群环境类型，去重
func (t *TargetView) EnvString() string {
	seen := make(map[string]bool)
	var envs []string
	for _, s := range t.Sets() {
		name := model.SetEnvNames[s.BkSetEnv]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		envs = append(envs, name)
	}
	return strings.Join(envs, ",")
}

func (t *TargetView) Business() *model.Business { return t.c.Business() }

var _ converge.Source = (*Context)(nil)

// ConvergeView 收敛相关的标量
type ConvergeView struct {
	c *Context

	keys lazy[converge.Keys]
}

// Keys 收敛键
func (v *ConvergeView) Keys() converge.Keys {
	return v.keys.get(func() converge.Keys { return converge.Build(v.c) })
}

func (v *ConvergeView) ConvergeType() model.ConvergeType { return v.c.ConvergeType() }

func (v *ConvergeView) Description() string {
	if v.c.converge != nil {
		return v.c.converge.Description
	}
	return ""
}

func (v *ConvergeView) RelatedActionCount() int { return len(v.c.RelatedActions()) }

func (v *ConvergeView) AlertCount() int { return len(v.c.Alerts()) }

// StrategyIDs 被收敛告警涉及的策略，按首次出现排序
func (v *ConvergeView) StrategyIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, a := range v.c.Alerts() {
		if a.StrategyID == 0 || seen[a.StrategyID] {
			continue
		}
		seen[a.StrategyID] = true
		ids = append(ids, a.StrategyID)
	}
	return ids
}

// ActionInstanceView 驱动动作的展示字段
type ActionInstanceView struct {
	c *Context
}

func (v *ActionInstanceView) instance() *model.ActionInstance {
	if v.c.action != nil {
		return v.c.action
	}
	return v.c.ExampleAction()
}

func (v *ActionInstanceView) ID() int64 {
	if a := v.instance(); a != nil {
		return a.ID
	}
	return 0
}

func (v *ActionInstanceView) Name() string {
	a := v.instance()
	if a == nil {
		return ""
	}
	if a.ActionConfig.Name != "" {
		return a.ActionConfig.Name
	}
	return a.ActionPlugin.Name
}

func (v *ActionInstanceView) PluginType() model.PluginType {
	if a := v.instance(); a != nil {
		return a.ActionPlugin.PluginType
	}
	return ""
}

func (v *ActionInstanceView) Status() model.ActionStatus {
	if a := v.instance(); a != nil {
		return a.Status
	}
	return ""
}

func (v *ActionInstanceView) Signal() model.ActionSignal { return v.c.Signal() }

func (v *ActionInstanceView) SignalName() string { return v.c.Signal().Name() }

func (v *ActionInstanceView) CreateTime() string {
	if a := v.instance(); a != nil {
		return a.CreateTime.In(v.c.loc).Format(time.DateTime)
	}
	return ""
}

func (v *ActionInstanceView) EndTime() string {
	if a := v.instance(); a != nil && a.EndTime != nil {
		return a.EndTime.In(v.c.loc).Format(time.DateTime)
	}
	return ""
}

// Content 动作执行摘要
func (v *ActionInstanceView) Content() string {
	a := v.instance()
	if a == nil {
		return ""
	}
	return strings.TrimSpace(v.Name() + " " + v.SignalName() + " " + string(a.Status))
}
