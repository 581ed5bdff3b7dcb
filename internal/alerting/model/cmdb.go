package model

import (
	"fmt"
	"strconv"
)

// Host CMDB 主机
type Host struct {
	BkHostID      int64    `json:"bk_host_id"`
	IP            string   `json:"bk_host_innerip"`
	BkCloudID     int64    `json:"bk_cloud_id"`
	BkCloudName   string   `json:"bk_cloud_name,omitempty"`
	BkHostName    string   `json:"bk_host_name"`
	BkOsType      string   `json:"bk_os_type"`
	BkOsName      string   `json:"bk_os_name"`
	BkBizID       int64    `json:"bk_biz_id"`
	BkSetIDs      []int64  `json:"bk_set_ids"`
	BkModuleIDs   []int64  `json:"bk_module_ids"`
	Operator      []string `json:"operator"`
	BkBakOperator []string `json:"bk_bak_operator"`
	Processes     []string `json:"processes,omitempty"`
}

// Key 主机缓存键 <ip>|<cloud>
func (h *Host) Key() string { return HostKey(h.IP, h.BkCloudID) }

func HostKey(ip string, cloudID int64) string {
	return ip + "|" + strconv.FormatInt(cloudID, 10)
}

// DisplayName ip 与管控区域
func (h *Host) DisplayName() string {
	return fmt.Sprintf("%s[%d]", h.IP, h.BkCloudID)
}

// Fields 多实例聚合时使用的属性
func (h *Host) Fields() map[string]any {
	return map[string]any{
		"bk_host_id":      h.BkHostID,
		"bk_host_innerip": h.IP,
		"bk_cloud_id":     h.BkCloudID,
		"bk_host_name":    h.BkHostName,
		"bk_os_type":      h.BkOsType,
		"bk_os_name":      h.BkOsName,
		"bk_set_ids":      h.BkSetIDs,
		"bk_module_ids":   h.BkModuleIDs,
		"operator":        h.Operator,
		"bk_bak_operator": h.BkBakOperator,
	}
}

// HostFieldOrder 聚合视图中的属性顺序
var HostFieldOrder = []string{
	"bk_host_id", "bk_host_innerip", "bk_cloud_id", "bk_host_name", "bk_os_type",
	"bk_os_name", "bk_set_ids", "bk_module_ids", "operator", "bk_bak_operator",
}

// TopoNode 拓扑节点
type TopoNode struct {
	BkObjID    string `json:"bk_obj_id"`
	BkInstID   int64  `json:"bk_inst_id"`
	BkInstName string `json:"bk_inst_name,omitempty"`
}

// Key obj|id
func (n TopoNode) Key() string { return n.BkObjID + "|" + strconv.FormatInt(n.BkInstID, 10) }

// TopoTree 业务拓扑树
type TopoTree struct {
	TopoNode
	Child []*TopoTree `json:"child"`
}

// Links 每个节点到根的链路（含自身），键为 obj|id
func (t *TopoTree) Links() map[string][]TopoNode {
	links := make(map[string][]TopoNode)
	var walk func(n *TopoTree, path []TopoNode)
	walk = func(n *TopoTree, path []TopoNode) {
		chain := make([]TopoNode, 0, len(path)+1)
		chain = append(chain, n.TopoNode)
		for i := len(path) - 1; i >= 0; i-- {
			chain = append(chain, path[i])
		}
		links[n.Key()] = chain
		next := append(append([]TopoNode(nil), path...), n.TopoNode)
		for _, c := range n.Child {
			walk(c, next)
		}
	}
	if t != nil {
		walk(t, nil)
	}
	return links
}

// ServiceInstance 服务实例
type ServiceInstance struct {
	ServiceInstanceID int64    `json:"service_instance_id"`
	Name              string   `json:"name"`
	BkHostID          int64    `json:"bk_host_id"`
	BkModuleID        int64    `json:"bk_module_id"`
	Processes         []string `json:"processes,omitempty"`
}

// Business CMDB 业务
type Business struct {
	BkBizID         int64    `json:"bk_biz_id"`
	BkBizName       string   `json:"bk_biz_name"`
	BkBizMaintainer []string `json:"bk_biz_maintainer,omitempty"`
	// Stub 为 true 表示 CMDB 中不存在，仅由 id 构造
	Stub bool `json:"-"`
}

// DisplayName [id] name
func (b *Business) DisplayName() string {
	return fmt.Sprintf("[%d] %s", b.BkBizID, b.BkBizName)
}

// Set CMDB 集群
type Set struct {
	BkSetID       int64  `json:"bk_set_id"`
	BkSetName     string `json:"bk_set_name"`
	BkSetEnv      string `json:"bk_set_env,omitempty"`
	SetTemplateID int64  `json:"set_template_id"`
}

// Module CMDB 模块
type Module struct {
	BkModuleID        int64  `json:"bk_module_id"`
	BkModuleName      string `json:"bk_module_name"`
	BkSetID           int64  `json:"bk_set_id"`
	ServiceTemplateID int64  `json:"service_template_id"`
}

// SetEnvNames 环境类型
var SetEnvNames = map[string]string{
	"1": "测试",
	"2": "体验",
	"3": "正式",
}
