package model

import (
	"errors"
	"fmt"
)

// 错误分类，调用方通过 errors.Is 判断
var (
	// ErrNotFound 告警、策略、主机等不存在，渲染路径上只会体现为空字段
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied 租户不匹配
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidInput 不支持的查询条件等
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream 依赖服务（AIOps、指标缓存、ES）失败
	ErrUpstream = errors.New("upstream failure")
	// ErrAIOpsNotEnabled 业务未开启 AIOps
	ErrAIOpsNotEnabled = errors.New("aiops not enabled")
)

// PermissionError 策略与请求业务不一致
type PermissionError struct {
	BizID      int64
	StrategyID int64
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("strategy %d does not belong to business %d", e.StrategyID, e.BizID)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// UpstreamError 依赖服务错误，Service 标识来源
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }
