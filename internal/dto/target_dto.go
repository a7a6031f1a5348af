package dto

import "time"

// TargetListParam 目标列表查询参数
type TargetListParam struct {
	PageQuery
	Group        string `form:"group" binding:"omitempty,max=63"`
	Pool         string `form:"pool" binding:"omitempty,oneof=blue green"`
	RoutingState string `form:"routing_state" binding:"omitempty,oneof=in_rotation draining drained"`
}

// CreateTargetRequest 注册目标请求
type CreateTargetRequest struct {
	Name    string            `json:"name" binding:"required,min=2,max=63"`
	Address string            `json:"address" binding:"required,hostname_port"`
	Group   string            `json:"group" binding:"omitempty,max=63"`
	Pool    string            `json:"pool" binding:"omitempty,oneof=blue green"`
	Labels  map[string]string `json:"labels"`
}

// UpdateTargetRequest 更新目标请求
type UpdateTargetRequest struct {
	Address string            `json:"address" binding:"omitempty,hostname_port"`
	Group   *string           `json:"group" binding:"omitempty,max=63"`
	Pool    *string           `json:"pool" binding:"omitempty,oneof=blue green"`
	Labels  map[string]string `json:"labels"`
}

// UpdateRoutingRequest 手动调整目标路由状态请求
type UpdateRoutingRequest struct {
	RoutingState string `json:"routing_state" binding:"required,oneof=in_rotation draining drained"`
}

// TargetInfo 目标信息
type TargetInfo struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Address        string            `json:"address"`
	Group          string            `json:"group,omitempty"`
	Pool           string            `json:"pool,omitempty"`
	CurrentVersion *string           `json:"current_version"`
	RoutingState   string            `json:"routing_state"`
	Labels         map[string]string `json:"labels,omitempty"`
	Status         int8              `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}
