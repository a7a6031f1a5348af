package model

import (
	"gorm.io/datatypes"
)

const TargetTableName = "targets"

// Target 部署目标(主机/实例)
// 退役的目标保留行与历史记录, 不做物理删除
type Target struct {
	BaseModel

	Name    string `gorm:"size:63;not null;uniqueIndex" json:"name"`
	Address string `gorm:"size:255;not null" json:"address"`                      // host:port
	Group   string `gorm:"column:group_name;size:63;not null;index" json:"group"` // 目标分组
	Pool    string `gorm:"size:16" json:"pool"`                                   // blue/green, 蓝绿策略使用

	// CurrentVersion 注册表视角的当前版本, nil表示从未部署
	CurrentVersion *string `gorm:"size:128" json:"current_version"`

	// RoutingState 流量状态: in_rotation/draining/drained
	RoutingState string `gorm:"size:20;not null;default:in_rotation" json:"routing_state"`

	Labels datatypes.JSONMap `gorm:"type:json" json:"labels"`

	Status int8 `gorm:"not null;default:1;index" json:"status"` // 1:在役 0:退役
}

// TableName 指定表名
func (Target) TableName() string {
	return TargetTableName
}

// Retired 是否已退役
func (t *Target) Retired() bool {
	return t.Status != 1
}
