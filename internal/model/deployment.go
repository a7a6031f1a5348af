package model

import (
	"time"

	"gorm.io/datatypes"
)

const DeploymentRequestTableName = "deployment_requests"

// DeploymentRequest 发布请求
// 通过校验后落库, 请求本身不可变, 只有状态与结果字段会更新
type DeploymentRequest struct {
	BaseModel

	RequestID   string `gorm:"size:64;not null;uniqueIndex" json:"request_id"`
	ArtifactRef string `gorm:"size:255;not null" json:"artifact_ref"`
	Version     string `gorm:"size:128;not null" json:"version"`
	Strategy    string `gorm:"size:20;not null" json:"strategy"` // blue_green/rolling/canary

	// 目标集合: 显式ID列表(有序)或命名分组, 二选一
	TargetGroup string         `gorm:"size:63" json:"target_group"`
	TargetIDs   datatypes.JSON `gorm:"type:json" json:"target_ids"`

	// Config 提交时的策略配置快照
	Config datatypes.JSON `gorm:"type:json" json:"config"`

	Initiator string `gorm:"size:63" json:"initiator"`

	// 状态追踪
	Status string `gorm:"size:20;not null;default:pending;index" json:"status"`

	// Result 各目标最终结果(终态时写入)
	Result      datatypes.JSON `gorm:"type:json" json:"result"`
	ErrorDetail *string        `gorm:"type:text" json:"error_detail"`

	// 时间追踪
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// TableName 指定表名
func (DeploymentRequest) TableName() string {
	return DeploymentRequestTableName
}
