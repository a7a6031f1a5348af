package model

import (
	"time"
)

const DeploymentRecordTableName = "deployment_records"

// DeploymentRecord 单目标单次尝试的发布记录, 只追加不修改
// (target_id, outcome)联合索引保证last_success查询为索引查找而非全表扫描
type DeploymentRecord struct {
	BaseModel

	RequestID  string `gorm:"size:64;not null;index" json:"request_id"`
	TargetID   int64  `gorm:"not null;index:idx_records_target_outcome,priority:1" json:"target_id"`
	TargetName string `gorm:"size:63;not null" json:"target_name"`

	// PreviousVersion 尝试前的版本, nil表示首次部署
	PreviousVersion  *string `gorm:"size:128" json:"previous_version"`
	AttemptedVersion string  `gorm:"size:128;not null" json:"attempted_version"`

	// ArtifactRef 本次尝试安装的制品地址, 回滚时按最近成功记录取用
	ArtifactRef string `gorm:"size:255;not null" json:"artifact_ref"`

	// Outcome success/failed_health_check/failed_rollback/timed_out
	Outcome string  `gorm:"size:32;not null;index:idx_records_target_outcome,priority:2" json:"outcome"`
	Detail  *string `gorm:"type:text" json:"detail"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Relations
	Target *Target `gorm:"foreignKey:TargetID" json:"target,omitempty"`
}

// TableName 指定表名
func (DeploymentRecord) TableName() string {
	return DeploymentRecordTableName
}
