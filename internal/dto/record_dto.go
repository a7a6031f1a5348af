package dto

import "time"

// RecordListParam 发布记录查询参数
type RecordListParam struct {
	PageQuery
	Outcome string     `form:"outcome" binding:"omitempty,oneof=success failed_health_check failed_rollback timed_out"` // 结果过滤
	Since   *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`                                           // 只看此时刻之后开始的记录
}

// RecordInfo 单条发布记录
type RecordInfo struct {
	ID               int64     `json:"id"`
	RequestID        string    `json:"request_id"`
	TargetID         int64     `json:"target_id"`
	TargetName       string    `json:"target_name"`
	PreviousVersion  *string   `json:"previous_version"`
	AttemptedVersion string    `json:"attempted_version"`
	ArtifactRef      string    `json:"artifact_ref"`
	Outcome          string    `json:"outcome"`
	Detail           string    `json:"detail,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}
