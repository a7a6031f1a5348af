package dto

import "time"

// SubmitDeploymentRequest 提交发布请求
//
// target_ids 和 target_group 二选一：按 ID 显式指定目标, 或按分组展开全部在役目标。
type SubmitDeploymentRequest struct {
	RequestID   string            `json:"request_id" binding:"omitempty,max=64"`                        // 可选：幂等标识, 不传则服务端生成
	ArtifactRef string            `json:"artifact_ref" binding:"required,max=255"`                      // 制品地址
	Version     string            `json:"version" binding:"required,max=128"`                           // 目标版本号
	Strategy    string            `json:"strategy" binding:"required,oneof=blue_green rolling canary"`  // 发布策略
	TargetIDs   []int64           `json:"target_ids" binding:"omitempty,min=1,dive,min=1"`              // 目标ID列表
	TargetGroup string            `json:"target_group" binding:"omitempty,max=63"`                      // 目标分组
	Config      *DeploymentConfig `json:"config"`                                                       // 策略参数, 缺省走服务端默认值
}

// DeploymentConfig 发布参数
type DeploymentConfig struct {
	BatchSize         int             `json:"batch_size" binding:"omitempty,min=1"`                  // 滚动批次大小
	RollbackSucceeded bool            `json:"rollback_succeeded"`                                    // 失败中止时是否连带回滚已成功目标
	CanaryCount       int             `json:"canary_count" binding:"omitempty,min=1"`                // 金丝雀目标数量
	CanaryWeights     []int           `json:"canary_weights" binding:"omitempty,dive,min=1,max=99"`  // 金丝雀权重爬坡序列（百分比）
	WindowSamples     int             `json:"window_samples" binding:"omitempty,min=1"`              // 观察窗口采样次数
	SampleInterval    string          `json:"sample_interval"`                                       // 采样间隔, Go duration
	ErrorThreshold    float64         `json:"error_threshold" binding:"omitempty,gt=0,lte=100"`      // 错误率阈值（百分比）
	Timeout           string          `json:"timeout"`                                               // 整次发布超时, Go duration
	DrainGrace        string          `json:"drain_grace"`                                           // 摘流后的静默时间, Go duration
	Health            *HealthOverride `json:"health"`                                                // 健康检查覆盖参数
}

// HealthOverride 单次发布的健康检查覆盖参数
type HealthOverride struct {
	Path             string `json:"path" binding:"omitempty,startswith=/"`
	Port             int    `json:"port" binding:"omitempty,min=1,max=65535"`
	Timeout          string `json:"timeout"`
	Retries          *int   `json:"retries" binding:"omitempty,min=0,max=10"`
	Backoff          string `json:"backoff" binding:"omitempty,oneof=fixed exponential"`
	BackoffBase      string `json:"backoff_base"`
	SuccessThreshold int    `json:"success_threshold" binding:"omitempty,min=1,max=10"`
}

// DeploymentListParam 发布单列表查询参数
type DeploymentListParam struct {
	PageQuery
	Statuses  []string `form:"statuses" binding:"omitempty,dive,oneof=pending running succeeded failed rolled_back timed_out"` // 状态过滤
	Strategy  string   `form:"strategy" binding:"omitempty,oneof=blue_green rolling canary"`                                 // 策略过滤
	Initiator string   `form:"initiator"`                                                                                    // 发起账号过滤
}

// DeploymentInfo 发布单信息
type DeploymentInfo struct {
	ID          int64      `json:"id"`
	RequestID   string     `json:"request_id"`
	ArtifactRef string     `json:"artifact_ref"`
	Version     string     `json:"version"`
	Strategy    string     `json:"strategy"`
	TargetGroup string     `json:"target_group,omitempty"`
	TargetIDs   []int64    `json:"target_ids,omitempty"`
	Initiator   string     `json:"initiator"`
	Status      string     `json:"status"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TargetOutcome 单个目标的发布结果
type TargetOutcome struct {
	TargetID     int64   `json:"target_id"`
	TargetName   string  `json:"target_name"`
	Address      string  `json:"address"`
	Outcome      string  `json:"outcome"`
	FinalVersion *string `json:"final_version"`
	Detail       string  `json:"detail,omitempty"`
}

// DeploymentOutcome 发布单执行结果
type DeploymentOutcome struct {
	DeploymentInfo
	Targets []TargetOutcome `json:"targets"`
}
