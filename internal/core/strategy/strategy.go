package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"deploy-orchestrator/internal/adapter/installer"
	"deploy-orchestrator/internal/adapter/metrics"
	"deploy-orchestrator/internal/adapter/traffic"
	"deploy-orchestrator/internal/core/health"
	"deploy-orchestrator/internal/registry"
	"deploy-orchestrator/internal/versionstore"
	"deploy-orchestrator/pkg/constants"
)

// Config 一次发布的生效参数, 提交时整体快照到请求上
//
// 时长字段以纳秒整数入库, 对外的字符串形态在 DTO 层转换。
type Config struct {
	BatchSize         int            `json:"batch_size"`         // 滚动批次大小
	RollbackSucceeded bool           `json:"rollback_succeeded"` // 中止时是否连带回滚本次已成功的目标
	CanaryCount       int            `json:"canary_count"`       // 金丝雀目标数量
	CanaryWeights     []int          `json:"canary_weights"`     // 金丝雀权重爬坡序列(百分比)
	WindowSamples     int            `json:"window_samples"`     // 每个权重档位的采样次数
	SampleInterval    time.Duration  `json:"sample_interval"`    // 采样间隔
	ErrorThreshold    float64        `json:"error_threshold"`    // 错误率阈值(百分比)
	Timeout           time.Duration  `json:"timeout"`            // 整次发布的全局超时
	RollbackTimeout   time.Duration  `json:"rollback_timeout"`   // 单目标回滚预算, 回滚不随请求取消
	DrainGrace        time.Duration  `json:"drain_grace"`        // 摘流后等待在途请求结束的时间
	Health            health.Options `json:"health"`             // 健康检查参数
}

// ParseConfig 解析请求上的参数快照
func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	if len(raw) == 0 {
		return cfg, fmt.Errorf("请求缺少参数快照")
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("解析参数快照失败: %w", err)
	}
	return cfg, nil
}

// Marshal 序列化参数快照
func (c Config) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Deps 策略运行所需的协作方, 全部显式注入
type Deps struct {
	Registry  *registry.Registry
	Store     versionstore.Store
	Prober    health.Prober
	Traffic   traffic.Controller
	Installer installer.Installer
	Metrics   metrics.Source
	Logger    *zap.Logger
}

// TargetResult 单目标的净结果
//
// Outcome 取值: success / rolled_back / failed_rollback / skipped。
// 发布记录里的过程性结果(failed_health_check等)通过 Detail 与记录表还原。
type TargetResult struct {
	TargetID     int64   `json:"target_id"`
	TargetName   string  `json:"target_name"`
	Address      string  `json:"address"`
	Outcome      string  `json:"outcome"`
	FinalVersion *string `json:"final_version"`
	Detail       string  `json:"detail,omitempty"`
}

// Result 一次策略运行的终局
type Result struct {
	Status  string         `json:"status"` // succeeded / rolled_back / failed / timed_out
	Targets []TargetResult `json:"targets"`
	Detail  string         `json:"detail,omitempty"`
}

// Strategy 发布策略
//
// 三种策略共享同一状态机形态: PENDING -> IN_PROGRESS -> {SUCCEEDED,
// ROLLED_BACK, FAILED}, 外加全局超时导致的 TIMED_OUT。Execute 把运行推进到
// 终态, 运行级失败通过 Result.Status 表达; 返回 error 仅用于账本等基础设施
// 故障, 此时运行结果不可信。
type Strategy interface {
	Kind() string
	// Validate 校验参数与目标集合, 不产生任何副作用
	Validate(run *Run) error
	// Execute 驱动运行到终态
	Execute(ctx context.Context, run *Run) (*Result, error)
}

// finalize 汇总运行终局
//
// 严重度排序: 回滚失败(需人工介入) > 全局超时 > 已回滚 > 成功。
func finalize(run *Run, detail string) *Result {
	results := run.Results()

	status := constants.RunStatusSucceeded
	rolledBack := false
	for _, r := range results {
		switch r.Outcome {
		case constants.OutcomeFailedRollback:
			return &Result{Status: constants.RunStatusFailed, Targets: results, Detail: detail}
		case constants.OutcomeRolledBack:
			rolledBack = true
		}
	}
	if run.Cancelled() {
		status = constants.RunStatusTimedOut
	} else if rolledBack {
		status = constants.RunStatusRolledBack
	}
	return &Result{Status: status, Targets: results, Detail: detail}
}
