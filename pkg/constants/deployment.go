package constants

// StrategyKind 发布策略类型
const (
	StrategyBlueGreen = "blue_green"
	StrategyRolling   = "rolling"
	StrategyCanary    = "canary"
)

// RunStatus 发布请求的生命周期状态
const (
	RunStatusPending    = "pending"
	RunStatusRunning    = "running"
	RunStatusSucceeded  = "succeeded"
	RunStatusRolledBack = "rolled_back"
	RunStatusFailed     = "failed"
	RunStatusTimedOut   = "timed_out"

	// RunStatusRejected 仅出现在同步响应中, 被拒绝的请求不落库
	RunStatusRejected = "rejected"
)

// runTerminalStatus 终态集合
var runTerminalStatus = map[string]struct{}{
	RunStatusSucceeded:  {},
	RunStatusRolledBack: {},
	RunStatusFailed:     {},
	RunStatusTimedOut:   {},
}

// IsRunTerminal 判断请求状态是否为终态
func IsRunTerminal(status string) bool {
	_, ok := runTerminalStatus[status]
	return ok
}

// Outcome 单目标结果
// 前四种会写入发布记录; rolled_back / skipped 仅出现在结果汇总中
const (
	OutcomeSuccess           = "success"
	OutcomeFailedHealthCheck = "failed_health_check"
	OutcomeFailedRollback    = "failed_rollback"
	OutcomeTimedOut          = "timed_out"
	OutcomeRolledBack        = "rolled_back"
	OutcomeSkipped           = "skipped"
)

// RoutingState 目标的流量状态
const (
	RoutingInRotation = "in_rotation"
	RoutingDraining   = "draining"
	RoutingDrained    = "drained"
)

// TargetStatus 目标状态, 退役的目标保留历史不删除
const (
	TargetStatusRetired int8 = 0
	TargetStatusActive  int8 = 1
)

// Pool 蓝绿池标签
const (
	PoolBlue  = "blue"
	PoolGreen = "green"
)
