package traffic

import (
	"context"
	"time"

	"deploy-orchestrator/internal/model"
)

// Weight 一个目标的流量权重(百分比)
type Weight struct {
	Target *model.Target
	Weight int
}

// Controller 流量控制接口, 对接路由层(反向代理/负载均衡)的控制面
//
// 路由层是外部事实源, 编排器不缓存流量状态; 任何调用失败都按不可重试错误
// 上抛, 由策略决定对该目标跳过还是回滚。
type Controller interface {
	// Drain 摘除目标流量, 之后等待 grace 让在途请求结束。
	// 等待期被上层超时截断不视为失败, 摘流动作本身已经生效。
	Drain(ctx context.Context, target *model.Target, grace time.Duration) error
	// Restore 恢复目标接流
	Restore(ctx context.Context, target *model.Target) error
	// SetWeights 整体下发一组权重, 一次调用整体生效, 由路由层保证原子切换
	SetWeights(ctx context.Context, weights []Weight) error
}
