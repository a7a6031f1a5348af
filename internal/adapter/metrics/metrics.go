package metrics

import (
	"context"

	"deploy-orchestrator/internal/model"
)

// Scope 采样范围, 限定到金丝雀组
type Scope struct {
	Group   string
	Targets []*model.Target
}

// Source 错误率数据源, 金丝雀观察期轮询的外部指标
//
// 返回范围内目标在尾随窗口上的错误率(百分比, 0~100)。
type Source interface {
	ErrorRate(ctx context.Context, scope Scope) (float64, error)
}
