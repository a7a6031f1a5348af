package strategy

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
	"deploy-orchestrator/pkg/errors"
)

// Rolling 滚动发布: 按批次就地替换在役目标
//
// 批内并发, 批间串行。任一目标失败即停止推进, 默认保留已成功目标的新版本,
// 配置 rollback_succeeded 后中止时连带回滚。
type Rolling struct {
	deps Deps
}

// NewRolling 创建滚动策略
func NewRolling(deps Deps) *Rolling {
	return &Rolling{deps: deps}
}

// Kind 策略类型
func (s *Rolling) Kind() string {
	return constants.StrategyRolling
}

// Validate 校验滚动参数
func (s *Rolling) Validate(run *Run) error {
	if len(run.Targets) == 0 {
		return errors.New(errors.CodeBadRequest, "没有可发布的目标")
	}
	if run.Config.BatchSize < 1 {
		return errors.New(errors.CodeBadRequest, "批次大小必须大于 0")
	}
	return nil
}

// Execute 按批次推进, 全部批次完成或推进被打断时收束
func (s *Rolling) Execute(ctx context.Context, run *Run) (*Result, error) {
	exec := newExecutor(s.deps, run)

	halted, err := deployInBatches(ctx, exec, run, run.Targets)
	if err != nil {
		return nil, err
	}
	if halted == "" && run.Cancelled() {
		halted = "全局超时, 停止推进"
	}
	if halted != "" {
		run.MarkSkipped(halted)
		if run.Config.RollbackSucceeded {
			if err := rollbackSucceeded(exec, run, halted); err != nil {
				return nil, err
			}
		}
	}
	return finalize(run, halted), nil
}

// deployInBatches 按批次大小切分目标并逐批发布
//
// 返回非空的 halted 表示推进被打断(批内失败或全局超时), 收尾由调用方负责:
// 尚无结果的目标此时还未登记任何状态。
func deployInBatches(ctx context.Context, exec *executor, run *Run, targets []*model.Target) (string, error) {
	batches := lo.Chunk(targets, run.Config.BatchSize)

	for i, batch := range batches {
		if err := run.Checkpoint(); err != nil {
			return "全局超时, 停止推进", nil
		}

		exec.deps.Logger.Info("开始发布批次",
			zap.String("request_id", run.Request.RequestID),
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("size", len(batch)))

		var g errgroup.Group
		for _, target := range batch {
			target := target
			g.Go(func() error {
				_, err := exec.deployTarget(ctx, target)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return "", err
		}

		// 批内任一目标未留在新版本上, 就不再推进后续批次
		for _, target := range batch {
			result, ok := run.ResultFor(target.ID)
			if !ok {
				continue
			}
			if result.Outcome == constants.OutcomeRolledBack || result.Outcome == constants.OutcomeFailedRollback {
				return fmt.Sprintf("目标 %s 未能完成发布, 停止推进", target.Name), nil
			}
		}
	}
	return "", nil
}

// rollbackSucceeded 连带回滚本次已成功的目标, 按与发布相反的顺序
func rollbackSucceeded(exec *executor, run *Run, reason string) error {
	succeeded := run.SucceededTargets()
	for i := len(succeeded) - 1; i >= 0; i-- {
		if _, err := exec.rollbackCommitted(succeeded[i], "连带回滚: "+reason); err != nil {
			return err
		}
	}
	return nil
}
