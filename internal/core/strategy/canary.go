package strategy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"deploy-orchestrator/internal/adapter/metrics"
	"deploy-orchestrator/internal/adapter/traffic"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
	"deploy-orchestrator/pkg/errors"
)

// Canary 金丝雀发布: 先发少量目标, 按权重序列爬坡并观察错误率
//
// 任一观察窗口内错误率越过阈值即熔断: 掐断金丝雀流量并回滚金丝雀目标,
// 其余目标全程不受影响。指标源不可用同样按熔断处理, 宁可错杀。全部档位
// 观察通过后, 其余目标按滚动批次推广。
type Canary struct {
	deps Deps
}

// NewCanary 创建金丝雀策略
func NewCanary(deps Deps) *Canary {
	return &Canary{deps: deps}
}

// Kind 策略类型
func (s *Canary) Kind() string {
	return constants.StrategyCanary
}

// Validate 校验金丝雀参数
func (s *Canary) Validate(run *Run) error {
	cfg := run.Config
	if len(run.Targets) == 0 {
		return errors.New(errors.CodeBadRequest, "没有可发布的目标")
	}
	if cfg.CanaryCount < 1 {
		return errors.New(errors.CodeBadRequest, "金丝雀数量必须大于 0")
	}
	if cfg.CanaryCount >= len(run.Targets) {
		return errors.New(errors.CodeBadRequest, "金丝雀数量必须小于目标总数")
	}
	if len(cfg.CanaryWeights) == 0 {
		return errors.New(errors.CodeBadRequest, "缺少金丝雀权重爬坡序列")
	}
	for _, w := range cfg.CanaryWeights {
		if w < 1 || w > 99 {
			return errors.New(errors.CodeBadRequest, fmt.Sprintf("金丝雀权重 %d 超出 1-99", w))
		}
	}
	if cfg.WindowSamples < 1 {
		return errors.New(errors.CodeBadRequest, "观察窗口采样次数必须大于 0")
	}
	if cfg.SampleInterval <= 0 {
		return errors.New(errors.CodeBadRequest, "采样间隔必须大于 0")
	}
	if cfg.ErrorThreshold <= 0 {
		return errors.New(errors.CodeBadRequest, "错误率阈值必须大于 0")
	}
	if cfg.BatchSize < 1 {
		return errors.New(errors.CodeBadRequest, "批次大小必须大于 0")
	}
	return nil
}

// Execute 金丝雀先行 -> 权重爬坡观察 -> 全量推广 -> 权重复位
func (s *Canary) Execute(ctx context.Context, run *Run) (*Result, error) {
	exec := newExecutor(s.deps, run)
	cfg := run.Config

	canaries := run.Targets[:cfg.CanaryCount]
	fleet := run.Targets[cfg.CanaryCount:]

	// 金丝雀先行, 逐个发布
	for _, target := range canaries {
		if err := run.Checkpoint(); err != nil {
			return s.abort(exec, run, canaries, "全局超时, 金丝雀阶段中止", false)
		}
		result, err := exec.deployTarget(ctx, target)
		if err != nil {
			return nil, err
		}
		if result.Outcome != constants.OutcomeSuccess {
			return s.abort(exec, run, canaries,
				fmt.Sprintf("金丝雀目标 %s 发布失败", target.Name), false)
		}
	}

	// 权重爬坡, 每个档位走完一个观察窗口
	for _, percent := range cfg.CanaryWeights {
		if err := run.Checkpoint(); err != nil {
			return s.abort(exec, run, canaries, "全局超时, 观察期中止", true)
		}
		if err := s.deps.Traffic.SetWeights(ctx, canaryWeights(canaries, fleet, percent)); err != nil {
			return s.abort(exec, run, canaries,
				fmt.Sprintf("调整金丝雀权重失败: %v", err), true)
		}
		s.deps.Logger.Info("金丝雀权重已上调",
			zap.String("request_id", run.Request.RequestID),
			zap.Int("percent", percent))

		for i := 0; i < cfg.WindowSamples; i++ {
			if err := run.Checkpoint(); err != nil {
				return s.abort(exec, run, canaries, "全局超时, 观察期中止", true)
			}
			scope := metrics.Scope{Group: run.Request.TargetGroup, Targets: canaries}
			rate, err := s.deps.Metrics.ErrorRate(ctx, scope)
			if err != nil {
				return s.abort(exec, run, canaries,
					fmt.Sprintf("指标源不可用, 保守熔断: %v", err), true)
			}
			if rate > cfg.ErrorThreshold {
				return s.abort(exec, run, canaries,
					fmt.Sprintf("错误率 %.2f%% 超过阈值 %.2f%% (权重 %d%%, 第 %d 次采样)",
						rate, cfg.ErrorThreshold, percent, i+1), true)
			}
			if i < cfg.WindowSamples-1 {
				time.Sleep(cfg.SampleInterval)
			}
		}
	}

	s.deps.Logger.Info("金丝雀观察通过, 开始全量推广",
		zap.String("request_id", run.Request.RequestID),
		zap.Int("fleet", len(fleet)))

	// 全量推广, 复用滚动批次
	halted, err := deployInBatches(ctx, exec, run, fleet)
	if err != nil {
		return nil, err
	}
	if halted == "" && run.Cancelled() {
		halted = "全局超时, 停止推进"
	}
	if halted != "" {
		run.MarkSkipped(halted)
		if cfg.RollbackSucceeded {
			if err := rollbackSucceeded(exec, run, halted); err != nil {
				return nil, err
			}
		}
		if err := s.rebalance(context.Background(), run); err != nil {
			s.deps.Logger.Error("恢复均衡权重失败", zap.Error(err))
		}
		return finalize(run, halted), nil
	}

	// 推广完成, 权重复位; 晚到的取消不再改变结果
	detail := ""
	if err := s.rebalance(ctx, run); err != nil {
		detail = fmt.Sprintf("发布完成但权重复位失败, 需人工调整: %v", err)
		s.deps.Logger.Error("恢复均衡权重失败", zap.Error(err))
	}
	return &Result{Status: constants.RunStatusSucceeded, Targets: run.Results(), Detail: detail}, nil
}

// abort 熔断收尾: 掐断金丝雀流量, 回滚已发布的金丝雀, 其余目标记跳过
//
// rampStarted 标记权重是否已被本次运行改动过, 没动过就不做权重复位,
// 以免覆盖运行之外配置的权重。
func (s *Canary) abort(exec *executor, run *Run, canaries []*model.Target, reason string, rampStarted bool) (*Result, error) {
	s.deps.Logger.Warn("金丝雀发布熔断",
		zap.String("request_id", run.Request.RequestID),
		zap.String("reason", reason))

	// 熔断清理不随运行取消
	ctx := context.Background()

	if rampStarted {
		fleet := run.Targets[run.Config.CanaryCount:]
		if err := s.deps.Traffic.SetWeights(ctx, canaryWeights(canaries, fleet, 0)); err != nil {
			s.deps.Logger.Error("掐断金丝雀流量失败", zap.Error(err))
		}
	}

	succeeded := run.SucceededTargets()
	for i := len(succeeded) - 1; i >= 0; i-- {
		if _, err := exec.rollbackCommitted(succeeded[i], "金丝雀熔断: "+reason); err != nil {
			return nil, err
		}
	}
	run.MarkSkipped(reason + ", 未发布")

	if rampStarted {
		if err := s.rebalance(ctx, run); err != nil {
			s.deps.Logger.Error("恢复均衡权重失败", zap.Error(err))
		}
	}
	return finalize(run, reason), nil
}

// rebalance 权重复位: 全员等权, 回滚失败仍摘流的目标除外
func (s *Canary) rebalance(ctx context.Context, run *Run) error {
	weights := make([]traffic.Weight, 0, len(run.Targets))
	for _, target := range run.Targets {
		weight := 1
		if result, ok := run.ResultFor(target.ID); ok && result.Outcome == constants.OutcomeFailedRollback {
			weight = 0
		}
		weights = append(weights, traffic.Weight{Target: target, Weight: weight})
	}
	return s.deps.Traffic.SetWeights(ctx, weights)
}

// canaryWeights 构造金丝雀分流权重
//
// 相对权重的整数化: 金丝雀成员取 percent×|fleet|, 其余成员取
// (100-percent)×|canaries|, 两组总权重之比恰为 percent:(100-percent),
// 与两组的数量无关。
func canaryWeights(canaries, fleet []*model.Target, percent int) []traffic.Weight {
	weights := make([]traffic.Weight, 0, len(canaries)+len(fleet))
	for _, target := range canaries {
		weights = append(weights, traffic.Weight{Target: target, Weight: percent * len(fleet)})
	}
	for _, target := range fleet {
		weights = append(weights, traffic.Weight{Target: target, Weight: (100 - percent) * len(canaries)})
	}
	return weights
}
