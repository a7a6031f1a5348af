package strategy

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deploy-orchestrator/internal/adapter/traffic"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
	"deploy-orchestrator/pkg/errors"
)

// BlueGreen 蓝绿发布: 预热备用池, 全员验证通过后整体切流
//
// 全有或全无: 备用池任一目标预热失败, 整个备用池回滚, 在役池不受影响。
// 切流是单次原子提交, 提交之后旧池摘流只是清理, 失败不再影响结果。
type BlueGreen struct {
	deps Deps
}

// NewBlueGreen 创建蓝绿策略
func NewBlueGreen(deps Deps) *BlueGreen {
	return &BlueGreen{deps: deps}
}

// Kind 策略类型
func (s *BlueGreen) Kind() string {
	return constants.StrategyBlueGreen
}

// Validate 校验目标集合能划分出在役池和备用池
func (s *BlueGreen) Validate(run *Run) error {
	if len(run.Targets) == 0 {
		return errors.New(errors.CodeBadRequest, "没有可发布的目标")
	}
	_, _, err := splitPools(run.Targets)
	return err
}

// Execute 预热备用池 -> 整体切流 -> 旧池摘流
func (s *BlueGreen) Execute(ctx context.Context, run *Run) (*Result, error) {
	exec := newExecutor(s.deps, run)
	reg := s.deps.Registry

	active, standby, err := splitPools(run.Targets)
	if err != nil {
		return nil, err
	}

	// 预热备用池, 并发安装并验证
	var g errgroup.Group
	for _, target := range standby {
		target := target
		g.Go(func() error {
			_, err := exec.stageTarget(ctx, target)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	staged := make([]*model.Target, 0, len(standby))
	abortReason := ""
	for _, target := range standby {
		result, ok := run.ResultFor(target.ID)
		if !ok {
			continue
		}
		switch result.Outcome {
		case constants.OutcomeSuccess:
			staged = append(staged, target)
		case constants.OutcomeSkipped:
			// 全局超时导致的跳过由下方的取消检查统一处理
		default:
			if abortReason == "" {
				abortReason = fmt.Sprintf("目标 %s 预热失败", target.Name)
			}
		}
	}
	if abortReason == "" {
		if err := run.Checkpoint(); err != nil {
			abortReason = "全局超时, 切流前中止"
		}
	}
	if abortReason != "" {
		return s.abort(exec, run, staged, abortReason)
	}

	s.deps.Logger.Info("备用池预热完成, 开始切流",
		zap.String("request_id", run.Request.RequestID),
		zap.Int("standby", len(standby)),
		zap.Int("active", len(active)))

	// 整体切流: 新池权重拉满, 旧池归零, 单次原子提交
	weights := make([]traffic.Weight, 0, len(run.Targets))
	for _, target := range standby {
		weights = append(weights, traffic.Weight{Target: target, Weight: 100})
	}
	for _, target := range active {
		weights = append(weights, traffic.Weight{Target: target, Weight: 0})
	}
	if err := s.deps.Traffic.SetWeights(ctx, weights); err != nil {
		return s.abort(exec, run, staged, fmt.Sprintf("切流失败: %v", err))
	}

	// 角色互换
	for _, target := range standby {
		if err := reg.MarkRoutingState(target.ID, constants.RoutingInRotation); err != nil {
			return nil, err
		}
	}
	for _, target := range active {
		if err := reg.MarkRoutingState(target.ID, constants.RoutingDraining); err != nil {
			return nil, err
		}
	}

	// 旧池摘流等在途请求, 尽力而为
	for _, target := range active {
		detail := "切流完成, 转为备用池, 版本未变"
		if err := s.deps.Traffic.Drain(ctx, target, run.Config.DrainGrace); err != nil {
			detail = fmt.Sprintf("%s; 摘流失败: %v", detail, err)
			s.deps.Logger.Warn("旧池摘流失败",
				zap.String("target", target.Name), zap.Error(err))
		}
		if err := reg.MarkRoutingState(target.ID, constants.RoutingDrained); err != nil {
			return nil, err
		}
		exec.netResult(target, constants.OutcomeSkipped, target.CurrentVersion, detail)
	}

	s.deps.Logger.Info("蓝绿发布完成",
		zap.String("request_id", run.Request.RequestID),
		zap.String("version", run.Request.Version))

	// 切流已提交, 晚到的取消不再改变结果
	return &Result{Status: constants.RunStatusSucceeded, Targets: run.Results()}, nil
}

// abort 切流前中止: 回滚所有已预热成功的备用目标, 在役池保持原样
func (s *BlueGreen) abort(exec *executor, run *Run, staged []*model.Target, reason string) (*Result, error) {
	s.deps.Logger.Warn("蓝绿发布中止",
		zap.String("request_id", run.Request.RequestID),
		zap.String("reason", reason),
		zap.Int("staged", len(staged)))

	for i := len(staged) - 1; i >= 0; i-- {
		if _, err := exec.unstageTarget(staged[i], "蓝绿中止: "+reason); err != nil {
			return nil, err
		}
	}
	run.MarkSkipped(reason + ", 在役池未受影响")
	return finalize(run, reason), nil
}

// splitPools 按池标签划分目标并判定角色
//
// 在役池 = 存在轮转中成员的池, 另一池为备用池。两个池同时有或同时没有
// 轮转中的成员时角色无法判定, 拒绝发布。
func splitPools(targets []*model.Target) (active, standby []*model.Target, err error) {
	pools := make(map[string][]*model.Target, 2)
	for _, target := range targets {
		if target.Pool != constants.PoolBlue && target.Pool != constants.PoolGreen {
			return nil, nil, errors.New(errors.CodeBadRequest,
				fmt.Sprintf("目标 %s 缺少有效的池标签", target.Name))
		}
		pools[target.Pool] = append(pools[target.Pool], target)
	}

	blue, green := pools[constants.PoolBlue], pools[constants.PoolGreen]
	if len(blue) == 0 || len(green) == 0 {
		return nil, nil, errors.New(errors.CodeBadRequest, "蓝绿发布要求蓝绿两个池都有目标")
	}

	blueLive := hasInRotation(blue)
	greenLive := hasInRotation(green)
	switch {
	case blueLive && greenLive:
		return nil, nil, errors.New(errors.CodeBadRequest, "两个池都有轮转中的目标, 无法判定备用池")
	case !blueLive && !greenLive:
		return nil, nil, errors.New(errors.CodeBadRequest, "没有轮转中的目标, 无法判定在役池")
	case blueLive:
		return blue, green, nil
	default:
		return green, blue, nil
	}
}

func hasInRotation(targets []*model.Target) bool {
	return lo.SomeBy(targets, func(t *model.Target) bool {
		return t.RoutingState == constants.RoutingInRotation
	})
}
