package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
)

// executor 目标级步骤执行器, 三种策略复用
//
// 发布记录只在两类节点落账: 尝试走到健康验证(success / failed_health_check /
// timed_out), 以及回滚本身失败(failed_rollback)。回滚验证通过后补一条上一
// 版本的 success 记录, 保证"最新成功记录 = 实际在跑的版本"。摘流/安装阶段
// 的失败不单独落账, 通过净结果的 Detail 和运行结果暴露。
type executor struct {
	deps Deps
	run  *Run

	mu      sync.Mutex
	anchors map[int64]*model.DeploymentRecord // 尝试开始时的最近成功记录, 回滚锚点
}

func newExecutor(deps Deps, run *Run) *executor {
	return &executor{
		deps:    deps,
		run:     run,
		anchors: make(map[int64]*model.DeploymentRecord),
	}
}

// attempt 单目标一次发布尝试
type attempt struct {
	target        *model.Target
	anchor        *model.DeploymentRecord
	prev          *string
	wasInRotation bool
	startedAt     time.Time
}

// begin 锁内开启一次尝试: 取最新目标快照、登记尝试、捕获回滚锚点
func (e *executor) begin(target *model.Target) (*attempt, error) {
	fresh, err := e.deps.Registry.Get(target.ID)
	if err != nil {
		return nil, err
	}
	if err := e.deps.Registry.BeginAttempt(target.ID, e.run.Request.RequestID); err != nil {
		return nil, err
	}

	anchor, ok, err := e.deps.Store.LastSuccess(target.ID)
	if err != nil {
		e.deps.Registry.EndAttempt(target.ID, "")
		return nil, err
	}
	if ok {
		e.mu.Lock()
		e.anchors[target.ID] = anchor
		e.mu.Unlock()
	} else {
		anchor = nil
	}

	return &attempt{
		target:        fresh,
		anchor:        anchor,
		prev:          fresh.CurrentVersion,
		wasInRotation: fresh.RoutingState == constants.RoutingInRotation,
		startedAt:     time.Now(),
	}, nil
}

// anchorFor 尝试开始时捕获的回滚锚点, 从未成功发布过的目标返回 nil
func (e *executor) anchorFor(targetID int64) *model.DeploymentRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.anchors[targetID]
}

// appendRecord 落一条发布记录
func (e *executor) appendRecord(at *attempt, version, artifact, outcome, detail string) error {
	record := &model.DeploymentRecord{
		RequestID:        e.run.Request.RequestID,
		TargetID:         at.target.ID,
		TargetName:       at.target.Name,
		PreviousVersion:  at.prev,
		AttemptedVersion: version,
		ArtifactRef:      artifact,
		Outcome:          outcome,
		StartedAt:        at.startedAt,
		FinishedAt:       time.Now(),
	}
	if detail != "" {
		record.Detail = lo.ToPtr(detail)
	}
	if err := e.deps.Store.Append(record); err != nil {
		return fmt.Errorf("写入发布记录失败: %w", err)
	}
	return nil
}

// netResult 登记并返回目标净结果
func (e *executor) netResult(target *model.Target, outcome string, version *string, detail string) TargetResult {
	result := TargetResult{
		TargetID:     target.ID,
		TargetName:   target.Name,
		Address:      target.Address,
		Outcome:      outcome,
		FinalVersion: version,
		Detail:       detail,
	}
	e.run.SetResult(result)
	return result
}

// rollbackCtx 回滚阶段的独立预算, 不随运行取消
func (e *executor) rollbackCtx() (context.Context, context.CancelFunc) {
	budget := e.run.Config.RollbackTimeout
	if budget <= 0 {
		budget = 10 * time.Minute
	}
	return context.WithTimeout(context.Background(), budget)
}

// deployTarget 对一个在役目标执行完整发布序列:
//
//	摘流(等待在途请求) -> 安装 -> 健康验证 -> 落账 -> 恢复接流
//
// 恢复接流始终推迟到健康验证通过之后。任何失败都就地解决(回滚到锚点版本
// 或恢复原状), 不影响同批次的其他目标。调用期间持有目标锁。
func (e *executor) deployTarget(ctx context.Context, target *model.Target) (TargetResult, error) {
	reg := e.deps.Registry
	version := e.run.Request.Version
	artifact := e.run.Request.ArtifactRef

	reg.Lock(target.ID)
	defer reg.Unlock(target.ID)

	if err := e.run.Checkpoint(); err != nil {
		return e.netResult(target, constants.OutcomeSkipped, target.CurrentVersion, "全局超时, 未开始发布"), nil
	}

	at, err := e.begin(target)
	if err != nil {
		return TargetResult{}, err
	}
	target = at.target

	e.deps.Logger.Info("开始发布目标",
		zap.String("request_id", e.run.Request.RequestID),
		zap.String("target", target.Name),
		zap.String("version", version))

	// 摘流
	if err := reg.MarkRoutingState(target.ID, constants.RoutingDraining); err != nil {
		reg.EndAttempt(target.ID, "")
		return TargetResult{}, err
	}
	if err := e.deps.Traffic.Drain(ctx, target, e.run.Config.DrainGrace); err != nil {
		// 目标从未离开轮转, 恢复原状即可
		detail := e.resolveUntouched(at, fmt.Sprintf("摘流失败: %v", err))
		return e.netResult(target, constants.OutcomeRolledBack, at.prev, detail), nil
	}
	if err := reg.MarkRoutingState(target.ID, constants.RoutingDrained); err != nil {
		reg.EndAttempt(target.ID, "")
		return TargetResult{}, err
	}

	if err := e.run.Checkpoint(); err != nil {
		detail := e.resolveUntouched(at, "全局超时, 未开始安装")
		return e.netResult(target, constants.OutcomeSkipped, at.prev, detail), nil
	}

	// 安装
	if err := e.deps.Installer.Install(ctx, target, artifact, version); err != nil {
		return e.rollback(at, fmt.Sprintf("安装失败: %v", err))
	}

	if err := e.run.Checkpoint(); err != nil {
		if rerr := e.appendRecord(at, version, artifact, constants.OutcomeTimedOut, "全局超时, 发布中止"); rerr != nil {
			reg.EndAttempt(target.ID, "")
			return TargetResult{}, rerr
		}
		return e.rollback(at, "全局超时")
	}

	// 健康验证
	probe := e.deps.Prober.Check(ctx, target, e.run.Config.Health)
	if !probe.Healthy() {
		detail := fmt.Sprintf("健康检查未通过(%s): %s", probe.Status, probe.Detail)
		if rerr := e.appendRecord(at, version, artifact, constants.OutcomeFailedHealthCheck, detail); rerr != nil {
			reg.EndAttempt(target.ID, "")
			return TargetResult{}, rerr
		}
		return e.rollback(at, detail)
	}

	// 落账后才允许更新目标版本
	if err := e.appendRecord(at, version, artifact, constants.OutcomeSuccess, ""); err != nil {
		reg.EndAttempt(target.ID, "")
		return TargetResult{}, err
	}
	if err := reg.SetVersion(target.ID, version); err != nil {
		reg.EndAttempt(target.ID, constants.OutcomeSuccess)
		return TargetResult{}, err
	}

	// 恢复接流
	if err := e.deps.Traffic.Restore(ctx, target); err != nil {
		return e.rollback(at, fmt.Sprintf("新版本验证通过但恢复接流失败: %v", err))
	}
	reg.EndAttempt(target.ID, constants.OutcomeSuccess)
	if err := reg.MarkRoutingState(target.ID, constants.RoutingInRotation); err != nil {
		return TargetResult{}, err
	}

	e.deps.Logger.Info("目标发布成功",
		zap.String("request_id", e.run.Request.RequestID),
		zap.String("target", target.Name),
		zap.String("version", version))

	return e.netResult(target, constants.OutcomeSuccess, lo.ToPtr(version), ""), nil
}

// stageTarget 对备用池目标安装并验证新版本, 不触碰流量
//
// 蓝绿发布的预热阶段: 备用池不在轮转中, 无需摘流; 成功记录在切流之前落账。
func (e *executor) stageTarget(ctx context.Context, target *model.Target) (TargetResult, error) {
	reg := e.deps.Registry
	version := e.run.Request.Version
	artifact := e.run.Request.ArtifactRef

	reg.Lock(target.ID)
	defer reg.Unlock(target.ID)

	if err := e.run.Checkpoint(); err != nil {
		return e.netResult(target, constants.OutcomeSkipped, target.CurrentVersion, "全局超时, 未开始发布"), nil
	}

	at, err := e.begin(target)
	if err != nil {
		return TargetResult{}, err
	}
	target = at.target

	if err := e.deps.Installer.Install(ctx, target, artifact, version); err != nil {
		return e.rollbackStaged(at, fmt.Sprintf("安装失败: %v", err))
	}

	if err := e.run.Checkpoint(); err != nil {
		if rerr := e.appendRecord(at, version, artifact, constants.OutcomeTimedOut, "全局超时, 发布中止"); rerr != nil {
			reg.EndAttempt(target.ID, "")
			return TargetResult{}, rerr
		}
		return e.rollbackStaged(at, "全局超时")
	}

	probe := e.deps.Prober.Check(ctx, target, e.run.Config.Health)
	if !probe.Healthy() {
		detail := fmt.Sprintf("健康检查未通过(%s): %s", probe.Status, probe.Detail)
		if rerr := e.appendRecord(at, version, artifact, constants.OutcomeFailedHealthCheck, detail); rerr != nil {
			reg.EndAttempt(target.ID, "")
			return TargetResult{}, rerr
		}
		return e.rollbackStaged(at, detail)
	}

	if err := e.appendRecord(at, version, artifact, constants.OutcomeSuccess, ""); err != nil {
		reg.EndAttempt(target.ID, "")
		return TargetResult{}, err
	}
	if err := reg.SetVersion(target.ID, version); err != nil {
		reg.EndAttempt(target.ID, constants.OutcomeSuccess)
		return TargetResult{}, err
	}
	reg.EndAttempt(target.ID, constants.OutcomeSuccess)

	return e.netResult(target, constants.OutcomeSuccess, lo.ToPtr(version), ""), nil
}

// unstageTarget 把已预热成功的备用池目标回滚到锚点版本
//
// 蓝绿中止路径: 目标没有流量, 只需重装并验证上一版本。锚点取自预热时的
// 快照, 不受本次新写入的成功记录干扰。
func (e *executor) unstageTarget(target *model.Target, reason string) (TargetResult, error) {
	reg := e.deps.Registry

	reg.Lock(target.ID)
	defer reg.Unlock(target.ID)

	fresh, err := reg.Get(target.ID)
	if err != nil {
		return TargetResult{}, err
	}
	if err := reg.BeginAttempt(target.ID, e.run.Request.RequestID); err != nil {
		return TargetResult{}, err
	}
	at := &attempt{
		target:    fresh,
		anchor:    e.anchorFor(target.ID),
		prev:      fresh.CurrentVersion,
		startedAt: time.Now(),
	}
	return e.rollbackStaged(at, reason)
}

// rollbackStaged 备用池目标的回滚: 重装锚点版本并验证, 不触碰流量
func (e *executor) rollbackStaged(at *attempt, reason string) (TargetResult, error) {
	reg := e.deps.Registry
	target := at.target

	ctx, cancel := e.rollbackCtx()
	defer cancel()

	if at.anchor == nil {
		detail := reason + "; 无历史成功记录, 无法回滚"
		if err := e.appendRecord(at, e.run.Request.Version, e.run.Request.ArtifactRef, constants.OutcomeFailedRollback, detail); err != nil {
			reg.EndAttempt(target.ID, "")
			return TargetResult{}, err
		}
		reg.EndAttempt(target.ID, constants.OutcomeFailedRollback)
		return e.netResult(target, constants.OutcomeFailedRollback, at.prev, detail), nil
	}

	prevVersion := at.anchor.AttemptedVersion
	prevArtifact := at.anchor.ArtifactRef

	if err := e.deps.Installer.Install(ctx, target, prevArtifact, prevVersion); err != nil {
		detail := fmt.Sprintf("%s; 回滚安装失败: %v", reason, err)
		if rerr := e.appendRecord(at, prevVersion, prevArtifact, constants.OutcomeFailedRollback, detail); rerr != nil {
			reg.EndAttempt(target.ID, "")
			return TargetResult{}, rerr
		}
		reg.EndAttempt(target.ID, constants.OutcomeFailedRollback)
		return e.netResult(target, constants.OutcomeFailedRollback, at.prev, detail), nil
	}

	probe := e.deps.Prober.Check(ctx, target, e.run.Config.Health)
	if !probe.Healthy() {
		detail := fmt.Sprintf("%s; 回滚后健康检查未通过(%s): %s", reason, probe.Status, probe.Detail)
		if rerr := e.appendRecord(at, prevVersion, prevArtifact, constants.OutcomeFailedRollback, detail); rerr != nil {
			reg.EndAttempt(target.ID, "")
			return TargetResult{}, rerr
		}
		reg.EndAttempt(target.ID, constants.OutcomeFailedRollback)
		return e.netResult(target, constants.OutcomeFailedRollback, at.prev, detail), nil
	}

	if err := e.appendRecord(at, prevVersion, prevArtifact, constants.OutcomeSuccess, "回滚: "+reason); err != nil {
		reg.EndAttempt(target.ID, "")
		return TargetResult{}, err
	}
	if err := reg.SetVersion(target.ID, prevVersion); err != nil {
		reg.EndAttempt(target.ID, constants.OutcomeSuccess)
		return TargetResult{}, err
	}
	reg.EndAttempt(target.ID, constants.OutcomeSuccess)

	return e.netResult(target, constants.OutcomeRolledBack, lo.ToPtr(prevVersion), reason), nil
}

// rollback 把在役目标回滚到锚点版本并验证, 验证通过后恢复接流
//
// 进入此路径时目标处于摘流状态且新版本可能已安装。回滚不响应取消,
// 一旦开始就跑到底, 避免目标停在不确定的流量状态。
func (e *executor) rollback(at *attempt, reason string) (TargetResult, error) {
	target := at.target

	ctx, cancel := e.rollbackCtx()
	defer cancel()

	e.deps.Logger.Warn("开始回滚目标",
		zap.String("request_id", e.run.Request.RequestID),
		zap.String("target", target.Name),
		zap.String("reason", reason))

	if at.anchor == nil {
		detail := reason + "; 无历史成功记录, 无法回滚"
		if err := e.appendRecord(at, e.run.Request.Version, e.run.Request.ArtifactRef, constants.OutcomeFailedRollback, detail); err != nil {
			e.deps.Registry.EndAttempt(target.ID, "")
			return TargetResult{}, err
		}
		e.deps.Registry.EndAttempt(target.ID, constants.OutcomeFailedRollback)
		// 目标保持摘流, 等待人工处理
		return e.netResult(target, constants.OutcomeFailedRollback, at.prev, detail), nil
	}

	return e.rollbackRestore(ctx, at, reason)
}

// rollbackCommitted 回滚一个已在轮转中跑新版本的目标
//
// 用于策略级中止: 金丝雀观察期熔断、可选的成功目标连带回滚。走完整序列
// (摘流 -> 重装锚点版本 -> 验证 -> 接流), 不响应取消。
func (e *executor) rollbackCommitted(target *model.Target, reason string) (TargetResult, error) {
	reg := e.deps.Registry

	ctx, cancel := e.rollbackCtx()
	defer cancel()

	reg.Lock(target.ID)
	defer reg.Unlock(target.ID)

	fresh, err := reg.Get(target.ID)
	if err != nil {
		return TargetResult{}, err
	}
	if err := reg.BeginAttempt(target.ID, e.run.Request.RequestID); err != nil {
		return TargetResult{}, err
	}
	at := &attempt{
		target:        fresh,
		anchor:        e.anchorFor(target.ID),
		prev:          fresh.CurrentVersion,
		wasInRotation: fresh.RoutingState == constants.RoutingInRotation,
		startedAt:     time.Now(),
	}

	if at.anchor == nil {
		detail := reason + "; 无历史成功记录, 无法回滚, 目标仍以新版本在轮转中"
		if err := e.appendRecord(at, e.run.Request.Version, e.run.Request.ArtifactRef, constants.OutcomeFailedRollback, detail); err != nil {
			reg.EndAttempt(target.ID, "")
			return TargetResult{}, err
		}
		reg.EndAttempt(target.ID, constants.OutcomeFailedRollback)
		return e.netResult(fresh, constants.OutcomeFailedRollback, at.prev, detail), nil
	}

	if err := reg.MarkRoutingState(target.ID, constants.RoutingDraining); err != nil {
		reg.EndAttempt(target.ID, "")
		return TargetResult{}, err
	}
	if err := e.deps.Traffic.Drain(ctx, fresh, e.run.Config.DrainGrace); err != nil {
		detail := fmt.Sprintf("%s; 回滚摘流失败: %v", reason, err)
		if rerr := e.appendRecord(at, at.anchor.AttemptedVersion, at.anchor.ArtifactRef, constants.OutcomeFailedRollback, detail); rerr != nil {
			reg.EndAttempt(target.ID, "")
			return TargetResult{}, rerr
		}
		reg.EndAttempt(target.ID, constants.OutcomeFailedRollback)
		return e.netResult(fresh, constants.OutcomeFailedRollback, at.prev, detail), nil
	}
	if err := reg.MarkRoutingState(target.ID, constants.RoutingDrained); err != nil {
		reg.EndAttempt(target.ID, "")
		return TargetResult{}, err
	}

	return e.rollbackRestore(ctx, at, reason)
}

// rollbackRestore 摘流完成后的回滚主体: 重装 -> 验证 -> 落账 -> 接流
func (e *executor) rollbackRestore(ctx context.Context, at *attempt, reason string) (TargetResult, error) {
	reg := e.deps.Registry
	target := at.target
	prevVersion := at.anchor.AttemptedVersion
	prevArtifact := at.anchor.ArtifactRef

	if err := e.deps.Installer.Install(ctx, target, prevArtifact, prevVersion); err != nil {
		detail := fmt.Sprintf("%s; 回滚安装失败: %v", reason, err)
		if rerr := e.appendRecord(at, prevVersion, prevArtifact, constants.OutcomeFailedRollback, detail); rerr != nil {
			reg.EndAttempt(target.ID, "")
			return TargetResult{}, rerr
		}
		reg.EndAttempt(target.ID, constants.OutcomeFailedRollback)
		return e.netResult(target, constants.OutcomeFailedRollback, at.prev, detail), nil
	}

	probe := e.deps.Prober.Check(ctx, target, e.run.Config.Health)
	if !probe.Healthy() {
		detail := fmt.Sprintf("%s; 回滚后健康检查未通过(%s): %s", reason, probe.Status, probe.Detail)
		if rerr := e.appendRecord(at, prevVersion, prevArtifact, constants.OutcomeFailedRollback, detail); rerr != nil {
			reg.EndAttempt(target.ID, "")
			return TargetResult{}, rerr
		}
		reg.EndAttempt(target.ID, constants.OutcomeFailedRollback)
		return e.netResult(target, constants.OutcomeFailedRollback, at.prev, detail), nil
	}

	if err := e.appendRecord(at, prevVersion, prevArtifact, constants.OutcomeSuccess, "回滚: "+reason); err != nil {
		reg.EndAttempt(target.ID, "")
		return TargetResult{}, err
	}
	if err := reg.SetVersion(target.ID, prevVersion); err != nil {
		reg.EndAttempt(target.ID, constants.OutcomeSuccess)
		return TargetResult{}, err
	}
	reg.EndAttempt(target.ID, constants.OutcomeSuccess)

	detail := reason
	if err := e.deps.Traffic.Restore(ctx, target); err != nil {
		detail = fmt.Sprintf("%s; 回滚完成但恢复接流失败, 需人工接回: %v", reason, err)
		e.deps.Logger.Error("回滚后恢复接流失败",
			zap.String("target", target.Name), zap.Error(err))
		return e.netResult(target, constants.OutcomeRolledBack, lo.ToPtr(prevVersion), detail), nil
	}
	if err := reg.MarkRoutingState(target.ID, constants.RoutingInRotation); err != nil {
		return TargetResult{}, err
	}

	e.deps.Logger.Info("目标已回滚",
		zap.String("request_id", e.run.Request.RequestID),
		zap.String("target", target.Name),
		zap.String("version", prevVersion))

	return e.netResult(target, constants.OutcomeRolledBack, lo.ToPtr(prevVersion), detail), nil
}

// resolveUntouched 目标未被改动时的收尾: 结束尝试并把流量状态复原
func (e *executor) resolveUntouched(at *attempt, detail string) string {
	reg := e.deps.Registry
	target := at.target

	ctx, cancel := e.rollbackCtx()
	defer cancel()

	reg.EndAttempt(target.ID, "")
	if !at.wasInRotation {
		// 尝试前就不在轮转中, 保持摘流状态
		if err := reg.MarkRoutingState(target.ID, constants.RoutingDrained); err != nil {
			return detail + "; 更新流量状态失败: " + err.Error()
		}
		return detail
	}
	if err := e.deps.Traffic.Restore(ctx, target); err != nil {
		return detail + "; 恢复接流失败, 需人工接回: " + err.Error()
	}
	if err := reg.MarkRoutingState(target.ID, constants.RoutingInRotation); err != nil {
		return detail + "; 更新流量状态失败: " + err.Error()
	}
	return detail
}
