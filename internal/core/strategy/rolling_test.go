package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deploy-orchestrator/internal/core/health"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
)

func rollingTargets(t *testing.T, h *harness, n int) []*model.Target {
	t.Helper()
	targets := make([]*model.Target, 0, n)
	for i := 0; i < n; i++ {
		name := string(rune('a' + i))
		targets = append(targets, h.addTarget(t, "roll-"+name, "", constants.RoutingInRotation, "v1"))
	}
	return targets
}

func TestRollingValidate(t *testing.T) {
	h := newHarness()
	s := NewRolling(h.deps())

	run := newTestRun(constants.StrategyRolling, nil, Config{BatchSize: 2})
	require.Error(t, s.Validate(run), "空目标列表应拒绝")

	targets := rollingTargets(t, h, 2)
	run = newTestRun(constants.StrategyRolling, targets, Config{BatchSize: 0})
	require.Error(t, s.Validate(run), "批次大小为0应拒绝")

	run = newTestRun(constants.StrategyRolling, targets, Config{BatchSize: 2})
	require.NoError(t, s.Validate(run))
}

func TestRollingAllSucceed(t *testing.T) {
	h := newHarness()
	targets := rollingTargets(t, h, 5)
	s := NewRolling(h.deps())

	run := newTestRun(constants.StrategyRolling, targets, Config{BatchSize: 2})
	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusSucceeded, result.Status)
	require.Len(t, result.Targets, 5)

	for _, target := range targets {
		require.Equal(t, constants.OutcomeSuccess, outcomeOf(result, target.ID))
		require.Equal(t, "v2", h.currentVersion(t, target.ID))
		require.Equal(t, constants.RoutingInRotation, h.routingState(t, target.ID))
		require.False(t, h.traffic.Drained(target.ID), "发布完成后应恢复接流")

		records := h.recordsFor(run.Request.RequestID, target.ID)
		require.Len(t, records, 1)
		require.Equal(t, constants.OutcomeSuccess, records[0].Outcome)
		require.Equal(t, "v2", records[0].AttemptedVersion)
		require.Equal(t, "v1", *records[0].PreviousVersion)
	}
}

func TestRollingHaltsOnFailedTarget(t *testing.T) {
	h := newHarness()
	targets := rollingTargets(t, h, 5)
	bad := targets[2]

	// 新版本健康检查失败一次, 回滚验证用默认的健康结论
	h.prober.ScriptTarget(bad.ID, health.StatusUnhealthy)
	s := NewRolling(h.deps())

	run := newTestRun(constants.StrategyRolling, targets, Config{BatchSize: 2})
	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusRolledBack, result.Status)

	// 批次1与故障批次内的同伴保留新版本
	require.Equal(t, constants.OutcomeSuccess, outcomeOf(result, targets[0].ID))
	require.Equal(t, constants.OutcomeSuccess, outcomeOf(result, targets[1].ID))
	require.Equal(t, constants.OutcomeSuccess, outcomeOf(result, targets[3].ID))

	// 故障目标回滚到锚点版本并回到轮转
	require.Equal(t, constants.OutcomeRolledBack, outcomeOf(result, bad.ID))
	require.Equal(t, "v1", h.currentVersion(t, bad.ID))
	require.Equal(t, constants.RoutingInRotation, h.routingState(t, bad.ID))

	records := h.recordsFor(run.Request.RequestID, bad.ID)
	require.Len(t, records, 2)
	require.Equal(t, constants.OutcomeFailedHealthCheck, records[0].Outcome)
	require.Equal(t, constants.OutcomeSuccess, records[1].Outcome)
	require.Equal(t, "v1", records[1].AttemptedVersion)

	// 后续批次不再推进
	require.Equal(t, constants.OutcomeSkipped, outcomeOf(result, targets[4].ID))
	require.Empty(t, h.recordsFor(run.Request.RequestID, targets[4].ID))
	require.Equal(t, "v1", h.currentVersion(t, targets[4].ID))
}

func TestRollingRollbackSucceededOnHalt(t *testing.T) {
	h := newHarness()
	targets := rollingTargets(t, h, 4)
	bad := targets[2]

	h.prober.ScriptTarget(bad.ID, health.StatusUnhealthy)
	s := NewRolling(h.deps())

	run := newTestRun(constants.StrategyRolling, targets, Config{
		BatchSize:         2,
		RollbackSucceeded: true,
	})
	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusRolledBack, result.Status)

	// 已成功的目标被连带回滚
	for _, target := range []*model.Target{targets[0], targets[1], targets[3]} {
		require.Equal(t, constants.OutcomeRolledBack, outcomeOf(result, target.ID))
		require.Equal(t, "v1", h.currentVersion(t, target.ID))
		require.Equal(t, constants.RoutingInRotation, h.routingState(t, target.ID))
	}
	require.Equal(t, constants.OutcomeRolledBack, outcomeOf(result, bad.ID))
}

func TestRollingFailedRollbackLeavesDrained(t *testing.T) {
	h := newHarness()
	targets := rollingTargets(t, h, 2)
	bad := targets[0]

	// 新版本与回滚版本的健康检查都失败
	h.prober.ScriptTarget(bad.ID, health.StatusUnhealthy, health.StatusUnhealthy)
	s := NewRolling(h.deps())

	run := newTestRun(constants.StrategyRolling, targets, Config{BatchSize: 1})
	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusFailed, result.Status)

	require.Equal(t, constants.OutcomeFailedRollback, outcomeOf(result, bad.ID))
	// 回滚失败的目标保持摘流, 等待人工介入
	require.True(t, h.traffic.Drained(bad.ID))

	records := h.recordsFor(run.Request.RequestID, bad.ID)
	require.Len(t, records, 2)
	require.Equal(t, constants.OutcomeFailedHealthCheck, records[0].Outcome)
	require.Equal(t, constants.OutcomeFailedRollback, records[1].Outcome)
}

func TestRollingGlobalTimeoutSkipsAll(t *testing.T) {
	h := newHarness()
	targets := rollingTargets(t, h, 3)
	s := NewRolling(h.deps())

	run := newTestRun(constants.StrategyRolling, targets, Config{BatchSize: 1, Timeout: time.Nanosecond})
	time.Sleep(time.Millisecond)

	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusTimedOut, result.Status)

	for _, target := range targets {
		require.Equal(t, constants.OutcomeSkipped, outcomeOf(result, target.ID))
		require.Equal(t, "v1", h.currentVersion(t, target.ID))
	}
	require.Empty(t, h.installer.Calls())
}

func TestRollingNoAnchorFailsRollback(t *testing.T) {
	h := newHarness()
	// 从未成功发布过的目标, 失败后没有可回滚的版本
	fresh := h.addTarget(t, "fresh", "", constants.RoutingInRotation, "")
	h.prober.ScriptTarget(fresh.ID, health.StatusUnhealthy)
	s := NewRolling(h.deps())

	run := newTestRun(constants.StrategyRolling, []*model.Target{fresh}, Config{BatchSize: 1})
	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusFailed, result.Status)
	require.Equal(t, constants.OutcomeFailedRollback, outcomeOf(result, fresh.ID))
}
