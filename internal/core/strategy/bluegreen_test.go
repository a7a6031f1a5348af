package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"deploy-orchestrator/internal/adapter/traffic"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
)

// blueGreenFleet 蓝池在役(v1), 绿池备用(摘流, v1)
func blueGreenFleet(t *testing.T, h *harness) (blue, green []*model.Target) {
	t.Helper()
	blue = []*model.Target{
		h.addTarget(t, "blue-1", constants.PoolBlue, constants.RoutingInRotation, "v1"),
		h.addTarget(t, "blue-2", constants.PoolBlue, constants.RoutingInRotation, "v1"),
	}
	green = []*model.Target{
		h.addTarget(t, "green-1", constants.PoolGreen, constants.RoutingDrained, "v1"),
		h.addTarget(t, "green-2", constants.PoolGreen, constants.RoutingDrained, "v1"),
	}
	return blue, green
}

func weightOf(weights []traffic.Weight, targetID int64) int {
	for _, w := range weights {
		if w.Target.ID == targetID {
			return w.Weight
		}
	}
	return -1
}

func TestSplitPools(t *testing.T) {
	h := newHarness()
	blue, green := blueGreenFleet(t, h)
	all := append(append([]*model.Target{}, blue...), green...)

	active, standby, err := splitPools(all)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Len(t, standby, 2)
	require.Equal(t, constants.PoolBlue, active[0].Pool)
	require.Equal(t, constants.PoolGreen, standby[0].Pool)
}

func TestSplitPoolsAmbiguous(t *testing.T) {
	h := newHarness()

	// 两个池都有轮转中的成员
	both := []*model.Target{
		h.addTarget(t, "amb-blue", constants.PoolBlue, constants.RoutingInRotation, "v1"),
		h.addTarget(t, "amb-green", constants.PoolGreen, constants.RoutingInRotation, "v1"),
	}
	_, _, err := splitPools(both)
	require.Error(t, err)

	// 单池
	_, _, err = splitPools(both[:1])
	require.Error(t, err)

	// 缺池标签
	plain := h.addTarget(t, "no-pool", "", constants.RoutingInRotation, "v1")
	_, _, err = splitPools([]*model.Target{plain})
	require.Error(t, err)
}

func TestBlueGreenCutover(t *testing.T) {
	h := newHarness()
	blue, green := blueGreenFleet(t, h)
	all := append(append([]*model.Target{}, blue...), green...)
	s := NewBlueGreen(h.deps())

	run := newTestRun(constants.StrategyBlueGreen, all, Config{})
	require.NoError(t, s.Validate(run))

	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusSucceeded, result.Status)

	// 备用池带着新版本进入轮转
	for _, target := range green {
		require.Equal(t, constants.OutcomeSuccess, outcomeOf(result, target.ID))
		require.Equal(t, "v2", h.currentVersion(t, target.ID))
		require.Equal(t, constants.RoutingInRotation, h.routingState(t, target.ID))
	}
	// 旧池摘流转备用, 版本未动
	for _, target := range blue {
		require.Equal(t, constants.OutcomeSkipped, outcomeOf(result, target.ID))
		require.Equal(t, "v1", h.currentVersion(t, target.ID))
		require.Equal(t, constants.RoutingDrained, h.routingState(t, target.ID))
	}

	// 切流是单次原子提交: 新池权重拉满, 旧池归零
	history := h.traffic.WeightHistory()
	require.Len(t, history, 1)
	for _, target := range green {
		require.Equal(t, 100, weightOf(history[0], target.ID))
	}
	for _, target := range blue {
		require.Equal(t, 0, weightOf(history[0], target.ID))
	}
}

func TestBlueGreenAbortOnStagingFailure(t *testing.T) {
	h := newHarness()
	blue, green := blueGreenFleet(t, h)
	all := append(append([]*model.Target{}, blue...), green...)

	// green-2 首次安装失败, 回滚安装恢复成功
	h.installer.FailTargetTimes(green[1].ID, 1, errors.New("scp: connection reset"))
	s := NewBlueGreen(h.deps())

	run := newTestRun(constants.StrategyBlueGreen, all, Config{})
	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusRolledBack, result.Status)

	// 全有或全无: 预热成功的同池成员也被回滚
	for _, target := range green {
		require.Equal(t, constants.OutcomeRolledBack, outcomeOf(result, target.ID))
		require.Equal(t, "v1", h.currentVersion(t, target.ID))
	}
	// 在役池不受影响, 切流从未发生
	for _, target := range blue {
		require.Equal(t, constants.OutcomeSkipped, outcomeOf(result, target.ID))
		require.Equal(t, constants.RoutingInRotation, h.routingState(t, target.ID))
	}
	require.Empty(t, h.traffic.WeightHistory())
}

func TestBlueGreenAbortOnCutoverFailure(t *testing.T) {
	h := newHarness()
	blue, green := blueGreenFleet(t, h)
	all := append(append([]*model.Target{}, blue...), green...)

	h.traffic.FailSetWeights(errors.New("upstream api: 502"))
	s := NewBlueGreen(h.deps())

	run := newTestRun(constants.StrategyBlueGreen, all, Config{})
	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusRolledBack, result.Status)

	// 预热已完成但切流失败, 备用池整体回滚
	for _, target := range green {
		require.Equal(t, constants.OutcomeRolledBack, outcomeOf(result, target.ID))
		require.Equal(t, "v1", h.currentVersion(t, target.ID))
	}
	for _, target := range blue {
		require.Equal(t, constants.RoutingInRotation, h.routingState(t, target.ID))
	}
}
