package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
)

func canaryConfig() Config {
	return Config{
		BatchSize:      2,
		CanaryCount:    1,
		CanaryWeights:  []int{10, 50},
		WindowSamples:  2,
		SampleInterval: time.Millisecond,
		ErrorThreshold: 5.0,
	}
}

func canaryFleet(t *testing.T, h *harness, n int) []*model.Target {
	t.Helper()
	targets := make([]*model.Target, 0, n)
	for i := 0; i < n; i++ {
		name := "cnr-" + string(rune('a'+i))
		targets = append(targets, h.addTarget(t, name, "", constants.RoutingInRotation, "v1"))
	}
	return targets
}

func TestCanaryValidate(t *testing.T) {
	h := newHarness()
	targets := canaryFleet(t, h, 3)
	s := NewCanary(h.deps())

	valid := canaryConfig()
	require.NoError(t, s.Validate(newTestRun(constants.StrategyCanary, targets, valid)))

	for name, mutate := range map[string]func(*Config){
		"金丝雀数量为0":  func(c *Config) { c.CanaryCount = 0 },
		"金丝雀不少于总数": func(c *Config) { c.CanaryCount = 3 },
		"缺少爬坡序列":   func(c *Config) { c.CanaryWeights = nil },
		"权重越界":     func(c *Config) { c.CanaryWeights = []int{10, 100} },
		"采样次数为0":   func(c *Config) { c.WindowSamples = 0 },
		"采样间隔为0":   func(c *Config) { c.SampleInterval = 0 },
		"阈值为0":     func(c *Config) { c.ErrorThreshold = 0 },
		"批次大小为0":   func(c *Config) { c.BatchSize = 0 },
	} {
		cfg := canaryConfig()
		mutate(&cfg)
		require.Error(t, s.Validate(newTestRun(constants.StrategyCanary, targets, cfg)), name)
	}
}

func TestCanaryFullRamp(t *testing.T) {
	h := newHarness()
	targets := canaryFleet(t, h, 3)
	canary, fleet := targets[0], targets[1:]

	h.metrics.SetDefault(0.4)
	s := NewCanary(h.deps())

	run := newTestRun(constants.StrategyCanary, targets, canaryConfig())
	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusSucceeded, result.Status)

	for _, target := range targets {
		require.Equal(t, constants.OutcomeSuccess, outcomeOf(result, target.ID))
		require.Equal(t, "v2", h.currentVersion(t, target.ID))
	}

	// 两个权重档位各走满一个观察窗口
	require.Equal(t, 4, h.metrics.Samples())

	// 爬坡两档 + 收尾复位
	history := h.traffic.WeightHistory()
	require.Len(t, history, 3)

	// 档位10%: 金丝雀 10×|fleet|, 其余 90×|canaries|
	require.Equal(t, 10*len(fleet), weightOf(history[0], canary.ID))
	require.Equal(t, 90*1, weightOf(history[0], fleet[0].ID))
	// 档位50%
	require.Equal(t, 50*len(fleet), weightOf(history[1], canary.ID))
	require.Equal(t, 50*1, weightOf(history[1], fleet[0].ID))
	// 复位: 全员等权
	for _, target := range targets {
		require.Equal(t, 1, weightOf(history[2], target.ID))
	}
}

func TestCanaryCircuitBreakOnErrorRate(t *testing.T) {
	h := newHarness()
	targets := canaryFleet(t, h, 3)
	canary := targets[0]

	// 第一档两次采样通过, 第二档首次采样越过阈值
	h.metrics.Script(1.0, 1.2, 8.7)
	s := NewCanary(h.deps())

	run := newTestRun(constants.StrategyCanary, targets, canaryConfig())
	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusRolledBack, result.Status)
	require.Equal(t, 3, h.metrics.Samples())

	// 只有金丝雀被回滚, 其余目标从未被触碰
	require.Equal(t, constants.OutcomeRolledBack, outcomeOf(result, canary.ID))
	require.Equal(t, "v1", h.currentVersion(t, canary.ID))
	require.Equal(t, constants.RoutingInRotation, h.routingState(t, canary.ID))
	for _, target := range targets[1:] {
		require.Equal(t, constants.OutcomeSkipped, outcomeOf(result, target.ID))
		require.Equal(t, "v1", h.currentVersion(t, target.ID))
		require.Zero(t, h.installer.InstallCount(target.ID))
	}

	// 熔断先掐断金丝雀流量, 最后恢复均衡权重
	history := h.traffic.WeightHistory()
	require.GreaterOrEqual(t, len(history), 2)
	cutoff := history[len(history)-2]
	require.Equal(t, 0, weightOf(cutoff, canary.ID))
	rebalanced := history[len(history)-1]
	for _, target := range targets {
		require.Equal(t, 1, weightOf(rebalanced, target.ID))
	}
}

func TestCanaryCircuitBreakOnMetricsOutage(t *testing.T) {
	h := newHarness()
	targets := canaryFleet(t, h, 3)

	// 指标源不可用按熔断处理
	h.metrics.FailAt(1, errors.New("prometheus: 503"))
	s := NewCanary(h.deps())

	run := newTestRun(constants.StrategyCanary, targets, canaryConfig())
	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusRolledBack, result.Status)
	require.Equal(t, constants.OutcomeRolledBack, outcomeOf(result, targets[0].ID))
	require.Equal(t, "v1", h.currentVersion(t, targets[0].ID))
}

func TestCanaryAbortBeforeRampSkipsWeightReset(t *testing.T) {
	h := newHarness()
	targets := canaryFleet(t, h, 3)
	canary := targets[0]

	// 金丝雀自身发布失败, 权重从未被改动, 不应有任何权重下发
	h.installer.FailTargetTimes(canary.ID, 1, errors.New("install: no space left"))
	s := NewCanary(h.deps())

	run := newTestRun(constants.StrategyCanary, targets, canaryConfig())
	result, err := s.Execute(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusRolledBack, result.Status)
	require.Equal(t, constants.OutcomeRolledBack, outcomeOf(result, canary.ID))
	require.Empty(t, h.traffic.WeightHistory())
	require.Zero(t, h.metrics.Samples())
}
