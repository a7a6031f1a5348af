package strategy

import (
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deploy-orchestrator/internal/adapter/installer"
	"deploy-orchestrator/internal/adapter/metrics"
	"deploy-orchestrator/internal/adapter/traffic"
	"deploy-orchestrator/internal/core/health"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/internal/registry"
	"deploy-orchestrator/internal/versionstore"
	"deploy-orchestrator/pkg/constants"
)

// harness 策略测试脚手架: 内存注册表+内存账本+全套mock协作方
type harness struct {
	reg       *registry.Registry
	store     *versionstore.MemoryStore
	prober    *health.MockProber
	traffic   *traffic.MockController
	installer *installer.MockInstaller
	metrics   *metrics.MockSource
}

func newHarness() *harness {
	return &harness{
		reg:       registry.New(registry.NewMemoryStore()),
		store:     versionstore.NewMemoryStore(),
		prober:    health.NewMockProber(),
		traffic:   traffic.NewMockController(),
		installer: installer.NewMockInstaller(),
		metrics:   metrics.NewMockSource(),
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Registry:  h.reg,
		Store:     h.store,
		Prober:    h.prober,
		Traffic:   h.traffic,
		Installer: h.installer,
		Metrics:   h.metrics,
		Logger:    zap.NewNop(),
	}
}

// addTarget 注册目标; version 非空时同时种一条成功记录作为回滚锚点
func (h *harness) addTarget(t *testing.T, name, pool, state, version string) *model.Target {
	t.Helper()

	target := &model.Target{
		Name:         name,
		Address:      fmt.Sprintf("%s.web.local:8080", name),
		Group:        "web",
		Pool:         pool,
		RoutingState: state,
		Status:       constants.TargetStatusActive,
	}
	if version != "" {
		target.CurrentVersion = lo.ToPtr(version)
	}
	require.NoError(t, h.reg.Register(target))

	if version != "" {
		require.NoError(t, h.store.Append(&model.DeploymentRecord{
			RequestID:        "seed",
			TargetID:         target.ID,
			TargetName:       name,
			AttemptedVersion: version,
			ArtifactRef:      "s3://artifacts/app-" + version + ".tgz",
			Outcome:          constants.OutcomeSuccess,
			StartedAt:        time.Now().Add(-time.Hour),
			FinishedAt:       time.Now().Add(-time.Hour),
		}))
	}
	return target
}

func (h *harness) currentVersion(t *testing.T, targetID int64) string {
	t.Helper()
	version, err := h.reg.GetVersion(targetID)
	require.NoError(t, err)
	if version == nil {
		return ""
	}
	return *version
}

func (h *harness) routingState(t *testing.T, targetID int64) string {
	t.Helper()
	target, err := h.reg.Get(targetID)
	require.NoError(t, err)
	return target.RoutingState
}

// recordsFor 目标在本次请求下的记录, 按写入顺序
func (h *harness) recordsFor(requestID string, targetID int64) []model.DeploymentRecord {
	var out []model.DeploymentRecord
	for _, record := range h.store.All() {
		if record.RequestID == requestID && record.TargetID == targetID {
			out = append(out, record)
		}
	}
	return out
}

func newTestRun(kind string, targets []*model.Target, cfg Config) *Run {
	request := &model.DeploymentRequest{
		RequestID:   "req-test-1",
		ArtifactRef: "s3://artifacts/app-v2.tgz",
		Version:     "v2",
		Strategy:    kind,
		TargetGroup: "web",
	}
	request.ID = 1
	return NewRun(request, targets, cfg)
}

func outcomeOf(result *Result, targetID int64) string {
	for _, tr := range result.Targets {
		if tr.TargetID == targetID {
			return tr.Outcome
		}
	}
	return ""
}

func TestRunCheckpointDeadline(t *testing.T) {
	run := newTestRun(constants.StrategyRolling, nil, Config{Timeout: time.Hour})
	require.NoError(t, run.Checkpoint())

	run.Deadline = time.Now().Add(-time.Second)
	require.Error(t, run.Checkpoint())
	require.True(t, run.Cancelled())
}

func TestRunCheckpointCancel(t *testing.T) {
	run := newTestRun(constants.StrategyRolling, nil, Config{})
	require.NoError(t, run.Checkpoint())

	run.Cancel()
	require.Error(t, run.Checkpoint())
}

func TestRunMarkSkippedKeepsExistingResults(t *testing.T) {
	h := newHarness()
	a := h.addTarget(t, "a", "", constants.RoutingInRotation, "v1")
	b := h.addTarget(t, "b", "", constants.RoutingInRotation, "v1")

	run := newTestRun(constants.StrategyRolling, []*model.Target{a, b}, Config{})
	run.SetResult(TargetResult{TargetID: a.ID, TargetName: a.Name, Outcome: constants.OutcomeSuccess})

	run.MarkSkipped("停止推进")

	results := run.Results()
	require.Len(t, results, 2)
	require.Equal(t, constants.OutcomeSuccess, results[0].Outcome)
	require.Equal(t, constants.OutcomeSkipped, results[1].Outcome)
	require.Equal(t, "停止推进", results[1].Detail)
}
