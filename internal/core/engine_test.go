package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"deploy-orchestrator/internal/adapter/installer"
	"deploy-orchestrator/internal/adapter/metrics"
	"deploy-orchestrator/internal/adapter/traffic"
	"deploy-orchestrator/internal/core/health"
	"deploy-orchestrator/internal/core/strategy"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/internal/registry"
	"deploy-orchestrator/internal/versionstore"
	"deploy-orchestrator/pkg/constants"
	pkgErrors "deploy-orchestrator/pkg/errors"
)

// memRequestStore 内存请求存储, 只覆盖引擎用到的方法
type memRequestStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.DeploymentRequest
	byReq  map[string]*model.DeploymentRequest
}

func newMemRequestStore() *memRequestStore {
	return &memRequestStore{
		nextID: 1,
		byID:   make(map[int64]*model.DeploymentRequest),
		byReq:  make(map[string]*model.DeploymentRequest),
	}
}

func (s *memRequestStore) Create(request *model.DeploymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request.ID = s.nextID
	s.nextID++
	s.byID[request.ID] = request
	s.byReq[request.RequestID] = request
	return nil
}

func (s *memRequestStore) GetByRequestID(requestID string) (*model.DeploymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.byReq[requestID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return request, nil
}

func (s *memRequestStore) MarkRunning(id int64, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if request, ok := s.byID[id]; ok {
		request.Status = constants.RunStatusRunning
		request.StartedAt = &startedAt
	}
	return nil
}

func (s *memRequestStore) FinishRun(id int64, status string, result datatypes.JSON, errorDetail *string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if request, ok := s.byID[id]; ok {
		request.Status = status
		request.Result = result
		request.ErrorDetail = errorDetail
		request.FinishedAt = &finishedAt
	}
	return nil
}

func (s *memRequestStore) CloseStaleRunning(before time.Time, detail string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var closed int64
	for _, request := range s.byID {
		if request.Status == constants.RunStatusRunning {
			request.Status = constants.RunStatusTimedOut
			request.ErrorDetail = &detail
			closed++
		}
	}
	return closed, nil
}

type engineHarness struct {
	engine    *Engine
	requests  *memRequestStore
	reg       *registry.Registry
	store     *versionstore.MemoryStore
	installer *installer.MockInstaller
}

func newEngineHarness() *engineHarness {
	reg := registry.New(registry.NewMemoryStore())
	store := versionstore.NewMemoryStore()
	inst := installer.NewMockInstaller()
	requests := newMemRequestStore()
	deps := strategy.Deps{
		Registry:  reg,
		Store:     store,
		Prober:    health.NewMockProber(),
		Traffic:   traffic.NewMockController(),
		Installer: inst,
		Metrics:   metrics.NewMockSource(),
		Logger:    zap.NewNop(),
	}
	return &engineHarness{
		engine:    NewEngine(requests, deps, nil, zap.NewNop()),
		requests:  requests,
		reg:       reg,
		store:     store,
		installer: inst,
	}
}

func (h *engineHarness) addTargets(t *testing.T, names ...string) []*model.Target {
	t.Helper()
	targets := make([]*model.Target, 0, len(names))
	for _, name := range names {
		target := &model.Target{
			Name:           name,
			Address:        name + ".web.local:8080",
			Group:          "web",
			RoutingState:   constants.RoutingInRotation,
			Status:         constants.TargetStatusActive,
			CurrentVersion: lo.ToPtr("v1"),
		}
		require.NoError(t, h.reg.Register(target))
		// 历史成功记录是回滚锚点, 中止路径依赖它
		require.NoError(t, h.store.Append(&model.DeploymentRecord{
			RequestID:        "seed",
			TargetID:         target.ID,
			TargetName:       name,
			AttemptedVersion: "v1",
			ArtifactRef:      "s3://artifacts/app-v1.tgz",
			Outcome:          constants.OutcomeSuccess,
			StartedAt:        time.Now(),
			FinishedAt:       time.Now(),
		}))
		targets = append(targets, target)
	}
	return targets
}

func rollingRequest(requestID string) *model.DeploymentRequest {
	return &model.DeploymentRequest{
		RequestID:   requestID,
		ArtifactRef: "s3://artifacts/app-v2.tgz",
		Version:     "v2",
		Strategy:    constants.StrategyRolling,
		TargetGroup: "web",
		Initiator:   "ci-pipeline",
	}
}

func assertBizCode(t *testing.T, err error, code int) {
	t.Helper()
	var appErr *pkgErrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code)
}

func TestEngineSubmitToTerminalState(t *testing.T) {
	h := newEngineHarness()
	targets := h.addTargets(t, "a", "b", "c")

	result, err := h.engine.Submit(context.Background(), rollingRequest("req-ok"),
		targets, strategy.Config{BatchSize: 2})
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusSucceeded, result.Status)
	require.Len(t, result.Targets, 3)

	// 终态连同结果写回请求行
	persisted, err := h.requests.GetByRequestID("req-ok")
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusSucceeded, persisted.Status)
	require.NotNil(t, persisted.StartedAt)
	require.NotNil(t, persisted.FinishedAt)
	require.NotEmpty(t, persisted.Result)
	require.NotEmpty(t, persisted.Config, "受理时快照策略配置")
}

func TestEngineRejectsUnknownStrategy(t *testing.T) {
	h := newEngineHarness()
	targets := h.addTargets(t, "a")

	request := rollingRequest("req-bad")
	request.Strategy = "recreate"
	_, err := h.engine.Submit(context.Background(), request, targets, strategy.Config{BatchSize: 1})
	assertBizCode(t, err, pkgErrors.CodeBadRequest)

	// 被拒绝的请求不落库
	_, err = h.requests.GetByRequestID("req-bad")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestEngineRejectsDuplicateRequestID(t *testing.T) {
	h := newEngineHarness()
	targets := h.addTargets(t, "a")

	_, err := h.engine.Submit(context.Background(), rollingRequest("req-dup"),
		targets, strategy.Config{BatchSize: 1})
	require.NoError(t, err)

	_, err = h.engine.Submit(context.Background(), rollingRequest("req-dup"),
		targets, strategy.Config{BatchSize: 1})
	assertBizCode(t, err, pkgErrors.CodeConflict)
}

func TestEngineRejectsConflictingTargets(t *testing.T) {
	h := newEngineHarness()
	targets := h.addTargets(t, "a", "b")
	h.installer.SetDelay(150 * time.Millisecond)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := h.engine.Submit(context.Background(), rollingRequest("req-first"),
			targets, strategy.Config{BatchSize: 2})
		done <- err
	}()

	<-started
	time.Sleep(30 * time.Millisecond)

	// 目标重叠的并发请求被直接拒绝, 不排队
	_, err := h.engine.Submit(context.Background(), rollingRequest("req-second"),
		targets[:1], strategy.Config{BatchSize: 1})
	assertBizCode(t, err, pkgErrors.CodeConflict)
	_, lookupErr := h.requests.GetByRequestID("req-second")
	require.ErrorIs(t, lookupErr, gorm.ErrRecordNotFound)

	require.NoError(t, <-done)

	// 首个请求结束后预留释放
	_, err = h.engine.Submit(context.Background(), rollingRequest("req-third"),
		targets[:1], strategy.Config{BatchSize: 1})
	require.NoError(t, err)
}

func TestEngineTimeoutCancelsRun(t *testing.T) {
	h := newEngineHarness()
	targets := h.addTargets(t, "a", "b")
	h.installer.SetDelay(60 * time.Millisecond)

	result, err := h.engine.Submit(context.Background(), rollingRequest("req-timeout"),
		targets, strategy.Config{BatchSize: 1, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusTimedOut, result.Status)

	// 被打断的目标回滚到锚点版本, 超时不升级为failed
	version, err := h.reg.GetVersion(targets[0].ID)
	require.NoError(t, err)
	require.Equal(t, "v1", lo.FromPtr(version))

	persisted, err := h.requests.GetByRequestID("req-timeout")
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusTimedOut, persisted.Status)
}

func TestEngineShutdownStopsIntake(t *testing.T) {
	h := newEngineHarness()
	targets := h.addTargets(t, "a")

	h.engine.Shutdown()
	_, err := h.engine.Submit(context.Background(), rollingRequest("req-late"),
		targets, strategy.Config{BatchSize: 1})
	require.Error(t, err)
}

func TestEngineReconcileClosesStaleRuns(t *testing.T) {
	h := newEngineHarness()

	stale := rollingRequest("req-stale")
	require.NoError(t, h.requests.Create(stale))
	require.NoError(t, h.requests.MarkRunning(stale.ID, time.Now().Add(-time.Hour)))

	require.NoError(t, h.engine.Reconcile())

	persisted, err := h.requests.GetByRequestID("req-stale")
	require.NoError(t, err)
	require.Equal(t, constants.RunStatusTimedOut, persisted.Status)
}
