package traffic

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"deploy-orchestrator/internal/model"
)

// MockController 模拟流量控制器
type MockController struct {
	mock.Mock

	// 可控行为
	drainErr   map[int64]error // 按目标注入 Drain 错误
	restoreErr map[int64]error // 按目标注入 Restore 错误
	weightsErr error           // SetWeights 错误
	skipGrace  bool            // 测试中跳过摘流等待

	// 调用记录
	drained  map[int64]bool  // 目标当前是否处于摘流状态
	drains   []int64         // Drain 调用顺序
	restores []int64         // Restore 调用顺序
	weights  [][]Weight      // SetWeights 历史
	mu       sync.Mutex
}

func NewMockController() *MockController {
	return &MockController{
		drainErr:   make(map[int64]error),
		restoreErr: make(map[int64]error),
		drained:    make(map[int64]bool),
		skipGrace:  true,
	}
}

// === 配置方法 ===

func (m *MockController) FailDrain(targetID int64, err error) *MockController {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainErr[targetID] = err
	return m
}

func (m *MockController) FailRestore(targetID int64, err error) *MockController {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restoreErr[targetID] = err
	return m
}

func (m *MockController) FailSetWeights(err error) *MockController {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weightsErr = err
	return m
}

func (m *MockController) WaitGrace() *MockController {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipGrace = false
	return m
}

// === 接口实现 ===

func (m *MockController) Drain(ctx context.Context, target *model.Target, grace time.Duration) error {
	m.mu.Lock()
	err := m.drainErr[target.ID]
	skip := m.skipGrace
	if err == nil {
		m.drained[target.ID] = true
		m.drains = append(m.drains, target.ID)
	}
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if !skip && grace > 0 {
		select {
		case <-time.After(grace):
		case <-ctx.Done():
		}
	}
	return nil
}

func (m *MockController) Restore(ctx context.Context, target *model.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.restoreErr[target.ID]; err != nil {
		return err
	}
	m.drained[target.ID] = false
	m.restores = append(m.restores, target.ID)
	return nil
}

func (m *MockController) SetWeights(ctx context.Context, weights []Weight) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.weightsErr != nil {
		return m.weightsErr
	}
	snapshot := make([]Weight, len(weights))
	copy(snapshot, weights)
	m.weights = append(m.weights, snapshot)
	return nil
}

// === 验证方法 ===

// Drained 目标当前是否处于摘流状态
func (m *MockController) Drained(targetID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drained[targetID]
}

// DrainOrder Drain 调用顺序
func (m *MockController) DrainOrder() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.drains))
	copy(out, m.drains)
	return out
}

// RestoreOrder Restore 调用顺序
func (m *MockController) RestoreOrder() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.restores))
	copy(out, m.restores)
	return out
}

// WeightHistory SetWeights 的全部下发历史
func (m *MockController) WeightHistory() [][]Weight {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Weight, len(m.weights))
	copy(out, m.weights)
	return out
}

// LastWeights 最近一次下发的权重, 没有时返回 nil
func (m *MockController) LastWeights() []Weight {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.weights) == 0 {
		return nil
	}
	return m.weights[len(m.weights)-1]
}
