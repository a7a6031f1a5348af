package health

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"deploy-orchestrator/internal/model"
)

// MockProber 模拟健康探测器
type MockProber struct {
	mock.Mock

	// 可控行为
	delay         time.Duration       // 探测延迟
	defaultStatus Status              // 未脚本化目标的默认结论
	scripts       map[int64][]Status  // 按目标脚本化的结论序列, 逐次消费
	calls         map[int64]int       // 每个目标的探测次数
	mu            sync.Mutex
}

func NewMockProber() *MockProber {
	return &MockProber{
		defaultStatus: StatusHealthy,
		scripts:       make(map[int64][]Status),
		calls:         make(map[int64]int),
	}
}

// === 配置方法 ===

func (m *MockProber) SetDefault(status Status) *MockProber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultStatus = status
	return m
}

// ScriptTarget 为目标脚本化一串结论, 消费完后回到默认结论
func (m *MockProber) ScriptTarget(targetID int64, statuses ...Status) *MockProber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[targetID] = append(m.scripts[targetID], statuses...)
	return m
}

func (m *MockProber) SetDelay(d time.Duration) *MockProber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// === 接口实现 ===

func (m *MockProber) Check(ctx context.Context, target *model.Target, opts Options) Result {
	m.mu.Lock()
	m.calls[target.ID]++
	status := m.defaultStatus
	if queue := m.scripts[target.ID]; len(queue) > 0 {
		status = queue[0]
		m.scripts[target.ID] = queue[1:]
	}
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{TargetID: target.ID, Status: StatusTimeout, Detail: "探测被取消", CheckedAt: time.Now()}
		}
	}

	return Result{
		TargetID:  target.ID,
		Status:    status,
		Detail:    "mock",
		Attempts:  1,
		CheckedAt: time.Now(),
	}
}

// === 验证方法 ===

func (m *MockProber) Calls(targetID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[targetID]
}

func (m *MockProber) AssertChecked(t mock.TestingT, targetID int64, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls[targetID] != times {
		t.Errorf("target %d checked %d times, want %d", targetID, m.calls[targetID], times)
	}
}
