package metrics

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockSource 模拟错误率数据源
type MockSource struct {
	mock.Mock

	// 可控行为
	defaultRate float64         // 脚本消费完后的默认错误率
	script      []float64       // 按采样次序消费的错误率序列
	errAt       map[int]error   // 第N次采样(从1计)返回错误
	calls       int
	mu          sync.Mutex
}

func NewMockSource() *MockSource {
	return &MockSource{
		errAt: make(map[int]error),
	}
}

// === 配置方法 ===

func (m *MockSource) SetDefault(rate float64) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultRate = rate
	return m
}

// Script 按采样次序脚本化错误率
func (m *MockSource) Script(rates ...float64) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, rates...)
	return m
}

// FailAt 第 n 次采样返回错误
func (m *MockSource) FailAt(n int, err error) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errAt[n] = err
	return m
}

// === 接口实现 ===

func (m *MockSource) ErrorRate(ctx context.Context, scope Scope) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if err := m.errAt[m.calls]; err != nil {
		return 0, err
	}
	if len(m.script) > 0 {
		rate := m.script[0]
		m.script = m.script[1:]
		return rate, nil
	}
	return m.defaultRate, nil
}

// === 验证方法 ===

// Samples 已发生的采样次数
func (m *MockSource) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
