package installer

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"deploy-orchestrator/internal/model"
)

// InstallCall 一次安装调用的入参快照
type InstallCall struct {
	TargetID int64
	Artifact string
	Version  string
}

// MockInstaller 模拟安装器
type MockInstaller struct {
	mock.Mock

	// 可控行为
	delay      time.Duration
	installErr map[int64]error    // 按目标注入安装错误
	failOnce   map[int64]int      // 目标前N次安装失败, 之后成功(用于回滚路径)
	versions   map[int64]string   // 目标当前已安装版本
	calls      []InstallCall      // 调用顺序
	mu         sync.Mutex
}

func NewMockInstaller() *MockInstaller {
	return &MockInstaller{
		installErr: make(map[int64]error),
		failOnce:   make(map[int64]int),
		versions:   make(map[int64]string),
	}
}

// === 配置方法 ===

func (m *MockInstaller) FailTarget(targetID int64, err error) *MockInstaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installErr[targetID] = err
	return m
}

// FailTargetTimes 目标前 times 次安装失败, 之后恢复成功
func (m *MockInstaller) FailTargetTimes(targetID int64, times int, err error) *MockInstaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installErr[targetID] = err
	m.failOnce[targetID] = times
	return m
}

func (m *MockInstaller) SetDelay(d time.Duration) *MockInstaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// === 接口实现 ===

func (m *MockInstaller) Install(ctx context.Context, target *model.Target, artifact, version string) error {
	m.mu.Lock()
	m.calls = append(m.calls, InstallCall{TargetID: target.ID, Artifact: artifact, Version: version})
	err := m.installErr[target.ID]
	if err != nil {
		if remain, ok := m.failOnce[target.ID]; ok {
			if remain <= 0 {
				err = nil
			} else {
				m.failOnce[target.ID] = remain - 1
			}
		}
	}
	if err == nil {
		m.versions[target.ID] = version
	}
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// === 验证方法 ===

// InstalledVersion 目标当前已安装版本
func (m *MockInstaller) InstalledVersion(targetID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[targetID]
}

// Calls 全部安装调用
func (m *MockInstaller) Calls() []InstallCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]InstallCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// InstallCount 目标被安装的次数
func (m *MockInstaller) InstallCount(targetID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.calls {
		if call.TargetID == targetID {
			count++
		}
	}
	return count
}

// AssertInstalled 断言目标最终安装的版本
func (m *MockInstaller) AssertInstalled(t mock.TestingT, targetID int64, version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[targetID] != version {
		t.Errorf("target %d installed version %q, want %q", targetID, m.versions[targetID], version)
	}
}
