package registry

import (
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
)

// MemoryStore 内存目标存储, 用于测试和单机试跑
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	targets map[int64]*model.Target
}

// NewMemoryStore 创建内存目标存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:  1,
		targets: make(map[int64]*model.Target),
	}
}

// Create 创建目标
func (s *MemoryStore) Create(target *model.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.targets {
		if t.Name == target.Name {
			return fmt.Errorf("目标名称已存在: %s", target.Name)
		}
	}
	target.ID = s.nextID
	s.nextID++
	clone := *target
	s.targets[target.ID] = &clone
	return nil
}

// GetByID 按ID取目标
func (s *MemoryStore) GetByID(id int64) (*model.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.targets[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *target
	return &clone, nil
}

// GetByName 按名称取目标
func (s *MemoryStore) GetByName(name string) (*model.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, target := range s.targets {
		if target.Name == name {
			clone := *target
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// GetByIDs 按ID列表取目标, 保持入参顺序, 不存在的ID直接跳过
func (s *MemoryStore) GetByIDs(ids []int64) ([]*model.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Target, 0, len(ids))
	for _, id := range ids {
		if target, ok := s.targets[id]; ok {
			clone := *target
			out = append(out, &clone)
		}
	}
	return out, nil
}

// ListActiveByGroup 分组内全部在役目标, 按ID排序
func (s *MemoryStore) ListActiveByGroup(group string) ([]*model.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Target
	for _, target := range s.targets {
		if target.Group == group && target.Status == constants.TargetStatusActive {
			clone := *target
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListAll 全部目标, 按ID排序
func (s *MemoryStore) ListAll() ([]*model.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Target, 0, len(s.targets))
	for _, target := range s.targets {
		clone := *target
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update 更新目标
func (s *MemoryStore) Update(target *model.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.targets[target.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	clone := *target
	s.targets[target.ID] = &clone
	return nil
}

// UpdateVersion 更新目标当前版本
func (s *MemoryStore) UpdateVersion(id int64, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	target.CurrentVersion = &version
	return nil
}

// UpdateRoutingState 更新目标流量状态
func (s *MemoryStore) UpdateRoutingState(id int64, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	target.RoutingState = state
	return nil
}

// UpdateStatus 更新目标状态
func (s *MemoryStore) UpdateStatus(id int64, status int8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	target.Status = status
	return nil
}
