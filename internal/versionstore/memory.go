package versionstore

import (
	"sync"
	"time"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
)

// MemoryStore 内存版本账本, 用于测试和单机试跑
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records []model.DeploymentRecord
}

// NewMemoryStore 创建内存版本账本
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
	}
}

// Append 追加一条发布记录
func (s *MemoryStore) Append(record *model.DeploymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = s.nextID
	s.nextID++
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	s.records = append(s.records, *record)
	return nil
}

// LastSuccess 目标最近一次成功记录
func (s *MemoryStore) LastSuccess(targetID int64) (*model.DeploymentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].TargetID == targetID && s.records[i].Outcome == constants.OutcomeSuccess {
			record := s.records[i]
			return &record, true, nil
		}
	}
	return nil, false, nil
}

// ListByRequest 某次请求的全部记录
func (s *MemoryStore) ListByRequest(requestID string) ([]*model.DeploymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.DeploymentRecord
	for i := range s.records {
		if s.records[i].RequestID == requestID {
			record := s.records[i]
			out = append(out, &record)
		}
	}
	return out, nil
}

// All 全部记录快照, 按写入顺序
func (s *MemoryStore) All() []model.DeploymentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.DeploymentRecord, len(s.records))
	copy(out, s.records)
	return out
}
