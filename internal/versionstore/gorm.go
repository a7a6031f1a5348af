package versionstore

import (
	"errors"

	"gorm.io/gorm"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/internal/repository"
)

// GormStore 数据库版本账本
type GormStore struct {
	records *repository.RecordRepository
}

// NewGormStore 创建数据库版本账本
func NewGormStore(records *repository.RecordRepository) *GormStore {
	return &GormStore{
		records: records,
	}
}

// Append 追加一条发布记录
func (s *GormStore) Append(record *model.DeploymentRecord) error {
	return s.records.Create(record)
}

// LastSuccess 目标最近一次成功记录
func (s *GormStore) LastSuccess(targetID int64) (*model.DeploymentRecord, bool, error) {
	record, err := s.records.LastSuccess(targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return record, true, nil
}

// ListByRequest 某次请求的全部记录
func (s *GormStore) ListByRequest(requestID string) ([]*model.DeploymentRecord, error) {
	return s.records.ListByRequest(requestID)
}
