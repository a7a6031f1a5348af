package service

import (
	"errors"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/internal/repository"
	pkgErrors "deploy-orchestrator/pkg/errors"
)

// RecordService 发布记录查询
//
// 记录只追加不修改, 这里只有读路径。
type RecordService interface {
	ListByTarget(targetID int64, param dto.RecordListParam) (*dto.PageResponse, error)
	ListByRequest(requestID string) ([]dto.RecordInfo, error)
}

type recordService struct {
	recordRepo *repository.RecordRepository
	targetRepo *repository.TargetRepository
}

// NewRecordService 创建发布记录服务
func NewRecordService(recordRepo *repository.RecordRepository, targetRepo *repository.TargetRepository) RecordService {
	return &recordService{recordRepo: recordRepo, targetRepo: targetRepo}
}

// ListByTarget 分页查询单目标的发布历史
func (s *recordService) ListByTarget(targetID int64, param dto.RecordListParam) (*dto.PageResponse, error) {
	// 先确认目标存在, 让"目标不存在"和"没有历史"可区分
	if _, err := s.targetRepo.GetByID(targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrTargetNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "查询目标失败", err)
	}

	var opts []repository.QueryOption
	if param.Since != nil {
		opts = append(opts, repository.WithSince(*param.Since))
	}
	records, total, err := s.recordRepo.ListByTarget(targetID, param, opts...)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "查询发布记录失败", err)
	}
	items := lo.Map(records, func(record *model.DeploymentRecord, _ int) dto.RecordInfo {
		return toRecordInfo(record)
	})
	return dto.NewPageResponse(items, total, param.GetPage(), param.GetPageSize()), nil
}

// ListByRequest 查询一次发布产生的全部记录, 按写入顺序返回
func (s *recordService) ListByRequest(requestID string) ([]dto.RecordInfo, error) {
	records, err := s.recordRepo.ListByRequest(requestID)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "查询发布记录失败", err)
	}
	return lo.Map(records, func(record *model.DeploymentRecord, _ int) dto.RecordInfo {
		return toRecordInfo(record)
	}), nil
}

func toRecordInfo(record *model.DeploymentRecord) dto.RecordInfo {
	info := dto.RecordInfo{
		ID:               record.ID,
		RequestID:        record.RequestID,
		TargetID:         record.TargetID,
		TargetName:       record.TargetName,
		PreviousVersion:  record.PreviousVersion,
		AttemptedVersion: record.AttemptedVersion,
		ArtifactRef:      record.ArtifactRef,
		Outcome:          record.Outcome,
		StartedAt:        record.StartedAt,
		FinishedAt:       record.FinishedAt,
	}
	if record.Detail != nil {
		info.Detail = *record.Detail
	}
	return info
}
