package repository

import (
	"time"

	"gorm.io/gorm"

	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
)

// RecordRepository 发布记录数据访问层, 记录只追加不更新
type RecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository 创建记录Repository
func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{
		db: db,
	}
}

// Create 追加一条发布记录
func (r *RecordRepository) Create(record *model.DeploymentRecord) error {
	return r.db.Create(record).Error
}

// LastSuccess 目标最近一次成功记录, 走(target_id, outcome)索引
func (r *RecordRepository) LastSuccess(targetID int64) (*model.DeploymentRecord, error) {
	var record model.DeploymentRecord
	err := r.db.Where("target_id = ? AND outcome = ?", targetID, constants.OutcomeSuccess).
		Order("id DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// LastRecord 目标最近一次记录(不限结果)
func (r *RecordRepository) LastRecord(targetID int64) (*model.DeploymentRecord, error) {
	var record model.DeploymentRecord
	err := r.db.Where("target_id = ?", targetID).
		Order("id DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByRequest 某次请求的全部记录, 按发生顺序
func (r *RecordRepository) ListByRequest(requestID string) ([]*model.DeploymentRecord, error) {
	var records []*model.DeploymentRecord
	err := r.db.Where("request_id = ?", requestID).
		Order("id ASC").
		Find(&records).Error
	return records, err
}

// ListByTarget 分页查询目标的发布历史, 最新在前
func (r *RecordRepository) ListByTarget(targetID int64, param dto.RecordListParam, opts ...QueryOption) ([]*model.DeploymentRecord, int64, error) {
	var records []*model.DeploymentRecord
	var total int64

	// 可选条件同时作用于计数和取页, 两边口径一致
	applyFilters := func(query *gorm.DB) *gorm.DB {
		query = query.Where("target_id = ?", targetID)
		if param.Outcome != "" {
			query = query.Where("outcome = ?", param.Outcome)
		}
		for _, opt := range opts {
			query = opt(query)
		}
		return query
	}

	if err := applyFilters(r.db.Model(&model.DeploymentRecord{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := applyFilters(r.db).Order("id DESC").
		Limit(param.GetPageSize()).Offset(param.GetOffset()).
		Find(&records).Error

	return records, total, err
}

// PruneBefore 清理过期记录, 每个目标最新的成功记录永不删除
func (r *RecordRepository) PruneBefore(cutoff time.Time) (int64, error) {
	// 每个目标最近一次成功记录的ID集合
	keep := r.db.Model(&model.DeploymentRecord{}).
		Select("MAX(id)").
		Where("outcome = ?", constants.OutcomeSuccess).
		Group("target_id")

	res := r.db.Where("created_at < ?", cutoff).
		Where("id NOT IN (?)", keep).
		Delete(&model.DeploymentRecord{})
	return res.RowsAffected, res.Error
}
