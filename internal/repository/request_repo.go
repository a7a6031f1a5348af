package repository

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
)

// RequestRepository 发布请求数据访问层
type RequestRepository struct {
	db *gorm.DB
}

// NewRequestRepository 创建请求Repository
func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{
		db: db,
	}
}

// Create 创建发布请求
func (r *RequestRepository) Create(req *model.DeploymentRequest) error {
	return r.db.Create(req).Error
}

// GetByID 根据ID获取请求
func (r *RequestRepository) GetByID(id int64) (*model.DeploymentRequest, error) {
	var req model.DeploymentRequest
	err := r.db.First(&req, id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByRequestID 根据请求标识获取
func (r *RequestRepository) GetByRequestID(requestID string) (*model.DeploymentRequest, error) {
	var req model.DeploymentRequest
	err := r.db.Where("request_id = ?", requestID).First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// List 分页查询请求列表
func (r *RequestRepository) List(param dto.DeploymentListParam) ([]*model.DeploymentRequest, int64, error) {
	var reqs []*model.DeploymentRequest
	var total int64

	// Where 条件
	applyFilters := func(query *gorm.DB) *gorm.DB {
		if len(param.Statuses) > 0 {
			query = query.Where("status IN ?", param.Statuses)
		}
		if param.Strategy != "" {
			query = query.Where("strategy = ?", param.Strategy)
		}
		if param.Initiator != "" {
			query = query.Where("initiator = ?", param.Initiator)
		}
		if param.Keyword != "" {
			query = query.Where(
				"request_id LIKE ? OR artifact_ref LIKE ? OR version LIKE ?",
				"%"+param.Keyword+"%", "%"+param.Keyword+"%", "%"+param.Keyword+"%",
			)
		}
		return query
	}

	// 统计总数
	if err := applyFilters(r.db.Model(&model.DeploymentRequest{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (param.GetPage() - 1) * param.GetPageSize()
	err := applyFilters(r.db.Model(&model.DeploymentRequest{})).
		Order("created_at DESC").
		Limit(param.GetPageSize()).Offset(offset).
		Find(&reqs).Error

	return reqs, total, err
}

// ListRunning 获取全部进行中的请求, 服务重启后用于重建冲突视图
func (r *RequestRepository) ListRunning() ([]*model.DeploymentRequest, error) {
	var reqs []*model.DeploymentRequest
	err := r.db.Where("status = ?", constants.RunStatusRunning).Find(&reqs).Error
	return reqs, err
}

// MarkRunning 标记请求开始执行
func (r *RequestRepository) MarkRunning(id int64, startedAt time.Time) error {
	return r.db.Model(&model.DeploymentRequest{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     constants.RunStatusRunning,
			"started_at": startedAt,
		}).Error
}

// FinishRun 写入终态与结果
func (r *RequestRepository) FinishRun(id int64, status string, result datatypes.JSON, errorDetail *string, finishedAt time.Time) error {
	return r.db.Model(&model.DeploymentRequest{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"result":       result,
			"error_detail": errorDetail,
			"finished_at":  finishedAt,
		}).Error
}

// CloseStaleRunning 关闭卡在running的孤儿请求(进程崩溃残留), 返回影响行数
func (r *RequestRepository) CloseStaleRunning(before time.Time, detail string) (int64, error) {
	res := r.db.Model(&model.DeploymentRequest{}).
		Where("status = ? AND updated_at < ?", constants.RunStatusRunning, before).
		Updates(map[string]interface{}{
			"status":       constants.RunStatusTimedOut,
			"error_detail": detail,
			"finished_at":  time.Now(),
		})
	return res.RowsAffected, res.Error
}
