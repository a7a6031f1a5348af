package repository

import (
	"gorm.io/gorm"

	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/model"
)

// TargetRepository 部署目标数据访问层
type TargetRepository struct {
	db *gorm.DB
}

// NewTargetRepository 创建目标Repository
func NewTargetRepository(db *gorm.DB) *TargetRepository {
	return &TargetRepository{
		db: db,
	}
}

// Create 创建目标
func (r *TargetRepository) Create(target *model.Target) error {
	return r.db.Create(target).Error
}

// GetByID 根据ID获取目标
func (r *TargetRepository) GetByID(id int64) (*model.Target, error) {
	var target model.Target
	err := r.db.First(&target, id).Error
	if err != nil {
		return nil, err
	}
	return &target, nil
}

// GetByName 根据名称获取目标
func (r *TargetRepository) GetByName(name string) (*model.Target, error) {
	var target model.Target
	err := r.db.Where("name = ?", name).First(&target).Error
	if err != nil {
		return nil, err
	}
	return &target, nil
}

// GetByIDs 批量获取目标, 保持入参顺序
func (r *TargetRepository) GetByIDs(ids []int64) ([]*model.Target, error) {
	var targets []*model.Target
	if err := r.db.Where("id IN ?", ids).Find(&targets).Error; err != nil {
		return nil, err
	}

	byID := make(map[int64]*model.Target, len(targets))
	for _, t := range targets {
		byID[t.ID] = t
	}

	ordered := make([]*model.Target, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered, nil
}

// ListActiveByGroup 获取分组内全部在役目标, 按ID排序保证顺序稳定
func (r *TargetRepository) ListActiveByGroup(group string) ([]*model.Target, error) {
	var targets []*model.Target
	err := r.db.Where("group_name = ? AND status = ?", group, 1).
		Order("id ASC").
		Find(&targets).Error
	return targets, err
}

// ListAll 获取全部目标(含退役)
func (r *TargetRepository) ListAll() ([]*model.Target, error) {
	var targets []*model.Target
	err := r.db.Order("id ASC").Find(&targets).Error
	return targets, err
}

// List 分页查询目标列表
func (r *TargetRepository) List(req dto.TargetListParam) ([]*model.Target, int64, error) {
	var targets []*model.Target
	var total int64

	// Where 条件
	applyFilters := func(query *gorm.DB) *gorm.DB {
		if req.Group != "" {
			query = query.Where("group_name = ?", req.Group)
		}
		if req.Pool != "" {
			query = query.Where("pool = ?", req.Pool)
		}
		if req.RoutingState != "" {
			query = query.Where("routing_state = ?", req.RoutingState)
		}
		if req.Status != nil {
			query = query.Where("status = ?", *req.Status)
		}
		if req.Keyword != "" {
			query = query.Where(
				"name LIKE ? OR address LIKE ?",
				"%"+req.Keyword+"%", "%"+req.Keyword+"%",
			)
		}
		return query
	}

	// 统计总数
	if err := applyFilters(r.db.Model(&model.Target{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (req.GetPage() - 1) * req.GetPageSize()
	err := applyFilters(r.db.Model(&model.Target{})).
		Order("id ASC").
		Limit(req.GetPageSize()).Offset(offset).
		Find(&targets).Error

	return targets, total, err
}

// Update 更新目标
func (r *TargetRepository) Update(target *model.Target) error {
	return r.db.Save(target).Error
}

// UpdateVersion 更新目标当前版本
func (r *TargetRepository) UpdateVersion(id int64, version string) error {
	return r.db.Model(&model.Target{}).Where("id = ?", id).
		Update("current_version", version).Error
}

// UpdateRoutingState 更新目标流量状态
func (r *TargetRepository) UpdateRoutingState(id int64, state string) error {
	return r.db.Model(&model.Target{}).Where("id = ?", id).
		Update("routing_state", state).Error
}

// UpdateStatus 更新目标在役状态
func (r *TargetRepository) UpdateStatus(id int64, status int8) error {
	return r.db.Model(&model.Target{}).Where("id = ?", id).
		Update("status", status).Error
}
