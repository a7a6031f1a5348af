package service

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"deploy-orchestrator/internal/adapter/traffic"
	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/internal/pkg/config"
	"deploy-orchestrator/internal/registry"
	"deploy-orchestrator/internal/repository"
	"deploy-orchestrator/pkg/constants"
	pkgErrors "deploy-orchestrator/pkg/errors"
)

// TargetService 目标管理
//
// 版本和流量状态的变更都走注册表, 保证和发布中的目标互斥;
// 手工摘流/接流同时驱动流量控制层, 注册表状态和路由层保持一致。
type TargetService interface {
	List(param dto.TargetListParam) (*dto.PageResponse, error)
	GetByID(id int64) (*dto.TargetInfo, error)
	Create(req *dto.CreateTargetRequest) (*dto.TargetInfo, error)
	Update(id int64, req *dto.UpdateTargetRequest) (*dto.TargetInfo, error)
	UpdateRouting(ctx context.Context, id int64, req *dto.UpdateRoutingRequest) (*dto.TargetInfo, error)
	Retire(id int64) error
}

type targetService struct {
	registry   *registry.Registry
	targetRepo *repository.TargetRepository
	traffic    traffic.Controller
	cfg        *config.Config
}

// NewTargetService 创建目标服务
func NewTargetService(reg *registry.Registry, targetRepo *repository.TargetRepository, trafficCtrl traffic.Controller, cfg *config.Config) TargetService {
	return &targetService{
		registry:   reg,
		targetRepo: targetRepo,
		traffic:    trafficCtrl,
		cfg:        cfg,
	}
}

// List 分页查询目标
func (s *targetService) List(param dto.TargetListParam) (*dto.PageResponse, error) {
	targets, total, err := s.targetRepo.List(param)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询目标失败", err)
	}

	items := lo.Map(targets, func(t *model.Target, _ int) dto.TargetInfo {
		return toTargetInfo(t)
	})
	return dto.NewPageResponse(items, total, param.GetPage(), param.GetPageSize()), nil
}

// GetByID 目标详情
func (s *targetService) GetByID(id int64) (*dto.TargetInfo, error) {
	target, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	info := toTargetInfo(target)
	return &info, nil
}

// Create 注册新目标
func (s *targetService) Create(req *dto.CreateTargetRequest) (*dto.TargetInfo, error) {
	if _, err := s.targetRepo.GetByName(req.Name); err == nil {
		return nil, pkgErrors.New(pkgErrors.CodeConflict, "目标名称已存在: "+req.Name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询目标失败", err)
	}

	target := &model.Target{
		Name:    req.Name,
		Address: req.Address,
		Group:   req.Group,
		Pool:    req.Pool,
		Labels:  toLabelMap(req.Labels),
	}
	if err := s.registry.Register(target); err != nil {
		return nil, err
	}

	info := toTargetInfo(target)
	return &info, nil
}

// Update 更新目标基础信息, 名称不可变
func (s *targetService) Update(id int64, req *dto.UpdateTargetRequest) (*dto.TargetInfo, error) {
	var updated *model.Target
	err := s.registry.WithLock(id, func() error {
		target, err := s.registry.Get(id)
		if err != nil {
			return err
		}
		if target.Retired() {
			return pkgErrors.ErrTargetRetired
		}

		if req.Address != "" {
			target.Address = req.Address
		}
		if req.Group != nil {
			target.Group = *req.Group
		}
		if req.Pool != nil {
			target.Pool = *req.Pool
		}
		if req.Labels != nil {
			target.Labels = toLabelMap(req.Labels)
		}
		if err := s.registry.Update(target); err != nil {
			return err
		}
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	info := toTargetInfo(updated)
	return &info, nil
}

// UpdateRouting 手工调整目标流量状态
//
// 摘流(draining/drained)先调路由层再落状态, 等完在途请求的静默期;
// 接流(in_rotation)受注册表前置条件约束, 有未善后的失败发布时被拒绝。
func (s *targetService) UpdateRouting(ctx context.Context, id int64, req *dto.UpdateRoutingRequest) (*dto.TargetInfo, error) {
	var updated *model.Target
	err := s.registry.WithLock(id, func() error {
		target, err := s.registry.Get(id)
		if err != nil {
			return err
		}
		if target.Retired() {
			return pkgErrors.ErrTargetRetired
		}

		switch req.RoutingState {
		case constants.RoutingInRotation:
			if err := s.registry.MarkRoutingState(id, constants.RoutingInRotation); err != nil {
				return err
			}
			if err := s.traffic.Restore(ctx, target); err != nil {
				return pkgErrors.Wrap(pkgErrors.CodeTrafficControl, "恢复接流失败", err)
			}
		case constants.RoutingDraining, constants.RoutingDrained:
			if err := s.registry.MarkRoutingState(id, constants.RoutingDraining); err != nil {
				return err
			}
			if err := s.traffic.Drain(ctx, target, s.cfg.Engine.GetDrainGrace()); err != nil {
				return pkgErrors.Wrap(pkgErrors.CodeTrafficControl, "摘流失败", err)
			}
			if err := s.registry.MarkRoutingState(id, constants.RoutingDrained); err != nil {
				return err
			}
		}

		updated, err = s.registry.Get(id)
		return err
	})
	if err != nil {
		return nil, err
	}

	info := toTargetInfo(updated)
	return &info, nil
}

// Retire 退役目标, 保留历史记录
func (s *targetService) Retire(id int64) error {
	return s.registry.WithLock(id, func() error {
		return s.registry.Retire(id)
	})
}

func toTargetInfo(target *model.Target) dto.TargetInfo {
	info := dto.TargetInfo{
		ID:             target.ID,
		Name:           target.Name,
		Address:        target.Address,
		Group:          target.Group,
		Pool:           target.Pool,
		CurrentVersion: target.CurrentVersion,
		RoutingState:   target.RoutingState,
		Status:         target.Status,
		CreatedAt:      target.CreatedAt,
		UpdatedAt:      target.UpdatedAt,
	}
	if len(target.Labels) > 0 {
		info.Labels = make(map[string]string, len(target.Labels))
		for k, v := range target.Labels {
			if s, ok := v.(string); ok {
				info.Labels[k] = s
			}
		}
	}
	return info
}

func toLabelMap(labels map[string]string) datatypes.JSONMap {
	if labels == nil {
		return nil
	}
	out := make(datatypes.JSONMap, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
