package service

import (
	"errors"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/internal/pkg/inventory"
	"deploy-orchestrator/internal/registry"
	"deploy-orchestrator/internal/repository"
)

// InventoryService 目标清单同步
//
// 以清单文件为机群事实源: 清单里的目标按名称upsert, 清单外的在役目标
// 标记退役(不删除, 历史记录保留)。API注册的目标若想躲过退役,
// 也应该进清单。
type InventoryService struct {
	registry   *registry.Registry
	targetRepo *repository.TargetRepository
	file       string
	logger     *zap.Logger
}

// NewInventoryService 创建清单同步服务
func NewInventoryService(reg *registry.Registry, targetRepo *repository.TargetRepository, file string, logger *zap.Logger) *InventoryService {
	return &InventoryService{
		registry:   reg,
		targetRepo: targetRepo,
		file:       file,
		logger:     logger.Named("inventory"),
	}
}

// Sync 全量同步一次目标清单
//
// 清单解析失败时不动任何目标, 宁可保持旧机群视图也不按坏清单退役。
func (s *InventoryService) Sync() error {
	if s.file == "" {
		s.logger.Debug("未配置目标清单文件, 跳过同步")
		return nil
	}

	specs, err := inventory.Load(s.file)
	if err != nil {
		return err
	}

	created, updated := 0, 0
	inFile := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		inFile[spec.Name] = struct{}{}

		existing, err := s.targetRepo.GetByName(spec.Name)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			target := &model.Target{
				Name:    spec.Name,
				Address: spec.Address,
				Group:   spec.Group,
				Pool:    spec.Pool,
				Labels:  toLabelMap(spec.Labels),
			}
			if err := s.registry.Register(target); err != nil {
				return err
			}
			created++
			continue
		}
		if err != nil {
			return err
		}

		if err := s.syncExisting(existing, spec); err != nil {
			return err
		}
		updated++
	}

	// 清单外的在役目标退役; 有在途发布的目标跳过, 下轮同步再处理
	retired := 0
	all, err := s.targetRepo.ListAll()
	if err != nil {
		return err
	}
	for _, target := range all {
		if target.Retired() {
			continue
		}
		if _, ok := inFile[target.Name]; ok {
			continue
		}
		err := s.registry.WithLock(target.ID, func() error {
			return s.registry.Retire(target.ID)
		})
		if err != nil {
			s.logger.Warn("退役清单外目标失败, 留待下轮同步",
				zap.String("target", target.Name), zap.Error(err))
			continue
		}
		retired++
	}

	s.logger.Info("目标清单同步完成",
		zap.String("file", s.file),
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("retired", retired))
	return nil
}

// syncExisting 在目标锁内套用清单中的属性, 已退役的目标重新启用
func (s *InventoryService) syncExisting(existing *model.Target, spec inventory.TargetSpec) error {
	return s.registry.WithLock(existing.ID, func() error {
		target, err := s.registry.Get(existing.ID)
		if err != nil {
			return err
		}

		target.Address = spec.Address
		target.Group = spec.Group
		target.Pool = spec.Pool
		target.Labels = toLabelMap(spec.Labels)
		if target.Retired() {
			target.Status = 1
			s.logger.Info("清单目标重新启用", zap.String("target", target.Name))
		}
		return s.registry.Update(target)
	})
}

// GroupNames 清单中出现过的分组, 供启动日志展示
func (s *InventoryService) GroupNames() ([]string, error) {
	if s.file == "" {
		return nil, nil
	}
	specs, err := inventory.Load(s.file)
	if err != nil {
		return nil, err
	}
	groups := lo.Uniq(lo.FilterMap(specs, func(spec inventory.TargetSpec, _ int) (string, bool) {
		return spec.Group, spec.Group != ""
	}))
	return groups, nil
}
