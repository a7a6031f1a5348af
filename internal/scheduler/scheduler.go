package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"deploy-orchestrator/internal/pkg/config"
	"deploy-orchestrator/internal/repository"
	"deploy-orchestrator/internal/service"
)

// Scheduler 调度器
//
// 承载三类后台任务: 目标清单定时重同步、孤儿发布单清理、过期发布记录清理。
type Scheduler struct {
	cron          *cron.Cron
	logger        *zap.Logger
	inventorySvc  *service.InventoryService
	requestRepo   *repository.RequestRepository
	recordRepo    *repository.RecordRepository
	cronSchedules map[string]cron.EntryID // 存储任务ID，便于管理
}

// NewScheduler 创建调度器
func NewScheduler(inventorySvc *service.InventoryService, requestRepo *repository.RequestRepository, recordRepo *repository.RecordRepository, logger *zap.Logger) *Scheduler {
	// 创建 cron 实例（带秒级支持）
	c := cron.New(cron.WithSeconds())

	return &Scheduler{
		cron:          c,
		logger:        logger,
		inventorySvc:  inventorySvc,
		requestRepo:   requestRepo,
		recordRepo:    recordRepo,
		cronSchedules: make(map[string]cron.EntryID),
	}
}

// Start 启动调度器
func (s *Scheduler) Start(cfg *config.Config) error {
	log := s.logger.Sugar()

	log.Info("启动定时任务调度器...")

	// cron 表达式格式: 秒 分 时 日 月 周
	if err := s.registerInventorySync(cfg); err != nil {
		return err
	}
	if err := s.registerStaleRunReaper(cfg); err != nil {
		return err
	}
	if err := s.registerRecordRetention(cfg); err != nil {
		return err
	}

	// 启动 cron
	s.cron.Start()
	log.Info("定时任务调度器启动成功")

	return nil
}

// registerInventorySync 目标清单定时重同步
func (s *Scheduler) registerInventorySync(cfg *config.Config) error {
	log := s.logger.Sugar()

	if cfg.Inventory.File == "" {
		log.Info("未配置目标清单文件, 跳过清单同步任务")
		return nil
	}

	cronExpr := cfg.Inventory.SyncCron
	if cronExpr == "" {
		cronExpr = "0 */5 * * * *" // 默认: 每5分钟
		log.Warn("未配置inventory.sync_cron，使用默认值", zap.String("cron", cronExpr))
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		log.Info("执行定时任务: 目标清单同步")
		if err := s.inventorySvc.Sync(); err != nil {
			log.Errorf("目标清单同步任务执行失败: %v", err)
		}
	})
	if err != nil {
		log.Errorf("注册目标清单同步任务失败: cron=%v err=%v", cronExpr, err)
		return err
	}

	s.cronSchedules["inventory_sync"] = entryID
	log.Infof("目标清单同步任务已注册: %s entry_id=%d", cronExpr, entryID)
	return nil
}

// registerStaleRunReaper 孤儿发布单清理
//
// 进程异常退出会留下永远running的发布单, 超时后统一关成timed_out。
func (s *Scheduler) registerStaleRunReaper(cfg *config.Config) error {
	log := s.logger.Sugar()

	cronExpr := cfg.Engine.StaleRunCron
	if cronExpr == "" {
		cronExpr = "0 */10 * * * *" // 默认: 每10分钟
		log.Warn("未配置engine.stale_run_cron，使用默认值", zap.String("cron", cronExpr))
	}

	staleAfter := cfg.Engine.GetStaleRunAfter()
	entryID, err := s.cron.AddFunc(cronExpr, func() {
		before := time.Now().Add(-staleAfter)
		n, err := s.requestRepo.CloseStaleRunning(before, "进程重启后由后台任务关闭")
		if err != nil {
			log.Errorf("孤儿发布单清理任务执行失败: %v", err)
			return
		}
		if n > 0 {
			log.Infof("孤儿发布单清理完成: closed=%d", n)
		}
	})
	if err != nil {
		log.Errorf("注册孤儿发布单清理任务失败: cron=%v err=%v", cronExpr, err)
		return err
	}

	s.cronSchedules["stale_run_reaper"] = entryID
	log.Infof("孤儿发布单清理任务已注册: %s entry_id=%d", cronExpr, entryID)
	return nil
}

// registerRecordRetention 过期发布记录清理
//
// 每个目标最近一次成功记录永不清理, 保证回滚锚点可用。
func (s *Scheduler) registerRecordRetention(cfg *config.Config) error {
	log := s.logger.Sugar()

	if cfg.Engine.RetentionDays <= 0 {
		log.Info("未配置engine.retention_days, 发布记录不清理")
		return nil
	}

	cronExpr := cfg.Engine.RetentionCron
	if cronExpr == "" {
		cronExpr = "0 0 3 * * *" // 默认: 每天凌晨3点
		log.Warn("未配置engine.retention_cron，使用默认值", zap.String("cron", cronExpr))
	}

	retention := time.Duration(cfg.Engine.RetentionDays) * 24 * time.Hour
	entryID, err := s.cron.AddFunc(cronExpr, func() {
		cutoff := time.Now().Add(-retention)
		n, err := s.recordRepo.PruneBefore(cutoff)
		if err != nil {
			log.Errorf("发布记录清理任务执行失败: %v", err)
			return
		}
		log.Infof("发布记录清理完成: pruned=%d cutoff=%s", n, cutoff.Format(time.DateTime))
	})
	if err != nil {
		log.Errorf("注册发布记录清理任务失败: cron=%v err=%v", cronExpr, err)
		return err
	}

	s.cronSchedules["record_retention"] = entryID
	log.Infof("发布记录清理任务已注册: %s entry_id=%d", cronExpr, entryID)
	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.logger.Info("正在停止定时任务调度器...")

	// 停止 cron（等待正在执行的任务完成）
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("定时任务调度器已停止")
}

// TriggerInventorySync 手动触发清单同步（用于测试或手动触发）
func (s *Scheduler) TriggerInventorySync() error {
	s.logger.Info("手动触发目标清单同步")
	return s.inventorySvc.Sync()
}
