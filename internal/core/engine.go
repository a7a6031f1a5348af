package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"deploy-orchestrator/internal/adapter/notification"
	"deploy-orchestrator/internal/core/strategy"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
	pkgErrors "deploy-orchestrator/pkg/errors"
)

// RequestStore 发布请求持久化接口, 由 repository.RequestRepository 实现
type RequestStore interface {
	Create(request *model.DeploymentRequest) error
	GetByRequestID(requestID string) (*model.DeploymentRequest, error)
	MarkRunning(id int64, startedAt time.Time) error
	FinishRun(id int64, status string, result datatypes.JSON, errorDetail *string, finishedAt time.Time) error
	CloseStaleRunning(before time.Time, detail string) (int64, error)
}

// Engine 发布引擎: 受理请求、排他预留目标、驱动策略运行到终态
//
// 同一目标同一时刻只允许一次在途发布, 预留视图放在进程内存里, 请求终态
// 落库后释放。Submit 对调用方是同步的, 全局超时由旁路定时器通过取消标记
// 注入, 不打断进行中的步骤。
type Engine struct {
	requests RequestStore
	deps     strategy.Deps
	notifier notification.Notifier
	logger   *zap.Logger

	mu       sync.Mutex
	reserved map[int64]string    // targetID -> 持有预留的请求标识
	inflight map[string]struct{} // 在途请求标识
	wg       sync.WaitGroup
	closed   bool
}

// NewEngine 创建发布引擎
func NewEngine(requests RequestStore, deps strategy.Deps, notifier notification.Notifier, logger *zap.Logger) *Engine {
	return &Engine{
		requests: requests,
		deps:     deps,
		notifier: notifier,
		logger:   logger.Named("engine"),
		reserved: make(map[int64]string),
		inflight: make(map[string]struct{}),
	}
}

// Reconcile 启动恢复
//
// 运行态不落盘, 重启后卡在 running 的请求都是孤儿, 一律按超时关闭。
// 目标侧无需处理: 预留视图随进程重建, 流量状态以注册表落库值为准。
func (e *Engine) Reconcile() error {
	closed, err := e.requests.CloseStaleRunning(time.Now(), "进程重启, 运行状态丢失, 按超时关闭")
	if err != nil {
		return fmt.Errorf("关闭遗留请求失败: %w", err)
	}
	if closed > 0 {
		e.logger.Warn("启动时关闭了遗留的进行中请求", zap.Int64("count", closed))
	}
	return nil
}

// Shutdown 停止受理新请求并等待在途运行结束
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.logger.Info("发布引擎停止受理, 等待在途运行结束")
	e.wg.Wait()
	e.logger.Info("发布引擎已停止")
}

// Submit 受理并同步执行一次发布请求
//
// 校验失败与冲突在任何副作用之前返回, 被拒绝的请求不落库。受理成功后
// 请求落库为 running, 策略在当前调用内驱动到终态, 终态连同各目标净结果
// 写回请求行。
func (e *Engine) Submit(ctx context.Context, request *model.DeploymentRequest, targets []*model.Target, cfg strategy.Config) (*strategy.Result, error) {
	strat, err := e.strategyFor(request.Strategy)
	if err != nil {
		return nil, err
	}

	run := strategy.NewRun(request, targets, cfg)
	if err := strat.Validate(run); err != nil {
		return nil, err
	}

	if err := e.reserve(request.RequestID, targets); err != nil {
		return nil, err
	}
	defer e.release(request.RequestID, targets)

	if err := e.persistAccepted(request, cfg); err != nil {
		return nil, err
	}

	e.logger.Info("发布请求已受理",
		zap.String("request_id", request.RequestID),
		zap.String("strategy", request.Strategy),
		zap.String("version", request.Version),
		zap.Int("targets", len(targets)))
	e.notifyStart(ctx, request, len(targets))

	if cfg.Timeout > 0 {
		timer := time.AfterFunc(cfg.Timeout, run.Cancel)
		defer timer.Stop()
	}

	// 策略不挂在调用方上下文上, 调用方断连不会打断发布
	result, execErr := strat.Execute(context.Background(), run)
	finishedAt := time.Now()

	if execErr != nil {
		detail := execErr.Error()
		if err := e.requests.FinishRun(request.ID, constants.RunStatusFailed, nil, &detail, finishedAt); err != nil {
			e.logger.Error("写入请求终态失败",
				zap.String("request_id", request.RequestID), zap.Error(err))
		}
		request.Status = constants.RunStatusFailed
		request.ErrorDetail = &detail
		request.FinishedAt = &finishedAt
		e.notifyOutcome(request, &strategy.Result{Status: constants.RunStatusFailed, Detail: detail}, targets)
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "发布执行异常", execErr)
	}

	resultJSON, err := json.Marshal(result.Targets)
	if err != nil {
		return nil, fmt.Errorf("序列化运行结果失败: %w", err)
	}
	var detailPtr *string
	if result.Detail != "" {
		detailPtr = lo.ToPtr(result.Detail)
	}
	if err := e.requests.FinishRun(request.ID, result.Status, resultJSON, detailPtr, finishedAt); err != nil {
		e.logger.Error("写入请求终态失败",
			zap.String("request_id", request.RequestID), zap.Error(err))
	}
	request.Status = result.Status
	request.Result = resultJSON
	request.ErrorDetail = detailPtr
	request.FinishedAt = &finishedAt

	e.logger.Info("发布请求已完成",
		zap.String("request_id", request.RequestID),
		zap.String("status", result.Status),
		zap.String("detail", result.Detail))
	e.notifyOutcome(request, result, targets)

	return result, nil
}

// strategyFor 按类型构造策略实例
func (e *Engine) strategyFor(kind string) (strategy.Strategy, error) {
	switch kind {
	case constants.StrategyRolling:
		return strategy.NewRolling(e.deps), nil
	case constants.StrategyBlueGreen:
		return strategy.NewBlueGreen(e.deps), nil
	case constants.StrategyCanary:
		return strategy.NewCanary(e.deps), nil
	default:
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "未知的发布策略: "+kind)
	}
}

// reserve 预留目标集合, 与所有在途请求互斥
func (e *Engine) reserve(requestID string, targets []*model.Target) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return pkgErrors.New(pkgErrors.CodeInternalError, "服务正在停机, 暂停受理发布请求")
	}
	if _, ok := e.inflight[requestID]; ok {
		return pkgErrors.New(pkgErrors.CodeConflict,
			fmt.Sprintf("请求 %s 已在执行中, 拒绝重复提交", requestID))
	}
	for _, target := range targets {
		if holder, ok := e.reserved[target.ID]; ok {
			return pkgErrors.New(pkgErrors.CodeConflict,
				fmt.Sprintf("目标 %s 正被请求 %s 发布, 拒绝提交", target.Name, holder))
		}
	}

	for _, target := range targets {
		e.reserved[target.ID] = requestID
	}
	e.inflight[requestID] = struct{}{}
	e.wg.Add(1)
	return nil
}

// release 释放预留, 与 reserve 成对
func (e *Engine) release(requestID string, targets []*model.Target) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, target := range targets {
		if e.reserved[target.ID] == requestID {
			delete(e.reserved, target.ID)
		}
	}
	delete(e.inflight, requestID)
	e.wg.Done()
}

// persistAccepted 受理落库: 请求标识查重后以 running 状态写入
func (e *Engine) persistAccepted(request *model.DeploymentRequest, cfg strategy.Config) error {
	if _, err := e.requests.GetByRequestID(request.RequestID); err == nil {
		return pkgErrors.New(pkgErrors.CodeConflict,
			fmt.Sprintf("请求标识 %s 已被使用", request.RequestID))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("查询历史请求失败: %w", err)
	}

	raw, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("序列化参数快照失败: %w", err)
	}
	request.Config = datatypes.JSON(raw)
	request.Status = constants.RunStatusPending

	if err := e.requests.Create(request); err != nil {
		return fmt.Errorf("持久化发布请求失败: %w", err)
	}

	startedAt := time.Now()
	if err := e.requests.MarkRunning(request.ID, startedAt); err != nil {
		return fmt.Errorf("标记请求开始失败: %w", err)
	}
	request.Status = constants.RunStatusRunning
	request.StartedAt = &startedAt
	return nil
}

func (e *Engine) notifyStart(ctx context.Context, request *model.DeploymentRequest, targetCount int) {
	if e.notifier == nil {
		return
	}
	message := fmt.Sprintf("策略 %s, 版本 %s, 目标 %d 个", request.Strategy, request.Version, targetCount)
	if err := e.notifier.SendRunNotification(ctx, request, notification.NotifyRunStart, message); err != nil {
		e.logger.Warn("发送开始通知失败", zap.Error(err))
	}
}

func (e *Engine) notifyOutcome(request *model.DeploymentRequest, result *strategy.Result, targets []*model.Target) {
	if e.notifier == nil {
		return
	}
	ctx := context.Background()

	notifyType := notification.NotifyRunFailed
	switch result.Status {
	case constants.RunStatusSucceeded:
		notifyType = notification.NotifyRunSucceeded
	case constants.RunStatusRolledBack:
		notifyType = notification.NotifyRunRolledBack
	case constants.RunStatusTimedOut:
		notifyType = notification.NotifyRunTimedOut
	}
	if err := e.notifier.SendRunNotification(ctx, request, notifyType, result.Detail); err != nil {
		e.logger.Warn("发送结果通知失败", zap.Error(err))
	}

	for _, tr := range result.Targets {
		target, ok := lo.Find(targets, func(t *model.Target) bool { return t.ID == tr.TargetID })
		if !ok {
			continue
		}
		var targetType notification.NotificationType
		switch tr.Outcome {
		case constants.OutcomeRolledBack:
			targetType = notification.NotifyTargetRollback
		case constants.OutcomeFailedRollback:
			targetType = notification.NotifyRollbackFailed
		default:
			continue
		}
		if err := e.notifier.SendTargetNotification(ctx, request.RequestID, target, targetType, tr.Detail); err != nil {
			e.logger.Warn("发送目标通知失败",
				zap.String("target", target.Name), zap.Error(err))
		}
	}
}
