package registry

import (
	"fmt"
	"sync"

	"github.com/samber/lo"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
	"deploy-orchestrator/pkg/errors"
)

// TargetStore 目标持久化接口, 由 repository.TargetRepository 实现
type TargetStore interface {
	Create(target *model.Target) error
	GetByID(id int64) (*model.Target, error)
	GetByName(name string) (*model.Target, error)
	GetByIDs(ids []int64) ([]*model.Target, error)
	ListActiveByGroup(group string) ([]*model.Target, error)
	ListAll() ([]*model.Target, error)
	Update(target *model.Target) error
	UpdateVersion(id int64, version string) error
	UpdateRoutingState(id int64, state string) error
	UpdateStatus(id int64, status int8) error
}

// Registry 目标注册表, 目标的版本和流量状态只通过它修改
//
// 同一目标上的写操作必须串行: 策略在目标级步骤前后成对调用 Lock/Unlock,
// 服务层的手工操作走 WithLock。锁按目标惰性创建, 进程内不回收,
// 不同目标之间互不阻塞。
type Registry struct {
	store TargetStore

	mu       sync.Mutex             // 保护下面三张表
	locks    map[int64]*sync.Mutex  // 目标互斥锁
	attempts map[int64]string       // 进行中的发布尝试: targetID -> requestID
	outcomes map[int64]string       // 本进程内最近一次已结束尝试的结果
}

// New 创建目标注册表
func New(store TargetStore) *Registry {
	return &Registry{
		store:    store,
		locks:    make(map[int64]*sync.Mutex),
		attempts: make(map[int64]string),
		outcomes: make(map[int64]string),
	}
}

// lockFor 取目标锁, 不存在则创建
func (r *Registry) lockFor(targetID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[targetID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[targetID] = lock
	}
	return lock
}

// Lock 锁定目标, 与 Unlock 成对使用
func (r *Registry) Lock(targetID int64) {
	r.lockFor(targetID).Lock()
}

// Unlock 释放目标锁
func (r *Registry) Unlock(targetID int64) {
	r.lockFor(targetID).Unlock()
}

// WithLock 在目标锁内执行 fn
func (r *Registry) WithLock(targetID int64, fn func() error) error {
	r.Lock(targetID)
	defer r.Unlock(targetID)
	return fn()
}

// Get 按ID取目标
func (r *Registry) Get(targetID int64) (*model.Target, error) {
	target, err := r.store.GetByID(targetID)
	if err != nil {
		return nil, errors.ErrTargetNotFound
	}
	return target, nil
}

// Resolve 按ID列表解析目标, 保持入参顺序
//
// 列表中有重复、不存在或已退役的目标时整体失败, 不做部分解析。
func (r *Registry) Resolve(targetIDs []int64) ([]*model.Target, error) {
	if len(targetIDs) == 0 {
		return nil, errors.New(errors.CodeValidationError, "目标列表不能为空")
	}
	if dups := lo.FindDuplicates(targetIDs); len(dups) > 0 {
		return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("目标列表存在重复ID: %v", dups))
	}

	targets, err := r.store.GetByIDs(targetIDs)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "查询目标失败", err)
	}
	if len(targets) != len(targetIDs) {
		found := lo.Map(targets, func(t *model.Target, _ int) int64 { return t.ID })
		missing, _ := lo.Difference(targetIDs, found)
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("目标不存在: %v", missing))
	}
	for _, target := range targets {
		if target.Retired() {
			return nil, errors.New(errors.CodeForbidden, fmt.Sprintf("目标已退役: %s", target.Name))
		}
	}
	return targets, nil
}

// ResolveGroup 按分组解析全部在役目标, 按ID稳定排序
func (r *Registry) ResolveGroup(group string) ([]*model.Target, error) {
	targets, err := r.store.ListActiveByGroup(group)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "查询分组目标失败", err)
	}
	if len(targets) == 0 {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("分组内没有在役目标: %s", group))
	}
	return targets, nil
}

// BeginAttempt 登记一次发布尝试, 同一目标同时只允许一次
func (r *Registry) BeginAttempt(targetID int64, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.attempts[targetID]; ok {
		return errors.New(errors.CodeConflict, fmt.Sprintf("目标已有进行中的发布尝试: %s", holder))
	}
	r.attempts[targetID] = requestID
	return nil
}

// EndAttempt 结束发布尝试并登记结果
//
// outcome 为空表示尝试没有留下任何记录(目标未被改动), 不影响后续恢复接流的判定。
func (r *Registry) EndAttempt(targetID int64, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.attempts, targetID)
	if outcome != "" {
		r.outcomes[targetID] = outcome
	}
}

// AttemptInFlight 查询目标是否有未结束的发布尝试
func (r *Registry) AttemptInFlight(targetID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	requestID, ok := r.attempts[targetID]
	return requestID, ok
}

// lastOutcome 本进程内目标最近一次尝试的结果, 没有记录时 ok 为 false
func (r *Registry) lastOutcome(targetID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome, ok := r.outcomes[targetID]
	return outcome, ok
}

// GetVersion 目标当前版本, 未发布过时为 nil
func (r *Registry) GetVersion(targetID int64) (*string, error) {
	target, err := r.Get(targetID)
	if err != nil {
		return nil, err
	}
	return target.CurrentVersion, nil
}

// SetVersion 更新目标当前版本, 只在成功记录落账后调用
func (r *Registry) SetVersion(targetID int64, version string) error {
	if err := r.store.UpdateVersion(targetID, version); err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "更新目标版本失败", err)
	}
	return nil
}

// MarkRoutingState 更新目标流量状态
//
// 恢复接流(in_rotation)有前置条件: 目标在役、没有未结束的发布尝试,
// 且最近一次尝试(如有)以成功告终。摘流方向不设限制。
func (r *Registry) MarkRoutingState(targetID int64, state string) error {
	if state == constants.RoutingInRotation {
		target, err := r.Get(targetID)
		if err != nil {
			return err
		}
		if target.Retired() {
			return errors.ErrTargetRetired
		}
		if holder, ok := r.AttemptInFlight(targetID); ok {
			return errors.New(errors.CodeConflict, fmt.Sprintf("目标存在未结束的发布尝试(%s), 不能恢复接流", holder))
		}
		if outcome, ok := r.lastOutcome(targetID); ok && outcome != constants.OutcomeSuccess {
			return errors.New(errors.CodeConflict, fmt.Sprintf("目标最近一次发布结果为 %s, 不能恢复接流", outcome))
		}
	}
	if err := r.store.UpdateRoutingState(targetID, state); err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "更新目标流量状态失败", err)
	}
	return nil
}

// Retire 退役目标, 保留历史记录不删除
func (r *Registry) Retire(targetID int64) error {
	if holder, ok := r.AttemptInFlight(targetID); ok {
		return errors.New(errors.CodeConflict, fmt.Sprintf("目标存在进行中的发布(%s), 不能退役", holder))
	}
	if err := r.store.UpdateRoutingState(targetID, constants.RoutingDrained); err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "更新目标流量状态失败", err)
	}
	if err := r.store.UpdateStatus(targetID, constants.TargetStatusRetired); err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "更新目标状态失败", err)
	}
	return nil
}

// Register 注册新目标
func (r *Registry) Register(target *model.Target) error {
	if target.RoutingState == "" {
		target.RoutingState = constants.RoutingInRotation
	}
	if target.Status == 0 {
		target.Status = constants.TargetStatusActive
	}
	if err := r.store.Create(target); err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "创建目标失败", err)
	}
	return nil
}

// Update 更新目标基础信息
func (r *Registry) Update(target *model.Target) error {
	if err := r.store.Update(target); err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "更新目标失败", err)
	}
	return nil
}
