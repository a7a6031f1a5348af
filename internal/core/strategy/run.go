package strategy

import (
	"sync"
	"sync/atomic"
	"time"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
	"deploy-orchestrator/pkg/errors"
)

// Run 一次发布请求的内存执行态, 归当前策略实例所有, 运行结束即丢弃
type Run struct {
	Request  *model.DeploymentRequest
	Targets  []*model.Target
	Config   Config
	Deadline time.Time // 全局截止时刻, 零值表示不限时

	cancelled atomic.Bool

	mu      sync.Mutex
	results map[int64]TargetResult
	order   []int64
}

// NewRun 创建执行态
func NewRun(request *model.DeploymentRequest, targets []*model.Target, cfg Config) *Run {
	run := &Run{
		Request: request,
		Targets: targets,
		Config:  cfg,
		results: make(map[int64]TargetResult, len(targets)),
	}
	if cfg.Timeout > 0 {
		run.Deadline = time.Now().Add(cfg.Timeout)
	}
	return run
}

// Cancel 置取消标记, 只在离散步骤之间被观察到, 不打断进行中的步骤
func (r *Run) Cancel() {
	r.cancelled.Store(true)
}

// Cancelled 是否已被取消
func (r *Run) Cancelled() bool {
	return r.cancelled.Load()
}

// Checkpoint 协作式取消检查, 策略在每个离散步骤之间调用
//
// 过了全局截止时刻等同于被取消, 两种情况都返回超时错误。
func (r *Run) Checkpoint() error {
	if r.cancelled.Load() {
		return errors.ErrTimeout
	}
	if !r.Deadline.IsZero() && time.Now().After(r.Deadline) {
		r.cancelled.Store(true)
		return errors.ErrTimeout
	}
	return nil
}

// SetResult 登记目标净结果, 重复登记时覆盖并保持首次出现的顺序
func (r *Run) SetResult(result TargetResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.results[result.TargetID]; !ok {
		r.order = append(r.order, result.TargetID)
	}
	r.results[result.TargetID] = result
}

// ResultFor 查询目标的净结果
func (r *Run) ResultFor(targetID int64) (TargetResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, ok := r.results[targetID]
	return result, ok
}

// Results 全部目标净结果, 按登记顺序
func (r *Run) Results() []TargetResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TargetResult, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.results[id])
	}
	return out
}

// SucceededTargets 本次运行中净结果为成功的目标, 按登记顺序
func (r *Run) SucceededTargets() []*model.Target {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Target
	for _, target := range r.Targets {
		if result, ok := r.results[target.ID]; ok && result.Outcome == constants.OutcomeSuccess {
			out = append(out, target)
		}
	}
	return out
}

// MarkSkipped 为所有尚无结果的目标登记跳过
func (r *Run) MarkSkipped(detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, target := range r.Targets {
		if _, ok := r.results[target.ID]; ok {
			continue
		}
		r.order = append(r.order, target.ID)
		r.results[target.ID] = TargetResult{
			TargetID:     target.ID,
			TargetName:   target.Name,
			Address:      target.Address,
			Outcome:      constants.OutcomeSkipped,
			FinalVersion: target.CurrentVersion,
			Detail:       detail,
		}
	}
}
