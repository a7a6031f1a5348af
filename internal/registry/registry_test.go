package registry

import (
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
)

func newTestRegistry(t *testing.T, names ...string) (*Registry, []*model.Target) {
	t.Helper()

	reg := New(NewMemoryStore())
	targets := make([]*model.Target, 0, len(names))
	for _, name := range names {
		target := &model.Target{
			Name:         name,
			Address:      name + ".web.local:8080",
			Group:        "web",
			RoutingState: constants.RoutingInRotation,
			Status:       constants.TargetStatusActive,
		}
		require.NoError(t, reg.Register(target))
		targets = append(targets, target)
	}
	return reg, targets
}

func TestResolveKeepsOrder(t *testing.T) {
	reg, targets := newTestRegistry(t, "a", "b", "c")

	resolved, err := reg.Resolve([]int64{targets[2].ID, targets[0].ID})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	require.Equal(t, "c", resolved[0].Name)
	require.Equal(t, "a", resolved[1].Name)
}

func TestResolveRejectsBadLists(t *testing.T) {
	reg, targets := newTestRegistry(t, "a", "b")

	_, err := reg.Resolve(nil)
	require.Error(t, err, "空列表")

	_, err = reg.Resolve([]int64{targets[0].ID, targets[0].ID})
	require.Error(t, err, "重复ID")

	_, err = reg.Resolve([]int64{targets[0].ID, 9999})
	require.Error(t, err, "不存在的ID")

	require.NoError(t, reg.Retire(targets[1].ID))
	_, err = reg.Resolve([]int64{targets[0].ID, targets[1].ID})
	require.Error(t, err, "已退役的目标")
}

func TestResolveGroup(t *testing.T) {
	reg, targets := newTestRegistry(t, "a", "b")
	require.NoError(t, reg.Retire(targets[1].ID))

	resolved, err := reg.ResolveGroup("web")
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Equal(t, "a", resolved[0].Name)

	_, err = reg.ResolveGroup("nosuch")
	require.Error(t, err)
}

func TestBeginAttemptExclusive(t *testing.T) {
	reg, targets := newTestRegistry(t, "a")
	id := targets[0].ID

	require.NoError(t, reg.BeginAttempt(id, "req-1"))
	require.Error(t, reg.BeginAttempt(id, "req-2"), "同一目标只允许一次在途尝试")

	holder, ok := reg.AttemptInFlight(id)
	require.True(t, ok)
	require.Equal(t, "req-1", holder)

	reg.EndAttempt(id, constants.OutcomeSuccess)
	require.NoError(t, reg.BeginAttempt(id, "req-2"))
	reg.EndAttempt(id, "")
}

func TestMarkRoutingStatePreconditions(t *testing.T) {
	reg, targets := newTestRegistry(t, "a")
	id := targets[0].ID

	// 摘流方向不设限制
	require.NoError(t, reg.MarkRoutingState(id, constants.RoutingDraining))
	require.NoError(t, reg.MarkRoutingState(id, constants.RoutingDrained))

	// 有在途尝试时不能接流
	require.NoError(t, reg.BeginAttempt(id, "req-1"))
	require.Error(t, reg.MarkRoutingState(id, constants.RoutingInRotation))

	// 最近一次尝试失败后不能接流
	reg.EndAttempt(id, constants.OutcomeFailedRollback)
	require.Error(t, reg.MarkRoutingState(id, constants.RoutingInRotation))

	// 成功尝试之后放行
	require.NoError(t, reg.BeginAttempt(id, "req-2"))
	reg.EndAttempt(id, constants.OutcomeSuccess)
	require.NoError(t, reg.MarkRoutingState(id, constants.RoutingInRotation))
}

func TestRetire(t *testing.T) {
	reg, targets := newTestRegistry(t, "a")
	id := targets[0].ID

	require.NoError(t, reg.BeginAttempt(id, "req-1"))
	require.Error(t, reg.Retire(id), "有在途发布时不能退役")
	reg.EndAttempt(id, "")

	require.NoError(t, reg.Retire(id))
	target, err := reg.Get(id)
	require.NoError(t, err)
	require.True(t, target.Retired())
	require.Equal(t, constants.RoutingDrained, target.RoutingState)

	require.Error(t, reg.MarkRoutingState(id, constants.RoutingInRotation), "退役目标不能接流")
}

func TestSetVersion(t *testing.T) {
	reg, targets := newTestRegistry(t, "a")
	id := targets[0].ID

	version, err := reg.GetVersion(id)
	require.NoError(t, err)
	require.Nil(t, version, "从未发布过的目标版本为nil")

	require.NoError(t, reg.SetVersion(id, "v7"))
	version, err = reg.GetVersion(id)
	require.NoError(t, err)
	require.Equal(t, "v7", lo.FromPtr(version))
}

func TestWithLockSerializes(t *testing.T) {
	reg, targets := newTestRegistry(t, "a")
	id := targets[0].ID

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.WithLock(id, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}
