package bridge

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Toggle UDP开关控制器
//
// OnUDPEnableChanged 可以在任意协程中被配置层调用，只记录意图；
// 注册表的修改由 Apply 在tick边界完成。
type Toggle struct {
	shadow   atomic.Bool
	dirty    atomic.Bool
	registry *Registry
	logger   *zap.Logger
}

// NewToggle 创建开关控制器
func NewToggle(registry *Registry, logger *zap.Logger) *Toggle {
	return &Toggle{registry: registry, logger: logger}
}

// OnUDPEnableChanged 配置变更回调
func (t *Toggle) OnUDPEnableChanged(value bool) {
	t.shadow.Store(value)
	t.dirty.Store(true)
}

// Pending 是否有尚未应用的变更
func (t *Toggle) Pending() bool { return t.dirty.Load() }

// Desired 配置层最近一次给出的值
func (t *Toggle) Desired() bool { return t.shadow.Load() }

// Apply 在tick边界应用变更。打开失败时保持关闭，直到下一次变更。
func (t *Toggle) Apply() {
	if !t.dirty.Swap(false) {
		return
	}
	want := t.shadow.Load()
	if err := t.registry.SetUDPEnabled(want); err != nil {
		t.logger.Warn("UDP广播开启失败", zap.Error(err))
	}
}
