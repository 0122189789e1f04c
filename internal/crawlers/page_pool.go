package crawlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
)

// ErrPoolClosed 标签页池已关闭
var ErrPoolClosed = errors.New("标签页池已关闭")

// resourceRetryInterval 资源不足时重新检查的间隔
const resourceRetryInterval = 500 * time.Millisecond

// TabPool 浏览器标签页配额
// 限制同时打开的标签页数量,打开新标签页前检查系统资源
type TabPool struct {
	slots   chan struct{}
	monitor *ResourceMonitor

	mu     sync.Mutex
	inUse  int
	closed bool
}

// NewTabPool 创建标签页池,容量取maxTabs和资源监控器计算值中较小者
func NewTabPool(maxTabs int, monitor *ResourceMonitor) *TabPool {
	size := max(maxTabs, 1)
	if monitor != nil {
		size = min(size, monitor.CalculateMaxTabs())
	}
	utils.Debugf("标签页池容量: %d", size)
	return &TabPool{
		slots:   make(chan struct{}, size),
		monitor: monitor,
	}
}

// Acquire 占用一个标签页名额,阻塞直到有空位或ctx取消
// 资源不足且已有标签页在使用时继续等待;没有标签页在使用时总是放行
func (p *TabPool) Acquire(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrPoolClosed
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case p.slots <- struct{}{}:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			<-p.slots
			return ErrPoolClosed
		}
		ok, reason := true, ""
		if p.monitor != nil && p.inUse > 0 {
			ok, reason = p.monitor.CheckResourceAvailability()
		}
		if ok {
			p.inUse++
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()
		<-p.slots

		utils.Warnf("资源不足,暂缓打开标签页: %s", reason)
		if err := utils.SleepContext(ctx, resourceRetryInterval); err != nil {
			return err
		}
	}
}

// Release 归还名额
func (p *TabPool) Release() {
	p.mu.Lock()
	if p.inUse > 0 {
		p.inUse--
	}
	p.mu.Unlock()
	select {
	case <-p.slots:
	default:
	}
}

// InUse 当前使用中的标签页数
func (p *TabPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Capacity 最大标签页数
func (p *TabPool) Capacity() int {
	return cap(p.slots)
}

// Close 关闭后Acquire立即返回ErrPoolClosed
func (p *TabPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
