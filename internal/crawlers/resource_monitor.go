package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const mb = 1024 * 1024

// ResourceMonitorConfig 资源监控配置
type ResourceMonitorConfig struct {
	MinFreeMemory    uint64 // 低于该可用内存时不再打开新标签页(字节)
	TabMemoryUsage   uint64 // 单个标签页平均内存消耗(字节)
	MaxTabsLimit     int    // 绝对最大标签页数
	CPULoadThreshold int    // CPU负载阈值(%), 0表示不检查
}

// MemorySampler 返回系统可用内存和总内存
type MemorySampler func() (available, total uint64, err error)

// ResourceMonitor 监控系统可用内存和CPU负载,决定能否打开新标签页
type ResourceMonitor struct {
	config  ResourceMonitorConfig
	sampler MemorySampler

	mu        sync.RWMutex
	available uint64
	total     uint64
	cpuUsage  float64
	sampledAt time.Time

	cancelFunc context.CancelFunc
}

// MemoryStatus 内存状态快照
type MemoryStatus struct {
	TotalMemory     uint64
	AvailableMemory uint64
	MinFreeMemory   uint64
	MemoryPressure  string // normal, warning, critical
}

// NewResourceMonitor 创建资源监控器,sampler为nil时使用gopsutil
func NewResourceMonitor(config ResourceMonitorConfig, sampler MemorySampler) *ResourceMonitor {
	if config.TabMemoryUsage == 0 {
		config.TabMemoryUsage = 150 * mb
	}
	if config.MaxTabsLimit <= 0 {
		config.MaxTabsLimit = 2
	}
	if sampler == nil {
		sampler = systemMemory
	}

	rm := &ResourceMonitor{config: config, sampler: sampler}
	rm.refresh()

	rm.mu.RLock()
	utils.Debugf("系统总内存: %.2f GB, 可用: %d MB", float64(rm.total)/(1024*mb), rm.available/mb)
	rm.mu.RUnlock()
	return rm
}

func systemMemory() (uint64, uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vm.Available, vm.Total, nil
}

// refresh 重新采样内存,失败时保留上一次的值
func (rm *ResourceMonitor) refresh() {
	available, total, err := rm.sampler()
	if err != nil {
		utils.Warnf("获取系统内存失败: %v", err)
		return
	}
	rm.mu.Lock()
	rm.available = available
	rm.total = total
	rm.sampledAt = time.Now()
	rm.mu.Unlock()
}

// StartMonitoring 后台定期采样内存和CPU
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancelFunc != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	go rm.monitoringLoop(ctx, interval)
}

func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.refresh()
			if rm.config.CPULoadThreshold > 0 {
				if pct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pct) > 0 {
					rm.mu.Lock()
					rm.cpuUsage = pct[0]
					rm.mu.Unlock()
				}
			}
		}
	}
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.cancelFunc = nil
	}
}

// snapshot 未开启后台采样时,超过1秒的数据会重新采样
func (rm *ResourceMonitor) snapshot() (available, total uint64, cpuUsage float64) {
	rm.mu.RLock()
	stale := time.Since(rm.sampledAt) > time.Second && rm.cancelFunc == nil
	rm.mu.RUnlock()
	if stale {
		rm.refresh()
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.available, rm.total, rm.cpuUsage
}

// CalculateMaxTabs 按可用内存和CPU核数计算标签页上限,至少为1
func (rm *ResourceMonitor) CalculateMaxTabs() int {
	available, _, _ := rm.snapshot()

	byMemory := 1
	if available > rm.config.MinFreeMemory {
		byMemory = int((available - rm.config.MinFreeMemory) / rm.config.TabMemoryUsage)
	}

	result := min(byMemory, runtime.NumCPU(), rm.config.MaxTabsLimit)
	return max(result, 1)
}

// CheckResourceAvailability 检查是否可以打开新标签页
func (rm *ResourceMonitor) CheckResourceAvailability() (bool, string) {
	available, _, cpuUsage := rm.snapshot()

	if available < rm.config.MinFreeMemory {
		return false, fmt.Sprintf("内存不足(当前%dMB, 需要%dMB)", available/mb, rm.config.MinFreeMemory/mb)
	}
	if rm.config.CPULoadThreshold > 0 && cpuUsage > float64(rm.config.CPULoadThreshold) {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", cpuUsage)
	}
	return true, ""
}

// GetMemoryStatus 返回内存状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	available, total, _ := rm.snapshot()

	pressure := "normal"
	switch {
	case available < rm.config.MinFreeMemory:
		pressure = "critical"
	case available < rm.config.MinFreeMemory+rm.config.TabMemoryUsage:
		pressure = "warning"
	}

	return MemoryStatus{
		TotalMemory:     total,
		AvailableMemory: available,
		MinFreeMemory:   rm.config.MinFreeMemory,
		MemoryPressure:  pressure,
	}
}
