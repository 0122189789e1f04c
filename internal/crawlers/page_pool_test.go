package crawlers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedMemory(available uint64) MemorySampler {
	return func() (uint64, uint64, error) {
		return available, 16 * 1024 * mb, nil
	}
}

func TestResourceMonitor_CheckResourceAvailability(t *testing.T) {
	tests := []struct {
		name      string
		available uint64
		want      bool
	}{
		{"内存充足", 4096 * mb, true},
		{"恰好等于下限", 512 * mb, true},
		{"内存不足", 256 * mb, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := NewResourceMonitor(ResourceMonitorConfig{MinFreeMemory: 512 * mb, MaxTabsLimit: 4}, fixedMemory(tt.available))
			ok, reason := rm.CheckResourceAvailability()
			if ok != tt.want {
				t.Errorf("CheckResourceAvailability() = %v (%s), want %v", ok, reason, tt.want)
			}
			if !ok && reason == "" {
				t.Error("资源不足时应返回原因")
			}
		})
	}
}

func TestResourceMonitor_CalculateMaxTabs(t *testing.T) {
	rm := NewResourceMonitor(ResourceMonitorConfig{MinFreeMemory: 512 * mb, TabMemoryUsage: 100 * mb, MaxTabsLimit: 1}, fixedMemory(8192*mb))
	if got := rm.CalculateMaxTabs(); got != 1 {
		t.Errorf("受MaxTabsLimit限制, got %d", got)
	}

	low := NewResourceMonitor(ResourceMonitorConfig{MinFreeMemory: 512 * mb, MaxTabsLimit: 8}, fixedMemory(100*mb))
	if got := low.CalculateMaxTabs(); got != 1 {
		t.Errorf("内存不足时至少为1, got %d", got)
	}

	status := low.GetMemoryStatus()
	if status.MemoryPressure != "critical" || status.AvailableMemory != 100*mb {
		t.Errorf("GetMemoryStatus() = %+v", status)
	}
}

func TestResourceMonitor_SamplerError(t *testing.T) {
	rm := NewResourceMonitor(ResourceMonitorConfig{MinFreeMemory: 0}, func() (uint64, uint64, error) {
		return 0, 0, errors.New("unsupported")
	})
	if ok, _ := rm.CheckResourceAvailability(); !ok {
		t.Error("未配置内存下限时应放行")
	}
}

func TestTabPool_AcquireRelease(t *testing.T) {
	pool := NewTabPool(2, nil)
	if pool.Capacity() != 2 {
		t.Fatalf("Capacity() = %d, want 2", pool.Capacity())
	}

	ctx := context.Background()
	if err := pool.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := pool.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if pool.InUse() != 2 {
		t.Errorf("InUse() = %d, want 2", pool.InUse())
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := pool.Acquire(timeoutCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("池满时应等待到超时, got %v", err)
	}

	pool.Release()
	if err := pool.Acquire(ctx); err != nil {
		t.Errorf("释放后应能再次获取: %v", err)
	}
}

func TestTabPool_LowMemory(t *testing.T) {
	rm := NewResourceMonitor(ResourceMonitorConfig{MinFreeMemory: 512 * mb, MaxTabsLimit: 4}, fixedMemory(128*mb))
	pool := NewTabPool(4, rm)
	ctx := context.Background()

	if err := pool.Acquire(ctx); err != nil {
		t.Fatalf("没有标签页在使用时总是放行: %v", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := pool.Acquire(timeoutCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("内存不足时应等待, got %v", err)
	}
	if pool.InUse() != 1 {
		t.Errorf("InUse() = %d, want 1", pool.InUse())
	}
}

func TestTabPool_Close(t *testing.T) {
	pool := NewTabPool(1, nil)
	pool.Close()
	if err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("关闭后Acquire应返回ErrPoolClosed, got %v", err)
	}
}
