package models

import (
	"fmt"
	"time"
)

// RunState 调度器运行状态
type RunState string

const (
	RunIdle      RunState = "idle"      // 未开始
	RunRunning   RunState = "running"   // 执行中
	RunHalted    RunState = "halted"    // 中止(预算耗尽或取消)
	RunCompleted RunState = "completed" // 全部候选处理完成
)

// HaltReason 中止原因
type HaltReason string

const (
	HaltNone           HaltReason = ""
	HaltBudgetExceeded HaltReason = "budget_exceeded"
	HaltCancelled      HaltReason = "cancelled"
)

// HarvestConfig 采集运行参数
type HarvestConfig struct {
	MaxConcurrent          int `mapstructure:"max_concurrent" json:"max_concurrent"`                     // 并发数 (默认:1)
	DelayBetweenRequestsMs int `mapstructure:"delay_between_requests_ms" json:"delay_between_requests_ms"` // 请求间隔(毫秒)
	DelayBetweenBatchesMs  int `mapstructure:"delay_between_batches_ms" json:"delay_between_batches_ms"`   // 批次(站点)间隔(毫秒)
	DailyCreditCap         int `mapstructure:"daily_credit_cap" json:"daily_credit_cap"`                   // 单次运行额度上限
	CostPerFetch           int `mapstructure:"cost_per_fetch" json:"cost_per_fetch"`                       // HTTP获取预估消耗
	BrowserCostPerFetch    int `mapstructure:"browser_cost_per_fetch" json:"browser_cost_per_fetch"`       // 浏览器获取预估消耗
	MinContentLength       int `mapstructure:"min_content_length" json:"min_content_length"`               // 正文最小长度
	MaxContentLength       int `mapstructure:"max_content_length" json:"max_content_length"`               // 正文最大长度 (0表示不限)
	MinParagraphs          int `mapstructure:"min_paragraphs" json:"min_paragraphs"`                       // 最少段落数
}

// Validate 验证运行参数
func (c *HarvestConfig) Validate() error {
	if c.MaxConcurrent < 1 || c.MaxConcurrent > 8 {
		return fmt.Errorf("max_concurrent必须在1-8之间,当前值: %d", c.MaxConcurrent)
	}
	if c.DelayBetweenRequestsMs < 0 || c.DelayBetweenBatchesMs < 0 {
		return fmt.Errorf("请求间隔和批次间隔不能为负数")
	}
	if c.DailyCreditCap < 0 {
		return fmt.Errorf("daily_credit_cap不能为负数,当前值: %d", c.DailyCreditCap)
	}
	if c.CostPerFetch < 1 || c.BrowserCostPerFetch < 1 {
		return fmt.Errorf("单次获取消耗必须至少为1")
	}
	if c.MinContentLength < 0 || c.MinParagraphs < 0 {
		return fmt.Errorf("min_content_length和min_paragraphs不能为负数")
	}
	if c.MaxContentLength != 0 && c.MaxContentLength < c.MinContentLength {
		return fmt.Errorf("max_content_length(%d)不能小于min_content_length(%d)", c.MaxContentLength, c.MinContentLength)
	}
	return nil
}

// RequestDelay 请求间隔
func (c *HarvestConfig) RequestDelay() time.Duration {
	return time.Duration(c.DelayBetweenRequestsMs) * time.Millisecond
}

// BatchDelay 批次间隔
func (c *HarvestConfig) BatchDelay() time.Duration {
	return time.Duration(c.DelayBetweenBatchesMs) * time.Millisecond
}

// CostFor 估算某站点单次获取的额度消耗
func (c *HarvestConfig) CostFor(src *Source) int {
	if src != nil && src.CostPerFetch > 0 {
		return src.CostPerFetch
	}
	if src != nil && src.Strategy == StrategyBrowser {
		return c.BrowserCostPerFetch
	}
	return c.CostPerFetch
}

// FetchConfig HTTP获取配置
type FetchConfig struct {
	TimeoutSeconds     int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	MaxAttempts        int    `mapstructure:"max_attempts" json:"max_attempts"`
	InitialBackoffMs   int    `mapstructure:"initial_backoff_ms" json:"initial_backoff_ms"`
	MaxBackoffMs       int    `mapstructure:"max_backoff_ms" json:"max_backoff_ms"`
	MaxBodyBytes       int    `mapstructure:"max_body_bytes" json:"max_body_bytes"`
	AcceptLanguage     string `mapstructure:"accept_language" json:"accept_language"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// Timeout 单次请求超时
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BrowserConfig 无头浏览器配置
type BrowserConfig struct {
	Headless             bool     `mapstructure:"headless" json:"headless"`
	BinPath              string   `mapstructure:"bin_path" json:"bin_path"`
	NavigationTimeoutSec int      `mapstructure:"navigation_timeout_seconds" json:"navigation_timeout_seconds"`
	SettleDelayMs        int      `mapstructure:"settle_delay_ms" json:"settle_delay_ms"`
	MaxTabs              int      `mapstructure:"max_tabs" json:"max_tabs"`
	MaxRestarts          int      `mapstructure:"max_restarts" json:"max_restarts"`
	BlockResources       []string `mapstructure:"block_resources" json:"block_resources"`
	ContentSelectors     []string `mapstructure:"content_selectors" json:"content_selectors"`
	MinFreeMemoryMB      int      `mapstructure:"min_free_memory_mb" json:"min_free_memory_mb"`
}

// OutcomeStatus 单个候选的终态
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome 单个候选的处理结果
type Outcome struct {
	URL    string        `json:"url"`
	Source string        `json:"source"`
	Status OutcomeStatus `json:"status"`
	Tier   int           `json:"tier,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// RunStats 运行统计
type RunStats struct {
	Discovered   int         `json:"discovered"`    // 发现的候选数
	Attempted    int         `json:"attempted"`     // 已扣额度并开始获取的数量
	Succeeded    int         `json:"succeeded"`     // 成功处理的候选数
	Saved        int         `json:"saved"`         // 本次运行新写入的文章数
	Skipped      int         `json:"skipped"`       // 去重跳过数
	Failed       int         `json:"failed"`        // 获取/提取/校验/入库失败数
	CreditsUsed  int         `json:"credits_used"`  // 已用额度
	CreditsCap   int         `json:"credits_cap"`   // 额度上限
	CreditsSaved int         `json:"credits_saved"` // 预过滤节省的预估额度
	SkipsByTier  map[int]int `json:"skips_by_tier"` // 各去重层级的跳过数
	State        RunState    `json:"state"`
	HaltReason   HaltReason  `json:"halt_reason,omitempty"`
	Duration     float64     `json:"duration"` // 总耗时(秒)
}

// RecordSkip 记录一次去重跳过
func (s *RunStats) RecordSkip(tier int) {
	s.Skipped++
	if s.SkipsByTier == nil {
		s.SkipsByTier = make(map[int]int)
	}
	s.SkipsByTier[tier]++
}
