package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrSchedulerUsed 调度器只能运行一次
var ErrSchedulerUsed = errors.New("调度器已运行过,每次运行需要新的调度器")

// ItemFunc 处理单个候选,返回其终态
type ItemFunc func(ctx context.Context, candidate models.CandidateURL) models.Outcome

// BudgetedScheduler 带额度上限的调度器
// 账本、统计和运行状态只在mu保护下修改
type BudgetedScheduler struct {
	cfg         models.HarvestConfig
	limiter     *rate.Limiter
	progressOut io.Writer

	sourceLimiters map[string]*rate.Limiter

	mu         sync.Mutex
	state      models.RunState
	haltReason models.HaltReason
	ledger     *models.BudgetLedger
	stats      models.RunStats
	outcomes   []models.Outcome
	bar        *progressbar.ProgressBar
}

// NewBudgetedScheduler 创建调度器,账本按daily_credit_cap初始化
func NewBudgetedScheduler(cfg models.HarvestConfig) *BudgetedScheduler {
	limit := rate.Inf
	if d := cfg.RequestDelay(); d > 0 {
		limit = rate.Every(d)
	}
	return &BudgetedScheduler{
		cfg:            cfg,
		limiter:        rate.NewLimiter(limit, 1),
		sourceLimiters: make(map[string]*rate.Limiter),
		state:          models.RunIdle,
		ledger:         models.NewBudgetLedger(cfg.DailyCreditCap),
		stats:          models.RunStats{SkipsByTier: make(map[int]int)},
		outcomes:       make([]models.Outcome, 0),
	}
}

// WithProgress 在out上显示进度条
func (s *BudgetedScheduler) WithProgress(out io.Writer) *BudgetedScheduler {
	s.progressOut = out
	return s
}

// Run 按批次顺序调度候选
// 额度不足时停止派发新任务,已开始的任务继续完成;ctx取消同理
func (s *BudgetedScheduler) Run(ctx context.Context, batches [][]models.CandidateURL, process ItemFunc) error {
	s.mu.Lock()
	if s.state != models.RunIdle {
		s.mu.Unlock()
		return ErrSchedulerUsed
	}
	s.state = models.RunRunning
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if s.progressOut != nil && total > 0 {
		s.bar = utils.NewProgressBar(total, "采集中", s.progressOut)
	}
	s.mu.Unlock()

	start := time.Now()
	utils.Infof("🚀 开始调度: %d个批次, %d个候选, 额度上限 %d, 并发 %d",
		len(batches), total, s.cfg.DailyCreditCap, max(s.cfg.MaxConcurrent, 1))

	// 进行中的任务不随取消中断,只受单次获取超时约束
	workCtx := context.WithoutCancel(ctx)

	for i, batch := range batches {
		if i > 0 && len(batch) > 0 && s.cfg.BatchDelay() > 0 {
			utils.Debugf("等待 %v 后处理下一批次...", s.cfg.BatchDelay())
			if err := utils.SleepContext(ctx, s.cfg.BatchDelay()); err != nil {
				s.halt(models.HaltCancelled)
				break
			}
		}
		if !s.runBatch(ctx, workCtx, batch, process) {
			break
		}
	}

	s.mu.Lock()
	if s.state == models.RunRunning {
		s.state = models.RunCompleted
	}
	s.stats.Duration = time.Since(start).Seconds()
	if s.bar != nil {
		_ = s.bar.Finish()
	}
	s.mu.Unlock()

	switch s.State() {
	case models.RunHalted:
		ledger := s.Ledger()
		utils.Warnf("⏹️  调度中止 (%s): 已用额度 %d/%d, 剩余 %d", s.HaltReason(), ledger.CreditsUsed, ledger.CreditsCap, ledger.Remaining())
	default:
		utils.Infof("✅ 调度完成: 已用额度 %d/%d", s.Ledger().CreditsUsed, s.cfg.DailyCreditCap)
	}
	return nil
}

// runBatch 执行一个批次,返回是否继续下一批次
func (s *BudgetedScheduler) runBatch(ctx, workCtx context.Context, batch []models.CandidateURL, process ItemFunc) bool {
	var g errgroup.Group
	g.SetLimit(max(s.cfg.MaxConcurrent, 1))

	proceed := true
	for _, candidate := range batch {
		if ctx.Err() != nil {
			s.halt(models.HaltCancelled)
			proceed = false
			break
		}
		// 先等待限速再扣额度,等待中被取消的候选不计费
		if !s.affordable(candidate) {
			proceed = false
			break
		}
		if err := s.wait(ctx, candidate); err != nil {
			s.halt(models.HaltCancelled)
			proceed = false
			break
		}
		if !s.reserve(candidate) {
			proceed = false
			break
		}

		c := candidate
		g.Go(func() error {
			s.Record(process(workCtx, c))
			return nil
		})
	}
	_ = g.Wait()
	return proceed
}

// wait 依次等待全局限速和站点限速
func (s *BudgetedScheduler) wait(ctx context.Context, candidate models.CandidateURL) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	limiter := s.sourceLimiters[sourceName(candidate)]
	s.mu.Unlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// SetSourceDelay 为站点设置最小请求间隔,如robots.txt的Crawl-delay
func (s *BudgetedScheduler) SetSourceDelay(source string, d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceLimiters[source] = rate.NewLimiter(rate.Every(d), 1)
}

// reserve 检查并扣除额度,额度不足时进入Halted
func (s *BudgetedScheduler) reserve(candidate models.CandidateURL) bool {
	cost := s.cfg.CostFor(candidate.Source)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.RunRunning {
		return false
	}
	if err := s.ledger.Charge(cost); err != nil {
		s.exhaustLocked(cost)
		return false
	}
	s.stats.Attempted++
	return true
}

// affordable 额度不足以支付下一个候选时提前进入Halted,避免空等限速
func (s *BudgetedScheduler) affordable(candidate models.CandidateURL) bool {
	cost := s.cfg.CostFor(candidate.Source)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.RunRunning {
		return false
	}
	if !s.ledger.CanAfford(cost) {
		s.exhaustLocked(cost)
		return false
	}
	return true
}

func (s *BudgetedScheduler) exhaustLocked(cost int) {
	utils.Warnf("💸 预算已耗尽: 剩余 %d, 需要 %d", s.ledger.Remaining(), cost)
	s.state = models.RunHalted
	s.haltReason = models.HaltBudgetExceeded
}

func (s *BudgetedScheduler) halt(reason models.HaltReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == models.RunRunning {
		s.state = models.RunHalted
		s.haltReason = reason
	}
}

// Record 记录一个候选的终态,预过滤跳过的候选也通过这里记录
func (s *BudgetedScheduler) Record(o models.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch o.Status {
	case models.OutcomeSucceeded:
		s.stats.Succeeded++
	case models.OutcomeSkipped:
		s.stats.RecordSkip(o.Tier)
	case models.OutcomeFailed:
		s.stats.Failed++
	}
	s.outcomes = append(s.outcomes, o)
	if s.bar != nil {
		_ = s.bar.Add(1)
	}
}

// SetDiscovered 记录发现的候选数
func (s *BudgetedScheduler) SetDiscovered(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Discovered = n
}

// AddSavedCredits 记录预过滤节省的额度
func (s *BudgetedScheduler) AddSavedCredits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.CreditsSaved += n
}

// State 当前运行状态
func (s *BudgetedScheduler) State() models.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HaltReason 中止原因
func (s *BudgetedScheduler) HaltReason() models.HaltReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haltReason
}

// Ledger 账本快照
func (s *BudgetedScheduler) Ledger() models.BudgetLedger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.ledger
}

// Stats 统计快照
func (s *BudgetedScheduler) Stats() models.RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.SkipsByTier = make(map[int]int, len(s.stats.SkipsByTier))
	for k, v := range s.stats.SkipsByTier {
		stats.SkipsByTier[k] = v
	}
	stats.CreditsUsed = s.ledger.CreditsUsed
	stats.CreditsCap = s.ledger.CreditsCap
	stats.State = s.state
	stats.HaltReason = s.haltReason
	return stats
}

// Outcomes 所有候选的终态,按完成顺序
func (s *BudgetedScheduler) Outcomes() []models.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Outcome(nil), s.outcomes...)
}

func sourceName(c models.CandidateURL) string {
	if c.Source == nil {
		return ""
	}
	return c.Source.Name
}
