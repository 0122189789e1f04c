package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/crawlers"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/dedup"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/extractor"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
)

// ArticlePersister 文章持久化
type ArticlePersister interface {
	Persist(ctx context.Context, draft *models.ArticleDraft) (*models.PersistResult, error)
}

// savedCounter 可统计新建文章数的持久化器
type savedCounter interface {
	Saved() int
}

// Harvester 采集流水线协调器
// 发现 → 预过滤(Tier 1-2) → 调度{获取 → 提取 → 校验} → 最终去重(Tier 1,3) → 入库
type Harvester struct {
	cfg        models.HarvestConfig
	fetchers   crawlers.FetcherProvider
	discoverer *crawlers.Discoverer
	dedup      *dedup.Deduplicator
	persister  ArticlePersister
	extractor  *extractor.Extractor
	validator  *extractor.Validator
	progress   io.Writer
}

// HarvesterOption 可选配置
type HarvesterOption func(*Harvester)

// WithProgress 调度时显示进度条
func WithProgress(out io.Writer) HarvesterOption {
	return func(h *Harvester) { h.progress = out }
}

// WithContentSelectors 自定义正文容器选择器
func WithContentSelectors(selectors []string) HarvesterOption {
	return func(h *Harvester) { h.extractor = extractor.NewExtractor(selectors) }
}

// NewHarvester 创建流水线
func NewHarvester(cfg models.HarvestConfig, fetchers crawlers.FetcherProvider, discoverer *crawlers.Discoverer,
	corpus dedup.Corpus, persister ArticlePersister, opts ...HarvesterOption) *Harvester {
	h := &Harvester{
		cfg:        cfg,
		fetchers:   fetchers,
		discoverer: discoverer,
		dedup:      dedup.New(corpus),
		persister:  persister,
		extractor:  extractor.NewExtractor(nil),
		validator:  extractor.NewValidator(extractor.ThresholdsFrom(cfg)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run 执行一次完整采集,返回运行报告
// 预算耗尽或取消不算错误,通过报告中的状态体现
func (h *Harvester) Run(ctx context.Context, sources []*models.Source) (*models.RunReport, error) {
	report := models.NewRunReport(h.cfg)
	for _, src := range sources {
		report.Sources = append(report.Sources, src.Name)
	}

	utils.Infof("🚀 开始采集任务 [%s]", report.RunID)
	utils.Infof("站点: %s", strings.Join(report.Sources, ", "))

	savedBefore := h.savedCount()

	scheduler := NewBudgetedScheduler(h.cfg)
	if h.progress != nil {
		scheduler.WithProgress(h.progress)
	}

	utils.Infof("🔎 开始发现候选URL...")
	candidates := h.discoverer.Discover(ctx, sources)
	scheduler.SetDiscovered(len(candidates))
	utils.Infof("✅ 发现候选 %d 个", len(candidates))

	for _, src := range sources {
		if d := h.discoverer.CrawlDelay(src); d > 0 {
			utils.Infof("🐢 站点 %s 的robots.txt要求抓取间隔 %v", src.Name, d)
			scheduler.SetSourceDelay(src.Name, d)
		}
	}

	batches := h.prefilter(ctx, scheduler, candidates)

	if err := scheduler.Run(ctx, batches, h.processCandidate); err != nil {
		return nil, err
	}

	report.FinishedAt = time.Now()
	report.Stats = scheduler.Stats()
	report.Stats.Duration = report.FinishedAt.Sub(report.StartedAt).Seconds()
	report.Stats.Saved = h.savedCount() - savedBefore
	report.Ledger = scheduler.Ledger()
	report.Outcomes = scheduler.Outcomes()
	return report, nil
}

func (h *Harvester) savedCount() int {
	if c, ok := h.persister.(savedCounter); ok {
		return c.Saved()
	}
	return 0
}

// prefilter 获取前用Tier 1-2排除已入库的候选,按站点分批并保持发现顺序
func (h *Harvester) prefilter(ctx context.Context, scheduler *BudgetedScheduler, candidates []models.CandidateURL) [][]models.CandidateURL {
	var batches [][]models.CandidateURL
	var current *models.Source

	for _, c := range candidates {
		verdict, err := h.dedup.CheckCandidate(ctx, c.URL)
		if err != nil {
			utils.Warnf("预过滤查询失败,继续处理 [%s]: %v", c.URL, err)
		} else if verdict.Duplicate() {
			utils.Infof("⏭️  跳过已入库 (Tier %d, %s): %s", verdict.Tier, verdict.Reason, c.URL)
			scheduler.Record(models.Outcome{
				URL:    c.URL,
				Source: sourceName(c),
				Status: models.OutcomeSkipped,
				Tier:   int(verdict.Tier),
				Reason: verdict.Reason,
			})
			scheduler.AddSavedCredits(h.cfg.CostFor(c.Source))
			continue
		}

		if len(batches) == 0 || c.Source != current {
			batches = append(batches, nil)
			current = c.Source
		}
		batches[len(batches)-1] = append(batches[len(batches)-1], c)
	}
	return batches
}

// processCandidate 获取、提取、校验、最终去重并入库
// 所有错误都转换为Outcome,不会中断整个运行
func (h *Harvester) processCandidate(ctx context.Context, c models.CandidateURL) models.Outcome {
	outcome := models.Outcome{URL: c.URL, Source: sourceName(c)}
	fail := func(stage string, err error) models.Outcome {
		utils.Warnf("❌ %s失败 [%s]: %v", stage, c.URL, err)
		outcome.Status = models.OutcomeFailed
		outcome.Reason = fmt.Sprintf("%s: %v", stage, err)
		return outcome
	}

	page, err := h.Preview(ctx, c)
	if err != nil {
		var stageErr *stageError
		if errors.As(err, &stageErr) {
			return fail(stageErr.stage, stageErr.err)
		}
		return fail("fetch", err)
	}

	draft, err := models.NewArticle(page.Document, c.Source, c.URL, time.Now())
	if err != nil {
		return fail("build", err)
	}

	verdict, err := h.dedup.FinalCheck(ctx, c.URL, draft.Article.Slug)
	if err != nil {
		return fail("dedup", err)
	}
	if verdict.Duplicate() {
		utils.Infof("⏭️  跳过重复文章 (Tier %d, %s): %s", verdict.Tier, verdict.Reason, c.URL)
		outcome.Status = models.OutcomeSkipped
		outcome.Tier = int(verdict.Tier)
		outcome.Reason = verdict.Reason
		return outcome
	}

	result, err := h.persister.Persist(ctx, draft)
	if err != nil {
		return fail("persist", err)
	}
	if !result.Created {
		outcome.Status = models.OutcomeSkipped
		outcome.Tier = int(dedup.TierSlug)
		outcome.Reason = "slug already exists: " + result.Slug
		return outcome
	}

	utils.Infof("✅ 已入库: %s (%s)", draft.Article.Title, result.Slug)
	outcome.Status = models.OutcomeSucceeded
	return outcome
}

// PageResult 单页获取、提取和校验结果
type PageResult struct {
	Fetch    *crawlers.FetchResult
	Document *models.ExtractedDocument
	Verdict  extractor.Verdict
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// Preview 获取、提取并校验单个页面,不扣额度也不入库
// 校验失败时返回的错误包含全部原因
func (h *Harvester) Preview(ctx context.Context, c models.CandidateURL) (*PageResult, error) {
	strategy := models.StrategyHTTP
	language := ""
	if c.Source != nil {
		strategy = c.Source.Strategy
		language = c.Source.Language
	}

	res, err := h.fetchers.ForStrategy(strategy).Fetch(ctx, crawlers.Request{URL: c.URL, Language: language})
	if err != nil {
		return nil, &stageError{stage: "fetch", err: err}
	}

	doc, err := h.extractor.Extract(res.Body)
	if err != nil {
		return &PageResult{Fetch: res}, &stageError{stage: "extract", err: err}
	}

	verdict := h.validator.Validate(doc)
	page := &PageResult{Fetch: res, Document: doc, Verdict: verdict}
	if !verdict.Passed {
		return page, &stageError{stage: "validation", err: verdict}
	}
	return page, nil
}
