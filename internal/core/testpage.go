package core

import (
	"context"
	"fmt"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/crawlers"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
)

// DefaultTestURL 测试模式默认页面,可通过test_page.url覆盖
const DefaultTestURL = "https://www.healthychildren.org/English/ages-stages/baby/feeding-nutrition/Pages/Starting-Solid-Foods.aspx"

// TestPageRequest 测试模式参数
type TestPageRequest struct {
	URL      string
	Strategy models.FetchStrategy
	Language string
}

// RunTestPage 对单个页面执行获取、提取和校验
// 不扣额度、不去重也不入库;校验失败时同时返回结果和错误
func RunTestPage(ctx context.Context, cfg models.HarvestConfig, fetchers crawlers.FetcherProvider,
	req TestPageRequest, opts ...HarvesterOption) (*PageResult, error) {
	if req.URL == "" {
		req.URL = DefaultTestURL
	}
	if err := models.ValidateURL(req.URL); err != nil {
		return nil, fmt.Errorf("测试URL无效: %w", err)
	}
	if req.Strategy == "" {
		req.Strategy = models.StrategyHTTP
	}

	src := &models.Source{Name: "test-page", Strategy: req.Strategy, Language: req.Language}
	h := NewHarvester(cfg, fetchers, nil, nil, nil, opts...)
	return h.Preview(ctx, models.CandidateURL{URL: req.URL, Source: src})
}
