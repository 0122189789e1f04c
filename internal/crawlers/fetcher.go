package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
)

// Request 单次获取请求
type Request struct {
	URL      string
	Language string // 站点语言,决定Accept-Language
	Listing  bool   // 分类/列表页,浏览器返回整页HTML而不是正文容器
}

// FetchResult 获取结果
type FetchResult struct {
	URL         string
	FinalURL    string
	StatusCode  int // 浏览器策略为0
	ContentType string
	Body        string
	Strategy    models.FetchStrategy
	Attempts    int
	Duration    time.Duration
}

// Fetcher 页面获取策略
// 所有错误都以*FetchError返回,不会panic到调用方
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*FetchResult, error)
	Strategy() models.FetchStrategy
	Close() error
}

// FetchError 获取失败(软失败)
type FetchError struct {
	URL      string
	Strategy models.FetchStrategy
	Attempts int
	Reason   string
	Err      error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	return fmt.Sprintf("获取失败 [%s] (策略=%s, 尝试%d次): %s", e.URL, e.Strategy, e.Attempts, e.Reason)
}

// Unwrap 支持errors.Is/As
func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusError 非2xx响应
type StatusError struct {
	Code int
	URL  string
}

// Error 实现error接口
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
}

// newFetchError 统一包装为FetchError,已经是FetchError时保留原值
func newFetchError(req Request, strategy models.FetchStrategy, attempts int, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{
		URL:      req.URL,
		Strategy: strategy,
		Attempts: attempts,
		Reason:   err.Error(),
		Err:      err,
	}
}

// AutoFetcher 先用HTTP获取,遇到反爬页面或403/429/503时回退浏览器
type AutoFetcher struct {
	http    Fetcher
	browser Fetcher
}

// NewAutoFetcher 创建自动回退获取器
func NewAutoFetcher(httpFetcher, browserFetcher Fetcher) *AutoFetcher {
	return &AutoFetcher{http: httpFetcher, browser: browserFetcher}
}

// Strategy 返回auto
func (a *AutoFetcher) Strategy() models.FetchStrategy {
	return models.StrategyAuto
}

// Fetch 获取页面
func (a *AutoFetcher) Fetch(ctx context.Context, req Request) (*FetchResult, error) {
	res, err := a.http.Fetch(ctx, req)
	switch {
	case err == nil:
		needs, reason := NeedsBrowser(res.Body)
		if !needs {
			return res, nil
		}
		utils.Infof("🔄 HTTP内容疑似反爬或SPA页面 (%s),改用浏览器: %s", reason, req.URL)
	case shouldFallback(err):
		utils.Infof("🔄 HTTP请求被拒绝 (%v),改用浏览器: %s", err, req.URL)
	default:
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, newFetchError(req, models.StrategyAuto, 0, ctx.Err())
	}

	bres, berr := a.browser.Fetch(ctx, req)
	if berr != nil {
		return nil, berr
	}
	if res != nil {
		bres.Attempts += res.Attempts
	}
	return bres, nil
}

// Close 关闭两种获取器
func (a *AutoFetcher) Close() error {
	return errors.Join(a.http.Close(), a.browser.Close())
}

// shouldFallback 只有被反爬拦截类的状态码才值得用浏览器重试
func shouldFallback(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// FetcherSet 按站点策略提供获取器
// 浏览器在首次使用时才启动
type FetcherSet struct {
	http    *HTTPFetcher
	browser *BrowserFetcher
	auto    *AutoFetcher
}

// NewFetcherSet 创建获取器集合
func NewFetcherSet(fetchCfg models.FetchConfig, browserCfg models.BrowserConfig, headers models.HeaderProvider) *FetcherSet {
	h := NewHTTPFetcher(fetchCfg, headers)
	b := NewBrowserFetcher(browserCfg, headers)
	return &FetcherSet{
		http:    h,
		browser: b,
		auto:    NewAutoFetcher(h, b),
	}
}

// ForStrategy 返回指定策略的获取器,未知策略按http处理
func (s *FetcherSet) ForStrategy(strategy models.FetchStrategy) Fetcher {
	switch strategy {
	case models.StrategyBrowser:
		return s.browser
	case models.StrategyAuto:
		return s.auto
	default:
		return s.http
	}
}

// Close 关闭浏览器等资源
func (s *FetcherSet) Close() error {
	return errors.Join(s.http.Close(), s.browser.Close())
}
