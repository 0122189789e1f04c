package crawlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/extractor"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

var (
	// ErrBrowserCrashed 浏览器进程崩溃或连接断开
	ErrBrowserCrashed = errors.New("浏览器崩溃")
	// ErrBrowserUnavailable 浏览器重启次数已用尽
	ErrBrowserUnavailable = errors.New("浏览器不可用")
	// ErrFetcherClosed 获取器已关闭
	ErrFetcherClosed = errors.New("获取器已关闭")
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettleDelay       = 1500 * time.Millisecond
	defaultMinFreeMemoryMB   = 512
)

// renderStripSelector 渲染后从正文容器中移除的元素
const renderStripSelector = "script, style, noscript, template, nav, header, footer, aside, iframe, form, button, " +
	"[class*='advert'], [class*='cookie'], [id*='cookie'], [aria-hidden='true']"

// renderScript 按顺序尝试正文容器,克隆后去除非正文元素,返回标题和容器HTML
const renderScript = `(selectors, strip) => {
	let root = null;
	let matched = "";
	for (const sel of selectors) {
		try {
			const el = document.querySelector(sel);
			if (el && el.innerText && el.innerText.trim().length > 0) { root = el; matched = sel; break; }
		} catch (e) {}
	}
	if (!root) { root = document.body; }
	if (!root) { return { title: document.title || "", html: "", matched: "" }; }
	const clone = root.cloneNode(true);
	clone.querySelectorAll(strip).forEach((n) => n.remove());
	const h1 = document.querySelector("h1");
	const title = (h1 && h1.innerText.trim()) || document.title || "";
	return { title: title, html: clone.innerHTML, matched: matched };
}`

// listingScript 分类页需要全部链接,返回整页HTML
const listingScript = `() => document.documentElement ? document.documentElement.outerHTML : ""`

// BrowserFetcher 基于go-rod的无头浏览器获取器
// 浏览器在第一次获取时启动,每次获取使用独立的隐身上下文
type BrowserFetcher struct {
	cfg     models.BrowserConfig
	headers models.HeaderProvider
	policy  RetryPolicy
	blocked map[string]bool

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	restarts int
	closed   bool

	monitor *ResourceMonitor
	tabs    *TabPool
}

// NewBrowserFetcher 创建浏览器获取器
func NewBrowserFetcher(cfg models.BrowserConfig, headers models.HeaderProvider) *BrowserFetcher {
	if len(cfg.ContentSelectors) == 0 {
		cfg.ContentSelectors = extractor.DefaultContainerSelectors
	}
	if cfg.MinFreeMemoryMB <= 0 {
		cfg.MinFreeMemoryMB = defaultMinFreeMemoryMB
	}

	blocked := make(map[string]bool, len(cfg.BlockResources))
	for _, t := range cfg.BlockResources {
		blocked[strings.ToLower(strings.TrimSpace(t))] = true
	}

	policy := DefaultRetryPolicy()
	policy.MaxAttempts = cfg.MaxRestarts + 1
	policy.IsRetryable = func(err error) bool {
		return errors.Is(err, ErrBrowserCrashed) || IsRetryable(err)
	}

	return &BrowserFetcher{
		cfg:     cfg,
		headers: headers,
		policy:  policy,
		blocked: blocked,
	}
}

// Strategy 返回browser
func (b *BrowserFetcher) Strategy() models.FetchStrategy {
	return models.StrategyBrowser
}

// Fetch 渲染页面并返回HTML
func (b *BrowserFetcher) Fetch(ctx context.Context, req Request) (*FetchResult, error) {
	hdr, err := requestHeaders(b.headers, req.Language, false)
	if err != nil {
		return nil, newFetchError(req, models.StrategyBrowser, 0, err)
	}

	start := time.Now()
	var result *FetchResult
	attempts, err := b.policy.Do(ctx, func(attempt int) error {
		res, err := b.render(ctx, req, hdr)
		if err != nil {
			if errors.Is(err, ErrBrowserCrashed) {
				utils.Warnf("⚠️  浏览器崩溃 [%s]: %v", req.URL, err)
				if rerr := b.restart(); rerr != nil {
					return rerr
				}
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, newFetchError(req, models.StrategyBrowser, attempts, err)
	}

	result.Attempts = attempts
	result.Duration = time.Since(start)
	utils.Debugf("浏览器获取成功 [%s]: 大小=%d, 尝试%d次, 耗时%v", req.URL, len(result.Body), attempts, result.Duration)
	return result, nil
}

// render 在隐身上下文中打开页面,等待渲染后取回HTML
func (b *BrowserFetcher) render(ctx context.Context, req Request, hdr http.Header) (res *FetchResult, err error) {
	pageURL := req.URL
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("捕获panic: URL=%s, 错误=%v, 类型=浏览器渲染", pageURL, r)
			res, err = nil, fmt.Errorf("%w: %v", ErrBrowserCrashed, r)
		}
	}()

	browser, tabs, err := b.ensureBrowser()
	if err != nil {
		return nil, err
	}

	if err := tabs.Acquire(ctx); err != nil {
		return nil, err
	}
	defer tabs.Release()

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, b.classify(browser, fmt.Errorf("创建隐身上下文失败: %w", err))
	}
	defer func() {
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: incognito.BrowserContextID}.Call(browser)
	}()

	page, err := stealth.Page(incognito)
	if err != nil {
		return nil, b.classify(browser, fmt.Errorf("创建标签页失败: %w", err))
	}
	defer page.Close()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      hdr.Get("User-Agent"),
		AcceptLanguage: hdr.Get("Accept-Language"),
	}); err != nil {
		return nil, b.classify(browser, fmt.Errorf("设置User-Agent失败: %w", err))
	}
	if extra := extraHeaders(hdr); len(extra) > 0 {
		if _, err := page.SetExtraHeaders(extra); err != nil {
			utils.Warnf("设置HTTP头部失败 [%s]: %v", pageURL, err)
		}
	}

	if len(b.blocked) > 0 {
		router := b.blockResources(page)
		defer func() { _ = router.Stop() }()
	}

	navCtx, cancel := context.WithTimeout(ctx, b.navigationTimeout())
	defer cancel()
	p := page.Context(navCtx)

	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(pageURL); err != nil {
		return nil, b.classify(browser, fmt.Errorf("导航失败: %w", err))
	}
	wait()
	if err := navCtx.Err(); err != nil {
		return nil, fmt.Errorf("等待页面加载超时: %w", err)
	}

	if err := utils.SleepContext(navCtx, b.settleDelay()); err != nil {
		return nil, fmt.Errorf("等待页面渲染被中断: %w", err)
	}

	var body string
	if req.Listing {
		obj, err := p.Eval(listingScript)
		if err != nil {
			return nil, b.classify(browser, fmt.Errorf("读取页面内容失败: %w", err))
		}
		body = obj.Value.Str()
	} else {
		obj, err := p.Eval(renderScript, b.cfg.ContentSelectors, renderStripSelector)
		if err != nil {
			return nil, b.classify(browser, fmt.Errorf("读取页面内容失败: %w", err))
		}
		if matched := obj.Value.Get("matched").Str(); matched != "" {
			utils.Debugf("页面正文容器: %s [%s]", matched, pageURL)
		}
		if content := obj.Value.Get("html").Str(); strings.TrimSpace(content) != "" {
			body = wrapDocument(obj.Value.Get("title").Str(), content)
		}
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("渲染结果为空")
	}

	finalURL := pageURL
	if info, err := p.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	return &FetchResult{
		URL:         pageURL,
		FinalURL:    finalURL,
		ContentType: "text/html; charset=utf-8",
		Body:        body,
		Strategy:    models.StrategyBrowser,
	}, nil
}

// blockResources 拦截图片、媒体、字体等与正文无关的请求
func (b *BrowserFetcher) blockResources(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if b.blocked[strings.ToLower(string(h.Request.Type()))] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// ensureBrowser 按需启动浏览器
func (b *BrowserFetcher) ensureBrowser() (*rod.Browser, *TabPool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, ErrFetcherClosed
	}
	if b.browser != nil {
		return b.browser, b.tabs, nil
	}
	if b.restarts > b.cfg.MaxRestarts {
		return nil, nil, fmt.Errorf("%w: 已重启%d次", ErrBrowserUnavailable, b.cfg.MaxRestarts)
	}

	if b.monitor == nil {
		b.monitor = NewResourceMonitor(ResourceMonitorConfig{
			MinFreeMemory: uint64(b.cfg.MinFreeMemoryMB) * mb,
			MaxTabsLimit:  max(b.cfg.MaxTabs, 1),
		}, nil)
		b.tabs = NewTabPool(b.cfg.MaxTabs, b.monitor)
	}
	if ok, reason := b.monitor.CheckResourceAvailability(); !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrBrowserUnavailable, reason)
	}

	if err := b.launchBrowser(); err != nil {
		return nil, nil, err
	}
	return b.browser, b.tabs, nil
}

// launchBrowser 启动浏览器,调用方持有b.mu
func (b *BrowserFetcher) launchBrowser() error {
	l := launcher.New().
		Headless(b.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled")
	if b.cfg.BinPath != "" {
		l = l.Bin(b.cfg.BinPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: 启动浏览器失败: %v", ErrBrowserUnavailable, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("%w: 连接浏览器失败: %v", ErrBrowserUnavailable, err)
	}

	b.launcher = l
	b.browser = browser
	utils.Infof("🌐 浏览器已启动: %s", controlURL)
	return nil
}

// restart 关闭崩溃的浏览器,下次获取时重新启动
func (b *BrowserFetcher) restart() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.shutdownLocked()
	b.restarts++
	if b.restarts > b.cfg.MaxRestarts {
		return fmt.Errorf("%w: 已重启%d次", ErrBrowserUnavailable, b.restarts-1)
	}
	utils.Infof("🔄 浏览器将重新启动 (第%d次)", b.restarts)
	return nil
}

// classify 浏览器已失去响应时把错误标记为崩溃
func (b *BrowserFetcher) classify(browser *rod.Browser, err error) error {
	if _, verr := (proto.BrowserGetVersion{}).Call(browser); verr != nil {
		return fmt.Errorf("%w: %v", ErrBrowserCrashed, err)
	}
	return err
}

func (b *BrowserFetcher) shutdownLocked() {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			utils.Debugf("关闭浏览器失败: %v", err)
		}
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
		b.launcher = nil
	}
}

// Close 关闭浏览器
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.browser != nil {
		utils.Debugf("浏览器已关闭")
	}
	b.shutdownLocked()
	if b.tabs != nil {
		b.tabs.Close()
	}
	if b.monitor != nil {
		b.monitor.StopMonitoring()
	}
	return nil
}

func (b *BrowserFetcher) navigationTimeout() time.Duration {
	if b.cfg.NavigationTimeoutSec > 0 {
		return time.Duration(b.cfg.NavigationTimeoutSec) * time.Second
	}
	return defaultNavigationTimeout
}

func (b *BrowserFetcher) settleDelay() time.Duration {
	if b.cfg.SettleDelayMs > 0 {
		return time.Duration(b.cfg.SettleDelayMs) * time.Millisecond
	}
	return defaultSettleDelay
}

// extraHeaders 转换为SetExtraHeaders的键值列表,User-Agent和Accept-Language已单独设置
func extraHeaders(hdr http.Header) []string {
	var dict []string
	for name, values := range hdr {
		switch http.CanonicalHeaderKey(name) {
		case "User-Agent", "Accept-Language", "Accept-Encoding":
			continue
		}
		if len(values) > 0 {
			dict = append(dict, name, values[0])
		}
	}
	return dict
}

// wrapDocument 把标题和正文容器包装成最小HTML文档交给提取器
func wrapDocument(title, body string) string {
	return fmt.Sprintf("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>%s</title></head><body><article>%s</article></body></html>",
		html.EscapeString(title), body)
}
