package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

const (
	// DefaultUserAgent 未配置头部时使用的User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	// DefaultAcceptLanguage 未配置语言时的Accept-Language
	DefaultAcceptLanguage = "en-US,en;q=0.9"

	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 5 * 1024 * 1024
)

// HTTPFetcher 基于Colly的HTTP获取器
// 每次获取克隆一个collector,回调只作用于本次请求,可并发使用
type HTTPFetcher struct {
	collector *colly.Collector
	headers   models.HeaderProvider
	policy    RetryPolicy
}

// NewHTTPFetcher 创建HTTP获取器
func NewHTTPFetcher(cfg models.FetchConfig, headers models.HeaderProvider) *HTTPFetcher {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(maxBody),
	)

	// Accept-Encoding由我们显式设置,Transport不会自动解压,响应体在decodeBody中处理
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	})
	c.SetRequestTimeout(timeout)

	if cfg.InsecureSkipVerify {
		utils.Warnf("HTTP获取器: TLS证书验证已禁用")
	}
	utils.Debugf("HTTP获取器: 超时=%v, 最大响应=%d字节", timeout, maxBody)

	return &HTTPFetcher{
		collector: c,
		headers:   headers,
		policy:    RetryPolicyFrom(cfg),
	}
}

// Strategy 返回http
func (f *HTTPFetcher) Strategy() models.FetchStrategy {
	return models.StrategyHTTP
}

// Close HTTP获取器无需释放资源
func (f *HTTPFetcher) Close() error {
	return nil
}

// Fetch 带重试的GET请求
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (res *FetchResult, err error) {
	attempts := 0
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("HTTP获取panic [%s]: %v", req.URL, r)
			res, err = nil, &FetchError{URL: req.URL, Strategy: models.StrategyHTTP, Attempts: attempts, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	hdr, err := requestHeaders(f.headers, req.Language, true)
	if err != nil {
		return nil, newFetchError(req, models.StrategyHTTP, 0, err)
	}

	start := time.Now()
	var result *FetchResult
	attempts, err = f.policy.Do(ctx, func(attempt int) error {
		r, err := f.fetchOnce(ctx, req.URL, hdr)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, newFetchError(req, models.StrategyHTTP, attempts, err)
	}

	result.Attempts = attempts
	result.Duration = time.Since(start)
	utils.Debugf("HTTP获取成功 [%s]: 状态=%d, 大小=%d, 尝试%d次, 耗时%v",
		req.URL, result.StatusCode, len(result.Body), attempts, result.Duration)
	return result, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, pageURL string, hdr http.Header) (*FetchResult, error) {
	c := f.collector.Clone()
	c.Context = ctx

	var resp *colly.Response
	var respErr error
	c.OnResponse(func(r *colly.Response) {
		resp = r
	})
	c.OnError(func(r *colly.Response, err error) {
		resp = r
		respErr = err
	})

	if err := c.Request(http.MethodGet, pageURL, nil, nil, hdr.Clone()); err != nil && respErr == nil {
		respErr = err
	}
	if respErr != nil {
		return nil, respErr
	}
	if resp == nil {
		return nil, fmt.Errorf("未收到响应")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, URL: pageURL}
	}

	body := decodeBody(pageURL, resp.Headers.Get("Content-Encoding"), resp.Body)

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &FetchResult{
		URL:         pageURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Headers.Get("Content-Type"),
		Body:        string(body),
		Strategy:    models.StrategyHTTP,
	}, nil
}

// requestHeaders 取请求头部,没有提供者时使用默认浏览器头部
// 浏览器策略自行协商编码,只有HTTP策略需要Accept-Encoding
func requestHeaders(provider models.HeaderProvider, language string, withEncoding bool) (http.Header, error) {
	var hdr http.Header
	if provider != nil {
		h, err := provider.HeadersFor(language)
		if err != nil {
			return nil, err
		}
		hdr = h.Clone()
	} else {
		hdr = http.Header{}
	}
	if hdr == nil {
		hdr = http.Header{}
	}

	if hdr.Get("User-Agent") == "" {
		hdr.Set("User-Agent", DefaultUserAgent)
	}
	if hdr.Get("Accept") == "" {
		hdr.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	if hdr.Get("Accept-Language") == "" {
		hdr.Set("Accept-Language", DefaultAcceptLanguage)
	}
	if withEncoding {
		hdr.Set("Accept-Encoding", "gzip, deflate, br")
	} else {
		hdr.Del("Accept-Encoding")
	}
	return hdr, nil
}

// decodeBody 按Content-Encoding解压,失败时使用原始内容
// Colly已自行解压gzip,因此gzip只在仍带有魔数时处理
func decodeBody(pageURL, contentEncoding string, body []byte) []byte {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))
	if encoding == "" || encoding == "identity" {
		return body
	}
	if encoding == "gzip" && !(len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b) {
		return body
	}

	decompressed, err := decompressResponse(encoding, body)
	if err != nil {
		utils.Warnf("解压响应失败 [%s] (编码=%s): %v", pageURL, encoding, err)
		return body
	}
	return decompressed
}

// decompressResponse 支持gzip, deflate, br三种压缩格式
func decompressResponse(encoding string, body []byte) ([]byte, error) {
	var reader io.Reader
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(body))
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		return nil, fmt.Errorf("不支持的压缩格式: %s", encoding)
	}

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s读取失败: %w", encoding, err)
	}
	return decompressed, nil
}
