package crawlers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"golang.org/x/net/html"
)

// globalDenyPatterns 所有站点共用的链接排除规则
var globalDenyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)sitemap`),
	regexp.MustCompile(`(?i)/(login|log-in|signin|sign-in|register|signup|sign-up|my-account)(/|$|\?)`),
	regexp.MustCompile(`(?i)/page/\d+/?$`),
	regexp.MustCompile(`(?i)[?&]page=\d+`),
	regexp.MustCompile(`(?i)/(default\.aspx|index\.html?)$`),
	regexp.MustCompile(`(?i)\.(pdf|jpe?g|png|gif|svg|webp|ico|zip|docx?|xlsx?|pptx?|mp3|mp4|avi|mov|css|js|xml|rss|json)$`),
}

var schemeDeny = regexp.MustCompile(`(?i)^\s*(mailto|javascript|tel):`)

// trackingParams 规范化时去除的跟踪参数
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "dclid": true, "msclkid": true,
	"mc_cid": true, "mc_eid": true, "_ga": true, "_gl": true, "igshid": true,
}

// IsGloballyDenied 链接命中全局排除规则
func IsGloballyDenied(link string) bool {
	if schemeDeny.MatchString(link) {
		return true
	}
	target := link
	if u, err := url.Parse(link); err == nil {
		target = u.EscapedPath()
		if u.RawQuery != "" {
			target += "?" + u.RawQuery
		}
	}
	for _, re := range globalDenyPatterns {
		if re.MatchString(target) {
			return true
		}
	}
	return false
}

// NormalizeURL 规范化URL: 小写scheme和主机,去掉默认端口、片段和跟踪参数,查询参数排序
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("URL格式无效: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("不支持的协议: %s", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL缺少主机名")
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if strings.HasPrefix(strings.ToLower(key), "utm_") || trackingParams[strings.ToLower(key)] {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}
	u.ForceQuery = false

	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// ExtractLinks 提取HTML中的<a href>并解析为绝对URL,遵循<base href>
func ExtractLinks(htmlContent, pageURL string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("解析页面URL失败: %w", err)
	}

	var hrefs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "base":
				if href := attr(n, "href"); href != "" {
					if ref, err := url.Parse(href); err == nil {
						base = base.ResolveReference(ref)
					}
				}
			case "a":
				if href := strings.TrimSpace(attr(n, "href")); href != "" {
					hrefs = append(hrefs, href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	links := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "tel:") {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		links = append(links, base.ResolveReference(ref).String())
	}
	return links, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// FetcherProvider 按策略提供获取器
type FetcherProvider interface {
	ForStrategy(strategy models.FetchStrategy) Fetcher
}

// Discoverer 从站点分类页发现候选文章URL
type Discoverer struct {
	fetchers FetcherProvider
	robots   *RobotsChecker
}

// NewDiscoverer 创建发现器,robots为nil时不检查robots.txt
func NewDiscoverer(fetchers FetcherProvider, robots *RobotsChecker) *Discoverer {
	return &Discoverer{fetchers: fetchers, robots: robots}
}

// Discover 按目录顺序发现所有站点的候选,跨站点去重并保持发现顺序
func (d *Discoverer) Discover(ctx context.Context, sources []*models.Source) []models.CandidateURL {
	queue := NewCandidateQueue()
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		d.discoverInto(ctx, src, queue)
	}
	return queue.Drain()
}

// DiscoverSource 发现单个站点的候选
func (d *Discoverer) DiscoverSource(ctx context.Context, src *models.Source) []models.CandidateURL {
	queue := NewCandidateQueue()
	d.discoverInto(ctx, src, queue)
	return queue.Drain()
}

func (d *Discoverer) discoverInto(ctx context.Context, src *models.Source, queue *CandidateQueue) {
	fetcher := d.fetchers.ForStrategy(src.Strategy)
	before := queue.Len()

	for _, listingURL := range src.CategoryURLs() {
		if ctx.Err() != nil {
			return
		}
		if normalized, err := NormalizeURL(listingURL); err == nil {
			queue.MarkSeen(normalized)
		}

		res, err := fetcher.Fetch(ctx, Request{URL: listingURL, Language: src.Language, Listing: true})
		if err != nil {
			utils.Warnf("⚠️  分类页获取失败,跳过 [%s]: %v", listingURL, err)
			continue
		}

		links, err := ExtractLinks(res.Body, res.FinalURL)
		if err != nil {
			utils.Warnf("⚠️  分类页解析失败,跳过 [%s]: %v", listingURL, err)
			continue
		}

		added := 0
		for _, link := range links {
			normalized, err := NormalizeURL(link)
			if err != nil || !src.AllowsLink(normalized) || IsGloballyDenied(normalized) {
				continue
			}
			if queue.IsSeen(normalized) {
				continue
			}
			if !d.robotsAllowed(ctx, normalized) {
				queue.MarkSeen(normalized)
				continue
			}
			if queue.Push(models.CandidateURL{URL: normalized, Source: src, DiscoveredAt: time.Now()}) {
				added++
			}
		}
		utils.Debugf("分类页 %s: 链接%d个, 新候选%d个", listingURL, len(links), added)
	}

	utils.Infof("🔎 站点 %s 发现候选 %d 个", src.Name, queue.Len()-before)
}

// CrawlDelay 站点robots.txt声明的抓取间隔,需在发现之后调用
func (d *Discoverer) CrawlDelay(src *models.Source) time.Duration {
	if d.robots == nil || src == nil {
		return 0
	}
	return d.robots.CrawlDelay(src.Host())
}

func (d *Discoverer) robotsAllowed(ctx context.Context, link string) bool {
	if d.robots == nil {
		return true
	}
	allowed, err := d.robots.IsAllowed(ctx, link)
	if err != nil {
		return true
	}
	if !allowed {
		utils.Infof("🚫 robots.txt禁止抓取: %s", link)
	}
	return allowed
}
