package crawlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/temoto/robotstxt"
)

const (
	// RobotsAgent robots.txt匹配使用的爬虫名
	RobotsAgent = "AuthorityHarvest"

	defaultRobotsCacheTTL = 24 * time.Hour
	maxRobotsBodyBytes    = 512 * 1024
)

// RobotsChecker 按主机缓存robots.txt规则
// robots.txt缺失、出错或非2xx时一律放行
type RobotsChecker struct {
	client   *http.Client
	agent    string
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]*robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
	allowAll  bool
}

// NewRobotsChecker 创建robots检查器,client为nil时使用10秒超时的默认客户端
func NewRobotsChecker(client *http.Client, agent string) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if agent == "" {
		agent = RobotsAgent
	}
	return &RobotsChecker{
		client:   client,
		agent:    agent,
		cacheTTL: defaultRobotsCacheTTL,
		cache:    make(map[string]*robotsEntry),
	}
}

// IsAllowed 检查URL是否允许抓取
func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("robots: URL格式无效: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	if host == "" {
		return false, fmt.Errorf("robots: URL缺少主机名: %q", rawURL)
	}

	entry := r.entryFor(ctx, parsed.Scheme, host)
	if entry.allowAll {
		return true, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return entry.data.TestAgent(path, r.agent), nil
}

// CrawlDelay 返回robots.txt声明的抓取间隔,未缓存或未声明时为0
func (r *RobotsChecker) CrawlDelay(host string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[strings.ToLower(host)]
	if !ok || entry.allowAll || entry.data == nil {
		return 0
	}
	group := entry.data.FindGroup(r.agent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (r *RobotsChecker) entryFor(ctx context.Context, scheme, host string) *robotsEntry {
	r.mu.RLock()
	entry, ok := r.cache[host]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) <= r.cacheTTL {
		return entry
	}

	if scheme == "" {
		scheme = "https"
	}
	entry = r.fetch(ctx, scheme+"://"+host+"/robots.txt")

	r.mu.Lock()
	r.cache[host] = entry
	r.mu.Unlock()
	return entry
}

func (r *RobotsChecker) fetch(ctx context.Context, robotsURL string) *robotsEntry {
	allowAll := &robotsEntry{fetchedAt: time.Now(), allowAll: true}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return allowAll
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		utils.Debugf("获取robots.txt失败,按允许处理 [%s]: %v", robotsURL, err)
		return allowAll
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return allowAll
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return allowAll
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		utils.Warnf("解析robots.txt失败,按允许处理 [%s]: %v", robotsURL, err)
		return allowAll
	}

	utils.Debugf("已加载robots.txt: %s", robotsURL)
	return &robotsEntry{data: data, fetchedAt: time.Now()}
}
