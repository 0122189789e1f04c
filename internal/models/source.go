package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// FetchStrategy 页面获取策略
type FetchStrategy string

const (
	StrategyHTTP    FetchStrategy = "http"    // 纯HTTP请求
	StrategyBrowser FetchStrategy = "browser" // 无头浏览器渲染
	StrategyAuto    FetchStrategy = "auto"    // 先HTTP,检测到反爬页面后回退浏览器
)

// Valid 检查策略取值是否合法
func (s FetchStrategy) Valid() bool {
	switch s {
	case StrategyHTTP, StrategyBrowser, StrategyAuto:
		return true
	}
	return false
}

// Source 权威站点配置
// 运行期间只读,由SourceCatalog加载一次
type Source struct {
	Name             string        `yaml:"name" json:"name"`
	Organization     string        `yaml:"organization" json:"organization"`
	BaseURL          string        `yaml:"base_url" json:"base_url"`
	Region           string        `yaml:"region" json:"region"`
	Language         string        `yaml:"language" json:"language"`
	Grade            string        `yaml:"grade" json:"grade"`
	CategoryPaths    []string      `yaml:"category_paths" json:"category_paths"`
	LinkAllowPattern string        `yaml:"link_allow_pattern" json:"link_allow_pattern"`
	LinkDenyPattern  string        `yaml:"link_deny_pattern" json:"link_deny_pattern"`
	Strategy         FetchStrategy `yaml:"strategy" json:"strategy"`
	CostPerFetch     int           `yaml:"cost_per_fetch" json:"cost_per_fetch"`

	allowRe *regexp.Regexp
	denyRe  *regexp.Regexp
	base    *url.URL
}

// Compile 校验站点配置并编译链接过滤正则
func (s *Source) Compile() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("站点名称不能为空")
	}

	base, err := url.Parse(s.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return fmt.Errorf("站点 %s 的base_url无效: %q", s.Name, s.BaseURL)
	}
	s.base = base

	if len(s.CategoryPaths) == 0 {
		return fmt.Errorf("站点 %s 未配置category_paths", s.Name)
	}

	if s.LinkAllowPattern == "" {
		return fmt.Errorf("站点 %s 未配置link_allow_pattern", s.Name)
	}
	if s.allowRe, err = regexp.Compile(s.LinkAllowPattern); err != nil {
		return fmt.Errorf("站点 %s 的link_allow_pattern无效: %w", s.Name, err)
	}

	if s.LinkDenyPattern != "" {
		if s.denyRe, err = regexp.Compile(s.LinkDenyPattern); err != nil {
			return fmt.Errorf("站点 %s 的link_deny_pattern无效: %w", s.Name, err)
		}
	}

	if s.Strategy == "" {
		s.Strategy = StrategyHTTP
	}
	if !s.Strategy.Valid() {
		return fmt.Errorf("站点 %s 的strategy无效: %s (有效值: http, browser, auto)", s.Name, s.Strategy)
	}

	if s.CostPerFetch < 0 {
		return fmt.Errorf("站点 %s 的cost_per_fetch不能为负数", s.Name)
	}

	return nil
}

// AllowsLink 链接匹配allow正则且不匹配deny正则
func (s *Source) AllowsLink(link string) bool {
	if s.allowRe == nil || !s.allowRe.MatchString(link) {
		return false
	}
	if s.denyRe != nil && s.denyRe.MatchString(link) {
		return false
	}
	return true
}

// CategoryURLs 将分类路径解析为绝对URL
func (s *Source) CategoryURLs() []string {
	urls := make([]string, 0, len(s.CategoryPaths))
	for _, p := range s.CategoryPaths {
		ref, err := url.Parse(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		urls = append(urls, s.base.ResolveReference(ref).String())
	}
	return urls
}

// Host 返回站点主机,非默认端口时带端口
func (s *Source) Host() string {
	if s.base == nil {
		return ""
	}
	return strings.ToLower(s.base.Host)
}

// SourceCatalog 权威站点目录
type SourceCatalog struct {
	Sources []*Source `yaml:"sources" json:"sources"`
}

// Validate 编译所有站点并检查名称唯一
func (c *SourceCatalog) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("站点目录为空")
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src == nil {
			return fmt.Errorf("第%d个站点配置为空", i+1)
		}
		if err := src.Compile(); err != nil {
			return err
		}
		key := strings.ToLower(src.Name)
		if seen[key] {
			return fmt.Errorf("站点名称重复: %s", src.Name)
		}
		seen[key] = true
	}
	return nil
}

// Filter 按名称筛选站点,保持目录顺序;names为空时返回全部
func (c *SourceCatalog) Filter(names []string) ([]*Source, error) {
	if len(names) == 0 {
		return c.Sources, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(strings.TrimSpace(n))] = true
	}

	result := make([]*Source, 0, len(names))
	for _, src := range c.Sources {
		if wanted[strings.ToLower(src.Name)] {
			result = append(result, src)
			delete(wanted, strings.ToLower(src.Name))
		}
	}

	if len(wanted) > 0 {
		missing := make([]string, 0, len(wanted))
		for n := range wanted {
			missing = append(missing, n)
		}
		return nil, fmt.Errorf("未知的站点: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// ValidateURL 验证URL为带主机名的http(s)地址
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

func generateID() string {
	return uuid.New().String()
}
