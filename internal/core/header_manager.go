package core

import (
	"net/http"
	"strings"
	"sync"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/config"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/124.0.0.0 Safari/537.36"

	// DefaultAcceptLanguage 未配置语言映射时的Accept-Language
	DefaultAcceptLanguage = "en-US,en;q=0.9"
)

// HeaderManager 管理HTTP请求头部的生命周期
// 实现 models.HeaderProvider 接口,可被多个获取协程并发调用
type HeaderManager struct {
	// defaults 系统默认头部 (硬编码)
	defaults http.Header

	// config 从配置文件加载的头部
	config http.Header

	// languages 站点语言到Accept-Language的映射
	languages map[string]string

	// cli 从命令行参数解析的头部
	cli http.Header

	// acceptLanguage 未匹配到语言时使用的Accept-Language
	acceptLanguage string

	configLoader *config.HeaderConfigLoader

	mu      sync.Mutex
	loaded  bool
	loadErr error
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - configFile: 头部配置文件路径 (如为空则使用默认路径)
//   - cliHeaders: 命令行传递的头部字符串列表
//   - acceptLanguage: 默认Accept-Language (如为空则使用DefaultAcceptLanguage)
func NewHeaderManager(configFile string, cliHeaders []string, acceptLanguage string) (*HeaderManager, error) {
	if strings.TrimSpace(acceptLanguage) == "" {
		acceptLanguage = DefaultAcceptLanguage
	}

	hm := &HeaderManager{
		defaults:       getDefaultHeaders(),
		config:         make(http.Header),
		languages:      make(map[string]string),
		cli:            make(http.Header),
		acceptLanguage: acceptLanguage,
		configLoader:   config.NewHeaderConfigLoader(configFile),
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}

	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent": []string{DefaultUserAgent},
		"Accept":     []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
	}
}

// LoadConfig 加载配置文件并验证所有头部
// 只加载一次,结果(包括错误)会被缓存
func (hm *HeaderManager) LoadConfig() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.loaded {
		return hm.loadErr
	}
	hm.loaded = true

	headerConfig, err := hm.configLoader.LoadConfig()
	if err != nil {
		utils.Errorf("加载HTTP头部配置失败: %v", err)
		hm.loadErr = err
		return err
	}

	for name, value := range headerConfig.Headers {
		hm.config.Set(name, value)
	}
	for lang, value := range headerConfig.Languages {
		hm.languages[strings.ToLower(lang)] = value
	}

	if err := hm.validate(); err != nil {
		hm.loadErr = err
		return err
	}

	if len(hm.config) > 0 {
		utils.Debugf("成功加载%d个HTTP头部配置: %s", len(hm.config), utils.RedactHeaders(hm.config))
	}
	return nil
}

// validate 验证顺序: 默认 → 配置 → 命令行
func (hm *HeaderManager) validate() error {
	for _, layer := range []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	} {
		if err := utils.CheckHeaders(layer.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.name, err)
			return err
		}
	}
	utils.Debugf("所有HTTP头部验证通过")
	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = append([]string(nil), values...)
		}
	}
	return result
}

// AcceptLanguageFor 站点语言对应的Accept-Language
// 先精确匹配,再按主语言匹配 (如 fr-CA → fr),都没有时使用默认值
func (hm *HeaderManager) AcceptLanguageFor(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang == "" {
		return hm.acceptLanguage
	}
	if v, ok := hm.languages[lang]; ok {
		return v
	}
	if primary, _, found := strings.Cut(lang, "-"); found {
		if v, ok := hm.languages[primary]; ok {
			return v
		}
	}
	return hm.acceptLanguage
}

// HeadersFor 实现 models.HeaderProvider 接口
// 命令行显式指定的Accept-Language优先于站点语言
func (hm *HeaderManager) HeadersFor(language string) (http.Header, error) {
	if err := hm.LoadConfig(); err != nil {
		return nil, err
	}

	headers := hm.GetMergedHeaders()
	if hm.cli.Get("Accept-Language") == "" {
		headers.Set("Accept-Language", hm.AcceptLanguageFor(language))
	}
	return headers, nil
}

// SafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) SafeHeaders() string {
	return utils.RedactHeaders(hm.GetMergedHeaders())
}
