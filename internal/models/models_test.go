package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://example.com", false},
		{"带路径的URL", "https://example.com/path/to/resource", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
		{"无协议", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func validHarvestConfig() HarvestConfig {
	return HarvestConfig{
		MaxConcurrent:          1,
		DelayBetweenRequestsMs: 2000,
		DelayBetweenBatchesMs:  5000,
		DailyCreditCap:         100,
		CostPerFetch:           1,
		BrowserCostPerFetch:    3,
		MinContentLength:       300,
		MaxContentLength:       50000,
		MinParagraphs:          3,
	}
}

func TestHarvestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *HarvestConfig)
		wantErr bool
	}{
		{"默认配置有效", func(c *HarvestConfig) {}, false},
		{"额度为0有效", func(c *HarvestConfig) { c.DailyCreditCap = 0 }, false},
		{"最大长度为0表示不限", func(c *HarvestConfig) { c.MaxContentLength = 0 }, false},
		{"并发为0", func(c *HarvestConfig) { c.MaxConcurrent = 0 }, true},
		{"并发过大", func(c *HarvestConfig) { c.MaxConcurrent = 50 }, true},
		{"负数间隔", func(c *HarvestConfig) { c.DelayBetweenRequestsMs = -1 }, true},
		{"负数额度", func(c *HarvestConfig) { c.DailyCreditCap = -5 }, true},
		{"消耗为0", func(c *HarvestConfig) { c.CostPerFetch = 0 }, true},
		{"最大长度小于最小长度", func(c *HarvestConfig) { c.MaxContentLength = 100 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validHarvestConfig()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHarvestConfig_CostFor(t *testing.T) {
	c := validHarvestConfig()

	if got := c.CostFor(&Source{Strategy: StrategyHTTP}); got != 1 {
		t.Errorf("HTTP站点消耗 = %d, want 1", got)
	}
	if got := c.CostFor(&Source{Strategy: StrategyBrowser}); got != 3 {
		t.Errorf("浏览器站点消耗 = %d, want 3", got)
	}
	if got := c.CostFor(&Source{Strategy: StrategyBrowser, CostPerFetch: 7}); got != 7 {
		t.Errorf("站点自定义消耗 = %d, want 7", got)
	}
}

func newTestSource() *Source {
	return &Source{
		Name:             "healthychildren",
		Organization:     "American Academy of Pediatrics",
		BaseURL:          "https://www.healthychildren.org",
		Region:           "US",
		Language:         "en",
		CategoryPaths:    []string{"/English/healthy-living/nutrition/Pages/default.aspx", "English/ages-stages/baby/feeding-nutrition/"},
		LinkAllowPattern: `/English/.+/Pages/[^/]+\.aspx$`,
		LinkDenyPattern:  `(?i)default\.aspx$`,
	}
}

func TestSource_Compile(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Source)
		wantErr bool
	}{
		{"完整配置", func(s *Source) {}, false},
		{"缺少名称", func(s *Source) { s.Name = " " }, true},
		{"base_url无协议", func(s *Source) { s.BaseURL = "www.example.com" }, true},
		{"没有分类路径", func(s *Source) { s.CategoryPaths = nil }, true},
		{"缺少allow正则", func(s *Source) { s.LinkAllowPattern = "" }, true},
		{"allow正则无效", func(s *Source) { s.LinkAllowPattern = "([a-z" }, true},
		{"deny正则无效", func(s *Source) { s.LinkDenyPattern = "*bad" }, true},
		{"策略无效", func(s *Source) { s.Strategy = "playwright" }, true},
		{"负数消耗", func(s *Source) { s.CostPerFetch = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSource()
			tt.mutate(s)
			err := s.Compile()
			if (err != nil) != tt.wantErr {
				t.Errorf("Compile() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSource_DefaultStrategy(t *testing.T) {
	s := newTestSource()
	if err := s.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if s.Strategy != StrategyHTTP {
		t.Errorf("默认策略 = %s, want %s", s.Strategy, StrategyHTTP)
	}
	if s.Host() != "www.healthychildren.org" {
		t.Errorf("Host() = %s", s.Host())
	}
}

func TestSource_AllowsLink(t *testing.T) {
	s := newTestSource()
	if err := s.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	tests := []struct {
		name string
		link string
		want bool
	}{
		{"文章页", "https://www.healthychildren.org/English/ages-stages/baby/Pages/Starting-Solid-Foods.aspx", true},
		{"不匹配allow", "https://www.healthychildren.org/Spanish/about.html", false},
		{"命中deny", "https://www.healthychildren.org/English/healthy-living/Pages/default.aspx", false},
		{"命中deny大小写", "https://www.healthychildren.org/English/healthy-living/Pages/Default.aspx", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.AllowsLink(tt.link); got != tt.want {
				t.Errorf("AllowsLink(%s) = %v, want %v", tt.link, got, tt.want)
			}
		})
	}
}

func TestSource_CategoryURLs(t *testing.T) {
	s := newTestSource()
	if err := s.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	got := s.CategoryURLs()
	want := []string{
		"https://www.healthychildren.org/English/healthy-living/nutrition/Pages/default.aspx",
		"https://www.healthychildren.org/English/ages-stages/baby/feeding-nutrition/",
	}
	if len(got) != len(want) {
		t.Fatalf("CategoryURLs() 数量 = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CategoryURLs()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSourceCatalog_ValidateAndFilter(t *testing.T) {
	a := newTestSource()
	b := newTestSource()
	b.Name = "who"
	b.BaseURL = "https://www.who.int"

	catalog := &SourceCatalog{Sources: []*Source{a, b}}
	if err := catalog.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	got, err := catalog.Filter([]string{"WHO"})
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "who" {
		t.Errorf("Filter() = %v", got)
	}

	all, _ := catalog.Filter(nil)
	if len(all) != 2 || all[0].Name != "healthychildren" {
		t.Errorf("Filter(nil) 应保持目录顺序")
	}

	if _, err := catalog.Filter([]string{"cdc"}); err == nil {
		t.Error("未知站点应返回错误")
	}

	dup := &SourceCatalog{Sources: []*Source{newTestSource(), newTestSource()}}
	if err := dup.Validate(); err == nil {
		t.Error("重复站点名称应返回错误")
	}

	if err := (&SourceCatalog{}).Validate(); err == nil {
		t.Error("空目录应返回错误")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"普通标题", "How to Feed Your Baby: First Foods!", "how-to-feed-your-baby-first-foods"},
		{"首尾空白和符号", "  --Iron & Vitamin D--  ", "iron-vitamin-d"},
		{"数字", "Top 10 Snacks for 2-Year-Olds", "top-10-snacks-for-2-year-olds"},
		{"空标题", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.title); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestSlugify_NonLatinAndLength(t *testing.T) {
	first := Slugify("婴儿辅食添加指南")
	second := Slugify("婴儿辅食添加指南")
	if !strings.HasPrefix(first, "article-") {
		t.Errorf("非拉丁标题slug = %q, 期望 article- 前缀", first)
	}
	if first != second {
		t.Errorf("同一标题slug不稳定: %q != %q", first, second)
	}
	if Slugify("母乳喂养") == first {
		t.Error("不同标题不应得到相同slug")
	}

	long := Slugify(strings.Repeat("nutrition guidance ", 20))
	if len(long) > MaxSlugLength {
		t.Errorf("slug长度 = %d, 超过 %d", len(long), MaxSlugLength)
	}
	if strings.HasSuffix(long, "-") || strings.HasPrefix(long, "-") {
		t.Errorf("slug不应以连字符开头或结尾: %q", long)
	}
}

func TestNewArticle(t *testing.T) {
	src := newTestSource()
	doc := NewExtractedDocument("Starting Solid Foods", []string{
		"Most babies are ready to begin eating solid foods at about six months.",
		"Introduce one new single-ingredient food at a time and watch for reactions.",
	})
	pageURL := "https://www.healthychildren.org/English/ages-stages/baby/Pages/Starting-Solid-Foods.aspx"
	fetchedAt := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	draft, err := NewArticle(doc, src, pageURL, fetchedAt)
	if err != nil {
		t.Fatalf("NewArticle() error = %v", err)
	}

	if draft.Article.Slug != "starting-solid-foods" {
		t.Errorf("Slug = %s", draft.Article.Slug)
	}
	if draft.Article.Status != StatusDraft {
		t.Errorf("Status = %s, want draft", draft.Article.Status)
	}
	if !strings.Contains(draft.Article.Provenance, pageURL) {
		t.Errorf("Provenance应包含来源URL: %s", draft.Article.Provenance)
	}
	if !strings.Contains(draft.Article.Provenance, "American Academy of Pediatrics") || !strings.Contains(draft.Article.Provenance, "US") {
		t.Errorf("Provenance应包含机构和地区: %s", draft.Article.Provenance)
	}
	if draft.Article.SourceURL != pageURL {
		t.Errorf("SourceURL = %s", draft.Article.SourceURL)
	}
	if draft.Citation.ArticleID != draft.Article.ID {
		t.Error("Citation.ArticleID应指向文章ID")
	}
	if draft.Citation.Publisher != src.Organization || !draft.Citation.Date.Equal(fetchedAt) {
		t.Errorf("Citation = %+v", draft.Citation)
	}
	if draft.Source.URL != src.BaseURL {
		t.Errorf("Source.URL = %s", draft.Source.URL)
	}
}

func TestNewArticle_RequiredFields(t *testing.T) {
	src := newTestSource()
	doc := NewExtractedDocument("Title", []string{"body text that is long enough to count"})

	tests := []struct {
		name    string
		doc     *ExtractedDocument
		src     *Source
		url     string
		wantErr error
	}{
		{"缺少标题", NewExtractedDocument("", []string{"x"}), src, "https://a.org/x", ErrMissingTitle},
		{"缺少正文", NewExtractedDocument("T", nil), src, "https://a.org/x", ErrMissingBody},
		{"缺少URL", doc, src, "", ErrMissingSourceURL},
		{"缺少来源", doc, nil, "https://a.org/x", ErrMissingSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewArticle(tt.doc, tt.src, tt.url, time.Now())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewArticle() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewExtractedDocument(t *testing.T) {
	doc := NewExtractedDocument("  Title  ", []string{"one two three", "four five"})
	if doc.Title != "Title" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.RawText != "one two three\n\nfour five" {
		t.Errorf("RawText = %q", doc.RawText)
	}
	if doc.WordCount != 5 {
		t.Errorf("WordCount = %d, want 5", doc.WordCount)
	}
}

func TestBudgetLedger(t *testing.T) {
	ledger := NewBudgetLedger(3)

	if !ledger.CanAfford(3) {
		t.Error("额度恰好等于上限时应允许")
	}
	if err := ledger.Charge(2); err != nil {
		t.Fatalf("Charge(2) error = %v", err)
	}
	if ledger.CanAfford(2) {
		t.Error("2 + 2 > 3 不应允许")
	}

	err := ledger.Charge(2)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Charge超额 error = %v, want ErrBudgetExceeded", err)
	}
	if ledger.CreditsUsed != 2 || ledger.RequestsAttempted != 1 {
		t.Errorf("超额扣费不应修改账本: %+v", ledger)
	}

	if err := ledger.Charge(1); err != nil {
		t.Fatalf("Charge(1) error = %v", err)
	}
	if ledger.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", ledger.Remaining())
	}
	if err := ledger.Charge(-1); err == nil {
		t.Error("负数消耗应返回错误")
	}
}

func TestCliHeaders_Parse(t *testing.T) {
	got, err := CliHeaders{"User-Agent: Bot/1.0", "Accept-Language:  fr-FR "}.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Get("User-Agent") != "Bot/1.0" || got.Get("Accept-Language") != "fr-FR" {
		t.Errorf("Parse() = %v", got)
	}

	if _, err := (CliHeaders{"NoColon"}).Parse(); err == nil {
		t.Error("缺少冒号应返回错误")
	}
	if _, err := (CliHeaders{": value"}).Parse(); err == nil {
		t.Error("空名称应返回错误")
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ConfigError{FilePath: "configs/sources.yaml", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("ConfigError应支持errors.Is")
	}
	if !strings.Contains(err.Error(), "configs/sources.yaml") {
		t.Errorf("Error() = %s", err.Error())
	}
}

func TestRunStats_RecordSkip(t *testing.T) {
	var stats RunStats
	stats.RecordSkip(1)
	stats.RecordSkip(1)
	stats.RecordSkip(3)
	if stats.Skipped != 3 || stats.SkipsByTier[1] != 2 || stats.SkipsByTier[3] != 1 {
		t.Errorf("RecordSkip统计错误: %+v", stats)
	}
}
