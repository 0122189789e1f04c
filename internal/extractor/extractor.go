// Package extractor 将原始页面内容规范化为标题和段落,并执行质量校验
package extractor

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
)

const (
	// MinParagraphRunes 段落最小长度(字符)
	MinParagraphRunes = 30
	// MaxParagraphRunes 段落最大长度(字符)
	MaxParagraphRunes = 2000
)

var (
	// ErrEmptyPayload 页面内容为空
	ErrEmptyPayload = errors.New("页面内容为空")
	// ErrNoContent 未找到符合长度要求的段落
	ErrNoContent = errors.New("未找到正文段落")
)

// 非正文元素,包括常见的广告容器
const stripSelector = "script, style, noscript, template, nav, header, footer, aside, iframe, form, button, " +
	".ad, .ads, .advert, .advertisement, [class^='ad-'], [id^='ad-']"

// 段落级元素
const paragraphSelector = "p, li, td, dd, blockquote, h2, h3"

// DefaultContainerSelectors 默认正文容器,按顺序尝试
var DefaultContainerSelectors = []string{
	"article",
	"main",
	"[role='main']",
	".article-content",
	".entry-content",
	".post-content",
	"#content",
	".content",
}

var (
	htmlMarkerRe = regexp.MustCompile(`(?i)<\s*(!doctype|html|head|body|div|p|article|main|section|h[1-6]|title|span|ul|ol|li|table)[\s>/]`)
	blankLineRe  = regexp.MustCompile(`\n\s*\n`)
)

// Extractor 正文提取器
// 纯函数式转换,不做任何I/O,可并发使用
type Extractor struct {
	containers []string
}

// NewExtractor 创建提取器,containers为空时使用默认容器列表
func NewExtractor(containers []string) *Extractor {
	if len(containers) == 0 {
		containers = DefaultContainerSelectors
	}
	return &Extractor{containers: containers}
}

// Extract 提取标题和段落
// HTML内容用goquery解析;非HTML内容按空行切分段落
func (e *Extractor) Extract(payload string) (*models.ExtractedDocument, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, ErrEmptyPayload
	}

	var title string
	var paragraphs []string
	if LooksLikeHTML(payload) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(payload))
		if err != nil {
			return nil, err
		}
		title, paragraphs = e.extractHTML(doc)
	} else {
		title, paragraphs = extractText(payload)
	}

	if len(paragraphs) == 0 {
		return nil, ErrNoContent
	}
	return models.NewExtractedDocument(title, paragraphs), nil
}

func (e *Extractor) extractHTML(doc *goquery.Document) (string, []string) {
	// 正文内的h1可能包在<header>里,需在去除页面框架前读取
	title := collapseSpace(doc.Find("article h1, main h1").First().Text())

	doc.Find(stripSelector).Remove()

	if title == "" {
		title = collapseSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = collapseSpace(doc.Find("title").First().Text())
	}

	for _, sel := range e.containers {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		if paragraphs := collectParagraphs(container); len(paragraphs) > 0 {
			return title, paragraphs
		}
	}
	return title, collectParagraphs(doc.Selection)
}

// collectParagraphs 按文档顺序收集段落
// 包含其他段落元素的元素跳过,避免嵌套文本重复计算
func collectParagraphs(root *goquery.Selection) []string {
	paragraphs := make([]string, 0)
	root.Find(paragraphSelector).Each(func(_ int, s *goquery.Selection) {
		if s.Find(paragraphSelector).Length() > 0 {
			return
		}
		if text := collapseSpace(s.Text()); inWindow(text) {
			paragraphs = append(paragraphs, text)
		}
	})
	return paragraphs
}

// extractText 处理已渲染的纯文本
// 首个块过短不足以成为段落且后面还有内容时,作为标题
func extractText(payload string) (string, []string) {
	blocks := blankLineRe.Split(strings.ReplaceAll(payload, "\r\n", "\n"), -1)

	var title string
	paragraphs := make([]string, 0, len(blocks))
	for i, block := range blocks {
		text := collapseSpace(block)
		if text == "" {
			continue
		}
		if title == "" && len(paragraphs) == 0 && i < len(blocks)-1 && utf8.RuneCountInString(text) < MinParagraphRunes {
			title = text
			continue
		}
		if inWindow(text) {
			paragraphs = append(paragraphs, text)
		}
	}
	return title, paragraphs
}

func inWindow(text string) bool {
	n := utf8.RuneCountInString(text)
	return n >= MinParagraphRunes && n <= MaxParagraphRunes
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// LooksLikeHTML 判断内容是否为HTML标记
func LooksLikeHTML(payload string) bool {
	head := payload
	if len(head) > 4096 {
		head = head[:4096]
	}
	return htmlMarkerRe.MatchString(head)
}
