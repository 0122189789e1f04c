package crawlers

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// minVisibleText 可见文本少于该长度视为空壳页面
	minVisibleText = 200
	// minTextRatio 可见文本占HTML比例下限
	minTextRatio = 0.10
	// ratioCheckMinBytes 小页面不做比例判断
	ratioCheckMinBytes = 20 * 1024
)

// challengeMarkers 常见的反爬挑战页面特征(小写)
var challengeMarkers = []string{
	"just a moment...",
	"checking your browser",
	"cf-browser-verification",
	"challenge-platform",
	"ddos protection by cloudflare",
	"attention required! | cloudflare",
	"enable javascript and cookies to continue",
	"captcha-delivery.com",
	"px-captcha",
}

// spaRootSelectors 单页应用挂载点
var spaRootSelectors = []string{"#root", "#app", "#__next", "#__nuxt", "[data-reactroot]", "app-root"}

// NeedsBrowser 判断HTTP获取的页面是否需要浏览器重新渲染
// 返回是否需要以及原因
func NeedsBrowser(body string) (bool, string) {
	if strings.TrimSpace(body) == "" {
		return true, "响应为空"
	}

	lower := strings.ToLower(body)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true, fmt.Sprintf("反爬挑战页面(%s)", marker)
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return false, ""
	}
	doc.Find("script, style, noscript, template").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	textLen := len(text)

	if textLen < minVisibleText {
		for _, sel := range spaRootSelectors {
			if doc.Find(sel).Length() > 0 {
				return true, fmt.Sprintf("SPA空壳页面(%s)", sel)
			}
		}
		return true, fmt.Sprintf("可见文本过少(%d字节)", textLen)
	}

	if len(body) >= ratioCheckMinBytes {
		ratio := float64(textLen) / float64(len(body))
		if ratio < minTextRatio && doc.Find("p").Length() == 0 {
			return true, fmt.Sprintf("文本占比过低(%.2f)", ratio)
		}
	}

	return false, ""
}
