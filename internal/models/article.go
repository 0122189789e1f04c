package models

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kennygrant/sanitize"
)

// ArticleStatus 文章状态
type ArticleStatus string

const (
	StatusDraft     ArticleStatus = "draft"     // 草稿,采集入库的默认状态
	StatusPublished ArticleStatus = "published" // 已发布,由外部流程提升
)

// MaxSlugLength slug最大长度
const MaxSlugLength = 80

var (
	ErrMissingTitle     = errors.New("文章标题为空")
	ErrMissingBody      = errors.New("文章正文为空")
	ErrMissingSourceURL = errors.New("文章来源URL为空")
	ErrMissingSource    = errors.New("文章缺少来源站点")
)

// Article 已入库文章
// Provenance记录来源URL、机构和地区,是去重使用的来源记录
type Article struct {
	ID         string        `db:"id" json:"id"`
	Slug       string        `db:"slug" json:"slug"`
	Title      string        `db:"title" json:"title"`
	BodyText   string        `db:"body" json:"body"`
	Status     ArticleStatus `db:"status" json:"status"`
	Provenance string        `db:"provenance" json:"provenance"`
	SourceURL  string        `db:"source_url" json:"source_url"`
}

// Citation 文章引用
type Citation struct {
	ID        string    `db:"id" json:"id"`
	ArticleID string    `db:"article_id" json:"article_id"`
	URL       string    `db:"url" json:"url"`
	Publisher string    `db:"publisher" json:"publisher"`
	Date      time.Time `db:"cited_at" json:"date"`
}

// SourceRecord 已入库的来源站点
type SourceRecord struct {
	ID           string `db:"id" json:"id"`
	URL          string `db:"url" json:"url"`
	Name         string `db:"name" json:"name"`
	Organization string `db:"organization" json:"organization"`
	Grade        string `db:"grade" json:"grade"`
}

// ArticleDraft 待持久化的文章及其引用和来源
type ArticleDraft struct {
	Article  Article
	Citation Citation
	Source   SourceRecord
}

// PersistResult 持久化结果
// Created为false表示slug已存在,按幂等成功处理
type PersistResult struct {
	ArticleID string
	Slug      string
	Created   bool
}

// NewArticle 由提取文档和来源构造待入库文章
// 必填: 文档标题、正文、页面URL、来源站点
// 可选: 机构、地区、等级(为空时按空字符串写入)
func NewArticle(doc *ExtractedDocument, src *Source, pageURL string, fetchedAt time.Time) (*ArticleDraft, error) {
	if doc == nil || strings.TrimSpace(doc.Title) == "" {
		return nil, ErrMissingTitle
	}
	if strings.TrimSpace(doc.RawText) == "" {
		return nil, ErrMissingBody
	}
	if strings.TrimSpace(pageURL) == "" {
		return nil, ErrMissingSourceURL
	}
	if src == nil {
		return nil, ErrMissingSource
	}

	publisher := src.Organization
	if publisher == "" {
		publisher = src.Name
	}

	draft := &ArticleDraft{
		Article: Article{
			ID:         generateID(),
			Slug:       Slugify(doc.Title),
			Title:      doc.Title,
			BodyText:   doc.RawText,
			Status:     StatusDraft,
			Provenance: BuildProvenance(pageURL, src.Organization, src.Region),
			SourceURL:  pageURL,
		},
		Citation: Citation{
			ID:        generateID(),
			URL:       pageURL,
			Publisher: publisher,
			Date:      fetchedAt.UTC(),
		},
		Source: SourceRecord{
			ID:           generateID(),
			URL:          src.BaseURL,
			Name:         src.Name,
			Organization: src.Organization,
			Grade:        src.Grade,
		},
	}
	draft.Citation.ArticleID = draft.Article.ID

	return draft, nil
}

// BuildProvenance 生成来源描述文本
func BuildProvenance(pageURL, organization, region string) string {
	parts := []string{"Source: " + pageURL}
	if organization != "" {
		parts = append(parts, "Organization: "+organization)
	}
	if region != "" {
		parts = append(parts, "Region: "+region)
	}
	return strings.Join(parts, " | ")
}

// Slugify 将标题规范化为URL安全的slug
// 非拉丁标题无法转写时使用标题哈希兜底,保证同一标题得到同一slug
func Slugify(title string) string {
	folded := strings.ToLower(sanitize.Accents(strings.TrimSpace(title)))

	var b strings.Builder
	dash := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > MaxSlugLength {
		slug = slug[:MaxSlugLength]
		if idx := strings.LastIndexByte(slug, '-'); idx > MaxSlugLength/2 {
			slug = slug[:idx]
		}
		slug = strings.Trim(slug, "-")
	}

	if slug == "" && strings.TrimSpace(title) != "" {
		sum := sha256.Sum256([]byte(strings.TrimSpace(title)))
		slug = fmt.Sprintf("article-%x", sum[:6])
	}
	return slug
}
