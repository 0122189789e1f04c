package models

import (
	"strings"
	"time"
)

// CandidateURL 候选文章URL
// 由Discoverer创建,在终态(跳过/入库/失败)后丢弃
type CandidateURL struct {
	URL          string
	Source       *Source
	DiscoveredAt time.Time
}

// ParagraphSeparator 段落之间的分隔符
const ParagraphSeparator = "\n\n"

// ExtractedDocument 从页面中提取的正文
type ExtractedDocument struct {
	Title      string   `json:"title"`
	Paragraphs []string `json:"paragraphs"`
	RawText    string   `json:"raw_text"`
	WordCount  int      `json:"word_count"`
}

// NewExtractedDocument 由标题和段落构造文档,计算RawText和WordCount
func NewExtractedDocument(title string, paragraphs []string) *ExtractedDocument {
	raw := strings.Join(paragraphs, ParagraphSeparator)
	return &ExtractedDocument{
		Title:      strings.TrimSpace(title),
		Paragraphs: paragraphs,
		RawText:    raw,
		WordCount:  len(strings.Fields(raw)),
	}
}
