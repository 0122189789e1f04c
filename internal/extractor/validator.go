package extractor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
)

// Thresholds 质量阈值
type Thresholds struct {
	MinContentLength int
	MaxContentLength int // 0表示不限
	MinParagraphs    int
}

// ThresholdsFrom 从采集配置读取阈值
func ThresholdsFrom(cfg models.HarvestConfig) Thresholds {
	return Thresholds{
		MinContentLength: cfg.MinContentLength,
		MaxContentLength: cfg.MaxContentLength,
		MinParagraphs:    cfg.MinParagraphs,
	}
}

// Verdict 校验结果
type Verdict struct {
	Passed  bool
	Reasons []string
}

// Error 将所有原因合并为一行
func (v Verdict) Error() string {
	return strings.Join(v.Reasons, "; ")
}

// Validator 质量校验器
type Validator struct {
	t Thresholds
}

// NewValidator 创建校验器
func NewValidator(t Thresholds) *Validator {
	return &Validator{t: t}
}

// Validate 执行全部规则,不短路,返回所有不满足的原因
func (v *Validator) Validate(doc *models.ExtractedDocument) Verdict {
	if doc == nil {
		doc = &models.ExtractedDocument{}
	}
	reasons := make([]string, 0, 3)

	if strings.TrimSpace(doc.Title) == "" {
		reasons = append(reasons, "missing title")
	}

	n := utf8.RuneCountInString(doc.RawText)
	switch {
	case n < v.t.MinContentLength:
		reasons = append(reasons, fmt.Sprintf("too short (%d < %d)", n, v.t.MinContentLength))
	case v.t.MaxContentLength > 0 && n > v.t.MaxContentLength:
		reasons = append(reasons, fmt.Sprintf("too long (%d > %d)", n, v.t.MaxContentLength))
	}

	if len(doc.Paragraphs) < v.t.MinParagraphs {
		reasons = append(reasons, fmt.Sprintf("not enough paragraphs (%d < %d)", len(doc.Paragraphs), v.t.MinParagraphs))
	}

	return Verdict{Passed: len(reasons) == 0, Reasons: reasons}
}
