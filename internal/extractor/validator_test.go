package extractor

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
)

func docWith(title string, paragraphs ...string) *models.ExtractedDocument {
	return models.NewExtractedDocument(title, paragraphs)
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator(Thresholds{MinContentLength: 300, MaxContentLength: 1000, MinParagraphs: 2})
	para := strings.Repeat("x", 200)

	tests := []struct {
		name    string
		doc     *models.ExtractedDocument
		reasons []string
	}{
		{"通过", docWith("Title", para, para), nil},
		{"内容过短", docWith("Title", para), []string{"too short (200 < 300)", "not enough paragraphs (1 < 2)"}},
		{"内容过长", docWith("Title", para, para, para, para, para), []string{"too long (1008 > 1000)"}},
		{"缺少标题", docWith("", para, para), []string{"missing title"}},
		{"全部不满足", docWith("  "), []string{"missing title", "too short (0 < 300)", "not enough paragraphs (0 < 2)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.doc)
			if got.Passed != (len(tt.reasons) == 0) {
				t.Errorf("Passed = %v, reasons = %v", got.Passed, got.Reasons)
			}
			if len(tt.reasons) == 0 && len(got.Reasons) == 0 {
				return
			}
			if !reflect.DeepEqual(got.Reasons, tt.reasons) {
				t.Errorf("Reasons = %q, want %q", got.Reasons, tt.reasons)
			}
		})
	}
}

func TestValidator_ScenarioShortPage(t *testing.T) {
	v := NewValidator(ThresholdsFrom(models.HarvestConfig{MinContentLength: 300, MinParagraphs: 1}))
	doc := docWith("Short Page", strings.Repeat("y", 200))

	got := v.Validate(doc)
	if got.Passed {
		t.Fatal("200字符的页面不应通过")
	}
	if got.Error() != "too short (200 < 300)" {
		t.Errorf("Error() = %q", got.Error())
	}
}

func TestValidator_UnboundedMax(t *testing.T) {
	v := NewValidator(Thresholds{MinContentLength: 10, MaxContentLength: 0, MinParagraphs: 1})
	got := v.Validate(docWith("Title", strings.Repeat("z", 100000)))
	if !got.Passed {
		t.Errorf("MaxContentLength为0时不应限制长度: %v", got.Reasons)
	}
}

func TestValidator_RuneLength(t *testing.T) {
	v := NewValidator(Thresholds{MinContentLength: 40, MinParagraphs: 1})
	got := v.Validate(docWith("辅食", strings.Repeat("营养", 20)))
	if !got.Passed {
		t.Errorf("长度应按字符计算: %v", got.Reasons)
	}
}

// 满足全部条件必然通过;任一条件不满足必然失败且包含对应原因
func TestValidator_Monotonicity(t *testing.T) {
	for _, minLen := range []int{0, 50, 120} {
		for _, maxLen := range []int{0, 120, 400} {
			if maxLen != 0 && maxLen < minLen {
				continue
			}
			for _, minParas := range []int{0, 1, 3} {
				v := NewValidator(Thresholds{MinContentLength: minLen, MaxContentLength: maxLen, MinParagraphs: minParas})
				for _, title := range []string{"", "Title"} {
					for paraCount := 0; paraCount <= 4; paraCount++ {
						paras := make([]string, paraCount)
						for i := range paras {
							paras[i] = strings.Repeat("w", 40)
						}
						doc := docWith(title, paras...)
						n := len(doc.RawText)

						inBounds := n >= minLen && (maxLen == 0 || n <= maxLen)
						want := inBounds && paraCount >= minParas && title != ""
						got := v.Validate(doc)

						name := fmt.Sprintf("min=%d max=%d paras=%d/%d title=%q", minLen, maxLen, paraCount, minParas, title)
						if got.Passed != want {
							t.Errorf("%s: Passed = %v, want %v (%v)", name, got.Passed, want, got.Reasons)
						}
						if !want && len(got.Reasons) == 0 {
							t.Errorf("%s: 失败时必须给出原因", name)
						}
					}
				}
			}
		}
	}
}
