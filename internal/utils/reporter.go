package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/schollz/progressbar/v3"
)

// WriteRunReport 将运行报告写入 outputDir/reports/
// 生成 run_<时间>_<id前8位>.json 和同名的 _failures.json
// 返回主报告路径
func WriteRunReport(outputDir string, report *models.RunReport) (string, error) {
	reportsDir := filepath.Join(outputDir, "reports")
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	id := report.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	base := fmt.Sprintf("run_%s_%s", report.StartedAt.Format("20060102_150405"), id)

	mainPath := filepath.Join(reportsDir, base+".json")
	if err := saveJSON(mainPath, report); err != nil {
		return "", err
	}

	if failures := report.Failures(); len(failures) > 0 {
		if err := saveJSON(filepath.Join(reportsDir, base+"_failures.json"), failures); err != nil {
			return "", err
		}
	}

	Infof("✅ 运行报告已生成: %s", mainPath)
	return mainPath, nil
}

func saveJSON(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}
	Debugf("保存报告: %s", path)
	return nil
}

// NewProgressBar 创建进度条,out为nil时输出到stderr
func NewProgressBar(max int, description string, out io.Writer) *progressbar.ProgressBar {
	if out == nil {
		out = os.Stderr
	}
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
