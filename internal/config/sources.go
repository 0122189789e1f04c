package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultSourcesFile 默认站点目录路径
const DefaultSourcesFile = "configs/sources.yaml"

//go:embed sources_template.yaml
var defaultSourcesTemplate string

// SourcesTemplate 站点目录模板内容
func SourcesTemplate() string {
	return defaultSourcesTemplate
}

// WriteSourcesTemplate 生成站点目录模板,文件已存在时返回错误
func WriteSourcesTemplate(path string) error {
	if path == "" {
		path = DefaultSourcesFile
	}
	created, err := writeTemplate(path, defaultSourcesTemplate)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("站点目录已存在: %s", path)
	}
	return nil
}

// LoadSourceCatalog 读取并校验站点目录
// 未知字段视为配置错误,避免拼写错误的字段被静默忽略
func LoadSourceCatalog(path string) (*models.SourceCatalog, error) {
	if path == "" {
		path = DefaultSourcesFile
	}
	if err := checkFileSize(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: err}
	}

	catalog, err := ParseSourceCatalog(data)
	if err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: err}
	}
	return catalog, nil
}

// ParseSourceCatalog 解析YAML格式的站点目录
func ParseSourceCatalog(data []byte) (*models.SourceCatalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var catalog models.SourceCatalog
	if err := dec.Decode(&catalog); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("站点目录为空")
		}
		return nil, fmt.Errorf("解析站点目录失败: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}
