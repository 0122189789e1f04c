package config

import (
	_ "embed"
	"errors"
	"fmt"
	"syscall"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/spf13/viper"
)

// DefaultHeadersFile 默认头部配置文件路径
const DefaultHeadersFile = "configs/headers.yaml"

//go:embed headers_template.yaml
var defaultHeaderTemplate string

// HeaderConfigLoader 头部配置加载器
type HeaderConfigLoader struct {
	configPath string
}

// NewHeaderConfigLoader 创建头部配置加载器
func NewHeaderConfigLoader(configPath string) *HeaderConfigLoader {
	if configPath == "" {
		configPath = DefaultHeadersFile
	}
	return &HeaderConfigLoader{configPath: configPath}
}

// Path 配置文件路径
func (hcl *HeaderConfigLoader) Path() string {
	return hcl.configPath
}

// EnsureConfigExists 配置文件不存在时生成模板
func (hcl *HeaderConfigLoader) EnsureConfigExists() error {
	created, err := writeTemplate(hcl.configPath, defaultHeaderTemplate)
	if err != nil {
		return err
	}
	if created {
		utils.Infof("📝 已生成头部配置模板: %s", hcl.configPath)
	}
	return nil
}

// LoadConfig 加载头部配置
// 文件被其他进程锁定时降级为空配置,由调用方使用默认头部
func (hcl *HeaderConfigLoader) LoadConfig() (*models.HeaderConfig, error) {
	if err := hcl.EnsureConfigExists(); err != nil {
		return nil, err
	}
	if err := checkFileSize(hcl.configPath); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(hcl.configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			utils.Warnf("头部配置文件被锁定 [%s], 使用默认头部", hcl.configPath)
			return emptyHeaderConfig(), nil
		}
		return nil, &models.ConfigError{FilePath: hcl.configPath, Cause: err}
	}

	var cfg models.HeaderConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.ConfigError{
			FilePath: hcl.configPath,
			Cause:    fmt.Errorf("配置绑定失败: %w", err),
		}
	}

	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	if cfg.Languages == nil {
		cfg.Languages = make(map[string]string)
	}
	return &cfg, nil
}

func emptyHeaderConfig() *models.HeaderConfig {
	return &models.HeaderConfig{
		Headers:   make(map[string]string),
		Languages: make(map[string]string),
	}
}
