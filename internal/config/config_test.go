package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
)

func TestHeaderConfigLoader_LoadConfig(t *testing.T) {
	t.Run("首次运行自动生成配置文件", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nested", "headers.yaml")

		cfg, err := NewHeaderConfigLoader(configPath).LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if _, err := os.Stat(configPath); err != nil {
			t.Fatal("配置文件应该被自动生成")
		}
		if cfg.Headers["user-agent"] == "" {
			t.Error("模板应包含User-Agent")
		}
		if cfg.Languages["fr"] == "" {
			t.Error("模板应包含fr语言映射")
		}
	})

	t.Run("加载已存在的配置文件", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		content := `headers:
  User-Agent: "Test Bot/1.0"
languages:
  de: "de-DE,de;q=0.9"
`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("写入测试配置失败: %v", err)
		}

		cfg, err := NewHeaderConfigLoader(configPath).LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		// viper会将键名转换为小写
		if cfg.Headers["user-agent"] != "Test Bot/1.0" {
			t.Errorf("期望 user-agent='Test Bot/1.0', 实际='%s'", cfg.Headers["user-agent"])
		}
		if cfg.Languages["de"] != "de-DE,de;q=0.9" {
			t.Errorf("languages解析错误: %v", cfg.Languages)
		}
	})

	t.Run("空配置初始化map", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		if err := os.WriteFile(configPath, []byte("# empty\n"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := NewHeaderConfigLoader(configPath).LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if cfg.Headers == nil || cfg.Languages == nil {
			t.Error("空配置的map应被初始化")
		}
	})

	t.Run("文件过大返回ConfigError", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		big := "headers:\n  X-Pad: \"" + strings.Repeat("a", MaxConfigFileSize) + "\"\n"
		if err := os.WriteFile(configPath, []byte(big), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := NewHeaderConfigLoader(configPath).LoadConfig()
		var cfgErr *models.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("期望ConfigError, 实际: %v", err)
		}
	})
}

func TestParseSourceCatalog(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "有效目录",
			yaml: `sources:
  - name: who
    organization: World Health Organization
    base_url: https://www.who.int
    category_paths: [/health-topics/infant-nutrition]
    link_allow_pattern: '/news-room/fact-sheets/detail/.+'
`,
		},
		{name: "空文件", yaml: "", wantErr: "站点目录为空"},
		{
			name: "未知字段",
			yaml: `sources:
  - name: who
    base_url: https://www.who.int
    category_path: [/x]
    link_allow_pattern: '.+'
`,
			wantErr: "category_path",
		},
		{
			name: "无效正则",
			yaml: `sources:
  - name: who
    base_url: https://www.who.int
    category_paths: [/x]
    link_allow_pattern: '(['
`,
			wantErr: "link_allow_pattern",
		},
		{
			name: "无效策略",
			yaml: `sources:
  - name: who
    base_url: https://www.who.int
    category_paths: [/x]
    link_allow_pattern: '.+'
    strategy: curl
`,
			wantErr: "strategy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog, err := ParseSourceCatalog([]byte(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ParseSourceCatalog() error = %v", err)
				}
				if len(catalog.Sources) != 1 || catalog.Sources[0].Strategy != models.StrategyHTTP {
					t.Errorf("解析结果错误: %+v", catalog.Sources)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("期望错误包含 %q, 实际: %v", tt.wantErr, err)
			}
		})
	}
}

func TestSourcesTemplate(t *testing.T) {
	catalog, err := ParseSourceCatalog([]byte(SourcesTemplate()))
	if err != nil {
		t.Fatalf("内置模板应能通过校验: %v", err)
	}
	if len(catalog.Sources) == 0 {
		t.Fatal("内置模板应至少包含一个站点")
	}

	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := WriteSourcesTemplate(path); err != nil {
		t.Fatalf("WriteSourcesTemplate() error = %v", err)
	}
	if err := WriteSourcesTemplate(path); err == nil {
		t.Error("文件已存在时应返回错误")
	}

	loaded, err := LoadSourceCatalog(path)
	if err != nil {
		t.Fatalf("LoadSourceCatalog() error = %v", err)
	}
	if len(loaded.Sources) != len(catalog.Sources) {
		t.Errorf("站点数量 = %d, want %d", len(loaded.Sources), len(catalog.Sources))
	}
}

func TestLoadSourceCatalog_Missing(t *testing.T) {
	_, err := LoadSourceCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *models.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("期望ConfigError, 实际: %v", err)
	}
}
