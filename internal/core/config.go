package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/config"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/store"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀,如 HARVEST_DATABASE_DSN
const EnvPrefix = "HARVEST"

// Config 应用程序配置
type Config struct {
	Harvest  models.HarvestConfig `mapstructure:"harvest"`
	Fetch    models.FetchConfig   `mapstructure:"fetch"`
	Browser  models.BrowserConfig `mapstructure:"browser"`
	Database store.Config         `mapstructure:"database"`
	Logging  utils.LogConfig      `mapstructure:"logging"`
	Output   OutputConfig         `mapstructure:"output"`
	Sources  SourcesConfig        `mapstructure:"sources"`
	Schedule ScheduleConfig       `mapstructure:"schedule"`
	TestPage TestPageConfig       `mapstructure:"test_page"`

	// ConfigFile 实际使用的配置文件,未找到时为空
	ConfigFile string `mapstructure:"-"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	ReportDir string `mapstructure:"report_dir"`
	Progress  bool   `mapstructure:"progress"`
}

// SourcesConfig 站点目录配置
type SourcesConfig struct {
	File          string `mapstructure:"file"`
	HeadersFile   string `mapstructure:"headers_file"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

// ScheduleConfig 定时运行配置
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// TestPageConfig 测试模式配置
type TestPageConfig struct {
	URL      string `mapstructure:"url"`
	Strategy string `mapstructure:"strategy"`
	Language string `mapstructure:"language"`
}

// LoadConfig 加载配置文件
// configPath为空时在./configs、当前目录和~/.authorityharvest中查找config.yaml,找不到时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".authorityharvest"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	return &cfg, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.max_concurrent", 1)
	v.SetDefault("harvest.delay_between_requests_ms", 2000)
	v.SetDefault("harvest.delay_between_batches_ms", 5000)
	v.SetDefault("harvest.daily_credit_cap", 100)
	v.SetDefault("harvest.cost_per_fetch", 1)
	v.SetDefault("harvest.browser_cost_per_fetch", 5)
	v.SetDefault("harvest.min_content_length", 300)
	v.SetDefault("harvest.max_content_length", 50000)
	v.SetDefault("harvest.min_paragraphs", 2)

	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.initial_backoff_ms", 1000)
	v.SetDefault("fetch.max_backoff_ms", 10000)
	v.SetDefault("fetch.max_body_bytes", 5*1024*1024)
	v.SetDefault("fetch.accept_language", "en-US,en;q=0.9")
	v.SetDefault("fetch.insecure_skip_verify", false)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.navigation_timeout_seconds", 45)
	v.SetDefault("browser.settle_delay_ms", 1500)
	v.SetDefault("browser.max_tabs", 2)
	v.SetDefault("browser.max_restarts", 2)
	v.SetDefault("browser.block_resources", []string{"Image", "Media", "Font"})
	v.SetDefault("browser.content_selectors", []string{})
	v.SetDefault("browser.min_free_memory_mb", 512)

	v.SetDefault("database.driver", store.DriverSQLite)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime_minutes", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "logs")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.no_color", false)
	v.SetDefault("logging.quiet", false)

	v.SetDefault("output.report_dir", "output")
	v.SetDefault("output.progress", true)

	v.SetDefault("sources.file", config.DefaultSourcesFile)
	v.SetDefault("sources.headers_file", config.DefaultHeadersFile)
	v.SetDefault("sources.respect_robots", true)

	v.SetDefault("schedule.cron", "0 3 * * *")

	v.SetDefault("test_page.url", DefaultTestURL)
	v.SetDefault("test_page.strategy", string(models.StrategyHTTP))
	v.SetDefault("test_page.language", "en")
}

// Validate 验证配置,任何错误都是启动阶段的致命错误
func (c *Config) Validate() error {
	wrap := func(err error) error {
		return &models.ConfigError{FilePath: c.ConfigFile, Cause: err}
	}

	if err := c.Harvest.Validate(); err != nil {
		return wrap(err)
	}
	if c.Fetch.TimeoutSeconds < 1 {
		return wrap(fmt.Errorf("fetch.timeout_seconds必须至少为1"))
	}
	if c.Fetch.MaxAttempts < 1 || c.Fetch.MaxAttempts > 10 {
		return wrap(fmt.Errorf("fetch.max_attempts必须在1-10之间,当前值: %d", c.Fetch.MaxAttempts))
	}
	if c.Browser.MaxTabs < 1 {
		return wrap(fmt.Errorf("browser.max_tabs必须至少为1"))
	}
	if c.Browser.MaxRestarts < 0 {
		return wrap(fmt.Errorf("browser.max_restarts不能为负数"))
	}
	if err := c.Database.Validate(); err != nil {
		return wrap(err)
	}
	if strings.TrimSpace(c.Sources.File) == "" {
		return wrap(fmt.Errorf("sources.file不能为空"))
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return wrap(fmt.Errorf("schedule.cron无效: %w", err))
		}
	}
	if strategy := models.FetchStrategy(c.TestPage.Strategy); strategy != "" && !strategy.Valid() {
		return wrap(fmt.Errorf("test_page.strategy无效: %s", strategy))
	}
	return nil
}

// MergeCLIFlags 合并命令行参数到配置,命令行优先
// 非正数表示未指定
func (c *Config) MergeCLIFlags(creditCap, maxConcurrent int, noProgress bool) {
	if creditCap > 0 {
		c.Harvest.DailyCreditCap = creditCap
	}
	if maxConcurrent > 0 {
		c.Harvest.MaxConcurrent = maxConcurrent
	}
	if noProgress {
		c.Output.Progress = false
	}
}
