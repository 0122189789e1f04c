package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/core"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	envFile    string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers []string

	// 运行参数
	sourceNames   []string
	creditCap     int
	maxConcurrent int
	noProgress    bool
)

// appConfig 在PersistentPreRunE中加载,所有子命令共用
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "权威育儿营养内容采集工具",
	Long: `AuthorityHarvest - 从权威育儿和营养网站采集文章的工具

流水线:
  • 从分类页发现候选文章URL
  • 三层去重,已入库的文章不消耗额度
  • HTTP获取,遇到反爬或JS渲染页面时回退无头浏览器
  • 正文提取和质量校验
  • 幂等入库 (sqlite 或 postgres)

示例:
  # 采集全部站点
  harvester run

  # 只采集指定站点,限制额度
  harvester run --source nhs --source healthychildren --cap 20

  # 测试单个页面的提取效果 (不入库,不消耗额度)
  harvester test --url https://www.nhs.uk/baby/weaning-and-feeding/

  # 自定义请求头
  harvester run -H "User-Agent: MyBot/1.0"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env 只用于补充环境变量,不存在时忽略
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("加载环境变量文件失败: %w", err)
		}

		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logConfig := cfg.Logging
		if logLevel != "" {
			logConfig.Level = logLevel
		} else if verbose {
			logConfig.Level = "debug"
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if cfg.ConfigFile != "" {
			utils.Debugf("使用配置文件: %s", cfg.ConfigFile)
		} else {
			utils.Debugf("未找到配置文件,使用默认配置")
		}

		appConfig = cfg
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	// 不需要加载配置
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("AuthorityHarvest %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "环境变量文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")

	rootCmd.AddCommand(runCmd, testCmd, discoverCmd, sourcesCmd, checkCmd, scheduleCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
