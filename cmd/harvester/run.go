package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "执行一次完整采集",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateRunFlags(creditCap, maxConcurrent); err != nil {
			return err
		}
		appConfig.MergeCLIFlags(creditCap, maxConcurrent, noProgress)
		if err := appConfig.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sources, err := loadSources(appConfig, sourceNames)
		if err != nil {
			return err
		}

		p, err := newPipeline(ctx, appConfig)
		if err != nil {
			return err
		}
		defer p.Close()

		_, err = runOnce(ctx, p, sources)
		return err
	},
}

// runOnce 执行一次采集,打印统计并写入报告
func runOnce(ctx context.Context, p *pipeline, sources []*models.Source) (*models.RunReport, error) {
	report, err := p.harvester().Run(ctx, sources)
	if err != nil {
		return nil, fmt.Errorf("采集失败: %w", err)
	}

	printSummary(report)

	if _, err := utils.WriteRunReport(p.cfg.Output.ReportDir, report); err != nil {
		utils.Warnf("写入运行报告失败: %v", err)
	}

	if ctx.Err() != nil {
		utils.Warnf("\n收到中断信号,已完成进行中的任务后退出")
	}
	return report, nil
}

// printSummary 打印运行统计,预算耗尽或中断时也会打印
func printSummary(report *models.RunReport) {
	stats := report.Stats

	fmt.Println("\n==================================================")
	fmt.Println("📊 采集统计")
	fmt.Println("==================================================")
	fmt.Printf("🔎 发现候选: %d\n", stats.Discovered)
	fmt.Printf("🚀 尝试获取: %d\n", stats.Attempted)
	fmt.Printf("✅ 成功: %d\n", stats.Succeeded)
	fmt.Printf("💾 新入库文章: %d\n", stats.Saved)
	fmt.Printf("⏭️  去重跳过: %d", stats.Skipped)
	if len(stats.SkipsByTier) > 0 {
		tiers := make([]int, 0, len(stats.SkipsByTier))
		for tier := range stats.SkipsByTier {
			tiers = append(tiers, tier)
		}
		sort.Ints(tiers)
		fmt.Print(" (")
		for i, tier := range tiers {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Printf("Tier %d: %d", tier, stats.SkipsByTier[tier])
		}
		fmt.Print(")")
	}
	fmt.Println()
	fmt.Printf("❌ 失败: %d\n", stats.Failed)
	fmt.Printf("💳 额度: %d/%d (预过滤节省 %d)\n", stats.CreditsUsed, stats.CreditsCap, stats.CreditsSaved)
	fmt.Printf("🏁 状态: %s", stats.State)
	if stats.HaltReason != models.HaltNone {
		fmt.Printf(" (%s)", stats.HaltReason)
	}
	fmt.Println()
	fmt.Printf("⏱️  总耗时: %.2f秒\n", stats.Duration)
	fmt.Println("==================================================")

	if failures := report.Failures(); len(failures) > 0 {
		fmt.Println("失败详情:")
		for _, f := range failures {
			fmt.Printf("  - %s\n    %s\n", f.URL, utils.Truncate(f.Reason, 200))
		}
	}
}

func init() {
	runCmd.Flags().StringSliceVarP(&sourceNames, "source", "s", nil, "只采集指定站点 (可多次指定,默认全部)")
	runCmd.Flags().IntVar(&creditCap, "cap", 0, "本次运行额度上限 (覆盖 harvest.daily_credit_cap)")
	runCmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "并发数 (覆盖 harvest.max_concurrent)")
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度条")
}
