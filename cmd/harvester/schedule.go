package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var scheduleCron string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "按cron表达式定时执行采集,每次运行使用新的额度账本",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scheduleCron != "" {
			appConfig.Schedule.Cron = scheduleCron
		}
		if err := ValidateRunFlags(creditCap, maxConcurrent); err != nil {
			return err
		}
		appConfig.MergeCLIFlags(creditCap, maxConcurrent, true)
		if err := appConfig.Validate(); err != nil {
			return err
		}
		if appConfig.Schedule.Cron == "" {
			return errMissingCron
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 启动前检查站点目录和数据库,配置错误不应等到第一次触发才暴露
		sources, err := loadSources(appConfig, sourceNames)
		if err != nil {
			return err
		}
		p, err := newPipeline(ctx, appConfig)
		if err != nil {
			return err
		}
		defer p.Close()

		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		if _, err := c.AddFunc(appConfig.Schedule.Cron, func() {
			utils.Infof("⏰ 定时采集开始")
			if _, err := runOnce(ctx, p, sources); err != nil {
				utils.Errorf("定时采集失败: %v", err)
			}
		}); err != nil {
			return err
		}

		c.Start()
		utils.Infof("⏰ 定时采集已启动: %s (Ctrl+C退出)", appConfig.Schedule.Cron)

		<-ctx.Done()
		utils.Info("正在等待进行中的采集完成...")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron表达式 (覆盖 schedule.cron)")
	scheduleCmd.Flags().StringSliceVarP(&sourceNames, "source", "s", nil, "只采集指定站点 (可多次指定,默认全部)")
	scheduleCmd.Flags().IntVar(&creditCap, "cap", 0, "每次运行额度上限 (覆盖 harvest.daily_credit_cap)")
	scheduleCmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "并发数 (覆盖 harvest.max_concurrent)")
}
