package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/crawlers"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/store"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
)

const mb = 1024 * 1024

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "检查运行环境: 配置、站点目录、数据库和浏览器",
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		report := func(ok bool, name, detail string) {
			mark := "✅"
			if !ok {
				mark = "❌"
				failed++
			}
			fmt.Printf("%s %s: %s\n", mark, name, detail)
		}

		configDetail := "使用默认配置"
		if appConfig.ConfigFile != "" {
			configDetail = appConfig.ConfigFile
		}
		report(true, "配置文件", configDetail)

		if sources, err := loadSources(appConfig, nil); err != nil {
			report(false, "站点目录", err.Error())
		} else {
			report(true, "站点目录", fmt.Sprintf("%s (%d个站点)", appConfig.Sources.File, len(sources)))
		}

		if hm, fetchers, err := newFetchers(appConfig); err != nil {
			report(false, "HTTP头部", err.Error())
		} else {
			fetchers.Close()
			report(true, "HTTP头部", hm.SafeHeaders())
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if st, err := store.Open(ctx, appConfig.Database); err != nil {
			report(false, "数据库", err.Error())
		} else {
			n, err := st.CountArticles(ctx)
			driver := st.Driver()
			st.Close()
			if err != nil {
				report(false, "数据库", err.Error())
			} else {
				report(true, "数据库", fmt.Sprintf("%s, 已入库文章 %d 篇", driver, n))
			}
		}

		report(checkBrowser(appConfig.Browser.BinPath))

		monitor := crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{
			MinFreeMemory: uint64(appConfig.Browser.MinFreeMemoryMB) * mb,
			MaxTabsLimit:  appConfig.Browser.MaxTabs,
		}, nil)
		status := monitor.GetMemoryStatus()
		report(status.MemoryPressure != "critical", "内存",
			fmt.Sprintf("可用 %dMB / 总计 %dMB (%s), 可用标签页 %d",
				status.AvailableMemory/mb, status.TotalMemory/mb, status.MemoryPressure, monitor.CalculateMaxTabs()))

		if failed > 0 {
			return fmt.Errorf("环境检查发现 %d 个问题", failed)
		}
		fmt.Println("✨ 环境检查通过")
		return nil
	},
}

// checkBrowser 浏览器只在使用browser/auto策略时需要,缺失时不算失败
func checkBrowser(binPath string) (bool, string, string) {
	if binPath != "" {
		if _, err := os.Stat(binPath); err != nil {
			return false, "浏览器", fmt.Sprintf("browser.bin_path 不可用: %v", err)
		}
		return true, "浏览器", binPath
	}
	if path, ok := launcher.LookPath(); ok {
		return true, "浏览器", path
	}
	return true, "浏览器", "未找到本地Chromium,首次使用browser策略时将自动下载"
}
