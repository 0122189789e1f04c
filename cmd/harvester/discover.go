package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/dedup"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "只发现候选URL并预过滤 (不获取文章,不消耗额度)",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		deduper := dedup.New(p.store)

		total, fresh, saved := 0, 0, 0
		for _, src := range sources {
			if ctx.Err() != nil {
				break
			}
			candidates := p.discoverer.DiscoverSource(ctx, src)
			total += len(candidates)

			fmt.Println("\n==================================================")
			fmt.Printf("🔎 %s (%s) 候选URL %d 个\n", src.Name, src.Host(), len(candidates))
			fmt.Println("==================================================")
			for _, c := range candidates {
				verdict, err := deduper.CheckCandidate(ctx, c.URL)
				switch {
				case err != nil:
					fmt.Printf("  ⚠️  %s (预过滤失败: %v)\n", c.URL, err)
					fresh++
				case verdict.Duplicate():
					fmt.Printf("  ⏭️  %s [%s] %s\n", c.URL, verdict.Tier, verdict.Reason)
					saved += appConfig.Harvest.CostFor(c.Source)
				default:
					fmt.Printf("  🆕 %s\n", c.URL)
					fresh++
				}
			}
			if d := p.discoverer.CrawlDelay(src); d > 0 {
				fmt.Printf("  🐢 robots.txt抓取间隔: %v\n", d)
			}
		}
		fmt.Println("==================================================")
		fmt.Printf("待采集: %d, 已入库: %d, 预计节省额度: %d\n", fresh, total-fresh, saved)
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringSliceVarP(&sourceNames, "source", "s", nil, "只发现指定站点 (可多次指定,默认全部)")
}
