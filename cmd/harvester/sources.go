package main

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/config"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "列出站点目录",
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := loadSources(appConfig, nil)
		if err != nil {
			return err
		}

		fmt.Printf("站点目录: %s (%d个站点)\n", appConfig.Sources.File, len(sources))
		for _, src := range sources {
			fmt.Println("--------------------------------------------------")
			fmt.Printf("📚 %s - %s\n", src.Name, src.Organization)
			fmt.Printf("   地址: %s\n", src.BaseURL)
			fmt.Printf("   地区: %s  语言: %s  等级: %s\n", src.Region, src.Language, src.Grade)
			fmt.Printf("   策略: %s  单次消耗: %d\n", src.Strategy, appConfig.Harvest.CostFor(src))
			fmt.Printf("   分类页: %s\n", strings.Join(src.CategoryPaths, ", "))
		}
		return nil
	},
}

var sourcesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "生成站点目录模板",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteSourcesTemplate(appConfig.Sources.File); err != nil {
			return err
		}
		utils.Infof("📝 已生成站点目录模板: %s", appConfig.Sources.File)
		return nil
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesInitCmd)
}
