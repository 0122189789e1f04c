package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/core"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
	"github.com/spf13/cobra"
)

var (
	testURL      string
	testURLFile  string
	testStrategy string
	testLanguage string
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "测试单个页面的获取、提取和校验 (不入库,不消耗额度)",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := core.TestPageRequest{
			URL:      appConfig.TestPage.URL,
			Strategy: models.FetchStrategy(appConfig.TestPage.Strategy),
			Language: appConfig.TestPage.Language,
		}
		if testURL != "" {
			req.URL = testURL
		}
		if testStrategy != "" {
			req.Strategy = models.FetchStrategy(testStrategy)
		}
		if testLanguage != "" {
			req.Language = testLanguage
		}
		if err := ValidateTestFlags(testURL, testURLFile, string(req.Strategy)); err != nil {
			return err
		}

		urls := []string{req.URL}
		if testURLFile != "" {
			var err error
			if urls, err = utils.ReadURLsFromFile(testURLFile); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, fetchers, err := newFetchers(appConfig)
		if err != nil {
			return err
		}
		defer fetchers.Close()

		opts := harvesterOptions(appConfig)
		failed := 0
		for _, u := range urls {
			if ctx.Err() != nil {
				break
			}
			req.URL = u
			page, err := core.RunTestPage(ctx, appConfig.Harvest, fetchers, req, opts...)
			printTestResult(req, page, err)
			if err != nil {
				failed++
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d/%d 个页面未通过测试", failed, len(urls))
		}
		return nil
	},
}

// printTestResult 打印单页测试结果
func printTestResult(req core.TestPageRequest, page *core.PageResult, err error) {
	fmt.Println("\n==================================================")
	fmt.Printf("🧪 %s\n", req.URL)
	fmt.Println("==================================================")

	if page == nil || page.Fetch == nil {
		fmt.Printf("❌ 获取失败: %v\n", err)
		return
	}

	fmt.Printf("策略: %s (尝试%d次, 耗时 %v)\n", page.Fetch.Strategy, page.Fetch.Attempts, page.Fetch.Duration)
	if page.Fetch.FinalURL != "" && page.Fetch.FinalURL != req.URL {
		fmt.Printf("最终URL: %s\n", page.Fetch.FinalURL)
	}
	fmt.Printf("响应大小: %d 字节\n", len(page.Fetch.Body))

	if page.Document == nil {
		fmt.Printf("❌ 提取失败: %v\n", err)
		return
	}

	doc := page.Document
	fmt.Printf("标题: %s\n", doc.Title)
	fmt.Printf("段落: %d, 字符: %d, 单词: %d\n", len(doc.Paragraphs), len([]rune(doc.RawText)), doc.WordCount)
	for i, para := range doc.Paragraphs {
		if i >= 3 {
			fmt.Printf("  ... 其余 %d 段\n", len(doc.Paragraphs)-3)
			break
		}
		fmt.Printf("  [%d] %s\n", i+1, utils.Truncate(para, 120))
	}

	if page.Verdict.Passed {
		fmt.Println("✅ 校验通过")
		return
	}
	fmt.Println("❌ 校验未通过:")
	for _, reason := range page.Verdict.Reasons {
		fmt.Printf("  - %s\n", reason)
	}
}

func init() {
	testCmd.Flags().StringVarP(&testURL, "url", "u", "", "测试页面URL (默认 test_page.url)")
	testCmd.Flags().StringVarP(&testURLFile, "url-file", "f", "", "包含URL列表的文件路径")
	testCmd.Flags().StringVar(&testStrategy, "strategy", "", "获取策略 (http|browser|auto)")
	testCmd.Flags().StringVar(&testLanguage, "language", "", "页面语言,决定Accept-Language")
}
