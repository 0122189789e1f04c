package main

import (
	"errors"
	"fmt"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
)

var errMissingCron = errors.New("未配置cron表达式,请使用 --cron 或 schedule.cron")

// ValidateRunFlags 验证run和schedule命令的参数,0表示使用配置文件中的值
func ValidateRunFlags(creditCap, maxConcurrent int) error {
	if creditCap < 0 {
		return fmt.Errorf("额度上限不能为负数,当前值: %d", creditCap)
	}
	if maxConcurrent < 0 || maxConcurrent > 8 {
		return fmt.Errorf("并发数必须在1-8之间,当前值: %d", maxConcurrent)
	}
	return nil
}

// ValidateTestFlags 验证test命令的参数
func ValidateTestFlags(targetURL, urlFile, strategy string) error {
	if targetURL != "" && urlFile != "" {
		return fmt.Errorf("--url 和 --url-file 不能同时使用")
	}
	if targetURL != "" {
		if err := models.ValidateURL(targetURL); err != nil {
			return fmt.Errorf("无效的测试URL: %w", err)
		}
	}
	if strategy != "" && !models.FetchStrategy(strategy).Valid() {
		return fmt.Errorf("无效的获取策略: %s (有效值: http, browser, auto)", strategy)
	}
	return nil
}
