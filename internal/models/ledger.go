package models

import (
	"errors"
	"fmt"
)

// ErrBudgetExceeded 预算不足以执行下一次操作
var ErrBudgetExceeded = errors.New("预算已耗尽")

// BudgetLedger 单次运行的额度账本
// 每次运行开始时重置,CreditsUsed单调递增且永不超过CreditsCap
type BudgetLedger struct {
	CreditsUsed       int `json:"credits_used"`
	CreditsCap        int `json:"credits_cap"`
	RequestsAttempted int `json:"requests_attempted"`
}

// NewBudgetLedger 创建账本
func NewBudgetLedger(creditsCap int) *BudgetLedger {
	if creditsCap < 0 {
		creditsCap = 0
	}
	return &BudgetLedger{CreditsCap: creditsCap}
}

// CanAfford 判断 creditsUsed + cost <= creditsCap
func (l *BudgetLedger) CanAfford(cost int) bool {
	return cost >= 0 && l.CreditsUsed+cost <= l.CreditsCap
}

// Charge 扣除额度并记录一次请求
// 超出上限时不修改账本,返回ErrBudgetExceeded
func (l *BudgetLedger) Charge(cost int) error {
	if cost < 0 {
		return fmt.Errorf("额度消耗不能为负数: %d", cost)
	}
	if !l.CanAfford(cost) {
		return fmt.Errorf("%w: 已用 %d + 预估 %d > 上限 %d", ErrBudgetExceeded, l.CreditsUsed, cost, l.CreditsCap)
	}
	l.CreditsUsed += cost
	l.RequestsAttempted++
	return nil
}

// Remaining 剩余额度
func (l *BudgetLedger) Remaining() int {
	return l.CreditsCap - l.CreditsUsed
}
