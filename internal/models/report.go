package models

import (
	"time"
)

// RunReport 单次运行报告
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Sources    []string      `json:"sources"`
	Config     HarvestConfig `json:"config"`
	Stats      RunStats      `json:"stats"`
	Ledger     BudgetLedger  `json:"ledger"`
	Outcomes   []Outcome     `json:"outcomes"`
}

// NewRunReport 创建运行报告
func NewRunReport(config HarvestConfig) *RunReport {
	return &RunReport{
		RunID:     generateID(),
		StartedAt: time.Now(),
		Config:    config,
		Outcomes:  make([]Outcome, 0),
	}
}

// Failures 返回失败的处理结果
func (r *RunReport) Failures() []Outcome {
	return r.filter(OutcomeFailed)
}

// Skips 返回跳过的处理结果
func (r *RunReport) Skips() []Outcome {
	return r.filter(OutcomeSkipped)
}

func (r *RunReport) filter(status OutcomeStatus) []Outcome {
	result := make([]Outcome, 0)
	for _, o := range r.Outcomes {
		if o.Status == status {
			result = append(result, o)
		}
	}
	return result
}
