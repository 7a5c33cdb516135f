package domain

import "time"

// SyncStatus 单个邮箱一次同步的终态
type SyncStatus string

const (
	SyncStatusUpdated SyncStatus = "updated"
	SyncStatusSkipped SyncStatus = "skipped"
	SyncStatusError   SyncStatus = "error"
)

// 跳过原因常量。skipped 是稳态预期结果，不触发告警；
// 只有 error 终态需要运维介入。
const (
	SkipReasonNoViewUsageLink = "no_view_usage_link"
	SkipReasonInvalidToken    = "invalid_token"
	SkipReasonNoCustomerData  = "no_customer_data"
	SkipReasonNoPricingUnit   = "no_pricing_unit"
	SkipReasonNoCreditBalance = "no_credit_balance"
)

// CreditSyncRecord 额度同步任务对单个邮箱的处理结果（瞬态，不落库）
type CreditSyncRecord struct {
	Email         string     `json:"email"`
	Status        SyncStatus `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	CreditBalance *int       `json:"creditBalance,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

// CreditSyncSummary 一次同步运行的汇总结果
type CreditSyncSummary struct {
	Total      int                `json:"total"`
	Success    int                `json:"success"`
	Skipped    int                `json:"skipped"`
	Errors     int                `json:"errors"`
	Results    []CreditSyncRecord `json:"results"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
}
