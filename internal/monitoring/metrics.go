// Package monitoring 提供 Prometheus 指标注册与采集。
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 服务运行指标集合
type Metrics struct {
	TokensValidated    *prometheus.CounterVec
	TokenUses          prometheus.Counter
	QuotaDenials       prometheus.Counter
	MailboxesAllocated prometheus.Counter
	SyncResults        *prometheus.CounterVec
	SyncDuration       prometheus.Histogram
	PortalRequestTime  prometheus.Histogram
}

// New 注册并返回指标集合
func New() *Metrics {
	return &Metrics{
		TokensValidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tempbox_tokens_validated_total",
			Help: "Total number of API token validations by outcome",
		}, []string{"outcome"}),
		TokenUses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempbox_token_uses_total",
			Help: "Total number of recorded authorized token uses",
		}),
		QuotaDenials: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempbox_quota_denials_total",
			Help: "Total number of mailbox creations denied by quota",
		}),
		MailboxesAllocated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempbox_mailboxes_allocated_total",
			Help: "Total number of mailboxes created through quota allocation",
		}),
		SyncResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tempbox_credit_sync_results_total",
			Help: "Per-mailbox credit sync outcomes by status",
		}, []string{"status"}),
		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tempbox_credit_sync_duration_seconds",
			Help:    "Duration of full credit sync runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		PortalRequestTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tempbox_billing_portal_request_seconds",
			Help:    "Latency of billing portal HTTP requests",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordSyncResult 记录单个邮箱的同步终态，nil 安全
func (m *Metrics) RecordSyncResult(status string) {
	if m == nil {
		return
	}
	m.SyncResults.WithLabelValues(status).Inc()
}

// RecordSyncDuration 记录一轮同步耗时，nil 安全
func (m *Metrics) RecordSyncDuration(seconds float64) {
	if m == nil {
		return
	}
	m.SyncDuration.Observe(seconds)
}

// RecordPortalRequest 记录一次门户请求耗时，nil 安全
func (m *Metrics) RecordPortalRequest(seconds float64) {
	if m == nil {
		return
	}
	m.PortalRequestTime.Observe(seconds)
}

// RecordTokenValidation 记录一次令牌验证结果，nil 安全
func (m *Metrics) RecordTokenValidation(outcome string) {
	if m == nil {
		return
	}
	m.TokensValidated.WithLabelValues(outcome).Inc()
}

// RecordTokenUse 记录一次授权调用，nil 安全
func (m *Metrics) RecordTokenUse() {
	if m == nil {
		return
	}
	m.TokenUses.Inc()
}

// RecordQuotaDenial 记录一次配额拒绝，nil 安全
func (m *Metrics) RecordQuotaDenial() {
	if m == nil {
		return
	}
	m.QuotaDenials.Inc()
}

// RecordMailboxAllocated 记录一次邮箱分配，nil 安全
func (m *Metrics) RecordMailboxAllocated() {
	if m == nil {
		return
	}
	m.MailboxesAllocated.Inc()
}
