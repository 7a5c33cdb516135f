package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tempbox/backend/internal/billing"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/storage"
	rediscache "tempbox/backend/internal/storage/redis"
)

// pricingUnitName 门户侧用量计量类别，余额按此类别读取
const pricingUnitName = "usermessages"

// summaryTTL 汇总与单箱额度在 Redis 中的保留时长
const summaryTTL = 24 * time.Hour

// CreditSyncService 从外部账单门户批量同步各邮箱的剩余额度。
//
// 一轮同步严格串行：逐个邮箱请求门户，条目之间按固定间隔限速，
// 避免触发门户侧的频率限制。单个邮箱的失败只影响它自己，
// 不中断本轮剩余邮箱的处理；任务内不做重试，失败留到下一轮。
type CreditSyncService struct {
	store   storage.Store
	client  *billing.Client
	limiter *rate.Limiter
	cache   *rediscache.Cache // 可为 nil
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewCreditSyncService 创建额度同步服务。
// requestDelay 为相邻两次门户请求之间的最小间隔。
func NewCreditSyncService(
	store storage.Store,
	client *billing.Client,
	requestDelay time.Duration,
	cache *rediscache.Cache,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *CreditSyncService {
	if log == nil {
		log = zap.NewNop()
	}
	if requestDelay <= 0 {
		requestDelay = time.Second
	}
	return &CreditSyncService{
		store:   store,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(requestDelay), 1),
		cache:   cache,
		metrics: metrics,
		log:     log,
	}
}

// Run 执行一轮完整同步并返回汇总结果。
//
// ctx 取消时停止处理后续邮箱并返回 ctx.Err()，已完成的条目保持落库状态。
func (s *CreditSyncService) Run(ctx context.Context) (*domain.CreditSyncSummary, error) {
	mailboxes, err := s.store.ListSyncEligibleMailboxes()
	if err != nil {
		return nil, fmt.Errorf("failed to list sync eligible mailboxes: %w", err)
	}

	summary := &domain.CreditSyncSummary{
		Total:     len(mailboxes),
		Results:   make([]domain.CreditSyncRecord, 0, len(mailboxes)),
		StartedAt: time.Now().UTC(),
	}

	s.log.Info("credit sync run started", zap.Int("eligible", len(mailboxes)))

	for i := range mailboxes {
		// 固定间隔限速，首个条目不等待
		if err := s.limiter.Wait(ctx); err != nil {
			summary.FinishedAt = time.Now().UTC()
			return summary, err
		}

		record := s.syncMailbox(ctx, &mailboxes[i])
		summary.Results = append(summary.Results, record)
		s.tally(summary, record)
	}

	summary.FinishedAt = time.Now().UTC()
	s.metrics.RecordSyncDuration(summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	s.log.Info("credit sync run finished",
		zap.Int("total", summary.Total),
		zap.Int("success", summary.Success),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	if s.cache != nil {
		if err := s.cache.CacheSyncSummary(ctx, summary, summaryTTL); err != nil {
			s.log.Warn("failed to cache sync summary", zap.Error(err))
		}
	}

	return summary, nil
}

// SyncOne 同步单个邮箱的额度，供运维端点按需触发。
func (s *CreditSyncService) SyncOne(ctx context.Context, address string) (*domain.CreditSyncRecord, error) {
	mailbox, err := s.store.GetMailboxByAddress(address)
	if err != nil {
		return nil, err
	}

	record := s.syncMailbox(ctx, mailbox)
	return &record, nil
}

// tally 将单条结果计入汇总并上报指标
func (s *CreditSyncService) tally(summary *domain.CreditSyncSummary, record domain.CreditSyncRecord) {
	switch record.Status {
	case domain.SyncStatusUpdated:
		summary.Success++
	case domain.SyncStatusSkipped:
		summary.Skipped++
	case domain.SyncStatusError:
		summary.Errors++
	}
	s.metrics.RecordSyncResult(string(record.Status))
}

// syncMailbox 对单个邮箱执行状态机：
// 链接 → 令牌 → 客户 → 计量类别 → 余额 → 落库。
// 任何一步进入终态即返回，后续步骤不再执行。
func (s *CreditSyncService) syncMailbox(ctx context.Context, mailbox *domain.Mailbox) (record domain.CreditSyncRecord) {
	record = domain.CreditSyncRecord{
		Email:     mailbox.Address,
		Timestamp: time.Now().UTC(),
	}

	// 单个邮箱的意外 panic 不能拖垮整轮同步
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic while syncing mailbox",
				zap.String("address", mailbox.Address),
				zap.Any("panic", r),
			)
			record.Status = domain.SyncStatusError
			record.Reason = fmt.Sprintf("panic: %v", r)
		}
	}()

	if !mailbox.HasUsageLink() {
		record.Status = domain.SyncStatusSkipped
		record.Reason = domain.SkipReasonNoViewUsageLink
		return record
	}
	link := *mailbox.ViewUsageLink

	token, err := billing.TokenFromLink(link)
	if err != nil {
		record.Status = domain.SyncStatusSkipped
		record.Reason = domain.SkipReasonInvalidToken
		return record
	}

	portalStart := time.Now()
	customer, err := s.client.CustomerFromLink(ctx, token, link)
	s.metrics.RecordPortalRequest(time.Since(portalStart).Seconds())
	if err != nil {
		if err == billing.ErrNoCustomerData {
			record.Status = domain.SyncStatusSkipped
			record.Reason = domain.SkipReasonNoCustomerData
			return record
		}
		s.log.Warn("portal customer lookup failed",
			zap.String("address", mailbox.Address),
			zap.Error(err),
		)
		record.Status = domain.SyncStatusError
		record.Reason = err.Error()
		return record
	}

	unit := customer.FindPricingUnit(pricingUnitName)
	if unit == nil {
		record.Status = domain.SyncStatusSkipped
		record.Reason = domain.SkipReasonNoPricingUnit
		return record
	}

	portalStart = time.Now()
	raw, err := s.client.LedgerSummary(ctx, customer.ID, unit.ID, token, link)
	s.metrics.RecordPortalRequest(time.Since(portalStart).Seconds())
	if err != nil {
		if err == billing.ErrNoCreditBalance {
			record.Status = domain.SyncStatusSkipped
			record.Reason = domain.SkipReasonNoCreditBalance
			return record
		}
		s.log.Warn("portal ledger lookup failed",
			zap.String("address", mailbox.Address),
			zap.Error(err),
		)
		record.Status = domain.SyncStatusError
		record.Reason = err.Error()
		return record
	}

	// 门户返回浮点余额，落库取最近整数
	balance := int(math.Round(raw))
	now := time.Now().UTC()

	if err := s.store.UpdateMailboxCredit(mailbox.Address, balance, now); err != nil {
		s.log.Error("failed to persist credit balance",
			zap.String("address", mailbox.Address),
			zap.Int("balance", balance),
			zap.Error(err),
		)
		record.Status = domain.SyncStatusError
		record.Reason = err.Error()
		return record
	}

	if s.cache != nil {
		if err := s.cache.CacheCreditBalance(ctx, mailbox.Address, balance, summaryTTL); err != nil {
			s.log.Warn("failed to cache credit balance",
				zap.String("address", mailbox.Address),
				zap.Error(err),
			)
		}
	}

	record.Status = domain.SyncStatusUpdated
	record.CreditBalance = &balance
	return record
}
