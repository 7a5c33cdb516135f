package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/storage"
)

// MailboxHandler 邮箱配额分配处理器
type MailboxHandler struct {
	quota   *service.QuotaService
	store   storage.Store
	metrics *monitoring.Metrics
}

// NewMailboxHandler 创建邮箱处理器
func NewMailboxHandler(quota *service.QuotaService, store storage.Store, metrics *monitoring.Metrics) *MailboxHandler {
	return &MailboxHandler{
		quota:   quota,
		store:   store,
		metrics: metrics,
	}
}

// createMailboxRequest 创建邮箱请求
type createMailboxRequest struct {
	UserID string `json:"userId" binding:"required"` // 归属用户ID
	Prefix string `json:"prefix,omitempty"`          // 自定义前缀（可选）
}

// mailboxResponse 邮箱响应
type mailboxResponse struct {
	ID            string     `json:"id"`
	Address       string     `json:"address"`
	Status        string     `json:"status"`
	IsPermanent   bool       `json:"isPermanent"`
	CreditBalance *int       `json:"creditBalance,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// CreateMailbox 为用户创建单个邮箱，消耗一格配额。
func (h *MailboxHandler) CreateMailbox(c *gin.Context) {
	var req createMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	mailbox, err := h.quota.CreateOne(req.UserID, req.Prefix)
	if err != nil {
		switch err {
		case service.ErrQuotaExceeded:
			h.metrics.RecordQuotaDenial()
			Forbidden(c, GetErrorMessage(err))
		case service.ErrUserInactive:
			Forbidden(c, GetErrorMessage(err))
		case service.ErrPrefixInvalid:
			BadRequest(c, GetErrorMessage(err))
		case storage.ErrUserNotFound:
			NotFound(c, GetErrorMessage(err))
		case storage.ErrAddressExists:
			Conflict(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgMailboxCreateFailed)
		}
		return
	}

	h.metrics.RecordMailboxAllocated()
	Created(c, toMailboxResponse(mailbox))
}

// allocateRequest 批量分配请求
type allocateRequest struct {
	UserID string `json:"userId" binding:"required"`
	Quota  int    `json:"quota"` // 分配数量，0 合法
}

// AllocateMailboxes 为用户批量分配邮箱。
// 整批要么全部成功，要么一个不留。
func (h *MailboxHandler) AllocateMailboxes(c *gin.Context) {
	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if req.Quota < 0 {
		BadRequest(c, MsgInvalidQuota)
		return
	}

	created, err := h.quota.Allocate(req.UserID, req.Quota)
	if err != nil {
		switch err {
		case service.ErrQuotaExceeded:
			h.metrics.RecordQuotaDenial()
			Forbidden(c, GetErrorMessage(err))
		case service.ErrUserInactive:
			Forbidden(c, GetErrorMessage(err))
		case storage.ErrUserNotFound:
			NotFound(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgAllocateFailed)
		}
		return
	}

	items := make([]mailboxResponse, 0, len(created))
	for i := range created {
		items = append(items, toMailboxResponse(&created[i]))
	}

	Created(c, gin.H{
		"items": items,
		"count": len(items),
	})
}

// ListMailboxes 返回指定用户的邮箱列表。
func (h *MailboxHandler) ListMailboxes(c *gin.Context) {
	userID := c.Param("id")

	mailboxes, err := h.store.ListMailboxesByUserID(userID)
	if err != nil {
		InternalError(c, MsgMailboxListFailed)
		return
	}

	items := make([]mailboxResponse, 0, len(mailboxes))
	for i := range mailboxes {
		items = append(items, toMailboxResponse(&mailboxes[i]))
	}

	Success(c, gin.H{
		"items": items,
		"count": len(items),
	})
}

// QuotaStatus 返回用户的配额检查结果。
func (h *MailboxHandler) QuotaStatus(c *gin.Context) {
	userID := c.Param("id")

	result, err := h.quota.CanCreate(userID)
	if err != nil {
		if err == storage.ErrUserNotFound {
			NotFound(c, GetErrorMessage(err))
			return
		}
		InternalError(c, MsgQuotaCheckFailed)
		return
	}

	Success(c, result)
}

// VerificationCode 返回邮箱地址对应的6位验证码。
func (h *MailboxHandler) VerificationCode(c *gin.Context) {
	address := c.Param("address")

	code, err := h.quota.VerificationCode(address)
	if err != nil {
		if err == storage.ErrMailboxNotFound {
			NotFound(c, MsgMailboxNotFound)
			return
		}
		InternalError(c, MsgCodeFailed)
		return
	}

	Success(c, gin.H{
		"address": address,
		"code":    code,
	})
}

// createAnonymousRequest 创建游客邮箱请求
type createAnonymousRequest struct {
	Prefix string `json:"prefix,omitempty"`
}

// CreateAnonymousMailbox 创建不占配额的游客邮箱，带默认TTL。
func (h *MailboxHandler) CreateAnonymousMailbox(c *gin.Context) {
	var req createAnonymousRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}

	mailbox, err := h.quota.CreateAnonymous(req.Prefix)
	if err != nil {
		switch err {
		case service.ErrPrefixInvalid:
			BadRequest(c, GetErrorMessage(err))
		case storage.ErrAddressExists:
			Conflict(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgMailboxCreateFailed)
		}
		return
	}

	Created(c, toMailboxResponse(mailbox))
}

// toMailboxResponse 转换实体为响应体
func toMailboxResponse(mailbox *domain.Mailbox) mailboxResponse {
	return mailboxResponse{
		ID:            mailbox.ID,
		Address:       mailbox.Address,
		Status:        string(mailbox.Status),
		IsPermanent:   mailbox.IsPermanent,
		CreditBalance: mailbox.CreditBalance,
		CreatedAt:     mailbox.CreatedAt,
		ExpiresAt:     mailbox.ExpiresAt,
	}
}
