package httptransport

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/storage"
)

// automationResponse 自动化端点响应。
// 与统一 Response 结构不同，保持外部调度器既有的对接格式。
type automationResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AutomationHandler 外部调度器调用的运维自动化端点。
//
// 鉴权两条路：携带 Bearer 口令，或 User-Agent 命中可信调度器标识。
// 两者都不满足时拒绝，绝不静默执行。
type AutomationHandler struct {
	cfg   config.AutomationConfig
	sync  *service.CreditSyncService
	store storage.Store
	log   *zap.Logger
}

// NewAutomationHandler 创建自动化处理器
func NewAutomationHandler(cfg config.AutomationConfig, sync *service.CreditSyncService, store storage.Store, log *zap.Logger) *AutomationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AutomationHandler{
		cfg:   cfg,
		sync:  sync,
		store: store,
		log:   log,
	}
}

// Handle 按 action 表单字段分发自动化操作。
//
// 支持的 action：
//   - get-all-mailboxes      列出全部邮箱
//   - update-credit-balance  同步单个邮箱的额度（需 email 字段）
//   - update-all             同步全部邮箱的额度
func (h *AutomationHandler) Handle(c *gin.Context) {
	if !h.authorized(c) {
		h.log.Warn("automation request rejected",
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		)
		c.JSON(http.StatusUnauthorized, automationResponse{
			Success: false,
			Error:   "unauthorized",
		})
		return
	}

	action := c.PostForm("action")
	switch action {
	case "get-all-mailboxes":
		h.getAllMailboxes(c)
	case "update-credit-balance":
		h.updateCreditBalance(c)
	case "update-all":
		h.updateAll(c)
	default:
		c.JSON(http.StatusBadRequest, automationResponse{
			Success: false,
			Error:   "unknown action: " + action,
		})
	}
}

// authorized 校验 Bearer 口令或可信调度器 User-Agent
func (h *AutomationHandler) authorized(c *gin.Context) bool {
	if h.cfg.SchedulerUA != "" && c.Request.UserAgent() == h.cfg.SchedulerUA {
		return true
	}

	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return false
	}
	provided := strings.TrimPrefix(auth, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.cfg.Secret)) == 1
}

func (h *AutomationHandler) getAllMailboxes(c *gin.Context) {
	mailboxes, err := h.store.ListMailboxes()
	if err != nil {
		c.JSON(http.StatusInternalServerError, automationResponse{
			Success: false,
			Error:   "failed to list mailboxes",
		})
		return
	}

	c.JSON(http.StatusOK, automationResponse{
		Success: true,
		Data: gin.H{
			"mailboxes": mailboxes,
			"count":     len(mailboxes),
		},
	})
}

func (h *AutomationHandler) updateCreditBalance(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, automationResponse{
			Success: false,
			Error:   "email is required",
		})
		return
	}

	record, err := h.sync.SyncOne(c.Request.Context(), email)
	if err != nil {
		if err == storage.ErrMailboxNotFound {
			c.JSON(http.StatusBadRequest, automationResponse{
				Success: false,
				Error:   "mailbox not found: " + email,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, automationResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, automationResponse{
		Success: true,
		Message: "credit balance sync finished",
		Data:    record,
	})
}

func (h *AutomationHandler) updateAll(c *gin.Context) {
	summary, err := h.sync.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, automationResponse{
			Success: false,
			Error:   err.Error(),
			Data:    summary,
		})
		return
	}

	c.JSON(http.StatusOK, automationResponse{
		Success: true,
		Message: "credit sync run finished",
		Data:    summary,
	})
}
