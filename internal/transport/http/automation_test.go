package httptransport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempbox/backend/internal/billing"
	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/storage/memory"
)

const (
	testSecret      = "automation-test-secret"
	testSchedulerUA = "tempbox-scheduler"
)

func newAutomationRouter(t *testing.T, store *memory.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/customer_from_link") {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"customer": billing.Customer{
					ID:           "cust-1",
					PricingUnits: []billing.PricingUnit{{ID: "pu-1", Name: "usermessages"}},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"credit_balance": 42.0})
	}))
	t.Cleanup(portal.Close)

	client := billing.NewClient(portal.URL, "test-agent", 5*time.Second)
	syncSvc := service.NewCreditSyncService(store, client, time.Millisecond, nil, nil, zap.NewNop())

	handler := NewAutomationHandler(config.AutomationConfig{
		Secret:      testSecret,
		SchedulerUA: testSchedulerUA,
	}, syncSvc, store, zap.NewNop())

	router := gin.New()
	router.POST("/v1/automation", handler.Handle)
	return router
}

func postForm(router *gin.Engine, form url.Values, auth, userAgent string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/automation", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeAutomation(t *testing.T, w *httptest.ResponseRecorder) automationResponse {
	t.Helper()
	var resp automationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAutomationHandler_Auth(t *testing.T) {
	router := newAutomationRouter(t, memory.NewStore())
	form := url.Values{"action": {"get-all-mailboxes"}}

	t.Run("无凭证被拒绝", func(t *testing.T) {
		w := postForm(router, form, "", "curl/8.0")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		resp := decodeAutomation(t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, "unauthorized", resp.Error)
	})

	t.Run("错误口令被拒绝", func(t *testing.T) {
		w := postForm(router, form, "Bearer wrong-secret", "curl/8.0")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("正确口令放行", func(t *testing.T) {
		w := postForm(router, form, "Bearer "+testSecret, "curl/8.0")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("可信调度器UA免口令", func(t *testing.T) {
		w := postForm(router, form, "", testSchedulerUA)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAutomationHandler_Actions(t *testing.T) {
	link := "https://portal.example.com/view?token=tok"
	store := memory.NewStore()
	require.NoError(t, store.SaveMailbox(&domain.Mailbox{
		ID:            "m1",
		Address:       "a@temp.box",
		Status:        domain.MailboxStatusRegistered,
		ViewUsageLink: &link,
	}))
	require.NoError(t, store.SaveMailbox(&domain.Mailbox{
		ID:      "m2",
		Address: "b@temp.box",
		Status:  domain.MailboxStatusRegistered,
	}))
	router := newAutomationRouter(t, store)

	t.Run("未知action返回400", func(t *testing.T) {
		w := postForm(router, url.Values{"action": {"reboot"}}, "Bearer "+testSecret, "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeAutomation(t, w)
		assert.Contains(t, resp.Error, "unknown action")
	})

	t.Run("get-all-mailboxes返回全部邮箱", func(t *testing.T) {
		w := postForm(router, url.Values{"action": {"get-all-mailboxes"}}, "Bearer "+testSecret, "")

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeAutomation(t, w)
		assert.True(t, resp.Success)

		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(2), data["count"])
	})

	t.Run("update-credit-balance缺少email返回400", func(t *testing.T) {
		w := postForm(router, url.Values{"action": {"update-credit-balance"}}, "Bearer "+testSecret, "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeAutomation(t, w)
		assert.Contains(t, resp.Error, "email is required")
	})

	t.Run("update-credit-balance未知邮箱返回400", func(t *testing.T) {
		form := url.Values{"action": {"update-credit-balance"}, "email": {"missing@temp.box"}}
		w := postForm(router, form, "Bearer "+testSecret, "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update-credit-balance同步单个邮箱", func(t *testing.T) {
		form := url.Values{"action": {"update-credit-balance"}, "email": {"a@temp.box"}}
		w := postForm(router, form, "Bearer "+testSecret, "")

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeAutomation(t, w)
		assert.True(t, resp.Success)

		mb, err := store.GetMailboxByAddress("a@temp.box")
		require.NoError(t, err)
		require.NotNil(t, mb.CreditBalance)
		assert.Equal(t, 42, *mb.CreditBalance)
	})

	t.Run("update-all返回汇总", func(t *testing.T) {
		w := postForm(router, url.Values{"action": {"update-all"}}, "Bearer "+testSecret, "")

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeAutomation(t, w)
		assert.True(t, resp.Success)

		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(2), data["total"])
		assert.Equal(t, float64(1), data["success"])
		assert.Equal(t, float64(1), data["skipped"]) // b@temp.box 没有账单链接
	})
}
