package httptransport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
	"tempbox/backend/internal/verification"
)

const adminSecret = "router-test-secret"

func newTestRouter(t *testing.T, store *memory.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			AllowedDomains: []string{"temp.box"},
			DefaultTTL:     time.Hour,
		},
		Automation: config.AutomationConfig{
			Secret:      adminSecret,
			SchedulerUA: "tempbox-scheduler",
		},
	}

	codes := verification.NewGenerator("test-secret", verification.ModeHMAC)
	quotaSvc := service.NewQuotaService(store, cfg, codes, zap.NewNop())
	tokenSvc := service.NewTokenService(store, cfg)
	client := billing.NewClient("http://127.0.0.1:1", "test-agent", time.Second)
	syncSvc := service.NewCreditSyncService(store, client, time.Millisecond, nil, nil, zap.NewNop())

	return NewRouter(RouterDependencies{
		Config:       cfg,
		QuotaService: quotaSvc,
		TokenService: tokenSvc,
		SyncService:  syncSvc,
		Store:        store,
		Logger:       zap.NewNop(),
	})
}

func doJSON(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// issueToken 通过管理端点签发一个可用的API令牌
func issueToken(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/v1/tokens", `{"label":"test"}`,
		map[string]string{"Authorization": "Bearer " + adminSecret})
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	token, ok := data["token"].(string)
	require.True(t, ok)
	return token
}

func TestRouter_TokenManagement(t *testing.T) {
	store := memory.NewStore()
	router := newTestRouter(t, store)

	t.Run("管理端点需要口令", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/v1/tokens", `{"label":"x"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("签发并验证令牌", func(t *testing.T) {
		token := issueToken(t, router)

		w := doJSON(router, http.MethodPost, "/v1/tokens/validate",
			`{"token":"`+token+`"}`,
			map[string]string{"Authorization": "Bearer " + adminSecret})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("吊销后验证返回401", func(t *testing.T) {
		token := issueToken(t, router)

		w := doJSON(router, http.MethodDelete, "/v1/tokens/"+token, "",
			map[string]string{"Authorization": "Bearer " + adminSecret})
		require.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(router, http.MethodPost, "/v1/tokens/validate",
			`{"token":"`+token+`"}`,
			map[string]string{"Authorization": "Bearer " + adminSecret})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("列表令牌脱敏", func(t *testing.T) {
		issueToken(t, router)

		w := doJSON(router, http.MethodGet, "/v1/tokens", "",
			map[string]string{"Authorization": "Bearer " + adminSecret})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "****")
	})
}

func TestRouter_MailboxEndpoints(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.CreateUser(&domain.User{
		ID:         "u1",
		Email:      "u1@example.com",
		EmailQuota: 3,
		IsActive:   true,
	}))
	router := newTestRouter(t, store)
	token := issueToken(t, router)
	authed := map[string]string{"X-API-Token": token}

	t.Run("缺少API令牌被拒绝", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/v1/mailboxes", `{"userId":"u1"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("创建单个邮箱", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/v1/mailboxes",
			`{"userId":"u1","prefix":"reports"}`, authed)

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "reports@temp.box")
	})

	t.Run("批量分配超过上限返回403", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/v1/mailboxes/allocate",
			`{"userId":"u1","quota":10}`, authed)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("查询配额状态", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/v1/users/u1/quota", "", authed)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(3), data["limit"])
	})

	t.Run("获取验证码", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/v1/mailboxes/reports@temp.box/verification-code", "", authed)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		code, ok := data["code"].(string)
		require.True(t, ok)
		assert.Len(t, code, 6)
	})

	t.Run("游客邮箱无需认证", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/v1/anonymous-mailboxes", `{}`, nil)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("未知用户返回404", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/v1/mailboxes", `{"userId":"nobody"}`, authed)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
