package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFromLink(t *testing.T) {
	t.Run("从链接中提取令牌", func(t *testing.T) {
		token, err := TokenFromLink("https://portal.example.com/view?token=abc123&lang=en")

		assert.NoError(t, err)
		assert.Equal(t, "abc123", token)
	})

	t.Run("缺少令牌参数失败", func(t *testing.T) {
		_, err := TokenFromLink("https://portal.example.com/view?lang=en")

		assert.Equal(t, ErrInvalidLink, err)
	})

	t.Run("畸形链接失败", func(t *testing.T) {
		_, err := TokenFromLink("://not-a-url")

		assert.Equal(t, ErrInvalidLink, err)
	})
}

func TestClient_CustomerFromLink(t *testing.T) {
	t.Run("成功解析客户信息", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/customer_from_link", r.URL.Path)
			assert.Equal(t, "tok-1", r.URL.Query().Get("token"))
			assert.Equal(t, "tempbox-credit-sync/1.0", r.Header.Get("User-Agent"))
			assert.Equal(t, "https://portal.example.com/view?token=tok-1", r.Header.Get("Referer"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"customer":{"id":"cus-9","pricing_units":[{"id":"pu-1","name":"usermessages"}]}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "tempbox-credit-sync/1.0", 5*time.Second)
		customer, err := client.CustomerFromLink(context.Background(), "tok-1", "https://portal.example.com/view?token=tok-1")

		require.NoError(t, err)
		assert.Equal(t, "cus-9", customer.ID)
		require.NotNil(t, customer.FindPricingUnit("usermessages"))
		assert.Equal(t, "pu-1", customer.FindPricingUnit("usermessages").ID)
		assert.Nil(t, customer.FindPricingUnit("storage"))
	})

	t.Run("非2xx按无客户数据处理", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(server.URL, "ua", 5*time.Second)
		_, err := client.CustomerFromLink(context.Background(), "stale", "")

		assert.Equal(t, ErrNoCustomerData, err)
	})

	t.Run("畸形响应体按无客户数据处理", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "ua", 5*time.Second)
		_, err := client.CustomerFromLink(context.Background(), "tok", "")

		assert.Equal(t, ErrNoCustomerData, err)
	})

	t.Run("网络失败原样返回", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", "ua", 200*time.Millisecond)
		_, err := client.CustomerFromLink(context.Background(), "tok", "")

		assert.Error(t, err)
		assert.NotEqual(t, ErrNoCustomerData, err)
	})
}

func TestClient_LedgerSummary(t *testing.T) {
	t.Run("成功解析余额", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/customers/cus-9/ledger_summary", r.URL.Path)
			assert.Equal(t, "pu-1", r.URL.Query().Get("pricing_unit_id"))
			assert.Equal(t, "tok-1", r.URL.Query().Get("token"))

			w.Write([]byte(`{"credit_balance":12.7}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "ua", 5*time.Second)
		balance, err := client.LedgerSummary(context.Background(), "cus-9", "pu-1", "tok-1", "")

		assert.NoError(t, err)
		assert.Equal(t, 12.7, balance)
	})

	t.Run("余额缺失按无余额处理", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "ua", 5*time.Second)
		_, err := client.LedgerSummary(context.Background(), "cus-9", "pu-1", "tok-1", "")

		assert.Equal(t, ErrNoCreditBalance, err)
	})
}
