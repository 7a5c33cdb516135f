// Package billing 封装外部账单门户的只读 HTTP 接口。
//
// 门户的两个端点都通过查询串中的不透明令牌鉴权；
// 请求附带客户端标识 User-Agent 与指向原始门户视图的 Referer，
// 门户不强制要求，但便于对端溯源。
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNoCustomerData 门户返回非2xx或响应体无法解析。
	// 链接本身可能已失效，属预期的非致命状况，调用方按 skipped 处理。
	ErrNoCustomerData = errors.New("no customer data")
	// ErrNoCreditBalance 账本汇总中缺少可解析的余额字段
	ErrNoCreditBalance = errors.New("no credit balance")
	// ErrInvalidLink 账单链接中解析不出令牌
	ErrInvalidLink = errors.New("invalid view usage link")
)

// PricingUnit 外部账单系统中的计量类别
type PricingUnit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Customer 门户客户视图
type Customer struct {
	ID           string        `json:"id"`
	PricingUnits []PricingUnit `json:"pricing_units"`
}

// FindPricingUnit 按名称查找计量类别，找不到返回 nil
func (c *Customer) FindPricingUnit(name string) *PricingUnit {
	for i := range c.PricingUnits {
		if c.PricingUnits[i].Name == name {
			return &c.PricingUnits[i]
		}
	}
	return nil
}

// Client 账单门户 HTTP 客户端
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient 创建账单门户客户端
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// TokenFromLink 从账单视图链接的查询串中提取不透明令牌
func TokenFromLink(link string) (string, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return "", ErrInvalidLink
	}
	token := parsed.Query().Get("token")
	if token == "" {
		return "", ErrInvalidLink
	}
	return token, nil
}

// customerEnvelope customer_from_link 的响应体
type customerEnvelope struct {
	Customer *Customer `json:"customer"`
}

// ledgerEnvelope ledger_summary 的响应体
type ledgerEnvelope struct {
	CreditBalance *float64 `json:"credit_balance"`
}

// CustomerFromLink 用链接令牌换取客户信息。
//
// 非2xx或响应体畸形返回 ErrNoCustomerData；
// 网络层失败原样返回，由调用方按 error 终态处理。
func (c *Client) CustomerFromLink(ctx context.Context, token, referer string) (*Customer, error) {
	endpoint := fmt.Sprintf("%s/customer_from_link?token=%s", c.baseURL, url.QueryEscape(token))

	body, ok, err := c.get(ctx, endpoint, referer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoCustomerData
	}

	var envelope customerEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Customer == nil || envelope.Customer.ID == "" {
		return nil, ErrNoCustomerData
	}

	return envelope.Customer, nil
}

// LedgerSummary 查询指定客户在某计量类别下的剩余额度。
//
// 余额缺失或无法解析返回 ErrNoCreditBalance；网络层失败原样返回。
func (c *Client) LedgerSummary(ctx context.Context, customerID, pricingUnitID, token, referer string) (float64, error) {
	endpoint := fmt.Sprintf("%s/customers/%s/ledger_summary?pricing_unit_id=%s&token=%s",
		c.baseURL,
		url.PathEscape(customerID),
		url.QueryEscape(pricingUnitID),
		url.QueryEscape(token),
	)

	body, ok, err := c.get(ctx, endpoint, referer)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoCreditBalance
	}

	var envelope ledgerEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.CreditBalance == nil {
		return 0, ErrNoCreditBalance
	}

	return *envelope.CreditBalance, nil
}

// get 执行一次带标识头的 GET 请求。
// 返回值 ok 表示响应状态是否为 2xx；传输层错误通过 err 返回。
func (c *Client) get(ctx context.Context, endpoint, referer string) (body []byte, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	// 限制响应体大小，门户响应不应超过 1MB
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, false, err
	}

	return data, resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}
