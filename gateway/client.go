package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pair-engine-go/metrics"
)

// OrderStatusEntry 券商订单历史中的一条状态记录。
type OrderStatusEntry struct {
	Status         string    `json:"status"`
	StatusMessage  string    `json:"status_message"`
	FilledQuantity int64     `json:"filled_quantity"`
	AveragePrice   float64   `json:"average_price"`
	Timestamp      time.Time `json:"timestamp"`
}

// OrderParams 下单参数。
type OrderParams struct {
	Symbol          string  `json:"symbol"`
	Exchange        string  `json:"exchange"`
	TransactionType string  `json:"transaction_type"`
	Quantity        int64   `json:"quantity"`
	OrderType       string  `json:"order_type"`
	Product         string  `json:"product"`
	Validity        string  `json:"validity"`
	Price           float64 `json:"price,omitempty"`
}

// Broker 券商网关抽象：查状态历史、下单、撤单。
// 提交不是幂等的——同一参数下两次 PlaceOrder 会产生两张真实订单。
type Broker interface {
	GetOrderStatus(ctx context.Context, orderID string) ([]OrderStatusEntry, error)
	PlaceOrder(ctx context.Context, params OrderParams) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// BrokerRESTClient 可注入 http.Client 的券商 REST 客户端；HTTPClient 可换 httptest。
type BrokerRESTClient struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
	Limiter    RateLimiter
}

var _ Broker = (*BrokerRESTClient)(nil)

type placeResp struct {
	OrderID string `json:"order_id"`
}

// GetOrderStatus 调用 GET /orders/{id}/history，返回按时间顺序排列的状态历史。
func (c *BrokerRESTClient) GetOrderStatus(ctx context.Context, orderID string) ([]OrderStatusEntry, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id required")
	}
	var history []OrderStatusEntry
	if err := c.do(ctx, "order_status", http.MethodGet, "/orders/"+orderID+"/history", nil, &history); err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w (empty history for %s)", ErrNotFound, orderID)
	}
	return history, nil
}

// PlaceOrder 调用 POST /orders 下单，返回券商分配的订单号。
func (c *BrokerRESTClient) PlaceOrder(ctx context.Context, params OrderParams) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	var pr placeResp
	if err := c.do(ctx, "place_order", http.MethodPost, "/orders", body, &pr); err != nil {
		return "", err
	}
	if pr.OrderID == "" {
		return "", fmt.Errorf("empty order_id in place response")
	}
	return pr.OrderID, nil
}

// CancelOrder 调用 DELETE /orders/{id} 撤单。
func (c *BrokerRESTClient) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("order id required")
	}
	return c.do(ctx, "cancel_order", http.MethodDelete, "/orders/"+orderID, nil, nil)
}

func (c *BrokerRESTClient) do(ctx context.Context, action, method, path string, body []byte, out interface{}) (err error) {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	metrics.BrokerRequestsTotal.WithLabelValues(action).Inc()
	start := time.Now()
	defer func() {
		metrics.BrokerRequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.BrokerRequestErrors.WithLabelValues(action).Inc()
		}
	}()
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.APIKey)
	req.Header.Set("X-API-Secret", c.APISecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return statusCodeError(resp.StatusCode, string(snippet))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
