package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"pair-engine-go/metrics"
)

// OrderUpdate 券商订单推送的核心字段。状态真相仍以轮询回查为准，
// 推送只用来提示驱动器尽快扫描。
type OrderUpdate struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// OrderStream 连接券商订单推送流，把更新转发到 Updates 通道。
// 断线后指数退避重连，直到 ctx 取消。
type OrderStream struct {
	Endpoint string
	APIKey   string
	Dialer   *websocket.Dialer

	updates chan OrderUpdate
}

func NewOrderStream(endpoint, apiKey string) *OrderStream {
	return &OrderStream{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Dialer:   websocket.DefaultDialer,
		updates:  make(chan OrderUpdate, 64),
	}
}

// Updates 返回订单更新通道；通道满时丢弃推送（轮询兜底）。
func (s *OrderStream) Updates() <-chan OrderUpdate {
	return s.updates
}

// Run 维持连接并读取消息，阻塞直到 ctx 取消。
func (s *OrderStream) Run(ctx context.Context) error {
	if s.Endpoint == "" {
		return fmt.Errorf("ws endpoint required")
	}
	backoff := time.Second
	for {
		err := s.readLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *OrderStream) readLoop(ctx context.Context) error {
	header := map[string][]string{}
	if s.APIKey != "" {
		header["X-API-Key"] = []string{s.APIKey}
	}
	conn, _, err := s.Dialer.DialContext(ctx, s.Endpoint, header)
	if err != nil {
		return err
	}
	metrics.StreamConnectsTotal.Inc()
	defer metrics.StreamDisconnectsTotal.Inc()
	defer conn.Close()

	// ctx 取消时强制关闭连接，打断 ReadMessage
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		update, ok := parseOrderUpdate(message)
		if !ok {
			continue
		}
		select {
		case s.updates <- update:
		default:
			// 通道满：丢弃，下一轮轮询会补上
		}
	}
}

// parseOrderUpdate 解析推送消息；非订单消息返回 false。
func parseOrderUpdate(raw []byte) (OrderUpdate, bool) {
	var u OrderUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return OrderUpdate{}, false
	}
	if u.OrderID == "" {
		return OrderUpdate{}, false
	}
	return u, true
}
