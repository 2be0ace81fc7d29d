package gateway

import (
	"context"
	"fmt"
	"time"

	"pair-engine-go/metrics"
	"pair-engine-go/pairs"
)

// StatusFetcher 包装单次订单状态查询：瞬时错误线性退避重试，
// 耗尽后以 ErrTimeout 收场；NotFound 立刻返回不重试。只读，无副作用。
type StatusFetcher struct {
	Broker    Broker
	Attempts  int           // 最大尝试次数，默认 3
	BaseDelay time.Duration // 退避基数，第 n 次失败后 sleep BaseDelay*n
}

const (
	defaultFetchAttempts  = 3
	defaultFetchBaseDelay = 500 * time.Millisecond
)

// NewStatusFetcher 创建 StatusFetcher；非法参数回落到默认值。
func NewStatusFetcher(b Broker, attempts int, baseDelay time.Duration) *StatusFetcher {
	if attempts <= 0 {
		attempts = defaultFetchAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultFetchBaseDelay
	}
	return &StatusFetcher{Broker: b, Attempts: attempts, BaseDelay: baseDelay}
}

// Fetch 返回该订单历史中时间上最新一条的归一化状态。
// orderID 必须是真实券商订单号，不接受哨兵值。
func (f *StatusFetcher) Fetch(ctx context.Context, orderID string) (pairs.LegStatus, error) {
	if pairs.IsSentinel(orderID) {
		return pairs.LegUnknown, fmt.Errorf("%w: %q", ErrSentinelOrderID, orderID)
	}

	var lastErr error
	for attempt := 1; attempt <= f.Attempts; attempt++ {
		history, err := f.Broker.GetOrderStatus(ctx, orderID)
		if err == nil {
			return normalizeLatest(history), nil
		}
		if !IsTransient(err) {
			return pairs.LegUnknown, err
		}
		lastErr = err
		if attempt == f.Attempts {
			break
		}
		metrics.FetchRetriesTotal.Inc()
		// 线性退避：base × 已尝试次数
		select {
		case <-ctx.Done():
			return pairs.LegUnknown, ctx.Err()
		case <-time.After(f.BaseDelay * time.Duration(attempt)):
		}
	}
	return pairs.LegUnknown, fmt.Errorf("%w after %d attempts for %s: %v", ErrTimeout, f.Attempts, orderID, lastErr)
}

// normalizeLatest 取历史里时间戳最大的一条并归一化；券商不保证历史有序。
func normalizeLatest(history []OrderStatusEntry) pairs.LegStatus {
	if len(history) == 0 {
		return pairs.LegUnknown
	}
	latest := history[0]
	for _, e := range history[1:] {
		if !e.Timestamp.Before(latest.Timestamp) {
			latest = e
		}
	}
	return pairs.ParseLegStatus(latest.Status)
}
