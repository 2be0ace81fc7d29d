package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotFound 券商不认识该订单号；不重试。
var ErrNotFound = errors.New("order not found")

// ErrTimeout 瞬时错误重试耗尽后的最终结论。
var ErrTimeout = errors.New("status fetch timed out")

// ErrSentinelOrderID 拿哨兵 ID 去查券商属于调用方错误。
var ErrSentinelOrderID = errors.New("order id is a sentinel, nothing to fetch")

// TransientError 标记可重试的资源/连接类错误（HTTP 429/5xx、网络抖动）。
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient broker error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// statusCodeError 把 HTTP 状态码归类为错误分类
func statusCodeError(code int, body string) error {
	switch {
	case code == 404:
		return fmt.Errorf("%w (status %d: %s)", ErrNotFound, code, body)
	case code == 429 || code >= 500:
		return &TransientError{Err: fmt.Errorf("status %d: %s", code, body)}
	default:
		return fmt.Errorf("broker status %d: %s", code, body)
	}
}
