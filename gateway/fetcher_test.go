package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pair-engine-go/pairs"
)

// scriptedBroker 按脚本逐次返回结果
type scriptedBroker struct {
	calls   int
	results []func() ([]OrderStatusEntry, error)
}

func (b *scriptedBroker) GetOrderStatus(_ context.Context, _ string) ([]OrderStatusEntry, error) {
	i := b.calls
	b.calls++
	if i >= len(b.results) {
		i = len(b.results) - 1
	}
	return b.results[i]()
}

func (b *scriptedBroker) PlaceOrder(context.Context, OrderParams) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (b *scriptedBroker) CancelOrder(context.Context, string) error {
	return fmt.Errorf("not implemented")
}

func entries(statuses ...string) []OrderStatusEntry {
	base := time.Date(2024, 1, 10, 9, 15, 0, 0, time.UTC)
	out := make([]OrderStatusEntry, len(statuses))
	for i, s := range statuses {
		out[i] = OrderStatusEntry{Status: s, Timestamp: base.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func transient() ([]OrderStatusEntry, error) {
	return nil, &TransientError{Err: errors.New("connection reset")}
}

func TestFetcherPicksLatestEntry(t *testing.T) {
	b := &scriptedBroker{results: []func() ([]OrderStatusEntry, error){
		func() ([]OrderStatusEntry, error) { return entries("OPEN", "COMPLETE"), nil },
	}}
	f := NewStatusFetcher(b, 3, time.Millisecond)

	st, err := f.Fetch(context.Background(), "X1")
	if err != nil {
		t.Fatalf("fetch err: %v", err)
	}
	if st != pairs.LegComplete {
		t.Errorf("status = %s, want COMPLETE", st)
	}
}

func TestFetcherUnorderedHistory(t *testing.T) {
	// 时间戳乱序：最新的一条在中间
	hist := entries("OPEN", "COMPLETE", "OPEN")
	hist[1].Timestamp = hist[2].Timestamp.Add(time.Hour)
	b := &scriptedBroker{results: []func() ([]OrderStatusEntry, error){
		func() ([]OrderStatusEntry, error) { return hist, nil },
	}}
	f := NewStatusFetcher(b, 3, time.Millisecond)

	st, err := f.Fetch(context.Background(), "X1")
	if err != nil {
		t.Fatalf("fetch err: %v", err)
	}
	if st != pairs.LegComplete {
		t.Errorf("status = %s, want COMPLETE", st)
	}
}

func TestFetcherRetriesTransientThenSucceeds(t *testing.T) {
	b := &scriptedBroker{results: []func() ([]OrderStatusEntry, error){
		transient,
		transient,
		func() ([]OrderStatusEntry, error) { return entries("CANCELLED"), nil },
	}}
	f := NewStatusFetcher(b, 3, time.Millisecond)

	st, err := f.Fetch(context.Background(), "X1")
	if err != nil {
		t.Fatalf("fetch err: %v", err)
	}
	if st != pairs.LegCancelled {
		t.Errorf("status = %s, want CANCELLED", st)
	}
	if b.calls != 3 {
		t.Errorf("calls = %d, want 3", b.calls)
	}
}

func TestFetcherExhaustionIsTimeout(t *testing.T) {
	b := &scriptedBroker{results: []func() ([]OrderStatusEntry, error){transient}}
	f := NewStatusFetcher(b, 3, time.Millisecond)

	_, err := f.Fetch(context.Background(), "X1")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("want ErrTimeout, got %v", err)
	}
	if b.calls != 3 {
		t.Errorf("calls = %d, want 3", b.calls)
	}
}

func TestFetcherNotFoundIsImmediate(t *testing.T) {
	b := &scriptedBroker{results: []func() ([]OrderStatusEntry, error){
		func() ([]OrderStatusEntry, error) { return nil, ErrNotFound },
	}}
	f := NewStatusFetcher(b, 3, time.Millisecond)

	_, err := f.Fetch(context.Background(), "X1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	if b.calls != 1 {
		t.Errorf("NotFound must not be retried, calls = %d", b.calls)
	}
}

func TestFetcherRejectsSentinels(t *testing.T) {
	b := &scriptedBroker{results: []func() ([]OrderStatusEntry, error){transient}}
	f := NewStatusFetcher(b, 3, time.Millisecond)

	for _, id := range []string{"", pairs.WaitingForLeg1, pairs.FailedOrderID} {
		if _, err := f.Fetch(context.Background(), id); !errors.Is(err, ErrSentinelOrderID) {
			t.Errorf("Fetch(%q) err = %v, want ErrSentinelOrderID", id, err)
		}
	}
	if b.calls != 0 {
		t.Errorf("sentinel fetch must not hit broker, calls = %d", b.calls)
	}
}

func TestFetcherHonorsContext(t *testing.T) {
	b := &scriptedBroker{results: []func() ([]OrderStatusEntry, error){transient}}
	f := NewStatusFetcher(b, 3, time.Hour) // 退避足够长，必然卡在 sleep

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := f.Fetch(ctx, "X1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}
