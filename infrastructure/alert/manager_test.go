package alert

import (
	"testing"
	"time"
)

func TestSendAlertFansOut(t *testing.T) {
	ch1 := NewMockChannel("log")
	ch2 := NewMockChannel("webhook")
	m := NewManager([]Channel{ch1, ch2}, time.Minute)

	err := m.SendWarning("pair sweep failure", map[string]interface{}{"pair_id": int64(7)})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ch1.Count() != 1 || ch2.Count() != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", ch1.Count(), ch2.Count())
	}

	got := ch1.GetAlerts()[0]
	if got.Level != "WARNING" || got.Message != "pair sweep failure" {
		t.Errorf("alert = %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestThrottlePerPair(t *testing.T) {
	ch := NewMockChannel("log")
	m := NewManager([]Channel{ch}, time.Hour)

	for i := 0; i < 5; i++ {
		_ = m.SendWarning("pair sweep failure", map[string]interface{}{"pair_id": int64(7)})
	}
	if ch.Count() != 1 {
		t.Errorf("same pair alerts = %d, want 1 inside throttle window", ch.Count())
	}

	// 不同配对各自独立限流
	_ = m.SendWarning("pair sweep failure", map[string]interface{}{"pair_id": int64(8)})
	if ch.Count() != 2 {
		t.Errorf("alerts = %d, want 2 after distinct pair", ch.Count())
	}

	// 不同级别也是独立 key
	_ = m.SendError("pair sweep failure", map[string]interface{}{"pair_id": int64(7)})
	if ch.Count() != 3 {
		t.Errorf("alerts = %d, want 3 after ERROR level", ch.Count())
	}

	m.ResetThrottle()
	_ = m.SendWarning("pair sweep failure", map[string]interface{}{"pair_id": int64(7)})
	if ch.Count() != 4 {
		t.Errorf("alerts = %d, want 4 after reset", ch.Count())
	}
}

func TestThrottlerWindowExpiry(t *testing.T) {
	th := NewThrottler(20 * time.Millisecond)
	if !th.Allow("k") {
		t.Fatal("first send must pass")
	}
	if th.Allow("k") {
		t.Fatal("second send inside window must be blocked")
	}
	time.Sleep(30 * time.Millisecond)
	if !th.Allow("k") {
		t.Fatal("send after window must pass")
	}
}

func TestSendAlertChannelFailure(t *testing.T) {
	bad := NewMockChannel("bad")
	bad.SetShouldError(true)
	good := NewMockChannel("good")
	m := NewManager([]Channel{bad, good}, time.Minute)

	// 有任一通道成功则不报错
	if err := m.SendError("boom", nil); err != nil {
		t.Errorf("one healthy channel should be enough: %v", err)
	}
	if good.Count() != 1 {
		t.Errorf("healthy channel count = %d", good.Count())
	}

	onlyBad := NewMockChannel("bad")
	onlyBad.SetShouldError(true)
	m2 := NewManager([]Channel{onlyBad}, time.Minute)
	if err := m2.SendError("boom", nil); err == nil {
		t.Error("all channels failing should surface an error")
	}
}

func TestAddChannel(t *testing.T) {
	m := NewManager(nil, time.Minute)
	ch := NewMockChannel("late")
	m.AddChannel(ch)
	if err := m.SendWarning("hello", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ch.Count() != 1 {
		t.Errorf("late channel count = %d, want 1", ch.Count())
	}
}
