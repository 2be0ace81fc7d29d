package schedule

import (
	"testing"
	"time"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func mustGuard(t *testing.T, cfg GuardConfig, session Session, clock Clock) *Guard {
	t.Helper()
	g, err := NewGuard(cfg, session, clock)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	return g
}

func TestParseMinuteOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    MinuteOfDay
		wantErr bool
	}{
		{"09:15", 9*60 + 15, false},
		{"00:00", 0, false},
		{"23:59", 23*60 + 59, false},
		{"24:00", 0, true},
		{"09:60", 0, true},
		{"nonsense", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMinuteOfDay(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMinuteOfDay(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMinuteOfDay(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMinuteOfDay(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPollingWindow(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	cfg := GuardConfig{Timezone: "Asia/Kolkata", MarketOpen: "09:15", MarketClose: "15:30"}

	// 2026-08-24 是周一
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"开盘前一分钟", time.Date(2026, 8, 24, 9, 14, 59, 0, ist), false},
		{"开盘第一分钟", time.Date(2026, 8, 24, 9, 15, 0, 0, ist), true},
		{"盘中", time.Date(2026, 8, 24, 12, 0, 0, 0, ist), true},
		{"收盘边界不含", time.Date(2026, 8, 24, 15, 30, 0, 0, ist), false},
		{"收盘后", time.Date(2026, 8, 24, 16, 0, 0, 0, ist), false},
		{"周六盘中时刻", time.Date(2026, 8, 29, 12, 0, 0, 0, ist), false},
		{"周日盘中时刻", time.Date(2026, 8, 30, 12, 0, 0, 0, ist), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustGuard(t, cfg, nil, fixedClock{tt.at})
			if got := g.PollingWindowOpen(); got != tt.want {
				t.Errorf("PollingWindowOpen() at %v = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestPollingWindowTimezoneConversion(t *testing.T) {
	if _, err := time.LoadLocation("Asia/Kolkata"); err != nil {
		t.Skip("tzdata unavailable")
	}
	cfg := GuardConfig{Timezone: "Asia/Kolkata", MarketOpen: "09:15", MarketClose: "15:30"}
	// UTC 05:00 = IST 10:30，盘中
	g := mustGuard(t, cfg, nil, fixedClock{time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)})
	if !g.PollingWindowOpen() {
		t.Error("UTC clock inside IST market hours should be open")
	}
	// UTC 12:00 = IST 17:30，收盘后
	g.Clock = fixedClock{time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	if g.PollingWindowOpen() {
		t.Error("UTC clock after IST close should be closed")
	}
}

func TestPollingWindowSession(t *testing.T) {
	if _, err := time.LoadLocation("Asia/Kolkata"); err != nil {
		t.Skip("tzdata unavailable")
	}
	cfg := GuardConfig{Timezone: "Asia/Kolkata", MarketOpen: "09:15", MarketClose: "15:30"}
	ist, _ := time.LoadLocation("Asia/Kolkata")
	clock := fixedClock{time.Date(2026, 8, 24, 12, 0, 0, 0, ist)}

	sess := NewStaticSession(false)
	g := mustGuard(t, cfg, sess, clock)
	if g.PollingWindowOpen() {
		t.Error("inactive session must close the window even during market hours")
	}
	sess.Set(true)
	if !g.PollingWindowOpen() {
		t.Error("active session during market hours should be open")
	}
}

func TestPollingWindowCustomWeekdays(t *testing.T) {
	if _, err := time.LoadLocation("Asia/Kolkata"); err != nil {
		t.Skip("tzdata unavailable")
	}
	ist, _ := time.LoadLocation("Asia/Kolkata")
	cfg := GuardConfig{
		Timezone: "Asia/Kolkata", MarketOpen: "09:15", MarketClose: "15:30",
		Weekdays: []string{"sat", "sun"},
	}
	g := mustGuard(t, cfg, nil, fixedClock{time.Date(2026, 8, 29, 12, 0, 0, 0, ist)})
	if !g.PollingWindowOpen() {
		t.Error("saturday should be open with custom weekdays")
	}
	g.Clock = fixedClock{time.Date(2026, 8, 24, 12, 0, 0, 0, ist)}
	if g.PollingWindowOpen() {
		t.Error("monday should be closed with custom weekdays")
	}
}

func TestNewGuardValidation(t *testing.T) {
	if _, err := NewGuard(GuardConfig{Timezone: "Mars/Olympus", MarketOpen: "09:15", MarketClose: "15:30"}, nil, nil); err == nil {
		t.Error("bad timezone should fail")
	}
	if _, err := NewGuard(GuardConfig{Timezone: "UTC", MarketOpen: "15:30", MarketClose: "09:15"}, nil, nil); err == nil {
		t.Error("close before open should fail")
	}
	if _, err := NewGuard(GuardConfig{Timezone: "UTC", MarketOpen: "09:15", MarketClose: "15:30", Weekdays: []string{"someday"}}, nil, nil); err == nil {
		t.Error("unknown weekday should fail")
	}
}
