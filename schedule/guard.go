// Package schedule decides whether the lifecycle driver may poll the broker
// right now: market hours in the exchange timezone plus an active session.
package schedule

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Session 券商会话有效性检查。
type Session interface {
	IsActive() bool
}

// StaticSession Session 的固定实现；Set 可在运行时翻转（登录/登出）。
type StaticSession struct {
	active atomic.Bool
}

func NewStaticSession(active bool) *StaticSession {
	s := &StaticSession{}
	s.active.Store(active)
	return s
}

func (s *StaticSession) IsActive() bool { return s.active.Load() }
func (s *StaticSession) Set(v bool)     { s.active.Store(v) }

// Guard 轮询窗口判定：交易日 + 开收盘时段 + 会话有效。
type Guard struct {
	Location *time.Location
	Open     MinuteOfDay // 开盘（含）
	Close    MinuteOfDay // 收盘（不含）
	Weekdays map[time.Weekday]bool
	Session  Session
	Clock    Clock
}

// MinuteOfDay 当日分钟数（0-1439）。
type MinuteOfDay int

// ParseMinuteOfDay 解析 "HH:MM"。
func ParseMinuteOfDay(s string) (MinuteOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return MinuteOfDay(h*60 + m), nil
}

// GuardConfig Guard 的构造参数。
type GuardConfig struct {
	Timezone    string   // IANA 时区名，如 Asia/Kolkata
	MarketOpen  string   // "09:15"
	MarketClose string   // "15:30"
	Weekdays    []string // 留空表示周一至周五
}

// NewGuard 按配置构造 Guard。
func NewGuard(cfg GuardConfig, session Session, clock Clock) (*Guard, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	open, err := ParseMinuteOfDay(cfg.MarketOpen)
	if err != nil {
		return nil, err
	}
	clos, err := ParseMinuteOfDay(cfg.MarketClose)
	if err != nil {
		return nil, err
	}
	if clos <= open {
		return nil, fmt.Errorf("market close %s must be after open %s", cfg.MarketClose, cfg.MarketOpen)
	}
	days := make(map[time.Weekday]bool)
	if len(cfg.Weekdays) == 0 {
		for d := time.Monday; d <= time.Friday; d++ {
			days[d] = true
		}
	} else {
		for _, name := range cfg.Weekdays {
			d, err := parseWeekday(name)
			if err != nil {
				return nil, err
			}
			days[d] = true
		}
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Guard{
		Location: loc,
		Open:     open,
		Close:    clos,
		Weekdays: days,
		Session:  session,
		Clock:    clock,
	}, nil
}

// PollingWindowOpen reports whether the driver should sweep right now.
func (g *Guard) PollingWindowOpen() bool {
	if g.Session != nil && !g.Session.IsActive() {
		return false
	}
	now := g.Clock.Now().In(g.Location)
	if !g.Weekdays[now.Weekday()] {
		return false
	}
	minute := MinuteOfDay(now.Hour()*60 + now.Minute())
	return minute >= g.Open && minute < g.Close
}

func parseWeekday(name string) (time.Weekday, error) {
	switch name {
	case "Sunday", "sunday", "sun":
		return time.Sunday, nil
	case "Monday", "monday", "mon":
		return time.Monday, nil
	case "Tuesday", "tuesday", "tue":
		return time.Tuesday, nil
	case "Wednesday", "wednesday", "wed":
		return time.Wednesday, nil
	case "Thursday", "thursday", "thu":
		return time.Thursday, nil
	case "Friday", "friday", "fri":
		return time.Friday, nil
	case "Saturday", "saturday", "sat":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
}
