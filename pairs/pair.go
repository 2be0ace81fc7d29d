package pairs

import (
	"strings"
	"time"
)

// PairType represents linked-order semantics.
type PairType string

const (
	// TypeOCO 其一成交则撤销另一腿
	TypeOCO PairType = "OCO"
	// TypeOAO leg1 全部成交后才提交 leg2
	TypeOAO PairType = "OAO"
)

// PairStatus represents pair lifecycle.
type PairStatus string

const (
	PairActive    PairStatus = "ACTIVE"
	PairCompleted PairStatus = "COMPLETED"
)

// LegStatus represents the last known broker status of one leg.
type LegStatus string

const (
	LegOpen      LegStatus = "OPEN"
	LegComplete  LegStatus = "COMPLETE"
	LegCancelled LegStatus = "CANCELLED"
	LegRejected  LegStatus = "REJECTED"
	LegUnknown   LegStatus = "UNKNOWN"
)

// 订单 ID 哨兵值（非券商分配）
const (
	// WaitingForLeg1 OAO leg2 在 leg1 成交前的占位 ID
	WaitingForLeg1 = "WAITING_FOR_LEG1"
	// FailedOrderID leg 提交失败后的占位 ID
	FailedOrderID = "FAILED"
)

// IsSentinel reports whether id is a placeholder rather than a broker order id.
func IsSentinel(id string) bool {
	return id == "" || id == WaitingForLeg1 || id == FailedOrderID
}

// ParseLegStatus normalizes a raw broker status string into the closed enum.
// Unrecognized values map to LegUnknown, never compared as raw strings upstream.
func ParseLegStatus(raw string) LegStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETE", "FILLED", "EXECUTED":
		return LegComplete
	case "CANCELLED", "CANCELED", "EXPIRED":
		return LegCancelled
	case "REJECTED":
		return LegRejected
	case "OPEN", "NEW", "ACK", "PARTIAL", "PENDING", "TRIGGER PENDING", "VALIDATION PENDING", "PUT ORDER REQ RECEIVED":
		return LegOpen
	default:
		return LegUnknown
	}
}

// IsTerminal 终态判定：终态不可回退到 OPEN
func IsTerminal(s LegStatus) bool {
	switch s {
	case LegComplete, LegCancelled, LegRejected:
		return true
	default:
		return false
	}
}

// LegDetails holds the parameters needed to (re)submit a leg plus the cached
// last known broker status.
type LegDetails struct {
	Symbol          string    `json:"symbol"`
	Exchange        string    `json:"exchange"`
	TransactionType string    `json:"transaction_type"` // BUY/SELL
	Quantity        int64     `json:"quantity"`
	Price           float64   `json:"price"`
	OrderType       string    `json:"order_type"` // LIMIT/MARKET/SL
	Product         string    `json:"product"`
	Validity        string    `json:"validity"`
	Status          LegStatus `json:"status"`
	Error           string    `json:"error,omitempty"`
}

// Leg is one side of a pair.
type Leg struct {
	OrderID string     `json:"order_id"`
	Details LegDetails `json:"details"`
}

// OrderPair is the unit of coordination: two legs plus lifecycle status.
// Mutated exclusively by the lifecycle driver; COMPLETED is one-way.
type OrderPair struct {
	ID        int64      `json:"id"`
	Type      PairType   `json:"type"`
	Leg1      Leg        `json:"leg1"`
	Leg2      Leg        `json:"leg2"`
	Status    PairStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NeedsFetch reports whether the leg's broker state should be re-read this
// sweep: cached status still OPEN and a real broker order id is present.
// Terminal statuses are sticky and waiting/failed legs have nothing to fetch.
func (l Leg) NeedsFetch() bool {
	return !IsSentinel(l.OrderID) && !IsTerminal(l.Details.Status)
}
