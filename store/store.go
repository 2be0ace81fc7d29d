// Package store persists order pairs. The store is the single source of
// truth for committed pair state; the lifecycle driver re-reads it every
// sweep and writes back only deltas.
package store

import (
	"context"
	"errors"

	"pair-engine-go/pairs"
)

// ErrPairNotFound 指定 ID 的配对不存在。
var ErrPairNotFound = errors.New("pair not found")

// ErrPairCompleted 配对已 COMPLETED，状态单向，禁止改回 ACTIVE。
var ErrPairCompleted = errors.New("pair already completed")

// PairStore 配对存储抽象。
type PairStore interface {
	// ListPairs returns all pairs with the given lifecycle status.
	ListPairs(ctx context.Context, status pairs.PairStatus) ([]pairs.OrderPair, error)

	// CreatePair inserts a new pair and returns its assigned id.
	CreatePair(ctx context.Context, p *pairs.OrderPair) (int64, error)

	// GetPair retrieves a single pair by id.
	GetPair(ctx context.Context, id int64) (*pairs.OrderPair, error)

	// UpdatePair applies only the fields carried by the delta.
	UpdatePair(ctx context.Context, id int64, d pairs.Delta) error
}
