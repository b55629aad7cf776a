package strategy

import (
	"sync/atomic"

	"github.com/loadpilot/loadpilot/pkg/types"
)

// RoundRobin cycles through the healthy subset with one shared cursor.
// The cursor is global to the strategy instance, not per key, so
// concurrent callers interleave across the same sequence.
type RoundRobin struct {
	cursor uint64
}

// NewRoundRobin creates a round-robin strategy with its cursor at the start
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Name returns the strategy name
func (r *RoundRobin) Name() string { return NameRoundRobin }

// Pick returns the next instance in rotation. The rotation is stable
// only while the healthy set composition is unchanged; membership
// changes may skip or repeat a position.
func (r *RoundRobin) Pick(healthy []*types.Instance, key string) (*types.Instance, bool) {
	if len(healthy) == 0 {
		return nil, false
	}
	idx := (atomic.AddUint64(&r.cursor, 1) - 1) % uint64(len(healthy))
	return healthy[idx], true
}
