package strategy

import (
	"github.com/loadpilot/loadpilot/pkg/types"
)

// IPHash maps a routing key deterministically onto the healthy subset.
// The same key always lands on the same instance while the healthy
// set composition is unchanged.
type IPHash struct{}

// NewIPHash creates an ip-hash strategy
func NewIPHash() *IPHash {
	return &IPHash{}
}

// Name returns the strategy name
func (h *IPHash) Name() string { return NameIPHash }

// Pick hashes the key with the 31-multiplier recurrence over 32-bit
// wraparound arithmetic and indexes the healthy subset by the
// absolute value modulo its size.
func (h *IPHash) Pick(healthy []*types.Instance, key string) (*types.Instance, bool) {
	if len(healthy) == 0 {
		return nil, false
	}
	return healthy[hashIndex(key, len(healthy))], true
}

// hashIndex computes abs(h) % n for h = h*31 + c over the key's code
// points, wrapping in int32.
func hashIndex(key string, n int) int {
	var h int32
	for _, c := range key {
		h = h*31 + int32(c)
	}
	v := int(h)
	if v < 0 {
		v = -v
	}
	return v % n
}
