package strategy

import (
	"github.com/loadpilot/loadpilot/pkg/types"
)

// LeastConnections selects the instance with the fewest active
// connections. Ties keep the earliest instance in iteration order.
type LeastConnections struct{}

// NewLeastConnections creates a least-connections strategy
func NewLeastConnections() *LeastConnections {
	return &LeastConnections{}
}

// Name returns the strategy name
func (l *LeastConnections) Name() string { return NameLeastConnections }

// Pick returns the first instance holding the minimum connection count
func (l *LeastConnections) Pick(healthy []*types.Instance, key string) (*types.Instance, bool) {
	if len(healthy) == 0 {
		return nil, false
	}
	best := healthy[0]
	for _, inst := range healthy[1:] {
		if inst.Connections < best.Connections {
			best = inst
		}
	}
	return best, true
}
