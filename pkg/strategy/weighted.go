package strategy

import (
	"math/rand"

	"github.com/loadpilot/loadpilot/pkg/types"
)

// Weighted draws an instance at random with probability proportional
// to its weight. Instances with a non-positive weight are never drawn.
type Weighted struct {
	randFloat func() float64
}

// NewWeighted creates a weighted-random strategy
func NewWeighted() *Weighted {
	return &Weighted{
		randFloat: rand.Float64,
	}
}

// Name returns the strategy name
func (w *Weighted) Name() string { return NameWeighted }

// Pick draws proportionally to weight over the healthy subset. When
// no instance carries a positive weight the first instance is
// returned so routing does not stall.
func (w *Weighted) Pick(healthy []*types.Instance, key string) (*types.Instance, bool) {
	if len(healthy) == 0 {
		return nil, false
	}

	var total float64
	for _, inst := range healthy {
		if inst.Weight > 0 {
			total += float64(inst.Weight)
		}
	}
	if total <= 0 {
		return healthy[0], true
	}

	r := w.randFloat() * total
	var last *types.Instance
	for _, inst := range healthy {
		if inst.Weight <= 0 {
			continue
		}
		last = inst
		r -= float64(inst.Weight)
		if r <= 0 {
			return inst, true
		}
	}
	// Float rounding can leave a sliver of r; the draw belongs to the
	// final weighted instance.
	return last, true
}
