// Package strategy implements the routing algorithms that select a
// target from the healthy subset of the instance pool.
package strategy

import (
	log "github.com/sirupsen/logrus"

	"github.com/loadpilot/loadpilot/pkg/types"
)

// Strategy names accepted by New
const (
	NameRoundRobin       = "round-robin"
	NameLeastConnections = "least-connections"
	NameWeighted         = "weighted"
	NameIPHash           = "ip-hash"
)

// Strategy selects one instance from the healthy subset. The key is
// the routing key of the request; only keyed strategies use it.
type Strategy interface {
	// Name returns the strategy's configured name
	Name() string

	// Pick selects an instance from the healthy subset. It returns
	// false when the subset is empty.
	Pick(healthy []*types.Instance, key string) (*types.Instance, bool)
}

// New returns the strategy for the given name. Unknown names fall
// back to round-robin rather than failing startup.
func New(name string) Strategy {
	switch name {
	case NameRoundRobin:
		return NewRoundRobin()
	case NameLeastConnections:
		return NewLeastConnections()
	case NameWeighted:
		return NewWeighted()
	case NameIPHash:
		return NewIPHash()
	default:
		log.WithFields(log.Fields{"strategy": name}).Warn("Unknown routing strategy, falling back to round-robin")
		return NewRoundRobin()
	}
}
