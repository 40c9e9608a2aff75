package serving

import (
	"time"

	"github.com/ignite/adserving/internal/domain"
)

// Outcome is how a cycle ended.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeNotServed Outcome = "not_served"
	OutcomeFailed    Outcome = "failed"
)

// Tier identifies which segment fallback produced the delivered ad.
type Tier int

const (
	TierNone Tier = iota
	TierChild
	TierParent
	TierUntargeted
)

func (t Tier) String() string {
	switch t {
	case TierChild:
		return "child"
	case TierParent:
		return "parent"
	case TierUntargeted:
		return "untargeted"
	}
	return "none"
}

// Result describes one finished cycle.
type Result struct {
	Outcome  Outcome
	Ad       *domain.CreativeAd
	Tier     Tier
	Err      error
	Started  time.Time
	Duration time.Duration
}
