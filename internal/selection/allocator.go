package selection

import "github.com/ignite/adserving/internal/domain"

// Allocator picks the creative to deliver from a single priority band.
type Allocator struct {
	rnd Rand
}

// NewAllocator creates an allocator drawing from rnd. A nil rnd uses DefaultRand.
func NewAllocator(rnd Rand) *Allocator {
	if rnd == nil {
		rnd = DefaultRand()
	}
	return &Allocator{rnd: rnd}
}

// SelectOne returns a uniformly random candidate. ok is false when ads is
// empty, which means there is nothing to serve this cycle.
func (a *Allocator) SelectOne(ads []domain.CreativeAd) (ad domain.CreativeAd, ok bool) {
	if len(ads) == 0 {
		return domain.CreativeAd{}, false
	}
	if len(ads) == 1 {
		return ads[0], true
	}
	return ads[a.rnd.Intn(len(ads))], true
}
