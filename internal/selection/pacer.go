package selection

import "github.com/ignite/adserving/internal/domain"

// Pacer thins eligible creatives by their pass-through rate and then keeps
// only the most important priority band.
type Pacer struct {
	rnd Rand
}

// NewPacer creates a pacer drawing from rnd. A nil rnd uses DefaultRand.
func NewPacer(rnd Rand) *Pacer {
	if rnd == nil {
		rnd = DefaultRand()
	}
	return &Pacer{rnd: rnd}
}

// Pace runs one independent trial per creative and returns the survivors that
// share the lowest priority value.
func (p *Pacer) Pace(ads []domain.CreativeAd) []domain.CreativeAd {
	var paced []domain.CreativeAd
	for _, ad := range ads {
		if p.pass(ad.PTR) {
			paced = append(paced, ad)
		}
	}
	return TopPriority(paced)
}

// pass draws r in [0,1) and keeps the ad when r <= ptr. A ptr of zero never passes.
func (p *Pacer) pass(ptr float64) bool {
	if ptr <= 0 {
		return false
	}
	if ptr >= 1 {
		return true
	}
	return p.rnd.Float64() <= ptr
}

// TopPriority keeps the creatives whose priority equals the minimum priority in ads.
func TopPriority(ads []domain.CreativeAd) []domain.CreativeAd {
	if len(ads) == 0 {
		return nil
	}
	min := ads[0].Priority
	for _, ad := range ads[1:] {
		if ad.Priority < min {
			min = ad.Priority
		}
	}
	out := make([]domain.CreativeAd, 0, len(ads))
	for _, ad := range ads {
		if ad.Priority == min {
			out = append(out, ad)
		}
	}
	return out
}
