package eligibility

import (
	"sync"
	"time"

	"github.com/ignite/adserving/internal/domain"
)

// SeenTracker drives the creative and advertiser round-robin. A creative is
// "seen" when it was served at or after the point its stage last ran out.
type SeenTracker struct {
	mu               sync.Mutex
	creativesSince   time.Time
	advertisersSince time.Time
}

// NewSeenTracker starts both round-robins from the beginning of the event log.
func NewSeenTracker() *SeenTracker {
	return &SeenTracker{}
}

// Apply prefers unseen creatives, then unseen advertisers. A stage that would
// leave nothing resets its tracking and keeps its input.
func (s *SeenTracker) Apply(ads []domain.CreativeAd, events []domain.AdEvent, now time.Time) []domain.CreativeAd {
	if len(ads) == 0 {
		return ads
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seenCreatives := make(map[string]struct{})
	seenAdvertisers := make(map[string]struct{})
	for _, e := range events {
		if e.Type != domain.AdServed {
			continue
		}
		if !e.Timestamp.Before(s.creativesSince) {
			seenCreatives[e.CreativeInstanceID] = struct{}{}
		}
		if !e.Timestamp.Before(s.advertisersSince) {
			seenAdvertisers[e.AdvertiserID] = struct{}{}
		}
	}

	out := unseen(ads, seenCreatives, func(a domain.CreativeAd) string { return a.CreativeInstanceID })
	if len(out) == 0 {
		s.creativesSince = now
		out = ads
	}

	byAdvertiser := unseen(out, seenAdvertisers, func(a domain.CreativeAd) string { return a.AdvertiserID })
	if len(byAdvertiser) == 0 {
		s.advertisersSince = now
		return out
	}
	return byAdvertiser
}

func unseen(ads []domain.CreativeAd, seen map[string]struct{}, key func(domain.CreativeAd) string) []domain.CreativeAd {
	var out []domain.CreativeAd
	for _, ad := range ads {
		if _, ok := seen[key(ad)]; !ok {
			out = append(out, ad)
		}
	}
	return out
}
