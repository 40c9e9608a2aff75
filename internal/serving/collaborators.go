package serving

import (
	"context"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/eligibility"
)

// CandidateSource returns creatives registered against segments. An empty
// result is not an error.
type CandidateSource interface {
	GetForSegments(ctx context.Context, segments []string) ([]domain.CreativeAd, error)
}

// EventLog is the append-only ad event history.
type EventLog interface {
	GetAllEvents(ctx context.Context, adType domain.AdType) ([]domain.AdEvent, error)
	RecordEvent(ctx context.Context, event domain.AdEvent) error
}

// Delivery presents an ad. It returns false when the ad could not be shown.
type Delivery interface {
	Show(ctx context.Context, ad domain.CreativeAd) bool
}

// StateStore persists the serving state.
type StateStore interface {
	Load(ctx context.Context) (domain.ServingState, error)
	Save(ctx context.Context, s domain.ServingState) error
}

// ProfileSource supplies the user model, browsing history and region.
type ProfileSource interface {
	Profile(ctx context.Context) (domain.Profile, error)
}

// CycleLock serializes cycles across replicas sharing a profile.
type CycleLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Rules removes creatives that may not be shown now.
type Rules interface {
	Filter(ads []domain.CreativeAd, in eligibility.Input) []domain.CreativeAd
}

// Pacer thins candidates and keeps the top priority band.
type Pacer interface {
	Pace(ads []domain.CreativeAd) []domain.CreativeAd
}

// Allocator picks the creative to deliver.
type Allocator interface {
	SelectOne(ads []domain.CreativeAd) (domain.CreativeAd, bool)
}

// Observer is told about every finished cycle.
type Observer interface {
	ObserveCycle(r Result)
}
