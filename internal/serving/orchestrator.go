package serving

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/eligibility"
	"github.com/ignite/adserving/internal/pkg/logger"
	"github.com/ignite/adserving/internal/targeting"
)

// Deps wires the Orchestrator's collaborators. Lock, Observer and Profile are optional.
type Deps struct {
	Candidates CandidateSource
	Events     EventLog
	Delivery   Delivery
	Profile    ProfileSource
	Rules      Rules
	Pacer      Pacer
	Allocator  Allocator
	Lock       CycleLock
	Observer   Observer

	// MaxSegmentsPerCategory defaults to targeting.DefaultMaxSegmentsPerCategory.
	MaxSegmentsPerCategory int
	// AdType defaults to domain.AdTypeNotification.
	AdType domain.AdType
	Now    func() time.Time
	NewID  func() string
}

// Orchestrator runs single serving cycles. It holds the last served ad.
type Orchestrator struct {
	deps Deps

	mu         sync.RWMutex
	lastServed *domain.CreativeAd
}

// NewOrchestrator fills defaults into deps.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.MaxSegmentsPerCategory <= 0 {
		deps.MaxSegmentsPerCategory = targeting.DefaultMaxSegmentsPerCategory
	}
	if deps.AdType == "" {
		deps.AdType = domain.AdTypeNotification
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Orchestrator{deps: deps}
}

// LastServed returns a copy of the last delivered ad, or nil.
func (o *Orchestrator) LastServed() *domain.CreativeAd {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.lastServed == nil {
		return nil
	}
	ad := *o.lastServed
	return &ad
}

// SetLastServed restores the last delivered ad, typically from persisted state.
func (o *Orchestrator) SetLastServed(ad *domain.CreativeAd) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ad == nil {
		o.lastServed = nil
		return
	}
	cp := *ad
	o.lastServed = &cp
}

// ServeAd runs one cycle. It never panics on collaborator failure; failures
// come back as OutcomeFailed with Err set.
func (o *Orchestrator) ServeAd(ctx context.Context) Result {
	started := o.deps.Now()
	res := o.serve(ctx)
	res.Started = started
	res.Duration = o.deps.Now().Sub(started)

	fields := []interface{}{"outcome", string(res.Outcome), "tier", res.Tier.String(), "duration", res.Duration}
	if res.Ad != nil {
		fields = append(fields, "creative_instance_id", res.Ad.CreativeInstanceID, "advertiser_id", res.Ad.AdvertiserID)
	}
	if res.Err != nil {
		fields = append(fields, "error", res.Err)
		logger.Warn("serving cycle finished", fields...)
	} else {
		logger.Info("serving cycle finished", fields...)
	}

	if o.deps.Observer != nil {
		o.deps.Observer.ObserveCycle(res)
	}
	return res
}

func (o *Orchestrator) serve(ctx context.Context) Result {
	if o.deps.Lock != nil {
		ok, err := o.deps.Lock.Acquire(ctx)
		if err != nil {
			return failed(fmt.Errorf("acquire cycle lock: %w", err))
		}
		if !ok {
			return Result{Outcome: OutcomeNotServed, Err: ErrLockHeld}
		}
		defer func() {
			if err := o.deps.Lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release cycle lock", "error", err)
			}
		}()
	}

	var profile domain.Profile
	if o.deps.Profile != nil {
		p, err := o.deps.Profile.Profile(ctx)
		if err != nil {
			return failed(fmt.Errorf("load profile: %w", err))
		}
		profile = p
	}

	events, err := o.deps.Events.GetAllEvents(ctx, o.deps.AdType)
	if err != nil {
		return failed(fmt.Errorf("read event log: %w", err))
	}

	in := eligibility.Input{
		Events:          events,
		LastServed:      o.LastServed(),
		BrowsingHistory: profile.BrowsingHistory,
		Region:          profile.Region,
	}

	for _, tier := range o.tiers(profile.UserModel) {
		ad, ok, err := o.selectFrom(ctx, tier.segments, in)
		if err != nil {
			return failed(fmt.Errorf("%s tier: %w", tier.tier, err))
		}
		if ok {
			return o.deliver(ctx, ad, tier.tier)
		}
	}
	return Result{Outcome: OutcomeNotServed}
}

type segmentTier struct {
	tier     Tier
	segments []string
}

// tiers lists the segment fallbacks. Targeted tiers are skipped for an empty model.
func (o *Orchestrator) tiers(model domain.UserModel) []segmentTier {
	var out []segmentTier
	if child := targeting.GetTopSegments(model, o.deps.MaxSegmentsPerCategory, false); len(child) > 0 {
		out = append(out, segmentTier{TierChild, child})
	}
	if parent := targeting.GetTopSegments(model, o.deps.MaxSegmentsPerCategory, true); len(parent) > 0 {
		out = append(out, segmentTier{TierParent, parent})
	}
	return append(out, segmentTier{TierUntargeted, []string{domain.UntargetedSegment}})
}

// selectFrom runs exclusion, pacing and allocation for one tier.
func (o *Orchestrator) selectFrom(ctx context.Context, segments []string, in eligibility.Input) (domain.CreativeAd, bool, error) {
	ads, err := o.deps.Candidates.GetForSegments(ctx, segments)
	if err != nil {
		return domain.CreativeAd{}, false, err
	}
	if len(ads) == 0 {
		return domain.CreativeAd{}, false, nil
	}

	eligible := o.deps.Rules.Filter(ads, in)
	paced := o.deps.Pacer.Pace(eligible)
	ad, ok := o.deps.Allocator.SelectOne(paced)
	return ad, ok, nil
}

func (o *Orchestrator) deliver(ctx context.Context, ad domain.CreativeAd, tier Tier) Result {
	if err := ctx.Err(); err != nil {
		return Result{Outcome: OutcomeFailed, Tier: tier, Err: fmt.Errorf("cycle canceled before delivery: %w", err)}
	}
	if !o.deps.Delivery.Show(ctx, ad) {
		return Result{Outcome: OutcomeFailed, Tier: tier, Err: ErrDeliveryRefused}
	}

	event := domain.NewAdEvent(ad, o.deps.AdType, domain.AdServed, o.deps.Now())
	event.ID = o.deps.NewID()
	if err := o.deps.Events.RecordEvent(ctx, event); err != nil {
		// The ad is already on screen; a retry would show it twice.
		logger.Error("record served event", "creative_instance_id", ad.CreativeInstanceID, "error", err)
	}

	o.SetLastServed(&ad)
	return Result{Outcome: OutcomeDelivered, Ad: &ad, Tier: tier}
}

func failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: err}
}
