package eligibility

import (
	"strings"
	"time"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/pkg/logger"
)

// AntiTargeting reports whether a segment or domain is blocked for a browsing history.
type AntiTargeting interface {
	IsBlocked(segmentOrDomain string, history []string) bool
}

// Preferences reports the user's segment opt-outs and flagged creative sets.
type Preferences interface {
	IsOptedOut(segment string) bool
	IsFlagged(creativeSetID string) bool
}

// Caps are the global per-ad-type serve limits. Zero disables a limit.
type Caps struct {
	AdsPerHour int
	AdsPerDay  int
}

// Options configures Rules.
type Options struct {
	Caps          Caps
	AntiTargeting AntiTargeting
	Preferences   Preferences
	// Location is the user's local zone for dayparts and daily caps. Defaults to time.Local.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
	// Seen enables the round-robin when set.
	Seen *SeenTracker
	// OnExclude is called once per excluded creative.
	OnExclude func(ad domain.CreativeAd, reason ExclusionReason)
}

// Input is the per-cycle context the rules evaluate against.
type Input struct {
	Events          []domain.AdEvent
	LastServed      *domain.CreativeAd
	BrowsingHistory []string
	Region          string
}

// Rules filters candidates. It is safe for concurrent use when Seen is.
type Rules struct {
	opts Options
}

// New creates Rules with defaults filled in.
func New(opts Options) *Rules {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Rules{opts: opts}
}

// Filter returns the creatives that pass every rule, in input order.
// Structurally invalid creatives are excluded before any other rule.
func (r *Rules) Filter(ads []domain.CreativeAd, in Input) []domain.CreativeAd {
	valid := make([]domain.CreativeAd, 0, len(ads))
	for _, ad := range ads {
		if err := ad.Validate(); err != nil {
			logger.Warn("invalid creative in catalog", "error", err)
			r.exclude(ad, ReasonInvalid)
			continue
		}
		valid = append(valid, ad)
	}
	if len(valid) == 0 {
		return nil
	}
	now := r.opts.Now()
	h := newHistory(in.Events)

	if reason, hit := r.globalCapReached(h, now); hit {
		for _, ad := range valid {
			r.exclude(ad, reason)
		}
		return nil
	}

	var out []domain.CreativeAd
	for _, ad := range valid {
		if reason, excluded := r.check(ad, h, in, now); excluded {
			r.exclude(ad, reason)
			continue
		}
		out = append(out, ad)
	}

	if r.opts.Seen != nil {
		out = r.opts.Seen.Apply(out, in.Events, now)
	}
	return out
}

func (r *Rules) globalCapReached(h history, now time.Time) (ExclusionReason, bool) {
	if reached(countSince(h.all, now.Add(-time.Hour)), r.opts.Caps.AdsPerHour) {
		return ReasonAdsPerHour, true
	}
	if reached(countSince(h.all, now.Add(-day)), r.opts.Caps.AdsPerDay) {
		return ReasonAdsPerDay, true
	}
	return "", false
}

func (r *Rules) check(ad domain.CreativeAd, h history, in Input, now time.Time) (ExclusionReason, bool) {
	if !ad.IsActiveAt(now) {
		return ReasonValidityWindow, true
	}
	if p := r.opts.Preferences; p != nil {
		if p.IsFlagged(ad.CreativeSetID) {
			return ReasonFlagged, true
		}
		if p.IsOptedOut(ad.Segment) {
			return ReasonOptedOut, true
		}
	}
	if in.LastServed != nil && in.LastServed.AdvertiserID == ad.AdvertiserID {
		return ReasonRepeatAdvertiser, true
	}
	if !r.daypartAllows(ad, now) {
		return ReasonDaypart, true
	}
	if !geoAllows(ad.GeoTargets, in.Region) {
		return ReasonGeo, true
	}
	if reason, hit := r.creativeCapReached(ad, h, now); hit {
		return reason, true
	}
	if r.opts.AntiTargeting != nil && len(in.BrowsingHistory) > 0 {
		if r.opts.AntiTargeting.IsBlocked(ad.Segment, in.BrowsingHistory) {
			return ReasonAntiTargeting, true
		}
		if d := ad.TargetDomain(); d != "" && r.opts.AntiTargeting.IsBlocked(d, in.BrowsingHistory) {
			return ReasonAntiTargeting, true
		}
	}
	return "", false
}

func (r *Rules) creativeCapReached(ad domain.CreativeAd, h history, now time.Time) (ExclusionReason, bool) {
	served := h.byCreative[ad.CreativeInstanceID]
	if len(served) == 0 {
		return "", false
	}
	if reached(countFrom(served, ad.StartAt), ad.TotalMax) {
		return ReasonTotalMax, true
	}
	if reached(countSince(served, now.Add(-day)), ad.PerDay) {
		return ReasonPerDay, true
	}
	if reached(countSince(served, now.Add(-week)), ad.PerWeek) {
		return ReasonPerWeek, true
	}
	if reached(countSince(served, now.Add(-month)), ad.PerMonth) {
		return ReasonPerMonth, true
	}
	if reached(countSameDay(served, now, r.opts.Location), ad.DailyCap) {
		return ReasonDailyCap, true
	}
	return "", false
}

func (r *Rules) daypartAllows(ad domain.CreativeAd, now time.Time) bool {
	if len(ad.Dayparts) == 0 {
		return true
	}
	local := now.In(r.opts.Location)
	for _, dp := range ad.Dayparts {
		if dp.Covers(local) {
			return true
		}
	}
	return false
}

// geoAllows matches a region code like "US-CA" against targets "US-CA" or "US".
func geoAllows(targets []string, region string) bool {
	if len(targets) == 0 {
		return true
	}
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		return false
	}
	for _, t := range targets {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == region || strings.HasPrefix(region, t+"-") {
			return true
		}
	}
	return false
}

func (r *Rules) exclude(ad domain.CreativeAd, reason ExclusionReason) {
	logger.Debug("creative excluded",
		"creative_instance_id", ad.CreativeInstanceID,
		"advertiser_id", ad.AdvertiserID,
		"segment", ad.Segment,
		"reason", string(reason),
	)
	if r.opts.OnExclude != nil {
		r.opts.OnExclude(ad, reason)
	}
}
