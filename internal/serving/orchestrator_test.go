package serving

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/eligibility"
	"github.com/ignite/adserving/internal/selection"
)

var t0 = time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)

func creative(id, advertiser, segment string, priority int) domain.CreativeAd {
	return domain.CreativeAd{
		CreativeInstanceID: id,
		CreativeSetID:      "set-" + id,
		CampaignID:         "camp-" + id,
		AdvertiserID:       advertiser,
		Segment:            segment,
		Priority:           priority,
		PTR:                1,
	}
}

var sportsModel = domain.UserModel{
	Interest: []domain.SegmentScore{{Segment: "sports-tennis", Score: 0.9}},
}

type harness struct {
	src      *stubSource
	events   *stubEvents
	delivery *stubDelivery
	profile  stubProfile
	lock     CycleLock
	seen     *eligibility.SeenTracker
	prefs    eligibility.Preferences

	mu       sync.Mutex
	excluded map[string]eligibility.ExclusionReason
}

func newHarness(ads ...domain.CreativeAd) *harness {
	return &harness{
		src:      &stubSource{ads: ads},
		events:   &stubEvents{},
		delivery: &stubDelivery{},
		profile:  stubProfile{profile: domain.Profile{UserModel: sportsModel}},
	}
}

func (h *harness) build() *Orchestrator {
	now := func() time.Time { return t0 }
	rnd := rand.New(rand.NewSource(1))
	ids := 0
	return NewOrchestrator(Deps{
		Candidates: h.src,
		Events:     h.events,
		Delivery:   h.delivery,
		Profile:    h.profile,
		Lock:       h.lock,
		Rules: eligibility.New(eligibility.Options{
			Now:         now,
			Location:    time.UTC,
			Seen:        h.seen,
			Preferences: h.prefs,
			OnExclude:   h.onExclude,
		}),
		Pacer:     selection.NewPacer(rnd),
		Allocator: selection.NewAllocator(rnd),
		Now:       now,
		NewID: func() string {
			ids++
			return fmt.Sprintf("event-%d", ids)
		},
	})
}

func (h *harness) onExclude(ad domain.CreativeAd, reason eligibility.ExclusionReason) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.excluded == nil {
		h.excluded = make(map[string]eligibility.ExclusionReason)
	}
	h.excluded[ad.CreativeInstanceID] = reason
}

func (h *harness) reasons() map[string]eligibility.ExclusionReason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.excluded
}

func TestServeAd_DeliversAndRecords(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	o := h.build()

	res := o.ServeAd(context.Background())
	require.Equal(t, OutcomeDelivered, res.Outcome)
	require.NoError(t, res.Err)
	assert.Equal(t, TierChild, res.Tier)
	assert.Equal(t, "c1", res.Ad.CreativeInstanceID)

	require.Len(t, h.events.events, 1)
	e := h.events.events[0]
	assert.Equal(t, domain.AdServed, e.Type)
	assert.Equal(t, domain.AdTypeNotification, e.AdType)
	assert.Equal(t, "event-1", e.ID)
	assert.True(t, e.Timestamp.Equal(t0))

	require.NotNil(t, o.LastServed())
	assert.Equal(t, "a1", o.LastServed().AdvertiserID)
}

func TestServeAd_PicksMinimumPriority(t *testing.T) {
	h := newHarness(
		creative("p3", "a3", "sports-tennis", 3),
		creative("p2", "a2", "sports-tennis", 2),
		creative("p4", "a4", "sports-tennis", 4),
	)
	for i := 0; i < 20; i++ {
		h.events.events = nil
		res := h.build().ServeAd(context.Background())
		require.Equal(t, OutcomeDelivered, res.Outcome)
		assert.Equal(t, 2, res.Ad.Priority)
	}
}

func TestServeAd_CandidateFailureIsFailedWithoutShow(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	h.src.err = errors.New("catalog unavailable")

	res := h.build().ServeAd(context.Background())
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorContains(t, res.Err, "catalog unavailable")
	assert.Zero(t, h.delivery.count())
	assert.Empty(t, h.events.events)
}

func TestServeAd_EventLogFailure(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	h.events.readErr = errors.New("disk full")

	res := h.build().ServeAd(context.Background())
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Empty(t, h.src.queries)
	assert.Zero(t, h.delivery.count())
}

func TestServeAd_ProfileFailure(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	h.profile.err = errors.New("profile locked")

	res := h.build().ServeAd(context.Background())
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, h.delivery.count())
}

func TestServeAd_FallbackOrder(t *testing.T) {
	h := newHarness(creative("u1", "a1", domain.UntargetedSegment, 1))

	res := h.build().ServeAd(context.Background())
	require.Equal(t, OutcomeDelivered, res.Outcome)
	assert.Equal(t, TierUntargeted, res.Tier)
	assert.Equal(t, [][]string{
		{"sports-tennis"},
		{"sports"},
		{domain.UntargetedSegment},
	}, h.src.queries)
	assert.Equal(t, 1, h.events.reads, "event log is read once per cycle")
}

func TestServeAd_ParentTier(t *testing.T) {
	h := newHarness(creative("g1", "a1", "sports-golf", 1))

	res := h.build().ServeAd(context.Background())
	require.Equal(t, OutcomeDelivered, res.Outcome)
	assert.Equal(t, TierParent, res.Tier)
	assert.Len(t, h.src.queries, 2)
}

func TestServeAd_EmptyModelGoesStraightToUntargeted(t *testing.T) {
	h := newHarness(creative("u1", "a1", domain.UntargetedSegment, 1))
	h.profile = stubProfile{}

	res := h.build().ServeAd(context.Background())
	require.Equal(t, OutcomeDelivered, res.Outcome)
	assert.Equal(t, [][]string{{domain.UntargetedSegment}}, h.src.queries)
}

func TestServeAd_NothingEligible(t *testing.T) {
	h := newHarness()

	res := h.build().ServeAd(context.Background())
	assert.Equal(t, OutcomeNotServed, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Len(t, h.src.queries, 3)
}

func TestServeAd_DeliveryRefused(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	h.delivery.refuse = true
	o := h.build()

	res := o.ServeAd(context.Background())
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrDeliveryRefused)
	assert.Empty(t, h.events.events)
	assert.Nil(t, o.LastServed())
}

func TestServeAd_RecordFailureStillDelivered(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	h.events.recordErr = errors.New("write failed")

	res := h.build().ServeAd(context.Background())
	assert.Equal(t, OutcomeDelivered, res.Outcome)
	assert.Equal(t, 1, h.delivery.count())
}

func TestServeAd_DropsInvalidCreatives(t *testing.T) {
	broken := creative("bad", "a1", "sports-tennis", 1)
	broken.PTR = 1.5
	h := newHarness(broken, creative("ok", "a2", "sports-tennis", 1))

	res := h.build().ServeAd(context.Background())
	require.Equal(t, OutcomeDelivered, res.Outcome)
	assert.Equal(t, "ok", res.Ad.CreativeInstanceID)
	assert.Equal(t, map[string]eligibility.ExclusionReason{"bad": eligibility.ReasonInvalid}, h.reasons())
}

func TestServeAd_WrappingDaypartReportedInvalid(t *testing.T) {
	night := creative("night", "a1", "sports-tennis", 1)
	night.Dayparts = []domain.Daypart{{StartHour: 22, EndHour: 2}}
	h := newHarness(night)

	res := h.build().ServeAd(context.Background())
	assert.Equal(t, OutcomeNotServed, res.Outcome)
	assert.Equal(t, eligibility.ReasonInvalid, h.reasons()["night"])
}

func TestServeAd_DailyCapExcludes(t *testing.T) {
	ad := creative("c1", "a1", "sports-tennis", 1)
	ad.DailyCap = 1
	h := newHarness(ad)
	h.events.events = []domain.AdEvent{domain.NewAdEvent(ad, domain.AdTypeNotification, domain.AdServed, t0.Add(-time.Hour))}

	res := h.build().ServeAd(context.Background())
	assert.Equal(t, OutcomeNotServed, res.Outcome)
	assert.Zero(t, h.delivery.count())
	// Every tier is tried before giving up.
	assert.Equal(t, [][]string{{"sports-tennis"}, {"sports"}, {"untargeted"}}, h.src.queries)
	assert.Equal(t, eligibility.ReasonDailyCap, h.reasons()["c1"])
}

func TestServeAd_RepeatAdvertiserAcrossCycles(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	o := h.build()

	require.Equal(t, OutcomeDelivered, o.ServeAd(context.Background()).Outcome)
	assert.Equal(t, OutcomeNotServed, o.ServeAd(context.Background()).Outcome)
}

func TestServeAd_RoundRobinRotatesCreatives(t *testing.T) {
	h := newHarness(
		creative("c1", "a1", "sports-tennis", 1),
		creative("c2", "a2", "sports-tennis", 1),
		creative("c3", "a3", "sports-tennis", 1),
	)
	h.seen = eligibility.NewSeenTracker()
	o := h.build()

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		res := o.ServeAd(context.Background())
		require.Equal(t, OutcomeDelivered, res.Outcome)
		seen[res.Ad.CreativeInstanceID] = true
	}
	assert.Len(t, seen, 3)
}

func TestServeAd_LockHeldIsNotServed(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	lock := &stubLock{held: true}
	h.lock = lock

	res := h.build().ServeAd(context.Background())
	assert.Equal(t, OutcomeNotServed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrLockHeld)
	assert.Empty(t, h.src.queries)
	assert.Zero(t, lock.released)
}

func TestServeAd_LockReleased(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	lock := &stubLock{}
	h.lock = lock

	res := h.build().ServeAd(context.Background())
	assert.Equal(t, OutcomeDelivered, res.Outcome)
	assert.Equal(t, 1, lock.released)
}

func TestServeAd_LockError(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	h.lock = &stubLock{err: errors.New("redis down")}

	res := h.build().ServeAd(context.Background())
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

func TestServeAd_CanceledBeforeDelivery(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.build().ServeAd(ctx)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, h.delivery.count())
}

type recordingObserver struct{ results []Result }

func (r *recordingObserver) ObserveCycle(res Result) { r.results = append(r.results, res) }

func TestServeAd_NotifiesObserver(t *testing.T) {
	h := newHarness(creative("c1", "a1", "sports-tennis", 1))
	obs := &recordingObserver{}
	o := h.build()
	o.deps.Observer = obs

	o.ServeAd(context.Background())
	require.Len(t, obs.results, 1)
	assert.Equal(t, OutcomeDelivered, obs.results[0].Outcome)
	assert.True(t, obs.results[0].Started.Equal(t0))
}
