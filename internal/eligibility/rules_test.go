package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adserving/internal/antitargeting"
	"github.com/ignite/adserving/internal/domain"
)

// Monday 2026-10-19 14:00 UTC.
var now = time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)

func testAd(id, advertiser string) domain.CreativeAd {
	return domain.CreativeAd{
		CreativeInstanceID: id,
		CreativeSetID:      "set-" + id,
		CampaignID:         "camp-" + id,
		AdvertiserID:       advertiser,
		Segment:            "technology & computing-computing",
		Priority:           1,
		PTR:                1,
		TargetURL:          "https://brand.test/landing",
	}
}

func served(ad domain.CreativeAd, at time.Time) domain.AdEvent {
	return domain.NewAdEvent(ad, domain.AdTypeNotification, domain.AdServed, at)
}

func newRules(opts Options) (*Rules, *[]ExclusionReason) {
	var reasons []ExclusionReason
	opts.Now = func() time.Time { return now }
	opts.Location = time.UTC
	opts.OnExclude = func(_ domain.CreativeAd, r ExclusionReason) { reasons = append(reasons, r) }
	return New(opts), &reasons
}

func ids(ads []domain.CreativeAd) []string {
	out := make([]string, 0, len(ads))
	for _, a := range ads {
		out = append(out, a.CreativeInstanceID)
	}
	return out
}

func TestFilter_NoRulesHit(t *testing.T) {
	r, reasons := newRules(Options{})
	got := r.Filter([]domain.CreativeAd{testAd("a", "adv1"), testAd("b", "adv2")}, Input{})
	assert.Equal(t, []string{"a", "b"}, ids(got))
	assert.Empty(t, *reasons)
}

func TestFilter_Empty(t *testing.T) {
	r, _ := newRules(Options{})
	assert.Nil(t, r.Filter(nil, Input{}))
}

func TestFilter_DailyCap(t *testing.T) {
	ad := testAd("a", "adv1")
	ad.DailyCap = 2
	r, reasons := newRules(Options{})

	oneToday := []domain.AdEvent{served(ad, now.Add(-time.Hour))}
	assert.Len(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: oneToday}), 1)

	twoToday := append(oneToday, served(ad, now.Add(-2*time.Hour)))
	assert.Empty(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: twoToday}))
	assert.Equal(t, []ExclusionReason{ReasonDailyCap}, *reasons)
}

func TestFilter_DailyCapUsesCalendarDay(t *testing.T) {
	ad := testAd("a", "adv1")
	ad.DailyCap = 1
	r, _ := newRules(Options{})

	// Served yesterday evening, within 24h but not today.
	events := []domain.AdEvent{served(ad, time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC))}
	assert.Len(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: events}), 1)
}

func TestFilter_PeriodCaps(t *testing.T) {
	tests := []struct {
		name   string
		set    func(*domain.CreativeAd)
		events []time.Duration
		want   ExclusionReason
	}{
		{"per day", func(a *domain.CreativeAd) { a.PerDay = 2 }, []time.Duration{-time.Hour, -20 * time.Hour}, ReasonPerDay},
		{"per week", func(a *domain.CreativeAd) { a.PerWeek = 2 }, []time.Duration{-2 * day, -6 * day}, ReasonPerWeek},
		{"per month", func(a *domain.CreativeAd) { a.PerMonth = 2 }, []time.Duration{-10 * day, -29 * day}, ReasonPerMonth},
		{"total max", func(a *domain.CreativeAd) { a.TotalMax = 2 }, []time.Duration{-40 * day, -90 * day}, ReasonTotalMax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad := testAd("a", "adv1")
			tt.set(&ad)
			var events []domain.AdEvent
			for _, d := range tt.events {
				events = append(events, served(ad, now.Add(d)))
			}
			r, reasons := newRules(Options{})
			assert.Empty(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: events}))
			assert.Equal(t, []ExclusionReason{tt.want}, *reasons)
		})
	}
}

func TestFilter_PeriodCapWindowExpired(t *testing.T) {
	ad := testAd("a", "adv1")
	ad.PerDay = 1
	r, _ := newRules(Options{})
	events := []domain.AdEvent{served(ad, now.Add(-25*time.Hour))}
	assert.Len(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: events}), 1)
}

func TestFilter_TotalMaxCountsFromStart(t *testing.T) {
	ad := testAd("a", "adv1")
	ad.TotalMax = 1
	ad.StartAt = now.Add(-time.Hour)
	r, _ := newRules(Options{})
	events := []domain.AdEvent{served(ad, now.Add(-2*time.Hour))}
	assert.Len(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: events}), 1)
}

func TestFilter_OnlyServedEventsCount(t *testing.T) {
	ad := testAd("a", "adv1")
	ad.PerDay = 1
	r, _ := newRules(Options{})
	events := []domain.AdEvent{
		domain.NewAdEvent(ad, domain.AdTypeNotification, domain.AdViewed, now.Add(-time.Minute)),
		domain.NewAdEvent(ad, domain.AdTypeNotification, domain.AdClicked, now.Add(-time.Minute)),
	}
	assert.Len(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: events}), 1)
}

func TestFilter_GlobalCaps(t *testing.T) {
	other := testAd("other", "adv9")
	ad := testAd("a", "adv1")

	r, reasons := newRules(Options{Caps: Caps{AdsPerHour: 2, AdsPerDay: 10}})
	events := []domain.AdEvent{served(other, now.Add(-10*time.Minute)), served(other, now.Add(-50*time.Minute))}
	assert.Empty(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: events}))
	assert.Equal(t, []ExclusionReason{ReasonAdsPerHour}, *reasons)

	r, reasons = newRules(Options{Caps: Caps{AdsPerHour: 5, AdsPerDay: 2}})
	events = []domain.AdEvent{served(other, now.Add(-3*time.Hour)), served(other, now.Add(-5*time.Hour))}
	assert.Empty(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: events}))
	assert.Equal(t, []ExclusionReason{ReasonAdsPerDay}, *reasons)
}

func TestFilter_WindowLowerEdgeExpired(t *testing.T) {
	other := testAd("other", "adv9")
	ad := testAd("a", "adv1")

	r, reasons := newRules(Options{Caps: Caps{AdsPerHour: 1}})
	exactlyOneHour := []domain.AdEvent{served(other, now.Add(-time.Hour))}
	assert.Len(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: exactlyOneHour}), 1)
	assert.Empty(t, *reasons)

	justInside := []domain.AdEvent{served(other, now.Add(-time.Hour+time.Second))}
	assert.Empty(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: justInside}))
	assert.Equal(t, []ExclusionReason{ReasonAdsPerHour}, *reasons)

	ad.PerDay = 1
	r, _ = newRules(Options{})
	exactlyOneDay := []domain.AdEvent{served(ad, now.Add(-day))}
	assert.Len(t, r.Filter([]domain.CreativeAd{ad}, Input{Events: exactlyOneDay}), 1)
}

func TestFilter_Invalid(t *testing.T) {
	broken := testAd("broken", "adv1")
	broken.Priority = 0
	wrapping := testAd("wrapping", "adv2")
	wrapping.Dayparts = []domain.Daypart{{StartHour: 22, EndHour: 2}}
	ok := testAd("ok", "adv3")

	r, reasons := newRules(Options{Caps: Caps{AdsPerHour: 1}})
	got := r.Filter([]domain.CreativeAd{broken, wrapping, ok}, Input{})
	assert.Equal(t, []string{"ok"}, ids(got))
	assert.Equal(t, []ExclusionReason{ReasonInvalid, ReasonInvalid}, *reasons)

	// Invalid creatives keep their own reason when a global cap also applies.
	*reasons = nil
	events := []domain.AdEvent{served(ok, now.Add(-time.Minute))}
	assert.Empty(t, r.Filter([]domain.CreativeAd{broken, ok}, Input{Events: events}))
	assert.Equal(t, []ExclusionReason{ReasonInvalid, ReasonAdsPerHour}, *reasons)
}

type fakePreferences struct {
	optedOut map[string]bool
	flagged  map[string]bool
}

func (p fakePreferences) IsOptedOut(segment string) bool { return p.optedOut[segment] }
func (p fakePreferences) IsFlagged(id string) bool       { return p.flagged[id] }

func TestFilter_Preferences(t *testing.T) {
	optedOut := testAd("out", "adv1")
	optedOut.Segment = "sports-tennis"
	flagged := testAd("flagged", "adv2")
	kept := testAd("kept", "adv3")

	prefs := fakePreferences{
		optedOut: map[string]bool{"sports-tennis": true},
		flagged:  map[string]bool{flagged.CreativeSetID: true},
	}
	r, reasons := newRules(Options{Preferences: prefs})
	got := r.Filter([]domain.CreativeAd{optedOut, flagged, kept}, Input{})
	assert.Equal(t, []string{"kept"}, ids(got))
	assert.Equal(t, []ExclusionReason{ReasonOptedOut, ReasonFlagged}, *reasons)
}

func TestFilter_RepeatAdvertiser(t *testing.T) {
	last := testAd("prev", "adv1")
	r, reasons := newRules(Options{})
	got := r.Filter([]domain.CreativeAd{testAd("a", "adv1"), testAd("b", "adv2")}, Input{LastServed: &last})
	assert.Equal(t, []string{"b"}, ids(got))
	assert.Equal(t, []ExclusionReason{ReasonRepeatAdvertiser}, *reasons)
}

func TestFilter_ValidityWindow(t *testing.T) {
	expired := testAd("expired", "adv1")
	expired.EndAt = now.Add(-time.Minute)
	future := testAd("future", "adv2")
	future.StartAt = now.Add(time.Hour)
	live := testAd("live", "adv3")
	live.StartAt = now.Add(-time.Hour)
	live.EndAt = now.Add(time.Hour)

	r, reasons := newRules(Options{})
	got := r.Filter([]domain.CreativeAd{expired, future, live}, Input{})
	assert.Equal(t, []string{"live"}, ids(got))
	assert.Equal(t, []ExclusionReason{ReasonValidityWindow, ReasonValidityWindow}, *reasons)
}

func TestFilter_Daypart(t *testing.T) {
	afternoon := testAd("afternoon", "adv1")
	afternoon.Dayparts = []domain.Daypart{{Weekdays: []time.Weekday{time.Monday}, StartHour: 12, EndHour: 18}}
	weekend := testAd("weekend", "adv2")
	weekend.Dayparts = []domain.Daypart{{Weekdays: []time.Weekday{time.Saturday, time.Sunday}, StartHour: 0, EndHour: 24}}

	r, reasons := newRules(Options{})
	got := r.Filter([]domain.CreativeAd{afternoon, weekend}, Input{})
	assert.Equal(t, []string{"afternoon"}, ids(got))
	assert.Equal(t, []ExclusionReason{ReasonDaypart}, *reasons)
}

func TestFilter_Geo(t *testing.T) {
	us := testAd("us", "adv1")
	us.GeoTargets = []string{"US"}
	ca := testAd("ca", "adv2")
	ca.GeoTargets = []string{"us-ca"}
	de := testAd("de", "adv3")
	de.GeoTargets = []string{"DE"}
	anywhere := testAd("anywhere", "adv4")

	r, _ := newRules(Options{})
	got := r.Filter([]domain.CreativeAd{us, ca, de, anywhere}, Input{Region: "US-CA"})
	assert.Equal(t, []string{"us", "ca", "anywhere"}, ids(got))

	got = r.Filter([]domain.CreativeAd{us, anywhere}, Input{})
	assert.Equal(t, []string{"anywhere"}, ids(got))
}

func TestFilter_AntiTargeting(t *testing.T) {
	list := antitargeting.New(antitargeting.Document{Sites: map[string][]string{
		"news.test": {"technology & computing", "casino.test"},
	}})
	bySegment := testAd("seg", "adv1")
	byDomain := testAd("dom", "adv2")
	byDomain.Segment = "travel"
	byDomain.TargetURL = "https://www.casino.test/"
	clean := testAd("clean", "adv3")
	clean.Segment = "travel"

	r, reasons := newRules(Options{AntiTargeting: list})
	got := r.Filter([]domain.CreativeAd{bySegment, byDomain, clean}, Input{BrowsingHistory: []string{"https://news.test/x"}})
	assert.Equal(t, []string{"clean"}, ids(got))
	assert.Equal(t, []ExclusionReason{ReasonAntiTargeting, ReasonAntiTargeting}, *reasons)

	got = r.Filter([]domain.CreativeAd{bySegment, byDomain, clean}, Input{})
	assert.Len(t, got, 3)
}

func TestFilter_CheapRulesFirst(t *testing.T) {
	ad := testAd("a", "adv1")
	ad.EndAt = now.Add(-time.Minute)
	ad.PerDay = 1
	r, reasons := newRules(Options{})
	r.Filter([]domain.CreativeAd{ad}, Input{Events: []domain.AdEvent{served(ad, now.Add(-time.Minute))}})
	require.Len(t, *reasons, 1)
	assert.Equal(t, ReasonValidityWindow, (*reasons)[0])
}

func TestSeenTracker_PrefersUnseenCreatives(t *testing.T) {
	a, b := testAd("a", "adv1"), testAd("b", "adv2")
	r, _ := newRules(Options{Seen: NewSeenTracker()})

	got := r.Filter([]domain.CreativeAd{a, b}, Input{Events: []domain.AdEvent{served(a, now.Add(-time.Minute))}})
	assert.Equal(t, []string{"b"}, ids(got))
}

func TestSeenTracker_ResetsWhenAllSeen(t *testing.T) {
	a, b := testAd("a", "adv1"), testAd("b", "adv2")
	seen := NewSeenTracker()
	r, _ := newRules(Options{Seen: seen})
	events := []domain.AdEvent{served(a, now.Add(-2*time.Minute)), served(b, now.Add(-time.Minute))}

	got := r.Filter([]domain.CreativeAd{a, b}, Input{Events: events})
	assert.Equal(t, []string{"a", "b"}, ids(got))

	// After the reset, earlier serves no longer count as seen.
	later := append(events, served(b, now))
	got = r.Filter([]domain.CreativeAd{a, b}, Input{Events: later})
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestSeenTracker_PrefersUnseenAdvertisers(t *testing.T) {
	a1, a2, b1 := testAd("a1", "advA"), testAd("a2", "advA"), testAd("b1", "advB")
	r, _ := newRules(Options{Seen: NewSeenTracker()})

	// a1 served: creatives a2 and b1 unseen; advertiser advA seen, so b1 wins.
	got := r.Filter([]domain.CreativeAd{a1, a2, b1}, Input{Events: []domain.AdEvent{served(a1, now.Add(-time.Minute))}})
	assert.Equal(t, []string{"b1"}, ids(got))
}

func TestSeenTracker_AdvertiserResetKeepsCreativeStage(t *testing.T) {
	a1, a2 := testAd("a1", "advA"), testAd("a2", "advA")
	r, _ := newRules(Options{Seen: NewSeenTracker()})

	got := r.Filter([]domain.CreativeAd{a1, a2}, Input{Events: []domain.AdEvent{served(a1, now.Add(-time.Minute))}})
	assert.Equal(t, []string{"a2"}, ids(got))
}

func TestGeoAllows(t *testing.T) {
	assert.True(t, geoAllows(nil, ""))
	assert.True(t, geoAllows([]string{"US"}, "us"))
	assert.False(t, geoAllows([]string{"US"}, "USA"))
	assert.False(t, geoAllows([]string{"US"}, ""))
}
