package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validAd() CreativeAd {
	return CreativeAd{
		CreativeInstanceID: "ci-1",
		CreativeSetID:      "cs-1",
		CampaignID:         "camp-1",
		AdvertiserID:       "adv-1",
		Segment:            "technology & computing-software",
		Priority:           1,
		PTR:                0.5,
	}
}

func TestCreativeAd_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *CreativeAd)
		wantErr bool
	}{
		{name: "valid", mutate: func(a *CreativeAd) {}},
		{name: "missing instance id", mutate: func(a *CreativeAd) { a.CreativeInstanceID = "" }, wantErr: true},
		{name: "missing advertiser", mutate: func(a *CreativeAd) { a.AdvertiserID = "" }, wantErr: true},
		{name: "missing segment", mutate: func(a *CreativeAd) { a.Segment = "" }, wantErr: true},
		{name: "zero priority", mutate: func(a *CreativeAd) { a.Priority = 0 }, wantErr: true},
		{name: "ptr above one", mutate: func(a *CreativeAd) { a.PTR = 1.01 }, wantErr: true},
		{name: "negative cap", mutate: func(a *CreativeAd) { a.PerWeek = -1 }, wantErr: true},
		{name: "inverted window", mutate: func(a *CreativeAd) {
			a.StartAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
			a.EndAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		}, wantErr: true},
		{name: "full day daypart", mutate: func(a *CreativeAd) { a.Dayparts = []Daypart{{StartHour: 0, EndHour: 24}} }},
		{name: "daypart wraps midnight", mutate: func(a *CreativeAd) { a.Dayparts = []Daypart{{StartHour: 22, EndHour: 2}} }, wantErr: true},
		{name: "empty daypart", mutate: func(a *CreativeAd) { a.Dayparts = []Daypart{{StartHour: 9, EndHour: 9}} }, wantErr: true},
		{name: "daypart hour out of range", mutate: func(a *CreativeAd) { a.Dayparts = []Daypart{{StartHour: 20, EndHour: 25}} }, wantErr: true},
		{name: "negative start hour", mutate: func(a *CreativeAd) { a.Dayparts = []Daypart{{StartHour: -1, EndHour: 5}} }, wantErr: true},
		{name: "bad weekday", mutate: func(a *CreativeAd) {
			a.Dayparts = []Daypart{{Weekdays: []time.Weekday{7}, StartHour: 9, EndHour: 17}}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad := validAd()
			tt.mutate(&ad)
			err := ad.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidAd), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreativeAd_IsActiveAt(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	ad := validAd()
	ad.StartAt, ad.EndAt = start, end

	assert.False(t, ad.IsActiveAt(start.Add(-time.Second)))
	assert.True(t, ad.IsActiveAt(start))
	assert.True(t, ad.IsActiveAt(end))
	assert.False(t, ad.IsActiveAt(end.Add(time.Second)))

	open := validAd()
	assert.True(t, open.IsActiveAt(start))
}

func TestDaypart_Covers(t *testing.T) {
	// 2026-10-19 is a Monday.
	monday10 := time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)

	assert.True(t, Daypart{StartHour: 9, EndHour: 11}.Covers(monday10))
	assert.False(t, Daypart{StartHour: 11, EndHour: 12}.Covers(monday10))
	assert.False(t, Daypart{StartHour: 9, EndHour: 10}.Covers(monday10), "end hour is exclusive")
	assert.True(t, Daypart{Weekdays: []time.Weekday{time.Monday}, StartHour: 0, EndHour: 24}.Covers(monday10))
	assert.False(t, Daypart{Weekdays: []time.Weekday{time.Sunday, time.Saturday}, StartHour: 0, EndHour: 24}.Covers(monday10))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "brave.com", HostOf("https://www.Brave.com/download?x=1"))
	assert.Equal(t, "example.org", HostOf("example.org"))
	assert.Equal(t, "", HostOf(""))
	ad := validAd()
	ad.TargetURL = "http://shop.example.com/a"
	assert.Equal(t, "shop.example.com", ad.TargetDomain())
}

func TestAdEventType_IsValid(t *testing.T) {
	assert.True(t, AdServed.IsValid())
	assert.True(t, AdTimedOut.IsValid())
	assert.False(t, AdEventType("opened").IsValid())
}
