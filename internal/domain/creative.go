package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// UntargetedSegment is the sentinel segment creatives register against when
// they should be eligible without any interest match.
const UntargetedSegment = "untargeted"

// SegmentSeparator splits a hierarchical segment into parent and child.
const SegmentSeparator = "-"

// ErrInvalidAd is returned by CreativeAd.Validate for structurally broken creatives.
var ErrInvalidAd = errors.New("invalid creative ad")

// Daypart restricts delivery to some weekdays and an hour range.
// StartHour is inclusive, EndHour exclusive; an empty Weekdays list means every day.
type Daypart struct {
	Weekdays  []time.Weekday `json:"weekdays" yaml:"weekdays"`
	StartHour int            `json:"start_hour" yaml:"start_hour"`
	EndHour   int            `json:"end_hour" yaml:"end_hour"`
}

// Validate rejects hour ranges Covers can never match, including ranges
// that wrap past midnight. Split those into two dayparts.
func (d Daypart) Validate() error {
	switch {
	case d.StartHour < 0 || d.StartHour > 23:
		return fmt.Errorf("start_hour %d outside 0..23", d.StartHour)
	case d.EndHour < 1 || d.EndHour > 24:
		return fmt.Errorf("end_hour %d outside 1..24", d.EndHour)
	case d.StartHour >= d.EndHour:
		return fmt.Errorf("start_hour %d not before end_hour %d", d.StartHour, d.EndHour)
	}
	for _, wd := range d.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("weekday %d outside 0..6", wd)
		}
	}
	return nil
}

// Covers reports whether t (already in the user's local zone) falls inside the daypart.
func (d Daypart) Covers(t time.Time) bool {
	if len(d.Weekdays) > 0 {
		found := false
		for _, wd := range d.Weekdays {
			if wd == t.Weekday() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	h := t.Hour()
	return h >= d.StartHour && h < d.EndHour
}

// CreativeAd is a single advertisement with its targeting and capping metadata.
// Zero caps mean "no cap".
type CreativeAd struct {
	CreativeInstanceID string `json:"creative_instance_id" db:"creative_instance_id"`
	CreativeSetID      string `json:"creative_set_id" db:"creative_set_id"`
	CampaignID         string `json:"campaign_id" db:"campaign_id"`
	AdvertiserID       string `json:"advertiser_id" db:"advertiser_id"`
	Segment            string `json:"segment" db:"segment"`

	Priority int     `json:"priority" db:"priority"`
	PTR      float64 `json:"ptr" db:"ptr"`

	DailyCap int `json:"daily_cap" db:"daily_cap"`
	PerDay   int `json:"per_day" db:"per_day"`
	PerWeek  int `json:"per_week" db:"per_week"`
	PerMonth int `json:"per_month" db:"per_month"`
	TotalMax int `json:"total_max" db:"total_max"`

	StartAt time.Time `json:"start_at" db:"start_at"`
	EndAt   time.Time `json:"end_at" db:"end_at"`

	GeoTargets []string  `json:"geo_targets,omitempty" db:"geo_targets"`
	Dayparts   []Daypart `json:"dayparts,omitempty" db:"dayparts"`

	Title     string `json:"title" db:"title"`
	Body      string `json:"body" db:"body"`
	TargetURL string `json:"target_url" db:"target_url"`
}

// Validate checks the structural invariants every candidate must satisfy.
func (a CreativeAd) Validate() error {
	switch {
	case a.CreativeInstanceID == "":
		return fmt.Errorf("%w: missing creative_instance_id", ErrInvalidAd)
	case a.CreativeSetID == "":
		return fmt.Errorf("%w: %s missing creative_set_id", ErrInvalidAd, a.CreativeInstanceID)
	case a.CampaignID == "":
		return fmt.Errorf("%w: %s missing campaign_id", ErrInvalidAd, a.CreativeInstanceID)
	case a.AdvertiserID == "":
		return fmt.Errorf("%w: %s missing advertiser_id", ErrInvalidAd, a.CreativeInstanceID)
	case a.Segment == "":
		return fmt.Errorf("%w: %s missing segment", ErrInvalidAd, a.CreativeInstanceID)
	case a.Priority < 1:
		return fmt.Errorf("%w: %s priority %d < 1", ErrInvalidAd, a.CreativeInstanceID, a.Priority)
	case a.PTR < 0 || a.PTR > 1:
		return fmt.Errorf("%w: %s ptr %v outside [0,1]", ErrInvalidAd, a.CreativeInstanceID, a.PTR)
	case a.DailyCap < 0 || a.PerDay < 0 || a.PerWeek < 0 || a.PerMonth < 0 || a.TotalMax < 0:
		return fmt.Errorf("%w: %s negative frequency cap", ErrInvalidAd, a.CreativeInstanceID)
	case !a.EndAt.IsZero() && a.EndAt.Before(a.StartAt):
		return fmt.Errorf("%w: %s end_at before start_at", ErrInvalidAd, a.CreativeInstanceID)
	}
	for i, dp := range a.Dayparts {
		if err := dp.Validate(); err != nil {
			return fmt.Errorf("%w: %s daypart %d: %v", ErrInvalidAd, a.CreativeInstanceID, i, err)
		}
	}
	return nil
}

// IsActiveAt reports whether t lies inside [StartAt, EndAt]. A zero bound is open.
func (a CreativeAd) IsActiveAt(t time.Time) bool {
	if !a.StartAt.IsZero() && t.Before(a.StartAt) {
		return false
	}
	if !a.EndAt.IsZero() && t.After(a.EndAt) {
		return false
	}
	return true
}

// TargetDomain returns the lowercased host of TargetURL without a leading "www.".
func (a CreativeAd) TargetDomain() string {
	return HostOf(a.TargetURL)
}

// HostOf extracts a normalized host from a URL or bare domain.
func HostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
