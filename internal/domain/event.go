package domain

import "time"

// AdType names the placement an event log partition belongs to.
type AdType string

// AdTypeNotification is the only placement the serving core drives today.
const AdTypeNotification AdType = "ad_notification"

// AdEventType enumerates what happened to a creative.
type AdEventType string

const (
	AdServed    AdEventType = "served"
	AdViewed    AdEventType = "viewed"
	AdClicked   AdEventType = "clicked"
	AdDismissed AdEventType = "dismissed"
	AdTimedOut  AdEventType = "timed_out"
)

// IsValid reports whether t is one of the known event types.
func (t AdEventType) IsValid() bool {
	switch t {
	case AdServed, AdViewed, AdClicked, AdDismissed, AdTimedOut:
		return true
	}
	return false
}

// AdEvent is one append-only record in the ad event log.
type AdEvent struct {
	ID                 string      `json:"id" db:"id"`
	AdType             AdType      `json:"ad_type" db:"ad_type"`
	CreativeInstanceID string      `json:"creative_instance_id" db:"creative_instance_id"`
	CreativeSetID      string      `json:"creative_set_id" db:"creative_set_id"`
	CampaignID         string      `json:"campaign_id" db:"campaign_id"`
	AdvertiserID       string      `json:"advertiser_id" db:"advertiser_id"`
	Segment            string      `json:"segment" db:"segment"`
	Type               AdEventType `json:"event_type" db:"event_type"`
	Timestamp          time.Time   `json:"timestamp" db:"created_at"`
}

// NewAdEvent builds an event for ad. The caller assigns ID.
func NewAdEvent(ad CreativeAd, adType AdType, t AdEventType, at time.Time) AdEvent {
	return AdEvent{
		AdType:             adType,
		CreativeInstanceID: ad.CreativeInstanceID,
		CreativeSetID:      ad.CreativeSetID,
		CampaignID:         ad.CampaignID,
		AdvertiserID:       ad.AdvertiserID,
		Segment:            ad.Segment,
		Type:               t,
		Timestamp:          at,
	}
}
