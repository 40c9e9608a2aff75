package eligibility

// ExclusionReason names the rule that removed a creative.
type ExclusionReason string

const (
	ReasonInvalid          ExclusionReason = "invalid"
	ReasonValidityWindow   ExclusionReason = "validity_window"
	ReasonRepeatAdvertiser ExclusionReason = "repeat_advertiser"
	ReasonDaypart          ExclusionReason = "daypart"
	ReasonGeo              ExclusionReason = "geo"
	ReasonAdsPerHour       ExclusionReason = "ads_per_hour"
	ReasonAdsPerDay        ExclusionReason = "ads_per_day"
	ReasonTotalMax         ExclusionReason = "total_max"
	ReasonPerDay           ExclusionReason = "per_day"
	ReasonPerWeek          ExclusionReason = "per_week"
	ReasonPerMonth         ExclusionReason = "per_month"
	ReasonDailyCap         ExclusionReason = "daily_cap"
	ReasonAntiTargeting    ExclusionReason = "anti_targeting"
	ReasonOptedOut         ExclusionReason = "opted_out"
	ReasonFlagged          ExclusionReason = "flagged"
)

// Reasons lists every reason, used to pre-register metric label values.
var Reasons = []ExclusionReason{
	ReasonInvalid, ReasonValidityWindow, ReasonRepeatAdvertiser, ReasonDaypart, ReasonGeo,
	ReasonAdsPerHour, ReasonAdsPerDay, ReasonTotalMax, ReasonPerDay, ReasonPerWeek,
	ReasonPerMonth, ReasonDailyCap, ReasonAntiTargeting, ReasonOptedOut, ReasonFlagged,
}
