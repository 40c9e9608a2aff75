// Package eligibility applies the exclusion rules that decide whether a
// creative may be shown right now.
//
// Rules, cheapest first:
//   - the creative must be inside its validity window
//   - the advertiser must differ from the last delivered ad
//   - a daypart, when present, must cover the local weekday and hour
//   - geo targets, when present, must include the user's region
//   - the global hourly and daily serve caps must not be reached
//   - per-creative caps (total, 24h, 7d, 30d, calendar day) must not be reached
//   - neither the segment nor the target domain may be anti-targeted
//
// Survivors then pass through a round-robin that prefers creatives, then
// advertisers, not served since the last reset.
package eligibility
