package eligibility

import (
	"time"

	"github.com/ignite/adserving/internal/domain"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
)

// history indexes served events for cap arithmetic.
type history struct {
	all        []time.Time
	byCreative map[string][]time.Time
}

func newHistory(events []domain.AdEvent) history {
	h := history{byCreative: make(map[string][]time.Time)}
	for _, e := range events {
		if e.Type != domain.AdServed {
			continue
		}
		h.all = append(h.all, e.Timestamp)
		h.byCreative[e.CreativeInstanceID] = append(h.byCreative[e.CreativeInstanceID], e.Timestamp)
	}
	return h
}

// countSince counts timestamps strictly after since, so an event exactly one
// window old has left the window.
func countSince(ts []time.Time, since time.Time) int {
	n := 0
	for _, t := range ts {
		if t.After(since) {
			n++
		}
	}
	return n
}

// countFrom counts timestamps at or after from.
func countFrom(ts []time.Time, from time.Time) int {
	n := 0
	for _, t := range ts {
		if !t.Before(from) {
			n++
		}
	}
	return n
}

// countSameDay counts timestamps on the same calendar day as now in loc.
func countSameDay(ts []time.Time, now time.Time, loc *time.Location) int {
	local := now.In(loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	n := 0
	for _, t := range ts {
		if !t.Before(start) && t.Before(end) {
			n++
		}
	}
	return n
}

// reached reports whether a cap is set and count has hit it.
func reached(count, limit int) bool {
	return limit > 0 && count >= limit
}
