package domain

import "time"

// ServingState is the cross-cycle state that survives restarts.
// A zero NextInterval means nothing has been persisted yet (cold start).
type ServingState struct {
	NextInterval time.Time   `json:"next_interval"`
	LastServedAd *CreativeAd `json:"last_served_ad,omitempty"`
}

// IsCold reports whether no serve attempt was ever scheduled.
func (s ServingState) IsCold() bool {
	return s.NextInterval.IsZero()
}
