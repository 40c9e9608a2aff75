package serving

import "errors"

var (
	// ErrServingDisabled is returned when ads_per_hour is not positive.
	ErrServingDisabled = errors.New("serving disabled: ads_per_hour must be positive")
	// ErrDeliveryRefused is reported when Delivery declines to show the ad.
	ErrDeliveryRefused = errors.New("delivery refused the ad")
	// ErrLockHeld is reported when another replica is serving the same profile.
	ErrLockHeld = errors.New("cycle lock held elsewhere")
	// ErrCycleInFlight is returned by ServeNow while a cycle is running.
	ErrCycleInFlight = errors.New("serving cycle already in flight")
)
