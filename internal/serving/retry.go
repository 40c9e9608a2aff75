package serving

import (
	"fmt"
	"time"
)

// Step is the scheduler transition whose delay is being looked up.
type Step int

const (
	StepColdStart Step = iota
	StepOverdue
	StepDelivered
	StepNotServed
	StepFailed
)

func (s Step) String() string {
	switch s {
	case StepColdStart:
		return "cold_start"
	case StepOverdue:
		return "overdue"
	case StepDelivered:
		return "delivered"
	case StepNotServed:
		return "not_served"
	case StepFailed:
		return "failed"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

const (
	DefaultColdStartDelay    = 2 * time.Minute
	DefaultShortRetryDelay   = 1 * time.Minute
	DefaultFailureRetryDelay = 2 * time.Minute
	DefaultCycleTimeout      = 30 * time.Second
)

// Config drives the scheduler cadence.
type Config struct {
	AdsPerHour        int
	ColdStartDelay    time.Duration
	ShortRetryDelay   time.Duration
	FailureRetryDelay time.Duration
	// RetryFailedCycles schedules a failure retry after Failed; otherwise the normal cadence.
	RetryFailedCycles bool
	// RetryWhenNoAds schedules a failure retry after NotServed (mobile behaviour).
	RetryWhenNoAds bool
	CycleTimeout   time.Duration
}

// DefaultConfig returns the desktop defaults at 10 ads per hour.
func DefaultConfig() Config {
	return Config{
		AdsPerHour:        10,
		ColdStartDelay:    DefaultColdStartDelay,
		ShortRetryDelay:   DefaultShortRetryDelay,
		FailureRetryDelay: DefaultFailureRetryDelay,
		RetryFailedCycles: true,
		CycleTimeout:      DefaultCycleTimeout,
	}
}

// RetryTable maps every step to its delay.
type RetryTable struct {
	delays map[Step]time.Duration
}

// NewRetryTable builds the table. Zero delays take their defaults.
func NewRetryTable(cfg Config) (RetryTable, error) {
	if cfg.AdsPerHour <= 0 {
		return RetryTable{}, ErrServingDisabled
	}
	if cfg.ColdStartDelay <= 0 {
		cfg.ColdStartDelay = DefaultColdStartDelay
	}
	if cfg.ShortRetryDelay <= 0 {
		cfg.ShortRetryDelay = DefaultShortRetryDelay
	}
	if cfg.FailureRetryDelay <= 0 {
		cfg.FailureRetryDelay = DefaultFailureRetryDelay
	}

	normal := time.Hour / time.Duration(cfg.AdsPerHour)
	t := RetryTable{delays: map[Step]time.Duration{
		StepColdStart: cfg.ColdStartDelay,
		StepOverdue:   cfg.ShortRetryDelay,
		StepDelivered: normal,
		StepNotServed: normal,
		StepFailed:    normal,
	}}
	if cfg.RetryWhenNoAds {
		t.delays[StepNotServed] = cfg.FailureRetryDelay
	}
	if cfg.RetryFailedCycles {
		t.delays[StepFailed] = cfg.FailureRetryDelay
	}
	return t, nil
}

// Delay returns the delay for step.
func (t RetryTable) Delay(step Step) time.Duration {
	return t.delays[step]
}

// StepFor maps a cycle outcome to its scheduling step.
func StepFor(o Outcome) Step {
	switch o {
	case OutcomeDelivered:
		return StepDelivered
	case OutcomeNotServed:
		return StepNotServed
	}
	return StepFailed
}
