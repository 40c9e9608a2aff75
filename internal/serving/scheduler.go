package serving

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/pkg/logger"
)

// State is the scheduler's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateServing   State = "serving"
)

// Server runs a cycle and exposes the last served ad for persistence.
// *Orchestrator implements it.
type Server interface {
	ServeAd(ctx context.Context) Result
	LastServed() *domain.CreativeAd
	SetLastServed(ad *domain.CreativeAd)
}

// Status is a snapshot for the admin API.
type Status struct {
	State        State              `json:"state"`
	NextInterval *time.Time         `json:"next_interval,omitempty"`
	LastOutcome  Outcome            `json:"last_outcome,omitempty"`
	LastTier     string             `json:"last_tier,omitempty"`
	LastError    string             `json:"last_error,omitempty"`
	LastCycleAt  *time.Time         `json:"last_cycle_at,omitempty"`
	LastServed   *domain.CreativeAd `json:"last_served_ad,omitempty"`
}

// Scheduler drives serving cycles on a timer.
type Scheduler struct {
	server       Server
	store        StateStore
	clock        clockwork.Clock
	table        RetryTable
	tableErr     error
	cycleTimeout time.Duration

	mu           sync.Mutex
	state        State
	gen          uint64
	timer        clockwork.Timer
	cancel       context.CancelFunc
	nextInterval time.Time
	last         *Result
}

// NewScheduler creates an idle scheduler. A nil clock uses the wall clock.
// When cfg disables serving, MaybeServe and ServeNow return ErrServingDisabled.
func NewScheduler(server Server, store StateStore, clock clockwork.Clock, cfg Config) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}
	table, err := NewRetryTable(cfg)
	return &Scheduler{
		server:       server,
		store:        store,
		clock:        clock,
		table:        table,
		tableErr:     err,
		cycleTimeout: cfg.CycleTimeout,
		state:        StateIdle,
	}
}

// MaybeServe arms the next cycle from persisted state. It is a no-op unless Idle.
func (s *Scheduler) MaybeServe(ctx context.Context) error {
	if s.tableErr != nil {
		return s.tableErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return nil
	}

	st := s.restore(ctx)
	now := s.clock.Now()

	var delay time.Duration
	switch {
	case st.IsCold():
		delay = s.table.Delay(StepColdStart)
	case !now.Before(st.NextInterval):
		delay = s.table.Delay(StepOverdue)
	default:
		delay = st.NextInterval.Sub(now)
	}
	s.arm(ctx, delay)
	log.Printf("[Scheduler] Serving started, next cycle in %s", delay)
	return nil
}

// StopServing cancels the pending timer and any in-flight cycle. Safe from any state.
func (s *Scheduler) StopServing() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.state != StateIdle {
		log.Printf("[Scheduler] Serving stopped from %s", s.state)
	}
	s.state = StateIdle
}

// ServeNow runs a cycle immediately, disarming any pending timer, and then
// resumes the normal cadence. It fails with ErrCycleInFlight while Serving.
func (s *Scheduler) ServeNow(ctx context.Context) (Result, error) {
	if s.tableErr != nil {
		return Result{}, s.tableErr
	}
	s.mu.Lock()
	switch s.state {
	case StateServing:
		s.mu.Unlock()
		return Result{}, ErrCycleInFlight
	case StateIdle:
		s.restore(ctx)
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	g := s.gen
	s.state = StateServing
	cctx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
	s.cancel = cancel
	s.mu.Unlock()

	return s.runCycle(cctx, cancel, g), nil
}

// Status reports the current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{State: s.state, LastServed: s.server.LastServed()}
	if s.state == StateScheduled {
		next := s.nextInterval
		st.NextInterval = &next
	}
	if s.last != nil {
		at := s.last.Started
		st.LastOutcome = s.last.Outcome
		st.LastTier = s.last.Tier.String()
		st.LastCycleAt = &at
		if s.last.Err != nil {
			st.LastError = s.last.Err.Error()
		}
	}
	return st
}

// restore loads persisted state and seeds the server's last served ad.
// A load failure is treated as a cold start. Caller holds mu.
func (s *Scheduler) restore(ctx context.Context) domain.ServingState {
	st, err := s.store.Load(ctx)
	if err != nil {
		logger.Warn("load serving state, treating as cold start", "error", err)
		return domain.ServingState{}
	}
	if st.LastServedAd != nil && s.server.LastServed() == nil {
		s.server.SetLastServed(st.LastServedAd)
	}
	return st
}

// arm schedules the next cycle after delay and persists next_interval. Caller holds mu.
func (s *Scheduler) arm(ctx context.Context, delay time.Duration) {
	s.gen++
	g := s.gen
	s.state = StateScheduled
	s.nextInterval = s.clock.Now().Add(delay)
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(g) })

	err := s.store.Save(ctx, domain.ServingState{
		NextInterval: s.nextInterval,
		LastServedAd: s.server.LastServed(),
	})
	if err != nil {
		logger.Error("persist serving state", "next_interval", s.nextInterval, "error", err)
	}
}

func (s *Scheduler) fire(g uint64) {
	s.mu.Lock()
	if g != s.gen || s.state != StateScheduled {
		s.mu.Unlock()
		return
	}
	s.state = StateServing
	s.timer = nil
	ctx, cancel := context.WithTimeout(context.Background(), s.cycleTimeout)
	s.cancel = cancel
	s.mu.Unlock()

	s.runCycle(ctx, cancel, g)
}

func (s *Scheduler) runCycle(ctx context.Context, cancel context.CancelFunc, g uint64) Result {
	res := s.server.ServeAd(ctx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if g != s.gen {
		logger.Info("dropping result of stopped cycle", "outcome", string(res.Outcome))
		return res
	}
	s.cancel = nil
	s.last = &res

	step := StepFor(res.Outcome)
	s.arm(context.Background(), s.table.Delay(step))
	logger.Debug("next cycle armed", "step", step.String(), "next_interval", s.nextInterval)
	return res
}
