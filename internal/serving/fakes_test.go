package serving

import (
	"context"
	"sync"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/targeting"
)

// stubSource answers segment queries from a fixed catalog and records them.
type stubSource struct {
	mu      sync.Mutex
	ads     []domain.CreativeAd
	err     error
	queries [][]string
}

func (s *stubSource) GetForSegments(_ context.Context, segments []string) ([]domain.CreativeAd, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, append([]string(nil), segments...))
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.CreativeAd
	for _, ad := range s.ads {
		for _, seg := range segments {
			if targeting.Matches(ad.Segment, seg) {
				out = append(out, ad)
				break
			}
		}
	}
	return out, nil
}

type stubEvents struct {
	mu        sync.Mutex
	events    []domain.AdEvent
	readErr   error
	recordErr error
	reads     int
}

func (s *stubEvents) GetAllEvents(context.Context, domain.AdType) ([]domain.AdEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	return append([]domain.AdEvent(nil), s.events...), nil
}

func (s *stubEvents) RecordEvent(_ context.Context, e domain.AdEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.events = append(s.events, e)
	return nil
}

type stubDelivery struct {
	mu     sync.Mutex
	refuse bool
	shown  []domain.CreativeAd
}

func (d *stubDelivery) Show(_ context.Context, ad domain.CreativeAd) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.refuse {
		return false
	}
	d.shown = append(d.shown, ad)
	return true
}

func (d *stubDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shown)
}

type stubProfile struct {
	profile domain.Profile
	err     error
}

func (p stubProfile) Profile(context.Context) (domain.Profile, error) { return p.profile, p.err }

type stubLock struct {
	held     bool
	err      error
	released int
}

func (l *stubLock) Acquire(context.Context) (bool, error) { return !l.held, l.err }
func (l *stubLock) Release(context.Context) error {
	l.released++
	return nil
}

// stubServer returns scripted outcomes for scheduler tests.
type stubServer struct {
	mu       sync.Mutex
	outcomes []Outcome
	calls    int
	block    chan struct{}
	started  chan struct{}
	ctxErr   error
	last     *domain.CreativeAd
}

func (s *stubServer) ServeAd(ctx context.Context) Result {
	s.mu.Lock()
	s.calls++
	outcome := OutcomeDelivered
	if len(s.outcomes) > 0 {
		outcome = s.outcomes[0]
		s.outcomes = s.outcomes[1:]
	}
	block, started := s.block, s.started
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
		s.mu.Lock()
		s.ctxErr = ctx.Err()
		s.mu.Unlock()
	}

	res := Result{Outcome: outcome}
	if outcome == OutcomeDelivered {
		ad := domain.CreativeAd{CreativeInstanceID: "c1", AdvertiserID: "a1"}
		s.mu.Lock()
		s.last = &ad
		s.mu.Unlock()
		res.Ad = &ad
	}
	return res
}

func (s *stubServer) LastServed() *domain.CreativeAd {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *stubServer) SetLastServed(ad *domain.CreativeAd) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = ad
}

func (s *stubServer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// memStore is a StateStore that counts saves.
type memStore struct {
	mu      sync.Mutex
	state   domain.ServingState
	saves   int
	loadErr error
}

func (m *memStore) Load(context.Context) (domain.ServingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.loadErr
}

func (m *memStore) Save(_ context.Context, s domain.ServingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.saves++
	return nil
}

func (m *memStore) get() domain.ServingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
