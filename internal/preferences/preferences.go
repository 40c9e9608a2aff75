// Package preferences keeps the user's ad feedback: segments opted in or out
// and creative sets flagged as inappropriate. Opted-out segments and flagged
// sets are never served.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ignite/adserving/internal/pkg/logger"
	"github.com/ignite/adserving/internal/targeting"
)

// ErrEmptyKey is returned when a toggle names no segment or creative set.
var ErrEmptyKey = errors.New("empty preference key")

// Action is the user's choice for a segment.
type Action string

const (
	ActionNone   Action = "none"
	ActionOptIn  Action = "opt_in"
	ActionOptOut Action = "opt_out"
)

// Preferences is the persisted document.
type Preferences struct {
	OptedIn             []string `json:"opted_in"`
	OptedOut            []string `json:"opted_out"`
	FlaggedCreativeSets []string `json:"flagged_creative_sets"`
}

// Store persists Preferences.
type Store interface {
	Load(ctx context.Context) (Preferences, error)
	Save(ctx context.Context, p Preferences) error
}

// Manager serves lookups from memory and writes every toggle through to the store.
type Manager struct {
	store Store

	mu       sync.RWMutex
	segments map[string]Action
	flagged  map[string]struct{}
}

// NewManager creates an empty manager; call Load to read the store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		segments: make(map[string]Action),
		flagged:  make(map[string]struct{}),
	}
}

// Load replaces the in-memory preferences with the stored document.
func (m *Manager) Load(ctx context.Context) error {
	p, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	segments, flagged := index(p)

	m.mu.Lock()
	m.segments, m.flagged = segments, flagged
	m.mu.Unlock()
	logger.Info("preferences loaded", "opted_out", len(p.OptedOut), "flagged", len(p.FlaggedCreativeSets))
	return nil
}

// ToggleOptOut opts segment out, or back to neutral if it already was.
func (m *Manager) ToggleOptOut(ctx context.Context, segment string) (Action, error) {
	return m.toggleSegment(ctx, segment, ActionOptOut)
}

// ToggleOptIn opts segment in, or back to neutral if it already was.
// Opting in clears an opt-out.
func (m *Manager) ToggleOptIn(ctx context.Context, segment string) (Action, error) {
	return m.toggleSegment(ctx, segment, ActionOptIn)
}

func (m *Manager) toggleSegment(ctx context.Context, segment string, action Action) (Action, error) {
	segment = normalize(segment)
	if segment == "" {
		return ActionNone, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.segments[segment]
	next := action
	if prev == action {
		next = ActionNone
	}
	if next == ActionNone {
		delete(m.segments, segment)
	} else {
		m.segments[segment] = next
	}

	if err := m.saveLocked(ctx); err != nil {
		if had {
			m.segments[segment] = prev
		} else {
			delete(m.segments, segment)
		}
		return prev, err
	}
	logger.Info("segment preference changed", "segment", segment, "action", string(next))
	return next, nil
}

// ToggleFlagged flags a creative set, or unflags it. It returns the new state.
func (m *Manager) ToggleFlagged(ctx context.Context, creativeSetID string) (bool, error) {
	creativeSetID = strings.TrimSpace(creativeSetID)
	if creativeSetID == "" {
		return false, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, was := m.flagged[creativeSetID]
	if was {
		delete(m.flagged, creativeSetID)
	} else {
		m.flagged[creativeSetID] = struct{}{}
	}

	if err := m.saveLocked(ctx); err != nil {
		if was {
			m.flagged[creativeSetID] = struct{}{}
		} else {
			delete(m.flagged, creativeSetID)
		}
		return was, err
	}
	logger.Info("creative set flag changed", "creative_set_id", creativeSetID, "flagged", !was)
	return !was, nil
}

// IsOptedOut reports whether segment or its parent category is opted out.
func (m *Manager) IsOptedOut(segment string) bool {
	segment = normalize(segment)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.segments[segment] == ActionOptOut {
		return true
	}
	parent := targeting.ParentSegment(segment)
	return parent != segment && m.segments[parent] == ActionOptOut
}

// IsFlagged reports whether the creative set was flagged.
func (m *Manager) IsFlagged(creativeSetID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.flagged[creativeSetID]
	return ok
}

// Snapshot returns the current document with sorted lists.
func (m *Manager) Snapshot() Preferences {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Preferences {
	p := Preferences{OptedIn: []string{}, OptedOut: []string{}, FlaggedCreativeSets: []string{}}
	for seg, a := range m.segments {
		switch a {
		case ActionOptIn:
			p.OptedIn = append(p.OptedIn, seg)
		case ActionOptOut:
			p.OptedOut = append(p.OptedOut, seg)
		}
	}
	for id := range m.flagged {
		p.FlaggedCreativeSets = append(p.FlaggedCreativeSets, id)
	}
	sort.Strings(p.OptedIn)
	sort.Strings(p.OptedOut)
	sort.Strings(p.FlaggedCreativeSets)
	return p
}

func (m *Manager) saveLocked(ctx context.Context) error {
	if err := m.store.Save(ctx, m.snapshotLocked()); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func index(p Preferences) (map[string]Action, map[string]struct{}) {
	segments := make(map[string]Action, len(p.OptedIn)+len(p.OptedOut))
	for _, s := range p.OptedIn {
		segments[normalize(s)] = ActionOptIn
	}
	// An opt-out wins if a document lists both.
	for _, s := range p.OptedOut {
		segments[normalize(s)] = ActionOptOut
	}
	flagged := make(map[string]struct{}, len(p.FlaggedCreativeSets))
	for _, id := range p.FlaggedCreativeSets {
		flagged[id] = struct{}{}
	}
	return segments, flagged
}

func normalize(segment string) string {
	return strings.ToLower(strings.TrimSpace(segment))
}
