// Package profile reads the user's interest model, browsing history and region.
package profile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ignite/adserving/internal/domain"
)

// ErrInvalidProfile is returned for a profile document that does not parse.
var ErrInvalidProfile = errors.New("invalid profile document")

// Static returns the same profile every cycle.
type Static struct {
	mu sync.RWMutex
	p  domain.Profile
}

// NewStatic wraps p.
func NewStatic(p domain.Profile) *Static {
	return &Static{p: p}
}

// Profile implements serving.ProfileSource.
func (s *Static) Profile(context.Context) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p, nil
}

// Set replaces the profile.
func (s *Static) Set(p domain.Profile) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

// File reads a YAML profile from disk, re-reading it when the modification time changes.
// A missing file yields an empty profile, which serves untargeted ads.
type File struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	cached  domain.Profile
}

// NewFile creates a file-backed source.
func NewFile(path string) *File {
	return &File{path: path}
}

// Profile implements serving.ProfileSource.
func (f *File) Profile(ctx context.Context) (domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}

	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Profile{}, nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("stat profile: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.modTime.IsZero() && info.ModTime().Equal(f.modTime) {
		return f.cached, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("read profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return domain.Profile{}, err
	}
	f.cached = p
	f.modTime = info.ModTime()
	return p, nil
}

// Parse decodes a YAML (or JSON) profile document.
func Parse(data []byte) (domain.Profile, error) {
	var p domain.Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return domain.Profile{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return p, nil
}
