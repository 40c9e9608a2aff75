// Package state persists the serving state (next interval and last served
// creative) across restarts. Backends: local JSON file, Redis, DynamoDB.
// A PostgreSQL backend lives in repository/postgres.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ignite/adserving/internal/domain"
)

// ErrCorrupt is returned when a stored state cannot be decoded.
var ErrCorrupt = errors.New("corrupt serving state")

// Store loads and saves the serving state. Load returns the zero state when
// nothing was saved yet.
type Store interface {
	Load(ctx context.Context) (domain.ServingState, error)
	Save(ctx context.Context, s domain.ServingState) error
}

func decode(data []byte) (domain.ServingState, error) {
	var s domain.ServingState
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.ServingState{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return s, nil
}

func encode(s domain.ServingState) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling serving state: %w", err)
	}
	return data, nil
}

// Memory keeps state in process. Used in tests and when persistence is disabled.
type Memory struct {
	mu   sync.Mutex
	data []byte
}

// Load implements Store.
func (m *Memory) Load(context.Context) (domain.ServingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decode(m.data)
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, s domain.ServingState) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}
