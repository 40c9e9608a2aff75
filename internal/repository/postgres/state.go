package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/adserving/internal/domain"
)

// StateRepo persists the serving state in the serving_state table, one row per profile.
type StateRepo struct {
	db        *sql.DB
	profileID string
}

// NewStateRepo creates a Postgres-backed state store for profileID.
func NewStateRepo(db *sql.DB, profileID string) *StateRepo {
	return &StateRepo{db: db, profileID: profileID}
}

// Load returns the zero state when no row exists.
func (r *StateRepo) Load(ctx context.Context) (domain.ServingState, error) {
	var (
		s    domain.ServingState
		next sql.NullTime
		last []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT next_interval, last_served_ad
		FROM serving_state
		WHERE profile_id = $1
	`, r.profileID).Scan(&next, &last)
	if err == sql.ErrNoRows {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("load serving state: %w", err)
	}
	if next.Valid {
		s.NextInterval = next.Time
	}
	if len(last) > 0 && string(last) != "null" {
		var ad domain.CreativeAd
		if err := json.Unmarshal(last, &ad); err != nil {
			return domain.ServingState{}, fmt.Errorf("decode last served ad: %w", err)
		}
		s.LastServedAd = &ad
	}
	return s, nil
}

// Save upserts the profile's row.
func (r *StateRepo) Save(ctx context.Context, s domain.ServingState) error {
	var last any
	if s.LastServedAd != nil {
		data, err := json.Marshal(s.LastServedAd)
		if err != nil {
			return fmt.Errorf("encode last served ad: %w", err)
		}
		last = data
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO serving_state (profile_id, next_interval, last_served_ad, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (profile_id) DO UPDATE SET
			next_interval = $2, last_served_ad = $3, updated_at = NOW()
	`, r.profileID, nullTime(s.NextInterval), last)
	if err != nil {
		return fmt.Errorf("save serving state: %w", err)
	}
	return nil
}
