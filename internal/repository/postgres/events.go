package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adserving/internal/domain"
)

// EventRepo is the append-only ad event log in the ad_events table.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event log.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// RecordEvent appends e. An empty ID is filled in.
func (r *EventRepo) RecordEvent(ctx context.Context, e domain.AdEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ad_events (
			id, ad_type, creative_instance_id, creative_set_id, campaign_id,
			advertiser_id, segment, event_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, string(e.AdType), e.CreativeInstanceID, e.CreativeSetID, e.CampaignID,
		e.AdvertiserID, e.Segment, string(e.Type), e.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("record ad event: %w", err)
	}
	return nil
}

// GetAllEvents returns every event of adType, oldest first.
func (r *EventRepo) GetAllEvents(ctx context.Context, adType domain.AdType) ([]domain.AdEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ad_type, creative_instance_id, creative_set_id, campaign_id,
		       advertiser_id, segment, event_type, created_at
		FROM ad_events
		WHERE ad_type = $1
		ORDER BY created_at, id
	`, string(adType))
	if err != nil {
		return nil, fmt.Errorf("query ad events: %w", err)
	}
	defer rows.Close()

	var events []domain.AdEvent
	for rows.Next() {
		var e domain.AdEvent
		var at, typ string
		if err := rows.Scan(&e.ID, &at, &e.CreativeInstanceID, &e.CreativeSetID, &e.CampaignID,
			&e.AdvertiserID, &e.Segment, &typ, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan ad event: %w", err)
		}
		e.AdType = domain.AdType(at)
		e.Type = domain.AdEventType(typ)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ad events: %w", err)
	}
	return events, nil
}

// PurgeBefore deletes events older than cutoff and reports how many went.
func (r *EventRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ad_events WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge ad events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
