package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/adserving/internal/domain"
)

// CatalogRepo serves creatives from the creative_ads table.
type CatalogRepo struct{ db *sql.DB }

// NewCatalogRepo creates a Postgres-backed candidate source.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

const creativeColumns = `
	creative_instance_id, creative_set_id, campaign_id, advertiser_id, segment,
	priority, ptr, daily_cap, per_day, per_week, per_month, total_max,
	start_at, end_at, geo_targets, COALESCE(dayparts, '[]'::jsonb),
	COALESCE(title,''), COALESCE(body,''), COALESCE(target_url,'')`

// GetForSegments returns active creatives registered against any of segments.
// Queries without a separator also match child segments of that parent.
func (r *CatalogRepo) GetForSegments(ctx context.Context, segments []string) ([]domain.CreativeAd, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	var parents []string
	for _, s := range segments {
		if !strings.Contains(s, domain.SegmentSeparator) {
			parents = append(parents, s)
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT`+creativeColumns+`
		FROM creative_ads
		WHERE active = true
		  AND (segment = ANY($1) OR split_part(segment, '-', 1) = ANY($2))
		ORDER BY priority, creative_instance_id
	`, pq.Array(segments), pq.Array(parents))
	if err != nil {
		return nil, fmt.Errorf("query creative ads: %w", err)
	}
	defer rows.Close()

	var ads []domain.CreativeAd
	for rows.Next() {
		ad, err := scanCreative(rows)
		if err != nil {
			return nil, err
		}
		ads = append(ads, ad)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate creative ads: %w", err)
	}
	return ads, nil
}

func scanCreative(rows *sql.Rows) (domain.CreativeAd, error) {
	var (
		ad       domain.CreativeAd
		startAt  sql.NullTime
		endAt    sql.NullTime
		geo      pq.StringArray
		dayparts []byte
	)
	if err := rows.Scan(
		&ad.CreativeInstanceID, &ad.CreativeSetID, &ad.CampaignID, &ad.AdvertiserID, &ad.Segment,
		&ad.Priority, &ad.PTR, &ad.DailyCap, &ad.PerDay, &ad.PerWeek, &ad.PerMonth, &ad.TotalMax,
		&startAt, &endAt, &geo, &dayparts,
		&ad.Title, &ad.Body, &ad.TargetURL,
	); err != nil {
		return domain.CreativeAd{}, fmt.Errorf("scan creative ad: %w", err)
	}
	if startAt.Valid {
		ad.StartAt = startAt.Time
	}
	if endAt.Valid {
		ad.EndAt = endAt.Time
	}
	ad.GeoTargets = []string(geo)
	if len(dayparts) > 0 {
		if err := json.Unmarshal(dayparts, &ad.Dayparts); err != nil {
			return domain.CreativeAd{}, fmt.Errorf("decode dayparts for %s: %w", ad.CreativeInstanceID, err)
		}
	}
	return ad, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Upsert inserts or replaces a creative and marks it active.
func (r *CatalogRepo) Upsert(ctx context.Context, ad domain.CreativeAd) error {
	return upsertCreative(ctx, r.db, ad)
}

// ReplaceAll makes ads the full active catalog in one transaction. Creatives
// not in ads are deactivated, not deleted, so their event history stays joinable.
func (r *CatalogRepo) ReplaceAll(ctx context.Context, ads []domain.CreativeAd) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE creative_ads SET active = false, updated_at = NOW() WHERE active = true`); err != nil {
		return fmt.Errorf("deactivate creative ads: %w", err)
	}
	for _, ad := range ads {
		if err := upsertCreative(ctx, tx, ad); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog import: %w", err)
	}
	return nil
}

func upsertCreative(ctx context.Context, ex execer, ad domain.CreativeAd) error {
	parts := ad.Dayparts
	if parts == nil {
		parts = []domain.Daypart{}
	}
	dayparts, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("encode dayparts: %w", err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO creative_ads (
			creative_instance_id, creative_set_id, campaign_id, advertiser_id, segment,
			priority, ptr, daily_cap, per_day, per_week, per_month, total_max,
			start_at, end_at, geo_targets, dayparts, title, body, target_url, active, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,true,NOW())
		ON CONFLICT (creative_instance_id) DO UPDATE SET
			creative_set_id = $2, campaign_id = $3, advertiser_id = $4, segment = $5,
			priority = $6, ptr = $7, daily_cap = $8, per_day = $9, per_week = $10,
			per_month = $11, total_max = $12, start_at = $13, end_at = $14,
			geo_targets = $15, dayparts = $16, title = $17, body = $18, target_url = $19,
			active = true, updated_at = NOW()
	`,
		ad.CreativeInstanceID, ad.CreativeSetID, ad.CampaignID, ad.AdvertiserID, ad.Segment,
		ad.Priority, ad.PTR, ad.DailyCap, ad.PerDay, ad.PerWeek, ad.PerMonth, ad.TotalMax,
		nullTime(ad.StartAt), nullTime(ad.EndAt), pq.Array(ad.GeoTargets), dayparts,
		ad.Title, ad.Body, ad.TargetURL,
	)
	if err != nil {
		return fmt.Errorf("upsert creative ad %s: %w", ad.CreativeInstanceID, err)
	}
	return nil
}

// Count returns the number of active creatives.
func (r *CatalogRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM creative_ads WHERE active = true`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count creative ads: %w", err)
	}
	return n, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
