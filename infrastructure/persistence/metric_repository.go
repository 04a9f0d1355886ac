package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"socialops/domain/model"
	"socialops/domain/repository"
)

// MetricSnapshotRepository is the append-only snapshot store on PostgreSQL.
// Snapshots are never updated.
type MetricSnapshotRepository struct{ db *sql.DB }

var _ repository.IMetricSnapshot = (*MetricSnapshotRepository)(nil)

func NewMetricSnapshotRepository(db *sql.DB) *MetricSnapshotRepository {
	return &MetricSnapshotRepository{db: db}
}

func (r *MetricSnapshotRepository) Append(ctx context.Context, s *model.MetricSnapshot) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `INSERT INTO metric_snapshots (publication_target_id, observed_at, impressions, likes,
		replies, reposts, quotes, clicks, profile_visits, follows_from_post)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		s.PublicationTargetID, s.ObservedAt.UTC(), s.Impressions, s.Likes, s.Replies, s.Reposts,
		s.Quotes, s.Clicks, s.ProfileVisits, s.FollowsFromPost,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append metric snapshot: %w", err)
	}
	s.ID = id
	return id, nil
}

// LatestForTarget returns the authoritative snapshot, or nil when none exists.
func (r *MetricSnapshotRepository) LatestForTarget(ctx context.Context, targetID int64) (*model.MetricSnapshot, error) {
	s, err := scanSnapshot(r.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM metric_snapshots
		WHERE publication_target_id=$1 ORDER BY observed_at DESC, id DESC LIMIT 1`, targetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListForTarget returns up to limit snapshots, newest first.
func (r *MetricSnapshotRepository) ListForTarget(ctx context.Context, targetID int64, limit int) ([]*model.MetricSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+snapshotColumns+` FROM metric_snapshots
		WHERE publication_target_id=$1 ORDER BY observed_at DESC, id DESC LIMIT $2`, targetID, limit)
	if err != nil {
		return nil, err
	}
	return collectSnapshots(rows)
}

func collectSnapshots(rows *sql.Rows) ([]*model.MetricSnapshot, error) {
	defer rows.Close()
	var list []*model.MetricSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
