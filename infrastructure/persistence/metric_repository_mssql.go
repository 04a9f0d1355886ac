package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"socialops/domain/model"
	"socialops/domain/repository"
)

type MetricSnapshotRepositoryMSSQL struct{ db *sql.DB }

var _ repository.IMetricSnapshot = (*MetricSnapshotRepositoryMSSQL)(nil)

func NewMetricSnapshotRepositoryMSSQL(db *sql.DB) *MetricSnapshotRepositoryMSSQL {
	return &MetricSnapshotRepositoryMSSQL{db: db}
}

func (r *MetricSnapshotRepositoryMSSQL) Append(ctx context.Context, s *model.MetricSnapshot) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `INSERT INTO dbo.[metric_snapshots] (publication_target_id, observed_at, impressions, likes,
    replies, reposts, quotes, clicks, profile_visits, follows_from_post)
OUTPUT inserted.id
VALUES (@p1,@p2,@p3,@p4,@p5,@p6,@p7,@p8,@p9,@p10)`,
		s.PublicationTargetID, s.ObservedAt.UTC(),
		nullInt64(s.Impressions), nullInt64(s.Likes), nullInt64(s.Replies), nullInt64(s.Reposts),
		nullInt64(s.Quotes), nullInt64(s.Clicks), nullInt64(s.ProfileVisits), nullInt64(s.FollowsFromPost),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append metric snapshot (mssql): %w", err)
	}
	s.ID = id
	return id, nil
}

func (r *MetricSnapshotRepositoryMSSQL) LatestForTarget(ctx context.Context, targetID int64) (*model.MetricSnapshot, error) {
	s, err := scanSnapshot(r.db.QueryRowContext(ctx, `SELECT TOP (1) `+snapshotColumns+` FROM dbo.[metric_snapshots]
    WHERE publication_target_id=@p1 ORDER BY observed_at DESC, id DESC`, targetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *MetricSnapshotRepositoryMSSQL) ListForTarget(ctx context.Context, targetID int64, limit int) ([]*model.MetricSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT TOP (@p2) `+snapshotColumns+` FROM dbo.[metric_snapshots]
    WHERE publication_target_id=@p1 ORDER BY observed_at DESC, id DESC`, targetID, limit)
	if err != nil {
		return nil, err
	}
	return collectSnapshots(rows)
}
