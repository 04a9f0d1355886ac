package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"socialops/domain/model"
	"socialops/domain/repository"
)

type PublicationRepositoryMSSQL struct{ db *sql.DB }

var _ repository.IPublication = (*PublicationRepositoryMSSQL)(nil)

func NewPublicationRepositoryMSSQL(db *sql.DB) *PublicationRepositoryMSSQL {
	return &PublicationRepositoryMSSQL{db: db}
}

func (r *PublicationRepositoryMSSQL) UpsertPending(ctx context.Context, postID, userID string, platforms []model.Platform) (out []*model.PublicationTarget, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	now := time.Now().UTC()
	q := `MERGE dbo.[publication_targets] WITH (HOLDLOCK) AS target
USING (VALUES (@p1, @p3)) AS src(post_id, platform)
ON target.post_id = src.post_id AND target.platform = src.platform
WHEN MATCHED AND target.status <> 'published' THEN UPDATE SET
    status='pending',
    last_error=NULL,
    updated_at=@p4
WHEN NOT MATCHED THEN
    INSERT (post_id, user_id, platform, status, attempt_count, created_at, updated_at)
    VALUES (@p1,@p2,@p3,'pending',0,@p4,@p4);`
	out = make([]*model.PublicationTarget, 0, len(platforms))
	for _, p := range platforms {
		if _, err = tx.ExecContext(ctx, q, postID, userID, string(p), now); err != nil {
			return nil, fmt.Errorf("merge publication target %s/%s: %w", postID, p, err)
		}
		var t *model.PublicationTarget
		t, err = scanTarget(tx.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM dbo.[publication_targets] WHERE post_id=@p1 AND platform=@p2`, postID, string(p)))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PublicationRepositoryMSSQL) GetByID(ctx context.Context, id int64) (*model.PublicationTarget, error) {
	t, err := scanTarget(r.db.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM dbo.[publication_targets] WHERE id=@p1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrTargetNotFound
	}
	return t, err
}

func (r *PublicationRepositoryMSSQL) ListByPost(ctx context.Context, postID string) ([]*model.PublicationTarget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+targetColumns+` FROM dbo.[publication_targets] WHERE post_id=@p1 ORDER BY platform`, postID)
	if err != nil {
		return nil, err
	}
	return collectTargets(rows)
}

func (r *PublicationRepositoryMSSQL) MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string, publishedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE dbo.[publication_targets] SET status='published', platform_post_id=@p1, platform_url=@p2,
    published_at=@p3, last_error=NULL, attempt_count=attempt_count+1, updated_at=@p3 WHERE id=@p4 AND status='pending'`,
		platformPostID, platformURL, publishedAt.UTC(), id)
	return pendingTargetUpdated(id, res, err)
}

func (r *PublicationRepositoryMSSQL) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE dbo.[publication_targets] SET status='failed', last_error=@p1,
    attempt_count=attempt_count+1, updated_at=@p2 WHERE id=@p3 AND status='pending'`,
		errMsg, time.Now().UTC(), id)
	return pendingTargetUpdated(id, res, err)
}

// ListStale relies on SQL Server sorting NULLs first in ascending order.
func (r *PublicationRepositoryMSSQL) ListStale(ctx context.Context, staleBefore time.Time, limit int) ([]*model.PublicationTarget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT TOP (@p2) `+targetColumns+` FROM dbo.[publication_targets]
    WHERE status='published' AND platform_post_id IS NOT NULL
    AND (last_metrics_at IS NULL OR last_metrics_at < @p1)
    ORDER BY last_metrics_at ASC, id ASC`, staleBefore.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectTargets(rows)
}

func (r *PublicationRepositoryMSSQL) TouchMetrics(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE dbo.[publication_targets] SET last_metrics_at=@p1, updated_at=@p1 WHERE id=@p2`, at.UTC(), id)
	return err
}
