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

// PublicationRepository stores publication targets in PostgreSQL.
type PublicationRepository struct{ db *sql.DB }

var _ repository.IPublication = (*PublicationRepository)(nil)

func NewPublicationRepository(db *sql.DB) *PublicationRepository {
	return &PublicationRepository{db: db}
}

func (r *PublicationRepository) UpsertPending(ctx context.Context, postID, userID string, platforms []model.Platform) (out []*model.PublicationTarget, err error) {
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
	q := `INSERT INTO publication_targets (post_id, user_id, platform, status, attempt_count, created_at, updated_at)
		VALUES ($1,$2,$3,'pending',0,$4,$4)
		ON CONFLICT (post_id, platform) DO UPDATE SET
			status = CASE WHEN publication_targets.status = 'published' THEN publication_targets.status ELSE 'pending' END,
			last_error = CASE WHEN publication_targets.status = 'published' THEN publication_targets.last_error ELSE NULL END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + targetColumns
	out = make([]*model.PublicationTarget, 0, len(platforms))
	for _, p := range platforms {
		var t *model.PublicationTarget
		t, err = scanTarget(tx.QueryRowContext(ctx, q, postID, userID, p, now))
		if err != nil {
			return nil, fmt.Errorf("upsert publication target %s/%s: %w", postID, p, err)
		}
		out = append(out, t)
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PublicationRepository) GetByID(ctx context.Context, id int64) (*model.PublicationTarget, error) {
	t, err := scanTarget(r.db.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM publication_targets WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrTargetNotFound
	}
	return t, err
}

func (r *PublicationRepository) ListByPost(ctx context.Context, postID string) ([]*model.PublicationTarget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+targetColumns+` FROM publication_targets WHERE post_id=$1 ORDER BY platform`, postID)
	if err != nil {
		return nil, err
	}
	return collectTargets(rows)
}

// MarkPublished only moves a pending target; a target is mutated once per attempt.
func (r *PublicationRepository) MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string, publishedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE publication_targets SET status='published', platform_post_id=$1, platform_url=$2,
		published_at=$3, last_error=NULL, attempt_count=attempt_count+1, updated_at=$3 WHERE id=$4 AND status='pending'`,
		platformPostID, platformURL, publishedAt.UTC(), id)
	return pendingTargetUpdated(id, res, err)
}

func (r *PublicationRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE publication_targets SET status='failed', last_error=$1,
		attempt_count=attempt_count+1, updated_at=$2 WHERE id=$3 AND status='pending'`,
		errMsg, time.Now().UTC(), id)
	return pendingTargetUpdated(id, res, err)
}

func (r *PublicationRepository) ListStale(ctx context.Context, staleBefore time.Time, limit int) ([]*model.PublicationTarget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+targetColumns+` FROM publication_targets
		WHERE status='published' AND platform_post_id IS NOT NULL
		AND (last_metrics_at IS NULL OR last_metrics_at < $1)
		ORDER BY last_metrics_at ASC NULLS FIRST, id ASC LIMIT $2`, staleBefore.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectTargets(rows)
}

func (r *PublicationRepository) TouchMetrics(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE publication_targets SET last_metrics_at=$1, updated_at=$1 WHERE id=$2`, at.UTC(), id)
	return err
}

func collectTargets(rows *sql.Rows) ([]*model.PublicationTarget, error) {
	defer rows.Close()
	var list []*model.PublicationTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func pendingTargetUpdated(id int64, res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no pending publication target %d: %w", id, model.ErrTargetNotFound)
	}
	return nil
}
