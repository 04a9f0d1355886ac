package repository

import (
	"context"
	"time"

	"socialops/domain/model"
)

// IPublication persists publication targets.
type IPublication interface {
	// UpsertPending creates a pending target per platform or resets a failed one
	// to pending. Published targets are returned untouched.
	UpsertPending(ctx context.Context, postID, userID string, platforms []model.Platform) ([]*model.PublicationTarget, error)
	GetByID(ctx context.Context, id int64) (*model.PublicationTarget, error)
	ListByPost(ctx context.Context, postID string) ([]*model.PublicationTarget, error)
	MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	// ListStale returns published targets whose last metrics observation is older
	// than staleBefore (or missing), oldest first.
	ListStale(ctx context.Context, staleBefore time.Time, limit int) ([]*model.PublicationTarget, error)
	TouchMetrics(ctx context.Context, id int64, at time.Time) error
}

// IMetricSnapshot is the append-only metric event store.
type IMetricSnapshot interface {
	Append(ctx context.Context, s *model.MetricSnapshot) (int64, error)
	LatestForTarget(ctx context.Context, targetID int64) (*model.MetricSnapshot, error)
	ListForTarget(ctx context.Context, targetID int64, limit int) ([]*model.MetricSnapshot, error)
}

// IPublishAudit records every publish attempt.
type IPublishAudit interface {
	Record(ctx context.Context, a *model.PublishAudit) error
}
