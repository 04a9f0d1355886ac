package repository

import (
	"context"

	"socialops/domain/model"
)

// IPost reads logical posts from the content store.
type IPost interface {
	GetByID(ctx context.Context, userID, postID string) (*model.Post, error)
	// ListThread returns the posts of a thread ordered by position.
	ListThread(ctx context.Context, userID, threadID string) ([]*model.Post, error)
	UpdateStatus(ctx context.Context, postID string, status model.PostStatus) error
	// BeginPublishing moves every listed post from a publishable status to
	// publishing, or none of them. It returns ErrPostNotPublishable when any
	// post was not publishable.
	BeginPublishing(ctx context.Context, postIDs ...string) error
}

// IQuota reserves daily call budget.
type IQuota interface {
	// Reserve atomically takes n calls from key's budget of limit. It returns a
	// QuotaExceededError and takes nothing when fewer than n remain.
	Reserve(ctx context.Context, key string, n, limit int64) error
	// Release hands back calls reserved but not spent.
	Release(ctx context.Context, key string, n int64) error
}
