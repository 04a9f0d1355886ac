package persistence

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"socialops/domain/model"
	"socialops/domain/repository"
)

// PostRepository reads posts from the content database through gorm.
type PostRepository struct{ db *gorm.DB }

var _ repository.IPost = (*PostRepository)(nil)

func NewPostRepository(db *gorm.DB) *PostRepository { return &PostRepository{db: db} }

func (r *PostRepository) GetByID(ctx context.Context, userID, postID string) (*model.Post, error) {
	var p model.Post
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", postID, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	return &p, nil
}

func (r *PostRepository) ListThread(ctx context.Context, userID, threadID string) ([]*model.Post, error) {
	var posts []*model.Post
	err := r.db.WithContext(ctx).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		Order("thread_position ASC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list thread %s: %w", threadID, err)
	}
	if len(posts) == 0 {
		return nil, model.ErrPostNotFound
	}
	return posts, nil
}

func (r *PostRepository) UpdateStatus(ctx context.Context, postID string, status model.PostStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Post{}).Where("id = ?", postID).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrPostNotFound
	}
	return nil
}

// BeginPublishing claims the posts in one transaction with a conditional
// update, so two publishers cannot both start on the same draft.
func (r *PostRepository) BeginPublishing(ctx context.Context, postIDs ...string) error {
	ids := slices.Compact(slices.Sorted(slices.Values(postIDs)))
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Post{}).
			Where("id IN ? AND status IN ?", ids, model.PublishableStatuses()).
			Update("status", model.PostPublishing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("%w: %d of %d posts could be claimed", model.ErrPostNotPublishable, res.RowsAffected, len(ids))
		}
		return nil
	})
}
