package dto

import (
	"time"

	"socialops/domain/model"
)

// PublishResult is the outcome of one (post, platform) attempt.
type PublishResult struct {
	Platform       model.Platform `json:"platform"`
	PostID         string         `json:"post_id"`
	TargetID       int64          `json:"target_id,omitempty"`
	Success        bool           `json:"success"`
	PlatformPostID string         `json:"platform_post_id,omitempty"`
	PlatformURL    string         `json:"platform_url,omitempty"`
	Error          string         `json:"error,omitempty"`
	ErrorCode      string         `json:"error_code,omitempty"`
}

// ThreadPublishResult lists the thread posts attempted on one platform, in
// order. A failure ends the list.
type ThreadPublishResult struct {
	Platform model.Platform  `json:"platform"`
	Complete bool            `json:"complete"`
	Posts    []PublishResult `json:"posts"`
}

// RepostResult is the outcome of a repost or unrepost.
type RepostResult struct {
	Platform model.Platform `json:"platform"`
	TargetID int64          `json:"target_id"`
	Reposted bool           `json:"reposted"`
}

// PublicationEvent is the best-effort notification emitted after a publish attempt.
type PublicationEvent struct {
	EventID        string                  `json:"event_id"`
	Type           string                  `json:"type"`
	UserID         string                  `json:"user_id"`
	PostID         string                  `json:"post_id"`
	TargetID       int64                   `json:"target_id"`
	Platform       model.Platform          `json:"platform"`
	Status         model.PublicationStatus `json:"status"`
	PlatformPostID *string                 `json:"platform_post_id,omitempty"`
	PlatformURL    *string                 `json:"platform_url,omitempty"`
	Error          *string                 `json:"error,omitempty"`
	OccurredAt     time.Time               `json:"occurred_at"`
}
