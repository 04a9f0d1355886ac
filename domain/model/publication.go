package model

import "time"

type PublicationStatus string

const (
	PublicationPending   PublicationStatus = "pending"
	PublicationPublished PublicationStatus = "published"
	PublicationFailed    PublicationStatus = "failed"
)

// PublicationTarget is one (post, platform) publish attempt.
type PublicationTarget struct {
	ID             int64             `json:"id"`
	PostID         string            `json:"post_id"`
	UserID         string            `json:"user_id"`
	Platform       Platform          `json:"platform"`
	PlatformPostID *string           `json:"platform_post_id,omitempty"`
	PlatformURL    *string           `json:"platform_url,omitempty"`
	Status         PublicationStatus `json:"status"`
	PublishedAt    *time.Time        `json:"published_at,omitempty"`
	LastError      *string           `json:"last_error,omitempty"`
	AttemptCount   int               `json:"attempt_count"`
	LastMetricsAt  *time.Time        `json:"last_metrics_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// PublishAudit is an append-only record of one publish attempt.
type PublishAudit struct {
	TargetID       int64             `json:"target_id" bson:"target_id"`
	PostID         string            `json:"post_id" bson:"post_id"`
	UserID         string            `json:"user_id" bson:"user_id"`
	Platform       Platform          `json:"platform" bson:"platform"`
	Status         PublicationStatus `json:"status" bson:"status"`
	PlatformPostID *string           `json:"platform_post_id,omitempty" bson:"platform_post_id,omitempty"`
	ErrorCode      string            `json:"error_code,omitempty" bson:"error_code,omitempty"`
	ErrorMessage   *string           `json:"error_message,omitempty" bson:"error_message,omitempty"`
	AttemptedAt    time.Time         `json:"attempted_at" bson:"attempted_at"`
}
