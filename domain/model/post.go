package model

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"
	"time"
)

type PostStatus string

const (
	PostDraft              PostStatus = "draft"
	PostScheduled          PostStatus = "scheduled"
	PostPublishing         PostStatus = "publishing"
	PostPublished          PostStatus = "published"
	PostPartiallyPublished PostStatus = "partially_published"
	PostFailed             PostStatus = "failed"
)

// Post is the logical post drafted on the content side. Posts sharing a ThreadID
// form a thread ordered by ThreadPosition.
type Post struct {
	ID             string       `json:"id" gorm:"primaryKey;column:id"`
	UserID         string       `json:"user_id" gorm:"column:user_id;index"`
	Content        string       `json:"content" gorm:"column:content"`
	MediaURLs      StringList   `json:"media_urls,omitempty" gorm:"column:media_urls"`
	Platforms      PlatformList `json:"platforms" gorm:"column:platforms"`
	Status         PostStatus   `json:"status" gorm:"column:status"`
	ThreadID       *string      `json:"thread_id,omitempty" gorm:"column:thread_id;index"`
	ThreadPosition int          `json:"thread_position" gorm:"column:thread_position"`
	ScheduledAt    *time.Time   `json:"scheduled_at,omitempty" gorm:"column:scheduled_at"`
	CreatedAt      time.Time    `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// PublishableStatuses are the statuses a post may be published from. A live
// post is changed through an edit, never republished.
func PublishableStatuses() []PostStatus {
	return []PostStatus{PostDraft, PostScheduled, PostFailed, PostPartiallyPublished}
}

// Publishable reports whether the post may be handed to the orchestrator.
func (p *Post) Publishable() bool {
	return slices.Contains(PublishableStatuses(), p.Status)
}

func (p *Post) IsThreadPart() bool { return p.ThreadID != nil && *p.ThreadID != "" }

func (Post) TableName() string { return "posts" }

// StringList is stored as a newline separated text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return strings.Join(l, "\n"), nil
}

func (l *StringList) Scan(src interface{}) error {
	raw, err := scanText(src)
	if err != nil {
		return err
	}
	*l = nil
	for _, v := range strings.Split(raw, "\n") {
		if v = strings.TrimSpace(v); v != "" {
			*l = append(*l, v)
		}
	}
	return nil
}

// PlatformList is stored as a comma separated text column.
type PlatformList []Platform

func (l PlatformList) Value() (driver.Value, error) {
	parts := make([]string, len(l))
	for i, p := range l {
		parts[i] = string(p)
	}
	return strings.Join(parts, ","), nil
}

// Unique drops repeated platforms, keeping first occurrence order.
func (l PlatformList) Unique() PlatformList {
	out := make(PlatformList, 0, len(l))
	for _, p := range l {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

func (l *PlatformList) Scan(src interface{}) error {
	raw, err := scanText(src)
	if err != nil {
		return err
	}
	*l = nil
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*l = append(*l, Platform(strings.ToLower(v)))
		}
	}
	return nil
}

func scanText(src interface{}) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("unsupported column type %T", src)
}
