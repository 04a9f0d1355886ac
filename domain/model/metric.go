package model

import "time"

// MetricCounts holds engagement counters as reported by a platform. A nil field
// means the platform does not expose that counter; zero is an observed value.
type MetricCounts struct {
	Impressions     *int64 `json:"impressions,omitempty"`
	Likes           *int64 `json:"likes,omitempty"`
	Replies         *int64 `json:"replies,omitempty"`
	Reposts         *int64 `json:"reposts,omitempty"`
	Quotes          *int64 `json:"quotes,omitempty"`
	Clicks          *int64 `json:"clicks,omitempty"`
	ProfileVisits   *int64 `json:"profile_visits,omitempty"`
	FollowsFromPost *int64 `json:"follows_from_post,omitempty"`
}

// MetricSnapshot is an immutable observation. Counts may go down between
// snapshots; the latest observation is authoritative.
type MetricSnapshot struct {
	ID                  int64     `json:"id"`
	PublicationTargetID int64     `json:"publication_target_id"`
	ObservedAt          time.Time `json:"observed_at"`
	MetricCounts
}

// Int64 returns a pointer to v, for building MetricCounts.
func Int64(v int64) *int64 { return &v }
