package persistence

import (
	"database/sql"
	"time"

	"socialops/domain/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const connectionColumns = `id, user_id, platform, platform_user_id, username, display_name, avatar_url,
	access_token_enc, refresh_token_enc, refresh_state, expires_at, scopes, status,
	connected_at, last_synced_at, created_at, updated_at`

// summaryColumns is the token-free projection used for listings.
const summaryColumns = `id, platform, platform_user_id, username, display_name, avatar_url,
	scopes, status, expires_at, connected_at, last_synced_at`

const targetColumns = `id, post_id, user_id, platform, platform_post_id, platform_url, status,
	published_at, last_error, attempt_count, last_metrics_at, created_at, updated_at`

const snapshotColumns = `id, publication_target_id, observed_at, impressions, likes, replies,
	reposts, quotes, clicks, profile_visits, follows_from_post`

func scanConnection(row rowScanner) (*model.Connection, error) {
	c := &model.Connection{}
	var (
		displayName, avatarURL, refreshEnc sql.NullString
		expiresAt, lastSynced              sql.NullTime
		scopes                             string
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Platform, &c.PlatformUserID, &c.Username, &displayName, &avatarURL,
		&c.AccessTokenEnc, &refreshEnc, &c.RefreshState, &expiresAt, &scopes, &c.Status,
		&c.ConnectedAt, &lastSynced, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.DisplayName = stringPtr(displayName)
	c.AvatarURL = stringPtr(avatarURL)
	c.RefreshTokenEnc = stringPtr(refreshEnc)
	c.ExpiresAt = timePtr(expiresAt)
	c.LastSyncedAt = timePtr(lastSynced)
	c.Scopes = model.ParseScopeSet(scopes)
	return c, nil
}

func scanSummary(row rowScanner) (model.ConnectionSummary, error) {
	var (
		s                     model.ConnectionSummary
		displayName, avatar   sql.NullString
		expiresAt, lastSynced sql.NullTime
		scopes                string
	)
	if err := row.Scan(&s.ID, &s.Platform, &s.PlatformUserID, &s.Username, &displayName, &avatar,
		&scopes, &s.Status, &expiresAt, &s.ConnectedAt, &lastSynced); err != nil {
		return s, err
	}
	s.DisplayName = stringPtr(displayName)
	s.AvatarURL = stringPtr(avatar)
	s.Scopes = model.ParseScopeSet(scopes)
	s.ExpiresAt = timePtr(expiresAt)
	s.LastSyncedAt = timePtr(lastSynced)
	return s, nil
}

func scanTarget(row rowScanner) (*model.PublicationTarget, error) {
	t := &model.PublicationTarget{}
	var (
		postID, url, lastErr       sql.NullString
		publishedAt, lastMetricsAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.PostID, &t.UserID, &t.Platform, &postID, &url, &t.Status,
		&publishedAt, &lastErr, &t.AttemptCount, &lastMetricsAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.PlatformPostID = stringPtr(postID)
	t.PlatformURL = stringPtr(url)
	t.LastError = stringPtr(lastErr)
	t.PublishedAt = timePtr(publishedAt)
	t.LastMetricsAt = timePtr(lastMetricsAt)
	return t, nil
}

func scanSnapshot(row rowScanner) (*model.MetricSnapshot, error) {
	s := &model.MetricSnapshot{}
	var impressions, likes, replies, reposts, quotes, clicks, visits, follows sql.NullInt64
	if err := row.Scan(&s.ID, &s.PublicationTargetID, &s.ObservedAt,
		&impressions, &likes, &replies, &reposts, &quotes, &clicks, &visits, &follows); err != nil {
		return nil, err
	}
	s.Impressions = int64Ptr(impressions)
	s.Likes = int64Ptr(likes)
	s.Replies = int64Ptr(replies)
	s.Reposts = int64Ptr(reposts)
	s.Quotes = int64Ptr(quotes)
	s.Clicks = int64Ptr(clicks)
	s.ProfileVisits = int64Ptr(visits)
	s.FollowsFromPost = int64Ptr(follows)
	return s, nil
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// The MSSQL driver wants explicit Null* values rather than nil pointers.

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
