package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var postgresSchema = []struct {
	name string
	ddl  string
}{
	{"connections", `CREATE TABLE IF NOT EXISTS connections (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		platform_user_id TEXT NOT NULL,
		username TEXT NOT NULL,
		display_name TEXT NULL,
		avatar_url TEXT NULL,
		access_token_enc TEXT NOT NULL,
		refresh_token_enc TEXT NULL,
		refresh_state TEXT NOT NULL DEFAULT 'absent',
		expires_at TIMESTAMPTZ NULL,
		scopes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		connected_at TIMESTAMPTZ NOT NULL,
		last_synced_at TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, platform)
	)`},
	{"publication_targets", `CREATE TABLE IF NOT EXISTS publication_targets (
		id BIGSERIAL PRIMARY KEY,
		post_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		platform_post_id TEXT NULL,
		platform_url TEXT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		published_at TIMESTAMPTZ NULL,
		last_error TEXT NULL,
		attempt_count INT NOT NULL DEFAULT 0,
		last_metrics_at TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (post_id, platform)
	)`},
	{"idx_publication_targets_stale", `CREATE INDEX IF NOT EXISTS idx_publication_targets_stale
		ON publication_targets (status, last_metrics_at)`},
	{"metric_snapshots", `CREATE TABLE IF NOT EXISTS metric_snapshots (
		id BIGSERIAL PRIMARY KEY,
		publication_target_id BIGINT NOT NULL REFERENCES publication_targets(id) ON DELETE CASCADE,
		observed_at TIMESTAMPTZ NOT NULL,
		impressions BIGINT NULL,
		likes BIGINT NULL,
		replies BIGINT NULL,
		reposts BIGINT NULL,
		quotes BIGINT NULL,
		clicks BIGINT NULL,
		profile_visits BIGINT NULL,
		follows_from_post BIGINT NULL
	)`},
	{"idx_metric_snapshots_target_observed", `CREATE INDEX IF NOT EXISTS idx_metric_snapshots_target_observed
		ON metric_snapshots (publication_target_id, observed_at)`},
}

// EnsureSchema creates the pipeline tables on PostgreSQL. Safe to call at every startup.
func EnsureSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, s := range postgresSchema {
		if _, err := db.ExecContext(ctx, s.ddl); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
	}
	return nil
}
