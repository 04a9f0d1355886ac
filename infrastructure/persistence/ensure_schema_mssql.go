package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var mssqlSchema = []struct {
	table string
	ddl   string
}{
	{"connections", `CREATE TABLE dbo.[connections] (
        id BIGINT IDENTITY(1,1) PRIMARY KEY,
        user_id NVARCHAR(128) NOT NULL,
        platform NVARCHAR(32) NOT NULL,
        platform_user_id NVARCHAR(128) NOT NULL,
        username NVARCHAR(255) NOT NULL,
        display_name NVARCHAR(255) NULL,
        avatar_url NVARCHAR(1024) NULL,
        access_token_enc NVARCHAR(MAX) NOT NULL,
        refresh_token_enc NVARCHAR(MAX) NULL,
        refresh_state NVARCHAR(32) NOT NULL,
        expires_at DATETIME2 NULL,
        scopes NVARCHAR(1024) NOT NULL,
        status NVARCHAR(32) NOT NULL,
        connected_at DATETIME2 NOT NULL,
        last_synced_at DATETIME2 NULL,
        created_at DATETIME2 NOT NULL,
        updated_at DATETIME2 NOT NULL
    );
    CREATE UNIQUE INDEX UX_connections_user_platform ON dbo.[connections](user_id, platform);`},
	{"publication_targets", `CREATE TABLE dbo.[publication_targets] (
        id BIGINT IDENTITY(1,1) PRIMARY KEY,
        post_id NVARCHAR(128) NOT NULL,
        user_id NVARCHAR(128) NOT NULL,
        platform NVARCHAR(32) NOT NULL,
        platform_post_id NVARCHAR(255) NULL,
        platform_url NVARCHAR(1024) NULL,
        status NVARCHAR(32) NOT NULL,
        published_at DATETIME2 NULL,
        last_error NVARCHAR(MAX) NULL,
        attempt_count INT NOT NULL DEFAULT 0,
        last_metrics_at DATETIME2 NULL,
        created_at DATETIME2 NOT NULL,
        updated_at DATETIME2 NOT NULL
    );
    CREATE UNIQUE INDEX UX_publication_targets_post_platform ON dbo.[publication_targets](post_id, platform);
    CREATE INDEX IX_publication_targets_stale ON dbo.[publication_targets](status, last_metrics_at);`},
	{"metric_snapshots", `CREATE TABLE dbo.[metric_snapshots] (
        id BIGINT IDENTITY(1,1) PRIMARY KEY,
        publication_target_id BIGINT NOT NULL REFERENCES dbo.[publication_targets](id) ON DELETE CASCADE,
        observed_at DATETIME2 NOT NULL,
        impressions BIGINT NULL,
        likes BIGINT NULL,
        replies BIGINT NULL,
        reposts BIGINT NULL,
        quotes BIGINT NULL,
        clicks BIGINT NULL,
        profile_visits BIGINT NULL,
        follows_from_post BIGINT NULL
    );
    CREATE INDEX IX_metric_snapshots_target_observed ON dbo.[metric_snapshots](publication_target_id, observed_at);`},
}

// EnsureSchemaMSSQL creates the pipeline tables on SQL Server when missing.
func EnsureSchemaMSSQL(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, s := range mssqlSchema {
		q := fmt.Sprintf(`IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'dbo.%s') AND type in (N'U'))
BEGIN
    %s
END`, s.table, s.ddl)
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create %s (mssql): %w", s.table, err)
		}
	}
	return nil
}
