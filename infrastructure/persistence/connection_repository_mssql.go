package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"socialops/domain/model"
	"socialops/domain/repository"
)

// ConnectionRepositoryMSSQL is the SQL Server variant used in production.
type ConnectionRepositoryMSSQL struct{ db *sql.DB }

var _ repository.IConnection = (*ConnectionRepositoryMSSQL)(nil)

func NewConnectionRepositoryMSSQL(db *sql.DB) *ConnectionRepositoryMSSQL {
	return &ConnectionRepositoryMSSQL{db: db}
}

func (r *ConnectionRepositoryMSSQL) Upsert(ctx context.Context, c *model.Connection) (int64, error) {
	now := time.Now().UTC()
	if c.ConnectedAt.IsZero() {
		c.ConnectedAt = now
	}
	q := `MERGE dbo.[connections] WITH (HOLDLOCK) AS target
USING (VALUES (@p1, @p2)) AS src(user_id, platform)
ON target.user_id = src.user_id AND target.platform = src.platform
WHEN MATCHED THEN UPDATE SET
    platform_user_id=@p3,
    username=@p4,
    display_name=@p5,
    avatar_url=@p6,
    access_token_enc=@p7,
    refresh_token_enc=@p8,
    refresh_state=@p9,
    expires_at=@p10,
    scopes=@p11,
    status=@p12,
    connected_at=@p13,
    updated_at=@p14
WHEN NOT MATCHED THEN
    INSERT (user_id, platform, platform_user_id, username, display_name, avatar_url, access_token_enc,
        refresh_token_enc, refresh_state, expires_at, scopes, status, connected_at, created_at, updated_at)
    VALUES (@p1,@p2,@p3,@p4,@p5,@p6,@p7,@p8,@p9,@p10,@p11,@p12,@p13,@p14,@p14)
OUTPUT inserted.id;`
	var id int64
	err := r.db.QueryRowContext(ctx, q,
		c.UserID, string(c.Platform), c.PlatformUserID, c.Username,
		nullString(c.DisplayName), nullString(c.AvatarURL),
		c.AccessTokenEnc, nullString(c.RefreshTokenEnc), string(c.RefreshState), nullTime(c.ExpiresAt),
		c.Scopes.String(), string(c.Status), c.ConnectedAt, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("merge connection: %w", err)
	}
	c.ID = id
	return id, nil
}

func (r *ConnectionRepositoryMSSQL) GetByPlatform(ctx context.Context, userID string, platform model.Platform) (*model.Connection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM dbo.[connections] WHERE user_id=@p1 AND platform=@p2`, userID, string(platform))
	return connectionOrNotFound(scanConnection(row))
}

func (r *ConnectionRepositoryMSSQL) GetByID(ctx context.Context, id int64) (*model.Connection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM dbo.[connections] WHERE id=@p1`, id)
	return connectionOrNotFound(scanConnection(row))
}

func (r *ConnectionRepositoryMSSQL) UpdateTokens(ctx context.Context, id int64, accessEnc string, refreshEnc *string, refreshState model.RefreshTokenState, expiresAt *time.Time) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE dbo.[connections] SET access_token_enc=@p1, refresh_token_enc=@p2, refresh_state=@p3,
    expires_at=@p4, status='active', last_synced_at=@p5, updated_at=@p5 WHERE id=@p6`,
		accessEnc, nullString(refreshEnc), string(refreshState), nullTime(expiresAt), now, id)
	return affectedOrNotFound(res, err)
}

func (r *ConnectionRepositoryMSSQL) UpdateStatus(ctx context.Context, id int64, status model.ConnectionStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE dbo.[connections] SET status=@p1, updated_at=@p2 WHERE id=@p3`, string(status), time.Now().UTC(), id)
	return affectedOrNotFound(res, err)
}

func (r *ConnectionRepositoryMSSQL) Revoke(ctx context.Context, userID string, platform model.Platform) error {
	res, err := r.db.ExecContext(ctx, `UPDATE dbo.[connections] SET status='revoked', access_token_enc='', refresh_token_enc=NULL,
    expires_at=NULL, updated_at=@p1 WHERE user_id=@p2 AND platform=@p3`, time.Now().UTC(), userID, string(platform))
	return affectedOrNotFound(res, err)
}

func (r *ConnectionRepositoryMSSQL) ListSummaries(ctx context.Context, userID string) ([]model.ConnectionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+summaryColumns+` FROM dbo.[connections] WHERE user_id=@p1 ORDER BY platform`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.ConnectionSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
