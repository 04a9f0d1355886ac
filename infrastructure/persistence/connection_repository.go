package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"socialops/domain/model"
	"socialops/domain/repository"
)

// ConnectionRepository stores OAuth connections in PostgreSQL.
type ConnectionRepository struct{ db *sql.DB }

var _ repository.IConnection = (*ConnectionRepository)(nil)

func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func (r *ConnectionRepository) Upsert(ctx context.Context, c *model.Connection) (int64, error) {
	now := time.Now().UTC()
	if c.ConnectedAt.IsZero() {
		c.ConnectedAt = now
	}
	q := `INSERT INTO connections (user_id, platform, platform_user_id, username, display_name, avatar_url,
			access_token_enc, refresh_token_enc, refresh_state, expires_at, scopes, status,
			connected_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
		ON CONFLICT (user_id, platform) DO UPDATE SET
			platform_user_id=EXCLUDED.platform_user_id,
			username=EXCLUDED.username,
			display_name=EXCLUDED.display_name,
			avatar_url=EXCLUDED.avatar_url,
			access_token_enc=EXCLUDED.access_token_enc,
			refresh_token_enc=EXCLUDED.refresh_token_enc,
			refresh_state=EXCLUDED.refresh_state,
			expires_at=EXCLUDED.expires_at,
			scopes=EXCLUDED.scopes,
			status=EXCLUDED.status,
			connected_at=EXCLUDED.connected_at,
			updated_at=EXCLUDED.updated_at
		RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, q,
		c.UserID, c.Platform, c.PlatformUserID, c.Username, c.DisplayName, c.AvatarURL,
		c.AccessTokenEnc, c.RefreshTokenEnc, c.RefreshState, c.ExpiresAt, c.Scopes.String(), c.Status,
		c.ConnectedAt, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert connection: %w", err)
	}
	c.ID = id
	return id, nil
}

func (r *ConnectionRepository) GetByPlatform(ctx context.Context, userID string, platform model.Platform) (*model.Connection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE user_id=$1 AND platform=$2`, userID, platform)
	return connectionOrNotFound(scanConnection(row))
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id int64) (*model.Connection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id=$1`, id)
	return connectionOrNotFound(scanConnection(row))
}

func (r *ConnectionRepository) UpdateTokens(ctx context.Context, id int64, accessEnc string, refreshEnc *string, refreshState model.RefreshTokenState, expiresAt *time.Time) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE connections SET access_token_enc=$1, refresh_token_enc=$2, refresh_state=$3,
		expires_at=$4, status='active', last_synced_at=$5, updated_at=$5 WHERE id=$6`,
		accessEnc, refreshEnc, refreshState, expiresAt, now, id)
	return affectedOrNotFound(res, err)
}

func (r *ConnectionRepository) UpdateStatus(ctx context.Context, id int64, status model.ConnectionStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE connections SET status=$1, updated_at=$2 WHERE id=$3`, status, time.Now().UTC(), id)
	return affectedOrNotFound(res, err)
}

func (r *ConnectionRepository) Revoke(ctx context.Context, userID string, platform model.Platform) error {
	res, err := r.db.ExecContext(ctx, `UPDATE connections SET status='revoked', access_token_enc='', refresh_token_enc=NULL,
		expires_at=NULL, updated_at=$1 WHERE user_id=$2 AND platform=$3`, time.Now().UTC(), userID, platform)
	return affectedOrNotFound(res, err)
}

func (r *ConnectionRepository) ListSummaries(ctx context.Context, userID string) ([]model.ConnectionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+summaryColumns+` FROM connections WHERE user_id=$1 ORDER BY platform`, userID)
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

func connectionOrNotFound(c *model.Connection, err error) (*model.Connection, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrConnectionNotFound
	}
	return c, err
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrConnectionNotFound
	}
	return nil
}
