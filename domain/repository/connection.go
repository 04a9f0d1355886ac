package repository

import (
	"context"
	"time"

	"socialops/domain/model"
)

// IConnection persists OAuth connections. Token columns hold ciphertext only.
type IConnection interface {
	// Upsert inserts or overwrites the row for (UserID, Platform) and returns its id.
	Upsert(ctx context.Context, c *model.Connection) (int64, error)
	GetByPlatform(ctx context.Context, userID string, platform model.Platform) (*model.Connection, error)
	GetByID(ctx context.Context, id int64) (*model.Connection, error)
	UpdateTokens(ctx context.Context, id int64, accessEnc string, refreshEnc *string, refreshState model.RefreshTokenState, expiresAt *time.Time) error
	UpdateStatus(ctx context.Context, id int64, status model.ConnectionStatus) error
	// Revoke flips the status to revoked and wipes token material, keeping the row.
	Revoke(ctx context.Context, userID string, platform model.Platform) error
	// ListSummaries never selects token columns.
	ListSummaries(ctx context.Context, userID string) ([]model.ConnectionSummary, error)
}
