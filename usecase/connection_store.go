package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"socialops/domain/model"
	"socialops/domain/repository"
	"socialops/infrastructure/clients/platform"
	"socialops/infrastructure/logger"
	"socialops/infrastructure/retry"
	"socialops/infrastructure/security"
)

// DefaultRefreshSkew refreshes access tokens this long before they expire.
const DefaultRefreshSkew = 2 * time.Minute

// ConnectionStore owns token material. Plaintext tokens exist only between
// AccessToken and the adapter call that uses them.
type ConnectionStore struct {
	repo        repository.IConnection
	cipher      *security.Cipher
	adapters    AdapterResolver
	policy      retry.Policy
	skew        time.Duration
	callTimeout time.Duration
	now         func() time.Time

	// refreshes holds one in-flight refresh per connection id.
	refreshes singleflight.Group
}

// NewConnectionStore wires the store. policy governs the token endpoint calls
// made while refreshing.
func NewConnectionStore(repo repository.IConnection, cipher *security.Cipher, adapters AdapterResolver, policy retry.Policy) *ConnectionStore {
	return &ConnectionStore{
		repo:        repo,
		cipher:      cipher,
		adapters:    adapters,
		policy:      policy,
		skew:        DefaultRefreshSkew,
		callTimeout: platform.DefaultCallTimeout,
		now:         time.Now,
	}
}

// Upsert encrypts bundle and stores it as the active connection for
// (userID, platform), replacing any previous one.
func (s *ConnectionStore) Upsert(ctx context.Context, userID string, p model.Platform, profile *model.PlatformProfile, bundle *model.TokenBundle) (*model.Connection, error) {
	adapter, err := s.adapters.Get(p)
	if err != nil {
		return nil, err
	}
	accessEnc, refreshEnc, err := s.seal(bundle)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	conn := &model.Connection{
		UserID:          userID,
		Platform:        p,
		PlatformUserID:  profile.PlatformUserID,
		Username:        profile.Username,
		DisplayName:     profile.DisplayName,
		AvatarURL:       profile.AvatarURL,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		RefreshState:    refreshStateFor(adapter.IssuesRefreshTokens(), bundle.RefreshToken),
		ExpiresAt:       bundle.ExpiresAt,
		Scopes:          model.NewScopeSet(bundle.Scopes...),
		Status:          model.ConnectionActive,
		ConnectedAt:     now,
		LastSyncedAt:    &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	id, err := s.repo.Upsert(ctx, conn)
	if err != nil {
		return nil, err
	}
	conn.ID = id
	return conn, nil
}

func (s *ConnectionStore) GetByPlatform(ctx context.Context, userID string, p model.Platform) (*model.Connection, error) {
	return s.repo.GetByPlatform(ctx, userID, p)
}

// UpdateTokens stores a refreshed bundle. A bundle without a refresh token
// keeps the one already stored.
func (s *ConnectionStore) UpdateTokens(ctx context.Context, connectionID int64, bundle *model.TokenBundle) error {
	_, err := s.storeTokens(ctx, connectionID, bundle)
	return err
}

func (s *ConnectionStore) storeTokens(ctx context.Context, connectionID int64, bundle *model.TokenBundle) (*refreshed, error) {
	accessEnc, refreshEnc, err := s.seal(bundle)
	if err != nil {
		return nil, err
	}
	state := model.RefreshPresent
	if refreshEnc == nil {
		current, err := s.repo.GetByID(ctx, connectionID)
		if err != nil {
			return nil, err
		}
		refreshEnc, state = current.RefreshTokenEnc, current.RefreshState
	}
	if err := s.repo.UpdateTokens(ctx, connectionID, accessEnc, refreshEnc, state, bundle.ExpiresAt); err != nil {
		return nil, err
	}
	return &refreshed{
		token:        bundle.AccessToken,
		accessEnc:    accessEnc,
		refreshEnc:   refreshEnc,
		refreshState: state,
		expiresAt:    bundle.ExpiresAt,
	}, nil
}

// Disconnect revokes the connection and wipes its tokens. The row stays so
// publication history keeps its link.
func (s *ConnectionStore) Disconnect(ctx context.Context, userID string, p model.Platform) error {
	return s.repo.Revoke(ctx, userID, p)
}

func (s *ConnectionStore) MarkRevoked(ctx context.Context, connectionID int64, reason error) error {
	logger.GetLogger().
		WithField("connection_id", connectionID).
		WithField("reason", reason).
		Warn("Marking connection revoked")
	return s.repo.UpdateStatus(ctx, connectionID, model.ConnectionRevoked)
}

func (s *ConnectionStore) ListForUser(ctx context.Context, userID string) ([]model.ConnectionSummary, error) {
	return s.repo.ListSummaries(ctx, userID)
}

// AccessToken returns a usable plaintext access token for conn, refreshing it
// first when it is about to expire and a refresh token is stored. Concurrent
// refreshes of one connection share a single token endpoint call. A rejected
// refresh marks the connection revoked unless the stored tokens were rotated
// meanwhile.
func (s *ConnectionStore) AccessToken(ctx context.Context, conn *model.Connection) (string, error) {
	if conn.Status == model.ConnectionRevoked {
		return "", fmt.Errorf("%w: %s is %s", model.ErrConnectionInactive, conn.Platform, conn.Status)
	}
	now := s.now()
	if conn.Status == model.ConnectionActive && !conn.IsExpiring(now, s.skew) {
		return s.cipher.Decrypt(conn.AccessTokenEnc)
	}
	if conn.CanRefresh() {
		return s.refresh(ctx, conn)
	}
	if conn.Status == model.ConnectionExpired || conn.IsExpiring(now, 0) {
		if conn.Status != model.ConnectionExpired {
			if err := s.repo.UpdateStatus(ctx, conn.ID, model.ConnectionExpired); err != nil {
				return "", err
			}
			conn.Status = model.ConnectionExpired
		}
		return "", fmt.Errorf("%w: %s access token expired", model.ErrConnectionInactive, conn.Platform)
	}
	// Inside the skew window with nothing to refresh with: still valid.
	return s.cipher.Decrypt(conn.AccessTokenEnc)
}

// refreshed is the outcome of one refresh, shared by every caller that waited
// on it.
type refreshed struct {
	token        string
	accessEnc    string
	refreshEnc   *string
	refreshState model.RefreshTokenState
	expiresAt    *time.Time
}

func (s *ConnectionStore) refresh(ctx context.Context, conn *model.Connection) (string, error) {
	id, p := conn.ID, conn.Platform
	ch := s.refreshes.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		// Detached from the caller that happened to start the flight.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.callTimeout)
		defer cancel()
		return s.refreshStored(callCtx, id, p)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		if model.IsRevocation(res.Err) {
			conn.Status = model.ConnectionRevoked
		}
		return "", res.Err
	}
	r := res.Val.(*refreshed)
	conn.AccessTokenEnc, conn.RefreshTokenEnc, conn.RefreshState = r.accessEnc, r.refreshEnc, r.refreshState
	conn.ExpiresAt = r.expiresAt
	conn.Status = model.ConnectionActive
	return r.token, nil
}

// refreshStored refreshes from the stored row rather than the caller's copy,
// which may hold a refresh token another refresh already consumed.
func (s *ConnectionStore) refreshStored(ctx context.Context, id int64, p model.Platform) (*refreshed, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case current.Status == model.ConnectionRevoked:
		return nil, fmt.Errorf("%w: %s is %s", model.ErrConnectionInactive, p, current.Status)
	case current.Status == model.ConnectionActive && !current.IsExpiring(s.now(), s.skew):
		return s.adopt(current)
	case !current.CanRefresh():
		return nil, fmt.Errorf("%w: %s has no refresh token", model.ErrConnectionInactive, p)
	}

	adapter, err := s.adapters.Get(p)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.cipher.Decrypt(*current.RefreshTokenEnc)
	if err != nil {
		return nil, err
	}
	bundle, err := retry.WithRetry(ctx, s.policy, func(ctx context.Context) (*model.TokenBundle, error) {
		return adapter.RefreshTokens(ctx, refreshToken)
	})
	if err != nil {
		if !model.IsRevocation(err) {
			return nil, err
		}
		// Another process may have rotated the tokens while this call was out.
		if latest, gErr := s.repo.GetByID(ctx, id); gErr == nil && latest.Status == model.ConnectionActive && rotated(current, latest) {
			logger.GetLogger().
				WithField("platform", p).
				WithField("connection_id", id).
				Info("Refresh token was rotated concurrently, using stored tokens")
			return s.adopt(latest)
		}
		if mErr := s.MarkRevoked(ctx, id, err); mErr != nil {
			logger.GetLogger().WithField("error", mErr).Error("Failed to mark connection revoked")
		}
		return nil, err
	}
	r, err := s.storeTokens(ctx, id, bundle)
	if err != nil {
		return nil, err
	}
	logger.GetLogger().
		WithField("platform", p).
		WithField("connection_id", id).
		Info("Access token refreshed")
	return r, nil
}

func (s *ConnectionStore) adopt(row *model.Connection) (*refreshed, error) {
	token, err := s.cipher.Decrypt(row.AccessTokenEnc)
	if err != nil {
		return nil, err
	}
	return &refreshed{
		token:        token,
		accessEnc:    row.AccessTokenEnc,
		refreshEnc:   row.RefreshTokenEnc,
		refreshState: row.RefreshState,
		expiresAt:    row.ExpiresAt,
	}, nil
}

// rotated reports whether b holds different token material than a.
func rotated(a, b *model.Connection) bool {
	if a.AccessTokenEnc != b.AccessTokenEnc {
		return true
	}
	if (a.RefreshTokenEnc == nil) != (b.RefreshTokenEnc == nil) {
		return true
	}
	return a.RefreshTokenEnc != nil && *a.RefreshTokenEnc != *b.RefreshTokenEnc
}

func (s *ConnectionStore) seal(bundle *model.TokenBundle) (string, *string, error) {
	accessEnc, err := s.cipher.Encrypt(bundle.AccessToken)
	if err != nil {
		return "", nil, err
	}
	if bundle.RefreshToken == nil || *bundle.RefreshToken == "" {
		return accessEnc, nil, nil
	}
	refreshEnc, err := s.cipher.Encrypt(*bundle.RefreshToken)
	if err != nil {
		return "", nil, err
	}
	return accessEnc, &refreshEnc, nil
}

func refreshStateFor(issues bool, refreshToken *string) model.RefreshTokenState {
	switch {
	case refreshToken != nil && *refreshToken != "":
		return model.RefreshPresent
	case issues:
		return model.RefreshAbsent
	}
	return model.RefreshNotApplicable
}
