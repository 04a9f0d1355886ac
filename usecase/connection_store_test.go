package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"socialops/domain/model"
	"socialops/infrastructure/clients/platform"
)

func newTestStore(t *testing.T, adapters ...platform.Adapter) (*ConnectionStore, *memConnections) {
	t.Helper()
	repo := newMemConnections()
	return NewConnectionStore(repo, testCipher(t), platform.NewRegistry(adapters...), noSleepPolicy(2)), repo
}

func strPtr(s string) *string { return &s }

func TestConnectionStore_UpsertEncryptsAndDerivesRefreshState(t *testing.T) {
	twitter := newFakeAdapter(model.PlatformTwitter)
	twitter.issues = true
	linkedin := newFakeAdapter(model.PlatformLinkedIn)
	store, repo := newTestStore(t, twitter, linkedin)
	ctx := context.Background()
	profile := &model.PlatformProfile{PlatformUserID: "42", Username: "ada"}

	conn, err := store.Upsert(ctx, "user-1", model.PlatformTwitter, profile, &model.TokenBundle{
		AccessToken:  "plain-access",
		RefreshToken: strPtr("plain-refresh"),
		Scopes:       model.NewScopeSet("tweet.write", "tweet.read", "tweet.read"),
	})
	require.NoError(t, err)
	require.Equal(t, model.RefreshPresent, conn.RefreshState)
	require.NotContains(t, conn.AccessTokenEnc, "plain-access")
	require.Equal(t, model.ScopeSet{"tweet.read", "tweet.write"}, conn.Scopes)

	stored, err := repo.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	plain, err := store.cipher.Decrypt(stored.AccessTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "plain-access", plain)

	tests := []struct {
		name     string
		platform model.Platform
		bundle   *model.TokenBundle
		want     model.RefreshTokenState
	}{
		{"issuing platform without refresh token", model.PlatformTwitter, &model.TokenBundle{AccessToken: "a"}, model.RefreshAbsent},
		{"platform that never issues them", model.PlatformLinkedIn, &model.TokenBundle{AccessToken: "a"}, model.RefreshNotApplicable},
		{"platform that sent one anyway", model.PlatformLinkedIn, &model.TokenBundle{AccessToken: "a", RefreshToken: strPtr("r")}, model.RefreshPresent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := store.Upsert(ctx, "user-2", tt.platform, profile, tt.bundle)
			require.NoError(t, err)
			require.Equal(t, tt.want, c.RefreshState)
		})
	}
}

func TestConnectionStore_UpsertOverwritesSamePair(t *testing.T) {
	store, repo := newTestStore(t, newFakeAdapter(model.PlatformTwitter))
	first := seedConnection(t, store, "user-1", model.PlatformTwitter)
	second := seedConnection(t, store, "user-1", model.PlatformTwitter)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.rows, 1)
}

func TestConnectionStore_ListForUserNeverExposesTokens(t *testing.T) {
	store, _ := newTestStore(t, newFakeAdapter(model.PlatformTwitter), newFakeAdapter(model.PlatformLinkedIn))
	ctx := context.Background()
	for _, p := range []model.Platform{model.PlatformTwitter, model.PlatformLinkedIn} {
		_, err := store.Upsert(ctx, "user-1", p, &model.PlatformProfile{PlatformUserID: "x"},
			&model.TokenBundle{AccessToken: "secret-access-" + string(p), RefreshToken: strPtr("secret-refresh")})
		require.NoError(t, err)
	}

	summaries, err := store.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	typ := reflect.TypeOf(model.ConnectionSummary{})
	for i := 0; i < typ.NumField(); i++ {
		require.NotContains(t, strings.ToLower(typ.Field(i).Name), "token")
	}
	raw, err := json.Marshal(summaries)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "secret")
	require.NotContains(t, strings.ToLower(string(raw)), "token")
}

func TestConnectionStore_DisconnectKeepsRow(t *testing.T) {
	store, repo := newTestStore(t, newFakeAdapter(model.PlatformTwitter))
	conn := seedConnection(t, store, "user-1", model.PlatformTwitter)

	require.NoError(t, store.Disconnect(context.Background(), "user-1", model.PlatformTwitter))

	row, err := repo.GetByID(context.Background(), conn.ID)
	require.NoError(t, err)
	require.Equal(t, model.ConnectionRevoked, row.Status)
	require.Empty(t, row.AccessTokenEnc)
	require.Nil(t, row.RefreshTokenEnc)

	_, err = store.AccessToken(context.Background(), row)
	require.ErrorIs(t, err, model.ErrConnectionInactive)
}

func TestConnectionStore_AccessToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(time.Minute)
	later := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	t.Run("fresh token is decrypted", func(t *testing.T) {
		adapter := newFakeAdapter(model.PlatformTwitter)
		store, _ := newTestStore(t, adapter)
		store.now = func() time.Time { return now }
		conn, err := store.Upsert(context.Background(), "u", model.PlatformTwitter, &model.PlatformProfile{},
			&model.TokenBundle{AccessToken: "current", RefreshToken: strPtr("r"), ExpiresAt: &later})
		require.NoError(t, err)

		tok, err := store.AccessToken(context.Background(), conn)
		require.NoError(t, err)
		require.Equal(t, "current", tok)
		require.Zero(t, adapter.Calls("refresh"))
	})

	t.Run("expiring token is refreshed and refresh token kept", func(t *testing.T) {
		adapter := newFakeAdapter(model.PlatformTwitter)
		adapter.issues = true
		adapter.refresh = func(rt string) (*model.TokenBundle, error) {
			require.Equal(t, "r-1", rt)
			return &model.TokenBundle{AccessToken: "renewed", ExpiresAt: &later}, nil
		}
		store, repo := newTestStore(t, adapter)
		store.now = func() time.Time { return now }
		conn, err := store.Upsert(context.Background(), "u", model.PlatformTwitter, &model.PlatformProfile{},
			&model.TokenBundle{AccessToken: "old", RefreshToken: strPtr("r-1"), ExpiresAt: &soon})
		require.NoError(t, err)

		tok, err := store.AccessToken(context.Background(), conn)
		require.NoError(t, err)
		require.Equal(t, "renewed", tok)

		row, err := repo.GetByID(context.Background(), conn.ID)
		require.NoError(t, err)
		require.Equal(t, model.RefreshPresent, row.RefreshState)
		refresh, err := store.cipher.Decrypt(*row.RefreshTokenEnc)
		require.NoError(t, err)
		require.Equal(t, "r-1", refresh)
		access, err := store.cipher.Decrypt(row.AccessTokenEnc)
		require.NoError(t, err)
		require.Equal(t, "renewed", access)
	})

	t.Run("rejected refresh revokes the connection", func(t *testing.T) {
		adapter := newFakeAdapter(model.PlatformTwitter)
		adapter.refresh = func(string) (*model.TokenBundle, error) {
			return nil, &model.TokenRefreshError{Platform: model.PlatformTwitter, StatusCode: 400, Err: errors.New("invalid_grant")}
		}
		store, repo := newTestStore(t, adapter)
		store.now = func() time.Time { return now }
		conn, err := store.Upsert(context.Background(), "u", model.PlatformTwitter, &model.PlatformProfile{},
			&model.TokenBundle{AccessToken: "old", RefreshToken: strPtr("dead"), ExpiresAt: &past})
		require.NoError(t, err)

		_, err = store.AccessToken(context.Background(), conn)
		var refErr *model.TokenRefreshError
		require.ErrorAs(t, err, &refErr)
		require.Equal(t, model.ConnectionRevoked, repo.status("u", model.PlatformTwitter))
	})

	t.Run("transient refresh failure leaves status alone", func(t *testing.T) {
		adapter := newFakeAdapter(model.PlatformTwitter)
		adapter.refresh = func(string) (*model.TokenBundle, error) { return nil, errors.New("502 bad gateway") }
		store, repo := newTestStore(t, adapter)
		store.now = func() time.Time { return now }
		conn, err := store.Upsert(context.Background(), "u", model.PlatformTwitter, &model.PlatformProfile{},
			&model.TokenBundle{AccessToken: "old", RefreshToken: strPtr("r"), ExpiresAt: &past})
		require.NoError(t, err)

		_, err = store.AccessToken(context.Background(), conn)
		require.Error(t, err)
		require.Equal(t, model.ConnectionActive, repo.status("u", model.PlatformTwitter))
	})

	t.Run("expired without refresh token", func(t *testing.T) {
		store, repo := newTestStore(t, newFakeAdapter(model.PlatformLinkedIn))
		store.now = func() time.Time { return now }
		conn, err := store.Upsert(context.Background(), "u", model.PlatformLinkedIn, &model.PlatformProfile{},
			&model.TokenBundle{AccessToken: "old", ExpiresAt: &past})
		require.NoError(t, err)

		_, err = store.AccessToken(context.Background(), conn)
		require.ErrorIs(t, err, model.ErrConnectionInactive)
		require.Equal(t, model.ConnectionExpired, repo.status("u", model.PlatformLinkedIn))
	})

	t.Run("inside skew without refresh token is still usable", func(t *testing.T) {
		store, _ := newTestStore(t, newFakeAdapter(model.PlatformLinkedIn))
		store.now = func() time.Time { return now }
		conn, err := store.Upsert(context.Background(), "u", model.PlatformLinkedIn, &model.PlatformProfile{},
			&model.TokenBundle{AccessToken: "still-good", ExpiresAt: &soon})
		require.NoError(t, err)

		tok, err := store.AccessToken(context.Background(), conn)
		require.NoError(t, err)
		require.Equal(t, "still-good", tok)
	})
}

// rotatingRefresh behaves like a platform with single-use refresh tokens: each
// accepted token is replaced and presenting a spent one is rejected.
func rotatingRefresh(expiresAt *time.Time) func(string) (*model.TokenBundle, error) {
	var mu sync.Mutex
	valid, generation := "r-0", 0
	return func(rt string) (*model.TokenBundle, error) {
		mu.Lock()
		defer mu.Unlock()
		if rt != valid {
			return nil, &model.TokenRefreshError{Platform: model.PlatformTwitter, StatusCode: 400, Err: errors.New("invalid_grant")}
		}
		generation++
		valid = fmt.Sprintf("r-%d", generation)
		return &model.TokenBundle{
			AccessToken:  fmt.Sprintf("a-%d", generation),
			RefreshToken: strPtr(valid),
			ExpiresAt:    expiresAt,
		}, nil
	}
}

func TestConnectionStore_ConcurrentRefreshRotatesOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	later := now.Add(2 * time.Hour)
	adapter := newFakeAdapter(model.PlatformTwitter)
	adapter.issues = true
	adapter.refresh = rotatingRefresh(&later)
	store, repo := newTestStore(t, adapter)
	store.now = func() time.Time { return now }
	ctx := context.Background()
	conn, err := store.Upsert(ctx, "u", model.PlatformTwitter, &model.PlatformProfile{},
		&model.TokenBundle{AccessToken: "a-0", RefreshToken: strPtr("r-0"), ExpiresAt: &past})
	require.NoError(t, err)

	// Every unit loaded the connection before any refresh happened.
	const units = 8
	stale := make([]*model.Connection, units)
	for i := range stale {
		stale[i], err = repo.GetByID(ctx, conn.ID)
		require.NoError(t, err)
	}

	tokens := make([]string, units)
	errs := make([]error, units)
	var wg sync.WaitGroup
	for i := 0; i < units; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = store.AccessToken(ctx, stale[i])
		}(i)
	}
	wg.Wait()

	for i := 0; i < units; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "a-1", tokens[i])
		require.Equal(t, model.ConnectionActive, stale[i].Status)
	}
	require.Equal(t, 1, adapter.Calls("refresh"))
	require.Equal(t, model.ConnectionActive, repo.status("u", model.PlatformTwitter))

	// A unit still holding the original row after the rotation uses the
	// stored tokens instead of replaying the spent refresh token.
	late := *stale[0]
	late.AccessTokenEnc, late.RefreshTokenEnc, late.ExpiresAt = conn.AccessTokenEnc, conn.RefreshTokenEnc, &past
	tok, err := store.AccessToken(ctx, &late)
	require.NoError(t, err)
	require.Equal(t, "a-1", tok)
	require.Equal(t, 1, adapter.Calls("refresh"))
}

func TestConnectionStore_RejectedRefreshAfterRotationElsewhere(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	later := now.Add(2 * time.Hour)
	adapter := newFakeAdapter(model.PlatformTwitter)
	store, repo := newTestStore(t, adapter)
	store.now = func() time.Time { return now }
	ctx := context.Background()
	conn, err := store.Upsert(ctx, "u", model.PlatformTwitter, &model.PlatformProfile{},
		&model.TokenBundle{AccessToken: "a-0", RefreshToken: strPtr("r-0"), ExpiresAt: &past})
	require.NoError(t, err)

	// Another instance rotates the tokens while this refresh is in flight,
	// so the platform rejects the token this instance presented.
	adapter.refresh = func(string) (*model.TokenBundle, error) {
		accessEnc, _ := store.cipher.Encrypt("a-other")
		refreshEnc, _ := store.cipher.Encrypt("r-other")
		_ = repo.UpdateTokens(ctx, conn.ID, accessEnc, &refreshEnc, model.RefreshPresent, &later)
		return nil, &model.TokenRefreshError{Platform: model.PlatformTwitter, StatusCode: 400, Err: errors.New("invalid_grant")}
	}

	tok, err := store.AccessToken(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, "a-other", tok)
	require.Equal(t, model.ConnectionActive, conn.Status)
	require.Equal(t, model.ConnectionActive, repo.status("u", model.PlatformTwitter))
}

func TestConnectionStore_ThrottledRefreshIsRetried(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	later := now.Add(time.Hour)
	adapter := newFakeAdapter(model.PlatformTwitter)
	adapter.refresh = func(string) (*model.TokenBundle, error) {
		if adapter.Calls("refresh") == 1 {
			return nil, &model.RateLimitError{Platform: model.PlatformTwitter}
		}
		return &model.TokenBundle{AccessToken: "after-wait", ExpiresAt: &later}, nil
	}
	store, repo := newTestStore(t, adapter)
	store.now = func() time.Time { return now }
	conn, err := store.Upsert(context.Background(), "u", model.PlatformTwitter, &model.PlatformProfile{},
		&model.TokenBundle{AccessToken: "old", RefreshToken: strPtr("r"), ExpiresAt: &past})
	require.NoError(t, err)

	tok, err := store.AccessToken(context.Background(), conn)
	require.NoError(t, err)
	require.Equal(t, "after-wait", tok)
	require.Equal(t, 2, adapter.Calls("refresh"))
	require.Equal(t, model.ConnectionActive, repo.status("u", model.PlatformTwitter))
}

func TestConnectionStore_TamperedTokenIsIntegrityError(t *testing.T) {
	store, _ := newTestStore(t, newFakeAdapter(model.PlatformTwitter))
	conn := seedConnection(t, store, "u", model.PlatformTwitter)
	enc := []byte(conn.AccessTokenEnc)
	last := len(enc) - 3
	if enc[last] == 'A' {
		enc[last] = 'B'
	} else {
		enc[last] = 'A'
	}
	conn.AccessTokenEnc = string(enc)

	_, err := store.AccessToken(context.Background(), conn)
	var intErr *model.IntegrityError
	require.ErrorAs(t, err, &intErr)
}
