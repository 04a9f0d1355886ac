package model

import (
	"sort"
	"strings"
	"time"
)

type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionExpired ConnectionStatus = "expired"
	ConnectionRevoked ConnectionStatus = "revoked"
)

// RefreshTokenState distinguishes a platform that never issues refresh tokens
// from one that does but did not hand us one.
type RefreshTokenState string

const (
	RefreshNotApplicable RefreshTokenState = "not_applicable"
	RefreshAbsent        RefreshTokenState = "absent"
	RefreshPresent       RefreshTokenState = "present"
)

// ScopeSet is a set of OAuth scopes. Order is irrelevant; the canonical form is
// sorted and de-duplicated.
type ScopeSet []string

func NewScopeSet(scopes ...string) ScopeSet {
	seen := make(map[string]struct{}, len(scopes))
	out := make(ScopeSet, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ParseScopeSet accepts space or comma separated scopes as platforms return them.
func ParseScopeSet(raw string) ScopeSet {
	return NewScopeSet(strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })...)
}

func (s ScopeSet) Has(scope string) bool {
	for _, v := range s {
		if v == scope {
			return true
		}
	}
	return false
}

func (s ScopeSet) Equal(other ScopeSet) bool {
	a, b := NewScopeSet(s...), NewScopeSet(other...)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String is the storage form (space separated).
func (s ScopeSet) String() string { return strings.Join(NewScopeSet(s...), " ") }

// Connection is the persisted OAuth credential for one (user, platform) pair.
// Token fields hold ciphertext and never leave the connection store.
type Connection struct {
	ID              int64             `json:"id"`
	UserID          string            `json:"user_id"`
	Platform        Platform          `json:"platform"`
	PlatformUserID  string            `json:"platform_user_id"`
	Username        string            `json:"username"`
	DisplayName     *string           `json:"display_name,omitempty"`
	AvatarURL       *string           `json:"avatar_url,omitempty"`
	AccessTokenEnc  string            `json:"-"`
	RefreshTokenEnc *string           `json:"-"`
	RefreshState    RefreshTokenState `json:"refresh_state"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	Scopes          ScopeSet          `json:"scopes"`
	Status          ConnectionStatus  `json:"status"`
	ConnectedAt     time.Time         `json:"connected_at"`
	LastSyncedAt    *time.Time        `json:"last_synced_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// IsExpiring reports whether the access token expires within skew of now.
// Tokens without an expiry never expire.
func (c *Connection) IsExpiring(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(skew).Before(*c.ExpiresAt)
}

func (c *Connection) CanRefresh() bool {
	return c.RefreshState == RefreshPresent && c.RefreshTokenEnc != nil && *c.RefreshTokenEnc != ""
}

// Summary is the API-facing projection.
func (c *Connection) Summary() ConnectionSummary {
	return ConnectionSummary{
		ID:             c.ID,
		Platform:       c.Platform,
		PlatformUserID: c.PlatformUserID,
		Username:       c.Username,
		DisplayName:    c.DisplayName,
		AvatarURL:      c.AvatarURL,
		Scopes:         NewScopeSet(c.Scopes...),
		Status:         c.Status,
		ExpiresAt:      c.ExpiresAt,
		ConnectedAt:    c.ConnectedAt,
		LastSyncedAt:   c.LastSyncedAt,
	}
}

// ConnectionSummary is a Connection without any token material.
type ConnectionSummary struct {
	ID             int64            `json:"id"`
	Platform       Platform         `json:"platform"`
	PlatformUserID string           `json:"platform_user_id"`
	Username       string           `json:"username"`
	DisplayName    *string          `json:"display_name,omitempty"`
	AvatarURL      *string          `json:"avatar_url,omitempty"`
	Scopes         ScopeSet         `json:"scopes"`
	Status         ConnectionStatus `json:"status"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
	ConnectedAt    time.Time        `json:"connected_at"`
	LastSyncedAt   *time.Time       `json:"last_synced_at,omitempty"`
}

// TokenBundle is the plaintext token material produced by an OAuth exchange or refresh.
type TokenBundle struct {
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
	Scopes       ScopeSet
}

// PlatformProfile is the platform-side identity behind an access token.
type PlatformProfile struct {
	PlatformUserID string  `json:"platform_user_id"`
	Username       string  `json:"username"`
	DisplayName    *string `json:"display_name,omitempty"`
	AvatarURL      *string `json:"avatar_url,omitempty"`
}
