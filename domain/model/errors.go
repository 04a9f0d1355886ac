package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConnectionNotFound    = errors.New("connection not found")
	ErrPostNotFound          = errors.New("post not found")
	ErrTargetNotFound        = errors.New("publication target not found")
	ErrPostNotPublishable    = errors.New("post is not in a publishable state")
	ErrUnsupportedPlatform   = errors.New("unsupported platform")
	ErrCapabilityUnsupported = errors.New("operation not supported by platform")
	ErrTokenRevoked          = errors.New("platform rejected the access token")
	ErrConnectionInactive    = errors.New("connection is not active")
	ErrTargetNotPublished    = errors.New("publication target is not published")
)

// ConfigurationError reports missing or malformed secret material. It is fatal
// and is expected at startup.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
}

// OAuthStateError covers a missing, expired, malformed or mismatched transport
// state. Users see it as an expired session and restart the connect flow.
type OAuthStateError struct {
	Reason string
}

func (e *OAuthStateError) Error() string { return "oauth state invalid: " + e.Reason }

// OAuthError is an error the platform reported on the callback (e.g. access_denied).
type OAuthError struct {
	Platform    Platform
	Code        string
	Description string
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s oauth error %s: %s", e.Platform, e.Code, e.Description)
	}
	return fmt.Sprintf("%s oauth error %s", e.Platform, e.Code)
}

// TokenExchangeError means the platform rejected an authorization code.
type TokenExchangeError struct {
	Platform   Platform
	StatusCode int
	Err        error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("%s token exchange failed (status %d): %v", e.Platform, e.StatusCode, e.Err)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// TokenRefreshError means the refresh token itself is dead. The connection must
// be marked revoked; retrying is pointless.
type TokenRefreshError struct {
	Platform   Platform
	StatusCode int
	Err        error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("%s token refresh failed (status %d): %v", e.Platform, e.StatusCode, e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// RateLimitError is the single shape every adapter translates platform
// throttling into. RetryAfter is nil when the platform gave no hint.
type RateLimitError struct {
	Platform   Platform
	RetryAfter *time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter != nil {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Platform, *e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Platform)
}

// IntegrityError means a ciphertext failed authentication.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string { return "ciphertext integrity check failed: " + e.Reason }

// QuotaExceededError is returned before any network call when a batch would
// exceed the daily call budget.
type QuotaExceededError struct {
	Scope     string
	Requested int64
	Remaining int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily quota exceeded for %s: requested %d, remaining %d", e.Scope, e.Requested, e.Remaining)
}

// PlatformError is a non-success API response that is neither a throttle nor
// an auth failure.
type PlatformError struct {
	Platform   Platform
	Op         string
	StatusCode int
	Body       string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Platform, e.Op, e.StatusCode, e.Body)
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsRevocation reports whether err means the stored credential is dead.
func IsRevocation(err error) bool {
	var re *TokenRefreshError
	return errors.As(err, &re) || errors.Is(err, ErrTokenRevoked)
}

// ErrorCode maps an error to a stable code for per-unit results and redirects.
func ErrorCode(err error) string {
	var (
		cfgErr   *ConfigurationError
		stateErr *OAuthStateError
		oauthErr *OAuthError
		exchErr  *TokenExchangeError
		refErr   *TokenRefreshError
		rlErr    *RateLimitError
		intErr   *IntegrityError
		quotaErr *QuotaExceededError
		platErr  *PlatformError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "configuration_error"
	case errors.As(err, &stateErr):
		return "session_expired"
	case errors.As(err, &oauthErr):
		return "oauth_denied"
	case errors.As(err, &exchErr):
		return "token_exchange_failed"
	case errors.As(err, &refErr), errors.Is(err, ErrTokenRevoked):
		return "connection_revoked"
	case errors.As(err, &rlErr):
		return "rate_limited"
	case errors.As(err, &intErr):
		return "integrity_error"
	case errors.As(err, &quotaErr):
		return "quota_exceeded"
	case errors.Is(err, ErrConnectionNotFound):
		return "not_connected"
	case errors.Is(err, ErrConnectionInactive):
		return "connection_inactive"
	case errors.Is(err, ErrPostNotFound), errors.Is(err, ErrTargetNotFound):
		return "not_found"
	case errors.Is(err, ErrPostNotPublishable), errors.Is(err, ErrTargetNotPublished):
		return "not_publishable"
	case errors.Is(err, ErrUnsupportedPlatform):
		return "unsupported_platform"
	case errors.Is(err, ErrCapabilityUnsupported):
		return "unsupported_operation"
	case errors.As(err, &platErr):
		return "platform_error"
	}
	return "internal_error"
}
