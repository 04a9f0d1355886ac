package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"socialops/domain/model"
	"socialops/infrastructure/security"
)

// oauthFlow wraps the authorization-code grant for one platform. The redirect
// URI is supplied per flow, so the stored config never carries one.
type oauthFlow struct {
	platform model.Platform
	config   oauth2.Config
	pkce     bool
	http     *http.Client
	now      func() time.Time
}

func (f *oauthFlow) authURL(state, redirectURI string) (AuthRequest, error) {
	if state == "" {
		return AuthRequest{}, errors.New("oauth state must not be empty")
	}
	if redirectURI == "" {
		return AuthRequest{}, errors.New("redirect uri must not be empty")
	}
	cfg := f.config
	cfg.RedirectURL = redirectURI
	if !f.pkce {
		return AuthRequest{URL: cfg.AuthCodeURL(state)}, nil
	}
	verifier := security.GenerateVerifier()
	u := cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", security.ChallengeFor(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	return AuthRequest{URL: u, CodeVerifier: &verifier}, nil
}

func (f *oauthFlow) exchange(ctx context.Context, code, redirectURI string, verifier *string) (*model.TokenBundle, error) {
	if f.pkce && (verifier == nil || *verifier == "") {
		return nil, &model.TokenExchangeError{Platform: f.platform, Err: errors.New("missing pkce code verifier")}
	}
	cfg := f.config
	cfg.RedirectURL = redirectURI
	var opts []oauth2.AuthCodeOption
	if verifier != nil && *verifier != "" {
		opts = append(opts, oauth2.VerifierOption(*verifier))
	}
	tok, err := cfg.Exchange(f.clientContext(ctx), code, opts...)
	if err != nil {
		if rl := f.rateLimited(err); rl != nil {
			return nil, rl
		}
		return nil, &model.TokenExchangeError{Platform: f.platform, StatusCode: retrieveStatus(err), Err: err}
	}
	return f.bundle(tok), nil
}

func (f *oauthFlow) refresh(ctx context.Context, refreshToken string) (*model.TokenBundle, error) {
	if refreshToken == "" {
		return nil, &model.TokenRefreshError{Platform: f.platform, Err: errors.New("no refresh token")}
	}
	// An already-expired token forces the source to hit the token endpoint.
	src := f.config.TokenSource(f.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)})
	tok, err := src.Token()
	if err != nil {
		if rl := f.rateLimited(err); rl != nil {
			return nil, rl
		}
		status := retrieveStatus(err)
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return nil, &model.TokenRefreshError{Platform: f.platform, StatusCode: status, Err: err}
		}
		return nil, fmt.Errorf("%s token refresh: %w", f.platform, err)
	}
	return f.bundle(tok), nil
}

func (f *oauthFlow) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.http)
}

func (f *oauthFlow) rateLimited(err error) *model.RateLimitError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusTooManyRequests {
		return &model.RateLimitError{Platform: f.platform, RetryAfter: retryAfterHint(re.Response.Header, f.now())}
	}
	return nil
}

func (f *oauthFlow) bundle(tok *oauth2.Token) *model.TokenBundle {
	b := &model.TokenBundle{AccessToken: tok.AccessToken}
	if tok.RefreshToken != "" {
		rt := tok.RefreshToken
		b.RefreshToken = &rt
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		b.ExpiresAt = &exp
	}
	if scope, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(scope) != "" {
		b.Scopes = model.ParseScopeSet(scope)
	} else {
		b.Scopes = model.NewScopeSet(f.config.Scopes...)
	}
	return b
}

func retrieveStatus(err error) int {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode
	}
	return 0
}
