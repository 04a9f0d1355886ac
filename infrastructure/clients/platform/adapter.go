// Package platform hides each social platform's OAuth and API quirks behind
// one Adapter contract. Adding a platform means implementing Adapter and
// registering it; orchestration code never switches on the platform.
package platform

import (
	"context"
	"time"

	"socialops/domain/model"
)

// DefaultCallTimeout bounds every single platform HTTP call.
const DefaultCallTimeout = 15 * time.Second

// AuthRequest is the authorization redirect plus the PKCE verifier the
// callback must present, when the platform uses PKCE.
type AuthRequest struct {
	URL          string
	CodeVerifier *string
}

// PublishContent is the platform-neutral body of one post.
type PublishContent struct {
	Text      string
	MediaURLs []string
	// AuthorID is the connection's platform user id.
	AuthorID string
}

type PublishedPost struct {
	PlatformPostID string
	URL            string
}

type Adapter interface {
	Platform() model.Platform
	RequiresPKCE() bool
	// IssuesRefreshTokens reports whether a successful exchange is expected to
	// yield a refresh token at all.
	IssuesRefreshTokens() bool
	AuthURL(state, redirectURI string) (AuthRequest, error)
	ExchangeCode(ctx context.Context, code, redirectURI string, verifier *string) (*model.TokenBundle, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*model.TokenBundle, error)
	CurrentUser(ctx context.Context, accessToken string) (*model.PlatformProfile, error)
	FetchPostMetrics(ctx context.Context, accessToken, platformPostID string) (*model.MetricCounts, error)
	Publish(ctx context.Context, accessToken string, content PublishContent) (*PublishedPost, error)
}

// ThreadPublisher is implemented by platforms that can chain posts as replies.
type ThreadPublisher interface {
	PublishReply(ctx context.Context, accessToken string, content PublishContent, inReplyToID string) (*PublishedPost, error)
}

// Reposter is implemented by platforms that can amplify an existing post
// from the connected account.
type Reposter interface {
	Repost(ctx context.Context, accessToken, actorID, platformPostID string) error
	Unrepost(ctx context.Context, accessToken, actorID, platformPostID string) error
}
