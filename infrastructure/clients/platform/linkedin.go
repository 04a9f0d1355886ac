package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"socialops/domain/model"
	"socialops/infrastructure/telemetry"
)

const (
	linkedInAuthURL    = "https://www.linkedin.com/oauth/v2/authorization"
	linkedInTokenURL   = "https://www.linkedin.com/oauth/v2/accessToken"
	linkedInAPIBaseURL = "https://api.linkedin.com"
	linkedInAPIVersion = "202405"
	linkedInPersonURN  = "urn:li:person:"
)

var linkedInDefaultScopes = []string{"openid", "profile", "email", "w_member_social"}

type LinkedInConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	APIVersion   string
	Timeout      time.Duration
	// RefreshTokens is set for apps LinkedIn has enabled programmatic refresh for.
	RefreshTokens bool
}

// LinkedIn is the LinkedIn REST adapter: OpenID Connect profile, Posts API
// publishing and socialActions metrics. No PKCE; no threads or reposts.
type LinkedIn struct {
	oauth         *oauthFlow
	api           *apiClient
	refreshTokens bool
}

var _ Adapter = (*LinkedIn)(nil)

func NewLinkedIn(cfg LinkedInConfig, metrics *telemetry.Collector) *LinkedIn {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = linkedInDefaultScopes
	}
	api := newAPIClient(model.PlatformLinkedIn, orDefault(cfg.APIBaseURL, linkedInAPIBaseURL), cfg.Timeout, metrics)
	api.headers["LinkedIn-Version"] = orDefault(cfg.APIVersion, linkedInAPIVersion)
	api.headers["X-Restli-Protocol-Version"] = "2.0.0"
	return &LinkedIn{
		oauth: &oauthFlow{
			platform: model.PlatformLinkedIn,
			config: oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Scopes:       scopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:   orDefault(cfg.AuthURL, linkedInAuthURL),
					TokenURL:  orDefault(cfg.TokenURL, linkedInTokenURL),
					AuthStyle: oauth2.AuthStyleInParams,
				},
			},
			http: api.http,
			now:  time.Now,
		},
		api:           api,
		refreshTokens: cfg.RefreshTokens,
	}
}

func (l *LinkedIn) Platform() model.Platform { return model.PlatformLinkedIn }

func (l *LinkedIn) RequiresPKCE() bool { return false }

func (l *LinkedIn) IssuesRefreshTokens() bool { return l.refreshTokens }

func (l *LinkedIn) AuthURL(state, redirectURI string) (AuthRequest, error) {
	return l.oauth.authURL(state, redirectURI)
}

func (l *LinkedIn) ExchangeCode(ctx context.Context, code, redirectURI string, verifier *string) (*model.TokenBundle, error) {
	return l.oauth.exchange(ctx, code, redirectURI, verifier)
}

func (l *LinkedIn) RefreshTokens(ctx context.Context, refreshToken string) (*model.TokenBundle, error) {
	if !l.refreshTokens {
		return nil, fmt.Errorf("linkedin refresh: %w", model.ErrCapabilityUnsupported)
	}
	return l.oauth.refresh(ctx, refreshToken)
}

type linkedInUserInfo struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

func (l *LinkedIn) CurrentUser(ctx context.Context, accessToken string) (*model.PlatformProfile, error) {
	var res linkedInUserInfo
	_, err := l.api.do(ctx, apiCall{
		op:     "current_user",
		method: http.MethodGet,
		path:   "/v2/userinfo",
		token:  accessToken,
		out:    &res,
	})
	if err != nil {
		return nil, err
	}
	if res.Sub == "" {
		return nil, errors.New("linkedin current_user: empty subject")
	}
	username := res.Email
	if username == "" {
		username = res.Sub
	}
	return &model.PlatformProfile{
		PlatformUserID: res.Sub,
		Username:       username,
		DisplayName:    optional(res.Name),
		AvatarURL:      optional(res.Picture),
	}, nil
}

type linkedInPostRequest struct {
	Author                    string               `json:"author"`
	Commentary                string               `json:"commentary"`
	Visibility                string               `json:"visibility"`
	Distribution              linkedInDistribution `json:"distribution"`
	Content                   *linkedInPostContent `json:"content,omitempty"`
	LifecycleState            string               `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool                 `json:"isReshareDisabledByAuthor"`
}

type linkedInDistribution struct {
	FeedDistribution               string   `json:"feedDistribution"`
	TargetEntities                 []string `json:"targetEntities"`
	ThirdPartyDistributionChannels []string `json:"thirdPartyDistributionChannels"`
}

type linkedInPostContent struct {
	Article struct {
		Source string `json:"source"`
	} `json:"article"`
}

func (l *LinkedIn) Publish(ctx context.Context, accessToken string, content PublishContent) (*PublishedPost, error) {
	if content.AuthorID == "" {
		return nil, errors.New("linkedin publish: missing author id")
	}
	req := linkedInPostRequest{
		Author:     personURN(content.AuthorID),
		Commentary: content.Text,
		Visibility: "PUBLIC",
		Distribution: linkedInDistribution{
			FeedDistribution:               "MAIN_FEED",
			TargetEntities:                 []string{},
			ThirdPartyDistributionChannels: []string{},
		},
		LifecycleState: "PUBLISHED",
	}
	if len(content.MediaURLs) > 0 {
		req.Content = &linkedInPostContent{}
		req.Content.Article.Source = content.MediaURLs[0]
	}
	h, err := l.api.do(ctx, apiCall{
		op:     "publish",
		method: http.MethodPost,
		path:   "/rest/posts",
		token:  accessToken,
		body:   req,
	})
	if err != nil {
		return nil, err
	}
	urn := h.Get("x-restli-id")
	if urn == "" {
		return nil, errors.New("linkedin publish: response carried no post urn")
	}
	return &PublishedPost{PlatformPostID: urn, URL: "https://www.linkedin.com/feed/update/" + urn + "/"}, nil
}

type linkedInSocialActions struct {
	LikesSummary *struct {
		TotalLikes *int64 `json:"totalLikes"`
	} `json:"likesSummary"`
	CommentsSummary *struct {
		AggregatedTotalComments *int64 `json:"aggregatedTotalComments"`
	} `json:"commentsSummary"`
}

// FetchPostMetrics reads likes and comments. Member posts expose no
// impressions or reshare counts, which stay nil.
func (l *LinkedIn) FetchPostMetrics(ctx context.Context, accessToken, platformPostID string) (*model.MetricCounts, error) {
	var res linkedInSocialActions
	_, err := l.api.do(ctx, apiCall{
		op:     "fetch_metrics",
		method: http.MethodGet,
		path:   "/rest/socialActions/" + url.PathEscape(platformPostID),
		token:  accessToken,
		out:    &res,
	})
	if err != nil {
		return nil, err
	}
	counts := &model.MetricCounts{}
	if res.LikesSummary != nil {
		counts.Likes = res.LikesSummary.TotalLikes
	}
	if res.CommentsSummary != nil {
		counts.Replies = res.CommentsSummary.AggregatedTotalComments
	}
	return counts, nil
}

func personURN(id string) string {
	if strings.HasPrefix(id, "urn:li:") {
		return id
	}
	return linkedInPersonURN + id
}
