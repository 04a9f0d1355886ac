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
	twitterAuthURL      = "https://twitter.com/i/oauth2/authorize"
	twitterTokenURL     = "https://api.twitter.com/2/oauth2/token"
	twitterAPIBaseURL   = "https://api.twitter.com"
	twitterOfflineScope = "offline.access"
)

var twitterDefaultScopes = []string{"tweet.read", "tweet.write", "users.read", twitterOfflineScope}

type TwitterConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Timeout      time.Duration
}

// Twitter is the X (Twitter) API v2 adapter. OAuth 2.0 with PKCE; refresh
// tokens are issued when offline.access is granted.
type Twitter struct {
	oauth *oauthFlow
	api   *apiClient
}

var (
	_ Adapter         = (*Twitter)(nil)
	_ ThreadPublisher = (*Twitter)(nil)
	_ Reposter        = (*Twitter)(nil)
)

func NewTwitter(cfg TwitterConfig, metrics *telemetry.Collector) *Twitter {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = twitterDefaultScopes
	}
	api := newAPIClient(model.PlatformTwitter, orDefault(cfg.APIBaseURL, twitterAPIBaseURL), cfg.Timeout, metrics)
	return &Twitter{
		oauth: &oauthFlow{
			platform: model.PlatformTwitter,
			config: oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Scopes:       scopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:   orDefault(cfg.AuthURL, twitterAuthURL),
					TokenURL:  orDefault(cfg.TokenURL, twitterTokenURL),
					AuthStyle: oauth2.AuthStyleInHeader,
				},
			},
			pkce: true,
			http: api.http,
			now:  time.Now,
		},
		api: api,
	}
}

func (t *Twitter) Platform() model.Platform { return model.PlatformTwitter }

func (t *Twitter) RequiresPKCE() bool { return true }

func (t *Twitter) IssuesRefreshTokens() bool {
	return model.NewScopeSet(t.oauth.config.Scopes...).Has(twitterOfflineScope)
}

func (t *Twitter) AuthURL(state, redirectURI string) (AuthRequest, error) {
	return t.oauth.authURL(state, redirectURI)
}

func (t *Twitter) ExchangeCode(ctx context.Context, code, redirectURI string, verifier *string) (*model.TokenBundle, error) {
	return t.oauth.exchange(ctx, code, redirectURI, verifier)
}

func (t *Twitter) RefreshTokens(ctx context.Context, refreshToken string) (*model.TokenBundle, error) {
	return t.oauth.refresh(ctx, refreshToken)
}

type twitterUserFields struct {
	UserFields string `url:"user.fields"`
}

type twitterUserResponse struct {
	Data struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

func (t *Twitter) CurrentUser(ctx context.Context, accessToken string) (*model.PlatformProfile, error) {
	var res twitterUserResponse
	_, err := t.api.do(ctx, apiCall{
		op:     "current_user",
		method: http.MethodGet,
		path:   "/2/users/me",
		token:  accessToken,
		params: twitterUserFields{UserFields: "name,username,profile_image_url"},
		out:    &res,
	})
	if err != nil {
		return nil, err
	}
	if res.Data.ID == "" {
		return nil, fmt.Errorf("twitter current_user: empty user id")
	}
	return &model.PlatformProfile{
		PlatformUserID: res.Data.ID,
		Username:       res.Data.Username,
		DisplayName:    optional(res.Data.Name),
		AvatarURL:      optional(res.Data.ProfileImageURL),
	}, nil
}

type twitterTweetRequest struct {
	Text  string             `json:"text"`
	Reply *twitterReplyField `json:"reply,omitempty"`
}

type twitterReplyField struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type twitterTweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (t *Twitter) Publish(ctx context.Context, accessToken string, content PublishContent) (*PublishedPost, error) {
	return t.createTweet(ctx, "publish", accessToken, content, nil)
}

func (t *Twitter) PublishReply(ctx context.Context, accessToken string, content PublishContent, inReplyToID string) (*PublishedPost, error) {
	if inReplyToID == "" {
		return nil, errors.New("twitter publish_reply: missing parent tweet id")
	}
	return t.createTweet(ctx, "publish_reply", accessToken, content, &twitterReplyField{InReplyToTweetID: inReplyToID})
}

func (t *Twitter) createTweet(ctx context.Context, op, accessToken string, content PublishContent, reply *twitterReplyField) (*PublishedPost, error) {
	var res twitterTweetResponse
	_, err := t.api.do(ctx, apiCall{
		op:     op,
		method: http.MethodPost,
		path:   "/2/tweets",
		token:  accessToken,
		body:   twitterTweetRequest{Text: tweetText(content), Reply: reply},
		out:    &res,
	})
	if err != nil {
		return nil, err
	}
	if res.Data.ID == "" {
		return nil, fmt.Errorf("twitter %s: response carried no tweet id", op)
	}
	return &PublishedPost{PlatformPostID: res.Data.ID, URL: "https://x.com/i/web/status/" + res.Data.ID}, nil
}

// tweetText appends media links; X renders them as cards.
func tweetText(content PublishContent) string {
	if len(content.MediaURLs) == 0 {
		return content.Text
	}
	parts := append([]string{strings.TrimSpace(content.Text)}, content.MediaURLs...)
	return strings.TrimSpace(strings.Join(parts, " "))
}

type twitterRetweetRequest struct {
	TweetID string `json:"tweet_id"`
}

func (t *Twitter) Repost(ctx context.Context, accessToken, actorID, platformPostID string) error {
	_, err := t.api.do(ctx, apiCall{
		op:     "repost",
		method: http.MethodPost,
		path:   "/2/users/" + url.PathEscape(actorID) + "/retweets",
		token:  accessToken,
		body:   twitterRetweetRequest{TweetID: platformPostID},
	})
	return err
}

func (t *Twitter) Unrepost(ctx context.Context, accessToken, actorID, platformPostID string) error {
	_, err := t.api.do(ctx, apiCall{
		op:     "unrepost",
		method: http.MethodDelete,
		path:   "/2/users/" + url.PathEscape(actorID) + "/retweets/" + url.PathEscape(platformPostID),
		token:  accessToken,
	})
	return err
}

type twitterTweetFields struct {
	TweetFields string `url:"tweet.fields"`
}

type twitterMetricsResponse struct {
	Data struct {
		PublicMetrics struct {
			RetweetCount    *int64 `json:"retweet_count"`
			ReplyCount      *int64 `json:"reply_count"`
			LikeCount       *int64 `json:"like_count"`
			QuoteCount      *int64 `json:"quote_count"`
			ImpressionCount *int64 `json:"impression_count"`
		} `json:"public_metrics"`
		NonPublicMetrics *struct {
			ImpressionCount   *int64 `json:"impression_count"`
			URLLinkClicks     *int64 `json:"url_link_clicks"`
			UserProfileClicks *int64 `json:"user_profile_clicks"`
		} `json:"non_public_metrics"`
	} `json:"data"`
}

// FetchPostMetrics asks for private metrics first. They are only served to the
// author for recent tweets, so a 400/403 falls back to public metrics.
func (t *Twitter) FetchPostMetrics(ctx context.Context, accessToken, platformPostID string) (*model.MetricCounts, error) {
	res, err := t.fetchTweetMetrics(ctx, accessToken, platformPostID, "public_metrics,non_public_metrics")
	var pe *model.PlatformError
	if errors.As(err, &pe) && (pe.StatusCode == http.StatusForbidden || pe.StatusCode == http.StatusBadRequest) {
		res, err = t.fetchTweetMetrics(ctx, accessToken, platformPostID, "public_metrics")
	}
	if err != nil {
		return nil, err
	}
	pm := res.Data.PublicMetrics
	counts := &model.MetricCounts{
		Impressions: pm.ImpressionCount,
		Likes:       pm.LikeCount,
		Replies:     pm.ReplyCount,
		Reposts:     pm.RetweetCount,
		Quotes:      pm.QuoteCount,
	}
	if npm := res.Data.NonPublicMetrics; npm != nil {
		if npm.ImpressionCount != nil {
			counts.Impressions = npm.ImpressionCount
		}
		counts.Clicks = npm.URLLinkClicks
		counts.ProfileVisits = npm.UserProfileClicks
	}
	return counts, nil
}

func (t *Twitter) fetchTweetMetrics(ctx context.Context, accessToken, id, fields string) (*twitterMetricsResponse, error) {
	var res twitterMetricsResponse
	_, err := t.api.do(ctx, apiCall{
		op:     "fetch_metrics",
		method: http.MethodGet,
		path:   "/2/tweets/" + url.PathEscape(id),
		token:  accessToken,
		params: twitterTweetFields{TweetFields: fields},
		out:    &res,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
