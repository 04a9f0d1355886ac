package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"socialops/domain/dto"
	"socialops/domain/model"
	"socialops/domain/repository"
	"socialops/infrastructure/clients/platform"
	"socialops/infrastructure/logger"
	"socialops/infrastructure/retry"
	"socialops/infrastructure/telemetry"
)

type IPublishUsecase interface {
	Publish(ctx context.Context, userID, postID string) ([]dto.PublishResult, error)
	PublishThread(ctx context.Context, userID, threadID string) ([]dto.ThreadPublishResult, error)
	Repost(ctx context.Context, userID string, targetID int64) (*dto.RepostResult, error)
	Unrepost(ctx context.Context, userID string, targetID int64) (*dto.RepostResult, error)
}

// PublishDeps wires the orchestrator. Audit, Notifier, Limiters and Metrics
// are optional. CallTimeout defaults to platform.DefaultCallTimeout.
type PublishDeps struct {
	Posts       repository.IPost
	Targets     repository.IPublication
	Audit       repository.IPublishAudit
	Connections *ConnectionStore
	Adapters    AdapterResolver
	Policy      retry.Policy
	Limiters    *retry.Limiters
	Notifier    *BestEffortNotifier
	Metrics     *telemetry.Collector
	CallTimeout time.Duration
}

type publishUsecase struct {
	PublishDeps
	now func() time.Time
}

func NewPublishUsecase(deps PublishDeps) IPublishUsecase {
	if deps.CallTimeout <= 0 {
		deps.CallTimeout = platform.DefaultCallTimeout
	}
	return &publishUsecase{PublishDeps: deps, now: time.Now}
}

// Publish pushes one post to each of its platforms concurrently. Per-platform
// failures are reported in the results, never as the returned error.
// Once the post is claimed its outcome is persisted even if ctx is cancelled.
func (u *publishUsecase) Publish(ctx context.Context, userID, postID string) ([]dto.PublishResult, error) {
	post, err := u.Posts.GetByID(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if !post.Publishable() {
		return nil, fmt.Errorf("%w: post %s is %s", model.ErrPostNotPublishable, post.ID, post.Status)
	}
	platforms := post.Platforms.Unique()
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: post %s has no platforms", model.ErrPostNotPublishable, post.ID)
	}
	if err := u.Posts.BeginPublishing(ctx, post.ID); err != nil {
		return nil, err
	}
	persist := context.WithoutCancel(ctx)
	targets, err := u.Targets.UpsertPending(persist, post.ID, userID, platforms)
	if err != nil {
		u.setPostStatus(persist, post.ID, post.Status)
		return nil, err
	}

	results := make([]dto.PublishResult, len(targets))
	var g errgroup.Group
	for i, target := range targets {
		if target.Status == model.PublicationPublished {
			results[i] = publishedResult(post.ID, target)
			continue
		}
		g.Go(func() error {
			results[i] = u.publishTarget(ctx, post, target, "")
			return nil
		})
	}
	_ = g.Wait()

	u.setPostStatus(persist, post.ID, derivePostStatus(results, len(results)))
	return results, nil
}

// PublishThread publishes the posts of a thread in order on each platform,
// each one replying to the previous. The first failure ends that platform's
// chain. Platforms run concurrently.
func (u *publishUsecase) PublishThread(ctx context.Context, userID, threadID string) ([]dto.ThreadPublishResult, error) {
	posts, err := u.Posts.ListThread(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		if !p.Publishable() {
			return nil, fmt.Errorf("%w: thread post %s is %s", model.ErrPostNotPublishable, p.ID, p.Status)
		}
	}
	platforms := posts[0].Platforms.Unique()
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: thread %s has no platforms", model.ErrPostNotPublishable, threadID)
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	if err := u.Posts.BeginPublishing(ctx, ids...); err != nil {
		return nil, err
	}
	persist := context.WithoutCancel(ctx)

	chains := make([]dto.ThreadPublishResult, len(platforms))
	var g errgroup.Group
	for i, p := range platforms {
		g.Go(func() error {
			chains[i] = u.publishChain(ctx, userID, p, posts)
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range posts {
		var attempted []dto.PublishResult
		for _, chain := range chains {
			if i < len(chain.Posts) {
				attempted = append(attempted, chain.Posts[i])
			}
		}
		if len(attempted) == 0 {
			u.setPostStatus(persist, p.ID, p.Status)
			continue
		}
		u.setPostStatus(persist, p.ID, derivePostStatus(attempted, len(chains)))
	}
	return chains, nil
}

func (u *publishUsecase) publishChain(ctx context.Context, userID string, p model.Platform, posts []*model.Post) dto.ThreadPublishResult {
	chain := dto.ThreadPublishResult{Platform: p}
	var replyTo string
	for k, post := range posts {
		// A cancelled caller stops the chain before its next post.
		if ctx.Err() != nil {
			return chain
		}
		targets, err := u.Targets.UpsertPending(context.WithoutCancel(ctx), post.ID, userID, []model.Platform{p})
		if err != nil {
			chain.Posts = append(chain.Posts, failedResult(p, post.ID, 0, err))
			return chain
		}
		target := targets[0]
		var res dto.PublishResult
		switch {
		case target.Status == model.PublicationPublished:
			res = publishedResult(post.ID, target)
		case k == 0 && len(posts) > 1 && !u.threadCapable(p):
			res = u.recordOutcome(ctx, post, target, nil, fmt.Errorf("%w: %s cannot publish threads", model.ErrCapabilityUnsupported, p))
		default:
			res = u.publishTarget(ctx, post, target, replyTo)
		}
		chain.Posts = append(chain.Posts, res)
		if !res.Success {
			return chain
		}
		replyTo = res.PlatformPostID
	}
	chain.Complete = true
	return chain
}

func (u *publishUsecase) threadCapable(p model.Platform) bool {
	adapter, err := u.Adapters.Get(p)
	if err != nil {
		return false
	}
	_, ok := adapter.(platform.ThreadPublisher)
	return ok
}

// publishTarget makes one publish attempt and records its outcome exactly
// once. A non-empty replyTo publishes as a reply in a thread.
func (u *publishUsecase) publishTarget(ctx context.Context, post *model.Post, target *model.PublicationTarget, replyTo string) dto.PublishResult {
	published, err := u.attempt(ctx, post, target.Platform, replyTo)
	return u.recordOutcome(ctx, post, target, published, err)
}

// attempt runs the platform call. Backoff and limiter waits honour ctx; the
// token lookup and the call itself only honour CallTimeout.
func (u *publishUsecase) attempt(ctx context.Context, post *model.Post, p model.Platform, replyTo string) (*platform.PublishedPost, error) {
	adapter, err := u.Adapters.Get(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	detached := context.WithoutCancel(ctx)
	tokenCtx, cancel := context.WithTimeout(detached, u.CallTimeout)
	conn, token, err := u.credentials(tokenCtx, post.UserID, p)
	cancel()
	if err != nil {
		return nil, err
	}
	content := platform.PublishContent{Text: post.Content, MediaURLs: post.MediaURLs, AuthorID: conn.PlatformUserID}

	var publish func(ctx context.Context) (*platform.PublishedPost, error)
	if replyTo == "" {
		publish = func(ctx context.Context) (*platform.PublishedPost, error) {
			return adapter.Publish(ctx, token, content)
		}
	} else {
		tp, ok := adapter.(platform.ThreadPublisher)
		if !ok {
			return nil, fmt.Errorf("%w: %s cannot publish replies", model.ErrCapabilityUnsupported, p)
		}
		publish = func(ctx context.Context) (*platform.PublishedPost, error) {
			return tp.PublishReply(ctx, token, content, replyTo)
		}
	}

	published, err := retry.WithRetry(ctx, u.Policy, func(ctx context.Context) (*platform.PublishedPost, error) {
		if err := u.Limiters.Wait(ctx, p); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(detached, u.CallTimeout)
		defer cancel()
		return publish(callCtx)
	})
	if err != nil && model.IsRevocation(err) {
		if mErr := u.Connections.MarkRevoked(detached, conn.ID, err); mErr != nil {
			logger.GetLogger().WithField("error", mErr).Error("Failed to mark connection revoked")
		}
	}
	return published, err
}

func (u *publishUsecase) credentials(ctx context.Context, userID string, p model.Platform) (*model.Connection, string, error) {
	conn, err := u.Connections.GetByPlatform(ctx, userID, p)
	if err != nil {
		return nil, "", err
	}
	token, err := u.Connections.AccessToken(ctx, conn)
	if err != nil {
		return nil, "", err
	}
	return conn, token, nil
}

// recordOutcome persists the attempt, then audits and notifies. Neither the
// audit nor the notification affects the returned result. It ignores ctx
// cancellation.
func (u *publishUsecase) recordOutcome(ctx context.Context, post *model.Post, target *model.PublicationTarget, published *platform.PublishedPost, attemptErr error) dto.PublishResult {
	ctx = context.WithoutCancel(ctx)
	lg := logger.GetLogger().
		WithField("platform", target.Platform).
		WithField("target_id", target.ID).
		WithField("post_id", post.ID)
	now := u.now().UTC()
	audit := &model.PublishAudit{
		TargetID:    target.ID,
		PostID:      post.ID,
		UserID:      post.UserID,
		Platform:    target.Platform,
		AttemptedAt: now,
	}
	evt := dto.PublicationEvent{
		UserID:     post.UserID,
		PostID:     post.ID,
		TargetID:   target.ID,
		Platform:   target.Platform,
		OccurredAt: now,
	}

	var res dto.PublishResult
	if attemptErr != nil {
		res = failedResult(target.Platform, post.ID, target.ID, attemptErr)
		if err := u.Targets.MarkFailed(ctx, target.ID, attemptErr.Error()); err != nil {
			lg.WithField("error", err).Error("Failed to record publish failure")
		}
		msg := attemptErr.Error()
		audit.Status, audit.ErrorCode, audit.ErrorMessage = model.PublicationFailed, res.ErrorCode, &msg
		evt.Type, evt.Status, evt.Error = EventFailed, model.PublicationFailed, &msg
		lg.WithField("error", attemptErr).Warn("Publish failed")
	} else {
		res = dto.PublishResult{
			Platform:       target.Platform,
			PostID:         post.ID,
			TargetID:       target.ID,
			Success:        true,
			PlatformPostID: published.PlatformPostID,
			PlatformURL:    published.URL,
		}
		if err := u.Targets.MarkPublished(ctx, target.ID, published.PlatformPostID, published.URL, now); err != nil {
			lg.WithField("error", err).Error("Post is live but the publication target was not updated")
		}
		audit.Status, audit.PlatformPostID = model.PublicationPublished, &published.PlatformPostID
		evt.Type, evt.Status = EventPublished, model.PublicationPublished
		evt.PlatformPostID, evt.PlatformURL = &published.PlatformPostID, &published.URL
		lg.WithField("platform_post_id", published.PlatformPostID).Info("Post published")
	}

	u.Metrics.RecordPublish(target.Platform.String(), string(audit.Status))
	if u.Audit != nil {
		if err := u.Audit.Record(ctx, audit); err != nil {
			lg.WithField("error", err).Warn("Publish audit not recorded")
		}
	}
	u.Notifier.NotifyBestEffort(ctx, evt)
	return res
}

func (u *publishUsecase) Repost(ctx context.Context, userID string, targetID int64) (*dto.RepostResult, error) {
	return u.amplify(ctx, userID, targetID, true)
}

func (u *publishUsecase) Unrepost(ctx context.Context, userID string, targetID int64) (*dto.RepostResult, error) {
	return u.amplify(ctx, userID, targetID, false)
}

func (u *publishUsecase) amplify(ctx context.Context, userID string, targetID int64, repost bool) (*dto.RepostResult, error) {
	target, err := u.Targets.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.UserID != userID {
		return nil, fmt.Errorf("%w: %d", model.ErrTargetNotFound, targetID)
	}
	if target.Status != model.PublicationPublished || target.PlatformPostID == nil {
		return nil, fmt.Errorf("%w: %d", model.ErrTargetNotPublished, targetID)
	}
	adapter, err := u.Adapters.Get(target.Platform)
	if err != nil {
		return nil, err
	}
	reposter, ok := adapter.(platform.Reposter)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot repost", model.ErrCapabilityUnsupported, target.Platform)
	}
	conn, token, err := u.credentials(ctx, userID, target.Platform)
	if err != nil {
		return nil, err
	}
	call := reposter.Unrepost
	if repost {
		call = reposter.Repost
	}
	_, err = retry.WithRetry(ctx, u.Policy, func(ctx context.Context) (struct{}, error) {
		if err := u.Limiters.Wait(ctx, target.Platform); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, call(ctx, token, conn.PlatformUserID, *target.PlatformPostID)
	})
	if err != nil {
		if model.IsRevocation(err) {
			if mErr := u.Connections.MarkRevoked(ctx, conn.ID, err); mErr != nil {
				logger.GetLogger().WithField("error", mErr).Error("Failed to mark connection revoked")
			}
		}
		return nil, err
	}
	if repost {
		u.Notifier.NotifyBestEffort(ctx, dto.PublicationEvent{
			Type:           EventReposted,
			UserID:         userID,
			PostID:         target.PostID,
			TargetID:       target.ID,
			Platform:       target.Platform,
			Status:         target.Status,
			PlatformPostID: target.PlatformPostID,
			PlatformURL:    target.PlatformURL,
		})
	}
	return &dto.RepostResult{Platform: target.Platform, TargetID: target.ID, Reposted: repost}, nil
}

func (u *publishUsecase) setPostStatus(ctx context.Context, postID string, status model.PostStatus) {
	if err := u.Posts.UpdateStatus(ctx, postID, status); err != nil {
		logger.GetLogger().
			WithField("post_id", postID).
			WithField("status", status).
			WithField("error", err).
			Warn("Failed to update post status")
	}
}

// derivePostStatus folds per-platform results into a post status. Platforms
// with no result count as not published.
func derivePostStatus(results []dto.PublishResult, platforms int) model.PostStatus {
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	switch {
	case ok == 0:
		return model.PostFailed
	case ok == platforms:
		return model.PostPublished
	}
	return model.PostPartiallyPublished
}

func publishedResult(postID string, t *model.PublicationTarget) dto.PublishResult {
	res := dto.PublishResult{Platform: t.Platform, PostID: postID, TargetID: t.ID, Success: true}
	if t.PlatformPostID != nil {
		res.PlatformPostID = *t.PlatformPostID
	}
	if t.PlatformURL != nil {
		res.PlatformURL = *t.PlatformURL
	}
	return res
}

func failedResult(p model.Platform, postID string, targetID int64, err error) dto.PublishResult {
	return dto.PublishResult{
		Platform:  p,
		PostID:    postID,
		TargetID:  targetID,
		Error:     err.Error(),
		ErrorCode: model.ErrorCode(err),
	}
}
