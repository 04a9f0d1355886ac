package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
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

const (
	globalQuotaScope = "global"
	historyLimit     = 100
)

type IMetricsUsecase interface {
	RefreshPost(ctx context.Context, userID, postID string) (dto.MetricsRunSummary, error)
	RunBackfill(ctx context.Context) (dto.MetricsRunSummary, error)
	PostMetrics(ctx context.Context, userID, postID string) ([]dto.TargetMetrics, error)
	TargetHistory(ctx context.Context, userID string, targetID int64) ([]*model.MetricSnapshot, error)
}

// MetricsSettings are the collector's tunables.
type MetricsSettings struct {
	StaleAfter         time.Duration
	BatchSize          int
	Concurrency        int
	CallTimeout        time.Duration
	DailyCallBudget    int64
	PerUserDailyBudget int64
}

// MetricsDeps wires the collector. Limiters and Metrics are optional.
type MetricsDeps struct {
	Posts       repository.IPost
	Targets     repository.IPublication
	Snapshots   repository.IMetricSnapshot
	Quota       repository.IQuota
	Connections *ConnectionStore
	Adapters    AdapterResolver
	Policy      retry.Policy
	Limiters    *retry.Limiters
	Metrics     *telemetry.Collector
	Settings    MetricsSettings
}

type metricsUsecase struct {
	MetricsDeps
	now func() time.Time
}

func NewMetricsUsecase(deps MetricsDeps) IMetricsUsecase {
	s := &deps.Settings
	if s.StaleAfter <= 0 {
		s.StaleAfter = 6 * time.Hour
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 500
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 4
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = platform.DefaultCallTimeout
	}
	return &metricsUsecase{MetricsDeps: deps, now: time.Now}
}

// RefreshPost refreshes every published target of one post, regardless of
// staleness. Both the process-wide and the user's budget are checked first.
func (u *metricsUsecase) RefreshPost(ctx context.Context, userID, postID string) (dto.MetricsRunSummary, error) {
	post, err := u.Posts.GetByID(ctx, userID, postID)
	if err != nil {
		return dto.MetricsRunSummary{}, err
	}
	all, err := u.Targets.ListByPost(ctx, post.ID)
	if err != nil {
		return dto.MetricsRunSummary{}, err
	}
	targets := make([]*model.PublicationTarget, 0, len(all))
	for _, t := range all {
		if refreshable(t) {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return dto.MetricsRunSummary{}, nil
	}
	scopes := []quotaScope{
		{key: "user:" + userID, limit: u.Settings.PerUserDailyBudget},
		{key: globalQuotaScope, limit: u.Settings.DailyCallBudget},
	}
	return u.runBatch(ctx, targets, scopes)
}

// RunBackfill refreshes the oldest stale targets across all users, up to one
// batch.
func (u *metricsUsecase) RunBackfill(ctx context.Context) (dto.MetricsRunSummary, error) {
	staleBefore := u.now().UTC().Add(-u.Settings.StaleAfter)
	targets, err := u.Targets.ListStale(ctx, staleBefore, u.Settings.BatchSize)
	if err != nil {
		return dto.MetricsRunSummary{}, err
	}
	if len(targets) == 0 {
		return dto.MetricsRunSummary{}, nil
	}
	summary, err := u.runBatch(ctx, targets, []quotaScope{{key: globalQuotaScope, limit: u.Settings.DailyCallBudget}})
	if err == nil {
		logger.GetLogger().
			WithField("processed", summary.Processed).
			WithField("refreshed", summary.Refreshed).
			WithField("failed", summary.Failed).
			Info("Metrics backfill finished")
	}
	return summary, err
}

type quotaScope struct {
	key   string
	limit int64
}

// runBatch reserves quota for every target up front, then refreshes with
// bounded concurrency. Once ctx is done no further unit starts; units already
// running finish, and their adapter calls are not cancelled.
func (u *metricsUsecase) runBatch(ctx context.Context, targets []*model.PublicationTarget, scopes []quotaScope) (dto.MetricsRunSummary, error) {
	n := int64(len(targets))
	for i, s := range scopes {
		if err := u.Quota.Reserve(ctx, s.key, n, s.limit); err != nil {
			u.release(ctx, scopes[:i], n)
			return dto.MetricsRunSummary{}, err
		}
	}

	var refreshed, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(u.Settings.Concurrency)
	started := 0
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		started++
		g.Go(func() error {
			if err := u.refreshTarget(ctx, t); err != nil {
				failed.Add(1)
				u.Metrics.RecordMetricsRefresh(t.Platform.String(), "failed")
				logger.GetLogger().
					WithField("platform", t.Platform).
					WithField("target_id", t.ID).
					WithField("error", err).
					Warn("Metrics refresh failed")
				return nil
			}
			refreshed.Add(1)
			u.Metrics.RecordMetricsRefresh(t.Platform.String(), "refreshed")
			return nil
		})
	}
	_ = g.Wait()

	if unused := n - int64(started); unused > 0 {
		u.release(context.WithoutCancel(ctx), scopes, unused)
	}
	return dto.MetricsRunSummary{
		Processed: started,
		Refreshed: int(refreshed.Load()),
		Failed:    int(failed.Load()),
	}, nil
}

func (u *metricsUsecase) release(ctx context.Context, scopes []quotaScope, n int64) {
	for _, s := range scopes {
		if err := u.Quota.Release(ctx, s.key, n); err != nil {
			logger.GetLogger().WithField("scope", s.key).WithField("error", err).Warn("Quota release failed")
		}
	}
}

// refreshTarget fetches and stores one snapshot. Backoff waits honour ctx;
// the platform calls and the writes that follow do not.
func (u *metricsUsecase) refreshTarget(ctx context.Context, t *model.PublicationTarget) error {
	if !refreshable(t) {
		return fmt.Errorf("%w: %d", model.ErrTargetNotPublished, t.ID)
	}
	adapter, err := u.Adapters.Get(t.Platform)
	if err != nil {
		return err
	}
	detached := context.WithoutCancel(ctx)
	conn, err := u.Connections.GetByPlatform(ctx, t.UserID, t.Platform)
	if err != nil {
		return err
	}
	tokenCtx, cancel := context.WithTimeout(detached, u.Settings.CallTimeout)
	token, err := u.Connections.AccessToken(tokenCtx, conn)
	cancel()
	if err != nil {
		return err
	}

	counts, err := retry.WithRetry(ctx, u.Policy, func(ctx context.Context) (*model.MetricCounts, error) {
		if err := u.Limiters.Wait(ctx, t.Platform); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(detached, u.Settings.CallTimeout)
		defer cancel()
		return adapter.FetchPostMetrics(callCtx, token, *t.PlatformPostID)
	})
	if err != nil {
		if model.IsRevocation(err) {
			if mErr := u.Connections.MarkRevoked(detached, conn.ID, err); mErr != nil {
				logger.GetLogger().WithField("error", mErr).Error("Failed to mark connection revoked")
			}
		}
		return err
	}

	observedAt := u.now().UTC()
	snapshot := &model.MetricSnapshot{PublicationTargetID: t.ID, ObservedAt: observedAt, MetricCounts: *counts}
	if _, err := u.Snapshots.Append(detached, snapshot); err != nil {
		return err
	}
	return u.Targets.TouchMetrics(detached, t.ID, observedAt)
}

// PostMetrics returns every target of the post with its latest snapshot.
func (u *metricsUsecase) PostMetrics(ctx context.Context, userID, postID string) ([]dto.TargetMetrics, error) {
	post, err := u.Posts.GetByID(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	targets, err := u.Targets.ListByPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.TargetMetrics, 0, len(targets))
	for _, t := range targets {
		latest, err := u.Snapshots.LatestForTarget(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, dto.TargetMetrics{Target: t, Latest: latest})
	}
	return out, nil
}

// TargetHistory returns the target's snapshots, newest first.
func (u *metricsUsecase) TargetHistory(ctx context.Context, userID string, targetID int64) ([]*model.MetricSnapshot, error) {
	t, err := u.Targets.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, fmt.Errorf("%w: %d", model.ErrTargetNotFound, targetID)
	}
	return u.Snapshots.ListForTarget(ctx, t.ID, historyLimit)
}

func refreshable(t *model.PublicationTarget) bool {
	return t.Status == model.PublicationPublished && t.PlatformPostID != nil && *t.PlatformPostID != ""
}
