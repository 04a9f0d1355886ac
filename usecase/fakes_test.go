package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"socialops/domain/dto"
	"socialops/domain/model"
	"socialops/infrastructure/clients/platform"
	"socialops/infrastructure/security"
)

// fakeAdapter is a scriptable platform.Adapter. Unset hooks succeed.
type fakeAdapter struct {
	mu       sync.Mutex
	platform model.Platform
	issues   bool
	calls    map[string]int

	publish  func(content platform.PublishContent) (*platform.PublishedPost, error)
	metrics  func(postID string) (*model.MetricCounts, error)
	refresh  func(refreshToken string) (*model.TokenBundle, error)
	exchange func(code, redirectURI string, verifier *string) (*model.TokenBundle, error)
	whoami   func(accessToken string) (*model.PlatformProfile, error)
	profile  *model.PlatformProfile
}

func newFakeAdapter(p model.Platform) *fakeAdapter {
	return &fakeAdapter{platform: p, calls: map[string]int{}}
}

func (f *fakeAdapter) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeAdapter) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAdapter) Platform() model.Platform  { return f.platform }
func (f *fakeAdapter) RequiresPKCE() bool        { return f.platform == model.PlatformTwitter }
func (f *fakeAdapter) IssuesRefreshTokens() bool { return f.issues }

func (f *fakeAdapter) AuthURL(state, redirectURI string) (platform.AuthRequest, error) {
	req := platform.AuthRequest{URL: "https://auth.example/" + string(f.platform) + "?state=" + state + "&redirect_uri=" + redirectURI}
	if f.RequiresPKCE() {
		v := security.GenerateVerifier()
		req.CodeVerifier = &v
	}
	return req, nil
}

func (f *fakeAdapter) ExchangeCode(_ context.Context, code, redirectURI string, verifier *string) (*model.TokenBundle, error) {
	f.count("exchange")
	if f.exchange != nil {
		return f.exchange(code, redirectURI, verifier)
	}
	return &model.TokenBundle{AccessToken: "access-" + code}, nil
}

func (f *fakeAdapter) RefreshTokens(_ context.Context, refreshToken string) (*model.TokenBundle, error) {
	f.count("refresh")
	if f.refresh != nil {
		return f.refresh(refreshToken)
	}
	return &model.TokenBundle{AccessToken: "refreshed"}, nil
}

func (f *fakeAdapter) CurrentUser(_ context.Context, accessToken string) (*model.PlatformProfile, error) {
	f.count("profile")
	if f.whoami != nil {
		return f.whoami(accessToken)
	}
	if f.profile != nil {
		return f.profile, nil
	}
	return &model.PlatformProfile{PlatformUserID: "pu-1", Username: "someone"}, nil
}

func (f *fakeAdapter) FetchPostMetrics(_ context.Context, _ string, postID string) (*model.MetricCounts, error) {
	f.count("metrics")
	if f.metrics != nil {
		return f.metrics(postID)
	}
	return &model.MetricCounts{Likes: model.Int64(1)}, nil
}

func (f *fakeAdapter) Publish(_ context.Context, _ string, content platform.PublishContent) (*platform.PublishedPost, error) {
	f.count("publish")
	if f.publish != nil {
		return f.publish(content)
	}
	return &platform.PublishedPost{PlatformPostID: "pp-" + content.Text, URL: "https://example/" + content.Text}, nil
}

// fakeThreadAdapter adds reply and repost capabilities.
type fakeThreadAdapter struct {
	*fakeAdapter
	reply     func(content platform.PublishContent, inReplyTo string) (*platform.PublishedPost, error)
	repliedTo []string
}

func (f *fakeThreadAdapter) PublishReply(_ context.Context, _ string, content platform.PublishContent, inReplyTo string) (*platform.PublishedPost, error) {
	f.count("reply")
	f.mu.Lock()
	f.repliedTo = append(f.repliedTo, inReplyTo)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(content, inReplyTo)
	}
	return &platform.PublishedPost{PlatformPostID: "pp-" + content.Text, URL: "https://example/" + content.Text}, nil
}

func (f *fakeThreadAdapter) Repost(context.Context, string, string, string) error {
	f.count("repost")
	return nil
}

func (f *fakeThreadAdapter) Unrepost(context.Context, string, string, string) error {
	f.count("unrepost")
	return nil
}

// memConnections is an in-memory repository.IConnection.
type memConnections struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.Connection
}

func newMemConnections() *memConnections {
	return &memConnections{rows: map[int64]*model.Connection{}}
}

func (m *memConnections) Upsert(_ context.Context, c *model.Connection) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.rows {
		if row.UserID == c.UserID && row.Platform == c.Platform {
			cp := *c
			cp.ID = id
			m.rows[id] = &cp
			return id, nil
		}
	}
	m.nextID++
	cp := *c
	cp.ID = m.nextID
	m.rows[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memConnections) GetByPlatform(_ context.Context, userID string, p model.Platform) (*model.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID == userID && row.Platform == p {
			cp := *row
			return &cp, nil
		}
	}
	return nil, model.ErrConnectionNotFound
}

func (m *memConnections) GetByID(_ context.Context, id int64) (*model.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, model.ErrConnectionNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memConnections) UpdateTokens(_ context.Context, id int64, accessEnc string, refreshEnc *string, state model.RefreshTokenState, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return model.ErrConnectionNotFound
	}
	row.AccessTokenEnc, row.RefreshTokenEnc, row.RefreshState, row.ExpiresAt = accessEnc, refreshEnc, state, expiresAt
	row.Status = model.ConnectionActive
	return nil
}

func (m *memConnections) UpdateStatus(_ context.Context, id int64, status model.ConnectionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return model.ErrConnectionNotFound
	}
	row.Status = status
	return nil
}

func (m *memConnections) Revoke(_ context.Context, userID string, p model.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID == userID && row.Platform == p {
			row.Status = model.ConnectionRevoked
			row.AccessTokenEnc, row.RefreshTokenEnc = "", nil
			return nil
		}
	}
	return model.ErrConnectionNotFound
}

func (m *memConnections) ListSummaries(_ context.Context, userID string) ([]model.ConnectionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ConnectionSummary
	for _, row := range m.rows {
		if row.UserID == userID {
			out = append(out, row.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (m *memConnections) status(userID string, p model.Platform) model.ConnectionStatus {
	c, err := m.GetByPlatform(context.Background(), userID, p)
	if err != nil {
		return ""
	}
	return c.Status
}

// memPublications is an in-memory repository.IPublication.
type memPublications struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]*model.PublicationTarget
	touched map[int64]time.Time
}

func newMemPublications() *memPublications {
	return &memPublications{rows: map[int64]*model.PublicationTarget{}, touched: map[int64]time.Time{}}
}

func (m *memPublications) UpsertPending(ctx context.Context, postID, userID string, platforms []model.Platform) ([]*model.PublicationTarget, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.PublicationTarget, 0, len(platforms))
	for _, p := range platforms {
		var found *model.PublicationTarget
		for _, row := range m.rows {
			if row.PostID == postID && row.Platform == p {
				found = row
			}
		}
		if found == nil {
			m.nextID++
			found = &model.PublicationTarget{ID: m.nextID, PostID: postID, UserID: userID, Platform: p}
			m.rows[found.ID] = found
		}
		if found.Status != model.PublicationPublished {
			found.Status = model.PublicationPending
			found.AttemptCount++
		}
		cp := *found
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memPublications) GetByID(_ context.Context, id int64) (*model.PublicationTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, model.ErrTargetNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memPublications) ListByPost(_ context.Context, postID string) ([]*model.PublicationTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PublicationTarget
	for _, row := range m.rows {
		if row.PostID == postID {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPublications) MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != model.PublicationPending {
		return model.ErrTargetNotFound
	}
	row.Status, row.PlatformPostID, row.PlatformURL, row.PublishedAt = model.PublicationPublished, &platformPostID, &platformURL, &at
	return nil
}

func (m *memPublications) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != model.PublicationPending {
		return model.ErrTargetNotFound
	}
	row.Status, row.LastError = model.PublicationFailed, &errMsg
	return nil
}

func (m *memPublications) ListStale(_ context.Context, staleBefore time.Time, limit int) ([]*model.PublicationTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PublicationTarget
	for _, row := range m.rows {
		if row.Status == model.PublicationPublished && (row.LastMetricsAt == nil || row.LastMetricsAt.Before(staleBefore)) {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPublications) TouchMetrics(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return model.ErrTargetNotFound
	}
	row.LastMetricsAt = &at
	m.touched[id] = at
	return nil
}

func (m *memPublications) add(t model.PublicationTarget) *model.PublicationTarget {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	m.rows[t.ID] = &t
	return &t
}

func (m *memPublications) get(id int64) model.PublicationTarget {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

// memPosts is an in-memory repository.IPost. Writes fail on a done context
// the way a SQL driver does.
type memPosts struct {
	mu    sync.Mutex
	posts map[string]*model.Post
}

func newMemPosts(posts ...*model.Post) *memPosts {
	m := &memPosts{posts: map[string]*model.Post{}}
	for _, p := range posts {
		m.posts[p.ID] = p
	}
	return m
}

func (m *memPosts) GetByID(_ context.Context, userID, postID string) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok || p.UserID != userID {
		return nil, model.ErrPostNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPosts) ListThread(_ context.Context, userID, threadID string) ([]*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Post
	for _, p := range m.posts {
		if p.UserID == userID && p.ThreadID != nil && *p.ThreadID == threadID {
			cp := *p
			out = append(out, &cp)
		}
	}
	if len(out) == 0 {
		return nil, model.ErrPostNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadPosition < out[j].ThreadPosition })
	return out, nil
}

func (m *memPosts) UpdateStatus(ctx context.Context, postID string, status model.PostStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return model.ErrPostNotFound
	}
	p.Status = status
	return nil
}

func (m *memPosts) BeginPublishing(ctx context.Context, postIDs ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range postIDs {
		p, ok := m.posts[id]
		if !ok || !p.Publishable() {
			return fmt.Errorf("%w: %s", model.ErrPostNotPublishable, id)
		}
	}
	for _, id := range postIDs {
		m.posts[id].Status = model.PostPublishing
	}
	return nil
}

func (m *memPosts) status(postID string) model.PostStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posts[postID].Status
}

// memSnapshots is an in-memory repository.IMetricSnapshot.
type memSnapshots struct {
	mu   sync.Mutex
	rows []*model.MetricSnapshot
}

func (m *memSnapshots) Append(_ context.Context, s *model.MetricSnapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, &cp)
	return cp.ID, nil
}

func (m *memSnapshots) LatestForTarget(_ context.Context, targetID int64) (*model.MetricSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.MetricSnapshot
	for _, s := range m.rows {
		if s.PublicationTargetID == targetID && (latest == nil || !s.ObservedAt.Before(latest.ObservedAt)) {
			latest = s
		}
	}
	return latest, nil
}

func (m *memSnapshots) ListForTarget(_ context.Context, targetID int64, limit int) ([]*model.MetricSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.MetricSnapshot
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].PublicationTargetID == targetID {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

func (m *memSnapshots) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// stubQuota records reservations and fails when told to.
type stubQuota struct {
	mu       sync.Mutex
	reserved map[string]int64
	fail     map[string]error
}

func newStubQuota() *stubQuota {
	return &stubQuota{reserved: map[string]int64{}, fail: map[string]error{}}
}

func (q *stubQuota) Reserve(_ context.Context, key string, n, _ int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.fail[key]; err != nil {
		return err
	}
	q.reserved[key] += n
	return nil
}

func (q *stubQuota) Release(_ context.Context, key string, n int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reserved[key] -= n
	return nil
}

// mockAudit and mockNotifier use testify mocks.
type mockAudit struct{ mock.Mock }

func (m *mockAudit) Record(ctx context.Context, a *model.PublishAudit) error {
	return m.Called(ctx, a).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, evt dto.PublicationEvent) error {
	return m.Called(ctx, evt).Error(0)
}

func testCipher(t *testing.T) *security.Cipher {
	t.Helper()
	key := make([]byte, security.KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	c, err := security.NewCipher(key, security.PurposeToken)
	require.NoError(t, err)
	return c
}

// seedConnection stores an active connection with plaintext access token
// "token-<platform>".
func seedConnection(t *testing.T, store *ConnectionStore, userID string, p model.Platform) *model.Connection {
	t.Helper()
	conn, err := store.Upsert(context.Background(), userID, p,
		&model.PlatformProfile{PlatformUserID: fmt.Sprintf("%s-%s", p, userID), Username: userID},
		&model.TokenBundle{AccessToken: "token-" + string(p)})
	require.NoError(t, err)
	return conn
}
