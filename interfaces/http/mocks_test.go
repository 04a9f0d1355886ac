package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"socialops/domain/dto"
	"socialops/domain/model"
	"socialops/interfaces/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// asUser stands in for the auth middleware.
func asUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id != "" {
			c.Set(middleware.UserIDKey, id)
		}
		c.Next()
	}
}

type mockConnections struct{ mock.Mock }

func (m *mockConnections) InitiateConnect(ctx context.Context, userID string, p model.Platform) (*dto.ConnectStart, error) {
	args := m.Called(ctx, userID, p)
	start, _ := args.Get(0).(*dto.ConnectStart)
	return start, args.Error(1)
}

func (m *mockConnections) CompleteConnect(ctx context.Context, userID string, p model.Platform, params model.CallbackParams, cookie string) (*model.ConnectionSummary, error) {
	args := m.Called(ctx, userID, p, params, cookie)
	summary, _ := args.Get(0).(*model.ConnectionSummary)
	return summary, args.Error(1)
}

func (m *mockConnections) Disconnect(ctx context.Context, userID string, p model.Platform) error {
	return m.Called(ctx, userID, p).Error(0)
}

func (m *mockConnections) ListConnections(ctx context.Context, userID string) ([]model.ConnectionSummary, error) {
	args := m.Called(ctx, userID)
	list, _ := args.Get(0).([]model.ConnectionSummary)
	return list, args.Error(1)
}

type mockPublish struct{ mock.Mock }

func (m *mockPublish) Publish(ctx context.Context, userID, postID string) ([]dto.PublishResult, error) {
	args := m.Called(ctx, userID, postID)
	res, _ := args.Get(0).([]dto.PublishResult)
	return res, args.Error(1)
}

func (m *mockPublish) PublishThread(ctx context.Context, userID, threadID string) ([]dto.ThreadPublishResult, error) {
	args := m.Called(ctx, userID, threadID)
	res, _ := args.Get(0).([]dto.ThreadPublishResult)
	return res, args.Error(1)
}

func (m *mockPublish) Repost(ctx context.Context, userID string, targetID int64) (*dto.RepostResult, error) {
	args := m.Called(ctx, userID, targetID)
	res, _ := args.Get(0).(*dto.RepostResult)
	return res, args.Error(1)
}

func (m *mockPublish) Unrepost(ctx context.Context, userID string, targetID int64) (*dto.RepostResult, error) {
	args := m.Called(ctx, userID, targetID)
	res, _ := args.Get(0).(*dto.RepostResult)
	return res, args.Error(1)
}

type mockMetrics struct{ mock.Mock }

func (m *mockMetrics) RefreshPost(ctx context.Context, userID, postID string) (dto.MetricsRunSummary, error) {
	args := m.Called(ctx, userID, postID)
	return args.Get(0).(dto.MetricsRunSummary), args.Error(1)
}

func (m *mockMetrics) RunBackfill(ctx context.Context) (dto.MetricsRunSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(dto.MetricsRunSummary), args.Error(1)
}

func (m *mockMetrics) PostMetrics(ctx context.Context, userID, postID string) ([]dto.TargetMetrics, error) {
	args := m.Called(ctx, userID, postID)
	res, _ := args.Get(0).([]dto.TargetMetrics)
	return res, args.Error(1)
}

func (m *mockMetrics) TargetHistory(ctx context.Context, userID string, targetID int64) ([]*model.MetricSnapshot, error) {
	args := m.Called(ctx, userID, targetID)
	res, _ := args.Get(0).([]*model.MetricSnapshot)
	return res, args.Error(1)
}
