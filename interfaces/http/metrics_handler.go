package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"socialops/domain/dto"
	"socialops/domain/model"
	"socialops/usecase"
)

type IMetricsHandler interface {
	Refresh(c *gin.Context)
	PostMetrics(c *gin.Context)
	TargetHistory(c *gin.Context)
	Backfill(c *gin.Context)
}

type MetricsHandler struct {
	metrics usecase.IMetricsUsecase
}

func NewMetricsHandler(uc usecase.IMetricsUsecase) IMetricsHandler {
	return &MetricsHandler{metrics: uc}
}

func (h *MetricsHandler) Refresh(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	postID := c.Param("postId")
	summary, err := h.metrics.RefreshPost(c.Request.Context(), uid, postID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": postID, "summary": summary})
}

func (h *MetricsHandler) PostMetrics(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	postID := c.Param("postId")
	targets, err := h.metrics.PostMetrics(c.Request.Context(), uid, postID)
	if err != nil {
		respondError(c, err)
		return
	}
	if targets == nil {
		targets = []dto.TargetMetrics{}
	}
	c.JSON(http.StatusOK, gin.H{"post_id": postID, "targets": targets})
}

func (h *MetricsHandler) TargetHistory(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	targetID, ok := targetParam(c)
	if !ok {
		return
	}
	snapshots, err := h.metrics.TargetHistory(c.Request.Context(), uid, targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	if snapshots == nil {
		snapshots = []*model.MetricSnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"target_id": targetID, "snapshots": snapshots})
}

// Backfill runs one scheduled batch on demand.
func (h *MetricsHandler) Backfill(c *gin.Context) {
	summary, err := h.metrics.RunBackfill(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
