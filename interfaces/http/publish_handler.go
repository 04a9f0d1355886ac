package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"socialops/domain/dto"
	"socialops/usecase"
)

type IPublishHandler interface {
	Publish(c *gin.Context)
	PublishThread(c *gin.Context)
	Repost(c *gin.Context)
	Unrepost(c *gin.Context)
}

type PublishHandler struct {
	publish usecase.IPublishUsecase
}

func NewPublishHandler(uc usecase.IPublishUsecase) IPublishHandler {
	return &PublishHandler{publish: uc}
}

// Publish answers 200 even when some platforms failed; per-platform outcomes
// are in the results.
func (h *PublishHandler) Publish(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	postID := c.Param("postId")
	results, err := h.publish.Publish(c.Request.Context(), uid, postID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": postID, "results": results})
}

func (h *PublishHandler) PublishThread(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	threadID := c.Param("threadId")
	results, err := h.publish.PublishThread(c.Request.Context(), uid, threadID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread_id": threadID, "results": results})
}

func (h *PublishHandler) Repost(c *gin.Context) {
	h.amplify(c, h.publish.Repost)
}

func (h *PublishHandler) Unrepost(c *gin.Context) {
	h.amplify(c, h.publish.Unrepost)
}

func (h *PublishHandler) amplify(c *gin.Context, op func(ctx context.Context, userID string, targetID int64) (*dto.RepostResult, error)) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	targetID, ok := targetParam(c)
	if !ok {
		return
	}
	res, err := op(c.Request.Context(), uid, targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func targetParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("targetId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_target", "message": "target id must be a positive integer"})
		return 0, false
	}
	return id, true
}
