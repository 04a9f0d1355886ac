package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"socialops/domain/model"
	"socialops/infrastructure/logger"
	"socialops/interfaces/middleware"
)

// statusFor maps a stable error code to the HTTP status the boundary answers with.
func statusFor(code string) int {
	switch code {
	case "not_found", "not_connected":
		return http.StatusNotFound
	case "not_publishable", "connection_inactive", "connection_revoked":
		return http.StatusConflict
	case "unsupported_platform", "session_expired", "oauth_denied":
		return http.StatusBadRequest
	case "unsupported_operation":
		return http.StatusUnprocessableEntity
	case "rate_limited", "quota_exceeded":
		return http.StatusTooManyRequests
	case "token_exchange_failed", "platform_error":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	code := model.ErrorCode(err)
	status := statusFor(code)
	entry := logger.GetLogger().
		WithField("path", c.FullPath()).
		WithField("error_code", code).
		WithField("error", err.Error())
	message := err.Error()
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
		message = "internal error"
	} else {
		entry.Warn("Request rejected")
	}
	c.JSON(status, gin.H{"error": code, "message": message})
}

func userID(c *gin.Context) (string, bool) {
	id := c.GetString(middleware.UserIDKey)
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing user"})
		return "", false
	}
	return id, true
}

func platformParam(c *gin.Context) (model.Platform, bool) {
	p, err := model.ParsePlatform(c.Param("platform"))
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return p, true
}
