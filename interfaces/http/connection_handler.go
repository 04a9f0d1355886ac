package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"socialops/domain/model"
	"socialops/infrastructure/logger"
	"socialops/interfaces/middleware"
	"socialops/usecase"
)

const transportCookiePrefix = "oauth_state_"

type IConnectionHandler interface {
	Connect(c *gin.Context)
	Callback(c *gin.Context)
	List(c *gin.Context)
	Disconnect(c *gin.Context)
}

type ConnectionHandler struct {
	connections   usecase.IConnectionUsecase
	frontendURL   string
	secureCookies bool
}

// NewConnectionHandler serves the connect flow. The callback always ends in a
// redirect to frontendURL carrying either connected=<platform> or error=<code>.
func NewConnectionHandler(uc usecase.IConnectionUsecase, frontendURL string, secureCookies bool) IConnectionHandler {
	return &ConnectionHandler{connections: uc, frontendURL: frontendURL, secureCookies: secureCookies}
}

func cookieName(p model.Platform) string { return transportCookiePrefix + string(p) }

func cookiePath(p model.Platform) string { return "/auth/" + string(p) }

// Connect sets the transport cookie and sends the browser to the platform.
// Callers asking for JSON get the authorization URL instead of a 302.
func (h *ConnectionHandler) Connect(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	p, ok := platformParam(c)
	if !ok {
		return
	}
	start, err := h.connections.InitiateConnect(c.Request.Context(), uid, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName(p), start.Cookie, start.MaxAge, cookiePath(p), "", h.secureCookies, true)
	if wantsJSON(c) {
		c.JSON(http.StatusOK, start)
		return
	}
	c.Redirect(http.StatusFound, start.RedirectURL)
}

func (h *ConnectionHandler) Callback(c *gin.Context) {
	raw := c.Param("platform")
	p, err := model.ParsePlatform(raw)
	if err != nil {
		h.finish(c, raw, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	cookie, _ := c.Cookie(cookieName(p))
	c.SetCookie(cookieName(p), "", -1, cookiePath(p), "", h.secureCookies, true)

	params := model.CallbackParams{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	}
	_, err = h.connections.CompleteConnect(c.Request.Context(), c.GetString(middleware.UserIDKey), p, params, cookie)
	h.finish(c, string(p), err)
}

func (h *ConnectionHandler) finish(c *gin.Context, platform string, err error) {
	q := url.Values{}
	if err != nil {
		code := model.ErrorCode(err)
		logger.GetLogger().
			WithField("platform", platform).
			WithField("error_code", code).
			WithField("error", err.Error()).
			Warn("Connect flow failed")
		q.Set("error", code)
		q.Set("platform", platform)
	} else {
		q.Set("connected", platform)
	}
	c.Redirect(http.StatusFound, withQuery(h.frontendURL, q))
}

func (h *ConnectionHandler) List(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	list, err := h.connections.ListConnections(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []model.ConnectionSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"connections": list})
}

func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	p, ok := platformParam(c)
	if !ok {
		return
	}
	if err := h.connections.Disconnect(c.Request.Context(), uid, p); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func wantsJSON(c *gin.Context) bool {
	return c.Query("mode") == "json" || strings.Contains(c.GetHeader("Accept"), "application/json")
}

func withQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + q.Encode()
	}
	existing := u.Query()
	for k, v := range q {
		existing[k] = v
	}
	u.RawQuery = existing.Encode()
	return u.String()
}
