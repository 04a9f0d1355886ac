package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	"socialops/domain/dto"
	"socialops/domain/model"
	"socialops/infrastructure/logger"
)

const (
	UserIDKey           = "user_id"
	InternalTokenHeader = "X-Internal-Token"
)

// Auth requires a bearer token signed with secretKey and exposes its subject
// as user_id. Tokens issued with the user id in the issuer claim are still
// accepted.
func Auth(secretKey string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID, err := userFromRequest(ctx.Request, secretKey)
		if err != nil {
			logger.GetLogger().WithField("error", err.Error()).Debug("Rejected bearer token")
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized(err))
			return
		}
		ctx.Set(UserIDKey, userID)
		ctx.Next()
	}
}

// OptionalAuth sets user_id when a valid bearer token is present and lets the
// request through either way. Browser redirects from a platform carry no token.
func OptionalAuth(secretKey string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.GetHeader("Authorization") != "" {
			if userID, err := userFromRequest(ctx.Request, secretKey); err == nil {
				ctx.Set(UserIDKey, userID)
			}
		}
		ctx.Next()
	}
}

// InternalToken guards operator endpoints with a shared token. An empty token
// disables the endpoints entirely.
func InternalToken(token string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if token == "" {
			ctx.AbortWithStatusJSON(http.StatusNotFound, dto.Res{ResponseCode: "404", ResponseMessage: "Not found"})
			return
		}
		got := ctx.GetHeader(InternalTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, dto.Res{ResponseCode: "401", ResponseMessage: "Unauthorized"})
			return
		}
		ctx.Next()
	}
}

func userFromRequest(r *http.Request, secretKey string) (string, error) {
	authorization := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || raw == "" {
		return "", errors.New("missing bearer token")
	}
	var claims model.UserClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	userID := claims.Subject
	if userID == "" {
		userID = claims.Issuer
	}
	if userID == "" {
		return "", errors.New("token carries no user")
	}
	return userID, nil
}

func unauthorized(err error) dto.Res {
	res := dto.Res{ResponseCode: "401", ResponseMessage: "Unauthorized"}
	var ve *jwt.ValidationError
	if errors.As(err, &ve) {
		switch {
		case ve.Errors&jwt.ValidationErrorMalformed != 0:
			res.ResponseMessage = "Malformed token"
		case ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0:
			res.ResponseMessage = "Token expired or not active yet"
		}
	}
	return res
}
