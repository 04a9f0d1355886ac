package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"

	"socialops/domain/model"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims model.UserClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newAuthRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", mw, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(UserIDKey))
	})
	return r
}

func TestAuth(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "subject becomes user id",
			header:     "Bearer " + signed(t, model.UserClaims{UserName: "ada", StandardClaims: jwt.StandardClaims{Subject: "user-1", ExpiresAt: future}}, testSecret),
			wantStatus: http.StatusOK,
			wantBody:   "user-1",
		},
		{
			name:       "issuer fallback",
			header:     "Bearer " + signed(t, model.UserClaims{StandardClaims: jwt.StandardClaims{Issuer: "user-2", ExpiresAt: future}}, testSecret),
			wantStatus: http.StatusOK,
			wantBody:   "user-2",
		},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "not a bearer", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not.a.token", wantStatus: http.StatusUnauthorized},
		{
			name:       "wrong secret",
			header:     "Bearer " + signed(t, model.UserClaims{StandardClaims: jwt.StandardClaims{Subject: "user-1"}}, "other"),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired",
			header:     "Bearer " + signed(t, model.UserClaims{StandardClaims: jwt.StandardClaims{Subject: "user-1", ExpiresAt: time.Now().Add(-time.Minute).Unix()}}, testSecret),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no user",
			header:     "Bearer " + signed(t, model.UserClaims{UserName: "ada"}, testSecret),
			wantStatus: http.StatusUnauthorized,
		},
	}
	r := newAuthRouter(Auth(testSecret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				require.Equal(t, tt.wantBody, w.Body.String())
			} else {
				require.Contains(t, w.Body.String(), `"responseCode":"401"`)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	r := newAuthRouter(OptionalAuth(testSecret))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, model.UserClaims{StandardClaims: jwt.StandardClaims{Subject: "user-1"}}, testSecret))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "user-1", w.Body.String())
}

func TestInternalToken(t *testing.T) {
	r := newAuthRouter(InternalToken("s3cret"))
	for _, tc := range []struct {
		token string
		want  int
	}{
		{"", http.StatusUnauthorized},
		{"wrong", http.StatusUnauthorized},
		{"s3cret", http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tc.token != "" {
			req.Header.Set(InternalTokenHeader, tc.token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, tc.want, w.Code, "token %q", tc.token)
	}

	disabled := newAuthRouter(InternalToken(""))
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(InternalTokenHeader, "")
	w := httptest.NewRecorder()
	disabled.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}
