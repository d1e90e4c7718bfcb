// README: Tests for auth, role and recovery middleware.
package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/http/middleware"
	"carpool/internal/infra"
	"carpool/internal/logger"
)

type staticVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s staticVerifier) VerifyIDToken(context.Context, string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func whoamiRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": middleware.CallerUID(c), "role": middleware.CallerRole(c)})
	})
	return r
}

func TestAuth_DevTokens(t *testing.T) {
	r := whoamiRouter(infra.DevVerifier{})
	cases := []struct {
		name     string
		header   string
		query    string
		wantCode int
		wantUID  string
		wantRole string
	}{
		{name: "no credentials", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Token driver:d1", wantCode: http.StatusUnauthorized},
		{name: "blank bearer", header: "Bearer   ", wantCode: http.StatusUnauthorized},
		{name: "malformed dev token", header: "Bearer driver", wantCode: http.StatusUnauthorized},
		{name: "bearer header", header: "Bearer driver:d1", wantCode: http.StatusOK, wantUID: "d1", wantRole: "driver"},
		{name: "padded bearer", header: "Bearer  admin:a1 ", wantCode: http.StatusOK, wantUID: "a1", wantRole: "admin"},
		{name: "query token", query: "passenger:p7", wantCode: http.StatusOK, wantUID: "p7", wantRole: "passenger"},
		{name: "header wins over query", header: "Bearer admin:a1", query: "driver:d1", wantCode: http.StatusOK, wantUID: "a1", wantRole: "admin"},
		{name: "wrong scheme falls back to query", header: "Basic xyz", query: "driver:d2", wantCode: http.StatusOK, wantUID: "d2", wantRole: "driver"},
		{name: "malformed query token", query: ":d1", wantCode: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := "/whoami"
			if tc.query != "" {
				path += "?access_token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tc.wantCode, w.Code, w.Body.String())
			if tc.wantCode != http.StatusOK {
				return
			}
			var got map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tc.wantUID, got["uid"])
			assert.Equal(t, tc.wantRole, got["role"])
		})
	}
}

func TestAuth_VerifierError(t *testing.T) {
	r := whoamiRouter(staticVerifier{err: errors.New("token expired")})
	req := httptest.NewRequest(http.MethodGet, "/whoami?access_token=anything", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"invalid token"}`, w.Body.String())
}

func TestAuth_TokenWithoutRoleClaim(t *testing.T) {
	r := whoamiRouter(staticVerifier{token: &infra.FirebaseToken{UID: "u1", Claims: map[string]interface{}{"role": 7}}})
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer opaque")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":"u1","role":""}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(infra.DevVerifier{}))
	r.GET("/driver", middleware.RequireRole("driver"), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/any", middleware.RequireRole("driver", "passenger"), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		path, token string
		want        int
	}{
		{"/driver", "passenger:p1", http.StatusForbidden},
		{"/driver", "driver:d1", http.StatusOK},
		{"/any", "passenger:p1", http.StatusOK},
		{"/any", "admin:a1", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set("Authorization", "Bearer "+tc.token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "%s as %s", tc.path, tc.token)
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Recovery(logger.Nop()), middleware.Logging(logger.Nop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
