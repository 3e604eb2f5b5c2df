package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/boat-telnet/internal/utils"
)

func newEngine(m *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", m.RequireAuth(), func(c *gin.Context) {
		name, _ := GetUsername(c)
		c.String(http.StatusOK, name)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	jwt := utils.NewJWTManager("secret", time.Hour)
	token, _, err := jwt.Generate("admin")
	require.NoError(t, err)

	r := newEngine(NewAuthMiddleware(jwt, true))

	tests := []struct {
		name   string
		setup  func(req *http.Request)
		status int
		body   string
	}{
		{"no token", func(req *http.Request) {}, http.StatusUnauthorized, ""},
		{"bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK, "admin"},
		{"header", func(req *http.Request) { req.Header.Set("X-Access-Token", token) }, http.StatusOK, "admin"},
		{"cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "access_token", Value: token}) }, http.StatusOK, "admin"},
		{"bad token", func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRequireAuth_Disabled(t *testing.T) {
	m := NewAuthMiddleware(nil, false)
	assert.False(t, m.Enabled())

	w := httptest.NewRecorder()
	newEngine(m).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
