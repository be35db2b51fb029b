package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-docqa-web/internal/domain"
	"github.com/tbourn/go-docqa-web/internal/guards"
)

type staticPrincipal struct {
	user *domain.User
	auth bool
}

func (p staticPrincipal) Principal() (*domain.User, bool) { return p.user, p.auth }

func guardedEngine(p Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	table := guards.NewTable(guards.Paths{}, guards.DefaultRoutes)
	r := gin.New()
	r.Use(Guard(table, p, "/api/v1", guards.DefaultLoginPath))
	ok := func(c *gin.Context) { c.String(http.StatusOK, UserIDFrom(c)) }
	r.GET("/api/v1/qa/transcript", ok)
	r.GET("/api/v1/users", ok)
	r.GET("/api/v1/health", ok)
	r.GET("/outside", ok)
	return r
}

func TestGuard_UnauthenticatedGets401WithRedirect(t *testing.T) {
	r := guardedEngine(staticPrincipal{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/qa/transcript", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, guards.DefaultLoginPath, w.Header().Get("Location"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, guards.DefaultLoginPath, body["redirect"])
}

func TestGuard_NonAdminGets403(t *testing.T) {
	u := &domain.User{ID: "u1", Role: domain.RoleUser, Permissions: []string{"qa_access"}}
	r := guardedEngine(staticPrincipal{user: u, auth: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, guards.DefaultUnauthorizedPath, w.Header().Get("Location"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/qa/transcript", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
}

func TestGuard_UnlistedAndOutsidePathsPass(t *testing.T) {
	r := guardedEngine(staticPrincipal{})
	for _, p := range []string{"/api/v1/health", "/outside"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusOK, w.Code, p)
	}
}

type countingPrincipal struct {
	staticPrincipal
	calls int
}

func (p *countingPrincipal) Principal() (*domain.User, bool) {
	p.calls++
	return p.staticPrincipal.Principal()
}

func TestGuard_ReadsUserAndValidityAsOnePair(t *testing.T) {
	u := &domain.User{ID: "u1", Role: domain.RoleUser, Permissions: []string{"qa_access"}}
	p := &countingPrincipal{staticPrincipal: staticPrincipal{user: u, auth: false}}
	r := guardedEngine(p)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/qa/transcript", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "an expired token denies even with a user present")
	assert.Equal(t, guards.DefaultLoginPath, w.Header().Get("Location"))
	assert.Equal(t, 1, p.calls)
}
