package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_PropagatesOrGenerates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestAccessLog_RedactsAndLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	r := gin.New()
	r.Use(RequestID(), AccessLog(base, NewRedactor("X-Refresh-Token")))
	r.GET("/qa/sessions/:id", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside")
		c.Status(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/qa/sessions/1?email=jane@example.com&t=eyJhbGciOi.eyJzdWIi.sig", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Refresh-Token", "r1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var inside, access map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &inside))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &access))

	assert.Equal(t, "/qa/sessions/:id", inside["path"])
	assert.Equal(t, "warn", access["level"])
	assert.EqualValues(t, 404, access["status"])
	q := access["query"].(string)
	assert.NotContains(t, q, "jane@example.com")
	assert.NotContains(t, q, "eyJzdWIi")
	headers := access["headers"].(map[string]any)
	assert.Equal(t, "[REDACTED]", headers["Authorization"])
	assert.Equal(t, "[REDACTED]", headers["X-Refresh-Token"])
}

func TestRedactor_Scrub(t *testing.T) {
	r := NewRedactor()
	in := "id=123e4567-e89b-12d3-a456-426614174000 mail=a.b@c.io tel=+1 212-555-1212"
	out := r.Scrub(in)
	assert.Contains(t, out, "[REDACTED:id]")
	assert.Contains(t, out, "[REDACTED:email]")
	assert.Contains(t, out, "[REDACTED:phone]")
	assert.Equal(t, "", r.Scrub(""))
}

func TestRecovery_JSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.New(&buf)))
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body["code"])
	assert.Equal(t, w.Header().Get("X-Request-ID"), body["request_id"])
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestLoggerFrom_NoOpFallback(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.NotNil(t, LoggerFrom(c))
}
