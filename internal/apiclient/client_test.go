package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	mu        sync.Mutex
	tok       string
	next      string
	refreshes int
	err       error
}

func (f *fakeTokens) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tok
}

func (f *fakeTokens) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.err != nil {
		return f.err
	}
	f.tok = f.next
	return nil
}

type recObs struct {
	mu   sync.Mutex
	seen []string
}

func (r *recObs) ObserveAPI(endpoint string, _ time.Duration) {
	r.mu.Lock()
	r.seen = append(r.seen, endpoint)
	r.mu.Unlock()
}

func newClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 5*time.Second, zerolog.Nop()), srv
}

func TestDo_JSONRoundTripWithBearer(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/qa/ask", r.URL.Path)
		assert.Equal(t, "Bearer t1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "why?", in["question"])
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "a1"})
	})
	c.Tokens = &fakeTokens{tok: "t1"}
	obs := &recObs{}
	c.Obs = obs

	var out struct{ ID string }
	require.NoError(t, c.Post(context.Background(), "/qa/ask", map[string]string{"question": "why?"}, &out))
	assert.Equal(t, "a1", out.ID)
	assert.Equal(t, []string{"/qa/ask"}, obs.seen)
}

func TestDo_QueryAndAnonymous(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.WriteHeader(http.StatusNoContent)
	})
	c.Tokens = &fakeTokens{tok: "t1"}

	err := c.Do(context.Background(), Request{
		Method:    http.MethodGet,
		Path:      "/documents",
		Query:     url.Values{"page": {"2"}},
		Anonymous: true,
	}, &struct{}{})
	require.NoError(t, err)
}

func TestSend_401RefreshesOnceAndRetries(t *testing.T) {
	var calls atomic.Int32
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	toks := &fakeTokens{tok: "stale", next: "fresh"}
	c.Tokens = toks

	var out struct{ OK bool }
	require.NoError(t, c.Get(context.Background(), "/qa/sessions", nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, 1, toks.refreshes)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSend_401AfterRefreshIsTransportError(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"token revoked"}`)
	})
	toks := &fakeTokens{tok: "a", next: "b"}
	c.Tokens = toks

	err := c.Get(context.Background(), "/qa/sessions", nil, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.Status)
	assert.Equal(t, "token revoked", te.Message)
	assert.Equal(t, 1, toks.refreshes, "refresh must happen at most once per call")
}

func TestSend_RefreshFailureIsReturnedAsIs(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	sentinel := errors.New("refresh failed")
	c.Tokens = &fakeTokens{tok: "a", err: sentinel}

	err := c.Get(context.Background(), "/qa/sessions", nil, nil)
	assert.ErrorIs(t, err, sentinel)
}

func TestSend_ErrorMessages(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message field", 400, `{"message":"bad input"}`, "bad input"},
		{"error field", 409, `{"error":"conflict!"}`, "conflict!"},
		{"plain text falls back to status text", 500, `boom`, "Internal Server Error"},
		{"unknown status falls back to generic", 599, ``, FallbackMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			err := c.Delete(context.Background(), "/documents/1")
			require.Error(t, err)
			assert.Equal(t, tc.status, StatusOf(err))
			assert.Equal(t, tc.want, MessageOf(err))
		})
	}
}

func TestSend_NetworkErrorHasZeroStatus(t *testing.T) {
	c, srv := newClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	err := c.Get(context.Background(), "/x", nil, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.Status)
	assert.NotNil(t, te.Unwrap())
}

func TestSend_RawBodyRebuiltOnRetry(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	c.Tokens = &fakeTokens{tok: "stale", next: "fresh"}

	err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/documents/upload",
		Body: func() (io.Reader, string, error) {
			return strings.NewReader("payload"), "text/plain", nil
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"payload", "payload"}, bodies)
}

func TestDo_InvalidJSONBody(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	})
	var out map[string]any
	err := c.Get(context.Background(), "/x", nil, &out)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusOK, te.Status)
}

func TestMessageOf_PlainError(t *testing.T) {
	assert.Equal(t, "x", MessageOf(errors.New("x")))
	assert.Equal(t, "", MessageOf(nil))
	assert.Zero(t, StatusOf(errors.New("x")))
}
