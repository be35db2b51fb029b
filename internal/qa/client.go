// Package qa is the client for the upstream question-answering endpoints:
// asking, session CRUD, history replay, popular questions and ratings.
package qa

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-docqa-web/internal/apiclient"
	"github.com/tbourn/go-docqa-web/internal/cache"
	"github.com/tbourn/go-docqa-web/internal/domain"
)

const (
	keySessions = "qa:sessions"
	keyPopular  = "qa:popular"
)

// Doer sends one upstream request. *apiclient.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// Client wraps the /qa endpoints.
type Client struct {
	api   Doer
	cache *cache.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// New returns a Client. A nil cache disables caching.
func New(api Doer, c *cache.Cache, ttl time.Duration, log zerolog.Logger) *Client {
	return &Client{api: api, cache: c, ttl: ttl, log: log}
}

// Ask posts a question bound to sessionID. An empty sessionID gets a
// throwaway client-generated id.
func (c *Client) Ask(ctx context.Context, question, sessionID string) (*domain.Answer, error) {
	if sessionID == "" {
		sessionID = NewSessionID(time.Now())
	}
	var out domain.Answer
	err := c.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/qa/ask",
		JSON:   map[string]string{"question": question, "sessionId": sessionID},
	}, &out)
	if err != nil {
		return nil, err
	}
	// The session's question count and last activity changed.
	c.invalidate(keySessions)
	return &out, nil
}

// History returns the questions and answers recorded for a session.
func (c *Client) History(ctx context.Context, sessionID string) (*domain.History, error) {
	var out domain.History
	err := c.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/qa/sessions/" + url.PathEscape(sessionID) + "/history",
		Route:  "/qa/sessions/:id/history",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Sessions lists the user's sessions.
func (c *Client) Sessions(ctx context.Context) ([]domain.QASession, error) {
	load := func(ctx context.Context) ([]domain.QASession, error) {
		var out []domain.QASession
		if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/qa/sessions"}, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if c.cache == nil {
		return load(ctx)
	}
	return cache.GetOrLoad(ctx, c.cache, keySessions, c.ttl, load)
}

// CreateSession starts a server-side session. An empty title is omitted.
func (c *Client) CreateSession(ctx context.Context, title string) (*domain.QASession, error) {
	body := map[string]string{}
	if t := strings.TrimSpace(title); t != "" {
		body["title"] = t
	}
	var out domain.QASession
	if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: "/qa/sessions", JSON: body}, &out); err != nil {
		return nil, err
	}
	c.invalidate(keySessions)
	return &out, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	err := c.api.Do(ctx, apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/qa/sessions/" + url.PathEscape(id),
		Route:  "/qa/sessions/:id",
	}, nil)
	if err != nil {
		return err
	}
	c.invalidate(keySessions)
	return nil
}

// PopularQuestions returns frequently asked questions.
func (c *Client) PopularQuestions(ctx context.Context) ([]domain.PopularQuestion, error) {
	load := func(ctx context.Context) ([]domain.PopularQuestion, error) {
		var out []domain.PopularQuestion
		if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/qa/popular-questions"}, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if c.cache == nil {
		return load(ctx)
	}
	return cache.GetOrLoad(ctx, c.cache, keyPopular, c.ttl, load)
}

// RateAnswer submits feedback for an answer.
func (c *Client) RateAnswer(ctx context.Context, answerID string, r domain.Rating) error {
	if !r.Valid() {
		return domain.NewValidationError([]string{fmt.Sprintf("rating %q is not allowed", r)})
	}
	return c.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/qa/answers/" + url.PathEscape(answerID) + "/rate",
		Route:  "/qa/answers/:id/rate",
		JSON:   map[string]string{"rating": string(r)},
	}, nil)
}

// NewSessionID returns "session_<unixmillis>_<random>".
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

func (c *Client) invalidate(key string) {
	if c.cache != nil {
		c.cache.Delete(key)
	}
}
