package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-docqa-web/internal/apiclient"
	"github.com/tbourn/go-docqa-web/internal/auth"
	"github.com/tbourn/go-docqa-web/internal/chat"
	"github.com/tbourn/go-docqa-web/internal/documents"
	"github.com/tbourn/go-docqa-web/internal/domain"
	"github.com/tbourn/go-docqa-web/internal/guards"
	"github.com/tbourn/go-docqa-web/internal/http/middleware"
	"github.com/tbourn/go-docqa-web/internal/security"
)

// ---------- fakes ----------

type fakeAuth struct {
	login   func(context.Context, auth.LoginRequest) (*domain.User, error)
	refresh func(context.Context) (*domain.User, error)
	logouts int
}

func (f *fakeAuth) Login(ctx context.Context, in auth.LoginRequest) (*domain.User, error) {
	return f.login(ctx, in)
}

func (f *fakeAuth) Signup(ctx context.Context, in auth.SignupRequest) (*domain.User, error) {
	return &domain.User{ID: "new", Name: in.Name, Email: in.Email}, nil
}

func (f *fakeAuth) Logout(context.Context) { f.logouts++ }

func (f *fakeAuth) Refresh(ctx context.Context) (*domain.User, error) { return f.refresh(ctx) }

func (f *fakeAuth) NextRefresh() (time.Time, bool) { return time.Time{}, false }

type fakeSession struct {
	user *domain.User
	subs chan *domain.User
}

func (f *fakeSession) CurrentUser() *domain.User { return f.user }
func (f *fakeSession) IsAuthenticated() bool     { return f.user != nil }
func (f *fakeSession) Principal() (*domain.User, bool) {
	return f.user, f.user != nil
}
func (f *fakeSession) Subscribe() (<-chan *domain.User, func()) {
	return f.subs, func() {}
}

type fakeChat struct {
	ask    func(context.Context, string) (*domain.ChatMessage, error)
	rate   func(context.Context, string, domain.Rating) error
	sw     func(context.Context, string) error
	snap   chat.Snapshot
	popped bool
}

func (f *fakeChat) Init(context.Context) error { return nil }
func (f *fakeChat) Ask(ctx context.Context, q string) (*domain.ChatMessage, error) {
	return f.ask(ctx, q)
}
func (f *fakeChat) AskPopular(ctx context.Context, q string) (*domain.ChatMessage, error) {
	f.popped = true
	return f.ask(ctx, q)
}
func (f *fakeChat) RateAnswer(ctx context.Context, id string, r domain.Rating) error {
	return f.rate(ctx, id, r)
}
func (f *fakeChat) SwitchSession(ctx context.Context, id string) error { return f.sw(ctx, id) }
func (f *fakeChat) StartNewSession(context.Context) (*domain.QASession, error) {
	return &domain.QASession{ID: "s-new"}, nil
}
func (f *fakeChat) Snapshot() chat.Snapshot { return f.snap }

type fakeQA struct {
	sessions []domain.QASession
	popular  []domain.PopularQuestion
	delErr   error
}

func (f *fakeQA) Sessions(context.Context) ([]domain.QASession, error) { return f.sessions, nil }
func (f *fakeQA) DeleteSession(context.Context, string) error          { return f.delErr }
func (f *fakeQA) PopularQuestions(context.Context) ([]domain.PopularQuestion, error) {
	return f.popular, nil
}

type fakeDocs struct {
	upload func(context.Context, documents.Source, map[string]any) (<-chan domain.UploadEvent, error)
	get    func(context.Context, string) (*domain.Document, error)
	list   documents.ListOptions
}

func (f *fakeDocs) Upload(ctx context.Context, s documents.Source, m map[string]any) (<-chan domain.UploadEvent, error) {
	return f.upload(ctx, s, m)
}
func (f *fakeDocs) List(_ context.Context, o documents.ListOptions) (*domain.DocumentPage, error) {
	f.list = o
	return &domain.DocumentPage{Documents: []domain.Document{{ID: "d1"}}, Total: 1}, nil
}
func (f *fakeDocs) Get(ctx context.Context, id string) (*domain.Document, error) { return f.get(ctx, id) }
func (f *fakeDocs) Update(_ context.Context, id string, _ domain.DocumentUpdate) (*domain.Document, error) {
	return &domain.Document{ID: id}, nil
}
func (f *fakeDocs) Delete(context.Context, string) error { return nil }
func (f *fakeDocs) Download(context.Context, string) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("%PDF")), "application/pdf", nil
}

type fakeTracker struct{ events []string }

func (f *fakeTracker) TrackPageView(page, _ string)           { f.events = append(f.events, "page:"+page) }
func (f *fakeTracker) TrackUserAction(action, _, _, _ string) { f.events = append(f.events, action) }
func (f *fakeTracker) TrackFileUpload(name string, _ int64, _ string) {
	f.events = append(f.events, "upload:"+name)
}

type fakePerf struct{ page string }

func (f *fakePerf) SetPage(p string)                          { f.page = p }
func (f *fakePerf) TrackCustomMetric(string, float64, string) {}

// ---------- harness ----------

type env struct {
	r     *gin.Engine
	auth  *fakeAuth
	sess  *fakeSession
	chat  *fakeChat
	qa    *fakeQA
	docs  *fakeDocs
	track *fakeTracker
	perf  *fakePerf
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{
		auth:  &fakeAuth{},
		sess:  &fakeSession{},
		chat:  &fakeChat{},
		qa:    &fakeQA{},
		docs:  &fakeDocs{},
		track: &fakeTracker{},
		perf:  &fakePerf{},
	}
	h := New(Deps{
		Auth:      e.auth,
		Session:   e.sess,
		Chat:      e.chat,
		QA:        e.qa,
		Documents: e.docs,
		Analytics: e.track,
		Perf:      e.perf,
		Files:     security.NewValidator(0),
		Guards:    guards.NewTable(guards.Paths{}, guards.DefaultRoutes),
	})
	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/auth/login", h.Login)
	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/logout", h.Logout)
	r.POST("/auth/refresh", h.Refresh)
	r.GET("/auth/me", h.Me)
	r.GET("/auth/guard", h.Guard)
	r.POST("/qa/ask", h.Ask)
	r.POST("/qa/answers/:id/rate", h.RateAnswer)
	r.GET("/qa/sessions", h.ListSessions)
	r.POST("/qa/sessions", h.NewSession)
	r.POST("/qa/sessions/:id/switch", h.SwitchSession)
	r.DELETE("/qa/sessions/:id", h.DeleteSession)
	r.GET("/qa/popular", h.PopularQuestions)
	r.GET("/documents", h.ListDocuments)
	r.GET("/documents/:id", h.GetDocument)
	r.GET("/documents/:id/download", h.DownloadDocument)
	r.POST("/documents/validate", h.ValidateFile)
	r.POST("/documents/upload", h.UploadDocument)
	r.POST("/analytics/pageview", h.TrackPageView)
	e.r = r
	return e
}

func (e *env) do(method, path string, body any) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// ---------- auth ----------

func TestLogin_SuccessAndErrors(t *testing.T) {
	e := newEnv(t)
	e.auth.login = func(_ context.Context, in auth.LoginRequest) (*domain.User, error) {
		switch in.Password {
		case "good":
			u := &domain.User{ID: "u1", Email: in.Email}
			e.sess.user = u
			return u, nil
		case "":
			return nil, domain.NewValidationError([]string{"password is required"})
		}
		return nil, &auth.Error{Message: "Invalid credentials"}
	}

	w := e.do(http.MethodPost, "/auth/login", auth.LoginRequest{Email: "a@b.co", Password: "good"})
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[MeResponse](t, w)
	assert.True(t, me.Authenticated)
	assert.Equal(t, "u1", me.User.ID)
	assert.Equal(t, []string{"login"}, e.track.events)

	w = e.do(http.MethodPost, "/auth/login", auth.LoginRequest{Email: "a@b.co"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	er := decode[ErrorResponse](t, w)
	assert.Equal(t, ErrCodeValidation, er.Code)
	assert.Equal(t, []string{"password is required"}, er.Errors)

	w = e.do(http.MethodPost, "/auth/login", auth.LoginRequest{Email: "a@b.co", Password: "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	er = decode[ErrorResponse](t, w)
	assert.Equal(t, "Invalid credentials", er.Message)
	assert.NotEmpty(t, er.RequestID)

	w = httptest.NewRecorder()
	e.r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignupLogoutRefresh(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/auth/signup", auth.SignupRequest{Name: "N", Email: "n@x.io", Password: "12345678"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, e.auth.logouts)

	e.auth.refresh = func(context.Context) (*domain.User, error) {
		return nil, &auth.Error{Message: auth.MsgNoRefreshToken, Err: auth.ErrNoRefreshToken}
	}
	w = e.do(http.MethodPost, "/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, auth.MsgNoRefreshToken, decode[ErrorResponse](t, w).Message)
}

func TestGuardCheck(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/auth/guard?path=/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, GuardResponse{Path: "/users", Redirect: guards.DefaultLoginPath}, decode[GuardResponse](t, w))

	e.sess.user = &domain.User{ID: "a", Role: domain.RoleAdmin}
	w = e.do(http.MethodGet, "/auth/guard?path=/users", nil)
	assert.True(t, decode[GuardResponse](t, w).Allowed)

	w = e.do(http.MethodGet, "/auth/guard?path=users", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------- qa ----------

func TestAsk_Mapping(t *testing.T) {
	e := newEnv(t)
	upstream := &apiclient.TransportError{Status: 500, Message: "model offline"}
	e.chat.ask = func(_ context.Context, q string) (*domain.ChatMessage, error) {
		switch q {
		case "Hi":
			return nil, chat.ErrQuestionTooShort
		case "busy":
			return nil, chat.ErrQuestionInFlight
		case "broken question":
			return &domain.ChatMessage{Kind: domain.KindAnswer, Text: chat.ErrorAnswerText}, upstream
		}
		return &domain.ChatMessage{ID: "a1", Kind: domain.KindAnswer, Text: "42"}, nil
	}

	w := e.do(http.MethodPost, "/qa/ask", AskRequest{Question: "Hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeQuestionShort, decode[ErrorResponse](t, w).Code)

	w = e.do(http.MethodPost, "/qa/ask", AskRequest{Question: "busy"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodPost, "/qa/ask", AskRequest{Question: "broken question"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[AskResponse](t, w)
	assert.Equal(t, chat.ErrorAnswerText, resp.Message.Text)
	assert.Equal(t, "model offline", resp.Error)

	w = e.do(http.MethodPost, "/qa/ask", AskRequest{Question: "meaning of life", Popular: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a1", decode[AskResponse](t, w).Message.ID)
	assert.True(t, e.chat.popped)
}

func TestRateAnswer_ValidatesRating(t *testing.T) {
	e := newEnv(t)
	var got domain.Rating
	e.chat.rate = func(_ context.Context, _ string, r domain.Rating) error {
		got = r
		return nil
	}

	w := e.do(http.MethodPost, "/qa/answers/a1/rate", RateRequest{Rating: "meh"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/qa/answers/a1/rate", RateRequest{Rating: domain.RatingHelpful})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domain.RatingHelpful, got)
}

func TestSessions(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/qa/sessions", nil)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	w = e.do(http.MethodPost, "/qa/sessions", nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	e.chat.sw = func(context.Context, string) error { return chat.ErrSessionChanged }
	w = e.do(http.MethodPost, "/qa/sessions/s2/switch", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrCodeStale, decode[ErrorResponse](t, w).Code)

	e.qa.delErr = &apiclient.TransportError{Status: http.StatusNotFound, Message: "Session not found"}
	w = e.do(http.MethodDelete, "/qa/sessions/zzz", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	er := decode[ErrorResponse](t, w)
	assert.Equal(t, ErrCodeNotFound, er.Code)
	assert.Equal(t, "Session not found", er.Message)
}

func TestPopularQuestions_TopFive(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 8; i++ {
		e.qa.popular = append(e.qa.popular, domain.PopularQuestion{Question: "q", Count: i})
	}
	w := e.do(http.MethodGet, "/qa/popular", nil)
	assert.Len(t, decode[[]domain.PopularQuestion](t, w), chat.PopularLimit)
}

// ---------- documents ----------

func TestListAndGetDocuments(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/documents?page=2&limit=500&search=+q3+", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, documents.ListOptions{Page: 2, Limit: 100, Search: "q3"}, e.docs.list)

	e.docs.get = func(context.Context, string) (*domain.Document, error) {
		return nil, &apiclient.TransportError{Status: 0, Message: "connection refused", Err: errors.New("dial")}
	}
	w = e.do(http.MethodGet, "/documents/d1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, ErrCodeUpstreamDown, decode[ErrorResponse](t, w).Code)

	w = e.do(http.MethodGet, "/documents/d1/download", nil)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF", w.Body.String())
}

func TestValidateFile(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/documents/validate", ValidateRequest{Name: "virus.exe", Size: 1024, Type: "application/x-msdownload"})
	resp := decode[ValidateResponse](t, w)
	assert.False(t, resp.Valid)
	assert.Len(t, resp.Errors, 2)

	w = e.do(http.MethodPost, "/documents/validate", ValidateRequest{Name: "ok.pdf", Size: 1024, Type: "application/pdf"})
	resp = decode[ValidateResponse](t, w)
	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Errors)
}

func uploadRequest(t *testing.T, name, ctype string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="file"; filename="` + name + `"`}
	if ctype != "" {
		hdr["Content-Type"] = []string{ctype}
	}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write(content)
	require.NoError(t, mw.WriteField("metadata", `{"tag":"q3"}`))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_StreamsProgressThenDone(t *testing.T) {
	e := newEnv(t)
	var gotSrc documents.Source
	var gotMeta map[string]any
	e.docs.upload = func(_ context.Context, s documents.Source, m map[string]any) (<-chan domain.UploadEvent, error) {
		gotSrc, gotMeta = s, m
		ch := make(chan domain.UploadEvent, 3)
		ch <- domain.UploadEvent{Progress: 50, Message: "Uploading... 50%"}
		ch <- domain.UploadEvent{Progress: 100, Document: &domain.Document{ID: "d9"}}
		close(ch)
		return ch, nil
	}

	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, uploadRequest(t, "report.pdf", "", []byte("%PDF-1.4 body")))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event:progress")
	assert.Contains(t, body, "event:done")
	assert.Less(t, strings.Index(body, "event:progress"), strings.Index(body, "event:done"))
	assert.Contains(t, body, `"id":"d9"`)
	assert.Equal(t, "application/pdf", gotSrc.Type)
	assert.Equal(t, "q3", gotMeta["tag"])
	assert.Contains(t, e.track.events, "upload:report.pdf")
}

func TestUpload_ValidationErrorBeforeStream(t *testing.T) {
	e := newEnv(t)
	e.docs.upload = func(context.Context, documents.Source, map[string]any) (<-chan domain.UploadEvent, error) {
		return nil, domain.NewValidationError([]string{"File type application/x-msdownload is not allowed"})
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, uploadRequest(t, "x.exe", "application/x-msdownload", []byte("MZ")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeValidation, decode[ErrorResponse](t, w).Code)
}

func TestUpload_ErrorEvent(t *testing.T) {
	e := newEnv(t)
	e.docs.upload = func(context.Context, documents.Source, map[string]any) (<-chan domain.UploadEvent, error) {
		ch := make(chan domain.UploadEvent, 1)
		ch <- domain.UploadEvent{Progress: 30, Err: &documents.UploadError{Err: &apiclient.TransportError{Status: 413, Message: "Too large"}}}
		close(ch)
		return ch, nil
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, uploadRequest(t, "a.pdf", "application/pdf", []byte("%PDF")))

	assert.Contains(t, w.Body.String(), "event:error")
	assert.Contains(t, w.Body.String(), "Upload failed: Too large")
}

func TestUpload_MissingFile(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/documents/upload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------- analytics + envelope ----------

func TestTrackPageView(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/analytics/pageview", PageViewRequest{Page: "/qa"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/qa", e.perf.page)
	assert.Equal(t, []string{"page:/qa"}, e.track.events)

	w = e.do(http.MethodPost, "/analytics/pageview", PageViewRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFail_500Logs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	lg := zerolog.New(&buf)
	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Set("logger", &lg)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) { failErr(c, errors.New("kaboom")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "kaboom", decode[ErrorResponse](t, w).Message)
	assert.Contains(t, buf.String(), `"level":"error"`)
}
