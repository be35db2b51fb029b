package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-docqa-web/internal/app"
	"github.com/tbourn/go-docqa-web/internal/chat"
	"github.com/tbourn/go-docqa-web/internal/domain"
)

type fakeAPI struct {
	*httptest.Server

	mu          sync.Mutex
	permissions []string
	uploadedAs  string
	asked       []string
}

func newFakeAPI(t *testing.T, perms ...string) *fakeAPI {
	t.Helper()
	f := &fakeAPI{permissions: perms}
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("k"))
		f.mu.Lock()
		perms := f.permissions
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, domain.AuthResponse{
			Token:        tok,
			RefreshToken: "r-1",
			User:         domain.User{ID: "u-1", Email: "ada@example.com", Name: "Ada", Role: domain.RoleUser, Permissions: perms},
		})
	})
	mux.HandleFunc("POST /qa/sessions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, domain.QASession{ID: "s-1", Title: body["title"], CreatedAt: time.Now()})
	})
	mux.HandleFunc("GET /qa/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []domain.QASession{{ID: "s-1", Title: "Revenue", QuestionCount: 2, LastActivity: time.Now()}})
	})
	mux.HandleFunc("POST /qa/ask", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.asked = append(f.asked, body["question"])
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, domain.Answer{
			ID:        "a-1",
			Text:      "Revenue was 10M.",
			Sources:   []domain.DocumentExcerpt{{DocumentID: "d-1", DocumentName: "report.pdf", RelevanceScore: 0.9}},
			Timestamp: time.Now(),
		})
	})
	mux.HandleFunc("POST /documents/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		f.mu.Lock()
		f.uploadedAs = r.FormValue("originalName")
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, domain.Document{ID: "d-9", Name: "stored.txt", OriginalName: r.FormValue("originalName"), Status: domain.StatusUploaded})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)

	t.Setenv("API_URL", f.URL)
	t.Setenv("STORE_PATH", filepath.Join(t.TempDir(), "docqa.db"))
	t.Setenv("ANALYTICS_ENABLED", "false")
	return f
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	c := &cli{in: strings.NewReader(stdin), newApp: app.New}
	root := c.rootCmd("test-version")
	var out, errb bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errb)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errb.String(), err
}

func TestRoot_VersionAndUnknownCommand(t *testing.T) {
	out, _, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "test-version\n", out)

	_, _, err = execute(t, "", "nonexistent-command")
	assert.Error(t, err)
}

func TestRoot_RejectsUnknownOutput(t *testing.T) {
	newFakeAPI(t)
	_, _, err := execute(t, "", "whoami", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestLogin_WhoamiLogout(t *testing.T) {
	newFakeAPI(t, "qa_access")

	out, errOut, err := execute(t, "ada@example.com\nsecret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Email: ")
	assert.Contains(t, out, "Signed in as")
	assert.Contains(t, out, "ada@example.com")

	out, _, err = execute(t, "", "whoami", "-o", "json")
	require.NoError(t, err)
	var me whoami
	require.NoError(t, json.Unmarshal([]byte(out), &me))
	assert.Equal(t, "u-1", me.User.ID)
	assert.NotNil(t, me.RefreshAt)

	_, errOut, err = execute(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Signed out")

	_, _, err = execute(t, "", "whoami")
	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestAsk_PrintsAnswerWithSources(t *testing.T) {
	api := newFakeAPI(t, "qa_access")
	_, _, err := execute(t, "", "login", "--email", "ada@example.com", "--password", "pw")
	require.NoError(t, err)

	out, _, err := execute(t, "", "ask", "What", "was", "Q3", "revenue?")
	require.NoError(t, err)
	assert.Contains(t, out, "Revenue was 10M.")
	assert.Contains(t, out, "[1] report.pdf (90%)")
	assert.Equal(t, []string{"What was Q3 revenue?"}, api.asked)

	out, _, err = execute(t, "", "ask", "-o", "yaml", "Another question")
	require.NoError(t, err)
	assert.Contains(t, out, "content: Revenue was 10M.")
}

func TestAsk_Guards(t *testing.T) {
	newFakeAPI(t)
	_, _, err := execute(t, "", "ask", "anything at all")
	assert.ErrorIs(t, err, errNotSignedIn)

	_, _, err = execute(t, "", "login", "--email", "ada@example.com", "--password", "pw")
	require.NoError(t, err)
	_, _, err = execute(t, "", "ask", "anything at all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied to /qa")
}

func TestSessionsList(t *testing.T) {
	newFakeAPI(t, "qa_access")
	_, _, err := execute(t, "", "login", "--email", "ada@example.com", "--password", "pw")
	require.NoError(t, err)

	out, _, err := execute(t, "", "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 session(s)")
	assert.Contains(t, out, "Revenue")
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestUpload_StreamsToCompletion(t *testing.T) {
	api := newFakeAPI(t, "document_read")
	_, _, err := execute(t, "", "login", "--email", "ada@example.com", "--password", "pw")
	require.NoError(t, err)

	file := writeTemp(t, "notes.txt", "quarterly notes\n")
	out, _, err := execute(t, "", "upload", file, "-m", "team=finance")
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded stored.txt (d-9)")
	assert.Equal(t, "notes.txt", api.uploadedAs)
}

func TestUpload_RejectedLocally(t *testing.T) {
	newFakeAPI(t, "document_read")
	_, _, err := execute(t, "", "login", "--email", "ada@example.com", "--password", "pw")
	require.NoError(t, err)

	file := writeTemp(t, "tool.exe", "MZ not really\n")
	_, _, err = execute(t, "", "upload", file, "--type", "application/x-msdownload")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "File extension is not allowed for security reasons")
}

func TestValidate(t *testing.T) {
	newFakeAPI(t)

	out, _, err := execute(t, "", "validate", writeTemp(t, "notes.txt", "plain text\n"), "-o", "json")
	require.NoError(t, err)
	var res validation
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Valid)
	assert.Equal(t, "text/plain", res.Type)
	assert.Empty(t, res.Errors)

	out, _, err = execute(t, "", "validate", writeTemp(t, "report.final.txt", "plain text\n"))
	require.Error(t, err)
	assert.Contains(t, out, "Rejected")
	assert.Contains(t, out, "Files with double extensions are not allowed")
}

func TestParseMetadata(t *testing.T) {
	m, err := parseMetadata([]string{"team=finance", "year=2024"}, `{"source":"cli"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"team": "finance", "year": "2024", "source": "cli"}, m)

	m, err = parseMetadata(nil, "")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = parseMetadata([]string{"novalue"}, "")
	assert.Error(t, err)
}

type fakeChat struct {
	snap  chat.Snapshot
	asked []string
	rated map[string]domain.Rating
}

func (f *fakeChat) Init(context.Context) error { return nil }

func (f *fakeChat) Ask(_ context.Context, text string) (*domain.ChatMessage, error) {
	if len([]rune(text)) < chat.MinQuestionRunes {
		return nil, chat.ErrQuestionTooShort
	}
	f.asked = append(f.asked, text)
	return &domain.ChatMessage{ID: "a-1", Kind: domain.KindAnswer, Text: "answer to " + text}, nil
}

func (f *fakeChat) AskPopular(ctx context.Context, q string) (*domain.ChatMessage, error) {
	return f.Ask(ctx, q)
}

func (f *fakeChat) RateAnswer(_ context.Context, id string, r domain.Rating) error {
	if f.rated == nil {
		f.rated = map[string]domain.Rating{}
	}
	f.rated[id] = r
	return nil
}

func (f *fakeChat) SwitchSession(context.Context, string) error { return nil }

func (f *fakeChat) StartNewSession(context.Context) (*domain.QASession, error) {
	return &domain.QASession{ID: "s-new"}, nil
}

func (f *fakeChat) Snapshot() chat.Snapshot { return f.snap }

func TestREPL(t *testing.T) {
	fc := &fakeChat{snap: chat.Snapshot{Popular: []domain.PopularQuestion{{Question: "What is the refund policy?", Count: 7}}}}
	c := &cli{in: strings.NewReader("hi\nWhat is revenue?\n/rate a-1 up\n/popular 1\n/new\n/bogus\n/quit\nnever asked\n")}
	var out bytes.Buffer

	require.NoError(t, c.repl(context.Background(), &out, fc))

	s := out.String()
	assert.Contains(t, s, "What is the refund policy?")
	assert.Contains(t, s, chat.ErrQuestionTooShort.Error())
	assert.Contains(t, s, "answer to What is revenue?")
	assert.Contains(t, s, "Thanks for the feedback")
	assert.Contains(t, s, "s-new")
	assert.Contains(t, s, "unknown command")
	assert.Equal(t, []string{"What is revenue?", "What is the refund policy?"}, fc.asked)
	assert.Equal(t, domain.RatingHelpful, fc.rated["a-1"])
}

func TestREPL_EndsOnEOF(t *testing.T) {
	c := &cli{in: strings.NewReader("What is revenue?")}
	fc := &fakeChat{}
	var out bytes.Buffer
	require.NoError(t, c.repl(context.Background(), &out, fc))
	assert.Equal(t, []string{"What is revenue?"}, fc.asked)
}
