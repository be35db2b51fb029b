// Package handlers wires the gateway endpoints to their collaborators.
//
// This file declares the narrow interfaces each endpoint group depends on
// (auth, session view, chat, QA, documents, analytics, guards) and the
// Handlers value that carries them.
package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-docqa-web/internal/auth"
	"github.com/tbourn/go-docqa-web/internal/chat"
	"github.com/tbourn/go-docqa-web/internal/documents"
	"github.com/tbourn/go-docqa-web/internal/domain"
	"github.com/tbourn/go-docqa-web/internal/guards"
	"github.com/tbourn/go-docqa-web/internal/http/middleware"
	"github.com/tbourn/go-docqa-web/internal/security"
)

// AuthService is the auth lifecycle. *auth.Manager satisfies it.
type AuthService interface {
	Login(ctx context.Context, in auth.LoginRequest) (*domain.User, error)
	Signup(ctx context.Context, in auth.SignupRequest) (*domain.User, error)
	Logout(ctx context.Context)
	Refresh(ctx context.Context) (*domain.User, error)
	NextRefresh() (time.Time, bool)
}

// SessionView exposes the signed-in user. *session.Store satisfies it.
type SessionView interface {
	CurrentUser() *domain.User
	IsAuthenticated() bool
	// Principal returns user and token validity read together.
	Principal() (*domain.User, bool)
	Subscribe() (<-chan *domain.User, func())
}

// ChatService is the transcript controller. *chat.Controller satisfies it.
type ChatService interface {
	Init(ctx context.Context) error
	Ask(ctx context.Context, text string) (*domain.ChatMessage, error)
	AskPopular(ctx context.Context, question string) (*domain.ChatMessage, error)
	RateAnswer(ctx context.Context, answerID string, r domain.Rating) error
	SwitchSession(ctx context.Context, sessionID string) error
	StartNewSession(ctx context.Context) (*domain.QASession, error)
	Snapshot() chat.Snapshot
}

// QAService covers the QA calls the controller does not own.
// *qa.Client satisfies it.
type QAService interface {
	Sessions(ctx context.Context) ([]domain.QASession, error)
	DeleteSession(ctx context.Context, id string) error
	PopularQuestions(ctx context.Context) ([]domain.PopularQuestion, error)
}

// DocumentService is the documents client. *documents.Client satisfies it.
type DocumentService interface {
	// Upload validates src and starts the transfer. The channel carries
	// progress and exactly one terminal event.
	Upload(ctx context.Context, src documents.Source, metadata map[string]any) (<-chan domain.UploadEvent, error)
	List(ctx context.Context, opt documents.ListOptions) (*domain.DocumentPage, error)
	Get(ctx context.Context, id string) (*domain.Document, error)
	Update(ctx context.Context, id string, upd domain.DocumentUpdate) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
	// Download streams the stored file and its content type; the caller
	// closes the body.
	Download(ctx context.Context, id string) (io.ReadCloser, string, error)
}

// Tracker records analytics events. *analytics.Service satisfies it.
type Tracker interface {
	TrackPageView(page, userID string)
	TrackUserAction(action, category, label, userID string)
	TrackFileUpload(fileName string, size int64, userID string)
}

// PerfTracker records performance samples. *analytics.Monitor satisfies it.
type PerfTracker interface {
	SetPage(page string)
	TrackCustomMetric(name string, value float64, userID string)
}

// FileChecker is the upload policy. *security.Validator satisfies it.
type FileChecker interface {
	Violations(f security.FileInfo) []string
}

// Deps are the services behind the handlers.
type Deps struct {
	// Auth runs login, signup, logout and refresh.
	Auth AuthService
	// Session is the read side of the credential store.
	Session   SessionView
	Chat      ChatService
	QA        QAService
	Documents DocumentService
	// Analytics and Perf receive UI telemetry; both may drop when disabled.
	Analytics Tracker
	Perf      PerfTracker
	// Files pre-validates uploads before any bytes go upstream.
	Files FileChecker
	// Guards answers /auth/guard. Nil allows every path.
	Guards *guards.Table
}

// Handlers groups every gateway endpoint.
type Handlers struct {
	auth    AuthService
	session SessionView
	chat    ChatService
	qa      QAService
	docs    DocumentService
	track   Tracker
	perf    PerfTracker
	files   FileChecker
	guards  *guards.Table
}

// New binds handlers to their services.
func New(d Deps) *Handlers {
	return &Handlers{
		auth:    d.Auth,
		session: d.Session,
		chat:    d.Chat,
		qa:      d.QA,
		docs:    d.Documents,
		track:   d.Analytics,
		perf:    d.Perf,
		files:   d.Files,
		guards:  d.Guards,
	}
}

// userID is the id recorded by the guard, else the session's user.
func (h *Handlers) userID(c *gin.Context) string {
	if uid := middleware.UserIDFrom(c); uid != "" {
		return uid
	}
	if u := h.session.CurrentUser(); u != nil {
		return u.ID
	}
	return ""
}
