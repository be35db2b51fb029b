// Package auth implements the login/signup/logout/refresh lifecycle against
// the upstream auth endpoints and keeps one proactive refresh timer armed
// ahead of access-token expiry.
//
// Refresh is fail-closed: any refresh failure logs the user out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/go-docqa-web/internal/apiclient"
	"github.com/tbourn/go-docqa-web/internal/domain"
	"github.com/tbourn/go-docqa-web/internal/session"
)

// Doer sends one upstream request. *apiclient.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// Navigator performs the post-logout redirect to the login entry point.
type Navigator interface {
	NavigateToLogin()
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func()

// NavigateToLogin calls f.
func (f NavigatorFunc) NavigateToLogin() { f() }

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Name     string `json:"name"     validate:"required,max=100"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Manager owns the auth lifecycle.
type Manager struct {
	api   Doer
	store *session.Store
	sched *Scheduler
	nav   Navigator
	log   zerolog.Logger

	lead     time.Duration
	now      func() time.Time
	validate *validator.Validate
	flight   singleflight.Group
}

// Config carries Manager dependencies.
type Config struct {
	API       Doer
	Store     *session.Store
	Navigator Navigator
	Logger    zerolog.Logger
	// RefreshLead is how long before expiry the refresh fires.
	RefreshLead time.Duration
}

// NewManager builds a Manager. A nil Navigator is a no-op.
func NewManager(cfg Config) *Manager {
	nav := cfg.Navigator
	if nav == nil {
		nav = NavigatorFunc(func() {})
	}
	return &Manager{
		api:      cfg.API,
		store:    cfg.Store,
		sched:    NewScheduler(),
		nav:      nav,
		log:      cfg.Logger,
		lead:     cfg.RefreshLead,
		now:      time.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Login exchanges credentials for a session.
func (m *Manager) Login(ctx context.Context, in LoginRequest) (*domain.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := m.check(in); err != nil {
		return nil, err
	}
	return m.authenticate(ctx, "/auth/login", in)
}

// Signup creates an account and signs it in.
func (m *Manager) Signup(ctx context.Context, in SignupRequest) (*domain.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := m.check(in); err != nil {
		return nil, err
	}
	return m.authenticate(ctx, "/auth/signup", in)
}

// Logout clears credentials, publishes the anonymous user, cancels the
// refresh timer and redirects to login.
func (m *Manager) Logout(ctx context.Context) {
	m.sched.Cancel()
	if err := m.store.Clear(ctx); err != nil {
		m.log.Error().Err(err).Msg("logout: clear credentials")
	}
	m.nav.NavigateToLogin()
}

// Refresh rotates the credential pair using the stored refresh token.
// Concurrent callers share one upstream exchange.
func (m *Manager) Refresh(ctx context.Context) (*domain.User, error) {
	v, err, _ := m.flight.Do("refresh", func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.User).Clone(), nil
}

// Restore loads persisted credentials at startup and re-arms the refresh
// timer. It returns the restored user or nil.
func (m *Manager) Restore(ctx context.Context) (*domain.User, error) {
	u, ok, err := m.store.Restore(ctx)
	if err != nil || !ok {
		return nil, err
	}
	if exp, err := session.Expiry(m.store.Token()); err == nil {
		m.schedule(exp)
	}
	m.log.Info().Str("user_id", u.ID).Msg("session restored")
	return u, nil
}

// TokenSource exposes the manager to apiclient for bearer tokens and
// refresh-on-401.
func (m *Manager) TokenSource() apiclient.TokenSource { return tokenSource{m} }

type tokenSource struct{ m *Manager }

func (t tokenSource) Token() string { return t.m.store.Token() }

func (t tokenSource) Refresh(ctx context.Context) error {
	_, err := t.m.Refresh(ctx)
	return err
}

// NextRefresh reports when the proactive refresh is due.
func (m *Manager) NextRefresh() (time.Time, bool) { return m.sched.Due() }

// Close stops the refresh timer.
func (m *Manager) Close() { m.sched.Cancel() }

func (m *Manager) refresh(ctx context.Context) (*domain.User, error) {
	ctx, span := otel.Tracer("auth").Start(ctx, "Refresh")
	defer span.End()

	rt := m.store.RefreshToken()
	if rt == "" {
		refreshTotal.WithLabelValues("no_token").Inc()
		m.Logout(ctx)
		return nil, &Error{Message: MsgNoRefreshToken, Err: ErrNoRefreshToken}
	}

	var resp domain.AuthResponse
	err := m.api.Do(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/auth/refresh",
		JSON:      map[string]string{"refreshToken": rt},
		Anonymous: true,
	}, &resp)
	if err == nil {
		var u *domain.User
		if u, err = m.accept(ctx, resp); err == nil {
			refreshTotal.WithLabelValues("ok").Inc()
			m.log.Debug().Str("user_id", u.ID).Msg("token refreshed")
			return u, nil
		}
	}

	refreshTotal.WithLabelValues("rejected").Inc()
	span.RecordError(err)
	m.log.Warn().Err(err).Msg("token refresh failed, logging out")
	m.Logout(ctx)
	return nil, &Error{Message: MsgRefreshFailed, Err: fmt.Errorf("%w: %w", ErrRefreshRejected, err)}
}

func (m *Manager) authenticate(ctx context.Context, path string, body any) (*domain.User, error) {
	var resp domain.AuthResponse
	err := m.api.Do(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      path,
		JSON:      body,
		Anonymous: true,
	}, &resp)
	if err != nil {
		msg := apiclient.MessageOf(err)
		if strings.TrimSpace(msg) == "" {
			msg = MsgFallback
		}
		return nil, &Error{Message: msg, Err: err}
	}
	u, err := m.accept(ctx, resp)
	if err != nil {
		return nil, &Error{Message: MsgFallback, Err: err}
	}
	m.log.Info().Str("user_id", u.ID).Str("endpoint", path).Msg("signed in")
	return u, nil
}

// accept persists a successful auth response and arms the refresh timer.
func (m *Manager) accept(ctx context.Context, resp domain.AuthResponse) (*domain.User, error) {
	if resp.Token == "" {
		return nil, errors.New("auth response missing token")
	}
	if err := m.store.Save(ctx, domain.Credentials{
		AccessToken:  resp.Token,
		RefreshToken: resp.RefreshToken,
	}, resp.User); err != nil {
		return nil, err
	}

	exp, err := session.Expiry(resp.Token)
	if err != nil {
		exp = m.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	m.schedule(exp)
	return resp.User.Clone(), nil
}

// schedule arms the refresh timer lead before exp. When less than lead
// remains, it fires at half the remaining lifetime (at least 1s). Expired
// tokens are not scheduled.
func (m *Manager) schedule(exp time.Time) {
	remaining := exp.Sub(m.now())
	if remaining <= 0 {
		m.sched.Cancel()
		return
	}
	delay := remaining - m.lead
	if delay <= 0 {
		delay = remaining / 2
		if delay < time.Second {
			delay = time.Second
		}
	}
	m.sched.Schedule(delay, func() {
		if _, err := m.Refresh(context.Background()); err != nil {
			m.log.Warn().Err(err).Msg("scheduled refresh failed")
		}
	})
}

func (m *Manager) check(v any) error {
	err := m.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return domain.NewValidationError(msgs)
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	}
	return field + " is invalid"
}
